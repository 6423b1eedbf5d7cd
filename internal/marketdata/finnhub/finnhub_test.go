package finnhub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vertbot/internal/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Params{BaseURL: srv.URL, APIKey: "k", Location: time.UTC})
}

func TestFetchPrices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" || r.URL.Query().Get("symbol") != "AAPL" || r.URL.Query().Get("token") != "k" {
			t.Errorf("Unexpected request %s", r.URL)
		}
		w.Write([]byte(`{"c":154.5,"d":4.5,"dp":3,"h":155,"l":150,"o":150.2,"pc":150,"t":1710270000}`))
	})
	ctx := context.Background()

	cur, err := c.FetchCurrentPrice(ctx, "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if cur.Price.String() != "154.5" || cur.AsOf != "2024-03-12" {
		t.Errorf("Unexpected current quote %+v", cur)
	}

	prev, err := c.FetchClosingPrice(ctx, "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if prev.Price.String() != "150" {
		t.Errorf("Expected previous close 150, got %s", prev.Price)
	}
}

func TestQuoteErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		noData bool
	}{
		{"api error", `{"error":"Invalid API key"}`, false},
		{"missing fields", `{"d":null}`, true},
		{"unknown symbol", `{"c":0,"d":null,"dp":null,"h":0,"l":0,"o":0,"pc":0,"t":0}`, true},
		{"not json", `<html>`, false},
	}
	for _, tc := range cases {
		_, err := parseQuote([]byte(tc.body), "XYZ", "c", time.UTC)
		if !errors.Is(err, types.ErrMarketData) {
			t.Errorf("%s: expected market data error, got %v", tc.name, err)
		}
		if errors.Is(err, types.ErrNoData) != tc.noData {
			t.Errorf("%s: ErrNoData = %v, want %v", tc.name, errors.Is(err, types.ErrNoData), tc.noData)
		}
	}
}

func TestHTTPFailureIsMarketDataError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := c.FetchCurrentPrice(context.Background(), "AAPL")
	var mde *types.MarketDataError
	if !errors.As(err, &mde) || mde.Symbol != "AAPL" {
		t.Errorf("Expected MarketDataError for AAPL, got %v", err)
	}
}

func TestCompanyNews(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("from") != "2024-03-08" || r.URL.Query().Get("to") != "2024-03-12" {
			t.Errorf("Unexpected range %s", r.URL.RawQuery)
		}
		w.Write([]byte(`[
			{"headline":"Apple beats","url":"https://x/1","summary":"Strong quarter","source":"Reuters","datetime":1710270000},
			{"headline":"","url":"https://x/2"},
			{"headline":"Apple event","url":"https://x/3","source":"CNBC","datetime":1710180000}
		]`))
	})
	to := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	articles, err := c.CompanyNews(context.Background(), "AAPL", to.AddDate(0, 0, -4), to)
	if err != nil {
		t.Fatal(err)
	}
	if len(articles) != 2 {
		t.Fatalf("Expected 2 articles with headlines, got %d", len(articles))
	}
	if articles[0].Title != "Apple beats" || articles[0].Source != "Reuters" {
		t.Errorf("Unexpected first article %+v", articles[0])
	}
}

func TestMarketNews(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/news" || r.URL.Query().Get("category") != "general" {
			t.Errorf("Unexpected request %s", r.URL)
		}
		w.Write([]byte(`[
			{"headline":"Stocks rally","url":"https://x/1","source":"Reuters","datetime":1710270000},
			{"headline":"Fed holds rates","url":"https://x/2","source":"CNBC","datetime":1710180000}
		]`))
	})
	articles, err := c.MarketNews(context.Background(), "general")
	if err != nil {
		t.Fatal(err)
	}
	if len(articles) != 2 || articles[0].Symbol != "" || articles[1].Title != "Fed holds rates" {
		t.Errorf("Unexpected market news %+v", articles)
	}

	if _, err := parseNews([]byte(`{"error":"limit"}`), ""); err == nil {
		t.Error("Expected API error to surface")
	}
}
