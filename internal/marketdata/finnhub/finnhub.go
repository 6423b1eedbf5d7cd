package finnhub

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"vertbot/internal/api"
	"vertbot/internal/interfaces"
	"vertbot/internal/types"
)

const DefaultBaseURL = "https://finnhub.io/api/v1"

// Client reads quotes, company news and market news from Finnhub's REST API.
type Client struct {
	http  *api.Client
	loc   *time.Location
	retry *api.RetryConfig
}

var _ interfaces.MarketData = (*Client)(nil)

type Params struct {
	BaseURL        string
	APIKey         string
	CallsPerMinute int
	Timeout        time.Duration
	Location       *time.Location // asOf dates are formatted in this zone
}

func New(p Params) *Client {
	if p.BaseURL == "" {
		p.BaseURL = DefaultBaseURL
	}
	if p.Location == nil {
		p.Location = time.UTC
	}
	opts := []api.ClientOption{
		api.WithBaseURL(strings.TrimRight(p.BaseURL, "/")),
		api.WithQueryParam("token", p.APIKey),
		api.WithRateLimit(p.CallsPerMinute),
		api.WithHeader("Accept", "application/json"),
		api.WithLogging(true),
	}
	if p.Timeout > 0 {
		opts = append(opts, api.WithTimeout(p.Timeout))
	}
	return &Client{
		http:  api.NewClient(opts...),
		loc:   p.Location,
		retry: api.DefaultRetryConfig(),
	}
}

// FetchCurrentPrice returns the last traded price (field c).
func (c *Client) FetchCurrentPrice(ctx context.Context, symbol string) (types.PriceQuote, error) {
	return c.quote(ctx, symbol, "c")
}

// FetchClosingPrice returns the previous session close (field pc).
func (c *Client) FetchClosingPrice(ctx context.Context, symbol string) (types.PriceQuote, error) {
	return c.quote(ctx, symbol, "pc")
}

func (c *Client) quote(ctx context.Context, symbol, field string) (types.PriceQuote, error) {
	resp, err := c.http.GETWithRetry(ctx, "/quote", url.Values{"symbol": {symbol}}, c.retry)
	if err != nil {
		return types.PriceQuote{}, &types.MarketDataError{Symbol: symbol, Reason: "quote request failed", Err: err}
	}
	return parseQuote(resp.Body, symbol, field, c.loc)
}

func parseQuote(body []byte, symbol, field string, loc *time.Location) (types.PriceQuote, error) {
	if !gjson.ValidBytes(body) {
		return types.PriceQuote{}, &types.MarketDataError{Symbol: symbol, Reason: "malformed quote response"}
	}
	res := gjson.ParseBytes(body)
	if e := res.Get("error"); e.Exists() {
		return types.PriceQuote{}, &types.MarketDataError{Symbol: symbol, Reason: e.String()}
	}

	price, ts := res.Get(field), res.Get("t")
	if !price.Exists() || !ts.Exists() {
		return types.PriceQuote{}, &types.MarketDataError{Symbol: symbol, Reason: "no price data available", Err: types.ErrNoData}
	}
	// Unknown symbols come back as all zeros.
	if ts.Int() == 0 && price.Float() == 0 {
		return types.PriceQuote{}, &types.MarketDataError{Symbol: symbol, Reason: "no price data available", Err: types.ErrNoData}
	}

	p, err := decimal.NewFromString(price.Raw)
	if err != nil {
		return types.PriceQuote{}, &types.MarketDataError{Symbol: symbol, Reason: "unparseable price " + price.Raw, Err: err}
	}
	return types.PriceQuote{
		Symbol: symbol,
		Price:  p,
		AsOf:   time.Unix(ts.Int(), 0).In(loc).Format("2006-01-02"),
	}, nil
}

// CompanyNews returns articles published between from and to, newest first
// as Finnhub orders them.
func (c *Client) CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]types.NewsArticle, error) {
	params := url.Values{
		"symbol": {symbol},
		"from":   {from.Format("2006-01-02")},
		"to":     {to.Format("2006-01-02")},
	}
	resp, err := c.http.GETWithRetry(ctx, "/company-news", params, c.retry)
	if err != nil {
		return nil, fmt.Errorf("company news for %s: %w", symbol, err)
	}
	return parseNews(resp.Body, symbol)
}

// MarketNews returns the latest articles for a Finnhub news category
// such as "general", newest first.
func (c *Client) MarketNews(ctx context.Context, category string) ([]types.NewsArticle, error) {
	resp, err := c.http.GETWithRetry(ctx, "/news", url.Values{"category": {category}}, c.retry)
	if err != nil {
		return nil, fmt.Errorf("%s market news: %w", category, err)
	}
	return parseNews(resp.Body, "")
}

// parseNews decodes a Finnhub article array. symbol is empty for market news.
func parseNews(body []byte, symbol string) ([]types.NewsArticle, error) {
	res := gjson.ParseBytes(body)
	if e := res.Get("error"); e.Exists() {
		return nil, errors.New(e.String())
	}
	if !res.IsArray() {
		if symbol == "" {
			return nil, errors.New("market news: unexpected response")
		}
		return nil, fmt.Errorf("company news for %s: unexpected response", symbol)
	}

	arr := res.Array()
	out := make([]types.NewsArticle, 0, len(arr))
	for _, v := range arr {
		headline := strings.TrimSpace(v.Get("headline").String())
		if headline == "" {
			continue
		}
		out = append(out, types.NewsArticle{
			Symbol:      symbol,
			Title:       headline,
			URL:         v.Get("url").String(),
			Summary:     strings.TrimSpace(v.Get("summary").String()),
			Source:      v.Get("source").String(),
			PublishedAt: time.Unix(v.Get("datetime").Int(), 0).UTC(),
		})
	}
	return out, nil
}
