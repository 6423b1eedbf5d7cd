package format

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"vertbot/internal/types"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPrice(t *testing.T) {
	cases := map[string]string{
		"154.5":    "$154.50",
		"1234.567": "$1,234.57",
		"0":        "$0.00",
		"-12.3":    "-$12.30",
	}
	for in, want := range cases {
		if got := Price(d(in)); got != want {
			t.Errorf("Price(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestPercent(t *testing.T) {
	cases := map[string]string{
		"3":      "+3.00%",
		"-4.123": "-4.12%",
		"0":      "0.00%",
		"0.001":  "0.00%",
	}
	for in, want := range cases {
		if got := Percent(d(in)); got != want {
			t.Errorf("Percent(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestChangePct(t *testing.T) {
	if got := ChangePct(d("154.50"), d("150.00")); !got.Equal(d("3")) {
		t.Errorf("Expected 3, got %s", got)
	}
	if got := ChangePct(d("10"), decimal.Zero); !got.IsZero() {
		t.Errorf("Expected zero for zero base, got %s", got)
	}
}

func TestAlert(t *testing.T) {
	msg := Alert("aapl", d("154.50"), d("150.00"), d("3"))

	if !strings.Contains(msg.Title, "AAPL") {
		t.Errorf("Expected title to name the ticker, got %q", msg.Title)
	}
	if msg.Color != ColorUp {
		t.Errorf("Expected up colour, got %x", msg.Color)
	}
	if !strings.Contains(msg.Description, "up **+3.00%**") {
		t.Errorf("Unexpected description %q", msg.Description)
	}
	if len(msg.Fields) != 3 || msg.Fields[2].Value != "+3.00%" {
		t.Errorf("Unexpected fields %+v", msg.Fields)
	}

	down := Alert("MSFT", d("290"), d("300"), d("-3.3333"))
	if down.Color != ColorDown || !strings.Contains(down.Description, "down") {
		t.Errorf("Expected a down alert, got %+v", down)
	}
}

func TestReportGroupsMovers(t *testing.T) {
	lines := []types.ReportLine{
		{Symbol: "AAPL", Price: d("154.50"), ChangePct: d("3")},
		{Symbol: "MSFT", Price: d("301"), ChangePct: d("0.33")},
		{Symbol: "TSLA", Price: d("200"), ChangePct: d("-5")},
		{Symbol: "IBM", Price: d("100"), ChangePct: decimal.Zero},
	}
	msg := Report("daily", lines, []string{"XYZ"}, time.Time{})

	if msg.Title != "📊 Daily Market Report" {
		t.Errorf("Unexpected title %q", msg.Title)
	}
	if len(msg.Fields) != 4 {
		t.Fatalf("Expected gainers, losers, unchanged and unavailable fields, got %d", len(msg.Fields))
	}
	if !strings.HasPrefix(msg.Fields[0].Value, "**AAPL**") {
		t.Errorf("Expected AAPL to lead gainers, got %q", msg.Fields[0].Value)
	}
	if msg.Fields[3].Value != "XYZ" {
		t.Errorf("Expected XYZ unavailable, got %q", msg.Fields[3].Value)
	}
	if msg.Footer != "Tracking 5 stocks | ↑ 2 | ↓ 1 | → 1" {
		t.Errorf("Unexpected footer %q", msg.Footer)
	}
}

func TestReportEmpty(t *testing.T) {
	msg := Report("manual", nil, nil, time.Time{})
	if msg.Description == "" || len(msg.Fields) != 0 {
		t.Errorf("Expected empty-report description, got %+v", msg)
	}
}

func TestTickerList(t *testing.T) {
	got := TickerList([]string{"AAPL", "MSFT", "TSLA", "IBM"}, 3)
	want := "`AAPL  ` `TSLA  `\n`MSFT  ` `IBM   `"
	if got != want {
		t.Errorf("TickerList =\n%s\nwant\n%s", got, want)
	}
	if TickerList(nil, 3) != "No tickers configured" {
		t.Error("Expected placeholder for an empty list")
	}
}

func TestNewsTitles(t *testing.T) {
	at := time.Date(2024, 3, 12, 15, 0, 0, 0, time.UTC)
	if msg := News("", nil, 15, at); msg.Title != "📰 Latest Market News" || msg.Description != "No recent market news found." {
		t.Errorf("Unexpected market news message %+v", msg)
	}
	articles := []types.NewsArticle{{Title: "a"}, {Title: "b"}, {Title: "c"}}
	msg := News("aapl", articles, 2, at)
	if msg.Title != "📰 Latest News for AAPL" || len(msg.Fields) != 2 || msg.Footer != "Showing 2 of 3 articles" {
		t.Errorf("Unexpected stock news message %+v", msg)
	}
}

func TestAnswerSplitsLongText(t *testing.T) {
	msg := Answer("q", strings.Repeat("a", 2500), time.Time{})
	// question + three chunks
	if len(msg.Fields) != 4 {
		t.Fatalf("Expected 4 fields, got %d", len(msg.Fields))
	}
	if len(msg.Fields[3].Value) != 2500-2048 {
		t.Errorf("Unexpected final chunk length %d", len(msg.Fields[3].Value))
	}
}

func TestStatus(t *testing.T) {
	now := time.Date(2024, 3, 12, 15, 0, 0, 0, time.UTC)
	text := Status(
		types.MonitorStatus{LastCycle: now.Add(-time.Minute), Cycles: 4, MarketOpen: true},
		types.SchedulerHealth{Running: false, Jobs: []string{"daily_reset", "daily_market_report"}, Restarts: 2},
		"Mon-Fri 09:30-16:00 EDT",
		now,
	)
	for _, want := range []string{"Market: open", "4 cycles, last 1m0s ago", "🔴 stopped, 2 restarts", "• daily_market_report"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected status to contain %q, got:\n%s", want, text)
		}
	}
}
