package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrMarketData    = errors.New("market data error")
	ErrNoData        = errors.New("no price data available")
	ErrInvalidSymbol = errors.New("invalid ticker symbol")
)

// MarketDataError reports a failed quote lookup for a single symbol.
type MarketDataError struct {
	Symbol string
	Reason string
	Err    error
}

func (e *MarketDataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("market data for %s: %s: %v", e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("market data for %s: %s", e.Symbol, e.Reason)
}

func (e *MarketDataError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMarketData, e.Err}
	}
	return []error{ErrMarketData}
}

// PriceQuote is an immutable price observation returned by a market data source.
type PriceQuote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	AsOf   string          `json:"as_of"`
}

type CachedQuote struct {
	Quote     PriceQuote
	FetchedAt time.Time
}

// GuildConfig is a read-only snapshot of one guild's monitoring setup.
type GuildConfig struct {
	GuildID         string   `json:"guild_id"`
	ReportChannelID string   `json:"report_channel_id,omitempty"`
	Tickers         []string `json:"tickers"`
}

// Monitored reports whether the guild has both a report channel and tickers.
func (g GuildConfig) Monitored() bool {
	return g.ReportChannelID != "" && len(g.Tickers) > 0
}

type ReportState struct {
	LastReportDate string `json:"last_report_date"`
	Sent           bool   `json:"sent"`
}

type SchedulerHealth struct {
	Running     bool                 `json:"running"`
	Jobs        []string             `json:"jobs"`
	LastFire    map[string]time.Time `json:"last_fire"`
	NextRun     map[string]time.Time `json:"next_run"`
	Restarts    int                  `json:"restarts"`
	LastRestart time.Time            `json:"last_restart,omitempty"`
	LastError   string               `json:"last_error,omitempty"`
}

type MonitorStatus struct {
	LastCycle   time.Time `json:"last_cycle"`
	Cycles      int       `json:"cycles"`
	AlertsSent  int       `json:"alerts_sent"`
	FetchErrors int       `json:"fetch_errors"`
	MarketOpen  bool      `json:"market_open"`
	LastError   string    `json:"last_error,omitempty"`
}

// Field is one name/value row of a structured message.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Message is the channel-agnostic form of an outbound chat message.
// Text-only messages leave Title empty.
type Message struct {
	Text        string
	Title       string
	Description string
	Color       int
	Fields      []Field
	Footer      string
	Timestamp   time.Time
}

type NewsArticle struct {
	Symbol      string    `json:"symbol"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Summary     string    `json:"summary"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// ReportLine is one ticker's row in a daily or manual market report.
type ReportLine struct {
	Symbol        string
	Price         decimal.Decimal
	PreviousClose decimal.Decimal
	ChangePct     decimal.Decimal
	AsOf          string
}
