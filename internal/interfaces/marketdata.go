package interfaces

import (
	"context"

	"vertbot/internal/types"
)

// MarketData fetches quotes from an upstream provider. Failures wrap types.ErrMarketData.
type MarketData interface {
	FetchCurrentPrice(ctx context.Context, symbol string) (types.PriceQuote, error)
	FetchClosingPrice(ctx context.Context, symbol string) (types.PriceQuote, error)
}

// QuoteSource is the cached view of MarketData used by the monitor and the report job.
type QuoteSource interface {
	GetCurrent(ctx context.Context, symbol string) (types.PriceQuote, error)
	GetPreviousClose(ctx context.Context, symbol string) (types.PriceQuote, error)
}
