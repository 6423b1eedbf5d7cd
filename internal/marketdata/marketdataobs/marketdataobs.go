package marketdataobs

import (
	"context"
	"time"

	"vertbot/internal/interfaces"
	"vertbot/internal/logger"
	"vertbot/internal/trace"
	"vertbot/internal/types"
)

type observableMarketData struct {
	md interfaces.MarketData
}

var _ interfaces.MarketData = (*observableMarketData)(nil)

func Wrap(md interfaces.MarketData) interfaces.MarketData {
	return &observableMarketData{
		md: md,
	}
}

func (om *observableMarketData) FetchCurrentPrice(ctx context.Context, symbol string) (types.PriceQuote, error) {
	return om.observe(ctx, "marketdata.FetchCurrentPrice", symbol, om.md.FetchCurrentPrice)
}

func (om *observableMarketData) FetchClosingPrice(ctx context.Context, symbol string) (types.PriceQuote, error) {
	return om.observe(ctx, "marketdata.FetchClosingPrice", symbol, om.md.FetchClosingPrice)
}

func (om *observableMarketData) observe(ctx context.Context, op, symbol string,
	fetch func(context.Context, string) (types.PriceQuote, error)) (types.PriceQuote, error) {
	ctx, span := trace.StartSpan(ctx, op)
	defer span.End()

	start := time.Now()
	q, err := fetch(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 2, "Quote fetch failed", err,
			"operation", op,
			"symbol", symbol,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return q, err
	}

	logger.DebugSkip(ctx, 2, "Quote fetched",
		"operation", op,
		"symbol", symbol,
		"price", q.Price.String(),
		"as_of", q.AsOf,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return q, nil
}
