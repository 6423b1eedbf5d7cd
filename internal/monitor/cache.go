package monitor

import (
	"context"
	"time"

	"vertbot/internal/interfaces"
	"vertbot/internal/logger"
	"vertbot/internal/market"
	"vertbot/internal/types"
)

// PriceCache memoises live quotes for a fixed TTL and previous closes for the
// rest of the market day. The maps are only read or written inside runner
// closures; upstream fetches happen outside them.
type PriceCache struct {
	md     interfaces.MarketData
	runner interfaces.Runner
	hours  market.Hours
	ttl    time.Duration
	now    func() time.Time

	live       map[string]types.CachedQuote
	closes     map[string]types.PriceQuote
	closesDate string
}

var _ interfaces.QuoteSource = (*PriceCache)(nil)

func NewPriceCache(md interfaces.MarketData, runner interfaces.Runner, hours market.Hours, ttl time.Duration) *PriceCache {
	return &PriceCache{
		md:     md,
		runner: runner,
		hours:  hours,
		ttl:    ttl,
		now:    time.Now,
		live:   make(map[string]types.CachedQuote),
		closes: make(map[string]types.PriceQuote),
	}
}

// GetCurrent returns the cached live quote while younger than the TTL,
// otherwise fetches and stores a fresh one. Fetch errors are returned as-is
// and leave the cache untouched. A runner failure is returned before any
// fetch so a stopped executor never looks like a cache miss.
func (c *PriceCache) GetCurrent(ctx context.Context, symbol string) (types.PriceQuote, error) {
	var (
		q   types.PriceQuote
		hit bool
	)
	err := c.runner.Do(ctx, func(context.Context) error {
		if e, ok := c.live[symbol]; ok {
			if c.now().Sub(e.FetchedAt) < c.ttl {
				q, hit = e.Quote, true
			} else {
				delete(c.live, symbol)
			}
		}
		return nil
	})
	if err != nil {
		return types.PriceQuote{}, err
	}
	if hit {
		logger.Debug(ctx, "Live quote cache hit", "symbol", symbol)
		return q, nil
	}

	q, err = c.md.FetchCurrentPrice(ctx, symbol)
	if err != nil {
		return types.PriceQuote{}, err
	}

	err = c.runner.Do(ctx, func(context.Context) error {
		c.live[symbol] = types.CachedQuote{Quote: q, FetchedAt: c.now()}
		return nil
	})
	return q, err
}

// GetPreviousClose serves closes from a map that is dropped whenever the
// market date changes.
func (c *PriceCache) GetPreviousClose(ctx context.Context, symbol string) (types.PriceQuote, error) {
	var (
		q     types.PriceQuote
		hit   bool
		today string
	)
	err := c.runner.Do(ctx, func(context.Context) error {
		today = c.hours.Date(c.now())
		if c.closesDate != today {
			if c.closesDate != "" {
				logger.Debug(ctx, "Refreshing previous close cache", "from", c.closesDate, "to", today, "entries", len(c.closes))
			}
			clear(c.closes)
			c.closesDate = today
		}
		q, hit = c.closes[symbol]
		return nil
	})
	if err != nil {
		return types.PriceQuote{}, err
	}
	if hit {
		return q, nil
	}

	q, err = c.md.FetchClosingPrice(ctx, symbol)
	if err != nil {
		return types.PriceQuote{}, err
	}

	err = c.runner.Do(ctx, func(context.Context) error {
		// A rollover while fetching belongs to the new day's map.
		if c.closesDate == today {
			c.closes[symbol] = q
		}
		return nil
	})
	return q, err
}

// Len reports the number of live and close entries currently held.
func (c *PriceCache) Len(ctx context.Context) (live, closes int, err error) {
	err = c.runner.Do(ctx, func(context.Context) error {
		live, closes = len(c.live), len(c.closes)
		return nil
	})
	return live, closes, err
}
