package interfaces

import (
	"context"

	"vertbot/internal/types"
)

type NewsSource interface {
	Headlines(ctx context.Context, symbol string, max int) ([]types.NewsArticle, error)
	// MarketHeadlines returns general market news not tied to one symbol.
	MarketHeadlines(ctx context.Context, max int) ([]types.NewsArticle, error)
}
