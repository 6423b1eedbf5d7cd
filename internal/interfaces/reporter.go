package interfaces

import "context"

type Reporter interface {
	// RunDaily sends the closing report at most once per market date.
	RunDaily(ctx context.Context) (int, error)
	SendGuildReport(ctx context.Context, guildID, channelID string, tickers []string) error
}
