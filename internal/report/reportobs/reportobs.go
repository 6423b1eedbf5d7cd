package reportobs

import (
	"context"
	"time"

	"vertbot/internal/interfaces"
	"vertbot/internal/logger"
	"vertbot/internal/trace"
)

type observableReporter struct {
	reporter interfaces.Reporter
}

var _ interfaces.Reporter = (*observableReporter)(nil)

func Wrap(reporter interfaces.Reporter) interfaces.Reporter {
	return &observableReporter{
		reporter: reporter,
	}
}

func (or *observableReporter) RunDaily(ctx context.Context) (int, error) {
	ctx, span := trace.StartSpan(ctx, "report.RunDaily")
	defer span.End()

	start := time.Now()
	logger.InfoSkip(ctx, 1, "Starting daily market report")

	sent, err := or.reporter.RunDaily(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Daily market report failed", err,
			"guilds_sent", sent,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return sent, err
	}

	logger.InfoSkip(ctx, 1, "Daily market report completed",
		"guilds_sent", sent,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return sent, nil
}

func (or *observableReporter) SendGuildReport(ctx context.Context, guildID, channelID string, tickers []string) error {
	ctx, span := trace.StartSpan(ctx, "report.SendGuildReport")
	defer span.End()

	start := time.Now()
	logger.DebugSkip(ctx, 1, "Sending manual market report",
		"guild_id", guildID,
		"channel_id", channelID,
		"tickers", len(tickers),
	)

	if err := or.reporter.SendGuildReport(ctx, guildID, channelID, tickers); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Manual market report failed", err,
			"guild_id", guildID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}

	logger.DebugSkip(ctx, 1, "Manual market report sent",
		"guild_id", guildID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
