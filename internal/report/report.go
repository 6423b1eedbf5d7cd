package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"vertbot/internal/format"
	"vertbot/internal/interfaces"
	"vertbot/internal/logger"
	"vertbot/internal/market"
	"vertbot/internal/types"
)

// Reporter sends the once-per-day closing report to every monitored guild
// and serves manual reports. state and running are only touched inside
// runner closures.
type Reporter struct {
	hours        market.Hours
	guilds       interfaces.GuildStore
	quotes       interfaces.QuoteSource
	runner       interfaces.Runner
	sender       interfaces.Sender
	fetchTimeout time.Duration
	symbolDelay  time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	state   types.ReportState
	running bool
}

var _ interfaces.Reporter = (*Reporter)(nil)

func New(hours market.Hours, guilds interfaces.GuildStore, quotes interfaces.QuoteSource, runner interfaces.Runner,
	sender interfaces.Sender, fetchTimeout, symbolDelay time.Duration) *Reporter {
	return &Reporter{
		hours:        hours,
		guilds:       guilds,
		quotes:       quotes,
		runner:       runner,
		sender:       sender,
		fetchTimeout: fetchTimeout,
		symbolDelay:  symbolDelay,
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

// RunDaily sends today's report unless it already went out. It returns the
// number of guilds that received one.
func (r *Reporter) RunDaily(ctx context.Context) (int, error) {
	today := r.hours.Date(r.now())

	var skip bool
	err := r.runner.Do(ctx, func(ctx context.Context) error {
		if r.state.LastReportDate != today {
			if r.state.LastReportDate != "" {
				logger.Debug(ctx, "Report state rolled over", "from", r.state.LastReportDate, "to", today)
			}
			r.state = types.ReportState{LastReportDate: today}
		}
		// running guards against a second fire landing mid-report
		if r.state.Sent || r.running {
			skip = true
			return nil
		}
		r.running = true
		return nil
	})
	if err != nil {
		return 0, err
	}
	if skip {
		logger.Info(ctx, "Daily report already sent", "date", today)
		return 0, nil
	}
	defer func() {
		_ = r.runner.Do(context.WithoutCancel(ctx), func(context.Context) error {
			r.running = false
			return nil
		})
	}()

	configs, err := r.guilds.LoadGuildConfigs()
	if err != nil {
		return 0, fmt.Errorf("load guild configs: %w", err)
	}

	ids := make([]string, 0, len(configs))
	for id := range configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sent := 0
	for _, id := range ids {
		guild := configs[id]
		if !guild.Monitored() {
			logger.Debug(ctx, "Skipping daily report for guild", "guild_id", id,
				"has_channel", guild.ReportChannelID != "", "tickers", len(guild.Tickers))
			continue
		}
		if err := r.send(ctx, "daily", guild.GuildID, guild.ReportChannelID, guild.Tickers); err != nil {
			if ctx.Err() != nil {
				return sent, ctx.Err()
			}
			logger.ErrorWithErr(ctx, "Failed to send daily report", err, "guild_id", id, "channel_id", guild.ReportChannelID)
			continue
		}
		sent++
	}

	err = r.runner.Do(context.WithoutCancel(ctx), func(context.Context) error {
		r.state.Sent = true
		r.state.LastReportDate = today
		return nil
	})
	return sent, err
}

// SendGuildReport posts a manual report. It never touches the daily state.
func (r *Reporter) SendGuildReport(ctx context.Context, guildID, channelID string, tickers []string) error {
	if channelID == "" || len(tickers) == 0 {
		return nil
	}
	return r.send(ctx, "manual", guildID, channelID, tickers)
}

// State returns a copy of the daily report state.
func (r *Reporter) State(ctx context.Context) types.ReportState {
	var st types.ReportState
	_ = r.runner.Do(ctx, func(context.Context) error {
		st = r.state
		return nil
	})
	return st
}

func (r *Reporter) send(ctx context.Context, kind, guildID, channelID string, tickers []string) error {
	lines, unavailable, err := r.collect(ctx, tickers)
	if err != nil {
		return err
	}

	sctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()
	if err := r.sender.Send(sctx, channelID, format.Report(kind, lines, unavailable, r.now())); err != nil {
		return err
	}
	logger.Report(ctx, guildID, len(tickers), len(unavailable), "kind", kind, "channel_id", channelID)
	return nil
}

// collect fetches each ticker's price and previous close. Failed tickers are
// returned in unavailable rather than aborting the report.
func (r *Reporter) collect(ctx context.Context, tickers []string) ([]types.ReportLine, []string, error) {
	lines := make([]types.ReportLine, 0, len(tickers))
	var unavailable []string

	for i, sym := range tickers {
		if i > 0 {
			if err := r.sleep(ctx, r.symbolDelay); err != nil {
				return nil, nil, err
			}
		}
		line, err := r.line(ctx, sym)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			logger.Warn(ctx, "Report quote unavailable", "symbol", sym, "error", err)
			unavailable = append(unavailable, sym)
			continue
		}
		lines = append(lines, line)
	}
	return lines, unavailable, nil
}

func (r *Reporter) line(ctx context.Context, symbol string) (types.ReportLine, error) {
	fctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	cur, err := r.quotes.GetCurrent(fctx, symbol)
	if err != nil {
		return types.ReportLine{}, err
	}
	line := types.ReportLine{Symbol: symbol, Price: cur.Price, AsOf: cur.AsOf}

	// A missing baseline still reports the price, just without a change.
	prev, err := r.quotes.GetPreviousClose(fctx, symbol)
	if err != nil {
		logger.Debug(ctx, "Previous close unavailable for report", "symbol", symbol, "error", err)
		return line, nil
	}
	line.PreviousClose = prev.Price
	line.ChangePct = format.ChangePct(cur.Price, prev.Price)
	return line, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
