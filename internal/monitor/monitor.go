package monitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"vertbot/internal/format"
	"vertbot/internal/interfaces"
	"vertbot/internal/logger"
	"vertbot/internal/market"
	"vertbot/internal/store"
	"vertbot/internal/types"
)

type Settings struct {
	PollInterval time.Duration
	SymbolDelay  time.Duration
	ErrorBackoff time.Duration
	FetchTimeout time.Duration
}

func SettingsFromConfig(cfg *store.Config) Settings {
	return Settings{
		PollInterval: cfg.PollInterval(),
		SymbolDelay:  cfg.SymbolDelay(),
		ErrorBackoff: cfg.ErrorBackoff(),
		FetchTimeout: cfg.FetchTimeout(),
	}
}

// Monitor polls every monitored guild's tickers while the market is open and
// posts an alert when a move clears the Announcer.
type Monitor struct {
	settings  Settings
	hours     market.Hours
	guilds    interfaces.GuildStore
	quotes    interfaces.QuoteSource
	announcer *Announcer
	runner    interfaces.Runner
	sender    interfaces.Sender

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	status types.MonitorStatus
}

func New(settings Settings, hours market.Hours, guilds interfaces.GuildStore, quotes interfaces.QuoteSource,
	announcer *Announcer, runner interfaces.Runner, sender interfaces.Sender) *Monitor {
	return &Monitor{
		settings:  settings,
		hours:     hours,
		guilds:    guilds,
		quotes:    quotes,
		announcer: announcer,
		runner:    runner,
		sender:    sender,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Run loops until ctx is cancelled. A failed or panicking iteration is logged
// and followed by ErrorBackoff instead of the regular poll interval.
func (m *Monitor) Run(ctx context.Context) {
	logger.Info(ctx, "Price monitor started",
		"poll_interval", m.settings.PollInterval.String(),
		"threshold_pct", m.announcer.Threshold(),
		"market_hours", m.hours.String(),
	)

	for {
		wait := m.settings.PollInterval
		if err := m.safeTick(ctx); err != nil && ctx.Err() == nil {
			logger.ErrorWithErr(ctx, "Monitor iteration failed", err, "backoff", m.settings.ErrorBackoff.String())
			m.recordError(err)
			wait = m.settings.ErrorBackoff
		}
		if err := m.sleep(ctx, wait); err != nil {
			logger.Info(ctx, "Price monitor stopped")
			return
		}
	}
}

func (m *Monitor) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("monitor panic: %v\n%s", r, debug.Stack())
		}
	}()
	return m.Tick(ctx)
}

// Tick does nothing while the market is closed, otherwise runs one Cycle.
func (m *Monitor) Tick(ctx context.Context) error {
	open := m.hours.IsOpen(m.now())
	m.mu.Lock()
	m.status.MarketOpen = open
	m.mu.Unlock()

	if !open {
		logger.Debug(ctx, "Market closed, skipping poll")
		return nil
	}
	_, err := m.Cycle(ctx)
	return err
}

// Cycle checks every ticker of every monitored guild once and returns the
// number of alerts sent. Per-ticker failures are logged and skipped; only a
// config load failure or cancellation is returned.
func (m *Monitor) Cycle(ctx context.Context) (int, error) {
	timer := logger.StartOperation(ctx, "monitor.Cycle")
	ctx = timer.Context()

	configs, err := m.guilds.LoadGuildConfigs()
	if err != nil {
		err = fmt.Errorf("load guild configs: %w", err)
		timer.EndWithError(err)
		return 0, err
	}

	ids := make([]string, 0, len(configs))
	for id := range configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var alerts, failures, checked int
	for _, id := range ids {
		guild := configs[id]
		if !guild.Monitored() {
			logger.Debug(ctx, "Guild not monitored", "guild_id", id,
				"has_channel", guild.ReportChannelID != "", "tickers", len(guild.Tickers))
			continue
		}

		for _, symbol := range guild.Tickers {
			if checked > 0 {
				if err := m.sleep(ctx, m.settings.SymbolDelay); err != nil {
					timer.EndWithError(err)
					return alerts, err
				}
			}
			checked++

			sent, err := m.checkTicker(ctx, guild, symbol)
			if err != nil {
				if ctx.Err() != nil {
					timer.EndWithError(ctx.Err())
					return alerts, ctx.Err()
				}
				failures++
				logger.Warn(ctx, "Price check failed", "guild_id", id, "symbol", symbol, "error", err)
				continue
			}
			if sent {
				alerts++
			}
		}
	}

	m.mu.Lock()
	m.status.LastCycle = m.now()
	m.status.Cycles++
	m.status.AlertsSent += alerts
	m.status.FetchErrors += failures
	m.mu.Unlock()

	timer.End("guilds", len(ids), "checked", checked, "alerts", alerts, "failures", failures)
	return alerts, nil
}

func (m *Monitor) checkTicker(ctx context.Context, guild types.GuildConfig, symbol string) (bool, error) {
	fctx, cancel := context.WithTimeout(ctx, m.settings.FetchTimeout)
	defer cancel()

	prev, err := m.quotes.GetPreviousClose(fctx, symbol)
	if err != nil {
		return false, fmt.Errorf("previous close: %w", err)
	}
	if !prev.Price.IsPositive() {
		return false, &types.MarketDataError{Symbol: symbol, Reason: "non-positive previous close", Err: types.ErrNoData}
	}
	cur, err := m.quotes.GetCurrent(fctx, symbol)
	if err != nil {
		return false, fmt.Errorf("current price: %w", err)
	}

	pct := format.ChangePct(cur.Price, prev.Price)
	pctF := pct.InexactFloat64()

	var announce bool
	if err := m.runner.Do(ctx, func(context.Context) error {
		announce = m.announcer.ShouldAnnounce(guild.GuildID, symbol, pctF)
		return nil
	}); err != nil {
		return false, err
	}
	if !announce {
		logger.Debug(ctx, "Change below announce gate", "guild_id", guild.GuildID, "symbol", symbol, "pct_change", pctF)
		return false, nil
	}

	sctx, scancel := context.WithTimeout(ctx, m.settings.FetchTimeout)
	defer scancel()
	if err := m.sender.Send(sctx, guild.ReportChannelID, format.Alert(symbol, cur.Price, prev.Price, pct)); err != nil {
		// Not retried; the record stands so the same move is not re-sent.
		logger.ErrorWithErr(ctx, "Failed to send price alert", err,
			"guild_id", guild.GuildID, "channel_id", guild.ReportChannelID, "symbol", symbol)
		return false, nil
	}

	logger.Alert(ctx, guild.GuildID, symbol, pctF,
		"channel_id", guild.ReportChannelID,
		"price", cur.Price.String(),
		"previous_close", prev.Price.String(),
	)
	return true, nil
}

// ResetDaily clears all announcement records.
func (m *Monitor) ResetDaily(ctx context.Context) error {
	return m.runner.Do(ctx, func(ctx context.Context) error {
		n := m.announcer.Len()
		m.announcer.ResetDaily()
		logger.Info(ctx, "Announcement records cleared", "cleared", n)
		return nil
	})
}

func (m *Monitor) Status() types.MonitorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Monitor) recordError(err error) {
	m.mu.Lock()
	m.status.LastError = err.Error()
	m.mu.Unlock()
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
