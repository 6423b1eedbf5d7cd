package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"vertbot/internal/interfaces"
	"vertbot/internal/llm/llmobs"
	"vertbot/internal/llm/noop"
	"vertbot/internal/llm/openai"
	"vertbot/internal/logger"
	"vertbot/internal/market"
	"vertbot/internal/marketdata/finnhub"
	"vertbot/internal/marketdata/marketdataobs"
	"vertbot/internal/monitor"
	"vertbot/internal/news"
	"vertbot/internal/report"
	"vertbot/internal/report/reportobs"
	"vertbot/internal/schedule"
	"vertbot/internal/store"
	"vertbot/internal/trace"
)

// initializeSystem loads .env and sets up logging and tracing.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func loadConfig(ctx context.Context) (*store.Config, error) {
	path := os.Getenv("VERTBOT_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

func initializeHours(cfg *store.Config) (market.Hours, error) {
	oh, om, err := store.ParseClock(cfg.Market.Open)
	if err != nil {
		return market.Hours{}, err
	}
	ch, cm, err := store.ParseClock(cfg.Market.Close)
	if err != nil {
		return market.Hours{}, err
	}
	return market.NewHours(cfg.Location(), oh, om, ch, cm), nil
}

// initializeGuildStore loads the ticker allow-list and opens the JSON guild store.
// A missing allow-list degrades to format-only symbol validation.
func initializeGuildStore(ctx context.Context, cfg *store.Config) (*store.GuildStore, error) {
	symbols, err := store.LoadSymbols(cfg.Storage.SymbolsFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Warn(ctx, "Ticker allow-list not found, accepting any well-formed symbol", "path", cfg.Storage.SymbolsFile)
		symbols = store.NewSymbolList(nil)
	case err != nil:
		return nil, err
	default:
		logger.Info(ctx, "Ticker allow-list loaded", "symbols", symbols.Len())
	}
	return store.NewGuildStore(cfg.Storage.ChannelsFile, cfg.Storage.TickersFile, symbols), nil
}

func initializeFinnhub(ctx context.Context, cfg *store.Config) (*finnhub.Client, error) {
	key := os.Getenv("FINNHUB_API_KEY")
	if key == "" {
		return nil, errors.New("FINNHUB_API_KEY is not set")
	}
	client := finnhub.New(finnhub.Params{
		BaseURL:        cfg.Finnhub.BaseURL,
		APIKey:         key,
		CallsPerMinute: cfg.Finnhub.CallsPerMinute,
		Timeout:        cfg.FetchTimeout(),
		Location:       cfg.Location(),
	})
	logger.Info(ctx, "Finnhub client ready", "calls_per_minute", cfg.Finnhub.CallsPerMinute)
	return client, nil
}

// initializeMarketData wraps the provider with observability middleware.
func initializeMarketData(client *finnhub.Client) interfaces.MarketData {
	return marketdataobs.Wrap(client)
}

func initializeNews(ctx context.Context, cfg *store.Config, client *finnhub.Client) *news.Service {
	svcCfg := news.ServiceConfigFromStore(cfg)
	if !svcCfg.Enabled {
		logger.Warn(ctx, "News lookups disabled in config")
	}
	return news.NewService(client, news.NewScraper(news.GoogleNewsURL, svcCfg.ScraperTimeout), svcCfg)
}

// initializeCommentator picks the LLM backend and wraps it with observability.
func initializeCommentator(ctx context.Context, cfg *store.Config) interfaces.Commentator {
	var c interfaces.Commentator

	switch strings.ToUpper(cfg.LLM.Provider) {
	case "OPENAI":
		c = openai.NewCommentator(cfg, os.Getenv("OPENAI_API_KEY"))
	case "OLLAMA":
		c = openai.NewCommentator(cfg, "ollama")
	default:
		c = noop.NewCommentator()
		logger.Warn(ctx, "No LLM provider configured - !ask will return a notice")
	}

	return llmobs.Wrap(c)
}

func initializeMonitor(cfg *store.Config, hours market.Hours, guilds interfaces.GuildStore, quotes interfaces.QuoteSource,
	runner interfaces.Runner, sender interfaces.Sender) *monitor.Monitor {
	announcer := monitor.NewAnnouncer(cfg.Monitor.ThresholdPct)
	return monitor.New(monitor.SettingsFromConfig(cfg), hours, guilds, quotes, announcer, runner, sender)
}

// initializeScheduler registers the closing report and the midnight reset.
func initializeScheduler(cfg *store.Config, rep interfaces.Reporter, mon *monitor.Monitor, newsSvc *news.Service) (*schedule.Scheduler, error) {
	sched := schedule.New(cfg.Location())

	err := sched.Register(schedule.Job{
		ID:   schedule.JobDailyReport,
		Spec: cfg.Report.Cron,
		Run: func(ctx context.Context) error {
			_, err := rep.RunDaily(ctx)
			return err
		},
	})
	if err != nil {
		return nil, err
	}

	err = sched.Register(schedule.Job{
		ID:   schedule.JobDailyReset,
		Spec: cfg.Report.ResetCron,
		Run: func(ctx context.Context) error {
			newsSvc.Prune(ctx)
			return mon.ResetDaily(ctx)
		},
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}

// initializeReporter builds the daily reporter. The concrete value is kept
// for state inspection; the wrapped one is what jobs and commands call.
func initializeReporter(cfg *store.Config, hours market.Hours, guilds interfaces.GuildStore, quotes interfaces.QuoteSource,
	runner interfaces.Runner, sender interfaces.Sender) (*report.Reporter, interfaces.Reporter) {
	base := report.New(hours, guilds, quotes, runner, sender, cfg.FetchTimeout(), cfg.SymbolDelay())
	return base, reportobs.Wrap(base)
}
