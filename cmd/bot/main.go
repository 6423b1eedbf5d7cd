package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"vertbot/internal/discord"
	"vertbot/internal/executor"
	"vertbot/internal/health"
	"vertbot/internal/logger"
	"vertbot/internal/monitor"
	"vertbot/internal/trace"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	must(initializeSystem())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(ctx)
	must(err)
	hours, err := initializeHours(cfg)
	must(err)
	guilds, err := initializeGuildStore(ctx, cfg)
	must(err)

	token := os.Getenv("DISCORD_TOKEN")
	if token == "" {
		log.Fatal("DISCORD_TOKEN is not set")
	}
	session, err := discord.NewSession(token)
	must(err)
	sender := discord.NewSender(session)

	fh, err := initializeFinnhub(ctx, cfg)
	must(err)
	md := initializeMarketData(fh)
	newsSvc := initializeNews(ctx, cfg, fh)
	commentator := initializeCommentator(ctx, cfg)

	exec := executor.New(64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		exec.Run(ctx)
	}()

	quotes := monitor.NewPriceCache(md, exec, hours, cfg.PriceTTL())
	mon := initializeMonitor(cfg, hours, guilds, quotes, exec, sender)
	baseReporter, reporter := initializeReporter(cfg, hours, guilds, quotes, exec, sender)

	sched, err := initializeScheduler(cfg, reporter, mon, newsSvc)
	must(err)
	must(sched.Start(ctx))

	router := discord.NewRouter(discord.Deps{
		Prefix:    cfg.Discord.Prefix,
		Hours:     hours,
		Symbols:   guilds.Symbols(),
		Store:     guilds,
		Quotes:    quotes,
		News:      newsSvc,
		LLM:       commentator,
		Reporter:  reporter,
		Scheduler: sched,
		Monitor:   mon,
		Sender:    sender,
	})
	bot := discord.NewBot(session, router, cfg.Discord.DeleteCommand, 2*time.Minute)
	must(bot.Open(ctx))

	wg.Add(2)
	go func() {
		defer wg.Done()
		mon.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		sched.Watch(ctx, cfg.WatchdogInterval())
	}()

	if cfg.Health.Enabled {
		srv := health.New(cfg.Health.Addr, sched, mon, baseReporter)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				logger.ErrorWithErr(ctx, "Health server stopped", err)
			}
		}()
	}

	logger.Info(ctx, "Bot started", "market", hours.String(), "threshold_pct", cfg.Monitor.ThresholdPct,
		"report_cron", cfg.Report.Cron)
	<-ctx.Done()

	shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
	defer done()
	logger.Info(shutdownCtx, "Shutting down...")

	sched.Stop()
	if err := bot.Close(); err != nil {
		logger.Warn(shutdownCtx, "Failed to close discord session", "error", err)
	}
	wg.Wait()
	if err := trace.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "Failed to flush traces", "error", err)
	}
	logger.Info(shutdownCtx, "Shutdown complete")
}
