package discord

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"vertbot/internal/format"
	"vertbot/internal/interfaces"
	"vertbot/internal/logger"
	"vertbot/internal/market"
	"vertbot/internal/news"
	"vertbot/internal/store"
	"vertbot/internal/trace"
	"vertbot/internal/types"
)

// TickerStore is the per-guild persistence the commands edit.
type TickerStore interface {
	ReportChannel(guildID string) (string, error)
	SetReportChannel(guildID, channelID string) (string, error)
	Tickers(guildID string) ([]string, error)
	AddTicker(guildID, symbol string) (string, int, error)
	RemoveTicker(guildID, symbol string) (int, error)
	ClearTickers(guildID string) error
}

type SchedulerControl interface {
	Health() types.SchedulerHealth
	ForceRestart(ctx context.Context) error
}

type MonitorStatus interface {
	Status() types.MonitorStatus
}

// Request is one parsed command invocation.
type Request struct {
	GuildID   string
	ChannelID string
	AuthorID  string
	Author    string
	Command   string
	Args      []string
	Admin     bool // author holds Manage Server in this guild
}

type Deps struct {
	Prefix    string
	Hours     market.Hours
	Symbols   *store.SymbolList // nil accepts any well-formed symbol
	Store     TickerStore
	Quotes    interfaces.QuoteSource
	News      interfaces.NewsSource
	LLM       interfaces.Commentator
	Reporter  interfaces.Reporter
	Scheduler SchedulerControl
	Monitor   MonitorStatus
	Sender    interfaces.Sender
}

type handler func(ctx context.Context, req Request) error

type command struct {
	run       handler
	admin     bool
	guildOnly bool
	usage     string // non-empty means at least one argument is required
}

// Router dispatches prefixed chat commands.
type Router struct {
	deps     Deps
	commands map[string]command
	now      func() time.Time
}

func NewRouter(deps Deps) *Router {
	if deps.Prefix == "" {
		deps.Prefix = "!"
	}
	r := &Router{deps: deps, now: time.Now}
	r.commands = map[string]command{
		"price":            {run: r.price, usage: "price AAPL"},
		"current":          {run: r.current, usage: "current AAPL"},
		"news":             {run: r.news},
		"stocknews":        {run: r.stockNews, usage: "stocknews AAPL"},
		"askai":            {run: r.ask, usage: "askai Is AAPL overvalued?"},
		"ask":              {run: r.ask, usage: "ask Is AAPL overvalued?"},
		"addticker":        {run: r.addTicker, admin: true, guildOnly: true, usage: "addticker AAPL"},
		"removeticker":     {run: r.removeTicker, admin: true, guildOnly: true, usage: "removeticker AAPL"},
		"listtickers":      {run: r.listTickers, guildOnly: true},
		"cleartickers":     {run: r.clearTickers, admin: true, guildOnly: true},
		"resettickers":     {run: r.clearTickers, admin: true, guildOnly: true},
		"setreportchannel": {run: r.setReportChannel, admin: true, guildOnly: true},
		"report":           {run: r.report, guildOnly: true},
		"status":           {run: r.status},
		"restartscheduler": {run: r.restartScheduler, admin: true},
		"tickerhelp":       {run: r.help},
		"help":             {run: r.help},
	}
	return r
}

func (r *Router) Prefix() string {
	return r.deps.Prefix
}

// Parse splits "!cmd a b" into the lower-cased command and its arguments.
func Parse(content, prefix string) (string, []string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(content), prefix)
	if !ok {
		return "", nil, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// Known reports whether name is a registered command.
func (r *Router) Known(name string) bool {
	_, ok := r.commands[name]
	return ok
}

// Handle runs req. Handler failures are reported back to the channel and
// returned for logging.
func (r *Router) Handle(ctx context.Context, req Request) error {
	cmd, ok := r.commands[req.Command]
	if !ok {
		return nil
	}
	ctx, span := trace.StartCommand(ctx, req.Command, req.GuildID, req.AuthorID)
	defer span.End()
	logger.Info(ctx, "Command received", "command", req.Command, "user", req.Author, "guild", req.GuildID, "args", req.Args)

	if cmd.guildOnly && req.GuildID == "" {
		return r.reply(ctx, req, format.Error("This command only works in a server."))
	}
	if cmd.admin && !req.Admin {
		return r.reply(ctx, req, format.Error("You need the Manage Server permission to use this command."))
	}
	if cmd.usage != "" && len(req.Args) == 0 {
		return r.reply(ctx, req, format.Error("Missing required argument.", "Usage: `"+r.deps.Prefix+cmd.usage+"`"))
	}

	err := r.safeRun(ctx, cmd.run, req)
	if err == nil {
		return nil
	}
	logger.ErrorWithErr(ctx, "Command failed", err, "command", req.Command, "guild", req.GuildID)
	if rerr := r.reply(ctx, req, format.Error(userMessage(err))); rerr != nil {
		return errors.Join(err, rerr)
	}
	return err
}

func (r *Router) safeRun(ctx context.Context, h handler, req Request) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("command %s panicked: %v", req.Command, p)
		}
	}()
	return h(ctx, req)
}

func userMessage(err error) string {
	var mde *types.MarketDataError
	switch {
	case errors.Is(err, types.ErrInvalidSymbol), errors.Is(err, types.ErrNoData):
		if errors.As(err, &mde) {
			return fmt.Sprintf("Invalid ticker symbol `%s`. Please check the symbol and try again.", mde.Symbol)
		}
		return "Invalid ticker symbol. Please use a valid stock symbol (1-5 letters)."
	case errors.As(err, &mde):
		return fmt.Sprintf("Failed to fetch market data for `%s`. Please try again later.", mde.Symbol)
	case errors.Is(err, news.ErrDisabled):
		return "News lookups are disabled on this bot."
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out. Please try again."
	}
	return "Something went wrong while processing your command."
}

func (r *Router) reply(ctx context.Context, req Request, msg types.Message) error {
	return r.deps.Sender.Send(ctx, req.ChannelID, msg)
}

// symbolArg validates the first argument against the allow-list. On failure
// it has already replied and ok is false.
func (r *Router) symbolArg(ctx context.Context, req Request) (symbol string, ok bool, err error) {
	symbol, verr := r.deps.Symbols.Validate(req.Args[0])
	if verr != nil {
		logger.Debug(ctx, "Rejected ticker", "command", req.Command, "input", req.Args[0], "error", verr)
		return "", false, r.reply(ctx, req, format.Error(
			fmt.Sprintf("`%s` is not a supported ticker symbol.", store.NormalizeSymbol(req.Args[0])),
			"Use a listed stock symbol such as `AAPL`"))
	}
	return symbol, true, nil
}

func (r *Router) price(ctx context.Context, req Request) error {
	symbol, ok, err := r.symbolArg(ctx, req)
	if !ok {
		return err
	}
	q, err := r.deps.Quotes.GetPreviousClose(ctx, symbol)
	if err != nil {
		return err
	}
	msg := format.Quote(q, decimal.Zero, false, r.now())
	msg.Footer = "Closing price as of " + q.AsOf
	return r.reply(ctx, req, msg)
}

func (r *Router) current(ctx context.Context, req Request) error {
	now := r.now()
	if !r.deps.Hours.IsOpen(now) {
		return r.reply(ctx, req, format.Notice("🕐 Market Closed",
			fmt.Sprintf("Live prices are only available during market hours (%s). Use `%sprice` for the last close.",
				r.deps.Hours, r.deps.Prefix), format.ColorWarning))
	}

	symbol, ok, err := r.symbolArg(ctx, req)
	if !ok {
		return err
	}
	q, err := r.deps.Quotes.GetCurrent(ctx, symbol)
	if err != nil {
		return err
	}
	var prev decimal.Decimal
	if pc, err := r.deps.Quotes.GetPreviousClose(ctx, symbol); err == nil {
		prev = pc.Price
	} else {
		logger.Warn(ctx, "Previous close unavailable for live quote", "symbol", symbol, "error", err)
	}
	msg := format.Quote(q, prev, true, now)
	msg.Footer = "Live price as of " + r.deps.Hours.In(now).Format("2006-01-02 15:04:05 MST")
	return r.reply(ctx, req, msg)
}

const (
	newsLimit       = 5
	marketNewsLimit = 15
	maxAskTickers   = 3
)

// news shows general market headlines, or a stock's headlines when given a symbol.
func (r *Router) news(ctx context.Context, req Request) error {
	if len(req.Args) > 0 {
		return r.stockNews(ctx, req)
	}
	articles, err := r.deps.News.MarketHeadlines(ctx, marketNewsLimit)
	if err != nil {
		return err
	}
	return r.reply(ctx, req, format.News("", articles, marketNewsLimit, r.now()))
}

func (r *Router) stockNews(ctx context.Context, req Request) error {
	symbol, ok, err := r.symbolArg(ctx, req)
	if !ok {
		return err
	}
	articles, err := r.deps.News.Headlines(ctx, symbol, newsLimit)
	if err != nil {
		return err
	}
	return r.reply(ctx, req, format.News(symbol, articles, newsLimit, r.now()))
}

func (r *Router) ask(ctx context.Context, req Request) error {
	question := strings.Join(req.Args, " ")
	answer, err := r.deps.LLM.Ask(ctx, r.askPrompt(ctx, question))
	if err != nil {
		return err
	}
	return r.reply(ctx, req, format.Answer(question, answer, r.now()))
}

// askPrompt adds recent headlines for every ticker the question mentions.
// Questions without tickers are sent as-is.
func (r *Router) askPrompt(ctx context.Context, question string) string {
	tickers := r.mentionedTickers(question)
	if len(tickers) == 0 {
		return question
	}

	var b strings.Builder
	b.WriteString("Based on the following real news headlines, give an investor-friendly summary and analysis for these stocks.\n")
	b.WriteString("Question: " + question + "\n")
	for _, t := range tickers {
		articles, err := r.deps.News.Headlines(ctx, t, newsLimit)
		if err != nil {
			logger.Warn(ctx, "Headlines unavailable for AI context", "symbol", t, "error", err)
		}
		b.WriteString("\n" + t + ":\n")
		if len(articles) == 0 {
			b.WriteString("No recent news found.\n")
			continue
		}
		for _, a := range articles {
			b.WriteString("- " + a.Title + "\n")
		}
	}
	return b.String()
}

var tickerWord = regexp.MustCompile(`\$?\b[A-Za-z]{1,5}[0-9]?(?:\.[A-Za-z])?\b`)

// mentionedTickers picks ticker-like words out of text, in order, without
// duplicates. With an allow-list any casing counts; without one only words
// written in capitals or with a $ prefix do, so plain English is skipped.
func (r *Router) mentionedTickers(text string) []string {
	listed := r.deps.Symbols.Len() > 0
	var out []string
	seen := make(map[string]bool)
	for _, w := range tickerWord.FindAllString(text, -1) {
		dollar := strings.HasPrefix(w, "$")
		w = strings.TrimPrefix(w, "$")
		if len(w) < 2 || (!listed && !dollar && w != strings.ToUpper(w)) {
			continue
		}
		sym, err := r.deps.Symbols.Validate(w)
		if err != nil || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
		if len(out) == maxAskTickers {
			break
		}
	}
	return out
}

func (r *Router) addTicker(ctx context.Context, req Request) error {
	symbol, ok, err := r.symbolArg(ctx, req)
	if !ok {
		return err
	}
	// The ticker must resolve upstream before it is stored.
	if _, err := r.deps.Quotes.GetPreviousClose(ctx, symbol); err != nil {
		if errors.Is(err, types.ErrNoData) {
			return r.reply(ctx, req, format.Error(fmt.Sprintf("Could not validate ticker `%s`. Please check the symbol and try again.", symbol)))
		}
		return err
	}

	sym, n, err := r.deps.Store.AddTicker(req.GuildID, symbol)
	switch {
	case errors.Is(err, store.ErrTickerExists):
		return r.reply(ctx, req, format.Notice("ℹ️ Already Monitored",
			fmt.Sprintf("`%s` is already in your monitoring list.", sym), format.ColorInfo))
	case errors.Is(err, types.ErrInvalidSymbol):
		return r.reply(ctx, req, format.Error(fmt.Sprintf("`%s` is not a supported ticker symbol.", symbol)))
	case err != nil:
		return err
	}
	logger.Info(ctx, "Ticker added", "guild", req.GuildID, "symbol", sym, "count", n)
	return r.reply(ctx, req, format.Notice("✅ Ticker Added",
		fmt.Sprintf("Added `%s` to your monitoring list! You now have %d ticker(s).", sym, n), format.ColorSuccess))
}

func (r *Router) removeTicker(ctx context.Context, req Request) error {
	symbol := store.NormalizeSymbol(req.Args[0])
	n, err := r.deps.Store.RemoveTicker(req.GuildID, symbol)
	if errors.Is(err, store.ErrTickerMissing) {
		return r.reply(ctx, req, format.Notice("ℹ️ Not Monitored",
			fmt.Sprintf("`%s` is not in your monitoring list.", symbol), format.ColorInfo))
	}
	if err != nil {
		return err
	}
	logger.Info(ctx, "Ticker removed", "guild", req.GuildID, "symbol", symbol, "count", n)
	return r.reply(ctx, req, format.Notice("✅ Ticker Removed",
		fmt.Sprintf("Removed `%s` from your monitoring list! You now have %d ticker(s).", symbol, n), format.ColorSuccess))
}

func (r *Router) listTickers(ctx context.Context, req Request) error {
	tickers, err := r.deps.Store.Tickers(req.GuildID)
	if err != nil {
		return err
	}
	p := r.deps.Prefix
	if len(tickers) == 0 {
		return r.reply(ctx, req, format.Notice("📋 Your Monitoring List", fmt.Sprintf(
			"No tickers configured yet!\n\nUse `%saddticker AAPL` to add a stock, then `%ssetreportchannel` to set up daily reports.",
			p, p), format.ColorInfo))
	}
	sort.Strings(tickers)
	msg := format.Notice("📋 Your Monitoring List", format.TickerList(tickers, 3), format.ColorInfo)
	msg.Footer = fmt.Sprintf("Total: %d ticker(s)", len(tickers))
	return r.reply(ctx, req, msg)
}

func (r *Router) clearTickers(ctx context.Context, req Request) error {
	if err := r.deps.Store.ClearTickers(req.GuildID); err != nil {
		return err
	}
	logger.Info(ctx, "Tickers cleared", "guild", req.GuildID)
	return r.reply(ctx, req, format.Notice("🗑️ Tickers Cleared",
		fmt.Sprintf("Cleared all tickers from your monitoring list. Use `%saddticker SYMBOL` to add new ones.", r.deps.Prefix),
		format.ColorSuccess))
}

func (r *Router) setReportChannel(ctx context.Context, req Request) error {
	prev, err := r.deps.Store.SetReportChannel(req.GuildID, req.ChannelID)
	if err != nil {
		return err
	}
	if prev == req.ChannelID {
		return r.reply(ctx, req, format.Notice("ℹ️ Report Channel",
			fmt.Sprintf("<#%s> is already the report channel.", req.ChannelID), format.ColorInfo))
	}
	logger.Info(ctx, "Report channel set", "guild", req.GuildID, "channel", req.ChannelID, "previous", prev)
	return r.reply(ctx, req, format.Notice("✅ Report Channel Set",
		fmt.Sprintf("Daily market reports and price alerts will be sent to <#%s>.", req.ChannelID), format.ColorSuccess))
}

func (r *Router) report(ctx context.Context, req Request) error {
	tickers, err := r.deps.Store.Tickers(req.GuildID)
	if err != nil {
		return err
	}
	if len(tickers) == 0 {
		return r.reply(ctx, req, format.Error("No tickers configured for this server.",
			fmt.Sprintf("Use `%saddticker SYMBOL` first", r.deps.Prefix)))
	}
	return r.deps.Reporter.SendGuildReport(ctx, req.GuildID, req.ChannelID, tickers)
}

func (r *Router) status(ctx context.Context, req Request) error {
	text := format.Status(r.deps.Monitor.Status(), r.deps.Scheduler.Health(), r.deps.Hours.String(), r.now())
	return r.reply(ctx, req, types.Message{Text: text})
}

func (r *Router) restartScheduler(ctx context.Context, req Request) error {
	if err := r.deps.Scheduler.ForceRestart(ctx); err != nil {
		return r.reply(ctx, req, format.Error("Scheduler restart failed: "+err.Error()))
	}
	h := r.deps.Scheduler.Health()
	logger.Warn(ctx, "Scheduler restarted by command", "user", req.Author, "guild", req.GuildID, "restarts", h.Restarts)
	return r.reply(ctx, req, format.Notice("🔄 Scheduler Restarted",
		fmt.Sprintf("%d job(s) registered.", len(h.Jobs)), format.ColorSuccess))
}

func (r *Router) help(ctx context.Context, req Request) error {
	return r.reply(ctx, req, format.Help(r.deps.Prefix))
}
