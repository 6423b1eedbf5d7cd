package discord

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/shopspring/decimal"

	"vertbot/internal/market"
	"vertbot/internal/store"
	"vertbot/internal/types"
)

type fakeQuotes struct {
	current map[string]string
	closes  map[string]string
	calls   []string
}

func (f *fakeQuotes) GetCurrent(_ context.Context, symbol string) (types.PriceQuote, error) {
	f.calls = append(f.calls, "c:"+symbol)
	p, ok := f.current[symbol]
	if !ok {
		return types.PriceQuote{}, &types.MarketDataError{Symbol: symbol, Reason: "no price data available", Err: types.ErrNoData}
	}
	return types.PriceQuote{Symbol: symbol, Price: decimal.RequireFromString(p), AsOf: "2024-03-12"}, nil
}

func (f *fakeQuotes) GetPreviousClose(_ context.Context, symbol string) (types.PriceQuote, error) {
	f.calls = append(f.calls, "pc:"+symbol)
	p, ok := f.closes[symbol]
	if !ok {
		return types.PriceQuote{}, &types.MarketDataError{Symbol: symbol, Reason: "no price data available", Err: types.ErrNoData}
	}
	return types.PriceQuote{Symbol: symbol, Price: decimal.RequireFromString(p), AsOf: "2024-03-11"}, nil
}

type sent struct {
	channel string
	msg     types.Message
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeSender) Send(_ context.Context, channelID string, msg types.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{channelID, msg})
	return nil
}

func (f *fakeSender) last(t *testing.T) types.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("Expected a reply")
	}
	return f.sent[len(f.sent)-1].msg
}

type fakeNews struct {
	err     error
	symbols []string
	market  int
}

func (f *fakeNews) Headlines(_ context.Context, symbol string, max int) ([]types.NewsArticle, error) {
	f.symbols = append(f.symbols, symbol)
	if f.err != nil {
		return nil, f.err
	}
	return []types.NewsArticle{{Symbol: symbol, Title: symbol + " beats", URL: "https://x/1", Source: "Reuters"}}, nil
}

func (f *fakeNews) MarketHeadlines(_ context.Context, max int) ([]types.NewsArticle, error) {
	f.market++
	var out []types.NewsArticle
	for i := 0; i < 20 && i < max; i++ {
		out = append(out, types.NewsArticle{Title: "Stocks move", URL: "https://x/m", Source: "CNBC"})
	}
	return out, nil
}

type fakeLLM struct{ prompt string }

func (f *fakeLLM) Ask(_ context.Context, q string) (string, error) {
	f.prompt = q
	return "answer", nil
}

type fakeReporter struct {
	guild, channel string
	tickers        []string
}

func (f *fakeReporter) RunDaily(context.Context) (int, error) { return 0, nil }

func (f *fakeReporter) SendGuildReport(_ context.Context, guildID, channelID string, tickers []string) error {
	f.guild, f.channel, f.tickers = guildID, channelID, tickers
	return nil
}

type fakeScheduler struct {
	restarts int
	err      error
}

func (f *fakeScheduler) Health() types.SchedulerHealth {
	return types.SchedulerHealth{Running: true, Jobs: []string{"daily_market_report", "daily_reset"}, Restarts: f.restarts}
}

func (f *fakeScheduler) ForceRestart(context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.restarts++
	return nil
}

type fakeMonitor struct{}

func (fakeMonitor) Status() types.MonitorStatus { return types.MonitorStatus{Cycles: 3} }

type fixture struct {
	router   *Router
	sender   *fakeSender
	store    *store.GuildStore
	quotes   *fakeQuotes
	news     *fakeNews
	llm      *fakeLLM
	reporter *fakeReporter
	sched    *fakeScheduler
}

func newFixture(t *testing.T, at time.Time) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	dir := t.TempDir()
	// TSLA is listed but has no quotes upstream.
	symbols := store.NewSymbolList(map[string]string{"AAPL": "Apple", "MSFT": "Microsoft", "TSLA": "Tesla"})
	f := &fixture{
		sender: &fakeSender{},
		store:  store.NewGuildStore(filepath.Join(dir, "channels.json"), filepath.Join(dir, "tickers.json"), symbols),
		quotes: &fakeQuotes{
			current: map[string]string{"AAPL": "154.50"},
			closes:  map[string]string{"AAPL": "150.00", "MSFT": "300.00"},
		},
		news:     &fakeNews{},
		llm:      &fakeLLM{},
		reporter: &fakeReporter{},
		sched:    &fakeScheduler{},
	}
	f.router = NewRouter(Deps{
		Prefix:    "!",
		Hours:     market.NewHours(loc, 9, 30, 16, 0),
		Symbols:   symbols,
		Store:     f.store,
		Quotes:    f.quotes,
		News:      f.news,
		LLM:       f.llm,
		Reporter:  f.reporter,
		Scheduler: f.sched,
		Monitor:   fakeMonitor{},
		Sender:    f.sender,
	})
	f.router.now = func() time.Time { return at.In(loc) }
	return f
}

func (f *fixture) run(t *testing.T, content string, admin bool) error {
	t.Helper()
	name, args, ok := Parse(content, "!")
	if !ok {
		t.Fatalf("Failed to parse %q", content)
	}
	return f.router.Handle(context.Background(), Request{
		GuildID: "G", ChannelID: "C", AuthorID: "U", Author: "alice",
		Command: name, Args: args, Admin: admin,
	})
}

// Tuesday 11:00 New York time.
var marketOpen = time.Date(2024, 3, 12, 15, 0, 0, 0, time.UTC)

func TestParse(t *testing.T) {
	name, args, ok := Parse("  !AddTicker aapl extra ", "!")
	if !ok || name != "addticker" || len(args) != 2 || args[0] != "aapl" {
		t.Errorf("Unexpected parse %q %v %v", name, args, ok)
	}
	if _, _, ok := Parse("hello !price", "!"); ok {
		t.Error("Expected non-command text to be ignored")
	}
	if _, _, ok := Parse("!", "!"); ok {
		t.Error("Expected bare prefix to be ignored")
	}
}

func TestUnknownCommandIsIgnored(t *testing.T) {
	f := newFixture(t, marketOpen)
	if err := f.run(t, "!dance", false); err != nil {
		t.Fatal(err)
	}
	if len(f.sender.sent) != 0 {
		t.Error("Expected no reply for unknown commands")
	}
}

func TestPriceShowsClose(t *testing.T) {
	f := newFixture(t, marketOpen)
	if err := f.run(t, "!price aapl", false); err != nil {
		t.Fatal(err)
	}
	msg := f.sender.last(t)
	if !strings.Contains(msg.Title, "AAPL") || msg.Fields[0].Value != "$150.00" {
		t.Errorf("Unexpected price reply %+v", msg)
	}
	if msg.Footer != "Closing price as of 2024-03-11" {
		t.Errorf("Unexpected footer %q", msg.Footer)
	}
}

func TestPriceUnknownSymbol(t *testing.T) {
	f := newFixture(t, marketOpen)
	err := f.run(t, "!price TSLA", false)
	if !errors.Is(err, types.ErrNoData) {
		t.Fatalf("Expected ErrNoData, got %v", err)
	}
	if msg := f.sender.last(t); !strings.Contains(msg.Description, "TSLA") {
		t.Errorf("Expected error naming the symbol, got %q", msg.Description)
	}
}

func TestMissingArgument(t *testing.T) {
	f := newFixture(t, marketOpen)
	f.run(t, "!price", false)
	msg := f.sender.last(t)
	if msg.Title != "❌ Error" || !strings.Contains(msg.Fields[0].Value, "!price AAPL") {
		t.Errorf("Expected usage hint, got %+v", msg)
	}
}

func TestCurrentDuringAndOutsideHours(t *testing.T) {
	f := newFixture(t, marketOpen)
	if err := f.run(t, "!current AAPL", false); err != nil {
		t.Fatal(err)
	}
	msg := f.sender.last(t)
	if len(msg.Fields) != 2 || !strings.Contains(msg.Fields[1].Value, "+3.00%") {
		t.Errorf("Expected live quote with change, got %+v", msg.Fields)
	}

	closed := newFixture(t, time.Date(2024, 3, 16, 15, 0, 0, 0, time.UTC)) // Saturday
	closed.run(t, "!current AAPL", false)
	if msg := closed.sender.last(t); !strings.Contains(msg.Title, "Market Closed") {
		t.Errorf("Expected market closed notice, got %q", msg.Title)
	}
}

func TestAdminCommandsRequirePermission(t *testing.T) {
	f := newFixture(t, marketOpen)
	f.run(t, "!addticker AAPL", false)
	if msg := f.sender.last(t); !strings.Contains(msg.Description, "Manage Server") {
		t.Errorf("Expected permission error, got %q", msg.Description)
	}
	if got, _ := f.store.Tickers("G"); len(got) != 0 {
		t.Errorf("Non-admin must not change tickers, got %v", got)
	}
}

func TestTickerLifecycle(t *testing.T) {
	f := newFixture(t, marketOpen)

	if err := f.run(t, "!addticker aapl", true); err != nil {
		t.Fatal(err)
	}
	if msg := f.sender.last(t); !strings.Contains(msg.Description, "You now have 1 ticker(s)") {
		t.Errorf("Unexpected add reply %q", msg.Description)
	}
	f.run(t, "!addticker AAPL", true)
	if msg := f.sender.last(t); !strings.Contains(msg.Description, "already") {
		t.Errorf("Expected duplicate notice, got %q", msg.Description)
	}
	f.run(t, "!addticker TSLA", true)
	if msg := f.sender.last(t); !strings.Contains(msg.Description, "Could not validate") {
		t.Errorf("Expected validation failure, got %q", msg.Description)
	}
	f.run(t, "!addticker MSFT", true)

	f.run(t, "!listtickers", false)
	msg := f.sender.last(t)
	if !strings.Contains(msg.Description, "AAPL") || msg.Footer != "Total: 2 ticker(s)" {
		t.Errorf("Unexpected list %+v", msg)
	}

	f.run(t, "!removeticker msft", true)
	if got, _ := f.store.Tickers("G"); len(got) != 1 || got[0] != "AAPL" {
		t.Errorf("Expected [AAPL], got %v", got)
	}
	f.run(t, "!removeticker MSFT", true)
	if msg := f.sender.last(t); !strings.Contains(msg.Description, "not in your monitoring list") {
		t.Errorf("Expected missing notice, got %q", msg.Description)
	}

	f.run(t, "!cleartickers", true)
	if got, _ := f.store.Tickers("G"); len(got) != 0 {
		t.Errorf("Expected no tickers after clear, got %v", got)
	}
}

func TestSetReportChannelAndReport(t *testing.T) {
	f := newFixture(t, marketOpen)
	f.run(t, "!report", false)
	if msg := f.sender.last(t); !strings.Contains(msg.Description, "No tickers") {
		t.Errorf("Expected no tickers error, got %q", msg.Description)
	}

	f.run(t, "!setreportchannel", true)
	if ch, _ := f.store.ReportChannel("G"); ch != "C" {
		t.Errorf("Expected report channel C, got %q", ch)
	}
	f.run(t, "!setreportchannel", true)
	if msg := f.sender.last(t); !strings.Contains(msg.Description, "already") {
		t.Errorf("Expected already-set notice, got %q", msg.Description)
	}

	f.run(t, "!addticker AAPL", true)
	if err := f.run(t, "!report", false); err != nil {
		t.Fatal(err)
	}
	if f.reporter.channel != "C" || len(f.reporter.tickers) != 1 {
		t.Errorf("Expected manual report to C, got %+v", f.reporter)
	}
}

func TestUnlistedSymbolsNeverReachUpstream(t *testing.T) {
	f := newFixture(t, marketOpen)
	for _, content := range []string{
		"!price ZZZZ",
		"!price NOT_A_TICKER!!",
		"!current ZZZZ",
		"!stocknews ZZZZ",
		"!news ZZZZ",
	} {
		if err := f.run(t, content, false); err != nil {
			t.Errorf("%s: unexpected error %v", content, err)
		}
		if msg := f.sender.last(t); !strings.Contains(msg.Description, "not a supported ticker") {
			t.Errorf("%s: expected invalid ticker reply, got %q", content, msg.Description)
		}
	}
	f.run(t, "!addticker ZZZZ", true)

	if len(f.quotes.calls) != 0 || len(f.news.symbols) != 0 {
		t.Errorf("Expected no upstream calls, got quotes %v news %v", f.quotes.calls, f.news.symbols)
	}
	if got, _ := f.store.Tickers("G"); len(got) != 0 {
		t.Errorf("Expected no stored tickers, got %v", got)
	}
}

func TestNews(t *testing.T) {
	f := newFixture(t, marketOpen)
	f.run(t, "!news", false)
	msg := f.sender.last(t)
	if msg.Title != "📰 Latest Market News" || len(msg.Fields) != 15 || f.news.market != 1 {
		t.Errorf("Expected 15 market headlines, got %q with %d fields", msg.Title, len(msg.Fields))
	}

	f.run(t, "!stocknews aapl", false)
	if msg := f.sender.last(t); !strings.Contains(msg.Title, "AAPL") || len(msg.Fields) != 1 {
		t.Errorf("Unexpected stock news reply %+v", msg)
	}
	f.run(t, "!news msft", false)
	if msg := f.sender.last(t); !strings.Contains(msg.Title, "MSFT") {
		t.Errorf("Expected news with a symbol to show stock news, got %q", msg.Title)
	}
	f.run(t, "!stocknews", false)
	if msg := f.sender.last(t); !strings.Contains(msg.Fields[0].Value, "!stocknews AAPL") {
		t.Errorf("Expected usage hint, got %+v", msg)
	}
}

func TestAskAddsHeadlinesForMentionedTickers(t *testing.T) {
	f := newFixture(t, marketOpen)
	if err := f.run(t, "!askai is aapl cheaper than $MSFT or AAPL?", false); err != nil {
		t.Fatal(err)
	}
	msg := f.sender.last(t)
	if msg.Fields[0].Value != "is aapl cheaper than $MSFT or AAPL?" || msg.Fields[1].Value != "answer" {
		t.Errorf("Unexpected answer %+v", msg.Fields)
	}
	if strings.Join(f.news.symbols, ",") != "AAPL,MSFT" {
		t.Errorf("Expected headlines for AAPL then MSFT, got %v", f.news.symbols)
	}
	for _, want := range []string{"AAPL:\n- AAPL beats", "MSFT:\n- MSFT beats", "Question: is aapl"} {
		if !strings.Contains(f.llm.prompt, want) {
			t.Errorf("Expected prompt to contain %q, got %q", want, f.llm.prompt)
		}
	}

	f.news.symbols = nil
	f.run(t, "!ask what moves markets today?", false)
	if f.llm.prompt != "what moves markets today?" || len(f.news.symbols) != 0 {
		t.Errorf("Expected bare question without tickers, got %q", f.llm.prompt)
	}
}

func TestMentionedTickersWithoutAllowList(t *testing.T) {
	r := NewRouter(Deps{})
	got := r.mentionedTickers("should I buy NVDA or $amd and BRK.B, not the S&P")
	if strings.Join(got, ",") != "NVDA,AMD,BRK.B" {
		t.Errorf("Unexpected tickers %v", got)
	}
	if got := r.mentionedTickers("A B C D E F G"); len(got) != 0 {
		t.Errorf("Expected single letters to be skipped, got %v", got)
	}
}

func TestStatusAndRestart(t *testing.T) {
	f := newFixture(t, marketOpen)
	f.run(t, "!status", false)
	if msg := f.sender.last(t); !strings.Contains(msg.Text, "daily_market_report") {
		t.Errorf("Expected job list in status, got %q", msg.Text)
	}

	f.run(t, "!restartscheduler", true)
	if f.sched.restarts != 1 {
		t.Errorf("Expected one restart, got %d", f.sched.restarts)
	}

	f.sched.err = errors.New("boom")
	f.run(t, "!restartscheduler", true)
	if msg := f.sender.last(t); !strings.Contains(msg.Description, "boom") {
		t.Errorf("Expected restart failure message, got %q", msg.Description)
	}
}

func TestMessageSend(t *testing.T) {
	plain := MessageSend(types.Message{Text: "hi"})
	if plain.Content != "hi" || len(plain.Embeds) != 0 {
		t.Errorf("Expected plain content, got %+v", plain)
	}

	at := time.Date(2024, 3, 12, 20, 0, 0, 0, time.UTC)
	rich := MessageSend(types.Message{Title: "T", Color: 1, Footer: "f", Timestamp: at,
		Fields: []types.Field{{Name: "n", Value: "v", Inline: true}}})
	e := rich.Embeds[0]
	if e.Title != "T" || e.Footer.Text != "f" || e.Timestamp != "2024-03-12T20:00:00Z" || !e.Fields[0].Inline {
		t.Errorf("Unexpected embed %+v", e)
	}
}

func TestHasManageServer(t *testing.T) {
	if !HasManageServer(discordgo.PermissionManageServer) || !HasManageServer(discordgo.PermissionAdministrator) {
		t.Error("Expected manage server or administrator to pass")
	}
	if HasManageServer(discordgo.PermissionSendMessages) {
		t.Error("Expected send-only permission to fail")
	}
}
