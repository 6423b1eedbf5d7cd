package format

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"vertbot/internal/types"
)

// Alert is the message posted when a monitored ticker moves past the threshold.
func Alert(symbol string, current, previousClose, pct decimal.Decimal) types.Message {
	sym := Ticker(symbol)
	direction := "up"
	if pct.IsNegative() {
		direction = "down"
	}
	return types.Message{
		Title:       fmt.Sprintf("%s Price Alert: %s", Emoji(pct), sym),
		Description: fmt.Sprintf("**%s** is %s **%s** today!", sym, direction, Percent(pct.Abs())),
		Color:       Color(pct),
		Fields: []types.Field{
			{Name: "Current Price", Value: Price(current), Inline: true},
			{Name: "Previous Close", Value: Price(previousClose), Inline: true},
			{Name: "Change", Value: Percent(pct), Inline: true},
		},
	}
}

// Report builds a market report. kind is "daily" or "manual".
// unavailable lists tickers whose quote could not be fetched.
func Report(kind string, lines []types.ReportLine, unavailable []string, at time.Time) types.Message {
	msg := types.Message{
		Title:     fmt.Sprintf("📊 %s Market Report", capitalize(kind)),
		Color:     ColorInfo,
		Timestamp: at,
	}
	if len(lines) == 0 && len(unavailable) == 0 {
		msg.Description = "No stock data available for this report."
		return msg
	}

	var gainers, losers, flat []types.ReportLine
	for _, l := range lines {
		switch l.ChangePct.Round(2).Sign() {
		case 1:
			gainers = append(gainers, l)
		case -1:
			losers = append(losers, l)
		default:
			flat = append(flat, l)
		}
	}
	sort.SliceStable(gainers, func(i, j int) bool { return gainers[i].ChangePct.GreaterThan(gainers[j].ChangePct) })
	sort.SliceStable(losers, func(i, j int) bool { return losers[i].ChangePct.LessThan(losers[j].ChangePct) })

	if len(gainers) > 0 {
		msg.Fields = append(msg.Fields, types.Field{Name: "🟢 Top Gainers", Value: reportRows(gainers, 3)})
	}
	if len(losers) > 0 {
		msg.Fields = append(msg.Fields, types.Field{Name: "🔴 Top Losers", Value: reportRows(losers, 3)})
	}
	if len(flat) > 0 {
		msg.Fields = append(msg.Fields, types.Field{Name: "⚪ Unchanged", Value: reportRows(flat, 5)})
	}
	if len(unavailable) > 0 {
		msg.Fields = append(msg.Fields, types.Field{Name: "⚠️ Unavailable", Value: strings.Join(unavailable, ", ")})
	}

	msg.Footer = fmt.Sprintf("Tracking %d stocks | ↑ %d | ↓ %d | → %d",
		len(lines)+len(unavailable), len(gainers), len(losers), len(flat))
	return msg
}

func reportRows(lines []types.ReportLine, max int) string {
	rows := make([]string, 0, max)
	for i, l := range lines {
		if i == max {
			break
		}
		rows = append(rows, fmt.Sprintf("**%s**: %s (%s %s)", Ticker(l.Symbol), Price(l.Price), Emoji(l.ChangePct), Percent(l.ChangePct)))
	}
	return strings.Join(rows, "\n")
}

// Quote renders a single price lookup. live distinguishes !current from !price.
func Quote(q types.PriceQuote, previousClose decimal.Decimal, live bool, at time.Time) types.Message {
	kind := "Closing Price"
	if live {
		kind = "Live Price"
	}
	msg := types.Message{
		Title:     fmt.Sprintf("%s - %s", Ticker(q.Symbol), kind),
		Color:     ColorInfo,
		Timestamp: at,
		Fields:    []types.Field{{Name: "💵 Price", Value: Price(q.Price), Inline: true}},
	}
	if !previousClose.IsZero() {
		change := q.Price.Sub(previousClose)
		pct := ChangePct(q.Price, previousClose)
		arrow := "→"
		switch change.Sign() {
		case 1:
			arrow = "▲"
		case -1:
			arrow = "▼"
		}
		msg.Title = Emoji(change) + " " + msg.Title
		msg.Color = Color(change)
		msg.Fields = append(msg.Fields, types.Field{
			Name:   "📊 Change",
			Value:  fmt.Sprintf("%s %s (%s)", arrow, Price(change.Abs()), Percent(pct)),
			Inline: true,
		})
	}
	if q.AsOf != "" {
		msg.Footer = "As of " + q.AsOf
	}
	return msg
}

// News renders headlines for symbol, or general market news when symbol is empty.
func News(symbol string, articles []types.NewsArticle, max int, at time.Time) types.Message {
	msg := types.Message{
		Title:     "📰 Latest News for " + Ticker(symbol),
		Color:     ColorInfo,
		Timestamp: at,
	}
	if symbol == "" {
		msg.Title = "📰 Latest Market News"
	}
	if len(articles) == 0 {
		msg.Description = "No recent news found for this ticker."
		if symbol == "" {
			msg.Description = "No recent market news found."
		}
		return msg
	}
	for i, a := range articles {
		if i == max {
			break
		}
		summary := truncate(a.Summary, 200)
		if summary == "" {
			summary = "No summary available"
		}
		source := a.Source
		if source == "" {
			source = "Unknown"
		}
		value := fmt.Sprintf("%s\n*Source: %s*", summary, source)
		if a.URL != "" {
			value = fmt.Sprintf("[%s](%s)\n*Source: %s*", summary, a.URL, source)
		}
		msg.Fields = append(msg.Fields, types.Field{Name: fmt.Sprintf("%d. %s", i+1, truncate(a.Title, 100)), Value: truncate(value, 1024)})
	}
	if len(articles) > max {
		msg.Footer = fmt.Sprintf("Showing %d of %d articles", max, len(articles))
	}
	return msg
}

// Answer splits long LLM output across at most three 1024-rune fields.
func Answer(question, answer string, at time.Time) types.Message {
	msg := types.Message{
		Title:     "🤖 AI Analysis",
		Color:     ColorInfo,
		Timestamp: at,
		Fields:    []types.Field{{Name: "❓ Question", Value: truncate(question, 200)}},
	}
	r := []rune(answer)
	for i := 0; i < len(r) && i < 3*1024; i += 1024 {
		end := min(i+1024, len(r))
		name := "💡 Analysis"
		if i > 0 {
			name = "\u200b"
		}
		msg.Fields = append(msg.Fields, types.Field{Name: name, Value: string(r[i:end])})
	}
	return msg
}

func Error(text string, suggestions ...string) types.Message {
	msg := types.Message{
		Title:       "❌ Error",
		Description: text,
		Color:       ColorError,
	}
	if len(suggestions) > 0 {
		msg.Fields = []types.Field{{Name: "💡 Suggestions", Value: "• " + strings.Join(suggestions, "\n• ")}}
	}
	return msg
}

func Notice(title, text string, color int) types.Message {
	return types.Message{Title: title, Description: text, Color: color}
}

// TickerList lays tickers out column-major in the given number of columns.
func TickerList(tickers []string, columns int) string {
	if len(tickers) == 0 {
		return "No tickers configured"
	}
	if columns < 1 {
		columns = 1
	}
	rows := (len(tickers) + columns - 1) / columns
	lines := make([]string, 0, rows)
	for r := 0; r < rows; r++ {
		var cells []string
		for c := 0; c < columns; c++ {
			if idx := r + c*rows; idx < len(tickers) {
				cells = append(cells, fmt.Sprintf("`%-6s`", Ticker(tickers[idx])))
			}
		}
		lines = append(lines, strings.Join(cells, " "))
	}
	return strings.Join(lines, "\n")
}

// Status renders monitor and scheduler health as plain text.
func Status(mon types.MonitorStatus, sched types.SchedulerHealth, hours string, now time.Time) string {
	var b strings.Builder
	b.WriteString("**VertBot status**\n")

	market := "closed"
	if mon.MarketOpen {
		market = "open"
	}
	fmt.Fprintf(&b, "Market: %s (%s)\n", market, hours)
	if mon.LastCycle.IsZero() {
		b.WriteString("Monitor: no poll cycle yet\n")
	} else {
		fmt.Fprintf(&b, "Monitor: %d cycles, last %s ago, %d alerts, %d fetch errors\n",
			mon.Cycles, now.Sub(mon.LastCycle).Round(time.Second), mon.AlertsSent, mon.FetchErrors)
	}
	if mon.LastError != "" {
		fmt.Fprintf(&b, "Monitor last error: %s\n", mon.LastError)
	}

	state := "🟢 running"
	if !sched.Running {
		state = "🔴 stopped"
	}
	fmt.Fprintf(&b, "Scheduler: %s, %d restarts\n", state, sched.Restarts)
	jobs := append([]string(nil), sched.Jobs...)
	sort.Strings(jobs)
	for _, id := range jobs {
		line := "• " + id
		if t, ok := sched.NextRun[id]; ok && !t.IsZero() {
			line += " next " + t.Format("Mon 2006-01-02 15:04 MST")
		}
		if t, ok := sched.LastFire[id]; ok && !t.IsZero() {
			line += ", last " + t.Format("2006-01-02 15:04 MST")
		}
		b.WriteString(line + "\n")
	}
	if sched.LastError != "" {
		fmt.Fprintf(&b, "Scheduler last error: %s\n", sched.LastError)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Help lists the bot commands for the given prefix.
func Help(prefix string) types.Message {
	p := prefix
	return types.Message{
		Title: "📈 VertBot Commands",
		Color: ColorInfo,
		Fields: []types.Field{
			{Name: "Prices", Value: fmt.Sprintf("`%sprice SYMBOL` closing price\n`%scurrent SYMBOL` live price (market hours)", p, p)},
			{Name: "Research", Value: fmt.Sprintf("`%snews` market headlines\n`%sstocknews SYMBOL` headlines for a stock\n`%saskai QUESTION` ask the AI, with news for any tickers you mention", p, p, p)},
			{Name: "Tickers", Value: fmt.Sprintf("`%saddticker SYMBOL`\n`%sremoveticker SYMBOL`\n`%slisttickers`\n`%scleartickers`", p, p, p, p)},
			{Name: "Reports", Value: fmt.Sprintf("`%ssetreportchannel` use this channel\n`%sreport` report now\n`%sstatus` bot health\n`%srestartscheduler`", p, p, p, p)},
		},
		Footer: "Ticker and channel changes require Manage Server permission",
	}
}

func Welcome(prefix string) types.Message {
	p := prefix
	return types.Message{
		Title:       "🎉 Welcome to VertBot!",
		Description: "Your personal stock market monitoring assistant",
		Color:       ColorSuccess,
		Fields: []types.Field{
			{Name: "🚀 Getting Started", Value: fmt.Sprintf(
				"**1.** Set up your report channel: `%ssetreportchannel`\n"+
					"**2.** Add stocks to monitor: `%saddticker AAPL`\n"+
					"**3.** View your list: `%slisttickers`\n"+
					"**4.** Get help: `%stickerhelp`", p, p, p, p)},
			{Name: "📊 Available Commands", Value: fmt.Sprintf(
				"• `%sprice SYMBOL` - Get stock price\n"+
					"• `%scurrent SYMBOL` - Get live price\n"+
					"• `%snews` - Get market news\n"+
					"• `%sstocknews SYMBOL` - Get stock news\n"+
					"• `%saskai QUESTION` - Ask AI about stocks", p, p, p, p, p)},
		},
		Footer: "Configure your tickers to start receiving daily reports!",
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
