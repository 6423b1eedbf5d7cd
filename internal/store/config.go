package store

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Discord struct {
		Prefix        string `yaml:"prefix"`
		DeleteCommand bool   `yaml:"delete_command"`
	} `yaml:"discord"`
	Market struct {
		Timezone string `yaml:"timezone"`
		Open     string `yaml:"open"`  // HH:MM
		Close    string `yaml:"close"` // HH:MM
	} `yaml:"market"`
	Monitor struct {
		PollSeconds         int     `yaml:"poll_seconds"`
		SymbolDelayMillis   int     `yaml:"symbol_delay_ms"`
		ThresholdPct        float64 `yaml:"threshold_pct"`
		PriceTTLSeconds     int     `yaml:"price_ttl_seconds"`
		ErrorBackoffSeconds int     `yaml:"error_backoff_seconds"`
		FetchTimeoutSeconds int     `yaml:"fetch_timeout_seconds"`
	} `yaml:"monitor"`
	Report struct {
		Cron            string `yaml:"cron"`
		ResetCron       string `yaml:"reset_cron"`
		WatchdogSeconds int    `yaml:"watchdog_seconds"`
	} `yaml:"report"`
	Storage struct {
		ChannelsFile string `yaml:"channels_file"`
		TickersFile  string `yaml:"tickers_file"`
		SymbolsFile  string `yaml:"symbols_file"`
	} `yaml:"storage"`
	Finnhub struct {
		BaseURL        string `yaml:"base_url"`
		CallsPerMinute int    `yaml:"calls_per_minute"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"finnhub"`
	News struct {
		Enabled         bool `yaml:"enabled"`
		MaxArticles     int  `yaml:"max_articles"`
		LookbackDays    int  `yaml:"lookback_days"`
		CacheTTLSeconds int  `yaml:"cache_ttl_seconds"`
	} `yaml:"news"`
	LLM struct {
		Provider    string  `yaml:"provider"` // OPENAI, OLLAMA or NONE
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float32 `yaml:"temperature"`
		System      string  `yaml:"system"`
	} `yaml:"llm"`
	Health struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"health"`
}

// DefaultConfig mirrors the constants the bot shipped with: US equities,
// 2.5% alert threshold, five minute polling, 16:00 ET weekday reports.
func DefaultConfig() *Config {
	var c Config
	c.applyDefaults()
	c.News.Enabled = true
	c.Discord.DeleteCommand = true
	return &c
}

func (c *Config) applyDefaults() {
	if c.Discord.Prefix == "" {
		c.Discord.Prefix = "!"
	}
	if c.Market.Timezone == "" {
		c.Market.Timezone = "America/New_York"
	}
	if c.Market.Open == "" {
		c.Market.Open = "09:30"
	}
	if c.Market.Close == "" {
		c.Market.Close = "16:00"
	}
	if c.Monitor.PollSeconds == 0 {
		c.Monitor.PollSeconds = 300
	}
	if c.Monitor.SymbolDelayMillis == 0 {
		c.Monitor.SymbolDelayMillis = 500
	}
	if c.Monitor.ThresholdPct == 0 {
		c.Monitor.ThresholdPct = 2.5
	}
	if c.Monitor.PriceTTLSeconds == 0 {
		c.Monitor.PriceTTLSeconds = 60
	}
	if c.Monitor.ErrorBackoffSeconds == 0 {
		c.Monitor.ErrorBackoffSeconds = 60
	}
	if c.Monitor.FetchTimeoutSeconds == 0 {
		c.Monitor.FetchTimeoutSeconds = 10
	}
	if c.Report.Cron == "" {
		c.Report.Cron = "0 16 * * 1-5"
	}
	if c.Report.ResetCron == "" {
		c.Report.ResetCron = "0 0 * * *"
	}
	if c.Report.WatchdogSeconds == 0 {
		c.Report.WatchdogSeconds = 300
	}
	if c.Storage.ChannelsFile == "" {
		c.Storage.ChannelsFile = "config/channels.json"
	}
	if c.Storage.TickersFile == "" {
		c.Storage.TickersFile = "config/tickers.json"
	}
	if c.Storage.SymbolsFile == "" {
		c.Storage.SymbolsFile = "data/tickers.csv"
	}
	if c.Finnhub.BaseURL == "" {
		c.Finnhub.BaseURL = "https://finnhub.io/api/v1"
	}
	if c.Finnhub.CallsPerMinute == 0 {
		c.Finnhub.CallsPerMinute = 60
	}
	if c.Finnhub.TimeoutSeconds == 0 {
		c.Finnhub.TimeoutSeconds = 10
	}
	if c.News.MaxArticles == 0 {
		c.News.MaxArticles = 5
	}
	if c.News.LookbackDays == 0 {
		c.News.LookbackDays = 4
	}
	if c.News.CacheTTLSeconds == 0 {
		c.News.CacheTTLSeconds = 300
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "NONE"
	}
	if c.LLM.Model == "" {
		switch strings.ToUpper(c.LLM.Provider) {
		case "OLLAMA":
			c.LLM.Model = "deepseek-r1:1.5b"
		case "OPENAI":
			c.LLM.Model = "gpt-4o-mini"
		}
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 512
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.System == "" {
		c.LLM.System = "You are a financial analysis expert. Answer concisely and never give personalised investment advice."
	}
	if c.Health.Addr == "" {
		c.Health.Addr = "127.0.0.1:8080"
	}
}

func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		return fmt.Errorf("invalid market.timezone '%s': %w", c.Market.Timezone, err)
	}
	oh, om, err := ParseClock(c.Market.Open)
	if err != nil {
		return fmt.Errorf("market.open: %w", err)
	}
	ch, cm, err := ParseClock(c.Market.Close)
	if err != nil {
		return fmt.Errorf("market.close: %w", err)
	}
	if oh*60+om >= ch*60+cm {
		return fmt.Errorf("market.open %s must be before market.close %s", c.Market.Open, c.Market.Close)
	}
	if c.Monitor.ThresholdPct <= 0 {
		return fmt.Errorf("monitor.threshold_pct must be positive, got %.2f", c.Monitor.ThresholdPct)
	}
	if c.Monitor.PollSeconds < 1 {
		return errors.New("monitor.poll_seconds must be at least 1")
	}
	switch strings.ToUpper(c.LLM.Provider) {
	case "OPENAI", "OLLAMA", "NONE":
	default:
		return fmt.Errorf("llm.provider must be 'OPENAI', 'OLLAMA' or 'NONE', got '%s'", c.LLM.Provider)
	}
	return nil
}

// Location returns the market's reference timezone. Validate must have passed.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Market.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Monitor.PollSeconds) * time.Second
}

func (c *Config) SymbolDelay() time.Duration {
	return time.Duration(c.Monitor.SymbolDelayMillis) * time.Millisecond
}

func (c *Config) PriceTTL() time.Duration {
	return time.Duration(c.Monitor.PriceTTLSeconds) * time.Second
}

func (c *Config) ErrorBackoff() time.Duration {
	return time.Duration(c.Monitor.ErrorBackoffSeconds) * time.Second
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Monitor.FetchTimeoutSeconds) * time.Second
}

func (c *Config) WatchdogInterval() time.Duration {
	return time.Duration(c.Report.WatchdogSeconds) * time.Second
}

// ParseClock parses "HH:MM" into hour and minute.
func ParseClock(s string) (int, int, error) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid clock '%s': want HH:MM", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in '%s'", s)
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in '%s'", s)
	}
	return h, m, nil
}

// LoadConfig reads path, falling back to defaults when the file does not exist.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, err
	}

	c := Config{}
	c.News.Enabled = true
	c.Discord.DeleteCommand = true
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}
