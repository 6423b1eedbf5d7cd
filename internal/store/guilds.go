package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"vertbot/internal/types"
)

var (
	ErrTickerExists  = errors.New("ticker already monitored")
	ErrTickerMissing = errors.New("ticker not monitored")
)

// GuildStore keeps report channels and ticker lists in two JSON files,
// channels.json (guild -> channel) and tickers.json (guild -> tickers).
type GuildStore struct {
	mu           sync.Mutex
	channelsPath string
	tickersPath  string
	symbols      *SymbolList
}

func NewGuildStore(channelsPath, tickersPath string, symbols *SymbolList) *GuildStore {
	return &GuildStore{
		channelsPath: channelsPath,
		tickersPath:  tickersPath,
		symbols:      symbols,
	}
}

// Symbols is the allow-list AddTicker validates against.
func (s *GuildStore) Symbols() *SymbolList {
	return s.symbols
}

// LoadGuildConfigs returns a snapshot of every guild that has a channel or tickers.
func (s *GuildStore) LoadGuildConfigs() (map[string]types.GuildConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channels, err := s.readChannels()
	if err != nil {
		return nil, err
	}
	tickers, err := s.readTickers()
	if err != nil {
		return nil, err
	}

	out := make(map[string]types.GuildConfig, len(channels)+len(tickers))
	for g, ch := range channels {
		out[g] = types.GuildConfig{GuildID: g, ReportChannelID: ch}
	}
	for g, list := range tickers {
		cfg := out[g]
		cfg.GuildID = g
		cfg.Tickers = slices.Clone(list)
		out[g] = cfg
	}
	return out, nil
}

func (s *GuildStore) ReportChannel(guildID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channels, err := s.readChannels()
	if err != nil {
		return "", err
	}
	return channels[guildID], nil
}

// SetReportChannel stores channelID and returns the channel it replaced, if any.
func (s *GuildStore) SetReportChannel(guildID, channelID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channels, err := s.readChannels()
	if err != nil {
		return "", err
	}
	prev := channels[guildID]
	if prev == channelID {
		return prev, nil
	}
	channels[guildID] = channelID
	return prev, writeJSON(s.channelsPath, channels)
}

func (s *GuildStore) Tickers(guildID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tickers, err := s.readTickers()
	if err != nil {
		return nil, err
	}
	return slices.Clone(tickers[guildID]), nil
}

// AddTicker validates symbol against the allow-list and appends it.
// It returns the normalised symbol and the new list length.
func (s *GuildStore) AddTicker(guildID, symbol string) (string, int, error) {
	sym, err := s.symbols.Validate(symbol)
	if err != nil {
		return "", 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tickers, err := s.readTickers()
	if err != nil {
		return "", 0, err
	}
	list := tickers[guildID]
	if slices.Contains(list, sym) {
		return sym, len(list), fmt.Errorf("%w: %s", ErrTickerExists, sym)
	}
	tickers[guildID] = append(list, sym)
	if err := writeJSON(s.tickersPath, tickers); err != nil {
		return "", 0, err
	}
	return sym, len(tickers[guildID]), nil
}

func (s *GuildStore) RemoveTicker(guildID, symbol string) (int, error) {
	sym := NormalizeSymbol(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	tickers, err := s.readTickers()
	if err != nil {
		return 0, err
	}
	list := tickers[guildID]
	idx := slices.Index(list, sym)
	if idx < 0 {
		return len(list), fmt.Errorf("%w: %s", ErrTickerMissing, sym)
	}
	tickers[guildID] = slices.Delete(list, idx, idx+1)
	return len(tickers[guildID]), writeJSON(s.tickersPath, tickers)
}

func (s *GuildStore) ClearTickers(guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tickers, err := s.readTickers()
	if err != nil {
		return err
	}
	tickers[guildID] = []string{}
	return writeJSON(s.tickersPath, tickers)
}

func (s *GuildStore) readChannels() (map[string]string, error) {
	// Older files stored channel ids as JSON numbers.
	raw := map[string]json.Number{}
	if err := readJSON(s.channelsPath, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for g, v := range raw {
		if v.String() != "" {
			out[g] = v.String()
		}
	}
	return out, nil
}

func (s *GuildStore) readTickers() (map[string][]string, error) {
	out := map[string][]string{}
	if err := readJSON(s.tickersPath, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// writeJSON replaces path atomically via a temp file in the same directory.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
