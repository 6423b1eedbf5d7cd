package store

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/gocarina/gocsv"

	"vertbot/internal/types"
)

var symbolPattern = regexp.MustCompile(`^[A-Z]{1,5}[0-9]?(\.[A-Z])?$`)

type symbolRow struct {
	Symbol string `csv:"symbol"`
	Name   string `csv:"name"`
}

// SymbolList is the ticker allow-list loaded once at startup.
// An empty list accepts any well-formed symbol.
type SymbolList struct {
	names map[string]string
}

func NewSymbolList(symbols map[string]string) *SymbolList {
	names := make(map[string]string, len(symbols))
	for s, n := range symbols {
		names[NormalizeSymbol(s)] = n
	}
	return &SymbolList{names: names}
}

// LoadSymbols reads a CSV with "symbol" and "name" columns.
func LoadSymbols(path string) (*SymbolList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []*symbolRow
	if err := gocsv.Unmarshal(f, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse symbol list %s: %w", path, err)
	}

	names := make(map[string]string, len(rows))
	for _, r := range rows {
		s := NormalizeSymbol(r.Symbol)
		if !symbolPattern.MatchString(s) {
			continue
		}
		names[s] = strings.TrimSpace(r.Name)
	}
	return &SymbolList{names: names}, nil
}

func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Validate returns the normalised symbol or types.ErrInvalidSymbol.
func (l *SymbolList) Validate(symbol string) (string, error) {
	s := NormalizeSymbol(symbol)
	if !symbolPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", types.ErrInvalidSymbol, symbol)
	}
	if l == nil || len(l.names) == 0 {
		return s, nil
	}
	if _, ok := l.names[s]; !ok {
		return "", fmt.Errorf("%w: %s is not a listed ticker", types.ErrInvalidSymbol, s)
	}
	return s, nil
}

func (l *SymbolList) Name(symbol string) string {
	if l == nil {
		return ""
	}
	return l.names[NormalizeSymbol(symbol)]
}

func (l *SymbolList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.names)
}
