package tickers

import (
	"context"
	"slices"
	"strings"
)

// SymbolSet is a read-only snapshot of valid tickers. Build a new one instead of changing an old one.
type SymbolSet struct {
	m map[string]struct{}
}

func NewSymbolSet(symbols ...string) SymbolSet {
	m := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			m[s] = struct{}{}
		}
	}
	return SymbolSet{m: m}
}

func (s SymbolSet) Contains(symbol string) bool {
	_, ok := s.m[symbol]
	return ok
}

func (s SymbolSet) Len() int { return len(s.m) }

// Symbols returns the members sorted
func (s SymbolSet) Symbols() []string {
	out := make([]string, 0, len(s.m))
	for sym := range s.m {
		out = append(out, sym)
	}
	slices.Sort(out)
	return out
}

// Static is a fixed symbol list, used when tickers.source is STATIC
type Static []string

func (s Static) Symbols(ctx context.Context) (SymbolSet, error) {
	return NewSymbolSet(s...), nil
}
