package tickers

import (
	"sort"

	"thetagang-wheel/internal/types"
)

type SymbolCount struct {
	Symbol string `json:"symbol"`
	Count  int    `json:"count"`
}

// CountMentions counts posts per symbol; several mentions in one post count once
func CountMentions(mentions []types.TickerMention) map[string]int {
	seen := make(map[[2]string]bool)
	counts := make(map[string]int)
	for _, m := range mentions {
		key := [2]string{m.PostID, m.Symbol}
		if seen[key] {
			continue
		}
		seen[key] = true
		counts[m.Symbol]++
	}
	return counts
}

// TopSymbols orders by count descending then symbol, keeping at most n (n <= 0 keeps all)
func TopSymbols(counts map[string]int, n int) []SymbolCount {
	out := make([]SymbolCount, 0, len(counts))
	for sym, c := range counts {
		out = append(out, SymbolCount{Symbol: sym, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Symbol < out[j].Symbol
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func FilterByMentions(counts map[string]int, minMentions int) map[string]int {
	out := make(map[string]int)
	for sym, c := range counts {
		if c >= minMentions {
			out[sym] = c
		}
	}
	return out
}
