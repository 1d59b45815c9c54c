package tickers

import (
	"iter"
	"regexp"
	"strings"
	"unicode"

	"thetagang-wheel/internal/types"
)

// wordPattern grabs whole word-ish runs so "220P" or "INVALID_TICKER" never yield a partial ticker
var wordPattern = regexp.MustCompile(`\$?[A-Za-z0-9_]+`)

// commonWords are upper-case tokens that only count when written as a cashtag
var commonWords = map[string]bool{
	"A": true, "I": true, "AM": true, "AN": true, "AND": true, "ARE": true, "AT": true,
	"BE": true, "BUT": true, "BY": true, "DO": true, "FOR": true, "GO": true, "IF": true,
	"IN": true, "IS": true, "IT": true, "ME": true, "MY": true, "NO": true, "NOT": true,
	"OF": true, "ON": true, "OR": true, "SO": true, "THE": true, "TO": true, "UP": true,
	"WE": true, "ALL": true, "NOW": true, "NEW": true, "ONE": true, "OUT": true, "MADE": true,
	"GAIN": true, "LOSS": true, "EDIT": true, "TLDR": true, "YOLO": true, "IMO": true,
	"PUT": true, "PUTS": true, "CALL": true, "CALLS": true, "CSP": true, "CC": true,
	"DTE": true, "IV": true, "OTM": true, "ITM": true, "ATM": true, "ETF": true, "EPS": true,
	"PM": true, "USD": true, "CEO": true, "SEC": true, "FD": true,
}

// Extract yields each valid ticker mentioned in text, in order of first appearance, once.
// The sequence rescans text on every iteration and is empty when valid is empty.
func Extract(postID, text string, valid SymbolSet) iter.Seq[types.TickerMention] {
	return func(yield func(types.TickerMention) bool) {
		if valid.Len() == 0 || text == "" {
			return
		}
		seen := make(map[string]bool)
		for _, tok := range wordPattern.FindAllString(text, -1) {
			symbol, confidence, ok := candidate(tok)
			if !ok || seen[symbol] || !valid.Contains(symbol) {
				continue
			}
			seen[symbol] = true
			if !yield(types.TickerMention{PostID: postID, Symbol: symbol, Confidence: confidence}) {
				return
			}
		}
	}
}

// ExtractPost runs Extract over the post's title and body
func ExtractPost(p types.Post, valid SymbolSet) iter.Seq[types.TickerMention] {
	return Extract(p.ID, p.RawText(), valid)
}

// candidate checks the ticker shape: 1-5 letters, upper-case unless written as a cashtag
func candidate(tok string) (string, types.MatchConfidence, bool) {
	cashtag := strings.HasPrefix(tok, "$")
	word := strings.TrimPrefix(tok, "$")
	if len(word) < 1 || len(word) > 5 {
		return "", "", false
	}
	for _, r := range word {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			return "", "", false
		}
		if !cashtag && !unicode.IsUpper(r) {
			return "", "", false
		}
	}
	if cashtag {
		return strings.ToUpper(word), types.MatchExact, true
	}
	if commonWords[word] {
		return "", "", false
	}
	return word, types.MatchFuzzy, true
}
