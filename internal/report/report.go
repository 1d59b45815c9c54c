package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"thetagang-wheel/internal/types"
)

type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

const dateLayout = "2006-01-02"

// FormatForPath picks the format from a file extension, defaulting to JSON
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".txt":
		return FormatTable
	}
	return FormatJSON
}

func Write(w io.Writer, r *types.RunResult, f Format) error {
	switch f {
	case FormatTable:
		return writeTable(w, r)
	case FormatJSON:
		return writeJSON(w, r)
	case FormatCSV:
		return writeCSV(w, r)
	}
	return fmt.Errorf("unknown report format %q", f)
}

// WriteFile writes the report to path in the format its extension implies
func WriteFile(path string, r *types.RunResult) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, r, FormatForPath(path)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(w io.Writer, r *types.RunResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func writeCSV(w io.Writer, r *types.RunResult) error {
	cw := csv.NewWriter(w)
	header := []string{"rank", "symbol", "status", "strike", "expiration", "bid", "ask", "mid", "open_interest", "weekly_yield", "notes"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, c := range r.Candidates {
		k := c.Contract
		row := []string{
			strconv.Itoa(i + 1),
			c.Symbol,
			"candidate",
			formatFloat(k.Strike),
			k.ExpirationDate.Format(dateLayout),
			formatFloat(k.Bid),
			formatFloat(k.Ask),
			formatFloat(k.Mid()),
			strconv.FormatInt(k.OpenInterest, 10),
			strconv.FormatFloat(c.WeeklyYield, 'f', 6, 64),
			caveatText(c.Caveats),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	for _, s := range r.Skipped {
		row := []string{"", s.Symbol, "skipped:" + string(s.Reason), "", "", "", "", "", "", "", s.Detail}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeTable(w io.Writer, r *types.RunResult) error {
	expiry := r.Expiry.Format(dateLayout)
	if !r.ExpiryVerified {
		expiry += " (unverified)"
	}
	g := r.Guardrails

	fmt.Fprintf(w, "Run %s  expiry %s  posts %d\n", r.RunID, expiry, r.PostsAnalyzed)
	fmt.Fprintf(w, "Guardrails: min OI %d, max spread %.1f%%, earnings blackout %dd, account $%.0f\n",
		g.MinOpenInterest, g.MaxSpreadPct*100, g.EarningsBlackoutDays, g.AccountSize)
	fmt.Fprintf(w, "Sentiment: %d positive, %d negative, %d unclear\n\n",
		r.SentimentCounts[types.SentimentPositive], r.SentimentCounts[types.SentimentNegative], r.SentimentCounts[types.SentimentUnclear])

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSYMBOL\tSTRIKE\tEXPIRY\tBID\tASK\tMID\tOI\tYIELD\tCAVEATS")
	for i, c := range r.Candidates {
		k := c.Contract
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%s\t%.2f\t%.2f\t%.3f\t%d\t%.3f%%\t%s\n",
			i+1, c.Symbol, k.Strike, k.ExpirationDate.Format(dateLayout),
			k.Bid, k.Ask, k.Mid(), k.OpenInterest, c.WeeklyYield*100, caveatText(c.Caveats))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(r.Candidates) == 0 {
		fmt.Fprintln(w, "No candidates passed the guardrails.")
	}

	fmt.Fprintln(w, "\nSkipped:")
	if len(r.Skipped) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, s := range r.Skipped {
		if s.Detail != "" {
			fmt.Fprintf(w, "  %s: %s (%s)\n", s.Symbol, s.Reason, s.Detail)
		} else {
			fmt.Fprintf(w, "  %s: %s\n", s.Symbol, s.Reason)
		}
	}

	fmt.Fprintln(w, "\nCaveats:")
	if len(r.Caveats) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, c := range r.Caveats {
		if c.Symbol != "" {
			fmt.Fprintf(w, "  %s %s: %s\n", c.Symbol, c.Kind, c.Detail)
		} else {
			fmt.Fprintf(w, "  %s: %s\n", c.Kind, c.Detail)
		}
	}
	return nil
}

func caveatText(caveats []types.Caveat) string {
	kinds := make([]string, 0, len(caveats))
	seen := make(map[types.CaveatKind]bool)
	for _, c := range caveats {
		if !seen[c.Kind] {
			seen[c.Kind] = true
			kinds = append(kinds, string(c.Kind))
		}
	}
	sort.Strings(kinds)
	return strings.Join(kinds, ";")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
