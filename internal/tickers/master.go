package tickers

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"thetagang-wheel/internal/api"
	"thetagang-wheel/internal/logger"
)

const (
	NasdaqListedURL = "https://www.nasdaqtrader.com/dynamic/SymDir/nasdaqlisted.txt"
	OtherListedURL  = "https://www.nasdaqtrader.com/dynamic/SymDir/otherlisted.txt"

	DefaultMaxAge = 24 * time.Hour
)

// SymbolMaster loads the NASDAQ Trader symbol directories, caching each file on disk
type SymbolMaster struct {
	client   *api.Client
	cacheDir string
	urls     []string
	maxAge   time.Duration
	now      func() time.Time
}

type MasterOption func(*SymbolMaster)

func WithURLs(urls ...string) MasterOption {
	return func(m *SymbolMaster) { m.urls = urls }
}

func WithMaxAge(d time.Duration) MasterOption {
	return func(m *SymbolMaster) { m.maxAge = d }
}

func WithClock(now func() time.Time) MasterOption {
	return func(m *SymbolMaster) { m.now = now }
}

func NewSymbolMaster(client *api.Client, cacheDir string, opts ...MasterOption) *SymbolMaster {
	m := &SymbolMaster{
		client:   client,
		cacheDir: cacheDir,
		urls:     []string{NasdaqListedURL, OtherListedURL},
		maxAge:   DefaultMaxAge,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Symbols returns a fresh snapshot built from every directory file.
// A failed download falls back to a stale cached copy when there is one.
func (m *SymbolMaster) Symbols(ctx context.Context) (SymbolSet, error) {
	op := logger.StartOperation(ctx, "tickers.SymbolMaster.Symbols", "files", len(m.urls))
	ctx = op.GetContext()

	var all []string
	for _, u := range m.urls {
		body, err := m.load(ctx, u)
		if err != nil {
			op.EndWithError(err, "url", u)
			return SymbolSet{}, err
		}
		syms, err := ParseSymbolFile(bytes.NewReader(body))
		if err != nil {
			err = fmt.Errorf("parse %s: %w", u, err)
			op.EndWithError(err)
			return SymbolSet{}, err
		}
		all = append(all, syms...)
	}

	set := NewSymbolSet(all...)
	op.End("symbols", set.Len())
	logger.Info(ctx, "Symbol master loaded", "symbols", set.Len(), "files", len(m.urls))
	return set, nil
}

func (m *SymbolMaster) cachePath(u string) string {
	return filepath.Join(m.cacheDir, filepath.Base(u))
}

func (m *SymbolMaster) load(ctx context.Context, u string) ([]byte, error) {
	path := m.cachePath(u)
	info, statErr := os.Stat(path)
	if statErr == nil && m.now().Sub(info.ModTime()) < m.maxAge {
		logger.Debug(ctx, "Using cached symbol file", "path", path)
		return os.ReadFile(path)
	}

	req := api.NewRequest(http.MethodGet, u).WithContext(ctx)
	resp, err := m.client.DoWithRetry(req, nil)
	if err != nil {
		if statErr == nil {
			logger.Warn(ctx, "Symbol download failed, using stale cache", "url", u, "error", err)
			return os.ReadFile(path)
		}
		return nil, fmt.Errorf("download %s: %w", u, err)
	}

	if err := os.MkdirAll(m.cacheDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, resp.Body, 0o644); err != nil {
		logger.Warn(ctx, "Failed to cache symbol file", "path", path, "error", err)
	}
	return resp.Body, nil
}

// ParseSymbolFile reads a pipe-delimited NASDAQ Trader directory file.
// The header names the columns; test issues and the trailing creation-time row are skipped.
func ParseSymbolFile(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.Comma = '|'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	symCol, testCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case "Symbol", "ACT Symbol":
			symCol = i
		case "Test Issue":
			testCol = i
		}
	}
	if symCol < 0 {
		return nil, fmt.Errorf("no symbol column in header %q", strings.Join(header, "|"))
	}

	var out []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 0 || strings.HasPrefix(rec[0], "File Creation Time") {
			continue
		}
		if symCol >= len(rec) {
			continue
		}
		if testCol >= 0 && testCol < len(rec) && strings.TrimSpace(rec[testCol]) == "Y" {
			continue
		}
		if sym := strings.TrimSpace(rec[symCol]); sym != "" {
			out = append(out, sym)
		}
	}
	return out, nil
}
