package earnings

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"thetagang-wheel/internal/logger"
	"thetagang-wheel/internal/types"
)

// Selectors locate earnings dates on a calendar page
type Selectors struct {
	Row  string // one element per announcement
	Date string // the date cell inside a row
}

// YahooSelectors match the finance.yahoo.com earnings calendar table
var YahooSelectors = Selectors{
	Row:  "table tbody tr",
	Date: `td[aria-label="Earnings Date"]`,
}

// Scraper reads upcoming earnings dates from an HTML calendar page.
// The URL template carries a {symbol} placeholder.
type Scraper struct {
	urlTemplate string
	selectors   Selectors
	timeout     time.Duration
	userAgent   string
	now         func() time.Time
}

type ScraperOption func(*Scraper)

func WithSelectors(sel Selectors) ScraperOption {
	return func(s *Scraper) { s.selectors = sel }
}

func WithTimeout(d time.Duration) ScraperOption {
	return func(s *Scraper) { s.timeout = d }
}

func WithClock(now func() time.Time) ScraperOption {
	return func(s *Scraper) { s.now = now }
}

func NewScraper(urlTemplate string, opts ...ScraperOption) *Scraper {
	s := &Scraper{
		urlTemplate: urlTemplate,
		selectors:   YahooSelectors,
		timeout:     15 * time.Second,
		userAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextEarnings returns the earliest listed date on or after today.
// A page without any matching rows is an error, since a layout change must not read as "no earnings".
func (s *Scraper) NextEarnings(ctx context.Context, symbol string) (time.Time, bool, error) {
	pageURL := strings.ReplaceAll(s.urlTemplate, "{symbol}", url.QueryEscape(strings.ToUpper(symbol)))
	u, err := url.Parse(pageURL)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: bad url %q: %v", types.ErrEarningsUnavailable, pageURL, err)
	}

	c := colly.NewCollector(
		colly.AllowedDomains(u.Hostname()),
		colly.MaxDepth(1),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(s.timeout)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", s.userAgent)
	})

	var (
		rows     int
		dates    []time.Time
		visitErr error
	)
	c.OnHTML(s.selectors.Row, func(e *colly.HTMLElement) {
		rows++
		e.DOM.Find(s.selectors.Date).Each(func(_ int, cell *goquery.Selection) {
			if d, ok := ParseDate(cell.Text()); ok {
				dates = append(dates, d)
			}
		})
	})
	c.OnError(func(r *colly.Response, err error) {
		visitErr = fmt.Errorf("HTTP %d: %w", r.StatusCode, err)
	})

	if err := c.Visit(pageURL); err != nil && visitErr == nil {
		visitErr = err
	}
	c.Wait()

	if visitErr != nil {
		return time.Time{}, false, fmt.Errorf("%w: %s: %v", types.ErrEarningsUnavailable, symbol, visitErr)
	}
	if rows == 0 {
		return time.Time{}, false, fmt.Errorf("%w: %s: no earnings rows on page", types.ErrEarningsUnavailable, symbol)
	}

	d, found := earliestFrom(dates, s.now())
	logger.Debug(ctx, "Earnings scraped", "symbol", symbol, "rows", rows, "found", found, "date", d.Format(time.DateOnly))
	return d, found, nil
}

var dateLayouts = []string{
	"Jan 2, 2006",
	"January 2, 2006",
	"2006-01-02",
	"01/02/2006",
	"Mon, Jan 2, 2006",
}

// leading date part of strings like "May 1, 2025, 4 PMEDT"
var leadingDate = regexp.MustCompile(`^(?:[A-Z][a-z]{2}, )?[A-Z][a-z]+ \d{1,2}, \d{4}|^\d{4}-\d{2}-\d{2}|^\d{2}/\d{2}/\d{4}`)

// ParseDate accepts the date formats earnings calendars commonly print
func ParseDate(text string) (time.Time, bool) {
	text = strings.Join(strings.Fields(text), " ")
	if m := leadingDate.FindString(text); m != "" {
		text = m
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, text); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

func earliestFrom(dates []time.Time, now time.Time) (time.Time, bool) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var best time.Time
	found := false
	for _, d := range dates {
		if d.Before(today) {
			continue
		}
		if !found || d.Before(best) {
			best, found = d, true
		}
	}
	return best, found
}
