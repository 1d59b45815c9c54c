package calendar

import (
	"context"
	"time"

	"thetagang-wheel/internal/logger"
)

// HolidaySource answers whether the exchange is fully closed on a date
type HolidaySource interface {
	IsHoliday(date time.Time) (bool, error)
}

// Expiration is a resolved weekly expiry. Verified is false when the holiday source could not be consulted.
type Expiration struct {
	Date     time.Time `json:"date"`
	Verified bool      `json:"verified"`
}

const (
	// weeks to search forward before giving up on a verified date
	maxWeeks = 4
)

type Calendar struct {
	source   HolidaySource
	loc      *time.Location
	cutoffHr int
	cutoffMn int
}

type Option func(*Calendar)

// WithLocation sets the exchange time zone used by ExpirationFor
func WithLocation(loc *time.Location) Option {
	return func(c *Calendar) { c.loc = loc }
}

// WithCutoff sets the Friday time after which this week's expiry is considered gone
func WithCutoff(hour, minute int) Option {
	return func(c *Calendar) {
		c.cutoffHr = hour
		c.cutoffMn = minute
	}
}

// New builds a calendar. A nil source yields naive, unverified Fridays.
func New(source HolidaySource, opts ...Option) *Calendar {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	c := &Calendar{source: source, loc: loc, cutoffHr: 15, cutoffMn: 55}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NextFridayExpiration returns the Friday on or after asOf, stepped back to the preceding
// trading day when that Friday is closed. An expiry that would land before asOf moves to the next week.
func (c *Calendar) NextFridayExpiration(asOf time.Time) Expiration {
	day := dateOf(asOf)
	friday := nextFriday(day)

	if c.source == nil {
		return Expiration{Date: friday}
	}

	for week := 0; week < maxWeeks; week++ {
		fri := friday.AddDate(0, 0, 7*week)
		exp, err := c.lastTradingDayOnOrBefore(fri)
		if err != nil {
			logger.Warn(context.Background(), "Holiday source unavailable, using naive Friday",
				"as_of", day.Format(time.DateOnly), "error", err)
			return Expiration{Date: friday}
		}
		if !exp.Before(day) {
			return Expiration{Date: exp, Verified: true}
		}
	}
	return Expiration{Date: friday}
}

// ExpirationFor resolves the expiry for a wall-clock instant. On a Friday at or after the cutoff
// (exchange time) the current week is over and next week's Friday is used.
func (c *Calendar) ExpirationFor(now time.Time) Expiration {
	t := now.In(c.loc)
	asOf := dateOf(t)
	if t.Weekday() == time.Friday {
		cutoff := time.Date(t.Year(), t.Month(), t.Day(), c.cutoffHr, c.cutoffMn, 0, 0, c.loc)
		if !t.Before(cutoff) {
			asOf = asOf.AddDate(0, 0, 1)
		}
	}
	return c.NextFridayExpiration(asOf)
}

// IsTradingDay reports whether the exchange is open on date
func (c *Calendar) IsTradingDay(date time.Time) (bool, error) {
	d := dateOf(date)
	if isWeekend(d) {
		return false, nil
	}
	if c.source == nil {
		return true, nil
	}
	closed, err := c.source.IsHoliday(d)
	if err != nil {
		return false, err
	}
	return !closed, nil
}

func (c *Calendar) lastTradingDayOnOrBefore(d time.Time) (time.Time, error) {
	for i := 0; i < 7; i++ {
		open, err := c.IsTradingDay(d)
		if err != nil {
			return time.Time{}, err
		}
		if open {
			return d, nil
		}
		d = d.AddDate(0, 0, -1)
	}
	return d, nil
}

// dateOf strips the clock but keeps the calendar day as seen in t's own location
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func nextFriday(d time.Time) time.Time {
	delta := (int(time.Friday) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, delta)
}

func isWeekend(d time.Time) bool {
	return d.Weekday() == time.Saturday || d.Weekday() == time.Sunday
}

// SameDay compares calendar days, ignoring clock and zone
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DaysBetween is the signed number of calendar days from a to b
func DaysBetween(a, b time.Time) int {
	return int(dateOf(b).Sub(dateOf(a)).Hours() / 24)
}
