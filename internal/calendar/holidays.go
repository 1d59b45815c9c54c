package calendar

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"thetagang-wheel/internal/types"
)

// NYSERules computes NYSE full-day closures. Early closes are trading days.
type NYSERules struct {
	mu    sync.Mutex
	years map[int]map[time.Time]string
}

// unscheduled closures that no rule predicts
var nyseSpecialClosures = map[time.Time]string{
	date(2012, time.October, 29): "Hurricane Sandy",
	date(2012, time.October, 30): "Hurricane Sandy",
	date(2018, time.December, 5): "National Day of Mourning (George H.W. Bush)",
	date(2025, time.January, 9):  "National Day of Mourning (Jimmy Carter)",
}

func (n *NYSERules) IsHoliday(d time.Time) (bool, error) {
	_, ok := n.Name(d)
	return ok, nil
}

// Name returns the closure name for d, if any
func (n *NYSERules) Name(d time.Time) (string, bool) {
	d = dateOf(d)
	if name, ok := nyseSpecialClosures[d]; ok {
		return name, true
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.years == nil {
		n.years = make(map[int]map[time.Time]string)
	}
	hs, ok := n.years[d.Year()]
	if !ok {
		hs = nyseHolidays(d.Year())
		n.years[d.Year()] = hs
	}
	name, ok := hs[d]
	return name, ok
}

func nyseHolidays(year int) map[time.Time]string {
	hs := make(map[time.Time]string)
	add := func(d time.Time, name string) {
		if !d.IsZero() {
			hs[d] = name
		}
	}

	// A Saturday New Year is not made up on the Friday before
	ny := date(year, time.January, 1)
	switch ny.Weekday() {
	case time.Sunday:
		add(ny.AddDate(0, 0, 1), "New Year's Day")
	case time.Saturday:
	default:
		add(ny, "New Year's Day")
	}

	if year >= 1998 {
		add(nthWeekday(year, time.January, time.Monday, 3), "Martin Luther King Jr. Day")
	}
	add(nthWeekday(year, time.February, time.Monday, 3), "Washington's Birthday")
	add(easter(year).AddDate(0, 0, -2), "Good Friday")
	add(lastWeekday(year, time.May, time.Monday), "Memorial Day")
	if year >= 2022 {
		add(observed(date(year, time.June, 19)), "Juneteenth")
	}
	add(observed(date(year, time.July, 4)), "Independence Day")
	add(nthWeekday(year, time.September, time.Monday, 1), "Labor Day")
	add(nthWeekday(year, time.November, time.Thursday, 4), "Thanksgiving Day")
	add(observed(date(year, time.December, 25)), "Christmas Day")
	return hs
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// observed moves Saturday holidays to Friday and Sunday holidays to Monday
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int) time.Time {
	first := date(year, month, 1)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+7*(n-1))
}

func lastWeekday(year int, month time.Month, wd time.Weekday) time.Time {
	last := date(year, month+1, 1).AddDate(0, 0, -1)
	offset := (int(last.Weekday()) - int(wd) + 7) % 7
	return last.AddDate(0, 0, -offset)
}

// easter is the Gregorian Easter Sunday (anonymous computus)
func easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return date(year, time.Month(month), day)
}

// Closures is a fixed set of closed days
type Closures map[time.Time]bool

func NewClosures(days ...time.Time) Closures {
	c := make(Closures, len(days))
	for _, d := range days {
		c[dateOf(d)] = true
	}
	return c
}

func (c Closures) IsHoliday(d time.Time) (bool, error) {
	return c[dateOf(d)], nil
}

// FileSource reads extra closures from a YAML file:
//
//	closures:
//	  - 2025-01-09
//
// The file is read once. A missing or malformed file makes every lookup fail with ErrCalendarUnavailable.
type FileSource struct {
	path string
	once sync.Once
	days Closures
	err  error
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

type closureFile struct {
	Closures []string `yaml:"closures"`
}

func (f *FileSource) load() {
	b, err := os.ReadFile(f.path)
	if err != nil {
		f.err = fmt.Errorf("%w: %v", types.ErrCalendarUnavailable, err)
		return
	}
	var cf closureFile
	if err := yaml.Unmarshal(b, &cf); err != nil {
		f.err = fmt.Errorf("%w: parse %s: %v", types.ErrCalendarUnavailable, f.path, err)
		return
	}
	days := make(Closures, len(cf.Closures))
	for _, s := range cf.Closures {
		d, err := time.Parse(time.DateOnly, s)
		if err != nil {
			f.err = fmt.Errorf("%w: bad date %q in %s", types.ErrCalendarUnavailable, s, f.path)
			return
		}
		days[d] = true
	}
	f.days = days
}

func (f *FileSource) IsHoliday(d time.Time) (bool, error) {
	f.once.Do(f.load)
	if f.err != nil {
		return false, f.err
	}
	return f.days.IsHoliday(d)
}

// Union is closed when any member is closed. Any member error fails the lookup.
type Union []HolidaySource

func (u Union) IsHoliday(d time.Time) (bool, error) {
	var errs []error
	closed := false
	for _, s := range u {
		ok, err := s.IsHoliday(d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		closed = closed || ok
	}
	if len(errs) > 0 {
		return false, errors.Join(errs...)
	}
	return closed, nil
}
