package earnings

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Static serves earnings dates from a YAML file:
//
//	earnings:
//	  AAPL: [2025-05-01, 2025-07-31]
type Static struct {
	dates map[string][]time.Time
	now   func() time.Time
}

type staticFile struct {
	Earnings map[string][]string `yaml:"earnings"`
}

func LoadStatic(path string) (*Static, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f staticFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	dates := make(map[string][]time.Time, len(f.Earnings))
	for sym, raw := range f.Earnings {
		for _, s := range raw {
			d, ok := ParseDate(s)
			if !ok {
				return nil, fmt.Errorf("%s: bad earnings date %q for %s", path, s, sym)
			}
			dates[strings.ToUpper(sym)] = append(dates[strings.ToUpper(sym)], d)
		}
	}
	return NewStatic(dates), nil
}

func NewStatic(dates map[string][]time.Time) *Static {
	return &Static{dates: dates, now: time.Now}
}

func (s *Static) NextEarnings(ctx context.Context, symbol string) (time.Time, bool, error) {
	d, ok := earliestFrom(s.dates[strings.ToUpper(symbol)], s.now())
	return d, ok, nil
}
