package store

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"thetagang-wheel/internal/types"
)

type Config struct {
	// Core screening surface
	Posts                int     `yaml:"posts" validate:"gt=0"`
	MinOI                int64   `yaml:"min_oi" validate:"gt=0"`
	MaxSpreadPct         float64 `yaml:"max_spread_pct" validate:"gt=0"` // fraction of mid
	EarningsBlackoutDays int     `yaml:"earnings_blackout_days" validate:"gte=0"`
	AccountSize          float64 `yaml:"account_size" validate:"gt=0"`
	MaxStrike            float64 `yaml:"max_strike" validate:"gte=0"`
	ExcludeEarnings      *bool   `yaml:"exclude_earnings"`
	// absolute put delta band; delta_max 0 turns the check off
	DeltaMin             float64 `yaml:"delta_min" validate:"gte=0,lte=1"`
	DeltaMax             float64 `yaml:"delta_max" validate:"gte=0,lte=1"`
	RiskFreeRate         float64 `yaml:"risk_free_rate" validate:"gte=0,lte=1"`

	Sentiment struct {
		PositiveThreshold float64 `yaml:"positive_threshold"`
		NegativeThreshold float64 `yaml:"negative_threshold"`
		IncludeUnclear    bool    `yaml:"include_unclear"`
	} `yaml:"sentiment"`

	Tickers struct {
		MinMentions int      `yaml:"min_mentions" validate:"gte=0"`
		MaxSymbols  int      `yaml:"max_symbols" validate:"gte=0"`
		Source      string   `yaml:"source"` // NASDAQ | STATIC
		Static      []string `yaml:"static"`
		CacheDir    string   `yaml:"cache_dir"`
		NasdaqURL   string   `yaml:"nasdaq_url"`
		OtherURL    string   `yaml:"other_url"`
	} `yaml:"tickers"`

	Reddit struct {
		Source     string `yaml:"source"` // API | FILE
		Subreddit  string `yaml:"subreddit"`
		WindowDays int    `yaml:"window_days" validate:"gte=0"`
		BaseURL    string `yaml:"base_url"`
		File       string `yaml:"file"`
		UserAgent  string `yaml:"user_agent"`
	} `yaml:"reddit"`

	Chain struct {
		Provider      string        `yaml:"provider"` // HTTP | KITE | STATIC
		BaseURL       string        `yaml:"base_url"`
		File          string        `yaml:"file"`
		Exchange      string        `yaml:"exchange"`
		Workers       int           `yaml:"workers" validate:"gte=0"`
		FetchTimeout  time.Duration `yaml:"fetch_timeout"`
		RatePerSecond float64       `yaml:"rate_per_second" validate:"gte=0"`
	} `yaml:"chain"`

	Earnings struct {
		Source   string        `yaml:"source"` // SCRAPE | STATIC | NONE
		URL      string        `yaml:"url"`
		File     string        `yaml:"file"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"earnings"`

	Calendar struct {
		Timezone     string `yaml:"timezone"`
		HolidaysFile string `yaml:"holidays_file"`
	} `yaml:"calendar"`

	Storage struct {
		Enabled bool   `yaml:"enabled"`
		DBPath  string `yaml:"db_path"`
	} `yaml:"storage"`

	Schedule struct {
		Cron string `yaml:"cron"`
	} `yaml:"schedule"`

	Output struct {
		Top int `yaml:"top" validate:"gte=0"`
	} `yaml:"output"`

	// Credentials come from the environment only
	RedditClientID  string `yaml:"-"`
	RedditSecret    string `yaml:"-"`
	KiteAPIKey      string `yaml:"-"`
	KiteAccessToken string `yaml:"-"`
}

var validate = validator.New()

// Validate checks the whole config and reports every problem at once
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s must be %s %s, got %v", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	if c.MaxSpreadPct > 1 {
		problems = append(problems, fmt.Sprintf("max_spread_pct is a fraction of mid (0.10 = 10%%), got %.2f", c.MaxSpreadPct))
	}
	if c.Sentiment.PositiveThreshold < c.Sentiment.NegativeThreshold {
		problems = append(problems, fmt.Sprintf("sentiment.positive_threshold %.2f is below negative_threshold %.2f",
			c.Sentiment.PositiveThreshold, c.Sentiment.NegativeThreshold))
	}
	if c.DeltaMax > 0 && c.DeltaMin > c.DeltaMax {
		problems = append(problems, fmt.Sprintf("delta_min %.2f is above delta_max %.2f", c.DeltaMin, c.DeltaMax))
	}
	if !oneOf(c.Tickers.Source, "NASDAQ", "STATIC") {
		problems = append(problems, fmt.Sprintf("tickers.source must be 'NASDAQ' or 'STATIC', got '%s'", c.Tickers.Source))
	}
	if c.Tickers.Source == "STATIC" && len(c.Tickers.Static) == 0 {
		problems = append(problems, "tickers.static cannot be empty when tickers.source is 'STATIC'")
	}
	if !oneOf(c.Reddit.Source, "API", "FILE") {
		problems = append(problems, fmt.Sprintf("reddit.source must be 'API' or 'FILE', got '%s'", c.Reddit.Source))
	}
	if !oneOf(c.Chain.Provider, "HTTP", "KITE", "STATIC") {
		problems = append(problems, fmt.Sprintf("chain.provider must be 'HTTP', 'KITE' or 'STATIC', got '%s'", c.Chain.Provider))
	}
	if !oneOf(c.Earnings.Source, "SCRAPE", "STATIC", "NONE") {
		problems = append(problems, fmt.Sprintf("earnings.source must be 'SCRAPE', 'STATIC' or 'NONE', got '%s'", c.Earnings.Source))
	}
	if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("calendar.timezone '%s' is not a known zone", c.Calendar.Timezone))
	}

	if len(problems) > 0 {
		return &types.ConfigError{Problems: problems}
	}
	return nil
}

// Guardrails returns the per-run guardrail snapshot
func (c *Config) Guardrails() types.GuardrailConfig {
	return types.GuardrailConfig{
		MinOpenInterest:      c.MinOI,
		MaxSpreadPct:         c.MaxSpreadPct,
		EarningsBlackoutDays: c.EarningsBlackoutDays,
		AccountSize:          c.AccountSize,
		MaxStrike:            c.MaxStrike,
		ExcludeEarnings:      c.ExcludeEarnings == nil || *c.ExcludeEarnings,
		DeltaMin:             c.DeltaMin,
		DeltaMax:             c.DeltaMax,
		RiskFreeRate:         c.RiskFreeRate,
	}
}

// Location returns the market time zone; Validate has already vetted it
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Calendar.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Default returns a config with every default applied, as if loaded from an empty file.
// This is the only place defaults are set: LoadConfig decodes over it, so an explicit zero in
// the file is kept and validated as written.
func Default() *Config {
	var c Config
	c.Posts = 25
	c.MinOI = 50
	c.MaxSpreadPct = 0.10
	c.EarningsBlackoutDays = 7
	c.AccountSize = 10000
	c.RiskFreeRate = 0.04

	c.Sentiment.PositiveThreshold = 0.05
	c.Sentiment.NegativeThreshold = -0.05

	c.Tickers.MinMentions = 1
	c.Tickers.MaxSymbols = 20
	c.Tickers.Source = "NASDAQ"
	c.Tickers.CacheDir = "cache/symbols"
	c.Tickers.NasdaqURL = "https://www.nasdaqtrader.com/dynamic/SymDir/nasdaqlisted.txt"
	c.Tickers.OtherURL = "https://www.nasdaqtrader.com/dynamic/SymDir/otherlisted.txt"

	c.Reddit.Source = "API"
	c.Reddit.Subreddit = "thetagang"
	c.Reddit.WindowDays = 7
	c.Reddit.BaseURL = "https://www.reddit.com"
	c.Reddit.UserAgent = "thetagang-wheel/0.1"

	c.Chain.Provider = "HTTP"
	c.Chain.BaseURL = "https://query2.finance.yahoo.com"
	c.Chain.Exchange = "NFO"
	c.Chain.Workers = 4
	c.Chain.FetchTimeout = 20 * time.Second
	c.Chain.RatePerSecond = 2

	c.Earnings.Source = "SCRAPE"
	c.Earnings.URL = "https://finance.yahoo.com/calendar/earnings?symbol={symbol}"
	c.Earnings.CacheTTL = 12 * time.Hour

	c.Calendar.Timezone = "America/New_York"
	c.Storage.DBPath = "thetagang_wheel.db"
	c.Schedule.Cron = "30 10 * * 1"
	c.Output.Top = 25
	return &c
}

// LoadConfig reads path over Default and applies env overrides. It does not validate:
// CLI flags still get a say, and the run validates before any I/O.
func LoadConfig(path string) (*Config, error) {
	c := Default()
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	default:
		return nil, err
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	c.RedditClientID = os.Getenv("REDDIT_CLIENT_ID")
	c.RedditSecret = os.Getenv("REDDIT_SECRET")
	if v := os.Getenv("REDDIT_USER_AGENT"); v != "" {
		c.Reddit.UserAgent = v
	}
	c.KiteAPIKey = os.Getenv("KITE_API_KEY")
	c.KiteAccessToken = os.Getenv("KITE_ACCESS_TOKEN")

	if v := os.Getenv("CAPITAL"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CAPITAL: %w", err)
		}
		c.AccountSize = f
	}
	if v := os.Getenv("MIN_OI"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MIN_OI: %w", err)
		}
		c.MinOI = n
	}
	for name, dst := range map[string]*float64{"DELTA_MIN": &c.DeltaMin, "DELTA_MAX": &c.DeltaMax} {
		if v := os.Getenv(name); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = f
		}
	}
	if v := os.Getenv("MAX_SPREAD_PCT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("MAX_SPREAD_PCT: %w", err)
		}
		c.MaxSpreadPct = f
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}
