package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"thetagang-wheel/internal/api"
	"thetagang-wheel/internal/calendar"
	"thetagang-wheel/internal/chain"
	"thetagang-wheel/internal/chain/chainobs"
	"thetagang-wheel/internal/earnings"
	"thetagang-wheel/internal/interfaces"
	"thetagang-wheel/internal/logger"
	"thetagang-wheel/internal/pipeline"
	"thetagang-wheel/internal/pipeline/pipelineobs"
	"thetagang-wheel/internal/reddit"
	"thetagang-wheel/internal/runlog"
	"thetagang-wheel/internal/sentiment"
	"thetagang-wheel/internal/storage"
	"thetagang-wheel/internal/store"
	"thetagang-wheel/internal/tickers"
	"thetagang-wheel/internal/trace"
)

// initializeSystem loads .env and sets up logging and tracing
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// compressOldJournals gzips run journals past RUN_LOG_RETENTION_DAYS
func compressOldJournals(ctx context.Context, j *runlog.Journal) {
	v := os.Getenv("RUN_LOG_RETENTION_DAYS")
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn(ctx, "Ignoring invalid RUN_LOG_RETENTION_DAYS", "value", v)
		return
	}
	if err := j.CompressOlder(n); err != nil {
		logger.Warn(ctx, "Failed to compress old run journals", "error", err)
	}
}

func runLogDir() string {
	if v := os.Getenv("RUN_LOG_DIR"); v != "" {
		return v
	}
	return "logs/runs"
}

func initializePosts(cfg *store.Config, client *api.Client) interfaces.PostSource {
	if cfg.Reddit.Source == "FILE" {
		return reddit.FileSource{Path: cfg.Reddit.File}
	}
	return reddit.NewClient(client, cfg.Reddit.Subreddit,
		reddit.WithBaseURL(cfg.Reddit.BaseURL),
		reddit.WithUserAgent(cfg.Reddit.UserAgent),
		reddit.WithWindowDays(cfg.Reddit.WindowDays),
		reddit.WithCredentials(reddit.Credentials{ClientID: cfg.RedditClientID, Secret: cfg.RedditSecret}),
	)
}

func initializeSymbols(cfg *store.Config, client *api.Client) interfaces.SymbolSource {
	if cfg.Tickers.Source == "STATIC" {
		return tickers.Static(cfg.Tickers.Static)
	}
	return tickers.NewSymbolMaster(client, cfg.Tickers.CacheDir,
		tickers.WithURLs(cfg.Tickers.NasdaqURL, cfg.Tickers.OtherURL))
}

// initializeChains picks the chain provider and wraps it with observability.
// kite is non-nil only for the KITE provider.
func initializeChains(ctx context.Context, cfg *store.Config) (provider interfaces.ChainProvider, kite *chain.KiteProvider, err error) {
	switch cfg.Chain.Provider {
	case "STATIC":
		p, err := chain.LoadStatic(cfg.Chain.File)
		if err != nil {
			return nil, nil, fmt.Errorf("load static chains: %w", err)
		}
		logger.Info(ctx, "Using STATIC option chains", "file", cfg.Chain.File)
		provider = p
	case "KITE":
		if cfg.KiteAPIKey == "" || cfg.KiteAccessToken == "" {
			return nil, nil, fmt.Errorf("chain provider KITE needs KITE_API_KEY and KITE_ACCESS_TOKEN")
		}
		kite = chain.NewKiteProvider(cfg.KiteAPIKey, cfg.KiteAccessToken, cfg.Chain.Exchange)
		provider = kite
	default:
		client := api.NewClient(
			api.WithBaseURL(cfg.Chain.BaseURL),
			api.WithHeaders(api.YahooFinanceHeaders()),
			api.WithTimeout(cfg.Chain.FetchTimeout),
			api.WithLogging(true),
		)
		provider = chain.NewHTTPProvider(client, api.DefaultRetryConfig())
	}
	return chainobs.Wrap(provider, cfg.Chain.Provider), kite, nil
}

// initializeEarnings returns nil for source NONE; the screener then marks symbols earnings-unverified
func initializeEarnings(cfg *store.Config) (interfaces.EarningsLookup, error) {
	var lookup interfaces.EarningsLookup
	switch cfg.Earnings.Source {
	case "NONE":
		return nil, nil
	case "STATIC":
		s, err := earnings.LoadStatic(cfg.Earnings.File)
		if err != nil {
			return nil, fmt.Errorf("load static earnings: %w", err)
		}
		lookup = s
	default:
		lookup = earnings.NewScraper(cfg.Earnings.URL)
	}
	if cfg.Earnings.CacheTTL > 0 {
		lookup = earnings.NewCached(lookup, cfg.Earnings.CacheTTL)
	}
	return lookup, nil
}

func initializeCalendar(cfg *store.Config) *calendar.Calendar {
	var source calendar.HolidaySource = &calendar.NYSERules{}
	if cfg.Calendar.HolidaysFile != "" {
		source = calendar.Union{source, calendar.NewFileSource(cfg.Calendar.HolidaysFile)}
	}
	return calendar.New(source, calendar.WithLocation(cfg.Location()))
}

// buildPipeline wires every collaborator. The returned cleanup closes the database.
func buildPipeline(ctx context.Context, cfg *store.Config) (interfaces.Pipeline, func(), error) {
	client := api.NewClient(
		api.WithRateLimit(1, 2),
		api.WithLogging(true),
	)

	chains, kite, err := initializeChains(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	lookup, err := initializeEarnings(cfg)
	if err != nil {
		return nil, nil, err
	}

	journal := runlog.New(runLogDir(), runlog.WithLocation(cfg.Location()))
	compressOldJournals(ctx, journal)

	deps := pipeline.Deps{
		Posts:    initializePosts(cfg, client),
		Symbols:  initializeSymbols(cfg, client),
		Chains:   chains,
		Earnings: lookup,
		Calendar: initializeCalendar(cfg),
		Classifier: sentiment.NewClassifier(
			sentiment.WithThresholds(cfg.Sentiment.PositiveThreshold, cfg.Sentiment.NegativeThreshold)),
		Journal: journal,
	}
	if kite != nil {
		// exchange expiries and underlyings replace the NYSE Friday and the NASDAQ directory
		deps.Expiries = kite
		if cfg.Tickers.Source != "STATIC" {
			deps.Symbols = kite
		}
		logger.Info(ctx, "Using Kite listed expiries", "exchange", cfg.Chain.Exchange)
	}

	cleanup := func() {}
	if cfg.Storage.Enabled {
		db, err := storage.Open(cfg.Storage.DBPath)
		if err != nil {
			return nil, nil, err
		}
		deps.Store = db
		cleanup = func() {
			if err := db.Close(); err != nil {
				logger.Warn(ctx, "Failed to close database", "error", err)
			}
		}
	}

	return pipelineobs.Wrap(pipeline.New(cfg, deps)), cleanup, nil
}
