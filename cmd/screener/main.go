package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"thetagang-wheel/internal/logger"
	"thetagang-wheel/internal/ranker"
	"thetagang-wheel/internal/report"
	"thetagang-wheel/internal/storage"
	"thetagang-wheel/internal/store"
	"thetagang-wheel/internal/trace"
	"thetagang-wheel/internal/types"
)

var (
	version    = "0.1.0"
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "thetagang-wheel",
	Short:   "Screen cash-secured puts based on r/thetagang sentiment",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeSystem()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = trace.Shutdown(ctx)
	},
	SilenceUsage: true,
}

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Run one screening pass and print the ranked candidates",
	Long: `Fetch top posts, classify sentiment, extract tickers, screen the put chains
of positively mentioned symbols against the guardrails and rank by weekly yield.

Examples:
  thetagang-wheel screen
  thetagang-wheel screen -p 50 --min-oi 100 -o out/candidates.csv`,
	RunE: runScreen,
}

var validateCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Check the configuration and report every problem",
	RunE:  runValidate,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run screen on the configured cron schedule until interrupted",
	RunE:  runSchedule,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs stored in the database",
	RunE:  runHistory,
}

type screenFlags struct {
	posts        int
	minOI        int64
	maxSpreadPct float64
	blackoutDays int
	accountSize  float64
	output       string
	verbose      bool
}

var (
	sf           screenFlags
	historyLimit int
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config.yaml")

	for _, cmd := range []*cobra.Command{screenCmd, scheduleCmd} {
		f := cmd.Flags()
		f.IntVarP(&sf.posts, "posts", "p", 25, "number of Reddit posts to analyze")
		f.Int64Var(&sf.minOI, "min-oi", 50, "minimum open interest")
		f.Float64Var(&sf.maxSpreadPct, "max-spread-pct", 0.10, "maximum bid-ask spread as a fraction of mid")
		f.IntVar(&sf.blackoutDays, "blackout-days", 7, "earnings blackout window in days around expiry")
		f.Float64Var(&sf.accountSize, "account-size", 10000, "cash available to secure one contract")
		f.StringVarP(&sf.output, "output", "o", "", "also write the result to a .json, .csv or .txt file")
		f.BoolVarP(&sf.verbose, "verbose", "v", false, "enable debug logging")
	}
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of runs to list")

	rootCmd.AddCommand(screenCmd, validateCmd, scheduleCmd, historyCmd)
}

// applyFlags lets explicitly set flags override config values
func applyFlags(cmd *cobra.Command, cfg *store.Config) {
	f := cmd.Flags()
	if f.Changed("posts") {
		cfg.Posts = sf.posts
	}
	if f.Changed("min-oi") {
		cfg.MinOI = sf.minOI
	}
	if f.Changed("max-spread-pct") {
		cfg.MaxSpreadPct = sf.maxSpreadPct
	}
	if f.Changed("blackout-days") {
		cfg.EarningsBlackoutDays = sf.blackoutDays
	}
	if f.Changed("account-size") {
		cfg.AccountSize = sf.accountSize
	}
}

func prepare(cmd *cobra.Command) (context.Context, *store.Config, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if sf.verbose {
		logger.SetVerbose(ctx)
	}
	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return nil, nil, err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return ctx, cfg, nil
}

func runScreen(cmd *cobra.Command, args []string) error {
	ctx, cfg, err := prepare(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return screenOnce(ctx, cmd, cfg)
}

func screenOnce(ctx context.Context, cmd *cobra.Command, cfg *store.Config) error {
	p, cleanup, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := p.Run(ctx)
	switch {
	case errors.Is(err, types.ErrNoPosts), errors.Is(err, types.ErrNoValidTickers):
		fmt.Fprintf(cmd.ErrOrStderr(), "Nothing to screen: %v\n", err)
		return err
	case err != nil:
		return err
	}

	shown := *result
	shown.Candidates = ranker.Top(result.Candidates, cfg.Output.Top)
	if err := report.Write(cmd.OutOrStdout(), &shown, report.FormatTable); err != nil {
		return err
	}
	if sf.output != "" {
		if err := report.WriteFile(sf.output, result); err != nil {
			return fmt.Errorf("write %s: %w", sf.output, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nSaved to %s\n", sf.output)
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if err := cfg.Validate(); err != nil {
		var ce *types.ConfigError
		if errors.As(err, &ce) {
			fmt.Fprintln(out, "Configuration invalid:")
			for _, p := range ce.Problems {
				fmt.Fprintf(out, "  - %s\n", p)
			}
		}
		return err
	}
	if _, _, err := initializeChains(ctx, cfg); err != nil {
		return err
	}
	if _, err := initializeEarnings(cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "Configuration OK: r/%s, %d posts, chains via %s, earnings via %s\n",
		cfg.Reddit.Subreddit, cfg.Posts, cfg.Chain.Provider, cfg.Earnings.Source)
	return nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx, cfg, err := prepare(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := cron.New(cron.WithLocation(cfg.Location()))
	_, err = c.AddFunc(cfg.Schedule.Cron, func() {
		if err := screenOnce(ctx, cmd, cfg); err != nil {
			logger.ErrorWithErr(ctx, "Scheduled run failed", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule.Cron, err)
	}

	c.Start()
	logger.Info(ctx, "Scheduler started", "cron", cfg.Schedule.Cron, "timezone", cfg.Calendar.Timezone)
	<-ctx.Done()

	logger.Info(ctx, "Shutting down scheduler")
	<-c.Stop().Done()
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return err
	}
	db, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.Runs(ctx, historyLimit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tEXPIRY\tPOSTS\tCANDIDATES\tTOP\tDEGRADED")
	for _, r := range runs {
		cands, err := db.Candidates(ctx, r.ID)
		if err != nil {
			return err
		}
		top := "-"
		if len(cands) > 0 {
			top = fmt.Sprintf("%s %.2f (%.3f%%)", cands[0].Symbol, cands[0].Strike, cands[0].WeeklyYield*100)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%t\n",
			r.ID, r.StartedAt.Format(time.DateTime), r.Expiry.Format(time.DateOnly), r.PostsAnalyzed, len(cands), top, r.Degraded)
	}
	return tw.Flush()
}
