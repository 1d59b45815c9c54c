package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"thetagang-wheel/internal/calendar"
	"thetagang-wheel/internal/interfaces"
	"thetagang-wheel/internal/logger"
	"thetagang-wheel/internal/ranker"
	"thetagang-wheel/internal/screener"
	"thetagang-wheel/internal/sentiment"
	"thetagang-wheel/internal/store"
	"thetagang-wheel/internal/tickers"
	"thetagang-wheel/internal/types"
)

// ExpiryResolver picks the weekly expiration for a run
type ExpiryResolver interface {
	ExpirationFor(now time.Time) calendar.Expiration
}

// Journal records finished runs outside the database
type Journal interface {
	Record(result *types.RunResult) error
}

// Deps are the collaborators of one pipeline. Store, Journal and Expiries are optional.
// With Expiries set each symbol is screened against its nearest listed expiration
// instead of the calendar's Friday.
type Deps struct {
	Posts      interfaces.PostSource
	Symbols    interfaces.SymbolSource
	Chains     interfaces.ChainProvider
	Earnings   interfaces.EarningsLookup
	Calendar   ExpiryResolver
	Expiries   interfaces.ExpirySource
	Classifier *sentiment.Classifier
	Store      interfaces.RunStore
	Journal    Journal
	Clock      func() time.Time
}

type Pipeline struct {
	cfg  *store.Config
	deps Deps
}

var _ interfaces.Pipeline = (*Pipeline)(nil)

func New(cfg *store.Config, deps Deps) *Pipeline {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Classifier == nil {
		deps.Classifier = sentiment.NewClassifier(
			sentiment.WithThresholds(cfg.Sentiment.PositiveThreshold, cfg.Sentiment.NegativeThreshold))
	}
	if deps.Calendar == nil {
		deps.Calendar = calendar.New(&calendar.NYSERules{})
	}
	return &Pipeline{cfg: cfg, deps: deps}
}

// symbolOutcome is one worker's slot; exactly one of screening or skip is set
type symbolOutcome struct {
	screening *screener.Screening
	skip      *types.SkippedSymbol
}

// Run executes one screening pass. Config problems, an empty post set and the absence of any
// positively mentioned ticker fail the run; per-symbol failures only annotate the result.
func (p *Pipeline) Run(ctx context.Context) (*types.RunResult, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	guardrails := p.cfg.Guardrails()

	started := p.deps.Clock()
	result := &types.RunResult{
		RunID:      uuid.NewString(),
		StartedAt:  started,
		State:      types.StateIdle,
		AsOf:       started,
		Guardrails: guardrails,
	}

	posts, err := p.deps.Posts.FetchPosts(ctx, p.cfg.Posts)
	if err != nil {
		return nil, fmt.Errorf("fetch posts: %w", err)
	}
	if len(posts) == 0 {
		return nil, types.ErrNoPosts
	}
	result.PostsAnalyzed = len(posts)
	result.State = types.StatePostsIngested

	sentiments := make([]types.SentimentResult, len(posts))
	for i, post := range posts {
		sentiments[i] = p.deps.Classifier.ClassifyPost(post)
	}
	result.SentimentCounts = sentiment.Distribution(sentiments)
	result.State = types.StateClassified
	logger.Info(ctx, "Posts classified",
		"run_id", result.RunID,
		"posts", len(posts),
		"positive", result.SentimentCounts[types.SentimentPositive],
		"negative", result.SentimentCounts[types.SentimentNegative],
		"unclear", result.SentimentCounts[types.SentimentUnclear])

	valid, err := p.deps.Symbols.Symbols(ctx)
	if err != nil {
		// an unavailable universe validates nothing; the run then ends with ErrNoValidTickers
		logger.ErrorWithErr(ctx, "Symbol universe unavailable", err, "run_id", result.RunID)
		valid = tickers.NewSymbolSet()
	}

	var eligible []types.TickerMention
	total := 0
	for i, post := range posts {
		gate := p.eligible(sentiments[i].Label)
		for m := range tickers.ExtractPost(post, valid) {
			total++
			if gate {
				eligible = append(eligible, m)
			}
		}
	}
	result.State = types.StateTickersExtracted

	counts := tickers.FilterByMentions(tickers.CountMentions(eligible), p.cfg.Tickers.MinMentions)
	top := tickers.TopSymbols(counts, p.cfg.Tickers.MaxSymbols)
	if len(top) == 0 {
		logger.Warn(ctx, "No tickers qualified", "run_id", result.RunID, "mentions", total, "eligible", len(eligible))
		return nil, types.ErrNoValidTickers
	}
	result.MentionCounts = make(map[string]int, len(top))
	for _, sc := range top {
		result.MentionCounts[sc.Symbol] = sc.Count
		result.ScreenedSymbols = append(result.ScreenedSymbols, sc.Symbol)
	}
	result.State = types.StateTickersValidated
	logger.Info(ctx, "Tickers validated", "run_id", result.RunID, "mentions", total, "symbols", result.ScreenedSymbols)

	exp := p.deps.Calendar.ExpirationFor(started)
	result.Expiry = exp.Date
	result.ExpiryVerified = exp.Verified
	var runCaveats []types.Caveat
	if !exp.Verified && p.deps.Expiries == nil {
		runCaveats = append(runCaveats, types.Caveat{
			Kind:   types.CaveatCalendarUnverified,
			Detail: "holiday calendar unavailable, expiry is the naive Friday " + exp.Date.Format(time.DateOnly),
		})
	}

	outcomes, err := p.fetchAndScreen(ctx, result.ScreenedSymbols, guardrails, started, exp.Date)
	if err != nil {
		return nil, err
	}
	result.State = types.StateChainsFetched

	var inputs []ranker.Input
	result.Caveats = append(result.Caveats, runCaveats...)
	for _, o := range outcomes {
		if o.skip != nil {
			result.Skipped = append(result.Skipped, *o.skip)
			continue
		}
		s := o.screening
		result.Caveats = append(result.Caveats, s.Caveats...)
		if s.Blackout {
			result.Skipped = append(result.Skipped, types.SkippedSymbol{
				Symbol: s.Symbol,
				Reason: types.SkipEarningsBlackout,
				Detail: "earnings " + s.EarningsDate.Format(time.DateOnly),
			})
			continue
		}
		if len(s.Passed) == 0 {
			result.Skipped = append(result.Skipped, types.SkippedSymbol{
				Symbol: s.Symbol,
				Reason: types.SkipNoEligibleContracts,
				Detail: s.DropSummary(),
			})
			continue
		}
		caveats := append(append([]types.Caveat(nil), runCaveats...), s.Caveats...)
		for _, c := range s.Passed {
			inputs = append(inputs, ranker.Input{Contract: c, Caveats: caveats})
		}
	}
	result.State = types.StateScreened

	result.Candidates = ranker.Rank(inputs)
	result.State = types.StateRanked

	for i, c := range result.Candidates {
		logger.Candidate(ctx, i+1, c.Symbol, c.Contract.Strike, c.WeeklyYield, c.Contract.OpenInterest,
			"run_id", result.RunID, "caveats", len(c.Caveats))
	}
	for _, s := range result.Skipped {
		logger.Skip(ctx, s.Symbol, string(s.Reason), "run_id", result.RunID, "detail", s.Detail)
	}

	result.State = types.StateDone
	result.FinishedAt = p.deps.Clock()
	p.persist(ctx, posts, sentiments, result)
	return result, nil
}

func (p *Pipeline) eligible(label types.SentimentLabel) bool {
	return label == types.SentimentPositive ||
		(p.cfg.Sentiment.IncludeUnclear && label == types.SentimentUnclear)
}

// fetchAndScreen runs one worker per symbol, bounded by the configured pool size and rate.
// Outcomes keep the order of symbols. Only cancellation of ctx fails the stage.
func (p *Pipeline) fetchAndScreen(ctx context.Context, symbols []string, cfg types.GuardrailConfig, asOf, expiry time.Time) ([]symbolOutcome, error) {
	outcomes := make([]symbolOutcome, len(symbols))
	scr := screener.New(p.deps.Earnings, screener.WithClock(p.deps.Clock))

	var limiter *rate.Limiter
	if p.cfg.Chain.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(p.cfg.Chain.RatePerSecond), 1)
	}

	// workers never return an error: every failure is recorded in the symbol's slot
	var g errgroup.Group
	g.SetLimit(max(p.cfg.Chain.Workers, 1))

	for i, sym := range symbols {
		g.Go(func() error {
			if limiter != nil {
				// Wait fails early when the next slot lies past the deadline
				if err := limiter.Wait(ctx); err != nil {
					outcomes[i] = symbolOutcome{skip: &types.SkippedSymbol{Symbol: sym, Reason: types.SkipFetchTimeout, Detail: err.Error()}}
					return nil
				}
			}
			target := expiry
			if p.deps.Expiries != nil {
				listed, found, err := p.deps.Expiries.ListedExpiry(ctx, sym, asOf)
				switch {
				case err != nil:
					outcomes[i] = symbolOutcome{skip: &types.SkippedSymbol{Symbol: sym, Reason: types.SkipFetchFailed, Detail: err.Error()}}
					return nil
				case !found:
					outcomes[i] = symbolOutcome{skip: &types.SkippedSymbol{Symbol: sym, Reason: types.SkipNoContracts, Detail: "no listed expiry"}}
					return nil
				}
				target = listed
			}
			chain, err := p.fetch(ctx, sym, target)
			if err != nil {
				var fe *types.FetchError
				errors.As(err, &fe)
				reason := types.SkipFetchFailed
				if fe.Timeout {
					reason = types.SkipFetchTimeout
				}
				outcomes[i] = symbolOutcome{skip: &types.SkippedSymbol{Symbol: sym, Reason: reason, Detail: fe.Err.Error()}}
				return nil
			}
			if len(chain) == 0 {
				outcomes[i] = symbolOutcome{skip: &types.SkippedSymbol{Symbol: sym, Reason: types.SkipNoContracts}}
				return nil
			}
			s := scr.Screen(ctx, sym, chain, cfg, target)
			outcomes[i] = symbolOutcome{screening: &s}
			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// fetch always returns a *types.FetchError on failure
func (p *Pipeline) fetch(ctx context.Context, symbol string, expiry time.Time) ([]types.OptionContract, error) {
	fctx, cancel := ctx, context.CancelFunc(func() {})
	if p.cfg.Chain.FetchTimeout > 0 {
		fctx, cancel = context.WithTimeout(ctx, p.cfg.Chain.FetchTimeout)
	}
	defer cancel()

	chain, err := p.deps.Chains.FetchChain(fctx, symbol, expiry)
	if err == nil {
		return chain, nil
	}

	var fe *types.FetchError
	if errors.As(err, &fe) {
		if !fe.Timeout && errors.Is(fctx.Err(), context.DeadlineExceeded) {
			return nil, &types.FetchError{Symbol: symbol, Timeout: true, Err: fe.Err}
		}
		return nil, fe
	}
	timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(fctx.Err(), context.DeadlineExceeded)
	return nil, &types.FetchError{Symbol: symbol, Timeout: timeout, Err: err}
}

func (p *Pipeline) persist(ctx context.Context, posts []types.Post, sentiments []types.SentimentResult, result *types.RunResult) {
	if p.deps.Store != nil {
		if err := p.deps.Store.SaveRun(ctx, posts, sentiments, result); err != nil {
			logger.ErrorWithErr(ctx, "Failed to save run", err, "run_id", result.RunID)
		}
	}
	if p.deps.Journal != nil {
		if err := p.deps.Journal.Record(result); err != nil {
			logger.ErrorWithErr(ctx, "Failed to write run journal", err, "run_id", result.RunID)
		}
	}
}
