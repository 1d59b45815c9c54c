package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"thetagang-wheel/internal/logger"
	"thetagang-wheel/internal/types"
)

type RunRecord struct {
	ID             string `gorm:"primaryKey"`
	StartedAt      time.Time
	FinishedAt     time.Time
	State          string
	AsOf           time.Time
	Expiry         time.Time `gorm:"index"`
	ExpiryVerified bool
	PostsAnalyzed  int
	Degraded       bool
	Guardrails     string // JSON
}

func (RunRecord) TableName() string { return "runs" }

type PostRecord struct {
	RunID     string `gorm:"primaryKey"`
	PostID    string `gorm:"primaryKey"`
	Title     string
	Body      string
	Author    string
	Score     int
	URL       string
	CreatedAt time.Time
}

func (PostRecord) TableName() string { return "posts" }

type SentimentRecord struct {
	RunID  string `gorm:"primaryKey"`
	PostID string `gorm:"primaryKey"`
	Label  string `gorm:"index"`
	Score  float64
	Rule   string
}

func (SentimentRecord) TableName() string { return "sentiments" }

type CandidateRecord struct {
	ID           uint   `gorm:"primaryKey"`
	RunID        string `gorm:"index"`
	Rank         int
	Symbol       string `gorm:"index"`
	Strike       float64
	Expiration   time.Time
	Bid          float64
	Ask          float64
	OpenInterest int64
	WeeklyYield  float64
	Caveats      string // JSON
}

func (CandidateRecord) TableName() string { return "candidates" }

type SkipRecord struct {
	ID     uint   `gorm:"primaryKey"`
	RunID  string `gorm:"index"`
	Symbol string
	Reason string
	Detail string
}

func (SkipRecord) TableName() string { return "skips" }

// Store persists run history in SQLite
type Store struct {
	db *gorm.DB
}

// Open creates the database file and its parent directory if needed, then migrates the schema
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&RunRecord{}, &PostRecord{}, &SentimentRecord{}, &CandidateRecord{}, &SkipRecord{}); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRun writes one run and everything it touched in a single transaction
func (s *Store) SaveRun(ctx context.Context, posts []types.Post, sentiments []types.SentimentResult, result *types.RunResult) error {
	if result == nil || result.RunID == "" {
		return fmt.Errorf("save run: missing run id")
	}
	guardrails, err := json.Marshal(result.Guardrails)
	if err != nil {
		return fmt.Errorf("save run %s: guardrails: %w", result.RunID, err)
	}

	run := RunRecord{
		ID:             result.RunID,
		StartedAt:      result.StartedAt,
		FinishedAt:     result.FinishedAt,
		State:          string(result.State),
		AsOf:           result.AsOf,
		Expiry:         result.Expiry,
		ExpiryVerified: result.ExpiryVerified,
		PostsAnalyzed:  result.PostsAnalyzed,
		Degraded:       result.Degraded(),
		Guardrails:     string(guardrails),
	}

	postRows := make([]PostRecord, 0, len(posts))
	for _, p := range posts {
		postRows = append(postRows, PostRecord{
			RunID: result.RunID, PostID: p.ID, Title: p.Title, Body: p.Body,
			Author: p.Author, Score: p.Score, URL: p.URL, CreatedAt: p.CreatedAt,
		})
	}
	sentRows := make([]SentimentRecord, 0, len(sentiments))
	for _, r := range sentiments {
		sentRows = append(sentRows, SentimentRecord{
			RunID: result.RunID, PostID: r.PostID, Label: string(r.Label), Score: r.Score, Rule: r.Rule,
		})
	}
	candRows := make([]CandidateRecord, 0, len(result.Candidates))
	for i, c := range result.Candidates {
		caveats, err := json.Marshal(c.Caveats)
		if err != nil {
			return fmt.Errorf("save run %s: caveats for %s: %w", result.RunID, c.Symbol, err)
		}
		candRows = append(candRows, CandidateRecord{
			RunID:        result.RunID,
			Rank:         i + 1,
			Symbol:       c.Symbol,
			Strike:       c.Contract.Strike,
			Expiration:   c.Contract.ExpirationDate,
			Bid:          c.Contract.Bid,
			Ask:          c.Contract.Ask,
			OpenInterest: c.Contract.OpenInterest,
			WeeklyYield:  c.WeeklyYield,
			Caveats:      string(caveats),
		})
	}
	skipRows := make([]SkipRecord, 0, len(result.Skipped))
	for _, sk := range result.Skipped {
		skipRows = append(skipRows, SkipRecord{RunID: result.RunID, Symbol: sk.Symbol, Reason: string(sk.Reason), Detail: sk.Detail})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return err
		}
		if len(postRows) > 0 {
			if err := tx.CreateInBatches(postRows, 100).Error; err != nil {
				return err
			}
		}
		if len(sentRows) > 0 {
			if err := tx.CreateInBatches(sentRows, 100).Error; err != nil {
				return err
			}
		}
		if len(candRows) > 0 {
			if err := tx.Create(&candRows).Error; err != nil {
				return err
			}
		}
		if len(skipRows) > 0 {
			if err := tx.Create(&skipRows).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save run %s: %w", result.RunID, err)
	}

	logger.Debug(ctx, "Run saved", "run_id", result.RunID, "posts", len(postRows), "candidates", len(candRows), "skips", len(skipRows))
	return nil
}

// Runs returns the most recent runs, newest first
func (s *Store) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	var runs []RunRecord
	q := s.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// Candidates returns a run's candidates in rank order
func (s *Store) Candidates(ctx context.Context, runID string) ([]CandidateRecord, error) {
	var rows []CandidateRecord
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("rank ASC").Find(&rows).Error
	return rows, err
}

func (s *Store) Skips(ctx context.Context, runID string) ([]SkipRecord, error) {
	var rows []SkipRecord
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("id ASC").Find(&rows).Error
	return rows, err
}

// SentimentCounts tallies stored labels for a run
func (s *Store) SentimentCounts(ctx context.Context, runID string) (map[string]int, error) {
	var rows []struct {
		Label string
		N     int
	}
	err := s.db.WithContext(ctx).Model(&SentimentRecord{}).
		Select("label, count(*) as n").
		Where("run_id = ?", runID).
		Group("label").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Label] = r.N
	}
	return out, nil
}
