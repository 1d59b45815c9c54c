package runlog

import (
	"compress/gzip"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"thetagang-wheel/internal/types"
)

const ext = ".jsonl"

// Journal appends one JSON line per candidate and per skip to <dir>/YYYY-MM-DD.jsonl
type Journal struct {
	dir string
	loc *time.Location
	now func() time.Time
	mu  sync.Mutex
}

type Option func(*Journal)

func WithLocation(loc *time.Location) Option {
	return func(j *Journal) { j.loc = loc }
}

func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

func New(dir string, opts ...Option) *Journal {
	j := &Journal{dir: dir, loc: time.UTC, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Path returns the journal file for the day containing t
func (j *Journal) Path(t time.Time) string {
	return filepath.Join(j.dir, t.In(j.loc).Format("2006-01-02")+ext)
}

// Record writes every candidate and skip of a finished run
func (j *Journal) Record(result *types.RunResult) (err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	path := j.Path(now)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	log := newLogger(f, func() time.Time { return now.In(j.loc) }).With(
		zap.String("run_id", result.RunID),
		zap.String("expiry", result.Expiry.Format("2006-01-02")),
	)

	for i, c := range result.Candidates {
		log.Info("candidate",
			zap.Int("rank", i+1),
			zap.String("symbol", c.Symbol),
			zap.Float64("strike", c.Contract.Strike),
			zap.Float64("bid", c.Contract.Bid),
			zap.Float64("ask", c.Contract.Ask),
			zap.Int64("open_interest", c.Contract.OpenInterest),
			zap.Float64("weekly_yield", c.WeeklyYield),
			zap.Strings("caveats", caveatKinds(c.Caveats)),
		)
	}
	for _, s := range result.Skipped {
		log.Info("skip",
			zap.String("symbol", s.Symbol),
			zap.String("reason", string(s.Reason)),
			zap.String("detail", s.Detail),
		)
	}
	return log.Sync()
}

func newLogger(w io.Writer, now func() time.Time) *zap.Logger {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "time",
		MessageKey:     "event",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(w), zapcore.InfoLevel)
	return zap.New(core, zap.WithClock(fixedClock(now)))
}

type fixedClock func() time.Time

func (c fixedClock) Now() time.Time                         { return c() }
func (c fixedClock) NewTicker(d time.Duration) *time.Ticker { return time.NewTicker(d) }

func caveatKinds(caveats []types.Caveat) []string {
	out := make([]string, 0, len(caveats))
	for _, c := range caveats {
		out = append(out, string(c.Kind))
	}
	return out
}

// CompressOlder gzips journal files last modified more than retentionDays ago and removes the originals
func (j *Journal) CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := j.now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(j.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || filepath.Ext(p) != ext {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		if _, err := os.Stat(gz); err == nil {
			return os.Remove(p)
		}
		if err := gzipFile(p, gz); err != nil {
			return err
		}
		return os.Remove(p)
	})
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := gw.Close(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
