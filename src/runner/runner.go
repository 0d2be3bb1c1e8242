package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/mem-eval/membench/src/adapter"
	"github.com/mem-eval/membench/src/concurrent"
	"github.com/mem-eval/membench/src/facts"
	"github.com/mem-eval/membench/src/runlog"
)

const (
	// PhasePass1 covers the first pass: search, then backfill memory on a miss.
	PhasePass1 = "pass1"
	// PhasePass2 covers the second pass: search only, measuring recall after
	// the pass-1 writes have landed.
	PhasePass2 = "pass2"

	searchK        = 5
	fatReturnCap   = 200
	fatWriteTopK   = 5
	pageThrottle   = 50 * time.Millisecond
	backoffBase    = 400 * time.Millisecond
	backoffCeiling = 6 * time.Second
	maxWriteTries  = 5
	preseedWorkers = 4
)

// Config selects the benchmark shape. Zero values fall back to the defaults
// in withDefaults.
type Config struct {
	Mode         facts.Mode
	Pages        int
	PageSize     int
	NFacts       int
	NGold        int
	GoldEntities int
	Queries      int
	Seed         int64
	Passes       int
	CapPerPage   int
	Out          string
	Namespace    string
	Framework    string
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = facts.ModeFat
	}
	if c.Pages <= 0 {
		c.Pages = 3
	}
	if c.PageSize <= 0 {
		c.PageSize = 50
	}
	if c.NFacts <= 0 {
		c.NFacts = 10000
	}
	if c.NGold <= 0 {
		c.NGold = 500
	}
	if c.GoldEntities <= 0 {
		c.GoldEntities = 50
	}
	if c.Queries <= 0 {
		c.Queries = c.GoldEntities
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
	if c.Passes <= 0 {
		c.Passes = 2
	}
	if c.CapPerPage <= 0 {
		c.CapPerPage = 2
	}
	if c.Out == "" {
		c.Out = fmt.Sprintf("membench_%s.jsonl", c.Mode)
	}
	if c.Framework == "" {
		c.Framework = "membench"
	}
	return c
}

// Runner drives the two-pass benchmark against a MemoryAdapter and records
// every query to a JSON-lines log.
type Runner struct {
	cfg     Config
	backend *facts.Backend
	mem     adapter.MemoryAdapter
	logW    *runlog.Writer
	runID   string
	stdout  io.Writer
	logger  *log.Logger
}

// New builds a runner with its synthetic fact corpus and an open run log.
func New(cfg Config, mem adapter.MemoryAdapter) (*Runner, error) {
	cfg = cfg.withDefaults()
	if _, err := facts.ParseMode(string(cfg.Mode)); err != nil {
		return nil, err
	}
	backend := facts.NewSyntheticBackend(facts.Options{
		NFacts:       cfg.NFacts,
		NGold:        cfg.NGold,
		GoldEntities: cfg.GoldEntities,
		Seed:         cfg.Seed,
	})
	logW, err := runlog.NewWriter(cfg.Out)
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:     cfg,
		backend: backend,
		mem:     mem,
		logW:    logW,
		runID:   uuid.NewString(),
		stdout:  os.Stdout,
		logger:  log.New(os.Stderr, "runner: ", log.LstdFlags),
	}, nil
}

// RunID returns the identifier stamped on every record of this run.
func (r *Runner) RunID() string { return r.runID }

// SetOutput redirects the per-record echo (used by tests).
func (r *Runner) SetOutput(w io.Writer) { r.stdout = w }

// Preseed writes the first n gold facts into memory before the benchmark
// starts, in parallel, so remote backends begin warm.
func (r *Runner) Preseed(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	queries := facts.GoldQueries(n, 0)
	err := concurrent.ParallelForEach(ctx, queries, func(q string) error {
		ranked := r.backend.Query(q, facts.ModePaged, 1, 1)
		if len(ranked) == 0 {
			return nil
		}
		_, err := r.mem.Write(ctx, ranked, adapter.ScopeLongTerm)
		return err
	}, preseedWorkers)
	if err != nil {
		return fmt.Errorf("preseed: %w", err)
	}
	r.logger.Printf("preseeded %d gold facts", n)
	return nil
}

// Run executes the configured passes over the gold queries. The first pass
// backfills memory on every miss; later passes only search.
func (r *Runner) Run(ctx context.Context) error {
	queries := facts.GoldQueries(r.cfg.Queries, 0)
	r.logger.Printf("run %s: mode=%s queries=%d corpus=%d passes=%d",
		r.runID, r.cfg.Mode, len(queries), r.backend.Size(), r.cfg.Passes)

	for pass := 1; pass <= r.cfg.Passes; pass++ {
		phase := fmt.Sprintf("pass%d", pass)
		backfill := pass == 1
		for _, q := range queries {
			if err := r.runQuery(ctx, phase, q, backfill); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close flushes the run log. The memory adapter stays open; the caller owns it.
func (r *Runner) Close() error {
	return r.logW.Close()
}

func (r *Runner) runQuery(ctx context.Context, phase, query string, backfill bool) error {
	start := time.Now()
	hits, err := r.mem.Search(ctx, query, searchK, 1, r.cfg.PageSize)
	if err != nil {
		return fmt.Errorf("search %q: %w", query, err)
	}
	hit := adapter.AnyTrueHit(query, hits)

	written := 0
	if backfill && !hit {
		written = r.backfillMiss(ctx, query)
	}

	rec := runlog.Record{
		Framework:    r.cfg.Framework,
		RunID:        r.runID,
		Phase:        phase,
		Query:        query,
		Mode:         string(r.cfg.Mode),
		UsedMemory:   hit,
		ItemsWritten: written,
		LatencyMS:    float64(time.Since(start)) / float64(time.Millisecond),
		Namespace:    r.cfg.Namespace,
	}
	if err := r.logW.Append(rec); err != nil {
		return err
	}
	r.echo(rec)
	return nil
}

// backfillMiss pulls facts from the synthetic backend and writes them into
// memory. Fat mode takes one capped ranked list and writes the top few; paged
// mode walks the pages and writes a couple of items per page, throttled.
func (r *Runner) backfillMiss(ctx context.Context, query string) int {
	if r.cfg.Mode == facts.ModeFat {
		ranked := r.backend.Query(query, facts.ModeFat, 0, 0)
		if len(ranked) > fatReturnCap {
			ranked = ranked[:fatReturnCap]
		}
		top := ranked
		if len(top) > fatWriteTopK {
			top = top[:fatWriteTopK]
		}
		return r.writeWithRetry(ctx, query, top)
	}

	written := 0
	for page := 1; page <= r.cfg.Pages; page++ {
		items := r.backend.Query(query, facts.ModePaged, page, r.cfg.PageSize)
		if len(items) == 0 {
			break
		}
		if len(items) > r.cfg.CapPerPage {
			items = items[:r.cfg.CapPerPage]
		}
		written += r.writeWithRetry(ctx, query, items)
		if page < r.cfg.Pages {
			select {
			case <-ctx.Done():
				return written
			case <-time.After(pageThrottle):
			}
		}
	}
	return written
}

// writeWithRetry retries transient write failures with exponential backoff.
// A write that keeps failing is logged and dropped; the run continues.
func (r *Runner) writeWithRetry(ctx context.Context, query string, items []facts.Fact) int {
	delay := backoffBase
	var lastErr error
	for attempt := 1; attempt <= maxWriteTries; attempt++ {
		n, err := r.mem.Write(ctx, items, adapter.ScopeLongTerm)
		if err == nil {
			return n
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		r.logger.Printf("write for %q failed (attempt %d/%d): %v", query, attempt, maxWriteTries, err)
		select {
		case <-ctx.Done():
			return 0
		case <-time.After(delay):
		}
		delay *= 2
		if delay > backoffCeiling {
			delay = backoffCeiling
		}
	}
	r.logger.Printf("giving up on write for %q: %v", query, lastErr)
	return 0
}

func (r *Runner) echo(rec runlog.Record) {
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	fmt.Fprintln(r.stdout, string(line))
}
