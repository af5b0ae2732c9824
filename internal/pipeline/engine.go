// Package pipeline routes every input row through a place lookup into exactly
// one of two CSV sinks, checkpointing progress as it goes.
//
// Two execution modes share that contract. With one worker rows are handled
// strictly in input order and the checkpoint after row N is exactly N. With
// more workers the eligible rows are loaded into memory and fanned out; results
// are written in completion order and the checkpoint advances by the number of
// rows completed, not by the highest contiguous index. A pooled run that dies
// mid-way may therefore re-process some rows on resume; it never skips one.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/shpitdev/place-enricher/internal/enrich"
	"github.com/shpitdev/place-enricher/pkg/pipeline/checkpoint"
	"github.com/shpitdev/place-enricher/pkg/pipeline/core"
	"github.com/shpitdev/place-enricher/pkg/pipeline/worker"
)

// Options control one engine run.
type Options struct {
	// StartRow is the resume offset; rows with a smaller index are read and discarded.
	StartRow int
	// Limit caps the rows processed after StartRow. Zero means unlimited.
	Limit int
	// Workers is the concurrency width. Values below 2 select sequential mode.
	Workers int
	// Delay is slept by a worker before each lookup.
	Delay time.Duration
	// CheckpointEvery saves progress every K rows. Zero disables checkpoints.
	CheckpointEvery int
	// RateLimitRPS caps aggregate lookups per second in pooled mode. Zero disables.
	RateLimitRPS float64
}

// Checkpointer persists the resume position.
type Checkpointer interface {
	Save(lastRow int, stats checkpoint.Stats) error
}

// Observer receives per-row and per-checkpoint events, e.g. for metrics.
type Observer interface {
	RowDone(matched bool, elapsed time.Duration)
	CheckpointSaved(lastRow int)
}

// Sinks are the two destinations every row is routed to.
type Sinks struct {
	Success core.RowSink
	Failure core.RowSink
}

// Config wires an Engine.
type Config struct {
	Lookup     enrich.Lookuper
	Format     Format
	Sinks      Sinks
	Checkpoint Checkpointer
	Observer   Observer
	Logger     *zap.Logger
}

// Outcome is the result of looking up one row.
type Outcome struct {
	Index   int
	Request enrich.Request
	Place   enrich.Place
	Matched bool
	Elapsed time.Duration
}

// Engine runs enrichment over a row source.
type Engine struct {
	lookup enrich.Lookuper
	format Format
	sinks  Sinks
	ckpt   Checkpointer
	obs    Observer
	log    *zap.Logger

	writeMu sync.Mutex
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Lookup == nil {
		return nil, errors.New("pipeline: lookup is required")
	}
	if cfg.Sinks.Success == nil || cfg.Sinks.Failure == nil {
		return nil, errors.New("pipeline: success and failure sinks are required")
	}
	if cfg.Format.normalize == nil {
		cfg.Format = FormatFor(cfg.Format.Kind)
	}
	obs := cfg.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		lookup: cfg.Lookup,
		format: cfg.Format,
		sinks:  cfg.Sinks,
		ckpt:   cfg.Checkpoint,
		obs:    obs,
		log:    log,
	}, nil
}

// tally holds run counters shared by workers. Checkpoints are written while
// holding mu so the saved stats always match the saved position.
type tally struct {
	mu        sync.Mutex
	success   int
	failed    int
	skipped   int
	processed int
}

func (t *tally) snapshot() checkpoint.Stats {
	return checkpoint.Stats{Success: t.success, Failed: t.failed, Skipped: t.skipped}
}

// Run processes rows according to opts and returns the final counters. On
// context cancellation in-flight rows are abandoned, the final checkpoint is
// still written, and the context error is returned alongside the counters.
func (e *Engine) Run(ctx context.Context, rows core.RowSource, opts Options) (checkpoint.Stats, error) {
	if opts.StartRow < 0 {
		opts.StartRow = 0
	}
	t := &tally{skipped: opts.StartRow}

	var (
		pos    int
		runErr error
	)
	if opts.Workers > 1 {
		pos, runErr = e.runPooled(ctx, rows, opts, t)
	} else {
		pos, runErr = e.runSequential(ctx, rows, opts, t)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.snapshot()
	if opts.CheckpointEvery > 0 {
		runErr = multierr.Append(runErr, e.saveLocked(pos, stats))
	}
	return stats, runErr
}

func (e *Engine) runSequential(ctx context.Context, rows core.RowSource, opts Options, t *tally) (int, error) {
	pos := opts.StartRow
	for {
		row, err := rows.Next()
		if errors.Is(err, io.EOF) {
			return pos, nil
		}
		if err != nil {
			return pos, err
		}
		if row.Index < opts.StartRow {
			continue
		}
		if opts.Limit > 0 && row.Index-opts.StartRow >= opts.Limit {
			return pos, nil
		}
		if err := worker.Sleep(ctx, opts.Delay); err != nil {
			return pos, err
		}

		out := e.process(ctx, row)
		if err := ctx.Err(); err != nil {
			return pos, err
		}
		if err := e.write(out); err != nil {
			return pos, err
		}
		pos = row.Index + 1

		t.mu.Lock()
		t.count(out.Matched)
		var saveErr error
		if opts.CheckpointEvery > 0 && pos%opts.CheckpointEvery == 0 {
			saveErr = e.saveLocked(pos, t.snapshot())
		}
		t.mu.Unlock()
		if saveErr != nil {
			return pos, saveErr
		}
	}
}

func (e *Engine) runPooled(ctx context.Context, rows core.RowSource, opts Options, t *tally) (int, error) {
	var batch []core.Row
	for {
		row, err := rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return opts.StartRow, err
		}
		if row.Index < opts.StartRow {
			continue
		}
		if opts.Limit > 0 && row.Index-opts.StartRow >= opts.Limit {
			break
		}
		batch = append(batch, row)
	}
	e.log.Info("pooled run starting", zap.Int("rows", len(batch)), zap.Int("workers", opts.Workers))

	process := func(reqCtx context.Context, row core.Row) (Outcome, error) {
		out := e.process(reqCtx, row)
		if err := ctx.Err(); err != nil {
			return out, err
		}
		// The pool cancels reqCtx after a fatal sink or checkpoint error; a
		// lookup that hit its own deadline is still a written failure.
		if err := reqCtx.Err(); errors.Is(err, context.Canceled) {
			return out, err
		}
		return out, nil
	}
	// fatal is only touched from the callback, which runs on this goroutine.
	var fatal error
	onResult := func(res worker.Result[core.Row, Outcome]) error {
		if fatal != nil {
			return fatal
		}
		if res.Err != nil {
			return nil
		}
		if err := e.write(res.Output); err != nil {
			fatal = err
			return err
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		t.count(res.Output.Matched)
		if opts.CheckpointEvery > 0 && t.processed%opts.CheckpointEvery == 0 {
			if err := e.saveLocked(opts.StartRow+t.processed, t.snapshot()); err != nil {
				fatal = err
				return err
			}
		}
		return nil
	}

	_, err := worker.ProcessAllWithCallback(ctx, batch, process, onResult, worker.Options{
		Workers:       opts.Workers,
		Pacing:        opts.Delay,
		RateLimitRPS:  opts.RateLimitRPS,
		FailurePolicy: worker.FailurePolicyPartialOutput,
	})

	t.mu.Lock()
	pos := opts.StartRow + t.processed
	t.mu.Unlock()
	return pos, err
}

func (t *tally) count(matched bool) {
	t.processed++
	if matched {
		t.success++
	} else {
		t.failed++
	}
}

func (e *Engine) process(ctx context.Context, row core.Row) Outcome {
	req := e.format.Normalize(row)
	start := time.Now()
	p, ok := e.lookup.Lookup(ctx, req)
	e.log.Debug("row looked up",
		zap.Int("row", row.Index),
		zap.String("name", req.Name),
		zap.Bool("matched", ok),
	)
	return Outcome{Index: row.Index, Request: req, Place: p, Matched: ok, Elapsed: time.Since(start)}
}

// write renders out and appends it to exactly one sink. The observer only
// hears about rows that actually landed.
func (e *Engine) write(out Outcome) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	var err error
	if out.Matched {
		err = e.sinks.Success.Write(e.format.Success(out.Request, out.Place))
	} else {
		err = e.sinks.Failure.Write(e.format.Failure(out.Request, NotFoundReason))
	}
	if err != nil {
		return fmt.Errorf("row %d: %w", out.Index, err)
	}
	e.obs.RowDone(out.Matched, out.Elapsed)
	return nil
}

// saveLocked must be called with the tally lock held.
func (e *Engine) saveLocked(pos int, stats checkpoint.Stats) error {
	if e.ckpt == nil {
		return nil
	}
	if err := e.ckpt.Save(pos, stats); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	e.obs.CheckpointSaved(pos)
	e.log.Info("checkpoint saved",
		zap.Int("last_row", pos),
		zap.Int("success", stats.Success),
		zap.Int("failed", stats.Failed),
	)
	return nil
}

type nopObserver struct{}

func (nopObserver) RowDone(bool, time.Duration) {}
func (nopObserver) CheckpointSaved(int)         {}
