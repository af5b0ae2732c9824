// Package app wires configuration, I/O and collaborators into the enrich and
// scrape runs driven by cmd/placeenricher.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/shpitdev/place-enricher/internal/enrich"
	"github.com/shpitdev/place-enricher/internal/pipeline"
	"github.com/shpitdev/place-enricher/pkg/pipeline/checkpoint"
	"github.com/shpitdev/place-enricher/pkg/pipeline/io/local"
	"github.com/shpitdev/place-enricher/pkg/pipeline/schema"
)

// ErrInputNotFound is returned when the enrich input file does not exist.
var ErrInputNotFound = errors.New("input file not found")

// EnrichOptions describe one enrich run over a local CSV.
type EnrichOptions struct {
	InputPath string
	// OutputPath and FailedPath default to <input-base>_enriched.csv and <input-base>_failed.csv.
	OutputPath string
	FailedPath string
	// CheckpointPath defaults to checkpoint.PathFor(OutputPath).
	CheckpointPath string

	Resume          bool
	Limit           int
	Workers         int
	Delay           time.Duration
	CheckpointEvery int
	RateLimitRPS    float64

	// Schema forces an input shape; empty detects it from the header.
	Schema string
}

// EnrichSummary reports a finished (or interrupted) enrich run.
type EnrichSummary struct {
	RunID          string
	Kind           schema.Kind
	StartRow       int
	Stats          checkpoint.Stats
	Started        time.Time
	Elapsed        time.Duration
	OutputPath     string
	FailedPath     string
	CheckpointPath string
}

// Processed is the number of rows looked up in this run.
func (s EnrichSummary) Processed() int { return s.Stats.Success + s.Stats.Failed }

// DefaultOutputPaths derives the success and failure paths from the input path.
func DefaultOutputPaths(input string) (output, failed string) {
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + "_enriched.csv", base + "_failed.csv"
}

// RunEnrich streams opts.InputPath through lookup into the success and failure
// files. Output files are appended to when resuming from a non-zero offset and
// truncated otherwise. A summary is returned even when the run fails part-way.
func RunEnrich(ctx context.Context, opts EnrichOptions, lookup enrich.Lookuper, obs pipeline.Observer, log *zap.Logger) (sum EnrichSummary, err error) {
	if log == nil {
		log = zap.NewNop()
	}
	sum = EnrichSummary{RunID: uuid.NewString(), Started: time.Now()}
	log = log.With(zap.String("run", sum.RunID))

	if _, statErr := os.Stat(opts.InputPath); statErr != nil {
		if errors.Is(statErr, os.ErrNotExist) {
			return sum, fmt.Errorf("%w: %s", ErrInputNotFound, opts.InputPath)
		}
		return sum, statErr
	}
	defOut, defFailed := DefaultOutputPaths(opts.InputPath)
	sum.OutputPath = firstNonEmpty(opts.OutputPath, defOut)
	sum.FailedPath = firstNonEmpty(opts.FailedPath, defFailed)
	sum.CheckpointPath = firstNonEmpty(opts.CheckpointPath, checkpoint.PathFor(sum.OutputPath))

	rows, err := local.OpenRows(opts.InputPath)
	if err != nil {
		return sum, err
	}
	defer func() {
		err = multierr.Append(err, rows.Close())
	}()

	kind := schema.Detect(rows.Header())
	if strings.TrimSpace(opts.Schema) != "" {
		forced, ok := schema.ParseKind(opts.Schema)
		if !ok {
			return sum, fmt.Errorf("unknown schema %q", opts.Schema)
		}
		kind = forced
	}
	sum.Kind = kind
	format := pipeline.FormatFor(kind)

	store := checkpoint.NewStore(sum.CheckpointPath)
	if opts.Resume {
		start, loadErr := store.Load()
		if loadErr != nil {
			return sum, fmt.Errorf("resume: %w", loadErr)
		}
		sum.StartRow = start
		if start > 0 {
			log.Info("resuming from checkpoint", zap.Int("start_row", start), zap.String("checkpoint", sum.CheckpointPath))
		}
	}
	appendMode := opts.Resume && sum.StartRow > 0

	success, err := local.OpenCSVSink(sum.OutputPath, format.SuccessHeader, appendMode)
	if err != nil {
		return sum, err
	}
	defer func() {
		err = multierr.Append(err, success.Close())
	}()
	failed, err := local.OpenCSVSink(sum.FailedPath, format.FailureHeader, appendMode)
	if err != nil {
		return sum, err
	}
	defer func() {
		err = multierr.Append(err, failed.Close())
	}()

	var ckpt pipeline.Checkpointer
	if opts.CheckpointEvery > 0 {
		ckpt = store
	}
	eng, err := pipeline.NewEngine(pipeline.Config{
		Lookup:     lookup,
		Format:     format,
		Sinks:      pipeline.Sinks{Success: success, Failure: failed},
		Checkpoint: ckpt,
		Observer:   obs,
		Logger:     log,
	})
	if err != nil {
		return sum, err
	}

	log.Info("enrich run starting",
		zap.String("input", opts.InputPath),
		zap.String("schema", kind.String()),
		zap.Int("start_row", sum.StartRow),
		zap.Int("limit", opts.Limit),
		zap.Int("workers", opts.Workers),
		zap.Duration("delay", opts.Delay),
		zap.Int("checkpoint_every", opts.CheckpointEvery),
	)
	stats, runErr := eng.Run(ctx, rows, pipeline.Options{
		StartRow:        sum.StartRow,
		Limit:           opts.Limit,
		Workers:         opts.Workers,
		Delay:           opts.Delay,
		CheckpointEvery: opts.CheckpointEvery,
		RateLimitRPS:    opts.RateLimitRPS,
	})
	sum.Stats = stats
	sum.Elapsed = time.Since(sum.Started)
	log.Info("enrich run finished",
		zap.Int("success", stats.Success),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
		zap.Duration("elapsed", sum.Elapsed),
		zap.Error(runErr),
	)
	return sum, runErr
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
