// Package replay re-runs saved fuzz corpora through a harness. This is the
// reproduce workflow: after a fuzzing campaign, every corpus entry and crash
// artifact gets fed through the same single-input driver the engine used, so
// a finding can be pinned down without the engine in the loop.
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/esfuzz/harness"
	"github.com/zsiec/esfuzz/internal/corpus"
)

// Stats aggregates the outcome of a replay pass.
type Stats struct {
	Inputs  int   // unique inputs fed through the harness
	Skipped int   // inputs skipped as byte-identical duplicates
	Bytes   int64 // total bytes fed
}

// Runner replays corpus files through a harness with a bounded worker pool.
// Each input runs through its own parser instance, so inputs are independent
// and safe to run concurrently.
type Runner struct {
	h       *harness.Harness
	workers int
	logger  *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers sets the worker-pool size. Values below 1 are treated as 1.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n < 1 {
			n = 1
		}
		r.workers = n
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a Runner over the given harness.
func NewRunner(h *harness.Harness, opts ...Option) *Runner {
	r := &Runner{
		h:       h,
		workers: 4,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run expands paths into corpus files, dedupes them by content, and feeds
// every unique input through the harness. It stops early on context
// cancellation or when a file cannot be read; a crash in the parser under
// test escapes as a panic, same as under the fuzzing engine.
func (r *Runner) Run(ctx context.Context, paths []string) (Stats, error) {
	files, err := corpus.Walk(paths)
	if err != nil {
		return Stats{}, err
	}
	r.logger.Debug("corpus expanded", "paths", len(paths), "files", len(files))

	seen := corpus.NewSet()
	var inputs, skipped, bytes atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, file := range files {
		file := file
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("replay: %w", err)
			}
			if !seen.First(data) {
				skipped.Add(1)
				r.logger.Debug("duplicate input skipped", "file", file)
				return nil
			}
			r.logger.Debug("replaying input", "file", file, "size", len(data))
			r.h.Run(data)
			inputs.Add(1)
			bytes.Add(int64(len(data)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return Stats{
		Inputs:  int(inputs.Load()),
		Skipped: int(skipped.Load()),
		Bytes:   bytes.Load(),
	}, nil
}
