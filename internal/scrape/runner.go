// Package scrape drives the periodic pass over the watchlist sources.
package scrape

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pkaris/listbridge/internal/media"
	"github.com/pkaris/listbridge/internal/metrics"
)

// Adapter is one watchlist source the runner drives.
type Adapter interface {
	Source() media.Source
	Scrape(ctx context.Context, username string, sink media.Sink) error
}

// Target pairs an adapter with the usernames to scrape from it.
type Target struct {
	Adapter   Adapter
	Usernames []string
}

// Runner executes scrape passes on a fixed interval. The adapters run
// strictly one after the other so their rate budgets never compete, and at
// most one pass is ever in flight: a tick that fires while a pass is still
// running is skipped.
type Runner struct {
	targets  []Target
	sink     media.Sink
	notifier media.Notifier
	interval time.Duration
	logger   *zap.Logger

	mu sync.Mutex
}

// New builds a Runner.
func New(
	targets []Target,
	sink media.Sink,
	notifier media.Notifier,
	interval time.Duration,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		targets:  targets,
		sink:     sink,
		notifier: notifier,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks, executing one pass immediately and then one per interval until
// the context finishes. A pass that is already running is never interrupted;
// cancellation takes effect between passes.
func (r *Runner) Run(ctx context.Context) {
	r.RunPass(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunPass(ctx)
		}
	}
}

// RunPass executes a single pass over every target. If another pass is in
// flight the call is skipped; overlapping passes would corrupt ledger
// ordering.
func (r *Runner) RunPass(ctx context.Context) {
	if !r.mu.TryLock() {
		r.logger.Warn("scrape pass still running, skipping trigger")
		metrics.ObservePass("skipped")
		return
	}
	defer r.mu.Unlock()

	passID := uuid.NewString()
	start := time.Now()
	logger := r.logger.With(zap.String("pass_id", passID))
	logger.Info("scrape pass started")

	failures := 0
	for _, target := range r.targets {
		source := target.Adapter.Source()
		for _, username := range target.Usernames {
			if err := target.Adapter.Scrape(ctx, username, r.sink); err != nil {
				failures++
				logger.Error("username scrape failed",
					zap.String("source", string(source)),
					zap.String("username", username),
					zap.Error(err),
				)
				if r.notifier != nil {
					r.notifier.NotifyError(ctx, source, username, err)
				}
			}
		}
	}

	outcome := "ok"
	if failures > 0 {
		outcome = "partial"
	}
	metrics.ObservePass(outcome)
	logger.Info("scrape pass finished",
		zap.Int("failures", failures),
		zap.Duration("elapsed", time.Since(start)),
	)
}
