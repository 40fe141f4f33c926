package store

import (
	"context"
	"sync"
	"time"
)

// DefaultPruneInterval is how often Retention prunes history.
const DefaultPruneInterval = time.Hour

// Logger defines the logging interface used by Retention.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Retention periodically prunes state history.
type Retention struct {
	store    *Store
	window   time.Duration
	interval time.Duration
	logger   Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRetention creates a pruning loop keeping window of history.
// A zero interval uses DefaultPruneInterval.
func NewRetention(s *Store, window, interval time.Duration, logger Logger) *Retention {
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	return &Retention{
		store:    s,
		window:   window,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start prunes once immediately and then on every interval until Stop or
// ctx cancellation.
func (r *Retention) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.loop(ctx)
}

// Stop ends the loop. Safe to call multiple times.
func (r *Retention) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}

func (r *Retention) loop(ctx context.Context) {
	defer r.wg.Done()

	r.prune(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			r.prune(ctx)
		}
	}
}

func (r *Retention) prune(ctx context.Context) {
	n, err := r.store.Prune(ctx, r.window)
	if r.logger == nil {
		return
	}
	if err != nil {
		r.logger.Warn("state history prune failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("pruned state history", "rows", n, "retention", r.window)
	}
}
