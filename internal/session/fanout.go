package session

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/IshaanNene/quickscout/internal/browser"
	"github.com/IshaanNene/quickscout/internal/observability"
	"github.com/IshaanNene/quickscout/internal/types"
)

// SubtaskFunc scrapes one target on an isolated page. A returned error that
// carries types.ErrBlocked stops the whole fan-out.
type SubtaskFunc func(ctx context.Context, page browser.Page, target types.Target) error

// SubtaskScheduler runs sub-tasks with at most K isolated contexts open at
// once.
type SubtaskScheduler struct {
	k       int
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewSubtaskScheduler creates a scheduler with capacity k (minimum 1).
func NewSubtaskScheduler(k int, metrics *observability.Metrics, logger *slog.Logger) *SubtaskScheduler {
	if k < 1 {
		k = 1
	}
	return &SubtaskScheduler{
		k:       k,
		metrics: metrics,
		logger:  logger.With("component", "fanout"),
	}
}

// Capacity is K.
func (s *SubtaskScheduler) Capacity() int { return s.k }

// Run opens one isolated context per target on sess and calls fn in it.
// Contexts are closed on every exit path. Non-block errors are logged and
// swallowed; the first block error cancels the remaining sub-tasks and is
// returned.
func (s *SubtaskScheduler) Run(ctx context.Context, sess browser.Session, targets []types.Target, fn SubtaskFunc) error {
	sem := semaphore.NewWeighted(int64(s.k))
	g, gctx := errgroup.WithContext(ctx)

	for _, target := range targets {
		if gctx.Err() != nil {
			break
		}
		if err := sem.Acquire(gctx, 1); err != nil {
			break // cancelled by a block or by ctx
		}
		g.Go(func() error {
			defer sem.Release(1)
			return s.runOne(gctx, sess, target, fn)
		})
	}

	err := g.Wait()
	if err != nil {
		s.logger.Warn("fan-out stopped", "targets", len(targets), "error", err)
	}
	return err
}

func (s *SubtaskScheduler) runOne(ctx context.Context, sess browser.Session, target types.Target, fn SubtaskFunc) error {
	page, err := sess.NewIsolatedContext(ctx)
	if err != nil {
		s.logger.Warn("failed to open isolated context", "url", target.URL, "error", err)
		return nil
	}
	s.metrics.ContextOpened()
	defer s.metrics.ContextClosed()
	defer func() {
		if err := page.Close(); err != nil {
			s.logger.Debug("close isolated context", "error", err)
		}
	}()

	if err := fn(ctx, page, target); err != nil {
		if types.IsBlocked(err) {
			return err
		}
		s.logger.Warn("sub-task failed", "url", target.URL, "error", err)
	}
	return nil
}
