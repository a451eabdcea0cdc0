// Package engine runs the worker pool: a shared location queue, one session
// driver per worker, and a single aggregator persisting their results.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/quickscout/internal/browser"
	"github.com/IshaanNene/quickscout/internal/config"
	"github.com/IshaanNene/quickscout/internal/extract"
	"github.com/IshaanNene/quickscout/internal/fetcher"
	"github.com/IshaanNene/quickscout/internal/observability"
	"github.com/IshaanNene/quickscout/internal/session"
	"github.com/IshaanNene/quickscout/internal/storage"
	"github.com/IshaanNene/quickscout/internal/types"
)

// State represents the coordinator's current lifecycle state.
type State int32

const (
	StateIdle     State = 0
	StateRunning  State = 1
	StateStopping State = 2
	StateStopped  State = 3
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats tracks live pool statistics.
type Stats struct {
	WorkersStarted atomic.Int32
	ActiveWorkers  atomic.Int32
	LaunchFailures atomic.Int32
	WorkersBlocked atomic.Int32
	LocationsDone  atomic.Int64
	Abandoned      atomic.Int64
	StartTime      time.Time
}

// Snapshot returns a copy of stats safe for reading.
func (s *Stats) Snapshot() map[string]any {
	return map[string]any{
		"workers_started":     s.WorkersStarted.Load(),
		"active_workers":      s.ActiveWorkers.Load(),
		"launch_failures":     s.LaunchFailures.Load(),
		"workers_blocked":     s.WorkersBlocked.Load(),
		"locations_done":      s.LocationsDone.Load(),
		"locations_abandoned": s.Abandoned.Load(),
		"elapsed":             time.Since(s.StartTime).String(),
	}
}

// Report summarizes a finished run.
type Report struct {
	RunID     string
	Locations int
	Skipped   int
	Workers   int
	Done      int
	Abandoned int
	Blocked   []types.Location
	Records   int64
	Dropped   int64
	Failed    int64
	Elapsed   time.Duration
}

// AvgPerLocation returns the mean wall time per processed location.
func (r *Report) AvgPerLocation() time.Duration {
	n := r.Done + r.Abandoned + len(r.Blocked)
	if n == 0 {
		return 0
	}
	return r.Elapsed / time.Duration(n)
}

// ProductsPerMinute returns the persisted record rate.
func (r *Report) ProductsPerMinute() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Records) / r.Elapsed.Minutes()
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMetrics records pool, session and sink metrics on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithCheckpoint skips locations already recorded in cm and records new
// outcomes there.
func WithCheckpoint(cm *CheckpointManager) Option {
	return func(c *Coordinator) { c.checkpoint = cm }
}

// WithRunID stamps records and the checkpoint with id.
func WithRunID(id string) Option {
	return func(c *Coordinator) { c.runID = id }
}

// Coordinator owns the pool for one run.
type Coordinator struct {
	cfg        *config.Config
	launcher   browser.Launcher
	chain      *extract.Chain
	store      storage.Storage
	metrics    *observability.Metrics
	checkpoint *CheckpointManager
	runID      string
	logger     *slog.Logger

	state atomic.Int32
	stats *Stats

	mu    sync.Mutex
	queue *LocationQueue
}

// NewCoordinator creates a coordinator. It takes ownership of store and
// closes it when Run returns.
func NewCoordinator(cfg *config.Config, launcher browser.Launcher, chain *extract.Chain, store storage.Storage, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:      cfg,
		launcher: launcher,
		chain:    chain,
		store:    store,
		logger:   logger.With("component", "coordinator"),
		stats:    &Stats{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes tasks with min(pool.workers, len(tasks)) workers and
// returns once every result has been persisted. It fails with
// types.ErrLaunchFailed when no worker could start a browser.
func (c *Coordinator) Run(ctx context.Context, tasks []types.Task) (*Report, error) {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, fmt.Errorf("coordinator is in state %s, cannot run", State(c.state.Load()))
	}
	defer c.state.Store(int32(StateStopped))

	c.stats.StartTime = time.Now()
	report := &Report{RunID: c.runID, Locations: len(tasks)}

	if c.checkpoint != nil {
		if err := c.checkpoint.Load(); err != nil {
			c.logger.Warn("checkpoint unreadable, starting fresh", "error", err)
		}
		var skipped int
		tasks, skipped = c.checkpoint.Filter(tasks)
		report.Skipped = skipped
		for i := 0; i < skipped; i++ {
			c.metrics.IncLocation(observability.OutcomeSkipped)
		}
		if skipped > 0 {
			c.logger.Info("resuming from checkpoint", "skipped", skipped, "remaining", len(tasks))
		}
	}

	workers := min(c.cfg.Pool.Workers, len(tasks))
	if workers < 1 && len(tasks) > 0 {
		workers = 1
	}
	report.Workers = workers

	queue := NewLocationQueue(tasks)
	c.mu.Lock()
	c.queue = queue
	if c.GetState() == StateStopping {
		queue.Close()
	}
	c.mu.Unlock()
	results := NewResultQueue()

	drivers := make([]*session.Driver, workers)
	for i := range drivers {
		d, err := session.NewDriver(i+1, c.cfg, c.launcher, c.chain, results, c.logger,
			session.WithMetrics(c.metrics), session.WithRunID(c.runID))
		if err != nil {
			c.closeStore()
			return nil, fmt.Errorf("create driver: %w", err)
		}
		drivers[i] = d
	}

	c.logger.Info("pool starting",
		"platform", c.cfg.Site.Platform,
		"locations", len(tasks),
		"workers", workers,
		"run_id", c.runID,
	)

	agg := NewAggregator(results, c.store, c.metrics, c.logger)
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		agg.Run(context.WithoutCancel(ctx))
	}()

	var (
		wg       sync.WaitGroup
		resMu    sync.Mutex
		outcomes []WorkerResult
	)
	for i, d := range drivers {
		if i > 0 {
			stagger := fetcher.RandomBetween(c.cfg.Pool.StaggerMin, c.cfg.Pool.StaggerMax)
			if err := fetcher.Sleep(ctx, stagger); err != nil {
				c.logger.Info("start interrupted", "started", i)
				break
			}
		}
		w := NewWorker(i+1, c.cfg, queue, d, c.checkpoint, c.metrics, c.logger)
		c.stats.WorkersStarted.Add(1)
		c.stats.ActiveWorkers.Add(1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer c.stats.ActiveWorkers.Add(-1)
			r := w.Run(ctx)
			c.record(r)
			resMu.Lock()
			outcomes = append(outcomes, r)
			resMu.Unlock()
		}()
	}

	wg.Wait()
	results.Close()
	<-aggDone
	c.closeStore()

	if dropped := results.Dropped(); dropped > 0 {
		c.logger.Warn("batches pushed after shutdown were dropped", "batches", dropped)
	}
	if err := c.checkpoint.Save(c.runID); err != nil {
		c.logger.Error("checkpoint save failed", "error", err)
	}

	launchFailures := 0
	for _, r := range outcomes {
		report.Done += r.Done
		report.Abandoned += r.Abandoned
		if r.Outcome == WorkerBlocked {
			report.Blocked = append(report.Blocked, r.Blocked)
		}
		if r.Outcome == WorkerLaunchFailed {
			launchFailures++
		}
	}
	report.Records = agg.Persisted()
	report.Dropped = agg.Dropped()
	report.Failed = agg.Failed()
	report.Elapsed = time.Since(c.stats.StartTime)

	c.logger.Info("pool finished",
		"done", report.Done,
		"abandoned", report.Abandoned,
		"blocked", len(report.Blocked),
		"records", report.Records,
		"elapsed", report.Elapsed.Round(time.Millisecond),
		"unclaimed", queue.Len(),
	)

	if launchFailures > 0 && launchFailures == len(outcomes) {
		return report, fmt.Errorf("%w: all %d workers failed to start", types.ErrLaunchFailed, launchFailures)
	}
	return report, nil
}

func (c *Coordinator) record(r WorkerResult) {
	c.stats.LocationsDone.Add(int64(r.Done))
	c.stats.Abandoned.Add(int64(r.Abandoned))
	switch r.Outcome {
	case WorkerBlocked:
		c.stats.WorkersBlocked.Add(1)
	case WorkerLaunchFailed:
		c.stats.LaunchFailures.Add(1)
	}
}

func (c *Coordinator) closeStore() {
	if c.store == nil {
		return
	}
	if err := c.store.Close(); err != nil {
		c.logger.Error("storage close error", "error", err)
	}
}

// Stop closes the location queue so workers exit after their current
// location. Unclaimed locations stay unprocessed.
func (c *Coordinator) Stop() {
	if !c.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return
	}
	c.logger.Info("coordinator stopping...")
	// Run closes a queue created after this point.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queue != nil {
		c.queue.Close()
	}
}

// Stats returns the live pool statistics.
func (c *Coordinator) Stats() *Stats {
	return c.stats
}

// GetState returns the current coordinator state.
func (c *Coordinator) GetState() State {
	return State(c.state.Load())
}
