package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/IshaanNene/quickscout/internal/config"
	"github.com/IshaanNene/quickscout/internal/observability"
	"github.com/IshaanNene/quickscout/internal/types"
)

// LocationDriver is the session a worker drives. *session.Driver satisfies it.
type LocationDriver interface {
	Launch(ctx context.Context) error
	ProcessLocation(ctx context.Context, task types.Task) error
	Cooldown(ctx context.Context) error
	Retire() error
}

// WorkerOutcome says why a worker stopped.
type WorkerOutcome int

const (
	// WorkerIdle means the queue was empty before the worker claimed anything.
	WorkerIdle WorkerOutcome = iota
	// WorkerDrained means the worker ran until the queue or context ran out.
	WorkerDrained
	// WorkerBlocked means the site blocked the session and the worker quit.
	WorkerBlocked
	// WorkerLaunchFailed means the browser never started.
	WorkerLaunchFailed
)

func (o WorkerOutcome) String() string {
	switch o {
	case WorkerIdle:
		return "idle"
	case WorkerDrained:
		return "drained"
	case WorkerBlocked:
		return "blocked"
	case WorkerLaunchFailed:
		return "launch_failed"
	default:
		return "unknown"
	}
}

// WorkerResult summarizes one worker's run.
type WorkerResult struct {
	ID        int
	Outcome   WorkerOutcome
	Done      int
	Abandoned int
	Blocked   types.Location
}

// Worker pulls locations from the queue and feeds them to one driver.
type Worker struct {
	id         int
	cfg        *config.Config
	queue      *LocationQueue
	driver     LocationDriver
	checkpoint *CheckpointManager
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewWorker creates worker id. checkpoint and metrics may be nil.
func NewWorker(id int, cfg *config.Config, queue *LocationQueue, driver LocationDriver, checkpoint *CheckpointManager, metrics *observability.Metrics, logger *slog.Logger) *Worker {
	return &Worker{
		id:         id,
		cfg:        cfg,
		queue:      queue,
		driver:     driver,
		checkpoint: checkpoint,
		metrics:    metrics,
		logger:     logger.With("component", "worker", "worker", id, "platform", cfg.Site.Platform),
	}
}

// Run processes locations until the queue is empty, ctx is cancelled, or the
// session is blocked. A claimed location always runs to completion.
func (w *Worker) Run(ctx context.Context) WorkerResult {
	res := WorkerResult{ID: w.id}

	if ctx.Err() != nil {
		return res
	}
	task, ok := w.queue.TryPop()
	if !ok {
		w.logger.Debug("queue empty, worker not started")
		return res
	}

	if err := w.driver.Launch(ctx); err != nil {
		// Never scraped, so it stays out of the checkpoint for a resumed run.
		w.logger.Error("launch failed, abandoning claimed location", "location", task.Location, "error", err)
		w.metrics.IncLocation(observability.OutcomeAbandoned)
		res.Abandoned++
		res.Outcome = WorkerLaunchFailed
		return res
	}

	for {
		w.logger.Info("processing location", "location", task.Location, "targets", len(task.Targets))
		err := w.driver.ProcessLocation(context.WithoutCancel(ctx), task)

		switch {
		case err == nil:
			w.finish(task.Location, observability.OutcomeDone)
			res.Done++
		case types.IsBlocked(err):
			w.logger.Warn("session blocked, worker exiting", "location", task.Location, "error", err)
			w.metrics.IncLocation(observability.OutcomeBlocked)
			res.Blocked = task.Location
			res.Outcome = WorkerBlocked
			return res
		default:
			var le *types.LocationError
			if errors.As(err, &le) {
				w.logger.Warn("location abandoned", "location", task.Location, "step", le.Step, "error", le.Err)
			} else {
				w.logger.Error("location failed", "location", task.Location, "error", err)
			}
			w.finish(task.Location, observability.OutcomeAbandoned)
			res.Abandoned++
		}

		res.Outcome = WorkerDrained
		if ctx.Err() != nil || w.queue.Len() == 0 {
			w.retire()
			return res
		}
		if err := w.driver.Cooldown(ctx); err != nil {
			w.logger.Debug("cooldown interrupted", "error", err)
			w.retire()
			return res
		}
		next, ok := w.queue.TryPop()
		if !ok {
			w.retire()
			return res
		}
		task = next
	}
}

func (w *Worker) finish(loc types.Location, outcome string) {
	w.metrics.IncLocation(outcome)
	w.checkpoint.Mark(loc, outcome)
}

func (w *Worker) retire() {
	if err := w.driver.Retire(); err != nil {
		w.logger.Debug("retire", "error", err)
	}
}
