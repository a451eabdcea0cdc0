package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/quickscout/internal/config"
	"github.com/IshaanNene/quickscout/internal/observability"
	"github.com/IshaanNene/quickscout/internal/types"
)

// fakeDriver scripts per-location outcomes and records every call.
type fakeDriver struct {
	mu        sync.Mutex
	launchErr error
	results   map[types.Location]error
	onProcess func(ctx context.Context, task types.Task)

	launches  int
	processed []types.Location
	cooldowns int
	retired   int
	ctxErrs   []error
}

func (d *fakeDriver) Launch(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.launches++
	return d.launchErr
}

func (d *fakeDriver) ProcessLocation(ctx context.Context, task types.Task) error {
	if d.onProcess != nil {
		d.onProcess(ctx, task)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.processed = append(d.processed, task.Location)
	d.ctxErrs = append(d.ctxErrs, ctx.Err())
	return d.results[task.Location]
}

func (d *fakeDriver) Cooldown(ctx context.Context) error {
	d.mu.Lock()
	d.cooldowns++
	d.mu.Unlock()
	return ctx.Err()
}

func (d *fakeDriver) Retire() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.retired++
	return nil
}

func newTestWorker(q *LocationQueue, d LocationDriver, cm *CheckpointManager, m *observability.Metrics) *Worker {
	return NewWorker(1, config.DefaultConfig(), q, d, cm, m, testLogger)
}

// --- Worker Tests ---

func TestWorkerDrainsQueue(t *testing.T) {
	q := NewLocationQueue(tasks(3))
	d := &fakeDriver{}
	cm := NewCheckpointManager("")
	m := observability.NewMetrics(testLogger)

	res := newTestWorker(q, d, cm, m).Run(context.Background())

	assert.Equal(t, WorkerDrained, res.Outcome)
	assert.Equal(t, 3, res.Done)
	assert.Equal(t, 1, d.launches, "one browser launch per worker")
	assert.Equal(t, []types.Location{"560001", "560002", "560003"}, d.processed)
	assert.Equal(t, 2, d.cooldowns, "no cooldown after the last location")
	assert.Equal(t, 1, d.retired)
	assert.True(t, cm.Seen("560002"))
	assert.Equal(t, int64(3), m.Snapshot()["locations_done"])
}

func TestWorkerAbandonsFailedLocation(t *testing.T) {
	q := NewLocationQueue(tasks(3))
	d := &fakeDriver{results: map[types.Location]error{
		"560002": &types.LocationError{Location: "560002", Step: "input", Err: types.ErrLocationNotSet},
	}}
	cm := NewCheckpointManager("")

	res := newTestWorker(q, d, cm, nil).Run(context.Background())

	assert.Equal(t, 2, res.Done)
	assert.Equal(t, 1, res.Abandoned)
	assert.Len(t, d.processed, 3, "an abandoned location is not retried")
	assert.True(t, cm.Seen("560002"), "abandoned locations are checkpointed")
}

func TestWorkerBlockPropagates(t *testing.T) {
	q := NewLocationQueue(tasks(4))
	d := &fakeDriver{results: map[types.Location]error{
		"560002": &types.BlockedError{URL: "https://www.zepto.com/", Status: 403},
	}}
	cm := NewCheckpointManager("")
	m := observability.NewMetrics(testLogger)

	res := newTestWorker(q, d, cm, m).Run(context.Background())

	assert.Equal(t, WorkerBlocked, res.Outcome)
	assert.Equal(t, types.Location("560002"), res.Blocked)
	assert.Equal(t, 1, res.Done)
	assert.Equal(t, []types.Location{"560001", "560002"}, d.processed, "worker stops at the block")
	assert.Equal(t, 2, q.Len(), "remaining locations stay for other workers")
	assert.Equal(t, 1, d.cooldowns)
	assert.Zero(t, d.retired, "a blocked session is not retired")
	assert.False(t, cm.Seen("560002"), "blocked locations are not checkpointed")
	assert.Equal(t, int64(1), m.Snapshot()["locations_blocked"])
}

func TestWorkerWrappedBlockPropagates(t *testing.T) {
	q := NewLocationQueue(tasks(2))
	d := &fakeDriver{results: map[types.Location]error{
		"560001": errors.Join(errors.New("scrape category"), &types.BlockedError{Marker: "captcha"}),
	}}

	res := newTestWorker(q, d, nil, nil).Run(context.Background())
	assert.Equal(t, WorkerBlocked, res.Outcome)
	assert.Equal(t, 1, q.Len())
}

func TestWorkerLaunchFailure(t *testing.T) {
	q := NewLocationQueue(tasks(2))
	d := &fakeDriver{launchErr: types.ErrLaunchFailed}
	cm := NewCheckpointManager("")

	res := newTestWorker(q, d, cm, nil).Run(context.Background())

	assert.Equal(t, WorkerLaunchFailed, res.Outcome)
	assert.Equal(t, 1, res.Abandoned)
	assert.Empty(t, d.processed)
	assert.Equal(t, 1, q.Len(), "only the claimed location is abandoned")
	assert.False(t, cm.Seen("560001"), "a location that was never scraped must not be checkpointed")
}

func TestWorkerEmptyQueueDoesNotLaunch(t *testing.T) {
	d := &fakeDriver{}
	res := newTestWorker(NewLocationQueue(nil), d, nil, nil).Run(context.Background())

	assert.Equal(t, WorkerIdle, res.Outcome)
	assert.Zero(t, d.launches)
}

func TestWorkerCancelFinishesClaimedLocation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewLocationQueue(tasks(3))
	d := &fakeDriver{onProcess: func(context.Context, types.Task) { cancel() }}

	res := newTestWorker(q, d, nil, nil).Run(ctx)

	require.Len(t, d.processed, 1)
	assert.NoError(t, d.ctxErrs[0], "a claimed location runs without the cancellation")
	assert.Equal(t, 1, res.Done)
	assert.Equal(t, 2, q.Len())
	assert.Zero(t, d.cooldowns)
	assert.Equal(t, 1, d.retired)
}

func TestWorkerCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q := NewLocationQueue(tasks(1))
	d := &fakeDriver{}

	res := newTestWorker(q, d, nil, nil).Run(ctx)
	assert.Equal(t, WorkerIdle, res.Outcome)
	assert.Equal(t, 1, q.Len())
}

func TestWorkerOutcomeString(t *testing.T) {
	assert.Equal(t, "blocked", WorkerBlocked.String())
	assert.Equal(t, "launch_failed", WorkerLaunchFailed.String())
	assert.Equal(t, "unknown", WorkerOutcome(42).String())
}
