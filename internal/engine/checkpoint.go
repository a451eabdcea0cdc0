package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/IshaanNene/quickscout/internal/types"
)

// CheckpointManager records which locations a run has finished so a re-run
// skips them. Blocked locations are never recorded.
type CheckpointManager struct {
	path string

	mu       sync.Mutex
	outcomes map[types.Location]string
}

// checkpointData is the serializable run state.
type checkpointData struct {
	Timestamp time.Time            `json:"timestamp"`
	RunID     string               `json:"run_id,omitempty"`
	Locations []checkpointLocation `json:"locations"`
}

type checkpointLocation struct {
	Location types.Location `json:"location"`
	Outcome  string         `json:"outcome"`
}

// NewCheckpointManager creates a manager persisting to path. An empty path
// disables persistence but still tracks outcomes in memory.
func NewCheckpointManager(path string) *CheckpointManager {
	return &CheckpointManager{
		path:     path,
		outcomes: make(map[types.Location]string),
	}
}

// Mark records the outcome of a location.
func (cm *CheckpointManager) Mark(loc types.Location, outcome string) {
	if cm == nil {
		return
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.outcomes[loc] = outcome
}

// Seen reports whether loc already has a recorded outcome.
func (cm *CheckpointManager) Seen(loc types.Location) bool {
	if cm == nil {
		return false
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	_, ok := cm.outcomes[loc]
	return ok
}

// Filter returns the tasks whose location has no recorded outcome.
func (cm *CheckpointManager) Filter(tasks []types.Task) (remaining []types.Task, skipped int) {
	for _, t := range tasks {
		if cm.Seen(t.Location) {
			skipped++
			continue
		}
		remaining = append(remaining, t)
	}
	return remaining, skipped
}

// Save serializes the recorded outcomes to disk.
func (cm *CheckpointManager) Save(runID string) error {
	if cm == nil || cm.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cm.path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	cm.mu.Lock()
	data := checkpointData{
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		Locations: make([]checkpointLocation, 0, len(cm.outcomes)),
	}
	for loc, outcome := range cm.outcomes {
		data.Locations = append(data.Locations, checkpointLocation{Location: loc, Outcome: outcome})
	}
	cm.mu.Unlock()
	sort.Slice(data.Locations, func(i, j int) bool {
		return data.Locations[i].Location < data.Locations[j].Location
	})

	// Write to temp file, then rename (atomic write)
	tmpPath := cm.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create checkpoint file: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		f.Close()
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close checkpoint file: %w", err)
	}

	if err := os.Rename(tmpPath, cm.path); err != nil {
		return fmt.Errorf("rename checkpoint file: %w", err)
	}
	return nil
}

// Load reads a checkpoint from disk. A missing file is not an error.
func (cm *CheckpointManager) Load() error {
	if cm == nil || cm.path == "" {
		return nil
	}
	f, err := os.Open(cm.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No checkpoint to restore
		}
		return fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	var data checkpointData
	if err := json.NewDecoder(f).Decode(&data); err != nil {
		return fmt.Errorf("decode checkpoint: %w", err)
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, l := range data.Locations {
		cm.outcomes[l.Location] = l.Outcome
	}
	return nil
}

// HasCheckpoint returns true if a checkpoint file exists.
func (cm *CheckpointManager) HasCheckpoint() bool {
	if cm == nil || cm.path == "" {
		return false
	}
	_, err := os.Stat(cm.path)
	return err == nil
}

// Clean removes the checkpoint file.
func (cm *CheckpointManager) Clean() error {
	if cm == nil || cm.path == "" {
		return nil
	}
	if err := os.Remove(cm.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
