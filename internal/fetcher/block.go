package fetcher

import (
	"strings"

	"github.com/IshaanNene/quickscout/internal/config"
	"github.com/IshaanNene/quickscout/internal/types"
)

// BlockDetector recognizes anti-bot refusals from a status code or from the
// visible page text.
type BlockDetector struct {
	statuses map[int]bool
	markers  []string
}

// NewBlockDetector builds a detector from the session config.
func NewBlockDetector(cfg *config.SessionConfig) *BlockDetector {
	d := &BlockDetector{statuses: make(map[int]bool, len(cfg.BlockStatuses))}
	for _, s := range cfg.BlockStatuses {
		d.statuses[s] = true
	}
	for _, m := range cfg.BlockMarkers {
		if m = strings.TrimSpace(m); m != "" {
			d.markers = append(d.markers, m)
		}
	}
	return d
}

// CheckStatus returns a *types.BlockedError when status is a block status.
func (d *BlockDetector) CheckStatus(url string, status int) error {
	if d.statuses[status] {
		return &types.BlockedError{URL: url, Status: status}
	}
	return nil
}

// CheckText returns a *types.BlockedError when text contains a block marker.
// Matching is case-insensitive.
func (d *BlockDetector) CheckText(url, text string) error {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	for _, m := range d.markers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return &types.BlockedError{URL: url, Marker: m}
		}
	}
	return nil
}
