package session

import (
	"fmt"

	"github.com/IshaanNene/quickscout/internal/types"
)

// Phase is a session lifecycle phase.
type Phase int

const (
	Idle Phase = iota
	Launching
	LocationPending
	LocationSet
	Scraping
	Cooldown
	Retiring
	Retired
	Blocked
)

var phaseNames = [...]string{
	Idle:            "idle",
	Launching:       "launching",
	LocationPending: "location_pending",
	LocationSet:     "location_set",
	Scraping:        "scraping",
	Cooldown:        "cooldown",
	Retiring:        "retiring",
	Retired:         "retired",
	Blocked:         "blocked",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Terminal reports whether no transition leaves p.
func (p Phase) Terminal() bool {
	return p == Retired || p == Blocked
}

// transitions lists the legal successors of each phase. Blocked is reachable
// from every non-terminal phase and is handled separately.
var transitions = map[Phase][]Phase{
	Idle:            {Launching},
	Launching:       {LocationPending, Retired},
	LocationPending: {LocationSet, Cooldown, Retiring},
	LocationSet:     {Scraping},
	Scraping:        {Cooldown, Retiring},
	Cooldown:        {LocationPending, Retiring},
	Retiring:        {Retired},
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to Phase) bool {
	if from.Terminal() {
		return false
	}
	if to == Blocked {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// State is the per-session state value. It is passed and returned by value;
// transitions never mutate a State in place.
type State struct {
	Phase       Phase
	Location    types.Location
	DeliveryETA string
	// LocationConfirmedBy names the selection method that completed the
	// location protocol: suggestion, confirm or enter. Empty when none did.
	LocationConfirmedBy string
}

// To returns the state moved to phase p, or an error wrapping
// types.ErrIllegalTransition.
func (s State) To(p Phase) (State, error) {
	if !CanTransition(s.Phase, p) {
		return s, fmt.Errorf("%w: %s -> %s", types.ErrIllegalTransition, s.Phase, p)
	}
	s.Phase = p
	return s, nil
}

// ForLocation returns the state bound to a new location. Location scoped
// fields are reset.
func (s State) ForLocation(loc types.Location) State {
	s.Location = loc
	s.DeliveryETA = ""
	s.LocationConfirmedBy = ""
	return s
}
