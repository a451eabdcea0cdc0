package jsonvalue

// Limits bounds a Walk. Zero fields mean no limit.
type Limits struct {
	MaxDepth int
	MaxNodes int
}

// DefaultLimits caps depth at 64 and visits at most half a million nodes.
var DefaultLimits = Limits{MaxDepth: 64, MaxNodes: 500_000}

// Visitor is called for every node in depth-first document order. Returning
// false skips the node's children.
type Visitor func(v Value, depth int) bool

// WalkStats reports how a Walk ended.
type WalkStats struct {
	Nodes     int
	Truncated bool
}

// Walk visits v and its descendants depth-first. Subtrees below MaxDepth
// are skipped and once MaxNodes nodes have been seen the walk stops; either
// sets Truncated.
func Walk(v Value, limits Limits, visit Visitor) WalkStats {
	w := walker{limits: limits, visit: visit}
	w.walk(v, 0)
	return WalkStats{Nodes: w.nodes, Truncated: w.truncated}
}

type walker struct {
	limits    Limits
	visit     Visitor
	nodes     int
	truncated bool
	stopped   bool
}

func (w *walker) walk(v Value, depth int) {
	if w.stopped {
		return
	}
	if w.limits.MaxDepth > 0 && depth > w.limits.MaxDepth {
		w.truncated = true
		return
	}
	if w.limits.MaxNodes > 0 && w.nodes >= w.limits.MaxNodes {
		w.truncated = true
		w.stopped = true
		return
	}
	w.nodes++

	if !w.visit(v, depth) {
		return
	}

	switch v.kind {
	case Array:
		for _, e := range v.arr {
			w.walk(e, depth+1)
		}
	case Object:
		for _, k := range v.keys {
			w.walk(v.obj[k], depth+1)
		}
	}
}
