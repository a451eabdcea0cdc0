package extract

import "github.com/IshaanNene/quickscout/internal/types"

// Merge collapses records that share an ID. The record with strictly more
// non-empty fields wins; on a tie the first one seen is kept. Output order is
// the order in which IDs were first seen, so Merge is deterministic and
// Merge(Merge(x)) equals Merge(x).
func Merge(recs []types.ProductRecord) []types.ProductRecord {
	if len(recs) == 0 {
		return nil
	}

	index := make(map[string]int, len(recs))
	out := make([]types.ProductRecord, 0, len(recs))

	for i := range recs {
		r := recs[i]
		pos, dup := index[r.ID]
		if !dup {
			index[r.ID] = len(out)
			out = append(out, r)
			continue
		}
		if r.Richness() > out[pos].Richness() {
			out[pos] = r
		}
	}
	return out
}
