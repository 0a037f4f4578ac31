package engine

import (
	"time"

	"github.com/tierlens/tierlens/internal/models"
)

// MatchedPair is one time-aligned (a, b) value pair produced by the as-of join.
type MatchedPair struct {
	Timestamp time.Time
	A         float64
	B         float64
}

// AsOfJoin aligns series b onto the timestamps of series a. For every
// observation in a it takes the most recent observation in b at or before that
// timestamp, accepted only when the gap is within tolerance. An exact
// timestamp match always wins. Unmatched timestamps are discarded.
//
// The merge is an explicit two-pointer walk over the sorted sequences so the
// tolerance and tie-break rules stay visible and testable.
func AsOfJoin(a, b models.MetricSeries, tolerance time.Duration) []MatchedPair {
	if a.Empty() || b.Empty() {
		return nil
	}

	pairs := make([]MatchedPair, 0, len(a.Points))
	j := 0
	for _, pa := range a.Points {
		// Advance to the last b observation at or before pa.
		for j+1 < len(b.Points) && !b.Points[j+1].Timestamp.After(pa.Timestamp) {
			j++
		}
		pb := b.Points[j]
		if pb.Timestamp.After(pa.Timestamp) {
			continue
		}
		if pa.Timestamp.Sub(pb.Timestamp) > tolerance {
			continue
		}
		pairs = append(pairs, MatchedPair{Timestamp: pa.Timestamp, A: pa.Value, B: pb.Value})
	}
	return pairs
}
