package engine

import (
	"math"

	"github.com/sadopc/beebar/internal/beeminder"
)

// Matches reports whether current (freshly fetched) reflects a datapoint of
// value written to the goal captured as previous.
//
// With curval on both sides the observed change must equal value within a
// 1% (min 0.01) tolerance, or be at least half of value while delta or
// safebuf also moved; that second arm covers goals whose displayed value is
// an aggregate rather than a running total. Without curval, any movement of
// delta or safebuf counts. A curval that did not move only matches when
// delta or safebuf did, so small values are not confirmed by tolerance
// alone. Safebuf drifting on its own over time can still produce a false
// positive on the fallback path.
func Matches(previous, current beeminder.Goal, value float64) bool {
	tolerance := math.Max(0.01, math.Abs(value)*0.01)
	recomputed := previous.Delta != current.Delta || previous.Safebuf != current.Safebuf

	if previous.Curval == nil || current.Curval == nil {
		return recomputed
	}

	observed := *current.Curval - *previous.Curval
	if math.Abs(observed-value) <= tolerance {
		return observed != 0 || recomputed
	}
	return math.Abs(observed) >= math.Abs(value)*0.5 && recomputed
}
