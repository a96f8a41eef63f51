package inverse

import "math"

// Result accumulates the best pixel candidate of one search. X and Y are
// integer pixel indices: searches only visit whole pixels, and sub-pixel
// refinement happens after the search on the returned indices. Delta is the
// squared geographic distance between the candidate and the query.
type Result struct {
	X, Y  int
	Delta float64
}

// NewResult returns an empty result with Delta = +Inf.
func NewResult() Result {
	return Result{Delta: math.Inf(1)}
}

// Update replaces the candidate iff delta is strictly smaller than the
// current one and reports whether it did.
func (r *Result) Update(x, y int, delta float64) bool {
	if delta < r.Delta {
		r.X = x
		r.Y = y
		r.Delta = delta
		return true
	}
	return false
}

// Found reports whether any candidate was accepted.
func (r *Result) Found() bool {
	return !math.IsInf(r.Delta, 1)
}
