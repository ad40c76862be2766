// Package vclock implements a vector clock: a map from replica ID to a
// monotonic counter, used by the Sync Hub to order and detect concurrent
// updates to sessions and todos.
package vclock

import "github.com/chittycorp/chittyrouter/pkg/models"

// Order is the result of comparing two vector clocks.
type Order int

const (
	Equal Order = iota
	Before
	After
	Concurrent
)

func (o Order) String() string {
	switch o {
	case Equal:
		return "equal"
	case Before:
		return "before"
	case After:
		return "after"
	default:
		return "concurrent"
	}
}

// New returns an empty vector clock.
func New() models.VectorClock {
	return models.VectorClock{}
}

// Tick increments the counter for replicaId and returns the resulting
// clock. The input clock is not mutated.
func Tick(c models.VectorClock, replicaID string) models.VectorClock {
	out := clone(c)
	out[replicaID]++
	return out
}

// Merge returns a new clock where every component is the max of the two
// inputs: Merge(a,b)[k] = max(a[k], b[k]).
func Merge(a, b models.VectorClock) models.VectorClock {
	out := clone(a)
	for k, v := range b {
		if v > out[k] {
			out[k] = v
		}
	}
	return out
}

// Compare returns the partial-order relationship of a to b.
func Compare(a, b models.VectorClock) Order {
	aLessOrEqual, aStrictlyLess := true, false
	bLessOrEqual, bStrictlyLess := true, false

	keys := map[string]struct{}{}
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}

	for k := range keys {
		av, bv := a[k], b[k]
		if av > bv {
			aLessOrEqual = false
		}
		if av < bv {
			aStrictlyLess = true
		}
		if bv > av {
			bLessOrEqual = false
		}
		if bv < av {
			bStrictlyLess = true
		}
	}

	switch {
	case aLessOrEqual && bLessOrEqual:
		return Equal
	case aLessOrEqual && aStrictlyLess:
		return Before
	case bLessOrEqual && bStrictlyLess:
		return After
	default:
		return Concurrent
	}
}

// Dominates reports whether a strictly dominates b (a is After b), the
// invariant required of every freshly stored todo clock relative to the
// previously stored clock of the same todo.
func Dominates(a, b models.VectorClock) bool {
	return Compare(a, b) == After
}

// Sum returns the sum of all counter components, used as a conflict
// tiebreak by the last_write_wins strategy.
func Sum(c models.VectorClock) uint64 {
	var total uint64
	for _, v := range c {
		total += v
	}
	return total
}

func clone(c models.VectorClock) models.VectorClock {
	out := make(models.VectorClock, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
