package vclock

import (
	"testing"

	"github.com/chittycorp/chittyrouter/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	a := models.VectorClock{"A": 3, "B": 2}
	b := models.VectorClock{"A": 2, "B": 3}
	assert.Equal(t, Concurrent, Compare(a, b))
	assert.Equal(t, Concurrent, Compare(b, a))

	before := models.VectorClock{"A": 1}
	after := models.VectorClock{"A": 2}
	assert.Equal(t, Before, Compare(before, after))
	assert.Equal(t, After, Compare(after, before))

	assert.Equal(t, Equal, Compare(models.VectorClock{"A": 1}, models.VectorClock{"A": 1}))
}

func TestMergeTakesMax(t *testing.T) {
	a := models.VectorClock{"A": 3, "B": 1}
	b := models.VectorClock{"A": 2, "B": 5, "C": 1}
	merged := Merge(a, b)
	assert.Equal(t, uint64(3), merged["A"])
	assert.Equal(t, uint64(5), merged["B"])
	assert.Equal(t, uint64(1), merged["C"])
}

func TestTickNeverRegresses(t *testing.T) {
	c := models.VectorClock{"A": 1}
	next := Tick(c, "A")
	assert.True(t, Dominates(next, c))
	assert.Equal(t, uint64(1), c["A"], "input clock must not be mutated")
}

func TestNoClockRegression(t *testing.T) {
	c := New()
	for i := 0; i < 5; i++ {
		next := Tick(c, "replica-1")
		assert.True(t, Compare(next, c) == After || Compare(next, c) == Equal)
		c = next
	}
}
