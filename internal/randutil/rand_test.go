package randutil

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsDeterministic(t *testing.T) {
	t.Parallel()

	a, b := New(42), New(42)
	for range 10 {
		assert.Equal(t, a.Uint64(), b.Uint64())
	}
	assert.NotEqual(t, New(1).Uint64(), New(2).Uint64())
}

func TestShuffledIsPermutation(t *testing.T) {
	t.Parallel()

	got := Shuffled(New(7), 1, 100)
	require.Len(t, got, 100)

	sorted := slices.Clone(got)
	slices.Sort(sorted)
	for i, n := range sorted {
		assert.Equal(t, i+1, n)
	}
	assert.False(t, slices.IsSorted(got), "a seeded shuffle of 100 values should not come back in order")
}

func TestShuffledSkipsValues(t *testing.T) {
	t.Parallel()

	got := Shuffled(New(7), 1, 100, 50, 99)
	assert.Len(t, got, 98)
	assert.NotContains(t, got, 50)
	assert.NotContains(t, got, 99)
}

func TestShuffledSameSeedSameOrder(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Shuffled(New(3), 1, 100), Shuffled(New(3), 1, 100))
}
