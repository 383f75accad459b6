package bingo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/stakebingo/internal/randutil"
)

func TestSequencerDrawsEveryNumberOnce(t *testing.T) {
	t.Parallel()

	seq := NewSequencer(DrawOrder(randutil.New(11)))
	seen := make(map[int]bool, PoolSize)
	for i := 0; i < PoolSize; i++ {
		call, err := seq.Next()
		require.NoError(t, err)
		assert.Equal(t, i, call.Sequence)
		require.False(t, seen[call.Number], "number %d called twice", call.Number)
		seen[call.Number] = true
	}

	_, err := seq.Next()
	assert.ErrorIs(t, err, ErrExhausted)
	assert.True(t, seq.Exhausted())
	assert.Equal(t, PoolSize, seq.Called().Len())
}

func TestSequencerStop(t *testing.T) {
	t.Parallel()

	seq := NewSequencer([]int{3, 1, 2})
	call, err := seq.Next()
	require.NoError(t, err)
	assert.Equal(t, Call{Sequence: 0, Number: 3}, call)

	seq.Stop()
	_, err = seq.Next()
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, []Call{{Sequence: 0, Number: 3}}, seq.History())
}

func TestSequencerRejectsCorruptOrder(t *testing.T) {
	t.Parallel()

	seq := NewSequencer([]int{4, 9, 4})
	_, err := seq.Next()
	require.NoError(t, err)
	_, err = seq.Next()
	require.NoError(t, err)
	_, err = seq.Next()
	assert.ErrorIs(t, err, ErrDuplicateCall)
	assert.Equal(t, 2, seq.Len())

	seq = NewSequencer([]int{0})
	_, err = seq.Next()
	assert.ErrorIs(t, err, ErrNumberOutOfRange)
}

func TestSequencerHistoryIsCopy(t *testing.T) {
	t.Parallel()

	seq := NewSequencer([]int{1, 2})
	_, _ = seq.Next()
	h := seq.History()
	h[0].Number = 99

	last, ok := seq.Last()
	require.True(t, ok)
	assert.Equal(t, 1, last.Number)
}
