package bingo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/stakebingo/internal/randutil"
)

func TestGenerateCardLayout(t *testing.T) {
	t.Parallel()

	for _, ticket := range []int{1, 7, 50, 100} {
		card, err := Generate(ticket, randutil.New(int64(ticket)))
		require.NoError(t, err)

		assert.Equal(t, ticket, card.Ticket())

		seen := make(map[int]bool, GridSize*GridSize)
		for _, n := range card.Numbers() {
			require.True(t, ValidNumber(n), "value %d out of range", n)
			require.False(t, seen[n], "value %d appears twice", n)
			seen[n] = true
		}
		assert.Len(t, seen, GridSize*GridSize)
	}
}

func TestGenerateIsDeterministicForSeed(t *testing.T) {
	t.Parallel()

	a, err := Generate(42, randutil.New(99))
	require.NoError(t, err)
	b, err := Generate(42, randutil.New(99))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := Generate(42, randutil.New(100))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestGenerateRejectsOutOfRangeTicket(t *testing.T) {
	t.Parallel()

	for _, ticket := range []int{-1, 0, 101} {
		_, err := Generate(ticket, randutil.New(1))
		assert.ErrorIs(t, err, ErrNumberOutOfRange, "ticket %d", ticket)
	}
}

func TestCallSet(t *testing.T) {
	t.Parallel()

	s := NewCallSet(1, 64, 65, 100, 0, 101)
	assert.Equal(t, 4, s.Len())
	for _, n := range []int{1, 64, 65, 100} {
		assert.True(t, s.Has(n), "expected %d", n)
	}
	assert.False(t, s.Has(2))
	assert.False(t, s.Has(0))
	assert.False(t, s.Has(101))

	history := []Call{{0, 5}, {1, 6}, {2, 7}}
	assert.Equal(t, NewCallSet(5, 6), CallSetOf(history, 2))
	assert.Equal(t, NewCallSet(5, 6, 7), CallSetOf(history, -1))
}
