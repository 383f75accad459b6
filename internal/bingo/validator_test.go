package bingo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/stakebingo/internal/randutil"
)

// fixedCard has 7, 23, 41, 59, 70 on the main diagonal with 50 in the center.
var fixedCard = Card{
	{7, 1, 2, 3, 4},
	{5, 23, 6, 8, 9},
	{10, 11, 50, 12, 13},
	{14, 15, 16, 59, 17},
	{18, 19, 20, 21, 70},
}

func TestIsBingoLines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		called []int
		want   bool
		lines  []Line
	}{
		{name: "nothing called", called: nil, want: false},
		{name: "top row", called: []int{7, 1, 2, 3, 4}, want: true, lines: []Line{{LineRow, 0}}},
		{name: "center row uses free cell", called: []int{10, 11, 12, 13}, want: true, lines: []Line{{LineRow, 2}}},
		{name: "first column", called: []int{7, 5, 10, 14, 18}, want: true, lines: []Line{{LineColumn, 0}}},
		{name: "main diagonal", called: []int{7, 23, 41, 59, 70}, want: true, lines: []Line{{LineDiagonal, 0}}},
		{name: "anti diagonal", called: []int{4, 8, 15, 18}, want: true, lines: []Line{{LineAntiDiagonal, 0}}},
		{name: "four of five", called: []int{7, 1, 2, 3}, want: false},
		{name: "scattered", called: []int{7, 8, 16, 21, 13, 99}, want: false},
		{
			name:   "row and column",
			called: []int{7, 1, 2, 3, 4, 5, 10, 14, 18},
			want:   true,
			lines:  []Line{{LineRow, 0}, {LineColumn, 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := NewCallSet(tt.called...)
			assert.Equal(t, tt.want, IsBingo(fixedCard, called))
			assert.Equal(t, tt.lines, WinningLines(fixedCard, called))
		})
	}
}

func TestIsBingoDiagonalNeedsOnlyFourCalls(t *testing.T) {
	t.Parallel()

	// 41 is not on the card; the free center completes the diagonal.
	called := NewCallSet(7, 23, 41, 59, 70)
	require.True(t, IsBingo(fixedCard, called))

	called = NewCallSet(7, 23, 59)
	assert.False(t, IsBingo(fixedCard, called))
}

func TestIsBingoIsPure(t *testing.T) {
	t.Parallel()

	rng := randutil.New(7)
	card, err := Generate(33, rng)
	require.NoError(t, err)
	called := NewCallSet(DrawOrder(rng)[:40]...)

	first := IsBingo(card, called)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, IsBingo(card, called))
	}
}

func TestIncrementalReplayMatchesFinalVerdict(t *testing.T) {
	t.Parallel()

	for seed := int64(0); seed < 50; seed++ {
		rng := randutil.New(seed)
		card, err := Generate(int(seed%100)+1, rng)
		require.NoError(t, err)

		seq := NewSequencer(DrawOrder(rng))
		var incremental CallSet
		verdict := false
		for {
			call, err := seq.Next()
			if err != nil {
				require.ErrorIs(t, err, ErrExhausted)
				break
			}
			incremental.Add(call.Number)
			verdict = IsBingo(card, incremental)
			if seq.Len() == 30 {
				break
			}
		}

		full := CallSetOf(seq.History(), -1)
		assert.Equal(t, verdict, IsBingo(card, full), "seed %d", seed)
	}
}

func TestFullPoolAlwaysWins(t *testing.T) {
	t.Parallel()

	card, err := Generate(12, randutil.New(3))
	require.NoError(t, err)
	all := make([]int, 0, PoolSize)
	for n := MinNumber; n <= MaxNumber; n++ {
		all = append(all, n)
	}
	called := NewCallSet(all...)
	assert.True(t, IsBingo(card, called))
	assert.Len(t, WinningLines(card, called), 2*GridSize+2)
}
