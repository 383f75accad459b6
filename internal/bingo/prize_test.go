package bingo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		stake   int64
		players int
		want    int64
	}{
		{stake: 100, players: 2, want: 160},
		{stake: 10, players: 3, want: 24},
		{stake: 7, players: 3, want: 16}, // 16.8 floors
		{stake: 1, players: 1, want: 0},
		{stake: 50, players: 0, want: 0},
		{stake: 0, players: 5, want: 0},
		{stake: -10, players: 5, want: 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Prize(tt.stake, tt.players), "Prize(%d, %d)", tt.stake, tt.players)
	}
}
