package bingo

import (
	"errors"
	"fmt"
	rand "math/rand/v2"

	"github.com/lox/stakebingo/internal/randutil"
)

const (
	// GridSize is the width and height of a card.
	GridSize = 5

	// Center is the row and column index of the free cell.
	Center = 2

	// MinNumber and MaxNumber bound both ticket numbers and calls.
	MinNumber = 1
	MaxNumber = 100

	// PoolSize is how many distinct numbers can be drawn in one room-run.
	PoolSize = MaxNumber - MinNumber + 1
)

// ErrNumberOutOfRange is returned when a ticket or call falls outside 1–100.
var ErrNumberOutOfRange = errors.New("bingo: number out of range")

// Card is a 5×5 grid of numbers addressed as card[row][col]. The ticket number
// always occupies card[Center][Center] and that cell is always marked.
type Card [GridSize][GridSize]int

// ValidNumber reports whether n can appear on a card or be called.
func ValidNumber(n int) bool {
	return n >= MinNumber && n <= MaxNumber
}

// Generate builds the card for a ticket number. The 24 non-center values are
// the first 24 of a uniform shuffle of 1–100 with the ticket removed, laid out
// row by row.
func Generate(ticket int, rng *rand.Rand) (Card, error) {
	var card Card
	if !ValidNumber(ticket) {
		return card, fmt.Errorf("%w: ticket %d", ErrNumberOutOfRange, ticket)
	}

	pool := randutil.Shuffled(rng, MinNumber, MaxNumber, ticket)
	next := 0
	for row := 0; row < GridSize; row++ {
		for col := 0; col < GridSize; col++ {
			if row == Center && col == Center {
				card[row][col] = ticket
				continue
			}
			card[row][col] = pool[next]
			next++
		}
	}
	return card, nil
}

// Ticket returns the number on the free center cell.
func (c Card) Ticket() int {
	return c[Center][Center]
}

// Numbers returns the card's values in row-major order.
func (c Card) Numbers() []int {
	out := make([]int, 0, GridSize*GridSize)
	for row := range c {
		out = append(out, c[row][:]...)
	}
	return out
}
