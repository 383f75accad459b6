package bingo

import (
	"errors"
	"fmt"
	rand "math/rand/v2"

	"github.com/lox/stakebingo/internal/randutil"
)

var (
	// ErrExhausted is returned once every number in the pool has been called.
	ErrExhausted = errors.New("bingo: call pool exhausted")

	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("bingo: sequencer stopped")

	// ErrDuplicateCall signals a corrupted draw order. The room treats it as
	// fatal and force-resets.
	ErrDuplicateCall = errors.New("bingo: duplicate call")
)

// DrawOrder returns a fresh permutation of 1–100.
func DrawOrder(rng *rand.Rand) []int {
	return randutil.Shuffled(rng, MinNumber, MaxNumber)
}

// Sequencer hands out calls from a draw order and keeps the authoritative
// history for one room-run. It is not safe for concurrent use; the room
// writer owns it.
type Sequencer struct {
	order   []int
	history []Call
	called  CallSet
	stopped bool
}

// NewSequencer wraps a draw order. The slice is copied.
func NewSequencer(order []int) *Sequencer {
	return &Sequencer{
		order:   append([]int(nil), order...),
		history: make([]Call, 0, len(order)),
	}
}

// Next appends the next number to the history and returns it. The history is
// updated before the call is returned so anything published afterwards is
// already visible to a validator.
func (s *Sequencer) Next() (Call, error) {
	if s.stopped {
		return Call{}, ErrStopped
	}
	idx := len(s.history)
	if idx >= len(s.order) || idx >= PoolSize {
		return Call{}, ErrExhausted
	}

	n := s.order[idx]
	if !ValidNumber(n) {
		return Call{}, fmt.Errorf("%w: %d at index %d", ErrNumberOutOfRange, n, idx)
	}
	if s.called.Has(n) {
		return Call{}, fmt.Errorf("%w: %d at index %d", ErrDuplicateCall, n, idx)
	}

	call := Call{Sequence: idx, Number: n}
	s.history = append(s.history, call)
	s.called.Add(n)
	return call, nil
}

// Stop discards the remaining numbers.
func (s *Sequencer) Stop() {
	s.stopped = true
}

// Exhausted reports whether every number has been called.
func (s *Sequencer) Exhausted() bool {
	return len(s.history) >= len(s.order)
}

// History returns a copy of the calls made so far.
func (s *Sequencer) History() []Call {
	return append([]Call(nil), s.history...)
}

// Called returns the set of numbers called so far.
func (s *Sequencer) Called() CallSet {
	return s.called
}

// Len returns how many numbers have been called.
func (s *Sequencer) Len() int {
	return len(s.history)
}

// Last returns the most recent call, if any.
func (s *Sequencer) Last() (Call, bool) {
	if len(s.history) == 0 {
		return Call{}, false
	}
	return s.history[len(s.history)-1], true
}
