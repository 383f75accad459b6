// Package bingo implements the pure game rules for 5×5, 1–100 bingo rooms.
//
// Nothing in this package holds locks or touches the clock. Every function is
// deterministic given its inputs.
//
// # Cards
//
// A card is built from a player's ticket number. The ticket sits on the free
// center cell and the other 24 cells come from a Fisher–Yates shuffle of the
// remaining 99 numbers:
//
//	rng := randutil.New(42)
//	card, err := bingo.Generate(7, rng)
//
// # Calls and validation
//
// A Sequencer owns the authoritative call history for one room-run. Win
// checks are always made against a CallSet derived from that history, never
// from anything a client reports:
//
//	seq := bingo.NewSequencer(bingo.DrawOrder(rng))
//	call, err := seq.Next()
//	won := bingo.IsBingo(card, seq.Called())
//
// # Settlement
//
// Prize computes the payout for a room-run from the stake and the number of
// connected players at the moment the winning claim was accepted.
package bingo
