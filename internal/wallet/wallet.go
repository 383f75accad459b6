// Package wallet moves stakes and prizes between player accounts and the
// house. Rooms never call a ledger directly: they hand operations to a
// Dispatcher, which applies them off the room goroutine with retries.
package wallet

import (
	"context"
	"errors"
	"fmt"
)

// Purpose says why money is moving. It is part of the idempotency key, so a
// player can be debited a stake and credited a refund for the same run.
type Purpose string

const (
	PurposeStake  Purpose = "stake"
	PurposePrize  Purpose = "prize"
	PurposeRefund Purpose = "refund"
)

// Credit reports whether the purpose pays money out to the player.
func (p Purpose) Credit() bool {
	return p == PurposePrize || p == PurposeRefund
}

var (
	// ErrInsufficientFunds is a permanent debit failure.
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")

	// ErrUnknownAccount is returned for a player with no account.
	ErrUnknownAccount = errors.New("wallet: unknown account")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("wallet: invalid amount")

	// ErrStakePending is returned for a prize whose stake debit has not
	// landed yet. It is transient.
	ErrStakePending = errors.New("wallet: stake not yet collected")

	// ErrStakeNotCollected is returned for a prize whose stake debit failed
	// or was voided by a refund.
	ErrStakeNotCollected = errors.New("wallet: stake was never collected")
)

// Permanent reports whether retrying err can never succeed.
func Permanent(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrUnknownAccount) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrStakeNotCollected)
}

// Key identifies one money movement. Applying the same key twice is a no-op.
type Key struct {
	RoomID   string  `json:"roomId"`
	RunID    string  `json:"runId"`
	PlayerID string  `json:"playerId"`
	Purpose  Purpose `json:"purpose"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.RoomID, k.RunID, k.PlayerID, k.Purpose)
}

// Stake returns the key of the stake debit for the same room, run and player.
func (k Key) Stake() Key {
	k.Purpose = PurposeStake
	return k
}

// creditAmount decides what a credit for key pays out, given the recorded
// stake entry for the same run (debited is false when there is none; a
// recorded amount of zero is a voided stake).
//
//   - A refund pays back what the stake actually took. A refund that finds no
//     stake voids it, so a late debit never charges.
//   - A prize needs a collected stake.
func creditAmount(key Key, amount, stake int64, debited bool) (pay int64, voidStake bool, err error) {
	switch {
	case key.Purpose == PurposeRefund && !debited:
		return 0, true, nil
	case key.Purpose == PurposeRefund:
		return -stake, false, nil
	case !debited:
		return 0, false, fmt.Errorf("%w: %s", ErrStakePending, key)
	case stake == 0:
		return 0, false, fmt.Errorf("%w: %s", ErrStakeNotCollected, key)
	}
	return amount, false, nil
}

// Op is a queued money movement.
type Op struct {
	Key    Key
	Amount int64
}

// Ledger is the external wallet. Implementations must be idempotent per Key.
// Credits are tied to the stake of the same run: a refund reverses only what
// the stake debit took, and a prize is paid only once the stake landed. A
// stake key that failed for lack of funds or was voided by a refund is
// recorded and never charged.
type Ledger interface {
	Debit(ctx context.Context, key Key, amount int64) error
	Credit(ctx context.Context, key Key, amount int64) error
}

// AccountOpener is implemented by ledgers that can create an account on
// first sight of a player.
type AccountOpener interface {
	EnsureAccount(ctx context.Context, playerID string, balance int64) error
}

// Balancer is implemented by ledgers that can report a balance.
type Balancer interface {
	Balance(ctx context.Context, playerID string) (int64, error)
}

// Apply routes op to Debit or Credit according to its purpose.
func Apply(ctx context.Context, l Ledger, op Op) error {
	if op.Amount <= 0 {
		return fmt.Errorf("%w: %d for %s", ErrInvalidAmount, op.Amount, op.Key)
	}
	if op.Key.Purpose.Credit() {
		return l.Credit(ctx, op.Key, op.Amount)
	}
	return l.Debit(ctx, op.Key, op.Amount)
}
