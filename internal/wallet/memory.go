package wallet

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process ledger. Balances are lost on restart.
type Memory struct {
	mu       sync.Mutex
	balances map[string]int64
	applied  map[Key]int64
}

// NewMemory returns an empty ledger.
func NewMemory() *Memory {
	return &Memory{
		balances: make(map[string]int64),
		applied:  make(map[Key]int64),
	}
}

// EnsureAccount opens an account with balance if the player has none.
func (m *Memory) EnsureAccount(_ context.Context, playerID string, balance int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[playerID]; !ok {
		m.balances[playerID] = balance
	}
	return nil
}

func (m *Memory) Debit(_ context.Context, key Key, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, done := m.applied[key]; done {
		return nil
	}
	bal, ok := m.balances[key.PlayerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, key.PlayerID)
	}
	if bal < amount {
		m.applied[key] = 0
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, key.PlayerID, bal, amount)
	}
	m.balances[key.PlayerID] = bal - amount
	m.applied[key] = -amount
	return nil
}

func (m *Memory) Credit(_ context.Context, key Key, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, done := m.applied[key]; done {
		return nil
	}
	if _, ok := m.balances[key.PlayerID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, key.PlayerID)
	}
	stake, debited := m.applied[key.Stake()]
	pay, void, err := creditAmount(key, amount, stake, debited)
	if err != nil {
		return err
	}
	if void {
		m.applied[key.Stake()] = 0
	}
	m.balances[key.PlayerID] += pay
	m.applied[key] = pay
	return nil
}

// Balance returns the player's current balance.
func (m *Memory) Balance(_ context.Context, playerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[playerID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAccount, playerID)
	}
	return bal, nil
}

// Applied returns how many distinct keys have been recorded, voids included.
func (m *Memory) Applied() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.applied)
}
