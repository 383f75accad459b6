package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS wallet_accounts (
	player_id  TEXT PRIMARY KEY,
	balance    BIGINT NOT NULL CHECK (balance >= 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS wallet_entries (
	entry_key  TEXT PRIMARY KEY,
	room_id    TEXT NOT NULL,
	run_id     TEXT NOT NULL,
	player_id  TEXT NOT NULL REFERENCES wallet_accounts(player_id),
	purpose    TEXT NOT NULL,
	amount     BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Postgres is a ledger backed by two tables: balances and an append-only
// entry log keyed by the idempotency key.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and creates the schema if needed.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create wallet schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) EnsureAccount(ctx context.Context, playerID string, balance int64) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO wallet_accounts (player_id, balance) VALUES ($1, $2) ON CONFLICT (player_id) DO NOTHING`,
		playerID, balance)
	if err != nil {
		return fmt.Errorf("failed to open account %s: %w", playerID, err)
	}
	return nil
}

func (p *Postgres) Balance(ctx context.Context, playerID string) (int64, error) {
	var bal int64
	err := p.pool.QueryRow(ctx, `SELECT balance FROM wallet_accounts WHERE player_id = $1`, playerID).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAccount, playerID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance for %s: %w", playerID, err)
	}
	return bal, nil
}

func (p *Postgres) Debit(ctx context.Context, key Key, amount int64) error {
	var short bool
	err := p.inTx(ctx, key, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE wallet_accounts SET balance = balance - $1 WHERE player_id = $2 AND balance >= $1`,
			amount, key.PlayerID)
		if err != nil {
			return fmt.Errorf("failed to update balance for %s: %w", key.PlayerID, err)
		}
		if tag.RowsAffected() == 0 {
			short = true
			return record(ctx, tx, key, 0)
		}
		return record(ctx, tx, key, -amount)
	})
	if err == nil && short {
		return fmt.Errorf("%w: %s needs %d", ErrInsufficientFunds, key.PlayerID, amount)
	}
	return err
}

func (p *Postgres) Credit(ctx context.Context, key Key, amount int64) error {
	return p.inTx(ctx, key, func(tx pgx.Tx) error {
		var stake int64
		err := tx.QueryRow(ctx,
			`SELECT amount FROM wallet_entries WHERE entry_key = $1`, key.Stake().String()).Scan(&stake)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to read stake for %s: %w", key, err)
		}

		pay, void, err := creditAmount(key, amount, stake, err == nil)
		if err != nil {
			return err
		}
		if void {
			if err := record(ctx, tx, key.Stake(), 0); err != nil {
				return err
			}
		}
		if pay > 0 {
			_, err := tx.Exec(ctx,
				`UPDATE wallet_accounts SET balance = balance + $1 WHERE player_id = $2`, pay, key.PlayerID)
			if err != nil {
				return fmt.Errorf("failed to update balance for %s: %w", key.PlayerID, err)
			}
		}
		return record(ctx, tx, key, pay)
	})
}

// inTx runs fn in a transaction holding the player's account row lock, so
// entries for one player are applied one at a time. A key that is already
// recorded commits nothing and reports success.
func (p *Postgres) inTx(ctx context.Context, key Key, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT true FROM wallet_accounts WHERE player_id = $1 FOR UPDATE`, key.PlayerID).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrUnknownAccount, key.PlayerID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock account %s: %w", key.PlayerID, err)
		}

		var done bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM wallet_entries WHERE entry_key = $1)`, key.String()).Scan(&done)
		if err != nil {
			return fmt.Errorf("failed to look up entry %s: %w", key, err)
		}
		if done {
			return nil
		}
		return fn(tx)
	})
}

func record(ctx context.Context, tx pgx.Tx, key Key, amount int64) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO wallet_entries (entry_key, room_id, run_id, player_id, purpose, amount)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		key.String(), key.RoomID, key.RunID, key.PlayerID, string(key.Purpose), amount)
	if err != nil {
		return fmt.Errorf("failed to record entry %s: %w", key, err)
	}
	return nil
}
