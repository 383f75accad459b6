package wallet

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresLedger(t *testing.T) {
	dsn := os.Getenv("STAKEBINGO_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("STAKEBINGO_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	p, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(p.Close)

	player := "player-" + uuid.NewString()
	require.NoError(t, p.EnsureAccount(ctx, player, 150))

	key := Key{RoomID: "stake-100", RunID: uuid.NewString(), PlayerID: player, Purpose: PurposeStake}
	require.NoError(t, p.Debit(ctx, key, 100))
	require.NoError(t, p.Debit(ctx, key, 100))

	bal, err := p.Balance(ctx, player)
	require.NoError(t, err)
	assert.Equal(t, int64(50), bal)

	second := key
	second.RunID = uuid.NewString()
	assert.ErrorIs(t, p.Debit(ctx, second, 100), ErrInsufficientFunds)

	prize := key
	prize.Purpose = PurposePrize
	require.NoError(t, p.Credit(ctx, prize, 160))
	bal, err = p.Balance(ctx, player)
	require.NoError(t, err)
	assert.Equal(t, int64(210), bal)

	// A refund for the failed debit pays nothing back.
	failedRefund := second
	failedRefund.Purpose = PurposeRefund
	require.NoError(t, p.Credit(ctx, failedRefund, 100))

	// A refund that lands first voids the stake.
	third := key
	third.RunID = uuid.NewString()
	early := third
	early.Purpose = PurposeRefund
	require.NoError(t, p.Credit(ctx, early, 100))
	require.NoError(t, p.Debit(ctx, third, 100))

	bal, err = p.Balance(ctx, player)
	require.NoError(t, err)
	assert.Equal(t, int64(210), bal)

	pending := key
	pending.RunID = uuid.NewString()
	pending.Purpose = PurposePrize
	assert.ErrorIs(t, p.Credit(ctx, pending, 10), ErrStakePending)

	missing := key
	missing.PlayerID = "missing-" + uuid.NewString()
	assert.ErrorIs(t, p.Debit(ctx, missing, 1), ErrUnknownAccount)
}
