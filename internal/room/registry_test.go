package room

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/stakebingo/internal/wallet"
)

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *quartz.Mock) {
	t.Helper()
	mClock := quartz.NewMock(t)
	reg := NewRegistry(RegistryConfig{
		Stakes:        []int64{10, 50, 100},
		Room:          Config{},
		SweepInterval: time.Minute,
		Clock:         mClock,
		Logger:        quietLogger(),
	}, append([]Option{WithRunIDs(sequentialRunIDs())}, opts...)...)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })
	return reg, mClock
}

func TestRegistryGetOrCreate(t *testing.T) {
	t.Parallel()
	reg, _ := newTestRegistry(t)

	a, err := reg.GetOrCreate(100)
	require.NoError(t, err)
	b, err := reg.GetOrCreate(100)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, "stake-100", a.ID())
	assert.Equal(t, 50, a.Config().CountdownSeconds)

	_, err = reg.GetOrCreate(25)
	assert.ErrorIs(t, err, ErrInvalidStake)
	assert.Equal(t, "INVALID_STAKE", CodeOf(err))

	got, ok := reg.ByID("stake-100")
	require.True(t, ok)
	assert.Same(t, a, got)
	_, ok = reg.Get(50)
	assert.False(t, ok)
}

func TestRegistryDisposeIfEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	r, err := reg.GetOrCreate(50)
	require.NoError(t, err)
	_, err = r.Join(ctx, "alice", "alice")
	require.NoError(t, err)

	disposed, err := reg.DisposeIfEmpty(ctx, r)
	require.NoError(t, err)
	assert.False(t, disposed)

	require.NoError(t, r.Leave(ctx, "alice"))
	disposed, err = reg.DisposeIfEmpty(ctx, r)
	require.NoError(t, err)
	assert.True(t, disposed)

	_, ok := reg.Get(50)
	assert.False(t, ok)

	_, err = r.Join(ctx, "bob", "bob")
	assert.ErrorIs(t, err, ErrRoomClosed)

	fresh, err := reg.GetOrCreate(50)
	require.NoError(t, err)
	assert.NotSame(t, r, fresh)
}

func TestRegistryDisposeRacesWithJoin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	for i := 0; i < 50; i++ {
		r, err := reg.GetOrCreate(10)
		require.NoError(t, err)

		joined := make(chan error, 1)
		go func() {
			_, err := r.Join(ctx, "alice", "alice")
			joined <- err
		}()
		disposed, err := reg.DisposeIfEmpty(ctx, r)
		require.NoError(t, err)

		err = <-joined
		if disposed {
			// A join that landed first would have kept the room open.
			assert.True(t, errors.Is(err, ErrRoomClosed))
			continue
		}
		require.NoError(t, err)
		require.NoError(t, r.Leave(ctx, "alice"))
	}
}

func TestRegistrySweep(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reg, mClock := newTestRegistry(t)

	busy, err := reg.GetOrCreate(10)
	require.NoError(t, err)
	_, err = busy.Join(ctx, "alice", "alice")
	require.NoError(t, err)
	_, err = reg.GetOrCreate(50)
	require.NoError(t, err)
	_, err = reg.GetOrCreate(100)
	require.NoError(t, err)

	sweepCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- reg.RunSweeper(sweepCtx) }()

	require.Eventually(t, func() bool {
		_, ok := mClock.Peek()
		return ok
	}, 5*time.Second, time.Millisecond)
	mClock.Advance(time.Minute).MustWait(ctx)

	rooms := reg.Rooms()
	require.Len(t, rooms, 1)
	assert.Same(t, busy, rooms[0])

	summaries, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "stake-10", summaries[0].RoomID)
	assert.Equal(t, 1, summaries[0].Players)

	stop()
	assert.NoError(t, <-done)
}

func TestRegistryEvictsOnPermanentDebitFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	r, err := reg.GetOrCreate(100)
	require.NoError(t, err)
	_, err = r.Join(ctx, "alice", "alice")
	require.NoError(t, err)
	_, err = r.Join(ctx, "bob", "bob")
	require.NoError(t, err)

	snap, err := r.Snapshot(ctx, "")
	require.NoError(t, err)

	reg.OnPaymentFailure(wallet.Op{
		Key:    wallet.Key{RoomID: "stake-100", RunID: snap.RunID, PlayerID: "bob", Purpose: wallet.PurposeStake},
		Amount: 100,
	}, wallet.ErrInsufficientFunds)

	snap, err = r.Snapshot(ctx, "")
	require.NoError(t, err)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, "alice", snap.Players[0].ID)
	assert.Equal(t, StateIdle, snap.State)
}

func TestRegistryClose(t *testing.T) {
	t.Parallel()
	reg, _ := newTestRegistry(t)

	r, err := reg.GetOrCreate(10)
	require.NoError(t, err)
	require.NoError(t, reg.Close(context.Background()))
	<-r.Done()

	_, err = reg.GetOrCreate(10)
	assert.ErrorIs(t, err, ErrRoomClosed)
}

func TestRegistryRefundsOnlyCollectedStakes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ledger := wallet.NewMemory()
	require.NoError(t, ledger.EnsureAccount(ctx, "poor", 5))
	require.NoError(t, ledger.EnsureAccount(ctx, "rich", 500))

	dispatcher := wallet.NewDispatcher(ledger, wallet.DispatcherConfig{Workers: 4, Logger: quietLogger()})
	reg, _ := newTestRegistry(t, WithPayments(dispatcher))
	dispatcher.SetFailureHandler(reg.OnPaymentFailure)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- dispatcher.Run(runCtx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	r, err := reg.GetOrCreate(100)
	require.NoError(t, err)
	for _, id := range []string{"poor", "rich"} {
		_, err = r.Join(ctx, id, id)
		require.NoError(t, err)
		require.NoError(t, r.Leave(ctx, id))
	}
	require.NoError(t, r.Close(ctx))

	require.Eventually(t, func() bool { return dispatcher.Pending() == 0 }, 5*time.Second, time.Millisecond)

	for id, want := range map[string]int64{"poor": 5, "rich": 500} {
		bal, err := ledger.Balance(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, bal, id)
	}
}
