package room

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/stakebingo/internal/wallet"
)

// RegistryConfig describes the stake tiers on offer.
type RegistryConfig struct {
	// Stakes lists the allowed stake amounts. Empty allows any positive stake.
	Stakes []int64
	// Room is the template for every room; Stake is filled per room.
	Room          Config
	SweepInterval time.Duration
	Clock         quartz.Clock
	Logger        *log.Logger
}

// Registry holds one Room per stake, created on first use. Its mutex guards
// only the map; room state is never touched while it is held.
type Registry struct {
	cfg    RegistryConfig
	opts   []Option
	clock  quartz.Clock
	logger *log.Logger

	mu     sync.Mutex
	rooms  map[int64]*Room
	closed bool
}

// NewRegistry creates an empty registry. opts are applied to every room it
// creates.
func NewRegistry(cfg RegistryConfig, opts ...Option) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return &Registry{
		cfg:    cfg,
		opts:   append(slices.Clone(opts), WithClock(cfg.Clock), WithLogger(cfg.Logger)),
		clock:  cfg.Clock,
		logger: cfg.Logger.WithPrefix("registry"),
		rooms:  make(map[int64]*Room),
	}
}

// Allowed reports whether stake is one of the configured tiers.
func (g *Registry) Allowed(stake int64) bool {
	if stake <= 0 {
		return false
	}
	return len(g.cfg.Stakes) == 0 || slices.Contains(g.cfg.Stakes, stake)
}

// GetOrCreate returns the room for stake, creating it if needed.
func (g *Registry) GetOrCreate(stake int64) (*Room, error) {
	if !g.Allowed(stake) {
		return nil, fail(ErrInvalidStake, "%d", stake)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, fail(ErrRoomClosed, "registry closed")
	}
	if r, ok := g.rooms[stake]; ok {
		select {
		case <-r.Done():
			// Closed outside the registry; replace it.
		default:
			return r, nil
		}
	}

	cfg := g.cfg.Room
	cfg.Stake = stake
	r := New(cfg, g.opts...)
	g.rooms[stake] = r
	g.logger.Debug("Created room", "room", r.ID())
	return r, nil
}

// Get returns the room for stake if it exists.
func (g *Registry) Get(stake int64) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[stake]
	return r, ok
}

// ByID looks a room up by its ID.
func (g *Registry) ByID(id string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, r := range g.rooms {
		if r.ID() == id {
			return r, true
		}
	}
	return nil, false
}

// Rooms returns the live rooms ordered by stake.
func (g *Registry) Rooms() []*Room {
	g.mu.Lock()
	out := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		out = append(out, r)
	}
	g.mu.Unlock()

	slices.SortFunc(out, func(a, b *Room) int {
		switch {
		case a.Stake() < b.Stake():
			return -1
		case a.Stake() > b.Stake():
			return 1
		}
		return 0
	})
	return out
}

// List summarises every live room. Rooms that close while being listed are
// skipped.
func (g *Registry) List(ctx context.Context) ([]Summary, error) {
	rooms := g.Rooms()
	out := make([]Summary, 0, len(rooms))
	for _, r := range rooms {
		snap, err := r.Snapshot(ctx, "")
		if errors.Is(err, ErrRoomClosed) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, snap.Summary())
	}
	return out, nil
}

// DisposeIfEmpty closes r and drops it from the registry if nobody is seated
// and no run is in progress. The check runs on the room's goroutine, so a
// racing Join either lands first or sees ErrRoomClosed.
func (g *Registry) DisposeIfEmpty(ctx context.Context, r *Room) (bool, error) {
	closed, err := r.closeIfEmpty(ctx)
	if errors.Is(err, ErrRoomClosed) {
		closed, err = true, nil
	}
	if err != nil || !closed {
		return false, err
	}

	g.mu.Lock()
	if cur, ok := g.rooms[r.Stake()]; ok && cur == r {
		delete(g.rooms, r.Stake())
	}
	g.mu.Unlock()

	g.logger.Debug("Disposed room", "room", r.ID())
	return true, nil
}

// Sweep disposes of every empty room and returns how many were removed.
func (g *Registry) Sweep(ctx context.Context) int {
	n := 0
	for _, r := range g.Rooms() {
		ok, err := g.DisposeIfEmpty(ctx, r)
		if err != nil {
			g.logger.Warn("Sweep failed", "room", r.ID(), "error", err)
			continue
		}
		if ok {
			n++
		}
	}
	return n
}

// RunSweeper sweeps on the configured interval until ctx is cancelled.
func (g *Registry) RunSweeper(ctx context.Context) error {
	w := g.clock.TickerFunc(ctx, g.cfg.SweepInterval, func() error {
		if n := g.Sweep(ctx); n > 0 {
			g.logger.Info("Swept empty rooms", "count", n)
		}
		return nil
	}, "registry", "sweep")
	err := w.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close stops every room. Subsequent GetOrCreate calls fail.
func (g *Registry) Close(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	clear(g.rooms)
	g.mu.Unlock()

	var errs []error
	for _, r := range rooms {
		if err := r.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnPaymentFailure evicts the player behind a stake debit that can never
// succeed. It is meant to be installed as the wallet dispatcher's failure
// hook.
func (g *Registry) OnPaymentFailure(op wallet.Op, err error) {
	if op.Key.Purpose != wallet.PurposeStake {
		g.logger.Error("Payout failed permanently", "key", op.Key, "amount", op.Amount, "error", err)
		return
	}
	r, ok := g.ByID(op.Key.RoomID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if eerr := r.Evict(ctx, op.Key.PlayerID, op.Key.RunID, err.Error()); eerr != nil && !errors.Is(eerr, ErrRoomClosed) {
		g.logger.Warn("Failed to evict player", "player", op.Key.PlayerID, "room", op.Key.RoomID, "error", eerr)
	}
}
