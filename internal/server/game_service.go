package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/lox/stakebingo/internal/auth"
	"github.com/lox/stakebingo/internal/bingo"
	"github.com/lox/stakebingo/internal/room"
	"github.com/lox/stakebingo/internal/wallet"
)

// joinAttempts bounds retries when a join races the registry disposing of
// the room.
const joinAttempts = 3

// GameService is the transport-facing facade over the room registry and the
// wallet.
type GameService struct {
	registry        *room.Registry
	validator       auth.Validator
	accounts        wallet.AccountOpener
	balances        wallet.Balancer
	startingBalance int64
	logger          *log.Logger
}

// GameServiceConfig wires a GameService. Validator defaults to the no-op
// validator. Ledger is optional; when it can open accounts, each player is
// given StartingBalance on first authentication.
type GameServiceConfig struct {
	Registry        *room.Registry
	Validator       auth.Validator
	Ledger          wallet.Ledger
	StartingBalance int64
	Logger          *log.Logger
}

// NewGameService creates a game service
func NewGameService(cfg GameServiceConfig) *GameService {
	if cfg.Validator == nil {
		cfg.Validator = auth.NewNoopValidator()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	gs := &GameService{
		registry:        cfg.Registry,
		validator:       cfg.Validator,
		startingBalance: cfg.StartingBalance,
		logger:          cfg.Logger.WithPrefix("game"),
	}
	if a, ok := cfg.Ledger.(wallet.AccountOpener); ok {
		gs.accounts = a
	}
	if b, ok := cfg.Ledger.(wallet.Balancer); ok {
		gs.balances = b
	}
	return gs
}

// Authenticate resolves a client's credentials to an identity and makes sure
// the player has a wallet account. With authentication disabled the player
// name is used as the ID.
func (gs *GameService) Authenticate(ctx context.Context, token, playerName string) (*auth.Identity, error) {
	id, err := gs.validator.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	if id == nil {
		if playerName == "" {
			return nil, fmt.Errorf("%w: player name required", auth.ErrInvalidToken)
		}
		id = &auth.Identity{PlayerID: playerName, Username: playerName}
	}

	if gs.accounts != nil {
		if err := gs.accounts.EnsureAccount(ctx, id.PlayerID, gs.startingBalance); err != nil {
			return nil, fmt.Errorf("open wallet account: %w", err)
		}
	}
	gs.logger.Debug("Player authenticated", "player", id.PlayerID)
	return id, nil
}

// Balance returns the player's wallet balance when the ledger can report it.
func (gs *GameService) Balance(ctx context.Context, playerID string) (int64, bool) {
	if gs.balances == nil {
		return 0, false
	}
	bal, err := gs.balances.Balance(ctx, playerID)
	if err != nil {
		gs.logger.Warn("Balance lookup failed", "player", playerID, "error", err)
		return 0, false
	}
	return bal, true
}

// Join seats a player in the room for stake, creating the room if needed.
func (gs *GameService) Join(ctx context.Context, stake int64, playerID, username string) (room.Snapshot, error) {
	var err error
	for range joinAttempts {
		var r *room.Room
		r, err = gs.registry.GetOrCreate(stake)
		if err != nil {
			return room.Snapshot{}, err
		}
		var snap room.Snapshot
		snap, err = r.Join(ctx, playerID, username)
		if !errors.Is(err, room.ErrRoomClosed) {
			return snap, err
		}
		gs.logger.Debug("Room closed during join, retrying", "room", r.ID(), "player", playerID)
	}
	return room.Snapshot{}, err
}

// Leave removes a player from the room for stake and disposes of the room if
// it is now empty.
func (gs *GameService) Leave(ctx context.Context, stake int64, playerID string) (string, error) {
	r, err := gs.lookup(stake)
	if err != nil {
		return "", err
	}
	if err := r.Leave(ctx, playerID); err != nil {
		return "", err
	}
	if _, err := gs.registry.DisposeIfEmpty(ctx, r); err != nil {
		gs.logger.Warn("Dispose after leave failed", "room", r.ID(), "error", err)
	}
	return r.ID(), nil
}

// Disconnect marks a player Disconnected in the room with the given ID.
// Unknown rooms are ignored.
func (gs *GameService) Disconnect(ctx context.Context, roomID, playerID string) error {
	r, ok := gs.registry.ByID(roomID)
	if !ok {
		return nil
	}
	err := r.Disconnect(ctx, playerID)
	if errors.Is(err, room.ErrNotJoined) || errors.Is(err, room.ErrRoomClosed) {
		return nil
	}
	return err
}

func (gs *GameService) SelectTicket(ctx context.Context, stake int64, playerID string, n int) (bingo.Card, error) {
	r, err := gs.lookup(stake)
	if err != nil {
		return bingo.Card{}, err
	}
	return r.SelectTicket(ctx, playerID, n)
}

func (gs *GameService) ClaimBingo(ctx context.Context, stake int64, playerID string) (room.Settlement, error) {
	r, err := gs.lookup(stake)
	if err != nil {
		return room.Settlement{}, err
	}
	return r.ClaimBingo(ctx, playerID)
}

func (gs *GameService) Acknowledge(ctx context.Context, stake int64, playerID string) error {
	r, err := gs.lookup(stake)
	if err != nil {
		return err
	}
	return r.Acknowledge(ctx, playerID)
}

// Snapshot returns the room for stake as seen by playerID. An empty playerID
// gives the spectator view.
func (gs *GameService) Snapshot(ctx context.Context, stake int64, playerID string) (room.Snapshot, error) {
	r, err := gs.lookup(stake)
	if err != nil {
		return room.Snapshot{}, err
	}
	return r.Snapshot(ctx, playerID)
}

// ListRooms summarises every live room.
func (gs *GameService) ListRooms(ctx context.Context) ([]room.Summary, error) {
	return gs.registry.List(ctx)
}

// Reset abandons or clears the current run of the room for stake.
func (gs *GameService) Reset(ctx context.Context, stake int64) error {
	r, err := gs.lookup(stake)
	if err != nil {
		return err
	}
	gs.logger.Info("Operator reset", "room", r.ID())
	return r.Reset(ctx)
}

// ForceStart skips the countdown of the room for stake.
func (gs *GameService) ForceStart(ctx context.Context, stake int64) error {
	r, err := gs.lookup(stake)
	if err != nil {
		return err
	}
	gs.logger.Info("Operator force start", "room", r.ID())
	return r.ForceStart(ctx)
}

// ErrRoomNotFound is returned for a valid stake whose room has not been
// created yet.
var ErrRoomNotFound = errors.New("room not found")

func (gs *GameService) lookup(stake int64) (*room.Room, error) {
	if !gs.registry.Allowed(stake) {
		return nil, room.ErrInvalidStake
	}
	r, ok := gs.registry.Get(stake)
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}
