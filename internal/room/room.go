// Package room runs stake-tiered bingo rooms. Each Room is an actor: one
// goroutine owns all of its state and every operation, including timer
// callbacks, is a closure sent through the room's inbox.
package room

import (
	"context"
	"errors"
	"fmt"
	rand "math/rand/v2"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/stakebingo/internal/bingo"
	"github.com/lox/stakebingo/internal/gameid"
	"github.com/lox/stakebingo/internal/randutil"
	"github.com/lox/stakebingo/internal/wallet"
)

// State is a room's position in its run lifecycle.
type State int

const (
	StateIdle State = iota
	StateCountdown
	StateCalling
	StateSettled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCountdown:
		return "countdown"
	case StateCalling:
		return "calling"
	case StateSettled:
		return "settled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{StateIdle, StateCountdown, StateCalling, StateSettled} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown room state %q", text)
}

// Config holds the per-room rules.
type Config struct {
	Stake             int64
	MinPlayers        int
	CountdownSeconds  int
	CallInterval      time.Duration
	ResetGrace        time.Duration
	DisconnectTimeout time.Duration
	RetainTickets     bool
}

// DefaultConfig returns the standard rules for a stake.
func DefaultConfig(stake int64) Config {
	return Config{
		Stake:             stake,
		MinPlayers:        2,
		CountdownSeconds:  50,
		CallInterval:      time.Second,
		ResetGrace:        15 * time.Second,
		DisconnectTimeout: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig(c.Stake)
	if c.MinPlayers <= 0 {
		c.MinPlayers = d.MinPlayers
	}
	if c.CountdownSeconds <= 0 {
		c.CountdownSeconds = d.CountdownSeconds
	}
	if c.CallInterval <= 0 {
		c.CallInterval = d.CallInterval
	}
	return c
}

// ID returns the room ID for a stake.
func ID(stake int64) string {
	return fmt.Sprintf("stake-%d", stake)
}

// Payments receives money movements. Submit must not block.
type Payments interface {
	Submit(op wallet.Op)
}

// Settlement describes an accepted claim.
type Settlement struct {
	RoomID             string       `json:"roomId"`
	RunID              string       `json:"runId"`
	WinnerID           string       `json:"winnerId"`
	Prize              int64        `json:"prize"`
	PlayerCountAtClaim int          `json:"playerCountAtClaim"`
	Lines              []bingo.Line `json:"lines"`
	Calls              int          `json:"calls"`
}

// Option configures a Room.
type Option func(*Room)

// WithClock sets the clock driving countdown, draw and reset timers.
func WithClock(clock quartz.Clock) Option {
	return func(r *Room) { r.clock = clock }
}

// WithLogger sets the parent logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Room) { r.logger = logger }
}

// WithPayments routes stakes, prizes and refunds to p.
func WithPayments(p Payments) Option {
	return func(r *Room) { r.payments = p }
}

// WithSubscriber adds an event subscriber.
func WithSubscriber(s Subscriber) Option {
	return func(r *Room) { r.subscribers = append(r.subscribers, s) }
}

// WithSeed sets the seed source for card dealing and draw orders.
func WithSeed(seed func() int64) Option {
	return func(r *Room) { r.seed = seed }
}

// WithDrawOrder replaces the permutation used for each run.
func WithDrawOrder(order func(*rand.Rand) []int) Option {
	return func(r *Room) { r.drawOrder = order }
}

// WithDealer replaces card generation.
func WithDealer(deal func(ticket int, rng *rand.Rand) (bingo.Card, error)) Option {
	return func(r *Room) { r.dealer = deal }
}

// WithRunIDs sets the run ID generator.
func WithRunIDs(next func() string) Option {
	return func(r *Room) { r.newRunID = next }
}

// Room is one stake tier.
type Room struct {
	id          string
	cfg         Config
	clock       quartz.Clock
	logger      *log.Logger
	payments    Payments
	subscribers []Subscriber
	seed        func() int64
	drawOrder   func(*rand.Rand) []int
	dealer      func(int, *rand.Rand) (bingo.Card, error)
	newRunID    func() string

	inbox  chan func()
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	// Everything below is owned by the loop goroutine.
	closed       bool
	state        State
	runID        string
	rng          *rand.Rand
	presence     presence
	paid         map[string]bool
	acked        map[string]bool
	countdown    int
	seq          *bingo.Sequencer
	winnerID     string
	prize        int64
	countAtClaim int
	lines        []bingo.Line

	countdownTimer timer
	drawTimer      timer
	graceTimer     timer
}

// New creates a room and starts its goroutine.
func New(cfg Config, opts ...Option) *Room {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		id:        ID(cfg.Stake),
		cfg:       cfg,
		clock:     quartz.NewReal(),
		logger:    log.Default(),
		seed:      randutil.Seed,
		drawOrder: bingo.DrawOrder,
		dealer:    bingo.Generate,
		newRunID:  gameid.Generate,
		inbox:     make(chan func(), 64),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		presence:  newPresence(),
		paid:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithPrefix("room").With("room", r.id)
	r.rng = randutil.New(r.seed())
	r.runID = r.newRunID()

	go r.loop()
	return r
}

func (r *Room) ID() string     { return r.id }
func (r *Room) Stake() int64   { return r.cfg.Stake }
func (r *Room) Config() Config { return r.cfg }

// Done is closed once the room has shut down.
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) loop() {
	defer close(r.done)
	for fn := range r.inbox {
		fn()
		if r.closed {
			return
		}
	}
}

// do runs fn on the room goroutine and waits for it to finish.
func (r *Room) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case r.inbox <- func() { fn(); close(finished) }:
	case <-r.done:
		return fail(ErrRoomClosed, "%s", r.id)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-r.done:
		select {
		case <-finished:
			return nil
		default:
			return fail(ErrRoomClosed, "%s", r.id)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn without waiting. Used by timer callbacks.
func (r *Room) post(fn func()) {
	select {
	case r.inbox <- fn:
	case <-r.done:
	}
}

// Join seats a player, or reconnects one whose session is Disconnected.
func (r *Room) Join(ctx context.Context, playerID, username string) (Snapshot, error) {
	var snap Snapshot
	var err error
	if derr := r.do(ctx, func() { snap, err = r.join(playerID, username) }); derr != nil {
		return Snapshot{}, derr
	}
	return snap, err
}

// Leave removes a player. Leaving during Calling forfeits the stake.
func (r *Room) Leave(ctx context.Context, playerID string) error {
	var err error
	if derr := r.do(ctx, func() { err = r.leave(playerID) }); derr != nil {
		return derr
	}
	return err
}

// Disconnect marks a player's connection as lost. The seat and ticket are
// kept until the disconnect timeout.
func (r *Room) Disconnect(ctx context.Context, playerID string) error {
	var err error
	if derr := r.do(ctx, func() { err = r.disconnect(playerID) }); derr != nil {
		return derr
	}
	return err
}

// SelectTicket reserves ticket number n for a player and returns their new
// card.
func (r *Room) SelectTicket(ctx context.Context, playerID string, n int) (bingo.Card, error) {
	var card bingo.Card
	var err error
	if derr := r.do(ctx, func() { card, err = r.selectTicket(playerID, n) }); derr != nil {
		return bingo.Card{}, derr
	}
	return card, err
}

// ClaimBingo asks the room to verify a player's card against its own call
// history.
func (r *Room) ClaimBingo(ctx context.Context, playerID string) (Settlement, error) {
	var s Settlement
	var err error
	if derr := r.do(ctx, func() { s, err = r.claim(playerID) }); derr != nil {
		return Settlement{}, derr
	}
	return s, err
}

// Acknowledge records that a player has seen the settlement.
func (r *Room) Acknowledge(ctx context.Context, playerID string) error {
	var err error
	if derr := r.do(ctx, func() { err = r.acknowledge(playerID) }); derr != nil {
		return derr
	}
	return err
}

// Reset ends the current run. A run in Calling is abandoned and every stake
// refunded. Idle and Countdown rooms are left alone.
func (r *Room) Reset(ctx context.Context) error {
	return r.do(ctx, func() {
		switch r.state {
		case StateCalling:
			r.abortRun("reset by operator")
		case StateSettled:
			r.resetRun("reset by operator")
		}
	})
}

// ForceStart skips the rest of the countdown.
func (r *Room) ForceStart(ctx context.Context) error {
	var err error
	if derr := r.do(ctx, func() { err = r.forceStart() }); derr != nil {
		return derr
	}
	return err
}

// Evict removes a player whose stake for runID could not be collected.
// Evictions for an earlier run are ignored.
func (r *Room) Evict(ctx context.Context, playerID, runID, reason string) error {
	return r.do(ctx, func() { r.evict(playerID, runID, reason) })
}

// Snapshot returns the room as seen by playerID. An empty playerID gives the
// spectator view with no card.
func (r *Room) Snapshot(ctx context.Context, playerID string) (Snapshot, error) {
	var snap Snapshot
	if err := r.do(ctx, func() { snap = r.snapshot(playerID) }); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Close stops the room. Stakes for a run that never finished are refunded.
func (r *Room) Close(ctx context.Context) error {
	err := r.do(ctx, func() {
		if r.state != StateSettled {
			r.refundAll()
		}
		r.shutdown()
	})
	if errors.Is(err, ErrRoomClosed) {
		return nil
	}
	return err
}

// closeIfEmpty shuts the room down when nobody is seated and no run is in
// progress.
func (r *Room) closeIfEmpty(ctx context.Context) (bool, error) {
	var closed bool
	err := r.do(ctx, func() {
		if len(r.presence.sessions) > 0 || r.state == StateCalling || r.state == StateCountdown {
			return
		}
		if r.state == StateIdle {
			r.refundAll()
		}
		r.shutdown()
		closed = true
	})
	return closed, err
}

func (r *Room) join(id, username string) (Snapshot, error) {
	var admit error
	switch r.state {
	case StateCalling:
		admit = fail(ErrAlreadyStarted, "%s", r.id)
	case StateSettled:
		admit = fail(ErrRoomAlreadySettled, "%s", r.id)
	default:
		// One seat per ticket number.
		if len(r.presence.sessions) >= bingo.PoolSize {
			admit = fail(ErrRoomFull, "%s has %d players", r.id, len(r.presence.sessions))
		}
	}

	s, reconnected, err := r.presence.join(id, username, r.clock.Now(), admit)
	if err != nil {
		return Snapshot{}, err
	}

	if reconnected {
		s.leave.cancel()
		r.logger.Info("Player reconnected", "player", id, "state", r.state)
	} else {
		r.logger.Info("Player joined", "player", id, "username", s.username)
		r.collectStake(id)
	}

	r.publishRoster()
	r.maybeStartCountdown()
	return r.snapshot(id), nil
}

func (r *Room) leave(id string) error {
	s, ok := r.presence.remove(id)
	if !ok {
		return fail(ErrNotJoined, "%s", id)
	}
	s.leave.cancel()
	if r.state == StateCalling {
		delete(r.paid, id)
	}
	delete(r.acked, id)
	r.logger.Info("Player left", "player", id, "state", r.state)

	r.publishRoster()
	r.afterPresenceDrop()
	return nil
}

func (r *Room) disconnect(id string) error {
	s, ok := r.presence.get(id)
	if !ok {
		return fail(ErrNotJoined, "%s", id)
	}
	if s.status == Disconnected {
		return nil
	}
	s.status = Disconnected
	r.logger.Info("Player disconnected", "player", id, "state", r.state)

	if r.cfg.DisconnectTimeout > 0 {
		r.startTimer(&s.leave, r.cfg.DisconnectTimeout, "disconnect", func() {
			if cur, ok := r.presence.get(id); ok && cur == s && s.status == Disconnected {
				r.logger.Info("Disconnect timeout", "player", id)
				_ = r.leave(id)
			}
		})
	}

	r.publishRoster()
	r.afterPresenceDrop()
	return nil
}

// afterPresenceDrop reacts to the connected count going down.
func (r *Room) afterPresenceDrop() {
	switch r.state {
	case StateCountdown:
		r.maybeStopCountdown()
	case StateSettled:
		r.maybeResetAfterAcks()
	}
}

func (r *Room) selectTicket(id string, n int) (bingo.Card, error) {
	switch r.state {
	case StateCalling:
		return bingo.Card{}, fail(ErrAlreadyStarted, "%s", r.id)
	case StateSettled:
		return bingo.Card{}, fail(ErrRoomAlreadySettled, "%s", r.id)
	}

	card, displaced, err := r.presence.reserve(id, n, r.deal)
	if errors.Is(err, ErrTicketTaken) {
		r.publish(TicketConflictEvent{Meta: r.meta(), PlayerID: id, TicketNumber: n})
	}
	if err != nil {
		return bingo.Card{}, err
	}
	if displaced != "" {
		r.logger.Info("Ticket reassigned from disconnected player", "ticket", n, "from", displaced, "to", id)
	}
	r.logger.Debug("Ticket selected", "player", id, "ticket", n)
	r.publishRoster()
	return card, nil
}

func (r *Room) deal(n int) (bingo.Card, error) {
	return r.dealer(n, r.rng)
}

func (r *Room) claim(id string) (Settlement, error) {
	s, ok := r.presence.get(id)
	if !ok {
		return Settlement{}, fail(ErrNotJoined, "%s", id)
	}

	switch r.state {
	case StateIdle, StateCountdown:
		return Settlement{}, fail(ErrNotCalling, "%s is %s", r.id, r.state)
	case StateSettled:
		if r.winnerID == "" {
			return Settlement{}, fail(ErrRoomAlreadySettled, "%s", r.id)
		}
		if s.ticket != 0 && bingo.IsBingo(s.card, r.seq.Called()) {
			return Settlement{}, fail(ErrAlreadyWon, "won by %s", r.winnerID)
		}
		return Settlement{}, fail(ErrNotAWin, "")
	}

	called := r.seq.Called()
	if s.ticket == 0 || !bingo.IsBingo(s.card, called) {
		r.logger.Debug("Rejected claim", "player", id, "calls", r.seq.Len())
		return Settlement{}, fail(ErrNotAWin, "")
	}

	r.seq.Stop()
	r.drawTimer.cancel()

	r.state = StateSettled
	r.winnerID = id
	r.countAtClaim = r.presence.connectedCount()
	r.prize = bingo.Prize(r.cfg.Stake, r.countAtClaim)
	r.lines = bingo.WinningLines(s.card, called)

	r.logger.Info("Bingo", "winner", id, "prize", r.prize, "players", r.countAtClaim, "calls", r.seq.Len())

	history := r.seq.History()
	r.publish(GameWonEvent{
		Meta:               r.meta(),
		WinnerID:           id,
		Username:           s.username,
		Prize:              r.prize,
		PlayerCountAtClaim: r.countAtClaim,
		Lines:              slices.Clone(r.lines),
		Card:               s.card,
		Calls:              history,
	})
	if r.prize > 0 {
		r.submit(id, wallet.PurposePrize, r.prize)
	}
	r.armGrace()

	return Settlement{
		RoomID:             r.id,
		RunID:              r.runID,
		WinnerID:           id,
		Prize:              r.prize,
		PlayerCountAtClaim: r.countAtClaim,
		Lines:              slices.Clone(r.lines),
		Calls:              len(history),
	}, nil
}

func (r *Room) acknowledge(id string) error {
	if _, ok := r.presence.get(id); !ok {
		return fail(ErrNotJoined, "%s", id)
	}
	if r.state != StateSettled {
		return nil
	}
	r.acked[id] = true
	r.maybeResetAfterAcks()
	return nil
}

func (r *Room) maybeResetAfterAcks() {
	if r.state != StateSettled {
		return
	}
	connected := 0
	for id, s := range r.presence.sessions {
		if s.status != Connected {
			continue
		}
		connected++
		if !r.acked[id] {
			return
		}
	}
	if connected > 0 {
		r.resetRun("settlement acknowledged")
	}
}

func (r *Room) forceStart() error {
	switch r.state {
	case StateCalling:
		return fail(ErrAlreadyStarted, "%s", r.id)
	case StateSettled:
		return fail(ErrRoomAlreadySettled, "%s", r.id)
	}
	if n := r.presence.connectedCount(); n < r.cfg.MinPlayers {
		return fail(ErrNotEnoughPlayers, "%d of %d", n, r.cfg.MinPlayers)
	}
	r.logger.Info("Force start", "state", r.state)
	r.startCalling()
	return nil
}

func (r *Room) evict(id, runID, reason string) {
	if runID != r.runID {
		return
	}
	s, ok := r.presence.remove(id)
	if !ok {
		delete(r.paid, id)
		return
	}
	s.leave.cancel()
	delete(r.paid, id)
	delete(r.acked, id)
	r.logger.Warn("Evicted player", "player", id, "reason", reason)

	r.publish(PlayerEvictedEvent{Meta: r.meta(), PlayerID: id, Reason: reason})
	r.publishRoster()
	r.afterPresenceDrop()
}

func (r *Room) maybeStartCountdown() {
	if r.state != StateIdle || r.presence.connectedCount() < r.cfg.MinPlayers {
		return
	}
	r.state = StateCountdown
	r.countdown = r.cfg.CountdownSeconds
	r.logger.Info("Countdown started", "seconds", r.countdown)
	r.publish(CountdownUpdateEvent{Meta: r.meta(), SecondsRemaining: r.countdown})
	r.startTicker(&r.countdownTimer, time.Second, "countdown", r.countdownTick)
}

func (r *Room) maybeStopCountdown() {
	n := r.presence.connectedCount()
	if r.state != StateCountdown || n >= r.cfg.MinPlayers {
		return
	}
	r.countdownTimer.cancel()
	r.state = StateIdle
	r.countdown = 0
	r.logger.Info("Countdown stopped", "players", n)
	r.publish(CountdownStoppedEvent{Meta: r.meta(), Players: n})
}

func (r *Room) countdownTick() {
	if r.state != StateCountdown {
		return
	}
	r.countdown--
	r.publish(CountdownUpdateEvent{Meta: r.meta(), SecondsRemaining: r.countdown})
	if r.countdown <= 0 {
		r.startCalling()
	}
}

func (r *Room) startCalling() {
	r.countdownTimer.cancel()
	r.countdown = 0

	for _, s := range r.presence.ordered() {
		if s.ticket != 0 {
			continue
		}
		n := r.presence.randomFree(r.rng)
		if _, _, err := r.presence.reserve(s.id, n, r.deal); err != nil {
			r.logger.Error("Failed to assign ticket", "player", s.id, "error", err)
		}
	}

	// Stakes paid by players who left before the start go back.
	for id := range r.paid {
		if _, seated := r.presence.get(id); !seated {
			r.submit(id, wallet.PurposeRefund, r.cfg.Stake)
			delete(r.paid, id)
		}
	}

	r.seq = bingo.NewSequencer(r.drawOrder(randutil.New(r.seed())))
	r.state = StateCalling
	r.logger.Info("Game started", "run", r.runID, "players", len(r.presence.sessions))
	r.publish(GameStartedEvent{Meta: r.meta(), Players: r.presence.roster()})
	r.publishRoster()
	r.startTicker(&r.drawTimer, r.cfg.CallInterval, "draw", r.drawTick)
}

func (r *Room) drawTick() {
	if r.state != StateCalling {
		return
	}
	call, err := r.seq.Next()
	switch {
	case err == nil:
		r.logger.Debug("Number called", "seq", call.Sequence, "number", call.Number)
		r.publish(NumberCalledEvent{Meta: r.meta(), Call: call})
	case errors.Is(err, bingo.ErrExhausted):
		r.settleNoWinner()
	case errors.Is(err, bingo.ErrStopped):
		r.drawTimer.cancel()
	default:
		r.logger.Error("Call sequence corrupted, resetting room", "run", r.runID, "error", err)
		r.abortRun("call sequence corrupted")
	}
}

func (r *Room) settleNoWinner() {
	r.drawTimer.cancel()
	r.state = StateSettled
	refunded := r.refundAll()
	r.logger.Info("Settled with no winner", "run", r.runID, "refunds", len(refunded))
	r.publish(GameSettledNoWinnerEvent{Meta: r.meta(), Refunded: refunded, Calls: r.seq.History()})
	r.armGrace()
}

// refundAll credits back every stake collected for the current run.
func (r *Room) refundAll() []string {
	ids := make([]string, 0, len(r.paid))
	for id := range r.paid {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		r.submit(id, wallet.PurposeRefund, r.cfg.Stake)
	}
	clear(r.paid)
	return ids
}

func (r *Room) armGrace() {
	r.acked = make(map[string]bool)
	if r.cfg.ResetGrace <= 0 {
		return
	}
	r.startTimer(&r.graceTimer, r.cfg.ResetGrace, "grace", func() {
		if r.state == StateSettled {
			r.resetRun("grace period elapsed")
		}
	})
}

// abortRun refunds the current run and starts a fresh one.
func (r *Room) abortRun(reason string) {
	r.refundAll()
	r.resetRun(reason)
}

// resetRun moves the room back to Idle under a new run ID. Disconnected
// players are dropped and everyone still seated is charged for the new run.
func (r *Room) resetRun(reason string) {
	prev := r.runID
	r.stopTimers()

	for _, s := range r.presence.ordered() {
		if s.status == Disconnected {
			s.leave.cancel()
			r.presence.remove(s.id)
		}
	}
	if !r.cfg.RetainTickets {
		r.presence.clearTickets()
	}

	r.state = StateIdle
	r.countdown = 0
	r.seq = nil
	r.winnerID = ""
	r.prize = 0
	r.countAtClaim = 0
	r.lines = nil
	r.acked = nil
	r.runID = r.newRunID()
	r.paid = make(map[string]bool)

	for _, s := range r.presence.ordered() {
		r.collectStake(s.id)
	}

	r.logger.Info("Room reset", "reason", reason, "previous", prev, "run", r.runID)
	r.publish(GameResetEvent{Meta: r.meta(), PreviousRunID: prev, Reason: reason})
	r.publishRoster()
	r.maybeStartCountdown()
}

func (r *Room) stopTimers() {
	r.countdownTimer.cancel()
	r.drawTimer.cancel()
	r.graceTimer.cancel()
}

func (r *Room) shutdown() {
	r.stopTimers()
	for _, s := range r.presence.sessions {
		s.leave.cancel()
	}
	r.cancel()
	r.closed = true
	r.logger.Debug("Room closed")
}

func (r *Room) collectStake(id string) {
	if r.paid[id] {
		return
	}
	r.paid[id] = true
	r.submit(id, wallet.PurposeStake, r.cfg.Stake)
}

func (r *Room) submit(playerID string, purpose wallet.Purpose, amount int64) {
	if r.payments == nil || amount <= 0 {
		return
	}
	r.payments.Submit(wallet.Op{
		Key: wallet.Key{
			RoomID:   r.id,
			RunID:    r.runID,
			PlayerID: playerID,
			Purpose:  purpose,
		},
		Amount: amount,
	})
}

func (r *Room) meta() Meta {
	return Meta{RoomID: r.id, RunID: r.runID, Stake: r.cfg.Stake, At: r.clock.Now()}
}

func (r *Room) publish(e Event) {
	for _, s := range r.subscribers {
		s.OnEvent(e)
	}
}

func (r *Room) publishRoster() {
	r.publish(PlayerListUpdatedEvent{Meta: r.meta(), Players: r.presence.roster()})
}
