package room

import (
	"time"

	"github.com/lox/stakebingo/internal/bingo"
)

// EventType names an outbound room event. The values double as websocket
// message types.
type EventType string

const (
	EventTypeCountdownUpdate     EventType = "countdown_update"
	EventTypeCountdownStopped    EventType = "countdown_stopped"
	EventTypeNumberCalled        EventType = "number_called"
	EventTypeGameStarted         EventType = "game_started"
	EventTypeGameWon             EventType = "game_won"
	EventTypeGameSettledNoWinner EventType = "game_settled_no_winner"
	EventTypeGameReset           EventType = "game_reset"
	EventTypeTicketConflict      EventType = "ticket_conflict"
	EventTypePlayerListUpdated   EventType = "player_list_updated"
	EventTypePlayerEvicted       EventType = "player_evicted"
)

func (et EventType) String() string {
	return string(et)
}

// Event is anything a room publishes.
type Event interface {
	EventType() EventType
	Timestamp() time.Time
	Source() Meta
}

// Addressed is implemented by events meant for a single player.
type Addressed interface {
	Recipient() string
}

// Subscriber receives room events on the room's goroutine. OnEvent must not
// block and must not call back into the room.
type Subscriber interface {
	OnEvent(Event)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(Event)

func (f SubscriberFunc) OnEvent(e Event) { f(e) }

// Meta identifies the room-run an event belongs to.
type Meta struct {
	RoomID string    `json:"roomId"`
	RunID  string    `json:"runId"`
	Stake  int64     `json:"stake"`
	At     time.Time `json:"-"`
}

func (m Meta) Timestamp() time.Time { return m.At }
func (m Meta) Source() Meta          { return m }

// CountdownUpdateEvent is published when the countdown starts and on every
// tick after that.
type CountdownUpdateEvent struct {
	Meta
	SecondsRemaining int `json:"secondsRemaining"`
}

func (e CountdownUpdateEvent) EventType() EventType { return EventTypeCountdownUpdate }

// CountdownStoppedEvent is published when the room falls back to Idle.
type CountdownStoppedEvent struct {
	Meta
	Players int `json:"players"`
}

func (e CountdownStoppedEvent) EventType() EventType { return EventTypeCountdownStopped }

// NumberCalledEvent is published after the call is in the history.
type NumberCalledEvent struct {
	Meta
	bingo.Call
}

func (e NumberCalledEvent) EventType() EventType { return EventTypeNumberCalled }

// GameStartedEvent is published on entering Calling.
type GameStartedEvent struct {
	Meta
	Players []PlayerInfo `json:"players"`
}

func (e GameStartedEvent) EventType() EventType { return EventTypeGameStarted }

// GameWonEvent is published once per run when a claim is accepted.
type GameWonEvent struct {
	Meta
	WinnerID           string       `json:"winnerId"`
	Username           string       `json:"username"`
	Prize              int64        `json:"prize"`
	PlayerCountAtClaim int          `json:"playerCountAtClaim"`
	Lines              []bingo.Line `json:"lines"`
	Card               bingo.Card   `json:"card"`
	Calls              []bingo.Call `json:"calls"`
}

func (e GameWonEvent) EventType() EventType { return EventTypeGameWon }

// GameSettledNoWinnerEvent is published when the pool runs out unclaimed.
type GameSettledNoWinnerEvent struct {
	Meta
	Refunded []string     `json:"refunded"`
	Calls    []bingo.Call `json:"calls"`
}

func (e GameSettledNoWinnerEvent) EventType() EventType { return EventTypeGameSettledNoWinner }

// GameResetEvent is published when a room returns to Idle for a new run.
// Meta carries the new run ID.
type GameResetEvent struct {
	Meta
	PreviousRunID string `json:"previousRunId"`
	Reason        string `json:"reason"`
}

func (e GameResetEvent) EventType() EventType { return EventTypeGameReset }

// TicketConflictEvent tells one player that the number they asked for is held
// by someone else.
type TicketConflictEvent struct {
	Meta
	PlayerID     string `json:"-"`
	TicketNumber int    `json:"ticketNumber"`
}

func (e TicketConflictEvent) EventType() EventType { return EventTypeTicketConflict }
func (e TicketConflictEvent) Recipient() string    { return e.PlayerID }

// PlayerListUpdatedEvent carries the full roster after any presence change.
type PlayerListUpdatedEvent struct {
	Meta
	Players []PlayerInfo `json:"players"`
}

func (e PlayerListUpdatedEvent) EventType() EventType { return EventTypePlayerListUpdated }

// PlayerEvictedEvent tells a player they were removed because their stake
// could not be collected.
type PlayerEvictedEvent struct {
	Meta
	PlayerID string `json:"-"`
	Reason   string `json:"reason"`
}

func (e PlayerEvictedEvent) EventType() EventType { return EventTypePlayerEvicted }
func (e PlayerEvictedEvent) Recipient() string    { return e.PlayerID }
