package room

import (
	"github.com/lox/stakebingo/internal/bingo"
)

// Snapshot is a point-in-time copy of a room, used to resync a client after
// a reconnect.
type Snapshot struct {
	RoomID             string       `json:"roomId"`
	RunID              string       `json:"runId"`
	Stake              int64        `json:"stake"`
	State              State        `json:"state"`
	CountdownRemaining *int         `json:"countdownRemaining,omitempty"`
	CallHistory        []bingo.Call `json:"callHistory"`
	WinnerID           *string      `json:"winnerId,omitempty"`
	Prize              int64        `json:"prize"`
	PlayerCountAtClaim int          `json:"playerCountAtClaim,omitempty"`
	Players            []PlayerInfo `json:"players"`
	TicketNumber       int          `json:"ticketNumber,omitempty"`
	Card               *bingo.Card  `json:"card,omitempty"`
}

// Summary is the lobby view of a room.
type Summary struct {
	RoomID    string `json:"roomId"`
	RunID     string `json:"runId"`
	Stake     int64  `json:"stake"`
	State     State  `json:"state"`
	Players   int    `json:"players"`
	Connected int    `json:"connected"`
	Calls     int    `json:"calls"`
}

// Summary condenses a snapshot.
func (s Snapshot) Summary() Summary {
	connected := 0
	for _, p := range s.Players {
		if p.Connected {
			connected++
		}
	}
	return Summary{
		RoomID:    s.RoomID,
		RunID:     s.RunID,
		Stake:     s.Stake,
		State:     s.State,
		Players:   len(s.Players),
		Connected: connected,
		Calls:     len(s.CallHistory),
	}
}

// Called returns the set of numbers in the snapshot's history, which is what
// a client needs to mark its card after a resync.
func (s Snapshot) Called() bingo.CallSet {
	return bingo.CallSetOf(s.CallHistory, -1)
}

func (r *Room) snapshot(playerID string) Snapshot {
	snap := Snapshot{
		RoomID:             r.id,
		RunID:              r.runID,
		Stake:              r.cfg.Stake,
		State:              r.state,
		CallHistory:        []bingo.Call{},
		Prize:              r.prize,
		PlayerCountAtClaim: r.countAtClaim,
		Players:            r.presence.roster(),
	}
	if r.seq != nil {
		snap.CallHistory = r.seq.History()
	}
	if r.state == StateCountdown {
		remaining := r.countdown
		snap.CountdownRemaining = &remaining
	}
	if r.winnerID != "" {
		winner := r.winnerID
		snap.WinnerID = &winner
	}
	if s, ok := r.presence.get(playerID); ok && s.ticket != 0 {
		card := s.card
		snap.TicketNumber = s.ticket
		snap.Card = &card
	}
	return snap
}
