package room

import (
	"fmt"
	rand "math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/lox/stakebingo/internal/bingo"
)

// ConnectionStatus tracks whether a seated player currently has a live
// connection.
type ConnectionStatus int

const (
	Connected ConnectionStatus = iota
	Disconnected
)

func (c ConnectionStatus) String() string {
	if c == Disconnected {
		return "disconnected"
	}
	return "connected"
}

// PlayerInfo is the public view of a seated player.
type PlayerInfo struct {
	ID           string    `json:"playerId"`
	Username     string    `json:"username"`
	TicketNumber int       `json:"ticketNumber,omitempty"`
	Connected    bool      `json:"connected"`
	JoinedAt     time.Time `json:"joinedAt"`
}

type session struct {
	id       string
	username string
	ticket   int
	card     bingo.Card
	joinedAt time.Time
	status   ConnectionStatus
	leave    timer
}

func (s *session) info() PlayerInfo {
	return PlayerInfo{
		ID:           s.id,
		Username:     s.username,
		TicketNumber: s.ticket,
		Connected:    s.status == Connected,
		JoinedAt:     s.joinedAt,
	}
}

// presence is the roster and ticket book for one room. Only the room
// goroutine touches it.
type presence struct {
	sessions map[string]*session
	tickets  map[int]string
}

func newPresence() presence {
	return presence{
		sessions: make(map[string]*session),
		tickets:  make(map[int]string),
	}
}

func (p *presence) get(id string) (*session, bool) {
	s, ok := p.sessions[id]
	return s, ok
}

// join seats a new player or reconnects a disconnected one. admit, when
// non-nil, is returned for new players only; reconnects are always allowed.
func (p *presence) join(id, username string, now time.Time, admit error) (s *session, reconnected bool, err error) {
	if s, ok := p.sessions[id]; ok {
		if s.status == Connected {
			return nil, false, fail(ErrAlreadyJoined, "%s", id)
		}
		s.status = Connected
		if username != "" {
			s.username = username
		}
		return s, true, nil
	}
	if admit != nil {
		return nil, false, admit
	}
	if username == "" {
		username = id
	}
	s = &session{id: id, username: username, joinedAt: now, status: Connected}
	p.sessions[id] = s
	return s, false, nil
}

// remove drops a session and frees its ticket.
func (p *presence) remove(id string) (*session, bool) {
	s, ok := p.sessions[id]
	if !ok {
		return nil, false
	}
	p.release(s)
	delete(p.sessions, id)
	return s, true
}

func (p *presence) release(s *session) {
	if s.ticket != 0 && p.tickets[s.ticket] == s.id {
		delete(p.tickets, s.ticket)
	}
	s.ticket = 0
	s.card = bingo.Card{}
}

// reserve gives number n to player id and deals a card for it. A connected
// holder blocks the reservation; a disconnected holder loses the number and is
// returned as displaced.
func (p *presence) reserve(id string, n int, deal func(int) (bingo.Card, error)) (card bingo.Card, displaced string, err error) {
	s, ok := p.sessions[id]
	if !ok {
		return card, "", fail(ErrNotJoined, "%s", id)
	}
	if !bingo.ValidNumber(n) {
		return card, "", fail(ErrInvalidTicketRange, "got %d", n)
	}
	if s.ticket == n {
		return s.card, "", nil
	}

	if holderID, taken := p.tickets[n]; taken {
		holder := p.sessions[holderID]
		if holder != nil && holder.status == Connected {
			return card, "", fail(ErrTicketTaken, "%d", n)
		}
		if holder != nil {
			p.release(holder)
		}
		delete(p.tickets, n)
		displaced = holderID
	}

	card, err = deal(n)
	if err != nil {
		return card, displaced, fmt.Errorf("failed to deal card for ticket %d: %w", n, err)
	}
	p.release(s)
	s.ticket = n
	s.card = card
	p.tickets[n] = id
	return card, displaced, nil
}

// clearTickets frees every ticket.
func (p *presence) clearTickets() {
	for _, s := range p.sessions {
		s.ticket = 0
		s.card = bingo.Card{}
	}
	clear(p.tickets)
}

// randomFree returns a uniformly chosen unreserved number, or 0 when all are
// taken.
func (p *presence) randomFree(rng *rand.Rand) int {
	free := bingo.PoolSize - len(p.tickets)
	if free <= 0 {
		return 0
	}
	pick := rng.IntN(free)
	for n := bingo.MinNumber; n <= bingo.MaxNumber; n++ {
		if _, taken := p.tickets[n]; taken {
			continue
		}
		if pick == 0 {
			return n
		}
		pick--
	}
	return 0
}

func (p *presence) connectedCount() int {
	n := 0
	for _, s := range p.sessions {
		if s.status == Connected {
			n++
		}
	}
	return n
}

// ordered returns sessions by join time, then ID.
func (p *presence) ordered() []*session {
	out := make([]*session, 0, len(p.sessions))
	for _, s := range p.sessions {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *session) int {
		if c := a.joinedAt.Compare(b.joinedAt); c != 0 {
			return c
		}
		return strings.Compare(a.id, b.id)
	})
	return out
}

func (p *presence) roster() []PlayerInfo {
	sessions := p.ordered()
	out := make([]PlayerInfo, len(sessions))
	for i, s := range sessions {
		out[i] = s.info()
	}
	return out
}
