package room

import (
	"errors"
	"fmt"
)

// Kind groups room errors by how a caller should react to them.
type Kind string

const (
	KindValidation Kind = "validation"
	KindState      Kind = "state"
	KindClaim      Kind = "claim"
	KindInternal   Kind = "internal"
)

// Validation errors.
var (
	ErrTicketTaken        = errors.New("ticket already taken")
	ErrInvalidTicketRange = errors.New("ticket must be between 1 and 100")
	ErrInvalidStake       = errors.New("stake not offered")
	ErrAlreadyJoined      = errors.New("player already joined")
	ErrNotJoined          = errors.New("player not in room")
)

// State errors.
var (
	ErrNotEnoughPlayers   = errors.New("not enough players")
	ErrAlreadyStarted     = errors.New("game already started")
	ErrRoomAlreadySettled = errors.New("room already settled")
	ErrNotCalling         = errors.New("numbers are not being called")
	ErrRoomClosed         = errors.New("room closed")
	ErrRoomFull           = errors.New("every ticket number is seated")
)

// Claim errors.
var (
	ErrNotAWin    = errors.New("card does not have bingo")
	ErrAlreadyWon = errors.New("game already won")
)

var codes = map[error]struct {
	kind Kind
	code string
}{
	ErrTicketTaken:        {KindValidation, "TICKET_TAKEN"},
	ErrInvalidTicketRange: {KindValidation, "INVALID_TICKET_RANGE"},
	ErrInvalidStake:       {KindValidation, "INVALID_STAKE"},
	ErrAlreadyJoined:      {KindValidation, "ALREADY_JOINED"},
	ErrNotJoined:          {KindValidation, "NOT_JOINED"},
	ErrNotEnoughPlayers:   {KindState, "NOT_ENOUGH_PLAYERS"},
	ErrAlreadyStarted:     {KindState, "ALREADY_STARTED"},
	ErrRoomAlreadySettled: {KindState, "ROOM_ALREADY_SETTLED"},
	ErrNotCalling:         {KindState, "NOT_CALLING"},
	ErrRoomClosed:         {KindState, "ROOM_CLOSED"},
	ErrRoomFull:           {KindState, "ROOM_FULL"},
	ErrNotAWin:            {KindClaim, "NOT_A_WIN"},
	ErrAlreadyWon:         {KindClaim, "ALREADY_WON"},
}

// Error carries a sentinel together with its kind and wire code.
type Error struct {
	Kind Kind
	Code string
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// fail wraps sentinel in an *Error, adding context when format is non-empty.
func fail(sentinel error, format string, args ...any) error {
	c, ok := codes[sentinel]
	if !ok {
		c.kind, c.code = KindInternal, "INTERNAL"
	}
	err := sentinel
	if format != "" {
		err = fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
	}
	return &Error{Kind: c.kind, Code: c.code, Err: err}
}

// CodeOf returns the wire code for err, or "INTERNAL" for anything that did
// not come from a room.
func CodeOf(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	for sentinel, c := range codes {
		if errors.Is(err, sentinel) {
			return c.code
		}
	}
	return "INTERNAL"
}

// KindOf returns the error's kind, or KindInternal.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindInternal
}
