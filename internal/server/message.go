package server

import (
	"encoding/json"
	"time"

	"github.com/lox/stakebingo/internal/bingo"
	"github.com/lox/stakebingo/internal/room"
)

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(messageType MessageType, data any) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// eventMessage wraps a room event, stamped with the room's clock.
func eventMessage(e room.Event) (*Message, error) {
	msg, err := NewMessage(MessageType(e.EventType()), e)
	if err != nil {
		return nil, err
	}
	msg.Timestamp = e.Timestamp()
	return msg, nil
}

// Client → Server Messages

type AuthData struct {
	PlayerName string `json:"playerName,omitempty"`
	Token      string `json:"token,omitempty"`
}

type JoinData struct {
	Stake    int64  `json:"stake"`
	Username string `json:"username,omitempty"`
}

// StakeData addresses a room by stake. Used by leave, claim_bingo,
// ack_settlement and snapshot.
type StakeData struct {
	Stake int64 `json:"stake"`
}

type SelectTicketData struct {
	Stake        int64 `json:"stake"`
	TicketNumber int   `json:"ticketNumber"`
}

// Server → Client Messages

type AuthResponseData struct {
	Success  bool   `json:"success"`
	PlayerID string `json:"playerId,omitempty"`
	Username string `json:"username,omitempty"`
	Balance  *int64 `json:"balance,omitempty"`
	Error    string `json:"error,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type JoinedData struct {
	Snapshot room.Snapshot `json:"snapshot"`
}

type LeftData struct {
	RoomID string `json:"roomId"`
	Stake  int64  `json:"stake"`
}

type TicketSelectedData struct {
	Stake        int64      `json:"stake"`
	TicketNumber int        `json:"ticketNumber"`
	Card         bingo.Card `json:"card"`
}

// ClaimResultData answers claim_bingo. A rejected claim carries the reason
// code; an accepted one carries the settlement.
type ClaimResultData struct {
	Accepted   bool             `json:"accepted"`
	Settlement *room.Settlement `json:"settlement,omitempty"`
	Code       string           `json:"code,omitempty"`
	Message    string           `json:"message,omitempty"`
}

type AcknowledgedData struct {
	Stake int64 `json:"stake"`
}
