package server

// Room events (countdown_update, number_called, game_won, ...) are defined in
// internal/room/events.go and are forwarded as websocket messages using their
// event type.

// MessageType represents a WebSocket message type with type safety
type MessageType string

// WebSocket message type constants
const (
	// Client to server messages
	MessageTypeAuth          MessageType = "auth"
	MessageTypeJoin          MessageType = "join"
	MessageTypeLeave         MessageType = "leave"
	MessageTypeSelectTicket  MessageType = "select_ticket"
	MessageTypeClaimBingo    MessageType = "claim_bingo"
	MessageTypeAckSettlement MessageType = "ack_settlement"
	MessageTypeSnapshot      MessageType = "snapshot"

	// Server to client messages
	MessageTypeAuthResponse   MessageType = "auth_response"
	MessageTypeJoined         MessageType = "joined"
	MessageTypeLeft           MessageType = "left"
	MessageTypeTicketSelected MessageType = "ticket_selected"
	MessageTypeClaimResult    MessageType = "claim_result"
	MessageTypeAcknowledged   MessageType = "acknowledged"
	MessageTypeError          MessageType = "error"
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}

// Transport error codes. Room errors use their own codes (see room.CodeOf).
const (
	CodeInvalidMessage     = "INVALID_MESSAGE"
	CodeUnknownMessageType = "UNKNOWN_MESSAGE_TYPE"
	CodeNotAuthenticated   = "NOT_AUTHENTICATED"
	CodeAlreadyAuthed      = "ALREADY_AUTHENTICATED"
	CodeAuthFailed         = "AUTH_FAILED"
	CodeAuthUnavailable    = "AUTH_UNAVAILABLE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeRoomNotFound       = "ROOM_NOT_FOUND"
	CodeInternal           = "INTERNAL"
)
