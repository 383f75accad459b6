package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/lox/stakebingo/internal/auth"
	"github.com/lox/stakebingo/internal/room"
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	server    *Server
	limiter   *rate.Limiter
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu       sync.RWMutex
	playerID string
	username string
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, s *Server) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Connection{
		conn:   conn,
		send:   make(chan *Message, 256),
		server: s,
		logger: s.logger.WithPrefix("conn"),
		ctx:    ctx,
		cancel: cancel,
	}
	if s.rateLimit > 0 {
		c.limiter = rate.NewLimiter(s.rateLimit, s.rateBurst)
	}
	return c
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// SendMessage queues a message for the client without blocking. A client
// that cannot keep up is disconnected.
func (c *Connection) SendMessage(msg *Message) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		c.logger.Warn("Connection send buffer full, closing connection", "player", c.GetPlayer())
		_ = c.Close()
		return ErrConnectionClosed
	}
}

func (c *Connection) setIdentity(id *auth.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerID = id.PlayerID
	c.username = id.Username
}

// GetPlayer returns the authenticated player ID, or "" before auth.
func (c *Connection) GetPlayer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

func (c *Connection) identity() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID, c.username
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

var (
	ErrConnectionClosed = websocket.ErrCloseSent
)

// readPump handles incoming messages from the client. A closed socket marks
// the player Disconnected in their rooms; it never leaves them.
func (c *Connection) readPump() {
	defer func() {
		_ = c.Close()
		c.server.unregister(c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket error", "error", err, "player", c.GetPlayer())
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.sendError(&msg, CodeRateLimited, "Too many messages")
			continue
		}

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Debug("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type, "player", c.GetPlayer())

	if msg.Type == MessageTypeAuth {
		var data AuthData
		if !c.decode(msg, &data) {
			return
		}
		c.handleAuth(msg, data)
		return
	}

	playerID, username := c.identity()
	if playerID == "" {
		c.sendError(msg, CodeNotAuthenticated, "Must authenticate first")
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.server.requestTimeout)
	defer cancel()

	switch msg.Type {
	case MessageTypeJoin:
		var data JoinData
		if !c.decode(msg, &data) {
			return
		}
		if data.Username != "" {
			username = data.Username
		}
		snap, err := c.server.service.Join(ctx, data.Stake, playerID, username)
		if err != nil {
			c.sendFailure(msg, err)
			return
		}
		c.reply(msg, MessageTypeJoined, JoinedData{Snapshot: snap})

	case MessageTypeLeave:
		var data StakeData
		if !c.decode(msg, &data) {
			return
		}
		roomID, err := c.server.service.Leave(ctx, data.Stake, playerID)
		if err != nil {
			c.sendFailure(msg, err)
			return
		}
		c.reply(msg, MessageTypeLeft, LeftData{RoomID: roomID, Stake: data.Stake})

	case MessageTypeSelectTicket:
		var data SelectTicketData
		if !c.decode(msg, &data) {
			return
		}
		card, err := c.server.service.SelectTicket(ctx, data.Stake, playerID, data.TicketNumber)
		if err != nil {
			c.sendFailure(msg, err)
			return
		}
		c.reply(msg, MessageTypeTicketSelected, TicketSelectedData{
			Stake:        data.Stake,
			TicketNumber: data.TicketNumber,
			Card:         card,
		})

	case MessageTypeClaimBingo:
		var data StakeData
		if !c.decode(msg, &data) {
			return
		}
		settlement, err := c.server.service.ClaimBingo(ctx, data.Stake, playerID)
		switch {
		case err == nil:
			c.reply(msg, MessageTypeClaimResult, ClaimResultData{Accepted: true, Settlement: &settlement})
		case room.KindOf(err) == room.KindClaim:
			c.reply(msg, MessageTypeClaimResult, ClaimResultData{Code: room.CodeOf(err), Message: err.Error()})
		default:
			c.sendFailure(msg, err)
		}

	case MessageTypeAckSettlement:
		var data StakeData
		if !c.decode(msg, &data) {
			return
		}
		if err := c.server.service.Acknowledge(ctx, data.Stake, playerID); err != nil {
			c.sendFailure(msg, err)
			return
		}
		c.reply(msg, MessageTypeAcknowledged, AcknowledgedData{Stake: data.Stake})

	case MessageTypeSnapshot:
		var data StakeData
		if !c.decode(msg, &data) {
			return
		}
		snap, err := c.server.service.Snapshot(ctx, data.Stake, playerID)
		if err != nil {
			c.sendFailure(msg, err)
			return
		}
		c.reply(msg, MessageTypeSnapshot, snap)

	default:
		c.sendError(msg, CodeUnknownMessageType, "Unknown message type: "+msg.Type.String())
	}
}

func (c *Connection) handleAuth(msg *Message, data AuthData) {
	if c.GetPlayer() != "" {
		c.sendError(msg, CodeAlreadyAuthed, "Connection is already authenticated")
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.server.requestTimeout)
	defer cancel()

	id, err := c.server.service.Authenticate(ctx, data.Token, data.PlayerName)
	if err != nil {
		code := CodeAuthFailed
		if errors.Is(err, auth.ErrUnavailable) {
			code = CodeAuthUnavailable
		}
		c.logger.Info("Authentication failed", "error", err)
		c.reply(msg, MessageTypeAuthResponse, AuthResponseData{Success: false, Error: code})
		return
	}

	c.setIdentity(id)
	c.server.bind(ctx, c, id.PlayerID)
	c.logger.Info("Player authenticated", "player", id.PlayerID)

	resp := AuthResponseData{Success: true, PlayerID: id.PlayerID, Username: id.Username}
	if bal, ok := c.server.service.Balance(ctx, id.PlayerID); ok {
		resp.Balance = &bal
	}
	c.reply(msg, MessageTypeAuthResponse, resp)
}

func (c *Connection) decode(msg *Message, v any) bool {
	if len(msg.Data) == 0 {
		msg.Data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		c.sendError(msg, CodeInvalidMessage, "Failed to parse "+msg.Type.String()+" data")
		return false
	}
	return true
}

// reply sends a response correlated with the request.
func (c *Connection) reply(req *Message, messageType MessageType, data any) {
	resp, err := NewMessage(messageType, data)
	if err != nil {
		c.logger.Error("Failed to create message", "type", messageType, "error", err)
		return
	}
	resp.RequestID = req.RequestID
	_ = c.SendMessage(resp)
}

// sendFailure reports a service error using its wire code.
func (c *Connection) sendFailure(req *Message, err error) {
	code := errorCode(err)
	if code == CodeInternal {
		c.logger.Error("Request failed", "type", req.Type, "player", c.GetPlayer(), "error", err)
	}
	c.sendError(req, code, err.Error())
}

// sendError sends an error message to the client
func (c *Connection) sendError(req *Message, code, message string) {
	c.reply(req, MessageTypeError, ErrorData{Code: code, Message: message})
}

func errorCode(err error) string {
	if errors.Is(err, ErrRoomNotFound) {
		return CodeRoomNotFound
	}
	return room.CodeOf(err)
}
