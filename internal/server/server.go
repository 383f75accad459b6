package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/lox/stakebingo/internal/room"
)

const (
	defaultRequestTimeout = 5 * time.Second
	shutdownTimeout       = 5 * time.Second
)

// Server is the WebSocket and HTTP front end. It also subscribes to room
// events and fans them out to the players seated in each room.
type Server struct {
	addr           string
	upgrader       websocket.Upgrader
	logger         *log.Logger
	service        *GameService
	adminSecret    string
	rateLimit      rate.Limit
	rateBurst      int
	requestTimeout time.Duration

	mu          sync.RWMutex
	connections map[*Connection]bool
	players     map[string]*Connection     // player ID -> live connection
	members     map[string]map[string]bool // room ID -> seated player IDs
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address used by Run.
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithAdminSecret enables the admin endpoints behind X-Admin-Secret.
func WithAdminSecret(secret string) Option {
	return func(s *Server) { s.adminSecret = secret }
}

// WithRateLimit caps inbound messages per connection. A zero limit disables
// the cap.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		s.rateLimit = rate.Limit(perSecond)
		s.rateBurst = burst
	}
}

// WithRequestTimeout bounds how long one client request may wait on a room.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.requestTimeout = d }
}

// NewServer creates a WebSocket server
func NewServer(logger *log.Logger, opts ...Option) *Server {
	s := &Server{
		addr: ":8080",
		upgrader: websocket.Upgrader{
			// Clients are game frontends served from other origins.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:         logger.WithPrefix("server"),
		requestTimeout: defaultRequestTimeout,
		connections:    make(map[*Connection]bool),
		players:        make(map[string]*Connection),
		members:        make(map[string]map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetGameService sets the game service for the server. It must be called
// before the server accepts connections.
func (s *Server) SetGameService(gs *GameService) {
	s.service = gs
}

// Run serves HTTP until ctx is cancelled, then shuts down and closes every
// websocket.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.Stop()
		return err
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Stop closes all websocket connections.
func (s *Server) Stop() {
	s.mu.RLock()
	conns := make([]*Connection, 0, len(s.connections))
	for conn := range s.connections {
		conns = append(conns, conn)
	}
	s.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

// handleWebSocket handles WebSocket upgrade requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, s)
	s.mu.Lock()
	s.connections[client] = true
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Debug("Client connected", "total", total)

	client.Start()
}

// bind makes c the live connection for playerID. An older connection for the
// same player is closed and the player marked Disconnected first, so the new
// connection's join is a reconnect.
func (s *Server) bind(ctx context.Context, c *Connection, playerID string) {
	s.mu.Lock()
	old := s.players[playerID]
	s.players[playerID] = c
	s.mu.Unlock()

	if old != nil && old != c {
		s.logger.Info("Connection superseded", "player", playerID)
		_ = old.Close()
		s.disconnectPlayer(ctx, playerID)
	}
}

// unregister forgets c. If it was the player's live connection the player is
// marked Disconnected in every room they are seated in.
func (s *Server) unregister(c *Connection) {
	playerID := c.GetPlayer()

	s.mu.Lock()
	delete(s.connections, c)
	live := playerID != "" && s.players[playerID] == c
	if live {
		delete(s.players, playerID)
	}
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Debug("Client disconnected", "total", total, "player", playerID)

	if live {
		ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
		defer cancel()
		s.disconnectPlayer(ctx, playerID)
	}
}

func (s *Server) disconnectPlayer(ctx context.Context, playerID string) {
	if s.service == nil {
		return
	}
	for _, roomID := range s.roomsOf(playerID) {
		if err := s.service.Disconnect(ctx, roomID, playerID); err != nil {
			s.logger.Warn("Failed to mark player disconnected", "player", playerID, "room", roomID, "error", err)
		}
	}
}

func (s *Server) roomsOf(playerID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rooms []string
	for roomID, seated := range s.members {
		if seated[playerID] {
			rooms = append(rooms, roomID)
		}
	}
	return rooms
}

// OnEvent implements room.Subscriber. It runs on the room's goroutine, so
// every send is non-blocking.
func (s *Server) OnEvent(e room.Event) {
	roomID := e.Source().RoomID
	if ev, ok := e.(room.PlayerListUpdatedEvent); ok {
		s.setMembers(roomID, ev.Players)
	}

	msg, err := eventMessage(e)
	if err != nil {
		s.logger.Error("Failed to encode room event", "type", e.EventType(), "error", err)
		return
	}

	if a, ok := e.(room.Addressed); ok {
		if err := s.SendToPlayer(a.Recipient(), msg); err != nil {
			s.logger.Debug("Addressed event not delivered", "type", e.EventType(), "player", a.Recipient(), "error", err)
		}
		return
	}
	s.BroadcastToRoom(roomID, msg)
}

func (s *Server) setMembers(roomID string, players []room.PlayerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(players) == 0 {
		delete(s.members, roomID)
		return
	}
	seated := make(map[string]bool, len(players))
	for _, p := range players {
		seated[p.ID] = true
	}
	s.members[roomID] = seated
}

// BroadcastToRoom sends a message to every connected player seated in a room
func (s *Server) BroadcastToRoom(roomID string, msg *Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for playerID := range s.members[roomID] {
		conn, ok := s.players[playerID]
		if !ok {
			continue
		}
		if err := conn.SendMessage(msg); err == nil {
			count++
		}
	}

	s.logger.Debug("Broadcasted message to room", "room", roomID, "type", msg.Type, "recipients", count)
}

// SendToPlayer sends a message to a specific player
func (s *Server) SendToPlayer(playerID string, msg *Message) error {
	s.mu.RLock()
	conn, ok := s.players[playerID]
	s.mu.RUnlock()
	if !ok {
		return ErrPlayerNotConnected
	}
	return conn.SendMessage(msg)
}

// ErrPlayerNotConnected is returned when a player has no live connection.
var ErrPlayerNotConnected = errors.New("player not connected")

