package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/lox/stakebingo/internal/room"
	"github.com/lox/stakebingo/internal/wallet"
)

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func waitForCondition(t *testing.T, condition func() bool, timeout time.Duration, errMsg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error(errMsg)
}

// stack is a fully wired server on a mock clock. Room timers only fire when
// the test advances the clock.
type stack struct {
	clock    *quartz.Mock
	ledger   *wallet.Memory
	registry *room.Registry
	service  *GameService
	server   *Server
	http     *httptest.Server
}

const testStake = int64(10)

func newStack(t *testing.T, opts ...Option) *stack {
	t.Helper()

	logger := quietLogger()
	clock := quartz.NewMock(t)
	ledger := wallet.NewMemory()
	dispatcher := wallet.NewDispatcher(ledger, wallet.DispatcherConfig{Clock: clock, Logger: logger})

	srv := NewServer(logger, append([]Option{WithAdminSecret("admin")}, opts...)...)
	registry := room.NewRegistry(room.RegistryConfig{
		Stakes: []int64{testStake, 20},
		Room:   room.Config{MinPlayers: 2, CountdownSeconds: 5},
		Clock:  clock,
		Logger: logger,
	}, room.WithPayments(dispatcher), room.WithSubscriber(srv))
	dispatcher.SetFailureHandler(registry.OnPaymentFailure)

	service := NewGameService(GameServiceConfig{
		Registry:        registry,
		Ledger:          ledger,
		StartingBalance: 1000,
		Logger:          logger,
	})
	srv.SetGameService(service)

	ctx, cancel := context.WithCancel(context.Background())
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		_ = dispatcher.Run(ctx)
	}()

	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Stop()
		hs.Close()
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer closeCancel()
		_ = registry.Close(closeCtx)
		cancel()
		<-dispatched
	})

	return &stack{
		clock:    clock,
		ledger:   ledger,
		registry: registry,
		service:  service,
		server:   srv,
		http:     hs,
	}
}

func (s *stack) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(s.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *stack) post(t *testing.T, path, secret string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, s.http.URL+path, nil)
	require.NoError(t, err)
	if secret != "" {
		req.Header.Set("X-Admin-Secret", secret)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func (s *stack) spectate(t *testing.T) room.Snapshot {
	t.Helper()
	var snap room.Snapshot
	require.Equal(t, http.StatusOK, s.get(t, "/rooms/10/snapshot", &snap))
	return snap
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
	seq  int
}

func (s *stack) dial(t *testing.T) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(typ MessageType, data any) string {
	c.t.Helper()
	c.seq++
	msg, err := NewMessage(typ, data)
	require.NoError(c.t, err)
	msg.RequestID = fmt.Sprintf("%s-%d", typ, c.seq)
	require.NoError(c.t, c.conn.WriteJSON(msg))
	return msg.RequestID
}

func (c *wsClient) next() Message {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(c.t, c.conn.ReadJSON(&msg))
	return msg
}

// waitFor reads until a message of typ arrives, discarding others.
func (c *wsClient) waitFor(typ MessageType) Message {
	c.t.Helper()
	for {
		msg := c.next()
		if msg.Type == typ {
			return msg
		}
	}
}

func decodeData[T any](t *testing.T, msg Message) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(msg.Data, &v))
	return v
}

func (c *wsClient) auth(name string) AuthResponseData {
	c.t.Helper()
	c.send(MessageTypeAuth, AuthData{PlayerName: name})
	return decodeData[AuthResponseData](c.t, c.waitFor(MessageTypeAuthResponse))
}

func (c *wsClient) join(stake int64) room.Snapshot {
	c.t.Helper()
	c.send(MessageTypeJoin, JoinData{Stake: stake})
	return decodeData[JoinedData](c.t, c.waitFor(MessageTypeJoined)).Snapshot
}

func playerByID(players []room.PlayerInfo, id string) (room.PlayerInfo, bool) {
	for _, p := range players {
		if p.ID == id {
			return p, true
		}
	}
	return room.PlayerInfo{}, false
}
