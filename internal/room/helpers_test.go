package room

import (
	"context"
	"fmt"
	"io"
	rand "math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"

	"github.com/lox/stakebingo/internal/bingo"
	"github.com/lox/stakebingo/internal/wallet"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) calls() []bingo.Call {
	var out []bingo.Call
	for _, e := range r.ofType(EventTypeNumberCalled) {
		out = append(out, e.(NumberCalledEvent).Call)
	}
	return out
}

type payments struct {
	mu  sync.Mutex
	ops []wallet.Op
}

func (p *payments) Submit(op wallet.Op) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, op)
}

func (p *payments) of(purpose wallet.Purpose) []wallet.Op {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []wallet.Op
	for _, op := range p.ops {
		if op.Key.Purpose == purpose {
			out = append(out, op)
		}
	}
	return out
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	clock    *quartz.Mock
	room     *Room
	events   *recorder
	payments *payments
}

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

// sequentialRunIDs returns run-1, run-2, ...
func sequentialRunIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("run-%d", n.Add(1)) }
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	f := &fixture{
		t:        t,
		ctx:      ctx,
		clock:    quartz.NewMock(t),
		events:   &recorder{},
		payments: &payments{},
	}
	var seed atomic.Int64
	base := []Option{
		WithClock(f.clock),
		WithLogger(quietLogger()),
		WithSubscriber(f.events),
		WithPayments(f.payments),
		WithSeed(func() int64 { return seed.Add(1) }),
		WithRunIDs(sequentialRunIDs()),
	}
	f.room = New(cfg, append(base, opts...)...)
	t.Cleanup(func() { _ = f.room.Close(context.Background()) })
	return f
}

func (f *fixture) join(ids ...string) {
	f.t.Helper()
	for _, id := range ids {
		_, err := f.room.Join(f.ctx, id, id)
		require.NoError(f.t, err)
	}
}

// tick advances the clock one second at a time. After each step it waits
// for the timer callbacks and then for the room to drain them, so timers armed
// by a tick start from the right instant.
func (f *fixture) tick(n int) Snapshot {
	f.t.Helper()
	snap := f.snapshot("")
	for i := 0; i < n; i++ {
		f.clock.Advance(time.Second).MustWait(f.ctx)
		snap = f.snapshot("")
	}
	return snap
}

func (f *fixture) snapshot(playerID string) Snapshot {
	f.t.Helper()
	snap, err := f.room.Snapshot(f.ctx, playerID)
	require.NoError(f.t, err)
	return snap
}

// orderStartingWith puts first at the front of an otherwise ascending 1–100
// order.
func orderStartingWith(first ...int) func(*rand.Rand) []int {
	return func(*rand.Rand) []int {
		order := append([]int(nil), first...)
		for n := bingo.MinNumber; n <= bingo.MaxNumber; n++ {
			seen := false
			for _, f := range first {
				if f == n {
					seen = true
					break
				}
			}
			if !seen {
				order = append(order, n)
			}
		}
		return order
	}
}

// fixedCards deals the given cards for their center tickets and random cards
// for anything else.
func fixedCards(cards ...bingo.Card) func(int, *rand.Rand) (bingo.Card, error) {
	byTicket := make(map[int]bingo.Card, len(cards))
	for _, c := range cards {
		byTicket[c.Ticket()] = c
	}
	return func(ticket int, rng *rand.Rand) (bingo.Card, error) {
		if c, ok := byTicket[ticket]; ok {
			return c, nil
		}
		return bingo.Generate(ticket, rng)
	}
}

func testConfig() Config {
	return DefaultConfig(100)
}
