package room

import (
	"context"
	"time"
)

// timer is a cancellable clock registration. Callbacks are delivered through
// the inbox and dropped if the generation has moved on, so a tick that raced
// with cancel never acts.
type timer struct {
	gen  uint64
	stop func()
}

func (t *timer) cancel() {
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}
	t.gen++
}

func (r *Room) startTicker(t *timer, every time.Duration, tag string, fn func()) {
	t.cancel()
	gen := t.gen
	ctx, cancel := context.WithCancel(r.ctx)
	r.clock.TickerFunc(ctx, every, func() error {
		r.post(func() {
			if t.gen == gen {
				fn()
			}
		})
		return nil
	}, "room", tag)
	t.stop = cancel
}

func (r *Room) startTimer(t *timer, after time.Duration, tag string, fn func()) {
	t.cancel()
	gen := t.gen
	tm := r.clock.AfterFunc(after, func() {
		r.post(func() {
			if t.gen == gen {
				t.stop = nil
				fn()
			}
		})
	}, "room", tag)
	t.stop = func() { tm.Stop() }
}
