package wallet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkers     = 4
	defaultBaseBackoff = 100 * time.Millisecond
	defaultMaxBackoff  = 30 * time.Second
)

// FailureFunc is called from a worker when an operation fails permanently.
type FailureFunc func(op Op, err error)

// DispatcherConfig tunes a Dispatcher. Zero values take defaults.
type DispatcherConfig struct {
	Workers     int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Clock       quartz.Clock
	Logger      *log.Logger
	OnFailure   FailureFunc
}

// Dispatcher applies ledger operations on a pool of workers. Submit never
// blocks, so rooms can call it from their writer goroutine. Transient errors
// are retried with exponential backoff until the operation lands, the
// dispatcher's context is cancelled, or the ledger reports a permanent error.
type Dispatcher struct {
	ledger    Ledger
	workers   int
	base      time.Duration
	max       time.Duration
	clock     quartz.Clock
	logger    *log.Logger
	onFailure FailureFunc

	mu      sync.Mutex
	queue   []Op
	pending int
	signal  chan struct{}
}

// NewDispatcher creates a dispatcher for ledger. Call Run to start workers.
func NewDispatcher(ledger Ledger, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = cfg.BaseBackoff
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Dispatcher{
		ledger:    ledger,
		workers:   cfg.Workers,
		base:      cfg.BaseBackoff,
		max:       cfg.MaxBackoff,
		clock:     cfg.Clock,
		logger:    cfg.Logger.WithPrefix("wallet"),
		onFailure: cfg.OnFailure,
		signal:    make(chan struct{}, 1),
	}
}

// SetFailureHandler replaces the permanent failure hook. It must be called
// before Run.
func (d *Dispatcher) SetFailureHandler(fn FailureFunc) {
	d.onFailure = fn
}

// Submit queues op for a worker.
func (d *Dispatcher) Submit(op Op) {
	d.mu.Lock()
	d.queue = append(d.queue, op)
	d.pending++
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// Pending returns the number of submitted operations that have not finished.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Run starts the workers and blocks until ctx is cancelled. Operations still
// queued at that point are dropped and logged.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			return d.work(ctx)
		})
	}
	err := g.Wait()

	d.mu.Lock()
	dropped := len(d.queue)
	d.mu.Unlock()
	if dropped > 0 {
		d.logger.Warn("Dispatcher stopped with queued operations", "dropped", dropped)
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (d *Dispatcher) work(ctx context.Context) error {
	for {
		op, ok := d.next()
		if !ok {
			select {
			case <-d.signal:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		// Wake another worker in case more work is queued.
		select {
		case d.signal <- struct{}{}:
		default:
		}

		d.apply(ctx, op)

		d.mu.Lock()
		d.pending--
		d.mu.Unlock()
	}
}

func (d *Dispatcher) next() (Op, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return Op{}, false
	}
	op := d.queue[0]
	d.queue[0] = Op{}
	d.queue = d.queue[1:]
	return op, true
}

func (d *Dispatcher) apply(ctx context.Context, op Op) {
	backoff := d.base
	for attempt := 1; ; attempt++ {
		err := Apply(ctx, d.ledger, op)
		if err == nil {
			d.logger.Debug("Applied ledger operation", "key", op.Key, "amount", op.Amount, "attempt", attempt)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if Permanent(err) {
			d.logger.Warn("Ledger operation failed permanently", "key", op.Key, "amount", op.Amount, "error", err)
			if d.onFailure != nil {
				d.onFailure(op, err)
			}
			return
		}

		d.logger.Warn("Ledger operation failed, retrying", "key", op.Key, "attempt", attempt, "backoff", backoff, "error", err)
		timer := d.clock.NewTimer(backoff, "wallet", "backoff")
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}

		backoff *= 2
		if backoff > d.max {
			backoff = d.max
		}
	}
}
