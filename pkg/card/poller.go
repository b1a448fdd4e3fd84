package card

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gregLibert/kiosk-card/pkg/observe"
	"github.com/gregLibert/kiosk-card/pkg/presence"
)

// Readiness is what the kiosk knows about the inserted card.
type Readiness int

const (
	Waiting Readiness = iota
	Checking
	PinRequired
	CardLocked
	Invalid
)

func (r Readiness) String() string {
	switch r {
	case Checking:
		return "checking"
	case PinRequired:
		return "pin_required"
	case CardLocked:
		return "card_locked"
	case Invalid:
		return "invalid"
	default:
		return "waiting"
	}
}

// Selector is the part of Manager the Poller drives.
type Selector interface {
	SelectApplet(ctx context.Context) error
	IsLocked(ctx context.Context) bool
}

const (
	DefaultSelectAttempts = 10
	DefaultSelectBackoff  = time.Second
)

// Poller reacts to card insertion by selecting the applet with bounded
// retries. It runs at most one selection Task per presence cycle.
type Poller struct {
	sel      Selector
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
	state    *observe.Value[Readiness]

	mu   sync.Mutex
	task *Task
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithAttempts bounds the select attempts per insertion. n < 1 retries
// until the card is removed.
func WithAttempts(n int) PollerOption {
	return func(p *Poller) {
		p.attempts = n
	}
}

func WithBackoff(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d >= 0 {
			p.backoff = d
		}
	}
}

func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

func NewPoller(sel Selector, opts ...PollerOption) *Poller {
	p := &Poller{
		sel:      sel,
		attempts: DefaultSelectAttempts,
		backoff:  DefaultSelectBackoff,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		state:    observe.New(Waiting),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Readiness returns the current state.
func (p *Poller) Readiness() Readiness {
	return p.state.Get()
}

// Subscribe streams readiness changes, replaying the current one.
func (p *Poller) Subscribe(ctx context.Context) <-chan Readiness {
	return p.state.Subscribe(ctx)
}

// Run consumes presence updates until ctx is done or updates is closed.
func (p *Poller) Run(ctx context.Context, updates <-chan presence.State) error {
	defer p.CardRemoved()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st, ok := <-updates:
			if !ok {
				return nil
			}
			if st == presence.Present {
				p.CardPresent(ctx)
			} else {
				p.CardRemoved()
			}
		}
	}
}

// CardPresent cancels any running task and starts a new one.
func (p *Poller) CardPresent(ctx context.Context) *Task {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.task != nil {
		p.task.Cancel()
	}

	tctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	p.task = t

	go func() {
		defer close(t.done)
		defer cancel()
		p.poll(tctx, t)
	}()
	return t
}

// CardRemoved cancels the running task and returns to Waiting.
func (p *Poller) CardRemoved() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.task != nil {
		p.task.Cancel()
		p.task = nil
	}
	p.state.Set(Waiting)
}

func (p *Poller) poll(ctx context.Context, t *Task) {
	for attempt := 1; ; attempt++ {
		if !p.publish(t, Checking) {
			return
		}

		err := p.sel.SelectApplet(ctx)
		if ctx.Err() != nil {
			return
		}

		if err == nil {
			next := PinRequired
			if p.sel.IsLocked(ctx) {
				next = CardLocked
			}
			if ctx.Err() == nil {
				p.publish(t, next)
			}
			return
		}

		p.logger.Info("applet select failed", "attempt", attempt, "error", err)
		if p.attempts > 0 && attempt >= p.attempts {
			p.publish(t, Invalid)
			return
		}

		timer := time.NewTimer(p.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// publish sets r only while t is still the current task.
func (p *Poller) publish(t *Task, r Readiness) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.task != t {
		return false
	}
	p.state.Set(r)
	return true
}

// Task is one selection attempt sequence.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the task. An in-flight transmit is abandoned, not
// interrupted; no further transmit is started.
func (t *Task) Cancel() {
	t.cancel()
}

// Done is closed when the task goroutine has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
