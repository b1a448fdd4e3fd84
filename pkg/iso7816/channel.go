package iso7816

import (
	"context"
	"errors"
	"time"
)

// A reader exposes a single physical channel to the card. Channel makes
// that exclusivity structural:
//
//   - Do holds the channel for a whole protocol operation (select, verify,
//     then write), so two operations never interleave their APDUs.
//   - Every driver call takes the in-flight token and gives it back only
//     when the driver returns. A call abandoned on timeout or cancellation
//     keeps the token, and the next call waits for it.

var (
	// ErrTransmitTimeout is returned when a driver call outlives the
	// configured per-call timeout.
	ErrTransmitTimeout = errors.New("iso7816: transmit timed out")

	// ErrNoReader is returned when the transport lists no reader.
	ErrNoReader = errors.New("iso7816: no reader available")
)

// DefaultTransmitTimeout bounds each driver call.
const DefaultTransmitTimeout = 5 * time.Second

// Transport is the reader driver. Implementations are not required to be
// safe for concurrent use.
type Transport interface {
	ListReaders() ([]string, error)
	Connect(reader string) error
	IsConnected() bool
	Transmit(cmd []byte) ([]byte, error)
	Disconnect() error
}

// Observer is notified after every Transmit, including failed ones.
type Observer interface {
	ObserveTransmit(cmd, resp []byte, elapsed time.Duration, err error)
}

// Channel serializes access to a Transport.
type Channel struct {
	transport Transport
	lock      chan struct{}
	inflight  chan struct{}
	timeout   time.Duration
	observer  Observer
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithTransmitTimeout sets the per-call timeout. Zero disables it.
func WithTransmitTimeout(d time.Duration) ChannelOption {
	return func(c *Channel) {
		c.timeout = d
	}
}

// WithObserver registers a transmit observer.
func WithObserver(o Observer) ChannelOption {
	return func(c *Channel) {
		c.observer = o
	}
}

// NewChannel wraps t.
func NewChannel(t Transport, opts ...ChannelOption) *Channel {
	c := &Channel{
		transport: t,
		lock:      make(chan struct{}, 1),
		inflight:  make(chan struct{}, 1),
		timeout:   DefaultTransmitTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do runs fn with exclusive use of the channel. It waits for the channel
// until ctx is done. The Session must not be used after fn returns.
func (c *Channel) Do(ctx context.Context, fn func(*Session) error) error {
	select {
	case c.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-c.lock }()

	s := &Session{ch: c, ctx: ctx}
	defer func() { s.closed = true }()

	return fn(s)
}

// Session is the handle passed to Do callbacks. Each method checks the
// operation context before touching the driver.
type Session struct {
	ch     *Channel
	ctx    context.Context
	closed bool
}

var errSessionClosed = errors.New("iso7816: session used outside Do")

// Context returns the operation context.
func (s *Session) Context() context.Context {
	return s.ctx
}

// ListReaders enumerates readers.
func (s *Session) ListReaders() ([]string, error) {
	return drive(s, s.ch.transport.ListReaders)
}

// Connect opens a card session on reader.
func (s *Session) Connect(reader string) error {
	_, err := drive(s, func() (struct{}, error) {
		return struct{}{}, s.ch.transport.Connect(reader)
	})
	return err
}

// IsConnected reports whether the transport holds a card session.
func (s *Session) IsConnected() bool {
	return s.ch.transport.IsConnected()
}

// Disconnect releases the card session. It runs even when the operation
// context is already done so that a cancelled operation can clean up.
func (s *Session) Disconnect() error {
	if s.closed {
		return errSessionClosed
	}
	_, err := call(s.ch, context.WithoutCancel(s.ctx), func() (struct{}, error) {
		return struct{}{}, s.ch.transport.Disconnect()
	})
	return err
}

// ConnectFirst connects to the first enumerated reader unless a card
// session is already open. It returns the reader name.
func (s *Session) ConnectFirst() (string, error) {
	readers, err := s.ListReaders()
	if err != nil {
		return "", err
	}
	if len(readers) == 0 {
		return "", ErrNoReader
	}
	if s.IsConnected() {
		return readers[0], nil
	}
	return readers[0], s.Connect(readers[0])
}

// Transmit sends raw command bytes.
func (s *Session) Transmit(cmd []byte) ([]byte, error) {
	start := time.Now()

	resp, err := drive(s, func() ([]byte, error) {
		return s.ch.transport.Transmit(cmd)
	})

	if s.ch.observer != nil {
		s.ch.observer.ObserveTransmit(cmd, resp, time.Since(start), err)
	}
	return resp, err
}

// Send transmits cmd through a Client and returns its Trace.
func (s *Session) Send(cmd *CommandAPDU) (Trace, error) {
	return NewClient(s).Send(cmd)
}

func drive[T any](s *Session, fn func() (T, error)) (T, error) {
	var zero T
	if s.closed {
		return zero, errSessionClosed
	}
	if err := s.ctx.Err(); err != nil {
		return zero, err
	}
	return call(s.ch, s.ctx, fn)
}

type result[T any] struct {
	v   T
	err error
}

// call runs fn under the in-flight token, bounded by parent and the
// channel timeout. fn keeps the token until it returns.
func call[T any](c *Channel, parent context.Context, fn func() (T, error)) (T, error) {
	var zero T

	ctx := parent
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, c.timeout)
		defer cancel()
	}

	select {
	case c.inflight <- struct{}{}:
	case <-ctx.Done():
		return zero, abandonErr(parent)
	}

	done := make(chan result[T], 1)
	go func() {
		defer func() { <-c.inflight }()
		v, err := fn()
		done <- result[T]{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, abandonErr(parent)
	}
}

func abandonErr(parent context.Context) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return ErrTransmitTimeout
}
