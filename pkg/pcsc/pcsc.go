// Package pcsc binds the reader abstractions to the platform PC/SC stack
// through github.com/ebfe/scard.
package pcsc

import (
	"context"
	"errors"
	"sync"

	"github.com/ebfe/scard"
)

var errNotConnected = errors.New("pcsc: no card session")

// readerContext is the subset of *scard.Context in use. It is swapped for a
// fake in tests.
type readerContext interface {
	ListReaders() ([]string, error)
	Connect(reader string) (cardHandle, error)
	GetStatusChange(rs []scard.ReaderState) error
	Release() error
}

type cardHandle interface {
	Transmit(cmd []byte) ([]byte, error)
	Disconnect() error
}

type scardContext struct {
	*scard.Context
}

// Connect forces T=0 or T=1; ProtocolAny is refused by some drivers with
// "Parameter Incorrect".
func (c scardContext) Connect(reader string) (cardHandle, error) {
	card, err := c.Context.Connect(reader, scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		return nil, err
	}
	return scardCard{card}, nil
}

// GetStatusChange polls without blocking.
func (c scardContext) GetStatusChange(rs []scard.ReaderState) error {
	return c.Context.GetStatusChange(rs, 0)
}

type scardCard struct {
	*scard.Card
}

func (c scardCard) Disconnect() error {
	return c.Card.Disconnect(scard.LeaveCard)
}

func establish() (readerContext, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, err
	}
	return scardContext{ctx}, nil
}

// listReaders reports "no readers" as an empty list.
func listReaders(rc readerContext) ([]string, error) {
	readers, err := rc.ListReaders()
	if errors.Is(err, scard.ErrNoReadersAvailable) {
		return nil, nil
	}
	return readers, err
}

// Transport is an iso7816.Transport over one PC/SC context.
type Transport struct {
	mu   sync.Mutex
	rc   readerContext
	card cardHandle
}

// Open establishes a PC/SC context.
func Open() (*Transport, error) {
	rc, err := establish()
	if err != nil {
		return nil, err
	}
	return &Transport{rc: rc}, nil
}

func (t *Transport) ListReaders() ([]string, error) {
	return listReaders(t.rc)
}

func (t *Transport) Connect(reader string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	card, err := t.rc.Connect(reader)
	if err != nil {
		return err
	}
	t.card = card
	return nil
}

func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.card != nil
}

func (t *Transport) Transmit(cmd []byte) ([]byte, error) {
	t.mu.Lock()
	card := t.card
	t.mu.Unlock()

	if card == nil {
		return nil, errNotConnected
	}
	return card.Transmit(cmd)
}

// Disconnect leaves the card powered. It is a no-op without a session.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.card == nil {
		return nil
	}
	err := t.card.Disconnect()
	t.card = nil
	return err
}

// Close disconnects and releases the context.
func (t *Transport) Close() error {
	return errors.Join(t.Disconnect(), t.rc.Release())
}

// Probe reports card presence on the first reader. It owns its own
// context so that polling does not contend with the card session.
type Probe struct {
	rc readerContext
}

// OpenProbe establishes a dedicated PC/SC context.
func OpenProbe() (*Probe, error) {
	rc, err := establish()
	if err != nil {
		return nil, err
	}
	return &Probe{rc: rc}, nil
}

// CardPresent implements presence.Probe.
func (p *Probe) CardPresent(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	readers, err := listReaders(p.rc)
	if err != nil || len(readers) == 0 {
		return false, err
	}

	rs := []scard.ReaderState{{Reader: readers[0], CurrentState: scard.StateUnaware}}
	if err := p.rc.GetStatusChange(rs); err != nil && !errors.Is(err, scard.ErrTimeout) {
		return false, err
	}
	return rs[0].EventState&scard.StatePresent != 0, nil
}

func (p *Probe) Close() error {
	return p.rc.Release()
}
