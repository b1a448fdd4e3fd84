// Package admin implements the card issuing station: it tracks reader
// connectivity from presence events and runs the privileged applet
// commands once the applet is selected.
package admin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gregLibert/kiosk-card/pkg/applet"
	"github.com/gregLibert/kiosk-card/pkg/card"
	"github.com/gregLibert/kiosk-card/pkg/iso7816"
	"github.com/gregLibert/kiosk-card/pkg/observe"
	"github.com/gregLibert/kiosk-card/pkg/presence"
)

// ReaderState is the connectivity of the issuing reader.
type ReaderState int

const (
	Disconnected ReaderState = iota
	Searching
	Connected
	Error
)

func (s ReaderState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Searching:
		return "searching"
	case Connected:
		return "connected"
	default:
		return "error"
	}
}

// MarshalText renders the state name, for JSON payloads.
func (s ReaderState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrNotConnected is returned by privileged operations unless the state is
// Connected. Nothing is sent to the card.
var ErrNotConnected = errors.New("admin: card not connected")

// DefaultMasterPIN is the PIN written by ResetPin unless configured.
const DefaultMasterPIN = "12345678"

// Hook is told about every state transition.
type Hook interface {
	ReaderStateChanged(from, to ReaderState)
}

// Manager owns the reader state. Only presence events and the outcome of
// applet selection change it.
type Manager struct {
	ch        *iso7816.Channel
	aid       []byte
	masterPIN string
	logger    *slog.Logger
	hook      Hook
	state     *observe.Value[ReaderState]
}

// Option configures a Manager.
type Option func(*Manager)

func WithAID(aid []byte) Option {
	return func(m *Manager) {
		if len(aid) > 0 {
			m.aid = bytes.Clone(aid)
		}
	}
}

func WithMasterPIN(pin string) Option {
	return func(m *Manager) {
		if pin != "" {
			m.masterPIN = pin
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithHook(h Hook) Option {
	return func(m *Manager) {
		m.hook = h
	}
}

// NewManager starts in Searching.
func NewManager(ch *iso7816.Channel, opts ...Option) *Manager {
	m := &Manager{
		ch:        ch,
		aid:       applet.AID,
		masterPIN: DefaultMasterPIN,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		state:     observe.New(Searching),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current reader state.
func (m *Manager) State() ReaderState {
	return m.state.Get()
}

// Subscribe streams state changes, replaying the current state.
func (m *Manager) Subscribe(ctx context.Context) <-chan ReaderState {
	return m.state.Subscribe(ctx)
}

// Run applies presence updates until ctx is done or updates is closed.
func (m *Manager) Run(ctx context.Context, updates <-chan presence.State) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st, ok := <-updates:
			if !ok {
				return nil
			}
			m.HandlePresence(ctx, st)
		}
	}
}

// HandlePresence runs one transition and returns the resulting state.
// Present connects and selects the applet; Absent releases the card and
// returns to Searching.
func (m *Manager) HandlePresence(ctx context.Context, st presence.State) ReaderState {
	next := Searching
	if st == presence.Present {
		next = m.connectAndValidate(ctx)
	} else {
		m.releaseCard(ctx)
	}
	m.setState(next)
	return next
}

// connectAndValidate leaves the card disconnected unless the applet
// answered 9000.
func (m *Manager) connectAndValidate(ctx context.Context) ReaderState {
	next := Error
	err := m.ch.Do(ctx, func(s *iso7816.Session) error {
		readers, err := s.ListReaders()
		if err != nil {
			m.release(s)
			return err
		}
		if len(readers) == 0 {
			m.release(s)
			next = Disconnected
			return nil
		}

		if !s.IsConnected() {
			if err := s.Connect(readers[0]); err != nil {
				return err
			}
		}

		trace, err := s.Send(iso7816.SelectByAID(applet.CLA, m.aid))
		if err != nil {
			m.release(s)
			return err
		}
		if m.logger.Enabled(ctx, slog.LevelDebug) {
			m.logger.Debug("applet select", "reader", readers[0], "report", iso7816.DescribeSelect(trace))
		}
		if !trace.IsSuccess() {
			m.release(s)
			m.logger.Warn("applet select refused", "sw", trace.Status().String())
			return nil
		}
		next = Connected
		return nil
	})
	if err != nil {
		m.logger.Warn("reader validation failed", "error", err)
		return Error
	}
	return next
}

func (m *Manager) releaseCard(ctx context.Context) {
	err := m.ch.Do(ctx, func(s *iso7816.Session) error {
		m.release(s)
		return nil
	})
	if err != nil {
		m.logger.Debug("release after removal skipped", "error", err)
	}
}

func (m *Manager) release(s *iso7816.Session) {
	if !s.IsConnected() {
		return
	}
	if err := s.Disconnect(); err != nil {
		m.logger.Debug("disconnect failed", "error", err)
	}
}

func (m *Manager) setState(next ReaderState) {
	prev := m.state.Get()
	if !m.state.Set(next) {
		return
	}
	m.logger.Info("reader state changed", "from", prev, "to", next)
	if m.hook != nil {
		m.hook.ReaderStateChanged(prev, next)
	}
}

// CardInit is the data written by InitializeCard.
type CardInit struct {
	ID       string
	Username string
	FullName string
	Level    card.Level
	PIN      string
}

// InitializeCard authenticates with applet.DefaultPIN and writes
// id|username|name|level|pin in a single command.
func (m *Manager) InitializeCard(ctx context.Context, in CardInit) error {
	if err := applet.ValidatePIN(in.PIN); err != nil {
		return err
	}
	if _, err := card.ParseLevel(string(in.Level)); err != nil {
		return err
	}
	rec, err := applet.EncodeRecord(in.ID, in.Username, in.FullName, string(in.Level), in.PIN)
	if err != nil {
		return err
	}
	if len(rec) > iso7816.MaxShortLc {
		return fmt.Errorf("init record: %w (%d)", applet.ErrDataTooLong, len(rec))
	}

	return m.guarded(ctx, "initialize card", func(s *iso7816.Session) error {
		sw, _, err := exchange(s, applet.InsVerifyPin, []byte(applet.DefaultPIN), 0)
		if err != nil {
			return err
		}
		if err := applet.ClassifyPinStatus(sw).AsError(); err != nil {
			return fmt.Errorf("admin authentication: %w", err)
		}

		sw, _, err = exchange(s, applet.InsSetInfo, rec, 0)
		if err != nil {
			return err
		}
		if sw != applet.SWSuccess {
			return &applet.ProtocolError{Op: "write card", SW: sw}
		}
		m.logger.Info("card initialized", "member", in.ID)
		return nil
	})
}

// ResetTry restores the wrong-PIN counter.
func (m *Manager) ResetTry(ctx context.Context) error {
	return m.guarded(ctx, "reset tries", func(s *iso7816.Session) error {
		sw, _, err := exchange(s, applet.InsResetTry, nil, 0)
		if err != nil {
			return err
		}
		if sw != applet.SWSuccess {
			return &applet.ProtocolError{Op: "reset tries", SW: sw}
		}
		return nil
	})
}

// ResetPin unblocks the card with the master PIN as payload.
func (m *Manager) ResetPin(ctx context.Context) error {
	return m.guarded(ctx, "reset pin", func(s *iso7816.Session) error {
		sw, _, err := exchange(s, applet.InsUnblockPin, []byte(m.masterPIN), 0)
		if err != nil {
			return err
		}
		if sw != applet.SWSuccess {
			return &applet.ProtocolError{Op: "reset pin", SW: sw}
		}
		return nil
	})
}

// PublicKeyModulus reads the card's RSA modulus. The status word is
// checked on the raw response before the payload is returned.
func (m *Manager) PublicKeyModulus(ctx context.Context) ([]byte, error) {
	var mod []byte
	err := m.guarded(ctx, "read public key", func(s *iso7816.Session) error {
		cmd, err := applet.Command(applet.InsGetPubKey, 0, 0, nil, applet.ModulusLength)
		if err != nil {
			return err
		}
		raw, err := cmd.Bytes()
		if err != nil {
			return err
		}
		resp, err := s.Transmit(raw)
		if err != nil {
			return err
		}

		sw := applet.StatusWord(resp)
		if sw != applet.SWSuccess {
			return &applet.ProtocolError{Op: "read public key", SW: sw}
		}
		mod = bytes.Clone(applet.Payload(resp))
		return nil
	})
	return mod, err
}

// GenerateMemberID derives a member id from the issuing time.
func GenerateMemberID(now time.Time) string {
	return fmt.Sprintf("C9-%d", now.Unix())
}

// guarded runs fn only in the Connected state and maps transport failures
// to applet errors.
func (m *Manager) guarded(ctx context.Context, op string, fn func(*iso7816.Session) error) error {
	if m.State() != Connected {
		return fmt.Errorf("%s: %w", op, ErrNotConnected)
	}
	err := m.ch.Do(ctx, fn)
	if err == nil {
		return nil
	}

	var pe *applet.ProtocolError
	var ws *applet.WrongSecretError
	switch {
	case errors.As(err, &pe), errors.As(err, &ws), errors.Is(err, applet.ErrLocked):
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		err = fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, iso7816.ErrShortResponse):
		err = &applet.ProtocolError{Op: op}
	default:
		err = applet.ConnectionError(op, err)
	}
	m.logger.Warn("admin operation failed", "op", op, "error", err)
	return err
}

func exchange(s *iso7816.Session, ins iso7816.InsCode, data []byte, ne int) (int, []byte, error) {
	cmd, err := applet.Command(ins, 0, 0, data, ne)
	if err != nil {
		return 0, nil, err
	}
	trace, err := s.Send(cmd)
	if err != nil {
		return 0, nil, err
	}
	resp := trace.Response()
	return int(resp.Status), resp.Data, nil
}
