// Package card drives the member-facing operations of the membership
// applet: selection, PIN handling, and the profile read and write.
//
// Every exported operation holds the reader channel for its whole exchange
// sequence and converts transport failures into applet error values.
// Operations that touch the PIN return an applet.Outcome rather than an
// error.
package card

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gregLibert/kiosk-card/pkg/applet"
	"github.com/gregLibert/kiosk-card/pkg/iso7816"
)

// Manager runs member operations over a Channel.
type Manager struct {
	ch     *iso7816.Channel
	aid    []byte
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithAID overrides the applet AID.
func WithAID(aid []byte) Option {
	return func(m *Manager) {
		if len(aid) > 0 {
			m.aid = bytes.Clone(aid)
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

// NewManager creates a Manager on ch.
func NewManager(ch *iso7816.Channel, opts ...Option) *Manager {
	m := &Manager{
		ch:     ch,
		aid:    applet.AID,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SelectApplet connects to the first reader unless already connected and
// selects the applet. Any failure leaves the card disconnected.
func (m *Manager) SelectApplet(ctx context.Context) error {
	err := m.ch.Do(ctx, m.selectApplet)
	if err != nil {
		m.logger.Debug("applet not selected", "error", err)
	}
	return err
}

// VerifyPin presents pin to the card.
func (m *Manager) VerifyPin(ctx context.Context, pin string) applet.Outcome {
	if err := applet.ValidatePIN(pin); err != nil {
		return applet.Failure(err)
	}
	return m.outcome(ctx, "verify pin", func(s *iso7816.Session) applet.Outcome {
		return m.verify(s, pin)
	})
}

// IsLocked asks the card whether its PIN is blocked. Anything but a clean
// answer reads as locked.
func (m *Manager) IsLocked(ctx context.Context) bool {
	var sw int
	err := m.ch.Do(ctx, func(s *iso7816.Session) error {
		var err error
		sw, _, err = exchange(s, "check lock", applet.InsCheckLock, 0, 0, nil, 0)
		return err
	})
	switch {
	case err != nil:
		m.logger.Warn("lock check failed", "error", err)
		return true
	case sw == applet.SWSuccess:
		return false
	case sw == applet.SWLocked:
		return true
	default:
		m.logger.Warn("lock check answered unexpected status", "sw", fmt.Sprintf("%04X", sw))
		return true
	}
}

// ChangePin replaces the PIN. The new PIN is sent only after the card has
// accepted oldPin; StatusWrongPin and StatusLocked refer to oldPin. Any
// other answer to the change itself is a failed Outcome.
func (m *Manager) ChangePin(ctx context.Context, oldPin, newPin string) applet.Outcome {
	if err := applet.ValidatePIN(oldPin); err != nil {
		return applet.Failure(err)
	}
	if err := applet.ValidatePIN(newPin); err != nil {
		return applet.Failure(err)
	}
	return m.outcome(ctx, "change pin", func(s *iso7816.Session) applet.Outcome {
		if out := m.verify(s, oldPin); !out.OK() {
			return out
		}
		sw, _, err := exchange(s, "change pin", applet.InsChangePin, 0, 0, []byte(newPin), 0)
		if err != nil {
			return applet.Failure(err)
		}
		if sw != applet.SWSuccess {
			return applet.Failure(&applet.ProtocolError{Op: "change pin", SW: sw})
		}
		return applet.Succeeded()
	})
}

// UnblockPin reconnects, reselects the applet and asks it to reset the PIN
// to applet.DefaultPIN. The outcome is either success or failure.
func (m *Manager) UnblockPin(ctx context.Context) applet.Outcome {
	return m.outcome(ctx, "unblock pin", func(s *iso7816.Session) applet.Outcome {
		if s.IsConnected() {
			m.release(s)
		}
		if err := m.selectApplet(s); err != nil {
			return applet.Failure(err)
		}

		sw, _, err := exchange(s, "unblock pin", applet.InsUnblockPin, 0, 0, nil, iso7816.MaxShortLe)
		if err != nil {
			m.release(s)
			return applet.Failure(err)
		}
		if sw != applet.SWSuccess {
			m.release(s)
			return applet.Failure(&applet.ProtocolError{Op: "unblock pin", SW: sw})
		}
		m.logger.Info("card unblocked, PIN reset to default")
		return applet.Succeeded()
	})
}

// LoadProfile reads the text record and then the avatar image.
//
// A text record that cannot be read or decoded fails the whole load with a
// zero Profile. An image transfer that stops on an unexpected status keeps
// the text fields and reports the cause in Profile.AvatarErr.
func (m *Manager) LoadProfile(ctx context.Context) (Profile, error) {
	var p Profile
	err := m.ch.Do(ctx, func(s *iso7816.Session) error {
		var err error
		p, err = m.loadProfile(s)
		return err
	})
	if err != nil {
		return Profile{}, err
	}
	return p, nil
}

// SaveProfile verifies pin, writes the text record, then uploads the avatar
// in chunks.
//
// A chunk failure after the text record was stored yields a failed Outcome
// whose Err is an *applet.PartialTransferError. Nothing is rolled back: the
// card keeps the new text and a truncated or stale image.
func (m *Manager) SaveProfile(ctx context.Context, p Profile, pin string) applet.Outcome {
	if err := applet.ValidatePIN(pin); err != nil {
		return applet.Failure(err)
	}
	rec, err := p.Record()
	if err != nil {
		return applet.Failure(err)
	}
	if len(p.Avatar) > applet.MaxImageSize {
		return applet.Failure(fmt.Errorf("avatar of %d bytes exceeds %d", len(p.Avatar), applet.MaxImageSize))
	}

	return m.outcome(ctx, "save profile", func(s *iso7816.Session) applet.Outcome {
		if out := m.verify(s, pin); !out.OK() {
			return out
		}

		sw, _, err := exchange(s, "write profile", applet.InsSetInfo, 0, 0, rec, 0)
		if err != nil {
			return applet.Failure(err)
		}
		if sw != applet.SWSuccess {
			return applet.Failure(&applet.ProtocolError{Op: "write profile", SW: sw})
		}

		if err := m.uploadImage(s, p.Avatar); err != nil {
			m.logger.Warn("profile saved with incomplete avatar", "error", err)
			return applet.Failure(err)
		}
		return applet.Succeeded()
	})
}

// Sign asks the applet to sign data with its private key.
func (m *Manager) Sign(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) > iso7816.MaxShortLc {
		return nil, fmt.Errorf("sign: %w (%d)", applet.ErrDataTooLong, len(data))
	}

	var sig []byte
	err := m.ch.Do(ctx, func(s *iso7816.Session) error {
		sw, payload, err := exchange(s, "sign", applet.InsSignRSA, 0, 0, data, 0)
		if err != nil {
			return err
		}
		if sw != applet.SWSuccess {
			return &applet.ProtocolError{Op: "sign", SW: sw}
		}
		sig = payload
		return nil
	})
	return sig, err
}

func (m *Manager) selectApplet(s *iso7816.Session) error {
	reader, err := s.ConnectFirst()
	if err != nil {
		m.release(s)
		return wrap("select applet", err)
	}

	trace, err := s.Send(iso7816.SelectByAID(applet.CLA, m.aid))
	if err != nil {
		m.release(s)
		return wrap("select applet", err)
	}
	if m.logger.Enabled(s.Context(), slog.LevelDebug) {
		m.logger.Debug("applet select", "reader", reader, "report", iso7816.DescribeSelect(trace))
	}

	if sw := int(trace.Status()); sw != applet.SWSuccess {
		m.release(s)
		return &applet.ProtocolError{Op: "select applet", SW: sw}
	}
	return nil
}

func (m *Manager) verify(s *iso7816.Session, pin string) applet.Outcome {
	sw, _, err := exchange(s, "verify pin", applet.InsVerifyPin, 0, 0, []byte(pin), 0)
	if err != nil {
		return applet.Failure(err)
	}
	out := applet.ClassifyPinStatus(sw)
	if !out.OK() {
		m.logger.Info("PIN not accepted", "outcome", out.String())
	}
	return out
}

func (m *Manager) loadProfile(s *iso7816.Session) (Profile, error) {
	sw, raw, err := exchange(s, "read profile", applet.InsGetInfo, 0, 0, nil, iso7816.MaxShortLe)
	if err != nil {
		return Profile{}, err
	}
	if sw != applet.SWSuccess {
		return Profile{}, &applet.ProtocolError{Op: "read profile", SW: sw}
	}

	p, err := profileFromRecord(raw)
	if err != nil {
		return Profile{}, err
	}

	img, err := m.readImage(s)
	if ctxErr := s.Context().Err(); ctxErr != nil {
		return Profile{}, ctxErr
	}
	p.Avatar = applet.StripPadding(img)
	p.AvatarErr = err
	if err != nil {
		m.logger.Warn("avatar read incomplete", "bytes", len(img), "error", err)
	}
	return p, nil
}

// readImage accumulates chunks until a short chunk or 6A83 ends the image.
func (m *Manager) readImage(s *iso7816.Session) ([]byte, error) {
	var buf bytes.Buffer
	cur := applet.NewCursor()

	for range applet.MaxChunkReads {
		if !cur.InRange() {
			return buf.Bytes(), fmt.Errorf("read image: card sent more than %d bytes", applet.MaxImageSize)
		}

		p1, p2 := cur.Params()
		sw, chunk, err := exchange(s, "read image", applet.InsGetImageChunk, p1, p2, nil, iso7816.MaxShortLe)
		if err != nil {
			return buf.Bytes(), err
		}

		switch sw {
		case applet.SWSuccess:
			buf.Write(chunk)
			cur.Advance(len(chunk))
			if len(chunk) < cur.ChunkSize {
				return buf.Bytes(), nil
			}
		case applet.SWImageEOF:
			return buf.Bytes(), nil
		default:
			return buf.Bytes(), &applet.ProtocolError{Op: "read image", SW: sw}
		}
	}
	return buf.Bytes(), fmt.Errorf("read image: no end after %d chunks", applet.MaxChunkReads)
}

func (m *Manager) uploadImage(s *iso7816.Session, img []byte) error {
	cur := applet.NewCursor()
	for w := cur.Window(img); w != nil; w = cur.Window(img) {
		p1, p2 := cur.Params()
		sw, _, err := exchange(s, "write image", applet.InsUploadImageChunk, p1, p2, w, 0)
		if err != nil {
			return &applet.PartialTransferError{Offset: cur.Offset, Written: cur.Offset, Err: err}
		}
		if sw != applet.SWSuccess {
			return &applet.PartialTransferError{Offset: cur.Offset, Written: cur.Offset, SW: sw}
		}
		cur.Advance(len(w))
	}
	return nil
}

// outcome runs fn under the channel and folds a channel error into a
// failed Outcome.
func (m *Manager) outcome(ctx context.Context, op string, fn func(*iso7816.Session) applet.Outcome) applet.Outcome {
	var out applet.Outcome
	err := m.ch.Do(ctx, func(s *iso7816.Session) error {
		out = fn(s)
		return nil
	})
	if err != nil {
		return applet.Failure(wrap(op, err))
	}
	return out
}

func (m *Manager) release(s *iso7816.Session) {
	if err := s.Disconnect(); err != nil {
		m.logger.Debug("disconnect failed", "error", err)
	}
}

// exchange sends one applet command and returns the final status word and
// the response data.
func exchange(s *iso7816.Session, op string, ins iso7816.InsCode, p1, p2 byte, data []byte, ne int) (int, []byte, error) {
	cmd, err := applet.Command(ins, p1, p2, data, ne)
	if err != nil {
		return 0, nil, err
	}
	trace, err := s.Send(cmd)
	if err != nil {
		return 0, nil, wrap(op, err)
	}
	resp := trace.Response()
	return int(resp.Status), resp.Data, nil
}

// wrap maps transport failures into the applet error taxonomy. Context
// errors stay recognisable.
func wrap(op string, err error) error {
	var pe *applet.ProtocolError
	switch {
	case errors.As(err, &pe), errors.Is(err, applet.ErrConnection):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, iso7816.ErrShortResponse):
		return &applet.ProtocolError{Op: op}
	default:
		return applet.ConnectionError(op, err)
	}
}
