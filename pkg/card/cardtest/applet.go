// Package cardtest provides an in-memory membership applet behind a fake
// reader, for tests of code that drives an iso7816.Transport.
package cardtest

import (
	"bytes"
	"errors"
	"strings"
	"sync"

	"github.com/gregLibert/kiosk-card/pkg/applet"
	"github.com/gregLibert/kiosk-card/pkg/iso7816"
)

// DefaultReader is the name listed by a new Applet.
const DefaultReader = "Sim Reader 0"

// MaxTries is the PIN try counter after a reset.
const MaxTries = 3

// Status words the simulator answers with beyond the applet contract.
const (
	swNotSelected  = 0x6985
	swFileNotFound = 0x6A82
	swWrongLength  = 0x6700
	swNoSpace      = 0x6A84
	swWrongOffset  = 0x6B00
	swInsInvalid   = 0x6D00
)

var errNotConnected = errors.New("cardtest: card not connected")

// Reply is a scripted answer to one transmit.
type Reply struct {
	Resp []byte
	Err  error
}

// SW builds a reply carrying only a status word.
func SW(sw int) Reply {
	return Reply{Resp: []byte{byte(sw >> 8), byte(sw)}}
}

// Fail builds a reply in which the driver call itself fails.
func Fail(err error) Reply {
	return Reply{Err: err}
}

// Applet emulates the card and the reader it sits in. It implements
// iso7816.Transport. The zero value is not usable; call New.
type Applet struct {
	mu sync.Mutex

	Readers    []string
	ConnectErr error

	PIN     string
	Tries   int
	Info    []byte
	Image   []byte
	Modulus []byte

	// SignFunc computes signatures. The default prefixes "sig:".
	SignFunc func(data []byte) []byte

	// Gate, when non-nil, is received from before every Transmit.
	Gate chan struct{}

	connected bool
	selected  bool
	verified  bool
	attempts  int

	scripts  map[iso7816.InsCode][]Reply
	counts   map[iso7816.InsCode]int
	commands [][]byte
}

// New creates a card with the default PIN, a full try counter, and a
// 128-byte modulus.
func New() *Applet {
	mod := make([]byte, applet.ModulusLength)
	mod[0] = 0xC1
	for i := 1; i < len(mod); i++ {
		mod[i] = byte(i)
	}
	return &Applet{
		Readers: []string{DefaultReader},
		PIN:     applet.DefaultPIN,
		Tries:   MaxTries,
		Modulus: mod,
		scripts: make(map[iso7816.InsCode][]Reply),
		counts:  make(map[iso7816.InsCode]int),
	}
}

// Script queues replies for ins. Queued replies are consumed before the
// simulated applet answers.
func (a *Applet) Script(ins iso7816.InsCode, replies ...Reply) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scripts[ins] = append(a.scripts[ins], replies...)
}

// Count returns how many commands with ins reached the card.
func (a *Applet) Count(ins iso7816.InsCode) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts[ins]
}

// Total returns the number of transmits that got past the gate.
func (a *Applet) Total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.commands)
}

// Attempts counts Transmit calls, including those still held at the gate.
func (a *Applet) Attempts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts
}

// Commands returns a copy of every transmitted command.
func (a *Applet) Commands() [][]byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([][]byte, len(a.commands))
	for i, c := range a.commands {
		out[i] = bytes.Clone(c)
	}
	return out
}

// Block installs a gate and returns it. Each send on the gate lets one
// Transmit through; closing it releases all.
func (a *Applet) Block() chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Gate = make(chan struct{})
	return a.Gate
}

func (a *Applet) ListReaders() ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Readers, nil
}

func (a *Applet) Connect(string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ConnectErr != nil {
		return a.ConnectErr
	}
	a.connected = true
	return nil
}

func (a *Applet) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

func (a *Applet) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	a.selected = false
	a.verified = false
	return nil
}

func (a *Applet) Transmit(cmd []byte) ([]byte, error) {
	a.mu.Lock()
	gate := a.Gate
	a.attempts++
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.commands = append(a.commands, bytes.Clone(cmd))
	if !a.connected {
		return nil, errNotConnected
	}
	if len(cmd) < 4 {
		return sw(swWrongLength), nil
	}

	ins := iso7816.InsCode(cmd[1])
	a.counts[ins]++

	if q := a.scripts[ins]; len(q) > 0 {
		r := q[0]
		a.scripts[ins] = q[1:]
		return r.Resp, r.Err
	}
	return a.handle(ins, cmd[2], cmd[3], body(cmd)), nil
}

// body extracts the data field of a short APDU. A 5-byte command carries
// only Le.
func body(cmd []byte) []byte {
	if len(cmd) <= 5 {
		return nil
	}
	lc := int(cmd[4])
	if 5+lc > len(cmd) {
		return nil
	}
	return cmd[5 : 5+lc]
}

func (a *Applet) handle(ins iso7816.InsCode, p1, p2 byte, data []byte) []byte {
	if ins == iso7816.INS_SELECT {
		a.verified = false
		a.selected = bytes.Equal(data, applet.AID)
		if !a.selected {
			return sw(swFileNotFound)
		}
		return sw(applet.SWSuccess)
	}
	if !a.selected {
		return sw(swNotSelected)
	}

	switch ins {
	case applet.InsVerifyPin:
		return a.verify(string(data))
	case applet.InsCheckLock:
		if a.Tries == 0 {
			return sw(applet.SWLocked)
		}
		return sw(applet.SWSuccess)
	case applet.InsChangePin:
		if !a.verified {
			return sw(applet.SWLocked)
		}
		a.PIN = string(data)
		return sw(applet.SWSuccess)
	case applet.InsUnblockPin:
		a.PIN = applet.DefaultPIN
		if len(data) > 0 {
			a.PIN = string(data)
		}
		a.Tries = MaxTries
		return sw(applet.SWSuccess)
	case applet.InsResetTry:
		a.Tries = MaxTries
		return sw(applet.SWSuccess)
	case applet.InsGetPubKey:
		return ok(a.Modulus)
	case applet.InsSignRSA:
		if !a.verified {
			return sw(applet.SWLocked)
		}
		if a.SignFunc != nil {
			return ok(a.SignFunc(data))
		}
		return ok(append([]byte("sig:"), data...))
	case applet.InsSetInfo:
		return a.setInfo(data)
	case applet.InsGetInfo:
		return ok(a.Info)
	case applet.InsUploadImageChunk:
		return a.upload(applet.OffsetFromParams(p1, p2), data)
	case applet.InsGetImageChunk:
		offset := applet.OffsetFromParams(p1, p2)
		if offset >= len(a.Image) {
			return sw(applet.SWImageEOF)
		}
		end := min(offset+applet.ChunkSize, len(a.Image))
		return ok(a.Image[offset:end])
	default:
		return sw(swInsInvalid)
	}
}

func (a *Applet) verify(pin string) []byte {
	if a.Tries == 0 {
		return sw(applet.SWLocked)
	}
	if pin != a.PIN {
		a.Tries--
		a.verified = false
		return sw(0x63C0 | a.Tries)
	}
	a.Tries = MaxTries
	a.verified = true
	return sw(applet.SWSuccess)
}

// setInfo stores the profile record. A fifth field is the new PIN and is
// not kept in the record.
func (a *Applet) setInfo(data []byte) []byte {
	if !a.verified {
		return sw(applet.SWLocked)
	}
	fields := strings.Split(string(data), applet.RecordSeparator)
	if len(fields) > applet.ProfileFields {
		a.PIN = fields[applet.ProfileFields]
		fields = fields[:applet.ProfileFields]
	}
	a.Info = []byte(strings.Join(fields, applet.RecordSeparator))
	return sw(applet.SWSuccess)
}

// upload writes a chunk. Offset 0 starts a new image.
func (a *Applet) upload(offset int, data []byte) []byte {
	if !a.verified {
		return sw(applet.SWLocked)
	}
	if offset+len(data) > applet.MaxImageSize {
		return sw(swNoSpace)
	}
	if offset == 0 {
		a.Image = nil
	}
	if offset > len(a.Image) {
		return sw(swWrongOffset)
	}
	a.Image = append(a.Image[:offset], data...)
	return sw(applet.SWSuccess)
}

func sw(v int) []byte {
	return []byte{byte(v >> 8), byte(v)}
}

func ok(data []byte) []byte {
	resp := make([]byte, 0, len(data)+2)
	resp = append(resp, data...)
	return append(resp, 0x90, 0x00)
}
