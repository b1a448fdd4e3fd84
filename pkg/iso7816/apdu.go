package iso7816

import (
	"bytes"
	"errors"
	"fmt"
)

// A command APDU is a 4-byte header (CLA INS P1 P2) optionally followed by
// a body: Lc and the data field when data is sent, Le when a response
// payload is expected.
//
//	Case 1: CLA INS P1 P2
//	Case 2: CLA INS P1 P2 Le
//	Case 3: CLA INS P1 P2 Lc Data
//	Case 4: CLA INS P1 P2 Lc Data Le
//
// Short encodings carry Lc/Le on one byte (Le 0x00 means 256). Extended
// encodings are selected automatically when Lc > 255 or Le > 256.
//
// A response APDU is an optional data field followed by the SW1 SW2 trailer.

const (
	MaxShortLc    = 255
	MaxShortLe    = 256
	MaxExtendedLc = 65535
	MaxExtendedLe = 65536
)

// ErrShortResponse is returned when a response does not carry the two
// status word bytes.
var ErrShortResponse = errors.New("iso7816: response shorter than status word")

// CommandAPDU is a command sent to the card.
type CommandAPDU struct {
	Class       byte
	Instruction Instruction
	P1, P2      byte
	Data        []byte
	Ne          int // expected response length, 0 for none
}

// NewCommandAPDU creates a command.
func NewCommandAPDU(cla byte, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{
		Class:       cla,
		Instruction: ins,
		P1:          p1,
		P2:          p2,
		Data:        data,
		Ne:          ne,
	}
}

// IsExtended reports whether the command needs the extended length encoding.
func (c *CommandAPDU) IsExtended() bool {
	return len(c.Data) > MaxShortLc || c.Ne > MaxShortLe
}

// Bytes encodes the command, choosing short or extended lengths.
func (c *CommandAPDU) Bytes() ([]byte, error) {
	nc, ne := len(c.Data), c.Ne
	if nc > MaxExtendedLc {
		return nil, fmt.Errorf("data field of %d bytes exceeds %d", nc, MaxExtendedLc)
	}
	if ne < 0 || ne > MaxExtendedLe {
		return nil, fmt.Errorf("invalid Ne %d", ne)
	}

	buf := new(bytes.Buffer)
	buf.Write([]byte{c.Class, byte(c.Instruction.Raw), c.P1, c.P2})

	extended := c.IsExtended()

	if nc > 0 {
		if extended {
			buf.Write([]byte{0x00, byte(nc >> 8), byte(nc)})
		} else {
			buf.WriteByte(byte(nc))
		}
		buf.Write(c.Data)
	}

	if ne > 0 {
		switch {
		case !extended:
			// 256 wraps to 0x00
			buf.WriteByte(byte(ne))
		default:
			if nc == 0 {
				buf.WriteByte(0x00)
			}
			// 65536 wraps to 0x0000
			buf.Write([]byte{byte(ne >> 8), byte(ne)})
		}
	}

	return buf.Bytes(), nil
}

func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s | P1: %02X, P2: %02X | Lc: %d | Le: %d",
		c.Instruction.Verbose(), c.P1, c.P2, len(c.Data), c.Ne)
}

// ResponseAPDU is the reply from the card.
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// ParseResponseAPDU splits raw card output into data and status word.
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("%w: length %d", ErrShortResponse, len(raw))
	}

	n := len(raw) - 2
	data := make([]byte, n)
	copy(data, raw[:n])

	return &ResponseAPDU{
		Data:   data,
		Status: NewStatusWord(raw[n], raw[n+1]),
	}, nil
}

func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}
