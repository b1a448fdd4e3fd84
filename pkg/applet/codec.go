package applet

import (
	"errors"
	"fmt"

	"github.com/gregLibert/kiosk-card/pkg/bits"
	"github.com/gregLibert/kiosk-card/pkg/iso7816"
)

// ErrDataTooLong is returned for payloads that do not fit the one-byte Lc.
// Larger payloads must be chunked by the caller.
var ErrDataTooLong = errors.New("applet: command data exceeds 255 bytes")

// Command builds an applet command. ne > 0 appends Le (256 encodes as 00).
func Command(ins iso7816.InsCode, p1, p2 byte, data []byte, ne int) (*iso7816.CommandAPDU, error) {
	if len(data) > iso7816.MaxShortLc {
		return nil, fmt.Errorf("%s: %w (%d)", ins, ErrDataTooLong, len(data))
	}
	if ne > iso7816.MaxShortLe {
		return nil, fmt.Errorf("%s: Le %d exceeds %d", ins, ne, iso7816.MaxShortLe)
	}
	i, err := iso7816.NewInstruction(ins)
	if err != nil {
		return nil, err
	}
	return iso7816.NewCommandAPDU(CLA, i, p1, p2, data, ne), nil
}

// BuildCommand encodes CLA INS P1 P2 [Lc Data].
func BuildCommand(cla, ins, p1, p2 byte, data []byte) ([]byte, error) {
	if len(data) > iso7816.MaxShortLc {
		return nil, fmt.Errorf("%w (%d)", ErrDataTooLong, len(data))
	}
	i, err := iso7816.NewInstruction(iso7816.InsCode(ins))
	if err != nil {
		return nil, err
	}
	return iso7816.NewCommandAPDU(cla, i, p1, p2, data, 0).Bytes()
}

// BuildSelect encodes 00 A4 04 00 Lc AID.
func BuildSelect(aid []byte) ([]byte, error) {
	if len(aid) > iso7816.MaxShortLc {
		return nil, fmt.Errorf("%w (%d)", ErrDataTooLong, len(aid))
	}
	return iso7816.SelectByAID(0x00, aid).Bytes()
}

// StatusWord combines the last two bytes of resp. It returns 0 when resp is
// shorter than two bytes; 0 is never a valid status.
func StatusWord(resp []byte) int {
	if len(resp) < 2 {
		return 0
	}
	return int(bits.JoinUint16(resp[len(resp)-2], resp[len(resp)-1]))
}

// Payload returns resp without its status word.
func Payload(resp []byte) []byte {
	if len(resp) < 2 {
		return nil
	}
	return resp[:len(resp)-2]
}

// ClassifyPinStatus maps a PIN-touching status word to an Outcome:
// 9000 Success, 6982 CardLocked, 63XX WrongPin with the low nibble as
// remaining tries, anything else Failed.
func ClassifyPinStatus(sw int) Outcome {
	switch {
	case sw == SWSuccess:
		return Succeeded()
	case sw == SWLocked:
		return Locked()
	case sw>>8 == 0x63:
		return WrongPin(sw & 0x0F)
	default:
		return Failure(&ProtocolError{SW: sw})
	}
}
