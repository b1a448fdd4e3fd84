package iso7816

import (
	"fmt"

	"github.com/gregLibert/kiosk-card/pkg/bits"
)

// INS values whose high nibble is 6 or 9 collide with SW1 procedure bytes
// under T=0 and are never valid instructions.

// InsCode is the raw instruction byte.
type InsCode byte

// Interindustry instruction codes used by this module.
const (
	INS_SELECT       InsCode = 0xA4
	INS_GET_RESPONSE InsCode = 0xC0
)

var insNames = map[InsCode]string{
	INS_SELECT:       "INS_SELECT",
	INS_GET_RESPONSE: "INS_GET_RESPONSE",
}

// RegisterName attaches a display name to a proprietary instruction code.
// It is meant to be called from package init functions.
func RegisterName(ins InsCode, name string) {
	if _, ok := insNames[ins]; !ok {
		insNames[ins] = name
	}
}

func (i InsCode) String() string {
	if name, ok := insNames[i]; ok {
		return name
	}
	return fmt.Sprintf("InsCode(0x%02X)", byte(i))
}

// Instruction is a validated INS byte.
type Instruction struct {
	Raw InsCode
}

// NewInstruction validates ins and rejects the 6X and 9X ranges.
func NewInstruction(ins InsCode) (Instruction, error) {
	switch bits.HighNibble(byte(ins)) {
	case 0x6, 0x9:
		return Instruction{}, fmt.Errorf("invalid INS 0x%02X: 6X and 9X are reserved", byte(ins))
	}

	return Instruction{Raw: ins}, nil
}

// MustInstruction is NewInstruction for compile-time constants.
func MustInstruction(ins InsCode) Instruction {
	i, err := NewInstruction(ins)
	if err != nil {
		panic(err)
	}
	return i
}

// Verbose returns a human-readable description of the instruction.
func (i Instruction) Verbose() string {
	return fmt.Sprintf("INS: 0x%02X | Command: %s", byte(i.Raw), i.Raw.String())
}
