// Package applet holds the wire contract of the membership applet: its AID,
// instruction codes, status word classification, the chunked image
// addressing and the profile text record.
package applet

import (
	"errors"

	"github.com/gregLibert/kiosk-card/pkg/iso7816"
)

// CLA is the class byte of every applet command.
const CLA byte = 0x00

// AID selects the membership applet.
var AID = []byte{0x06, 0x03, 0x30, 0x26, 0x01, 0x17, 0x00}

// Instruction codes.
const (
	InsVerifyPin        iso7816.InsCode = 0x20
	InsChangePin        iso7816.InsCode = 0x21
	InsCheckLock        iso7816.InsCode = 0x22
	InsUnblockPin       iso7816.InsCode = 0x2C
	InsResetTry         iso7816.InsCode = 0x2D
	InsGetPubKey        iso7816.InsCode = 0x30
	InsSignRSA          iso7816.InsCode = 0x31
	InsSetInfo          iso7816.InsCode = 0x50
	InsGetInfo          iso7816.InsCode = 0x51
	InsUploadImageChunk iso7816.InsCode = 0x52
	InsGetImageChunk    iso7816.InsCode = 0x53
)

func init() {
	for ins, name := range map[iso7816.InsCode]string{
		InsVerifyPin:        "VERIFY_PIN",
		InsChangePin:        "CHANGE_PIN",
		InsCheckLock:        "CHECK_LOCK",
		InsUnblockPin:       "UNBLOCK_PIN",
		InsResetTry:         "RESET_TRY",
		InsGetPubKey:        "GET_PUB_KEY",
		InsSignRSA:          "SIGN_RSA",
		InsSetInfo:          "SET_INFO",
		InsGetInfo:          "GET_INFO",
		InsUploadImageChunk: "UPLOAD_IMAGE_CHUNK",
		InsGetImageChunk:    "GET_IMAGE_CHUNK",
	} {
		iso7816.RegisterName(ins, name)
	}
}

// Status words the applet uses with a fixed meaning.
const (
	SWSuccess  = 0x9000
	SWLocked   = 0x6982
	SWImageEOF = 0x6A83
)

// ModulusLength is the size of the RSA-1024 public modulus the applet returns.
const ModulusLength = 128

// DefaultPIN is the PIN an unblocked or freshly issued card accepts.
const DefaultPIN = "0000"

const (
	MinPINLength = 4
	MaxPINLength = 8
)

// ErrInvalidPIN is returned before any APDU is sent when a PIN is not 4 to
// 8 ASCII digits.
var ErrInvalidPIN = errors.New("applet: PIN must be 4 to 8 digits")

// ValidatePIN checks the PIN format.
func ValidatePIN(pin string) error {
	if len(pin) < MinPINLength || len(pin) > MaxPINLength {
		return ErrInvalidPIN
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return ErrInvalidPIN
		}
	}
	return nil
}
