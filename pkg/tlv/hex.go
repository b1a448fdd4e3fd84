package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hex decodes hex fragments such as "00 A4 04 00" into bytes. It panics on
// malformed input and is meant for tests and fixed tables.
func Hex(parts ...string) []byte {
	s := strings.Join(strings.Fields(strings.Join(parts, " ")), "")

	data, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("tlv.Hex(%q): %v", s, err))
	}
	return data
}
