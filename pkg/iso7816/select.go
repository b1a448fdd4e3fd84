package iso7816

import (
	"fmt"
	"strings"

	"github.com/gregLibert/kiosk-card/pkg/tlv"
)

// SELECT by DF name: P1 = 04, P2 = 00 (first occurrence, return FCI).
const (
	selectByName byte = 0x04
	selectFirst  byte = 0x00
)

// SelectByAID builds CLA A4 04 00 Lc AID. No Le is sent: under T=0 a case 4
// command is answered with 61XX and the Client fetches the data.
func SelectByAID(cla byte, aid []byte) *CommandAPDU {
	return NewCommandAPDU(cla, MustInstruction(INS_SELECT), selectByName, selectFirst, aid, 0)
}

// DescribeSelect renders a short report of a SELECT trace for logs.
func DescribeSelect(t Trace) string {
	if len(t) == 0 {
		return "SELECT: no exchange"
	}

	var sb strings.Builder
	first := t[0].Command
	fmt.Fprintf(&sb, "SELECT %X (%q): %s", first.Data, tlv.SafeASCII(first.Data), t.Status().Verbose())

	if len(t) > 1 {
		fmt.Fprintf(&sb, " after %d exchanges", len(t))
	}

	resp := t.Response()
	if resp == nil || len(resp.Data) == 0 {
		return sb.String()
	}

	fci, err := ParseFCI(resp.Data)
	if err != nil {
		fmt.Fprintf(&sb, "; FCI unreadable: %v", err)
		return sb.String()
	}
	for _, line := range tlv.Describe("FCI", fci) {
		sb.WriteString("; ")
		sb.WriteString(line)
	}
	return sb.String()
}
