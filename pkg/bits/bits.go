// Package bits holds the small bit and byte helpers shared by the APDU codecs.
// Bit positions follow the ISO 7816 convention: b1 is the least significant bit.
package bits

// Bit returns a byte with only bit n set (1 to 8).
func Bit(n uint) byte {
	if n < 1 || n > 8 {
		return 0
	}
	return 1 << (n - 1)
}

// IsSet reports whether bit n of b is set (1 to 8).
func IsSet(b byte, n uint) bool {
	return b&Bit(n) != 0
}

// GetRange extracts bits high..low of b, shifted down.
// Example: GetRange(0b0110_0011, 4, 1) returns 3.
func GetRange(b byte, high, low uint) byte {
	if high < low || high > 8 || low < 1 {
		return 0
	}

	width := high - low + 1
	mask := byte((1 << width) - 1)

	return (b >> (low - 1)) & mask
}

// LowNibble returns bits 4..1 of b.
func LowNibble(b byte) byte {
	return GetRange(b, 4, 1)
}

// HighNibble returns bits 8..5 of b.
func HighNibble(b byte) byte {
	return GetRange(b, 8, 5)
}

// SplitUint16 returns the big-endian high and low bytes of v.
// Values above 0xFFFF are truncated to their low 16 bits.
func SplitUint16(v int) (hi, lo byte) {
	return byte((v >> 8) & 0xFF), byte(v & 0xFF)
}

// JoinUint16 is the inverse of SplitUint16.
func JoinUint16(hi, lo byte) int {
	return int(hi)<<8 | int(lo)
}
