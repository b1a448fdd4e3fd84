package applet

import (
	"github.com/gregLibert/kiosk-card/pkg/bits"
)

// ChunkSize is the payload of one image chunk command.
const ChunkSize = 240

// MaxImageSize is the largest image addressable with a 16-bit offset.
const MaxImageSize = 0xFFFF

// MaxChunkReads bounds the image read loop: ceil(MaxImageSize/ChunkSize)+1.
const MaxChunkReads = (MaxImageSize+ChunkSize-1)/ChunkSize + 1

// OffsetParams splits an image offset into P1 (high byte) and P2 (low byte).
func OffsetParams(offset int) (p1, p2 byte) {
	return bits.SplitUint16(offset)
}

// OffsetFromParams is the inverse of OffsetParams.
func OffsetFromParams(p1, p2 byte) int {
	return bits.JoinUint16(p1, p2)
}

// Cursor walks an image in ChunkSize steps.
type Cursor struct {
	Offset    int
	ChunkSize int
}

// NewCursor starts at offset 0.
func NewCursor() Cursor {
	return Cursor{ChunkSize: ChunkSize}
}

// Params returns P1 and P2 for the current offset.
func (c Cursor) Params() (p1, p2 byte) {
	return OffsetParams(c.Offset)
}

// Advance moves past n transferred bytes.
func (c *Cursor) Advance(n int) {
	c.Offset += n
}

// InRange reports whether the current offset is still addressable.
func (c Cursor) InRange() bool {
	return c.Offset <= MaxImageSize
}

// Window returns the next chunk of data at the cursor, or nil once the
// cursor has reached the end.
func (c Cursor) Window(data []byte) []byte {
	if c.Offset >= len(data) {
		return nil
	}
	end := min(c.Offset+c.ChunkSize, len(data))
	return data[c.Offset:end]
}
