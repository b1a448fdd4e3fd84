package applet

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStripPadding(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"Empty", []byte{}, []byte{}},
		{"Single Pad Byte", []byte{0xFF, 0xD9, 0x01}, []byte{0xFF, 0xD9}},
		{"Four Pad Bytes", []byte{0xAA, 0x04, 0x04, 0x04, 0x04}, []byte{0xAA}},
		{"Sixteen Pad Bytes", append([]byte{0xAA}, bytes.Repeat([]byte{0x10}, 16)...), []byte{0xAA}},
		{"Whole Buffer Is Padding", []byte{0x02, 0x02}, []byte{}},
		{"Last Byte Above 16", []byte{0xAA, 0x11}, []byte{0xAA, 0x11}},
		{"Last Byte Zero", []byte{0xAA, 0x00}, []byte{0xAA, 0x00}},
		{"Inconsistent Run", []byte{0xAA, 0x03, 0x02, 0x03}, []byte{0xAA, 0x03, 0x02, 0x03}},
		{"Pad Longer Than Data", []byte{0x05, 0x05}, []byte{0x05, 0x05}},
		{"JPEG End Marker", []byte{0xFF, 0xD8, 0xFF, 0xD9}, []byte{0xFF, 0xD8, 0xFF, 0xD9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripPadding(tt.in)
			if !bytes.Equal(tt.want, got) {
				t.Errorf("StripPadding(%X) = %X, want %X", tt.in, got, tt.want)
			}
		})
	}
}

// A natural image tail of 0x01 is indistinguishable from one pad byte.
func TestStripPadding_NaturalTailIsLost(t *testing.T) {
	img := []byte{0x10, 0x20, 0x30, 0x01}
	if got := StripPadding(img); len(got) != 3 {
		t.Errorf("StripPadding() kept %d bytes, want 3 (tail byte misread as padding)", len(got))
	}
}

func TestOffsetParams(t *testing.T) {
	tests := []struct {
		offset int
		p1, p2 byte
	}{
		{0, 0x00, 0x00},
		{240, 0x00, 0xF0},
		{480, 0x01, 0xE0},
		{MaxImageSize, 0xFF, 0xFF},
	}

	for _, tt := range tests {
		p1, p2 := OffsetParams(tt.offset)
		if p1 != tt.p1 || p2 != tt.p2 {
			t.Errorf("OffsetParams(%d) = %02X %02X, want %02X %02X", tt.offset, p1, p2, tt.p1, tt.p2)
		}
		if got := OffsetFromParams(p1, p2); got != tt.offset {
			t.Errorf("OffsetFromParams(%02X, %02X) = %d, want %d", p1, p2, got, tt.offset)
		}
	}
}

func TestCursor_Window(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, 600)

	var sizes []int
	c := NewCursor()
	for w := c.Window(data); w != nil; w = c.Window(data) {
		sizes = append(sizes, len(w))
		c.Advance(len(w))
	}

	if diff := cmp.Diff([]int{240, 240, 120}, sizes); diff != "" {
		t.Errorf("chunk sizes mismatch (-want +got):\n%s", diff)
	}
	if c.Offset != 600 {
		t.Errorf("final offset = %d, want 600", c.Offset)
	}
}

func TestMaxChunkReads(t *testing.T) {
	if MaxChunkReads != 275 {
		t.Errorf("MaxChunkReads = %d, want ceil(65535/240)+1 = 275", MaxChunkReads)
	}
}

func TestRecord(t *testing.T) {
	t.Run("Encode", func(t *testing.T) {
		got, err := EncodeRecord("C9-1700000000", "alice", "Alice Nguyen", "Gold")
		if err != nil {
			t.Fatalf("EncodeRecord() error: %v", err)
		}
		if string(got) != "C9-1700000000|alice|Alice Nguyen|Gold" {
			t.Errorf("EncodeRecord() = %q", got)
		}
	})

	t.Run("Encode Rejects Separator", func(t *testing.T) {
		_, err := EncodeRecord("id", "a|b", "name", "Gold")
		if !errors.Is(err, ErrFormat) {
			t.Errorf("EncodeRecord() error = %v, want ErrFormat", err)
		}
	})

	t.Run("Decode Extra Fields", func(t *testing.T) {
		got, err := DecodeRecord([]byte("id|user|Full Name|Silver|1234"))
		if err != nil {
			t.Fatalf("DecodeRecord() error: %v", err)
		}
		if diff := cmp.Diff([]string{"id", "user", "Full Name", "Silver", "1234"}, got); diff != "" {
			t.Errorf("Mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Decode Too Few Fields", func(t *testing.T) {
		_, err := DecodeRecord([]byte("id|user|name"))
		var fe *FormatError
		if !errors.As(err, &fe) || !errors.Is(err, ErrFormat) {
			t.Errorf("DecodeRecord() error = %v, want FormatError", err)
		}
	})

	t.Run("Decode Invalid UTF-8", func(t *testing.T) {
		if _, err := DecodeRecord([]byte{0xFF, '|', 'a', '|', 'b', '|', 'c'}); !errors.Is(err, ErrFormat) {
			t.Errorf("DecodeRecord() error = %v, want ErrFormat", err)
		}
	})
}

func TestValidatePIN(t *testing.T) {
	tests := []struct {
		pin   string
		valid bool
	}{
		{"0000", true},
		{"12345678", true},
		{"123", false},
		{"123456789", false},
		{"12a4", false},
		{"", false},
	}

	for _, tt := range tests {
		err := ValidatePIN(tt.pin)
		if (err == nil) != tt.valid {
			t.Errorf("ValidatePIN(%q) = %v, want valid %v", tt.pin, err, tt.valid)
		}
	}
}

func TestOutcome_AsError(t *testing.T) {
	boom := errors.New("boom")

	if err := Succeeded().AsError(); err != nil {
		t.Errorf("Succeeded().AsError() = %v", err)
	}
	if err := Locked().AsError(); !errors.Is(err, ErrLocked) {
		t.Errorf("Locked().AsError() = %v", err)
	}

	var ws *WrongSecretError
	if err := WrongPin(2).AsError(); !errors.As(err, &ws) || ws.Remaining != 2 {
		t.Errorf("WrongPin(2).AsError() = %v", err)
	}
	if err := Failure(boom).AsError(); !errors.Is(err, boom) {
		t.Errorf("Failure().AsError() = %v", err)
	}
	if err := (Outcome{}).AsError(); err == nil {
		t.Error("zero Outcome must not read as success")
	}
}

func TestConnectionError(t *testing.T) {
	cause := errors.New("SCARD_E_NO_SMARTCARD")
	err := ConnectionError("verify pin", cause)
	if !errors.Is(err, ErrConnection) || !errors.Is(err, cause) {
		t.Errorf("ConnectionError() = %v, want wrapping both", err)
	}
}

func TestPartialTransferError(t *testing.T) {
	err := &PartialTransferError{Offset: 480, Written: 480, SW: 0x6581}
	want := "image upload stopped at offset 480 after 480 bytes: status 6581"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
