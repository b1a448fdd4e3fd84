package tlv

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/moov-io/bertlv"
)

type describedTemplate struct {
	FileID     []byte `tlv:"84"`
	Label      []byte `tlv:"50" fmt:"ascii"`
	Priority   []byte `tlv:"87" fmt:"int"`
	RawData    []byte
	EmptyField []byte `tlv:"99"`
	Unknown    []bertlv.TLV `tlv:",unknown"`
}

func TestDescribe(t *testing.T) {
	tmpl := describedTemplate{
		FileID:   []byte{0x06, 0x03, 0x30},
		Label:    []byte{'C', '9', 0x00},
		Priority: []byte{0x01, 0x00},
		RawData:  []byte{0xCA, 0xFE},
		Unknown: []bertlv.TLV{
			{Tag: "9F01", Value: []byte{0x12, 0x34}},
		},
	}

	want := []string{
		"FCI.FileID (84): 060330",
		`FCI.Label (50): 433900 ("C9.")`,
		"FCI.Priority (87): 0100 (Dec: 256)",
		"FCI.RawData: CAFE",
		"FCI.Unknown Tag 9F01: 1234",
	}

	tests := []struct {
		name  string
		input any
		want  []string
	}{
		{"Pointer", &tmpl, want},
		{"Value", tmpl, want},
		{"Nil Pointer", (*describedTemplate)(nil), nil},
		{"Not A Struct", 42, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Describe("FCI", tt.input)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSafeASCII(t *testing.T) {
	input := []byte{0x41, 0x42, 0x00, 0x1F, 0x7F, 0x43}
	want := "AB...C"

	if got := SafeASCII(input); got != want {
		t.Errorf("SafeASCII() = %q, want %q", got, want)
	}
}
