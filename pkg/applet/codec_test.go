package applet

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/kiosk-card/pkg/iso7816"
	"github.com/gregLibert/kiosk-card/pkg/tlv"
)

func TestBuildCommand(t *testing.T) {
	tests := []struct {
		name string
		ins  byte
		p1   byte
		p2   byte
		data []byte
		want []byte
	}{
		{"Header Only", 0x22, 0x00, 0x00, nil, tlv.Hex("00 22 00 00")},
		{"Verify PIN", 0x20, 0x00, 0x00, []byte("1234"), tlv.Hex("00 20 00 00 04 31 32 33 34")},
		{"Image Chunk At 480", 0x52, 0x01, 0xE0, []byte{0xAA}, tlv.Hex("00 52 01 E0 01 AA")},
		{"Max Short Data", 0x31, 0x00, 0x00, make([]byte, 255), append(tlv.Hex("00 31 00 00 FF"), make([]byte, 255)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildCommand(CLA, tt.ins, tt.p1, tt.p2, tt.data)
			if err != nil {
				t.Fatalf("BuildCommand() error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := BuildCommand(CLA, 0x31, 0, 0, make([]byte, 256)); !errors.Is(err, ErrDataTooLong) {
		t.Errorf("BuildCommand(256 bytes) error = %v, want ErrDataTooLong", err)
	}
}

func TestBuildSelect(t *testing.T) {
	got, err := BuildSelect(AID)
	if err != nil {
		t.Fatalf("BuildSelect() error: %v", err)
	}
	want := tlv.Hex("00 A4 04 00 07 06 03 30 26 01 17 00")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Mismatch (-want +got):\n%s", diff)
	}
}

func TestCommand_WithLe(t *testing.T) {
	tests := []struct {
		name string
		ins  byte
		ne   int
		want []byte
	}{
		{"Get Info", byte(InsGetInfo), 256, tlv.Hex("00 51 00 00 00")},
		{"Get Public Key", byte(InsGetPubKey), ModulusLength, tlv.Hex("00 30 00 00 80")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := Command(iso7816.InsCode(tt.ins), 0, 0, nil, tt.ne)
			if err != nil {
				t.Fatalf("Command() error: %v", err)
			}
			got, err := cmd.Bytes()
			if err != nil {
				t.Fatalf("Bytes() error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStatusWord(t *testing.T) {
	tests := []struct {
		resp []byte
		want int
	}{
		{nil, 0},
		{[]byte{}, 0},
		{[]byte{0x90}, 0},
		{[]byte{0x90, 0x00}, 0x9000},
		{[]byte{0x01, 0x02, 0x63, 0xC3}, 0x63C3},
	}

	for _, tt := range tests {
		if got := StatusWord(tt.resp); got != tt.want {
			t.Errorf("StatusWord(%X) = %04X, want %04X", tt.resp, got, tt.want)
		}
	}
}

func TestClassifyPinStatus(t *testing.T) {
	tests := []struct {
		sw   int
		want Outcome
	}{
		{0x9000, Succeeded()},
		{0x6982, Locked()},
		{0x63C3, WrongPin(3)},
		{0x63C0, WrongPin(0)},
		{0x6300, WrongPin(0)},
	}

	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, ClassifyPinStatus(tt.sw)); diff != "" {
			t.Errorf("ClassifyPinStatus(%04X) mismatch (-want +got):\n%s", tt.sw, diff)
		}
	}

	got := ClassifyPinStatus(0x6A80)
	var pe *ProtocolError
	if got.Status != StatusFailed || !errors.As(got.Err, &pe) || pe.SW != 0x6A80 {
		t.Errorf("ClassifyPinStatus(6A80) = %v, want failed with ProtocolError 6A80", got)
	}
}

func TestClassifyPinStatus_AllWrongPinWords(t *testing.T) {
	for sw2 := 0; sw2 <= 0xFF; sw2++ {
		sw := 0x6300 | sw2
		got := ClassifyPinStatus(sw)
		if got.Status != StatusWrongPin || got.RemainingTries != sw2&0x0F {
			t.Fatalf("ClassifyPinStatus(%04X) = %v, want wrong_pin(%d)", sw, got, sw2&0x0F)
		}
	}
}
