package iso7816

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/gregLibert/kiosk-card/pkg/tlv"
)

func TestParseFCI(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		want    *FCI
		wantErr bool
	}{
		{
			name: "Wrapped In 6F",
			raw: tlv.Hex(
				"6F 0E",
				"84 07 06 03 30 26 01 17 00",
				"50 03 43 39 4B", // "C9K"
			),
			want: &FCI{
				DFName: tlv.Hex("06 03 30 26 01 17 00"),
				Label:  []byte("C9K"),
			},
		},
		{
			name: "Flat Template",
			raw:  tlv.Hex("84 02 11 22"),
			want: &FCI{DFName: []byte{0x11, 0x22}},
		},
		{
			name: "Proprietary Raw",
			raw:  tlv.Hex("C0 01 02"),
			want: &FCI{Proprietary: tlv.Hex("C0 01 02")},
		},
		{
			name: "Empty",
			raw:  nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFCI(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFCI() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
