package iso7816

import (
	"fmt"

	"github.com/gregLibert/kiosk-card/pkg/tlv"
	"github.com/moov-io/bertlv"
)

// FCI is the File Control Information template (tag 6F) an applet may
// return on SELECT. Applets that answer with a bare 9000 return none.
type FCI struct {
	DFName      []byte       `tlv:"84"`
	Label       []byte       `tlv:"50" fmt:"ascii"`
	Proprietary []byte       `tlv:"A5"`
	Unknown     []bertlv.TLV `tlv:",unknown"`
}

// ParseFCI decodes a SELECT response data field. Data starting with a
// proprietary tag (C0 and above) is kept raw in Proprietary. Templates
// without a 6F wrapper are read flat.
func ParseFCI(data []byte) (*FCI, error) {
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] >= 0xC0 {
		return &FCI{Proprietary: data}, nil
	}

	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("BER-TLV decode failed: %w", err)
	}

	if tmpl, ok := tlv.Find(packets, "6F"); ok {
		packets = tmpl.TLVs
	}

	fci := &FCI{}
	if err := tlv.UnmarshalFromPackets(packets, fci); err != nil {
		return nil, err
	}
	return fci, nil
}
