package card

import (
	"fmt"

	"github.com/gregLibert/kiosk-card/pkg/applet"
	"github.com/gregLibert/kiosk-card/pkg/iso7816"
)

// Level is the membership tier.
type Level string

const (
	Bronze Level = "Bronze"
	Silver Level = "Silver"
	Gold   Level = "Gold"
)

// ParseLevel accepts the three tier names exactly as stored on the card.
func ParseLevel(s string) (Level, error) {
	switch l := Level(s); l {
	case Bronze, Silver, Gold:
		return l, nil
	}
	return "", &applet.FormatError{Record: s, Reason: "unknown level"}
}

// Profile is the member record held on the card. It is read fresh on every
// load and never cached.
type Profile struct {
	ID       string
	Username string
	FullName string
	Level    Level
	Avatar   []byte

	// AvatarErr is set when the text record was read but the image transfer
	// stopped on an unexpected status. Avatar then holds what was received.
	AvatarErr error
}

// IsZero reports a profile that carries no member data.
func (p Profile) IsZero() bool {
	return p.ID == "" && p.Username == "" && p.FullName == "" && p.Level == "" && len(p.Avatar) == 0
}

// Record encodes the text part: id|username|fullName|level.
func (p Profile) Record() ([]byte, error) {
	if _, err := ParseLevel(string(p.Level)); err != nil {
		return nil, err
	}
	rec, err := applet.EncodeRecord(p.ID, p.Username, p.FullName, string(p.Level))
	if err != nil {
		return nil, err
	}
	if len(rec) > iso7816.MaxShortLc {
		return nil, fmt.Errorf("profile record: %w (%d)", applet.ErrDataTooLong, len(rec))
	}
	return rec, nil
}

// profileFromRecord decodes the text part.
func profileFromRecord(raw []byte) (Profile, error) {
	fields, err := applet.DecodeRecord(raw)
	if err != nil {
		return Profile{}, err
	}
	level, err := ParseLevel(fields[3])
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		ID:       fields[0],
		Username: fields[1],
		FullName: fields[2],
		Level:    level,
	}, nil
}
