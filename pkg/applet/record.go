package applet

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// RecordSeparator delimits fields of the profile text record.
const RecordSeparator = "|"

// ProfileFields is the minimum field count of a profile record:
// id|username|fullName|level.
const ProfileFields = 4

// EncodeRecord joins fields with no trailing separator. Fields must not
// contain the separator.
func EncodeRecord(fields ...string) ([]byte, error) {
	for i, f := range fields {
		if strings.Contains(f, RecordSeparator) {
			return nil, &FormatError{Record: f, Reason: fmt.Sprintf("field %d contains %q", i, RecordSeparator)}
		}
	}
	return []byte(strings.Join(fields, RecordSeparator)), nil
}

// DecodeRecord splits a profile record. Records with fewer than
// ProfileFields fields or invalid UTF-8 are a FormatError.
func DecodeRecord(raw []byte) ([]string, error) {
	if !utf8.Valid(raw) {
		return nil, &FormatError{Record: string(raw), Reason: "invalid UTF-8"}
	}

	fields := strings.Split(string(raw), RecordSeparator)
	if len(fields) < ProfileFields {
		return nil, &FormatError{
			Record: string(raw),
			Reason: fmt.Sprintf("%d fields, want at least %d", len(fields), ProfileFields),
		}
	}
	return fields, nil
}
