package tlv

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// Describe renders the populated []byte and []bertlv.TLV fields of s, one
// per line, as "<prefix>.<Field> (<tag>): <value>". A `fmt:"ascii"` or
// `fmt:"int"` struct tag adds a decoded rendering after the hex.
func Describe(prefix string, s any) []string {
	v := reflect.ValueOf(s)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}

	t := v.Type()
	var lines []string

	for i := 0; i < t.NumField(); i++ {
		f, sf := v.Field(i), t.Field(i)

		switch {
		case isBytes(f):
			if f.Len() == 0 {
				continue
			}
			name := sf.Name
			if tag := sf.Tag.Get("tlv"); tag != "" {
				name = fmt.Sprintf("%s (%s)", name, tag)
			}
			lines = append(lines, fmt.Sprintf("%s.%s: %s", prefix, name, formatValue(f.Bytes(), sf.Tag.Get("fmt"))))

		case f.Type() == reflect.TypeOf([]bertlv.TLV(nil)):
			for _, p := range f.Interface().([]bertlv.TLV) {
				lines = append(lines, fmt.Sprintf("%s.Unknown Tag %s: %X", prefix, p.Tag, p.Value))
			}
		}
	}
	return lines
}

func formatValue(data []byte, format string) string {
	switch format {
	case "ascii":
		return fmt.Sprintf("%X (%q)", data, SafeASCII(data))
	case "int":
		n := 0
		for _, b := range data {
			n = n<<8 | int(b)
		}
		return fmt.Sprintf("%X (Dec: %d)", data, n)
	default:
		return fmt.Sprintf("%X", data)
	}
}

// SafeASCII replaces non-printable bytes with '.'.
func SafeASCII(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data))
	for _, b := range data {
		if b >= 32 && b <= 126 {
			sb.WriteByte(b)
		} else {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}
