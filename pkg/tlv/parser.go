// Package tlv maps BER-TLV data onto Go structs through `tlv:"<tag>"`
// struct tags. A field tagged `tlv:",unknown"` of type []bertlv.TLV
// collects the packets no other field claimed.
package tlv

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// Unmarshaler lets a field type decode its own value.
type Unmarshaler interface {
	UnmarshalTLV(data []byte) error
}

// Unmarshal decodes data and maps it onto target, a pointer to a struct.
func Unmarshal(data []byte, target any) error {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return fmt.Errorf("bertlv decode failed: %w", err)
	}
	return UnmarshalFromPackets(packets, target)
}

// UnmarshalFromPackets maps already decoded packets onto target.
// Slice fields other than []byte receive every occurrence of their tag.
func UnmarshalFromPackets(packets []bertlv.TLV, target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("target must be a non-nil pointer to a struct, got %T", target)
	}
	v = v.Elem()
	t := v.Type()

	claimed := make([]bool, len(packets))
	unknown := -1

	for i := 0; i < t.NumField(); i++ {
		tag, ok := t.Field(i).Tag.Lookup("tlv")
		if !ok {
			continue
		}
		if tag == ",unknown" {
			unknown = i
			continue
		}

		name := strings.ToUpper(strings.Split(tag, ",")[0])
		for idx, p := range packets {
			if !strings.EqualFold(p.Tag, name) {
				continue
			}
			if err := assign(p, v.Field(i)); err != nil {
				return fmt.Errorf("tag %s: %w", name, err)
			}
			claimed[idx] = true
		}
	}

	if unknown < 0 {
		return nil
	}

	var rest []bertlv.TLV
	for idx, p := range packets {
		if !claimed[idx] {
			rest = append(rest, p)
		}
	}
	if len(rest) > 0 {
		v.Field(unknown).Set(reflect.ValueOf(rest))
	}
	return nil
}

// Find returns the first packet carrying tag, searching depth-first.
func Find(packets []bertlv.TLV, tag string) (bertlv.TLV, bool) {
	for _, p := range packets {
		if strings.EqualFold(p.Tag, tag) {
			return p, true
		}
		if found, ok := Find(p.TLVs, tag); ok {
			return found, true
		}
	}
	return bertlv.TLV{}, false
}

func assign(p bertlv.TLV, field reflect.Value) error {
	if field.Kind() == reflect.Slice && !isBytes(field) {
		elem := reflect.New(field.Type().Elem()).Elem()
		if err := decode(p, elem); err != nil {
			return err
		}
		field.Set(reflect.Append(field, elem))
		return nil
	}
	return decode(p, field)
}

func decode(p bertlv.TLV, field reflect.Value) error {
	if field.CanAddr() {
		if u, ok := field.Addr().Interface().(Unmarshaler); ok {
			return u.UnmarshalTLV(raw(p))
		}
	}

	switch {
	case isBytes(field):
		field.SetBytes(raw(p))
	case field.Kind() == reflect.String:
		field.SetString(string(p.Value))
	case field.Kind() == reflect.Struct:
		return nested(p, field.Addr().Interface())
	case field.Kind() == reflect.Pointer && field.Type().Elem().Kind() == reflect.Struct:
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return nested(p, field.Interface())
	}
	return nil
}

func nested(p bertlv.TLV, target any) error {
	if len(p.TLVs) > 0 {
		return UnmarshalFromPackets(p.TLVs, target)
	}
	return Unmarshal(p.Value, target)
}

// raw returns the value bytes, re-encoding constructed packets.
func raw(p bertlv.TLV) []byte {
	if len(p.TLVs) > 0 {
		if enc, err := bertlv.Encode(p.TLVs); err == nil {
			return enc
		}
	}
	return p.Value
}

func isBytes(v reflect.Value) bool {
	return v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8
}
