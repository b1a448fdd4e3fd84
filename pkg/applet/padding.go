package applet

// StripPadding removes a PKCS#7 style trailer: when the last byte b is in
// 1..16 and the last b bytes all equal b, they are dropped. An image whose
// natural tail happens to match is truncated; the card format carries no
// length to tell the two apart.
func StripPadding(data []byte) []byte {
	if len(data) == 0 {
		return data
	}

	pad := int(data[len(data)-1])
	if pad < 1 || pad > 16 || pad > len(data) {
		return data
	}

	start := len(data) - pad
	for _, b := range data[start:] {
		if int(b) != pad {
			return data
		}
	}
	return data[:start]
}
