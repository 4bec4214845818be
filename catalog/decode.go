package catalog

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Encoding names reported by the loader.
const (
	EncodingUTF8    = "utf-8"
	EncodingUTF8BOM = "utf-8-sig"
	EncodingCP1252  = "cp1252"
	EncodingLatin1  = "latin-1"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// cp1252Undefined are the byte values Windows-1252 leaves unassigned.
var cp1252Undefined = []byte{0x81, 0x8D, 0x8F, 0x90, 0x9D}

// decode converts raw file contents to UTF-8, trying UTF-8, UTF-8 with a
// byte order mark, Windows-1252 and finally Latin-1. Latin-1 accepts every
// byte sequence, so decode never fails.
func decode(raw []byte) (string, string) {
	if bytes.HasPrefix(raw, utf8BOM) && utf8.Valid(raw[len(utf8BOM):]) {
		return string(raw[len(utf8BOM):]), EncodingUTF8BOM
	}
	if utf8.Valid(raw) {
		return string(raw), EncodingUTF8
	}
	if !containsAnyByte(raw, cp1252Undefined) {
		if out, err := charmap.Windows1252.NewDecoder().Bytes(raw); err == nil {
			return string(out), EncodingCP1252
		}
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		// Unreachable for ISO-8859-1; keep the bytes rather than fail.
		return string(raw), EncodingLatin1
	}
	return string(out), EncodingLatin1
}

func containsAnyByte(raw, set []byte) bool {
	for _, b := range set {
		if bytes.IndexByte(raw, b) >= 0 {
			return true
		}
	}
	return false
}
