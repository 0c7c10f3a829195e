package fatx

import (
	"golang.org/x/text/encoding/charmap"
)

// DecodeCp437 decodes raw filename bytes using the legacy cp437 codepage
// that FATX stores names in.
func DecodeCp437(raw []byte) string {
	decoded := make([]rune, len(raw))
	for i, b := range raw {
		decoded[i] = charmap.CodePage437.DecodeByte(b)
	}

	return string(decoded)
}

// encodeCp437 encodes a string of cp437-representable runes to raw bytes.
// Any rune outside the codepage is a programming error here, so the boolean
// result reports whether everything mapped.
func encodeCp437(s string) (raw []byte, ok bool) {
	raw = make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := charmap.CodePage437.EncodeRune(r)
		if ok == false {
			return nil, false
		}

		raw = append(raw, b)
	}

	return raw, true
}
