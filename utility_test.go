package fatx

import (
	"bytes"
	"testing"
)

func TestDecodeCp437(t *testing.T) {
	s := DecodeCp437([]byte{'A', 'B', 0x9b})

	if s != "AB¢" {
		t.Fatalf("Bytes not decoded correctly: [%s]", s)
	}
}

func TestEncodeCp437(t *testing.T) {
	raw, ok := encodeCp437("AB¢")
	if ok == false {
		t.Fatalf("String should be encodable.")
	}

	if bytes.Equal(raw, []byte{'A', 'B', 0x9b}) == false {
		t.Fatalf("String not encoded correctly: %v", raw)
	}
}

func TestEncodeCp437_Unencodable(t *testing.T) {
	if _, ok := encodeCp437("漢"); ok == true {
		t.Fatalf("Rune outside the codepage should not be encodable.")
	}
}
