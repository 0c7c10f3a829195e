package fatx

import (
	"bytes"
)

var (
	liveMagic = []byte{'L', 'I', 'V', 'E'}
)

// LIVESignature detects LIVE content packages. The container does not carry
// its own length in a form we parse yet, so hits are reported but not
// extracted.
type LIVESignature struct {
	SignatureBase
}

func init() {
	RegisterSignature("LIVESignature", NewLIVESignature)
}

// NewLIVESignature returns a LIVE-package detector anchored at the given
// offset.
func NewLIVESignature(offset int64, volume *FatXVolume) Signature {
	return &LIVESignature{
		SignatureBase: NewSignatureBase("LIVESignature", offset, volume),
	}
}

func (s *LIVESignature) Test() bool {
	return bytes.Equal(s.Read(4), liveMagic)
}

func (s *LIVESignature) Parse() {
}
