package fatx

import (
	"bytes"
	"strings"
)

var (
	xbeMagic = []byte("XBEH")
)

// XBESignature detects Original Xbox executables.
type XBESignature struct {
	SignatureBase
}

func init() {
	RegisterSignature("XBESignature", NewXBESignature)
}

// NewXBESignature returns an XBE detector anchored at the given offset.
func NewXBESignature(offset int64, volume *FatXVolume) Signature {
	return &XBESignature{
		SignatureBase: NewSignatureBase("XBESignature", offset, volume),
	}
}

func (s *XBESignature) Test() bool {
	return bytes.Equal(s.Read(4), xbeMagic)
}

// Parse pulls the image size out of the XBE header and recovers the original
// name from the debug file-name pointer.
//
// 0x104: BaseAddress
// 0x10c: SizeOfImage
// 0x150: DebugFileName
func (s *XBESignature) Parse() {
	s.Seek(0x104)
	baseAddress := s.ReadU32()

	s.Seek(0x10c)
	s.length = s.ReadU32()

	s.Seek(0x150)
	debugFileNameOffset := s.ReadU32()

	// The pointer is virtual; subtracting the base address makes it an
	// offset into the image.
	s.Seek(int64(debugFileNameOffset) - int64(baseAddress))
	debugFileName := s.ReadCString()

	s.name = strings.Split(debugFileName, ".exe")[0] + ".xbe"
}
