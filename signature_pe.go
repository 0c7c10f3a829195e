package fatx

import (
	"bytes"

	"encoding/binary"
)

const (
	peHeaderSignature = 0x00004550
)

var (
	mzMagic = []byte{'M', 'Z', 0x90, 0x00}
)

// PESignature detects portable-executable images.
type PESignature struct {
	SignatureBase
}

func init() {
	RegisterSignature("PESignature", NewPESignature)
}

// NewPESignature returns a PE detector anchored at the given offset.
func NewPESignature(offset int64, volume *FatXVolume) Signature {
	return &PESignature{
		SignatureBase: NewSignatureBase("PESignature", offset, volume),
	}
}

func (s *PESignature) Test() bool {
	return bytes.Equal(s.Read(4), mzMagic)
}

// Parse walks from the DOS header to the section table and takes the end of
// the last section as the file length. PE structures are little-endian
// regardless of the volume's byte order. If the PE header signature is
// missing, the length stays zero: detected but not extracted.
func (s *PESignature) Parse() {
	s.SetEndian(binary.LittleEndian)

	s.Seek(0x3c)
	lfanew := int64(s.ReadU32())

	s.Seek(lfanew)
	if s.ReadU32() != peHeaderSignature {
		return
	}

	s.Seek(lfanew + 0x6)
	sectionCount := s.ReadU16()

	lastSectionOffset := lfanew + 0xf8 + int64(sectionCount-1)*0x28

	s.Seek(lastSectionOffset + 0x10)
	sectionLength := s.ReadU32()

	s.Seek(lastSectionOffset + 0x14)
	sectionOffset := s.ReadU32()

	s.length = sectionOffset + sectionLength
}
