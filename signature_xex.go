package fatx

import (
	"bytes"
)

const (
	// xexFileNameXid identifies the original-PE-name optional header.
	xexFileNameXid = 0x000183ff
)

var (
	xexMagic = []byte{'X', 'E', 'X', '2'}
)

// XEXSignature detects XEX2 executable images.
type XEXSignature struct {
	SignatureBase
}

func init() {
	RegisterSignature("XEXSignature", NewXEXSignature)
}

// NewXEXSignature returns an XEX2 detector anchored at the given offset.
func NewXEXSignature(offset int64, volume *FatXVolume) Signature {
	return &XEXSignature{
		SignatureBase: NewSignatureBase("XEXSignature", offset, volume),
	}
}

func (s *XEXSignature) Test() bool {
	return bytes.Equal(s.Read(4), xexMagic)
}

// Parse reads the image size out of the security info and scans the
// optional-header directory for the original file name.
func (s *XEXSignature) Parse() {
	s.Seek(0x10)
	securityOffset := s.ReadU32()
	headerCount := s.ReadU32()

	var fileNameOffset uint32
	for i := uint32(0); i < headerCount; i++ {
		xid := s.ReadU32()
		value := s.ReadU32()

		if xid == xexFileNameXid {
			fileNameOffset = value
		}
	}

	s.Seek(int64(securityOffset) + 0x4)
	s.length = s.ReadU32()

	if fileNameOffset != 0 {
		s.Seek(int64(fileNameOffset) + 0x4)
		s.name = s.ReadCString()
	}
}
