package fatx

import (
	"bytes"

	"encoding/binary"
)

var (
	pdbMagic = []byte("Microsoft C/C++ MSF 7.00\r\n\x1aDS\x00\x00\x00")
)

// PDBSignature detects Microsoft program-database (debug symbol) files.
type PDBSignature struct {
	SignatureBase
}

func init() {
	RegisterSignature("PDBSignature", NewPDBSignature)
}

// NewPDBSignature returns a PDB detector anchored at the given offset.
func NewPDBSignature(offset int64, volume *FatXVolume) Signature {
	return &PDBSignature{
		SignatureBase: NewSignatureBase("PDBSignature", offset, volume),
	}
}

func (s *PDBSignature) Test() bool {
	return bytes.Equal(s.Read(0x20), pdbMagic)
}

// Parse computes the file size from the MSF superblock. MSF is always
// little-endian, regardless of the volume's byte order.
func (s *PDBSignature) Parse() {
	s.SetEndian(binary.LittleEndian)

	s.Seek(0x20)
	blockSize := s.ReadU32()

	s.Seek(0x28)
	blockCount := s.ReadU32()

	s.length = blockSize * blockCount
}
