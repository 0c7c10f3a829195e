package fatx

import (
	"bytes"
	"io/ioutil"
	"os"
	"path"
	"testing"

	"encoding/binary"
)

var (
	testSignatureMagic = []byte{'T', 'S', 'I', 'G'}
)

// TESTSignature matches a synthetic magic planted by the tests. Parse claims
// a fixed sixteen bytes.
type TESTSignature struct {
	SignatureBase
}

func init() {
	RegisterSignature("TESTSignature", NewTESTSignature)
}

func NewTESTSignature(offset int64, volume *FatXVolume) Signature {
	return &TESTSignature{
		SignatureBase: NewSignatureBase("TESTSignature", offset, volume),
	}
}

func (s *TESTSignature) Test() bool {
	return bytes.Equal(s.Read(4), testSignatureMagic)
}

func (s *TESTSignature) Parse() {
	s.length = 16
}

func TestSignatureBase_UnimplementedTestPanics(t *testing.T) {
	ti := newTestImage()
	fv := ti.volume(t)

	sb := NewSignatureBase("NoSignature", 0, fv)

	defer func() {
		if recover() == nil {
			t.Fatalf("Test on the base type should panic.")
		}
	}()

	sb.Test()
}

func TestSignatureBase_Reads(t *testing.T) {
	ti := newTestImage()

	payload := make([]byte, 0x20)
	binary.LittleEndian.PutUint16(payload[0x0:], 0x1122)
	binary.LittleEndian.PutUint32(payload[0x2:], 0x33445566)
	binary.BigEndian.PutUint32(payload[0x6:], 0x778899aa)
	copy(payload[0xa:], "NAME\x00")

	ti.writeFileArea(0x1000, payload)

	fv := ti.volume(t)

	sb := NewSignatureBase("TESTSignature", 0x1000, fv)

	sb.Seek(0)
	if sb.ReadU16() != 0x1122 {
		t.Fatalf("U16 not read correctly.")
	}

	sb.Seek(0x2)
	if sb.ReadU32() != 0x33445566 {
		t.Fatalf("U32 not read correctly.")
	}

	sb.SetEndian(binary.BigEndian)

	sb.Seek(0x6)
	if sb.ReadU32() != 0x778899aa {
		t.Fatalf("Big-endian U32 not read correctly.")
	}

	sb.Seek(0xa)
	if sb.ReadCString() != "NAME" {
		t.Fatalf("C-string not read correctly.")
	}
}

func TestSignatureBase_Recover(t *testing.T) {
	ti := newTestImage()

	payload := append(append([]byte{}, testSignatureMagic...), bytes.Repeat([]byte{0x77}, 12)...)
	ti.writeFileArea(0x1000, payload)

	fv := ti.volume(t)

	ResetSignatureNaming()

	s := NewTESTSignature(0x1000, fv)

	fv.SeekFileArea(0x1000, os.SEEK_SET)
	if s.Test() == false {
		t.Fatalf("Planted magic not detected.")
	}

	fv.SeekFileArea(0x1000, os.SEEK_SET)
	s.Parse()

	if s.Length() != 16 {
		t.Fatalf("Parsed length not correct: (%d)", s.Length())
	}

	outPath, err := ioutil.TempDir("", "fatxtest")
	if err != nil {
		t.Fatalf("Could not create temporary path: %s", err.Error())
	}

	defer os.RemoveAll(outPath)

	if err := s.Recover(outPath); err != nil {
		t.Fatalf("Could not recover signature: %s", err.Error())
	}

	recovered, err := ioutil.ReadFile(path.Join(outPath, "testsignature1"))
	if err != nil {
		t.Fatalf("Could not read recovered file: %s", err.Error())
	}

	if bytes.Equal(recovered, payload) == false {
		t.Fatalf("Recovered content not correct.")
	}
}

func TestSignatureBase_Recover_UnknownLength(t *testing.T) {
	ti := newTestImage()
	fv := ti.volume(t)

	ResetSignatureNaming()

	s := &TESTSignature{
		SignatureBase: NewSignatureBase("TESTSignature", 0x1000, fv),
	}

	s.length = SignatureLengthUnknown

	outPath, err := ioutil.TempDir("", "fatxtest")
	if err != nil {
		t.Fatalf("Could not create temporary path: %s", err.Error())
	}

	defer os.RemoveAll(outPath)

	if err := s.Recover(outPath); err != nil {
		t.Fatalf("Could not recover signature: %s", err.Error())
	}

	fi, err := os.Stat(path.Join(outPath, "testsignature1"))
	if err != nil {
		t.Fatalf("Recovered file not created: %s", err.Error())
	}

	if fi.Size() != 0 {
		t.Fatalf("Unknown length should produce an empty file: (%d)", fi.Size())
	}
}
