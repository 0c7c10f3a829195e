// This package defines the contract that byte-pattern file signatures
// implement so that recognizable file formats can be carved out of raw
// volume bytes, independent of any filesystem metadata.

package fatx

import (
	"fmt"
	"io"
	"math"
	"os"

	"encoding/binary"

	"github.com/dsoprea/go-logging"
)

const (
	// SignatureLengthUnknown marks a detected file whose length could not be
	// determined. Nothing is extracted for it.
	SignatureLengthUnknown = uint32(0xffffffff)
)

var (
	signatureLogger = log.NewLogger("fatx.signature")
)

// Signature is one file-format detector instantiated at one candidate offset
// of one volume. Test reports whether the offset plausibly begins this
// format; Parse, called only after a successful Test, reads further
// structure to determine the extraction length and, when possible, a name.
type Signature interface {
	Test() bool
	Parse()
	Recover(path string) error
	FileName() string
	Offset() int64
	Length() uint32
	Name() string
	String() string
}

// SignatureBase carries the state and read primitives shared by every
// concrete signature. Concrete types embed it and override Test and Parse;
// invoking either on the base itself is an implementer error and panics.
type SignatureBase struct {
	typeName string
	offset   int64
	volume   *FatXVolume

	byteOrder binary.ByteOrder

	length uint32
	name   string
}

// NewSignatureBase returns a base anchored at `offset` within the volume's
// file area, initialized to the volume's native byte order.
func NewSignatureBase(typeName string, offset int64, volume *FatXVolume) SignatureBase {
	return SignatureBase{
		typeName: typeName,
		offset:   offset,
		volume:   volume,

		byteOrder: volume.ByteOrder(),
	}
}

// Test panics: concrete signature types must override it.
func (sb *SignatureBase) Test() bool {
	log.Panicf("signature test not implemented: [%s]", sb.typeName)
	return false
}

// Parse panics: concrete signature types must override it.
func (sb *SignatureBase) Parse() {
	log.Panicf("signature parsing not implemented: [%s]", sb.typeName)
}

// Offset returns the file-area offset this signature was instantiated at.
func (sb *SignatureBase) Offset() int64 {
	return sb.offset
}

// Length returns the number of bytes Parse determined should be extracted
// (zero means "detected but not extracted").
func (sb *SignatureBase) Length() uint32 {
	return sb.length
}

// Name returns the name recovered by Parse, or an empty string.
func (sb *SignatureBase) Name() string {
	return sb.name
}

// SetEndian switches the working byte order. Formats may mix byte orders
// within one structure, so Parse may call this mid-stream.
func (sb *SignatureBase) SetEndian(byteOrder binary.ByteOrder) {
	sb.byteOrder = byteOrder
}

// Seek positions the shared volume cursor relative to where this signature
// was instantiated.
func (sb *SignatureBase) Seek(offset int64) {
	err := sb.volume.SeekFileArea(sb.offset+offset, os.SEEK_SET)
	log.PanicIf(err)
}

// Read reads from the current cursor position.
func (sb *SignatureBase) Read(size int) []byte {
	data := make([]byte, size)

	_, err := io.ReadFull(sb.volume.rs, data)
	log.PanicIf(err)

	return data
}

// ReadU8 reads a single byte.
func (sb *SignatureBase) ReadU8() uint8 {
	return sb.Read(1)[0]
}

// ReadU16 reads one unsigned 16-bit integer in the working byte order.
func (sb *SignatureBase) ReadU16() uint16 {
	return sb.byteOrder.Uint16(sb.Read(2))
}

// ReadU32 reads one unsigned 32-bit integer in the working byte order.
func (sb *SignatureBase) ReadU32() uint32 {
	return sb.byteOrder.Uint32(sb.Read(4))
}

// ReadU64 reads one unsigned 64-bit integer in the working byte order.
func (sb *SignatureBase) ReadU64() uint64 {
	return sb.byteOrder.Uint64(sb.Read(8))
}

// ReadFloat reads one 32-bit float in the working byte order.
func (sb *SignatureBase) ReadFloat() float32 {
	return math.Float32frombits(sb.ReadU32())
}

// ReadDouble reads one 64-bit float in the working byte order.
func (sb *SignatureBase) ReadDouble() float64 {
	return math.Float64frombits(sb.ReadU64())
}

// ReadCString reads a null-terminated cp437 string from the current cursor
// position.
func (sb *SignatureBase) ReadCString() string {
	raw := make([]byte, 0)

	for {
		b := sb.ReadU8()
		if b == 0 {
			break
		}

		raw = append(raw, b)
	}

	return DecodeCp437(raw)
}

// FileName returns the recovered file name, or deterministically generates
// one from the lowercased type name and a per-type counter.
func (sb *SignatureBase) FileName() string {
	if sb.name == "" {
		sb.name = generateSignatureName(sb.typeName)
	}

	return sb.name
}

// Recover extracts up to Length bytes starting at this signature's offset
// into a file under the given path. A zero or unknown length produces an
// empty file rather than an unbounded read.
func (sb *SignatureBase) Recover(path string) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	wholePath := path + "/" + sb.FileName()

	signatureLogger.Infof(nil, "Recovering: [%s]", wholePath)

	f, err := os.Create(wholePath)
	log.PanicIf(err)

	defer f.Close()

	if sb.length != 0 && sb.length != SignatureLengthUnknown {
		sb.Seek(0)

		_, err = io.CopyN(f, sb.volume.rs, int64(sb.length))
		log.PanicIf(err)
	}

	return nil
}

func (sb *SignatureBase) String() string {
	return fmt.Sprintf("%s<OFFSET=(0x%x) LENGTH=(0x%x)>", sb.typeName, sb.offset, sb.length)
}
