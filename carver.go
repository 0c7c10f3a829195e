// This file implements the signature-scan driver: it slides every registered
// signature type across the volume's file area at a fixed interval and
// collects the hits, independent of any directory metadata.

package fatx

import (
	"os"

	"github.com/dsoprea/go-logging"
)

var (
	carverLogger = log.NewLogger("fatx.carver")
)

// FatXCarver scans one volume for file signatures.
type FatXCarver struct {
	volume *FatXVolume

	found []Signature
}

// NewFatXCarver returns a carver for the given volume.
func NewFatXCarver(volume *FatXVolume) *FatXCarver {
	return &FatXCarver{
		volume: volume,
		found:  make([]Signature, 0),
	}
}

// FoundSignatures returns every signature matched by the last scan, in offset
// order.
func (fc *FatXCarver) FoundSignatures() []Signature {
	return fc.found
}

// ScanSignatures tests every registered signature type at every interval-
// aligned offset of the file area. The interval must be one byte, one sector,
// one page, or one typical cluster. A zero length, or one past the end of the
// volume, scans the whole volume. A final partial interval is not visited.
func (fc *FatXCarver) ScanSignatures(interval int64, length int64) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if interval != 1 && interval != fatxSectorSize && interval != fatxPageSize && interval != 0x4000 {
		log.Panicf("scan interval not supported: (0x%x)", interval)
	}

	if length == 0 || length > fc.volume.Length() {
		length = fc.volume.Length()
	}

	fc.found = make([]Signature, 0)
	ResetSignatureNaming()

	intervalCount := length / interval

	for i := int64(0); i < intervalCount; i++ {
		fc.scanOffset(i * interval)
	}

	return nil
}

// scanOffset runs every registered signature against one offset. Reads near
// the end of the volume can run short; that fault is contained here so the
// scan continues with the next offset.
func (fc *FatXCarver) scanOffset(offset int64) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err := errRaw.(error)
			carverLogger.Warningf(nil, "Scan at offset (0x%x) failed: [%s]", offset, err.Error())
		}
	}()

	for _, rs := range RegisteredSignatures() {
		s := rs.Factory(offset, fc.volume)

		err := fc.volume.SeekFileArea(offset, os.SEEK_SET)
		log.PanicIf(err)

		if s.Test() == false {
			continue
		}

		err = fc.volume.SeekFileArea(offset, os.SEEK_SET)
		log.PanicIf(err)

		s.Parse()

		carverLogger.Infof(nil, "Found: %s", s.String())

		fc.found = append(fc.found, s)
	}
}

// RecoverAll extracts every found signature into the given path. A zero or
// unknown length produces an empty file. A failed extraction is logged and
// the remaining signatures are still attempted.
func (fc *FatXCarver) RecoverAll(path string) {
	for _, s := range fc.found {
		err := s.Recover(path)
		if err != nil {
			carverLogger.Errorf(nil, err, "Could not recover [%s]: [%s]", s.FileName(), err.Error())
		}
	}
}
