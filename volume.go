// This package manages the low-level, on-disk FATX storage structures.

package fatx

import (
	"fmt"
	"io"
	"os"
	"reflect"

	"encoding/binary"

	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

const (
	// The first page of the volume is reserved for the volume metadata.
	fatxReservedBytes = 0x1000

	fatxSectorSize = 0x200
	fatxPageSize   = 0x1000

	// The signature reads "FATX" on Original Xbox volumes (little-endian) and
	// "XTAF" on Xbox 360 volumes (big-endian). Both unpack to the same value
	// in their respective byte orders.
	fatxSignatureValue = 0x58544146

	volumeMetadataSize = 16
)

var (
	volumeLogger = log.NewLogger("fatx.volume")
)

// VolumeMetadata is the FATX volume header. It is a fixed, sixteen-byte
// structure at the front of the volume.
type VolumeMetadata struct {
	// Signature identifies the volume as FATX-formatted.
	Signature uint32

	// SerialNumber is assigned when the volume is formatted.
	SerialNumber uint32

	// SectorsPerCluster determines the cluster size (sectors are always 512
	// bytes).
	SectorsPerCluster uint32

	// RootDirFirstCluster is the cluster index of the root directory stream.
	RootDirFirstCluster uint32
}

// String returns a description of the volume metadata.
func (vm VolumeMetadata) String() string {
	return fmt.Sprintf("VolumeMetadata<SN=(0x%08x) SECTORS-PER-CLUSTER=(%d) ROOT-DIR-FIRST-CLUSTER=(%d)>", vm.SerialNumber, vm.SectorsPerCluster, vm.RootDirFirstCluster)
}

// FatXVolume knows where to find the statically-located FATX structures and
// how to parse them, and exposes the single shared read cursor that all
// recovery components seek and read through.
type FatXVolume struct {
	rs io.ReadSeeker

	name   string
	offset int64
	length int64

	byteOrder binary.ByteOrder
	tsEpoch   int

	metadata VolumeMetadata

	bytesPerCluster    uint32
	maxClusters        uint32
	fatByteOffset      int64
	fileAreaByteOffset int64
	fat16x             bool

	fat []uint32

	root []*Dirent
}

// NewFatXVolume returns a new FatXVolume instance for a volume located at
// `offset` within the given image, spanning `length` bytes. Original Xbox
// volumes are little-endian and Xbox 360 volumes are big-endian; the
// timestamp epoch follows the byte order (2000 and 1980, respectively).
func NewFatXVolume(rs io.ReadSeeker, name string, offset, length int64, byteOrder binary.ByteOrder) (fv *FatXVolume) {
	tsEpoch := xTimestampEpoch
	if byteOrder == binary.BigEndian {
		tsEpoch = x360TimestampEpoch
	}

	return &FatXVolume{
		rs: rs,

		name:   name,
		offset: offset,
		length: length,

		byteOrder: byteOrder,
		tsEpoch:   tsEpoch,
	}
}

// Name returns the name given to this volume (e.g. "SystemPartition").
func (fv *FatXVolume) Name() string {
	return fv.name
}

// Offset returns the byte offset of this volume within the image.
func (fv *FatXVolume) Offset() int64 {
	return fv.offset
}

// Length returns the length of this volume in bytes.
func (fv *FatXVolume) Length() int64 {
	return fv.length
}

// ByteOrder returns the volume's native byte order.
func (fv *FatXVolume) ByteOrder() binary.ByteOrder {
	return fv.byteOrder
}

// Metadata returns the parsed volume header.
func (fv *FatXVolume) Metadata() VolumeMetadata {
	return fv.metadata
}

// MaxClusters returns the number of clusters this volume can address.
func (fv *FatXVolume) MaxClusters() uint32 {
	return fv.maxClusters
}

// BytesPerCluster returns the size of one cluster in bytes.
func (fv *FatXVolume) BytesPerCluster() uint32 {
	return fv.bytesPerCluster
}

// FileAreaByteOffset returns the volume-relative offset of the file area.
func (fv *FatXVolume) FileAreaByteOffset() int64 {
	return fv.fileAreaByteOffset
}

// Root returns the dirent stream at this volume's root.
func (fv *FatXVolume) Root() []*Dirent {
	return fv.root
}

// newTimestamp wraps a packed timestamp with this volume's year epoch.
func (fv *FatXVolume) newTimestamp(raw uint32) FatXTimestamp {
	return FatXTimestamp{raw: raw, epoch: fv.tsEpoch}
}

// Mount loads the FATX filesystem: the volume header, the calculated
// geometry, the file allocation table, and the conventional directory tree.
func (fv *FatXVolume) Mount() (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(err).Name(), err)
			}
		}
	}()

	volumeLogger.Infof(nil, "Mounting [%s].", fv.name)

	err = fv.readVolumeMetadata()
	log.PanicIf(err)

	fv.calculateOffsets()

	fv.fat, err = fv.readFileAllocationTable()
	log.PanicIf(err)

	fv.root, err = fv.readDirectoryStream(fv.ClusterToPhysicalOffset(fv.metadata.RootDirFirstCluster))
	log.PanicIf(err)

	err = fv.populateDirentStream(fv.root)
	log.PanicIf(err)

	return nil
}

func (fv *FatXVolume) readVolumeMetadata() (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(err).Name(), err)
			}
		}
	}()

	_, err = fv.rs.Seek(fv.offset, os.SEEK_SET)
	log.PanicIf(err)

	raw := make([]byte, volumeMetadataSize)

	_, err = io.ReadFull(fv.rs, raw)
	log.PanicIf(err)

	err = restruct.Unpack(raw, fv.byteOrder, &fv.metadata)
	log.PanicIf(err)

	if fv.metadata.Signature != fatxSignatureValue {
		log.Panicf("volume signature not correct: (0x%08x)", fv.metadata.Signature)
	}

	return nil
}

// calculateOffsets derives the cluster geometry and the locations of the file
// allocation table and the file area from the header and the volume length.
func (fv *FatXVolume) calculateOffsets() {
	fv.bytesPerCluster = fv.metadata.SectorsPerCluster * fatxSectorSize

	// The first FAT entry is reserved, hence the +1.
	fv.maxClusters = uint32(fv.length/int64(fv.bytesPerCluster)) + 1

	var bytesPerFat uint32
	if fv.maxClusters < 0xfff0 {
		bytesPerFat = fv.maxClusters * 2
		fv.fat16x = true
	} else {
		bytesPerFat = fv.maxClusters * 4
		fv.fat16x = false
	}

	// The FAT is padded out to the nearest page.
	bytesPerFat = (bytesPerFat + (fatxPageSize - 1)) &^ (fatxPageSize - 1)

	fv.fatByteOffset = fatxReservedBytes
	fv.fileAreaByteOffset = fv.fatByteOffset + int64(bytesPerFat)
}

func (fv *FatXVolume) readFileAllocationTable() (fat []uint32, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(err).Name(), err)
			}
		}
	}()

	_, err = fv.rs.Seek(fv.offset+fv.fatByteOffset, os.SEEK_SET)
	log.PanicIf(err)

	entryCount := int(fv.maxClusters)

	entryWidth := 4
	if fv.fat16x == true {
		entryWidth = 2
	}

	raw := make([]byte, entryCount*entryWidth)

	_, err = io.ReadFull(fv.rs, raw)
	log.PanicIf(err)

	fat = make([]uint32, entryCount)
	for i := 0; i < entryCount; i++ {
		if fv.fat16x == true {
			fat[i] = uint32(fv.byteOrder.Uint16(raw[i*2:]))
		} else {
			fat[i] = fv.byteOrder.Uint32(raw[i*4:])
		}
	}

	return fat, nil
}

// IsValidCluster returns whether the cluster index is within the bounds of
// the volume.
func (fv *FatXVolume) IsValidCluster(cluster uint32) bool {
	return (cluster - 1) < fv.maxClusters
}

// ByteOffsetToCluster converts a volume-relative byte offset to a cluster
// index.
func (fv *FatXVolume) ByteOffsetToCluster(offset int64) uint32 {
	return uint32(offset/int64(fv.bytesPerCluster)) + 1
}

// ByteOffsetToPhysicalOffset converts a volume-relative byte offset to an
// offset into the image file.
func (fv *FatXVolume) ByteOffsetToPhysicalOffset(offset int64) int64 {
	return fv.offset + offset
}

// ClusterToPhysicalOffset converts a cluster index to an offset into the
// image file.
func (fv *FatXVolume) ClusterToPhysicalOffset(cluster uint32) int64 {
	return fv.offset + fv.fileAreaByteOffset + int64(fv.bytesPerCluster)*int64(cluster-1)
}

// SeekToCluster positions the shared read cursor at the start of the given
// cluster.
func (fv *FatXVolume) SeekToCluster(cluster uint32) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	_, err = fv.rs.Seek(fv.ClusterToPhysicalOffset(cluster), os.SEEK_SET)
	log.PanicIf(err)

	return nil
}

// SeekFileArea positions the shared read cursor relative to the start of the
// file area.
func (fv *FatXVolume) SeekFileArea(offset int64, whence int) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	offset += fv.fileAreaByteOffset + fv.offset

	_, err = fv.rs.Seek(offset, whence)
	log.PanicIf(err)

	return nil
}

// ReadFileArea reads from the current cursor position within the file area.
func (fv *FatXVolume) ReadFileArea(size int) (data []byte, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	data = make([]byte, size)

	_, err = io.ReadFull(fv.rs, data)
	log.PanicIf(err)

	return data, nil
}

// ReadCluster reads one whole cluster. A short read at the tail of the image
// returns the bytes that were available.
func (fv *FatXVolume) ReadCluster(cluster uint32) (data []byte, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	_, err = fv.rs.Seek(fv.ClusterToPhysicalOffset(cluster), os.SEEK_SET)
	log.PanicIf(err)

	data = make([]byte, fv.bytesPerCluster)

	n, err := io.ReadFull(fv.rs, data)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return data[:n], nil
	}

	log.PanicIf(err)

	return data, nil
}

// GetClusterChain walks the file allocation table from the given first
// cluster. A null or out-of-range entry means the chain cannot be trusted, in
// which case only the first cluster is returned.
func (fv *FatXVolume) GetClusterChain(firstCluster uint32) (chain []uint32) {
	reservedIndexes := uint32(0xfffffff0)
	if fv.fat16x == true {
		reservedIndexes = 0xfff0
	}

	chain = []uint32{firstCluster}

	fatEntry := firstCluster
	for {
		if int(fatEntry) >= len(fv.fat) {
			volumeLogger.Warningf(nil, "FAT entry (%d) greater than FAT size (%d).", fatEntry, len(fv.fat))
			return []uint32{firstCluster}
		}

		fatEntry = fv.fat[fatEntry]

		if fatEntry >= reservedIndexes {
			break
		}

		if fatEntry == 0 {
			volumeLogger.Warningf(nil, "Found null FAT entry in chain from cluster (%d).", firstCluster)
			return []uint32{firstCluster}
		}

		chain = append(chain, fatEntry)
	}

	return chain
}

// readDirectoryStream reads and unpacks one cluster's worth of dirents,
// stopping at the end-of-stream marker.
func (fv *FatXVolume) readDirectoryStream(physicalOffset int64) (stream []*Dirent, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(err).Name(), err)
			}
		}
	}()

	_, err = fv.rs.Seek(physicalOffset, os.SEEK_SET)
	log.PanicIf(err)

	stream = make([]*Dirent, 0)

	entryCount := int(fv.bytesPerCluster / direntBytesCount)

	for i := 0; i < entryCount; i++ {
		dirent, err := newDirentFromCursor(fv)
		log.PanicIf(err)

		if dirent.IsEndOfStream() == true {
			break
		}

		stream = append(stream, dirent)
	}

	return stream, nil
}

// populateDirentStream loads the children of every directory in the stream by
// following its FAT chain. Deleted directories are skipped since the streams
// they point to are no longer guaranteed.
func (fv *FatXVolume) populateDirentStream(stream []*Dirent) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(err).Name(), err)
			}
		}
	}()

	for _, dirent := range stream {
		if dirent.IsDirectory() == false || dirent.IsDeleted() == true {
			continue
		}

		chain := fv.GetClusterChain(dirent.FirstCluster)

		for _, cluster := range chain {
			childStream, err := fv.readDirectoryStream(fv.ClusterToPhysicalOffset(cluster))
			log.PanicIf(err)

			dirent.addDirentStream(childStream)

			err = fv.populateDirentStream(childStream)
			log.PanicIf(err)
		}
	}

	return nil
}

// Dump prints the volume header and the calculated geometry.
func (fv *FatXVolume) Dump() {
	fmt.Printf("FATX Volume\n")
	fmt.Printf("===========\n")
	fmt.Printf("\n")

	fmt.Printf("Name: [%s]\n", fv.name)
	fmt.Printf("SerialNumber: (0x%08x)\n", fv.metadata.SerialNumber)
	fmt.Printf("SectorsPerCluster: (%d) (0x%x bytes)\n", fv.metadata.SectorsPerCluster, fv.bytesPerCluster)
	fmt.Printf("RootDirFirstCluster: (%d)\n", fv.metadata.RootDirFirstCluster)
	fmt.Printf("\n")

	fmt.Printf("Calculated Offsets:\n")
	fmt.Printf("PartitionOffset: (0x%x)\n", fv.offset)
	fmt.Printf("MaxClusters: (0x%x)\n", fv.maxClusters)
	fmt.Printf("FatByteOffset: (0x%x) (+0x%x)\n", fv.ByteOffsetToPhysicalOffset(fv.fatByteOffset), fv.fatByteOffset)
	fmt.Printf("FileAreaByteOffset: (0x%x) (+0x%x)\n", fv.ByteOffsetToPhysicalOffset(fv.fileAreaByteOffset), fv.fileAreaByteOffset)
	fmt.Printf("\n")
}
