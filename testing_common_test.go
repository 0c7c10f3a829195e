package fatx

import (
	"bytes"
	"testing"

	"encoding/binary"
)

const (
	// The synthetic image: one sector per cluster and a small volume, which
	// produces a 16-bit FAT at 0x1000 and a file area at 0x2000.
	testImageSize           = 0x20000
	testSectorsPerCluster   = 1
	testBytesPerCluster     = testSectorsPerCluster * fatxSectorSize
	testRootDirFirstCluster = 1

	testFatOffset      = fatxReservedBytes
	testFileAreaOffset = 0x2000
)

// testImage builds a synthetic little-endian FATX image in memory.
type testImage struct {
	data []byte
}

func newTestImage() *testImage {
	return newTestImageSized(testImageSize)
}

// newTestImageSized builds an image of an arbitrary size. The FAT location
// and width stay fixed but the file-area offset moves with the FAT size, so
// derive cluster offsets from the mounted volume rather than the constants.
func newTestImageSized(size int64) *testImage {
	ti := &testImage{
		data: make([]byte, size),
	}

	binary.LittleEndian.PutUint32(ti.data[0x0:], fatxSignatureValue)
	binary.LittleEndian.PutUint32(ti.data[0x4:], 0xdeadbeef)
	binary.LittleEndian.PutUint32(ti.data[0x8:], testSectorsPerCluster)
	binary.LittleEndian.PutUint32(ti.data[0xc:], testRootDirFirstCluster)

	return ti
}

func (ti *testImage) setFatEntry(cluster uint32, value uint16) {
	binary.LittleEndian.PutUint16(ti.data[testFatOffset+int64(cluster)*2:], value)
}

func (ti *testImage) clusterOffset(cluster uint32) int64 {
	return testFileAreaOffset + int64(cluster-1)*testBytesPerCluster
}

func (ti *testImage) writeCluster(cluster uint32, data []byte) {
	copy(ti.data[ti.clusterOffset(cluster):], data)
}

func (ti *testImage) writeFileArea(offset int64, data []byte) {
	copy(ti.data[testFileAreaOffset+offset:], data)
}

func (ti *testImage) volume(t *testing.T) *FatXVolume {
	r := bytes.NewReader(ti.data)

	fv := NewFatXVolume(r, "test", 0, int64(len(ti.data)), binary.LittleEndian)

	err := fv.Mount()
	if err != nil {
		t.Fatalf("could not mount test volume: %s", err.Error())
	}

	return fv
}

// packTestTimestamp packs calendar components the way the on-disk timestamp
// stores them, relative to the little-endian epoch of 2000.
func packTestTimestamp(year, month, day, hour, minute, second int) uint32 {
	return uint32(year-xTimestampEpoch)<<25 |
		uint32(month)<<21 |
		uint32(day)<<16 |
		uint32(hour)<<11 |
		uint32(minute)<<5 |
		uint32(second/2)
}

// makeTestDirent assembles one 64-byte directory entry. The name field tail
// is padded with 0xff the way a real volume stores it.
func makeTestDirent(nameLength uint8, attributes FileAttributes, name string, firstCluster, fileSize, timestamp uint32) []byte {
	data := make([]byte, direntBytesCount)

	data[0] = nameLength
	data[1] = uint8(attributes)

	raw, ok := encodeCp437(name)
	if ok == false {
		panic("test name not encodable as cp437")
	}

	for i := 0; i < fatxFileNameLength; i++ {
		if i < len(raw) {
			data[2+i] = raw[i]
		} else {
			data[2+i] = direntNeverUsed2
		}
	}

	binary.LittleEndian.PutUint32(data[0x2c:], firstCluster)
	binary.LittleEndian.PutUint32(data[0x30:], fileSize)
	binary.LittleEndian.PutUint32(data[0x34:], timestamp)
	binary.LittleEndian.PutUint32(data[0x38:], timestamp)
	binary.LittleEndian.PutUint32(data[0x3c:], timestamp)

	return data
}
