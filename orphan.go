// This package supports validating and rescuing directory entries recovered
// by raw scanning, where neither the directory tree nor the file allocation
// table can be trusted.

package fatx

import (
	"io"
	"os"
	"reflect"
	"time"

	"github.com/dsoprea/go-logging"
)

const (
	// Rescued file content is copied in fixed-size chunks so memory stays
	// bounded no matter the recorded file size.
	rescueChunkSize = 0x100000
)

const (
	// validCharsCommon is legal for both FATX and legacy FAT short names.
	validCharsCommon = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!#$%&'()-@[]^_`{}~ "

	// validCharsFatxOnly is legal for FATX but disallowed in legacy FAT
	// short names.
	validCharsFatxOnly = "abcdefghijklmnopqrstuvwxyz.[]"

	// validCharsExtended covers cp437 codepage bytes 0x80 through 0xe4 and
	// 0xe6 through 0xfe, documented as valid by format reverse-engineering.
	validCharsExtended = "ÇüéâäàåçêëèïîìÄÅÉæÆôöòûùÿÖÜ¢£¥₧ƒáíóúñÑªº¿⌐¬½¼¡«»░▒▓│┤╡╢╖╕╣║╗╝╜╛┐└┴┬├─┼╞╟╚╔╩╦╠═╬╧╨╤╥╙╘╒╓╫╪┘┌█▄▌▐▀αßΓπΣ" +
		"µτΦΘΩδ∞φε∩≡±≥≤⌠⌡÷≈°∙·√ⁿ²■"

	// validCharsUncertain is a small set of bytes (0x9d, 0xe5) whose
	// validity is unclear but which are accepted for compatibility.
	validCharsUncertain = "¥σ"

	// invalidNameChars is the complement set: reserved and wildcard
	// characters that FATX never stores in a name. The validator does not
	// consult it today; it is retained for future tightening.
	invalidNameChars = "+,;=" + "\"*/:<>?\\|" + "\x00 \x7f"
)

var (
	rescueLogger = log.NewLogger("fatx.rescue")
)

var (
	// validNameBytes is the membership table for every byte that may appear
	// in the on-disk filename field, including the 0xff padding byte.
	validNameBytes [256]bool
)

func init() {
	register := func(chars string) {
		raw, ok := encodeCp437(chars)
		if ok == false {
			log.Panicf("valid-character table contains a rune outside cp437")
		}

		for _, b := range raw {
			validNameBytes[b] = true
		}
	}

	register(validCharsCommon)
	register(validCharsFatxOnly)
	register(validCharsExtended)
	register(validCharsUncertain)

	// Unused tails of the fixed name field are padded with 0xff.
	validNameBytes[direntNeverUsed2] = true
}

// Orphan is a directory entry recovered by raw scanning. Its parent linkage
// and allocation chain cannot be assumed, so it carries its own discovered
// location and is rescued by sequential cluster reads rather than by
// following the FAT.
type Orphan struct {
	*Dirent

	cluster uint32
	offset  int64

	parent   *Orphan
	children []*Orphan
}

// NewOrphan parses one candidate 64-byte record discovered by raw scanning.
// The result is untrusted until IsValid approves it.
func NewOrphan(data []byte, volume *FatXVolume) (orphan *Orphan, err error) {
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

	dirent, err := newDirent(data, volume)
	log.PanicIf(err)

	orphan = &Orphan{
		Dirent:   dirent,
		children: make([]*Orphan, 0),
	}

	return orphan, nil
}

// Cluster returns the cluster in which this record was discovered.
func (orphan *Orphan) Cluster() uint32 {
	return orphan.cluster
}

// SetCluster records the cluster in which this record was discovered.
func (orphan *Orphan) SetCluster(cluster uint32) {
	orphan.cluster = cluster
}

// Offset returns the physical offset at which this record was discovered.
func (orphan *Orphan) Offset() int64 {
	return orphan.offset
}

// SetOffset records the physical offset at which this record was discovered.
func (orphan *Orphan) SetOffset(offset int64) {
	orphan.offset = offset
}

func (orphan *Orphan) Parent() *Orphan {
	return orphan.parent
}

func (orphan *Orphan) HasParent() bool {
	return orphan.parent != nil
}

func (orphan *Orphan) SetParent(parent *Orphan) {
	orphan.parent = parent
}

func (orphan *Orphan) Children() []*Orphan {
	return orphan.children
}

// AddChild attaches a child orphan to this directory orphan.
func (orphan *Orphan) AddChild(child *Orphan) {
	if orphan.IsDirectory() == false {
		log.Panicf("only directories can have children: [%s]", orphan.FileName)
	}

	child.parent = orphan
	orphan.children = append(orphan.children, child)
}

// IsValid checks whether this recovered record is plausible: the first
// cluster must be addressable by the volume, every stored name byte must
// belong to the valid character set, the attribute bits must all be known,
// and all three timestamps must be present, constructible calendar values no
// later than the current year.
func (orphan *Orphan) IsValid() bool {
	if orphan.FirstCluster > orphan.volume.MaxClusters() {
		return false
	}

	for _, b := range orphan.FileNameBytes {
		if validNameBytes[b] == false {
			return false
		}
	}

	if orphan.FileAttributes&^ValidAttributesMask != 0 {
		return false
	}

	if isValidTimestamp(orphan.CreationTime) == false ||
		isValidTimestamp(orphan.LastWriteTime) == false ||
		isValidTimestamp(orphan.LastAccessTime) == false {
		return false
	}

	return true
}

// isValidTimestamp returns whether the timestamp is present and describes a
// real calendar value. Only the year is compared against today, so a future
// date within the current year still passes; this boundary is carried over
// from the original tooling.
func isValidTimestamp(ts *FatXTimestamp) bool {
	if ts == nil {
		return false
	}

	if ts.Year() > time.Now().Year() {
		return false
	}

	return ts.IsConstructible()
}

// Rescue writes this entry under the given path without relying on the file
// allocation table: file content is reconstructed by reading clusters
// sequentially from the entry's first cluster. Failures are logged and
// contained so that sibling entries are still rescued.
func (orphan *Orphan) Rescue(path string) {
	wholePath := path + "/" + orphan.FileName

	if err := orphan.volume.SeekToCluster(orphan.FirstCluster); err != nil {
		rescueLogger.Errorf(nil, err, "Failed to seek to cluster (%d): [%s]", orphan.FirstCluster, wholePath)
		return
	}

	rescueLogger.Infof(nil, "Recovering: [%s]", wholePath)

	if orphan.IsDirectory() == true {
		if err := os.MkdirAll(wholePath, 0755); err != nil {
			rescueLogger.Errorf(nil, err, "Failed to create directory: [%s]", wholePath)
			return
		}

		orphan.RescueDir(wholePath)

		for _, child := range orphan.children {
			child.Rescue(wholePath)
		}
	} else {
		// A failure mid-copy leaves the partial file in place.
		if err := orphan.rescueFile(wholePath); err != nil {
			rescueLogger.Errorf(nil, err, "Failed to create file: [%s]", wholePath)
		}
	}

	if err := orphan.applyTimestamps(wholePath); err != nil {
		rescueLogger.Errorf(nil, err, "Failed to set timestamps: [%s]", wholePath)
	}
}

// rescueFile copies exactly FileSize bytes from the current cursor position
// in bounded chunks.
func (orphan *Orphan) rescueFile(path string) (err error) {
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

	f, err := os.Create(path)
	log.PanicIf(err)

	defer f.Close()

	remaining := int64(orphan.FileSize)
	buffer := make([]byte, rescueChunkSize)

	for remaining > 0 {
		readSize := remaining
		if readSize > rescueChunkSize {
			readSize = rescueChunkSize
		}

		_, err = io.ReadFull(orphan.volume.rs, buffer[:readSize])
		log.PanicIf(err)

		_, err = f.Write(buffer[:readSize])
		log.PanicIf(err)

		remaining -= readSize
	}

	return nil
}

// RescueDir is an extension point for directory-specific rescue heuristics
// beyond plain recursive recovery. It has no behavior yet.
func (orphan *Orphan) RescueDir(path string) {
}
