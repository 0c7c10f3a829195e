// This package supports parsing and walking FATX directory entries.

package fatx

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

const (
	// Every dirent is a fixed, 64-byte record.
	direntBytesCount = 0x40

	// The on-disk filename field is a fixed 42 bytes.
	fatxFileNameLength = 42

	// Values of the name-length byte with special meaning.
	direntNeverUsed  = 0x00
	direntNeverUsed2 = 0xff
	direntDeleted    = 0xe5
)

var (
	direntLogger = log.NewLogger("fatx.dirent")
)

// FileAttributes is the dirent attribute bitmask.
type FileAttributes uint8

const (
	AttributeReadOnly  FileAttributes = 0x01
	AttributeHidden    FileAttributes = 0x02
	AttributeSystem    FileAttributes = 0x04
	AttributeDirectory FileAttributes = 0x10
	AttributeArchive   FileAttributes = 0x20

	// ValidAttributesMask is the union of every attribute bit the format
	// defines. Any other bit set in a dirent marks it as garbage.
	ValidAttributesMask = AttributeReadOnly | AttributeHidden | AttributeSystem | AttributeDirectory | AttributeArchive
)

func (fa FileAttributes) IsReadOnly() bool {
	return fa&AttributeReadOnly > 0
}

func (fa FileAttributes) IsHidden() bool {
	return fa&AttributeHidden > 0
}

func (fa FileAttributes) IsSystem() bool {
	return fa&AttributeSystem > 0
}

func (fa FileAttributes) IsDirectory() bool {
	return fa&AttributeDirectory > 0
}

func (fa FileAttributes) IsArchive() bool {
	return fa&AttributeArchive > 0
}

func (fa FileAttributes) String() string {
	parts := make([]string, 0)

	if fa.IsReadOnly() == true {
		parts = append(parts, "READONLY")
	}

	if fa.IsHidden() == true {
		parts = append(parts, "HIDDEN")
	}

	if fa.IsSystem() == true {
		parts = append(parts, "SYSTEM")
	}

	if fa.IsDirectory() == true {
		parts = append(parts, "DIRECTORY")
	}

	if fa.IsArchive() == true {
		parts = append(parts, "ARCHIVE")
	}

	return strings.Join(parts, " ")
}

// direntRaw is the exact on-disk layout of one directory entry.
type direntRaw struct {
	FileNameLength uint8
	FileAttributes uint8
	FileNameBytes  [fatxFileNameLength]byte
	FirstCluster   uint32
	FileSize       uint32
	CreationTime   uint32
	LastWriteTime  uint32
	LastAccessTime uint32
}

// Dirent is one parsed directory entry, either a file or a directory.
type Dirent struct {
	FileNameLength uint8
	FileAttributes FileAttributes
	FileNameBytes  []byte
	FirstCluster   uint32
	FileSize       uint32

	// FileName is the display name decoded from the cp437 name bytes.
	FileName string

	// The timestamps are nil on never-used records.
	CreationTime   *FatXTimestamp
	LastWriteTime  *FatXTimestamp
	LastAccessTime *FatXTimestamp

	volume   *FatXVolume
	parent   *Dirent
	children []*Dirent
}

// newDirent unpacks one 64-byte dirent record.
func newDirent(data []byte, volume *FatXVolume) (dirent *Dirent, err error) {
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

	raw := direntRaw{}

	err = restruct.Unpack(data, volume.ByteOrder(), &raw)
	log.PanicIf(err)

	dirent = &Dirent{
		FileNameLength: raw.FileNameLength,
		FileAttributes: FileAttributes(raw.FileAttributes),
		FileNameBytes:  raw.FileNameBytes[:],
		FirstCluster:   raw.FirstCluster,
		FileSize:       raw.FileSize,

		volume:   volume,
		children: make([]*Dirent, 0),
	}

	// Never-used records mark the end of a directory stream. There is nothing
	// further to decode.
	if dirent.IsEndOfStream() == true {
		return dirent, nil
	}

	creationTime := volume.newTimestamp(raw.CreationTime)
	lastWriteTime := volume.newTimestamp(raw.LastWriteTime)
	lastAccessTime := volume.newTimestamp(raw.LastAccessTime)

	dirent.CreationTime = &creationTime
	dirent.LastWriteTime = &lastWriteTime
	dirent.LastAccessTime = &lastAccessTime

	// Deleted records lose their name-length byte; the name runs up to the
	// first padding byte instead.
	if dirent.FileNameLength == direntDeleted {
		nameBytes := dirent.FileNameBytes
		if i := bytes.IndexByte(nameBytes, direntNeverUsed2); i >= 0 {
			nameBytes = nameBytes[:i]
		}

		dirent.FileName = DecodeCp437(nameBytes)
	} else {
		nameLength := int(dirent.FileNameLength)
		if nameLength > fatxFileNameLength {
			nameLength = fatxFileNameLength
		}

		dirent.FileName = DecodeCp437(dirent.FileNameBytes[:nameLength])
	}

	return dirent, nil
}

// newDirentFromCursor reads one dirent at the current cursor position.
func newDirentFromCursor(volume *FatXVolume) (dirent *Dirent, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	raw := make([]byte, direntBytesCount)

	_, err = io.ReadFull(volume.rs, raw)
	log.PanicIf(err)

	dirent, err = newDirent(raw, volume)
	log.PanicIf(err)

	return dirent, nil
}

// IsEndOfStream returns whether this record marks the end of its directory
// stream.
func (dirent *Dirent) IsEndOfStream() bool {
	return dirent.FileNameLength == direntNeverUsed || dirent.FileNameLength == direntNeverUsed2
}

// IsDeleted returns whether this record describes a deleted entry.
func (dirent *Dirent) IsDeleted() bool {
	return dirent.FileNameLength == direntDeleted
}

func (dirent *Dirent) IsDirectory() bool {
	return dirent.FileAttributes.IsDirectory()
}

func (dirent *Dirent) IsFile() bool {
	return dirent.FileAttributes.IsDirectory() == false
}

func (dirent *Dirent) HasParent() bool {
	return dirent.parent != nil
}

func (dirent *Dirent) Parent() *Dirent {
	return dirent.parent
}

func (dirent *Dirent) Children() []*Dirent {
	return dirent.children
}

// AddChild attaches a child entry to this directory.
func (dirent *Dirent) AddChild(child *Dirent) {
	if dirent.IsDirectory() == false {
		log.Panicf("only directories can have children: [%s]", dirent.FileName)
	}

	child.parent = dirent
	dirent.children = append(dirent.children, child)
}

// addDirentStream attaches one whole directory stream to this directory.
func (dirent *Dirent) addDirentStream(stream []*Dirent) {
	if dirent.IsDirectory() == false {
		log.Panicf("dirent is not a directory: [%s]", dirent.FileName)
	}

	for _, child := range stream {
		child.parent = dirent
		dirent.children = append(dirent.children, child)
	}
}

// Path returns the path of the directory containing this entry, excluding
// the entry's own name.
func (dirent *Dirent) Path() string {
	ancestry := make([]string, 0)

	for parent := dirent.parent; parent != nil; parent = parent.parent {
		ancestry = append([]string{parent.FileName}, ancestry...)
	}

	return strings.Join(ancestry, "/")
}

// FullPath returns the path of this entry, including its own name.
func (dirent *Dirent) FullPath() string {
	return dirent.Path() + "/" + dirent.FileName
}

// Recover conventionally extracts this entry under the given path by
// following the file allocation table. Deleted entries are skipped unless
// `undelete` is set.
func (dirent *Dirent) Recover(path string, undelete bool) {
	if dirent.IsDeleted() == true && undelete == false {
		return
	}

	wholePath := path + "/" + dirent.FileName

	direntLogger.Infof(nil, "Recovering: [%s]", wholePath)

	if dirent.IsDirectory() == true {
		if err := os.MkdirAll(wholePath, 0755); err != nil {
			direntLogger.Errorf(nil, err, "Failed to create directory: [%s]", wholePath)
			return
		}

		for _, child := range dirent.children {
			child.Recover(wholePath, undelete)
		}
	} else {
		if err := dirent.writeFile(wholePath); err != nil {
			direntLogger.Errorf(nil, err, "Failed to create file: [%s]", wholePath)
		}
	}

	if err := dirent.applyTimestamps(wholePath); err != nil {
		direntLogger.Errorf(nil, err, "Failed to set timestamps: [%s]", wholePath)
	}
}

// writeFile copies this file's content cluster by cluster, following the FAT
// chain.
func (dirent *Dirent) writeFile(path string) (err error) {
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

	fv := dirent.volume

	reservedIndexes := uint32(0xfffffff0)
	if fv.fat16x == true {
		reservedIndexes = 0xfff0
	}

	f, err := os.Create(path)
	log.PanicIf(err)

	defer f.Close()

	remaining := int64(dirent.FileSize)
	cluster := dirent.FirstCluster

	for remaining > 0 && cluster < reservedIndexes {
		if int(cluster) >= len(fv.fat) {
			log.Panicf("cluster chain escapes FAT bounds: (%d)", cluster)
		}

		data, err := fv.ReadCluster(cluster)
		log.PanicIf(err)

		writeLength := remaining
		if writeLength > int64(len(data)) {
			writeLength = int64(len(data))
		}

		_, err = f.Write(data[:writeLength])
		log.PanicIf(err)

		remaining -= writeLength
		cluster = fv.fat[cluster]
	}

	return nil
}

// applyTimestamps applies this entry's stored timestamps to the extracted
// filesystem object. Creation time is not portable and is not applied.
func (dirent *Dirent) applyTimestamps(path string) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if dirent.LastAccessTime == nil || dirent.LastWriteTime == nil {
		return nil
	}

	err = os.Chtimes(path, dirent.LastAccessTime.Timestamp(), dirent.LastWriteTime.Timestamp())
	log.PanicIf(err)

	return nil
}

// PrintDirent prints this entry and, recursively, its children.
func (dirent *Dirent) PrintDirent(rootPath string) {
	wholePath := rootPath + "/" + dirent.FileName

	prefix := "FILE "
	if dirent.IsDeleted() == true {
		prefix = "DEL  "
	} else if dirent.IsDirectory() == true {
		prefix = "DIR  "
	}

	fmt.Printf("%s%s\n", prefix, wholePath)

	if dirent.IsDirectory() == true && dirent.IsDeleted() == false {
		for _, child := range dirent.children {
			child.PrintDirent(wholePath)
		}
	}
}

// Dump prints all of the parsed dirent fields.
func (dirent *Dirent) Dump() {
	printAligned := func(header string, value interface{}) {
		fmt.Printf("%-26s %v\n", header, value)
	}

	printAligned("FileNameLength:", dirent.FileNameLength)
	printAligned("FileName:", dirent.FileName)
	printAligned("FileSize:", fmt.Sprintf("0x%x bytes", dirent.FileSize))
	printAligned("FileAttributes:", dirent.FileAttributes)
	printAligned("FirstCluster:", dirent.FirstCluster)
	printAligned("CreationTime:", dirent.CreationTime)
	printAligned("LastWriteTime:", dirent.LastWriteTime)
	printAligned("LastAccessTime:", dirent.LastAccessTime)
}

func (dirent *Dirent) String() string {
	return fmt.Sprintf("Dirent<NAME=[%s] IS-DIRECTORY=[%v] FIRST-CLUSTER=(%d) SIZE=(%d)>", dirent.FileName, dirent.IsDirectory(), dirent.FirstCluster, dirent.FileSize)
}
