// This file implements the metadata-scan driver: it sweeps every cluster of
// the volume for plausible directory-entry records, validates them, rebuilds
// parent/child linkage from cluster chains, and rescues the surviving trees.

package fatx

import (
	"io"

	"encoding/json"

	"github.com/dsoprea/go-logging"
)

var (
	analyzerLogger = log.NewLogger("fatx.analyzer")
)

// FatXAnalyzer scans one volume for orphaned directory entries.
type FatXAnalyzer struct {
	volume *FatXVolume

	orphanage []*Orphan
	roots     []*Orphan
}

// NewFatXAnalyzer returns an analyzer for the given volume.
func NewFatXAnalyzer(volume *FatXVolume) *FatXAnalyzer {
	return &FatXAnalyzer{
		volume:    volume,
		orphanage: make([]*Orphan, 0),
		roots:     make([]*Orphan, 0),
	}
}

// Orphanage returns every valid orphan found by the last scan, in discovery
// order.
func (fa *FatXAnalyzer) Orphanage() []*Orphan {
	return fa.orphanage
}

// Roots returns the orphans that no other orphan claims as a child. Only
// valid after LinkOrphans.
func (fa *FatXAnalyzer) Roots() []*Orphan {
	return fa.roots
}

// ScanOrphans sweeps clusters for records that survive validation. A zero
// maxClusters, or one past the end of the volume, scans every cluster. An
// unreadable cluster is logged and skipped.
func (fa *FatXAnalyzer) ScanOrphans(maxClusters uint32) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if maxClusters == 0 || maxClusters > fa.volume.MaxClusters() {
		maxClusters = fa.volume.MaxClusters()
	}

	fa.orphanage = make([]*Orphan, 0)

	entryCount := int(fa.volume.BytesPerCluster() / direntBytesCount)

	for cluster := uint32(1); cluster < maxClusters; cluster++ {
		data, err := fa.volume.ReadCluster(cluster)
		if err != nil {
			analyzerLogger.Warningf(nil, "Could not read cluster (%d): [%s]", cluster, err.Error())
			continue
		}

		if len(data) < direntBytesCount {
			continue
		}

		clusterEntryCount := len(data) / direntBytesCount
		if clusterEntryCount > entryCount {
			clusterEntryCount = entryCount
		}

		for i := 0; i < clusterEntryCount; i++ {
			record := data[i*direntBytesCount : (i+1)*direntBytesCount]

			if isPlausibleDirent(record) == false {
				continue
			}

			orphan, err := NewOrphan(record, fa.volume)
			if err != nil {
				continue
			}

			if orphan.IsValid() == false {
				continue
			}

			orphan.SetCluster(cluster)
			orphan.SetOffset(fa.volume.ClusterToPhysicalOffset(cluster) + int64(i)*direntBytesCount)

			analyzerLogger.Infof(nil, "Found: %s", orphan.String())

			fa.orphanage = append(fa.orphanage, orphan)
		}
	}

	return nil
}

// isPlausibleDirent cheaply rejects records that could never validate, before
// the full parse runs.
func isPlausibleDirent(record []byte) bool {
	attributes := record[1]
	if attributes != 0x00 && attributes != uint8(AttributeDirectory) {
		return false
	}

	nameLength := record[0]
	if nameLength == direntNeverUsed || nameLength == 0x01 || nameLength == direntNeverUsed2 {
		return false
	}

	if nameLength != direntDeleted && nameLength > fatxFileNameLength {
		return false
	}

	return true
}

// LinkOrphans rebuilds parent/child relationships: a directory orphan adopts
// every orphan discovered in one of the clusters of its chain. Orphans left
// unclaimed become roots.
func (fa *FatXAnalyzer) LinkOrphans() {
	for _, parent := range fa.orphanage {
		if parent.IsDirectory() == false {
			continue
		}

		chain := fa.volume.GetClusterChain(parent.FirstCluster)

		for _, orphan := range fa.orphanage {
			if orphan == parent {
				continue
			}

			if clusterInChain(orphan.Cluster(), chain) == false {
				continue
			}

			if orphan.HasParent() == true {
				analyzerLogger.Warningf(nil, "Orphan already claimed: %s", orphan.String())
				continue
			}

			parent.AddChild(orphan)
		}
	}

	fa.roots = make([]*Orphan, 0)

	for _, orphan := range fa.orphanage {
		if orphan.HasParent() == false {
			fa.roots = append(fa.roots, orphan)
		}
	}
}

func clusterInChain(cluster uint32, chain []uint32) bool {
	for _, c := range chain {
		if c == cluster {
			return true
		}
	}

	return false
}

// RescueAll rescues every root tree into the given path. Failures inside one
// tree do not stop the others.
func (fa *FatXAnalyzer) RescueAll(path string) {
	for _, orphan := range fa.roots {
		orphan.Rescue(path)
	}
}

// savedOrphan is the serialized form of one orphan for session output.
type savedOrphan struct {
	Offset         int64         `json:"offset"`
	Cluster        uint32        `json:"cluster"`
	FileName       string        `json:"filename"`
	FileNameLength uint8         `json:"filenamelen"`
	FileSize       uint32        `json:"filesize"`
	Attributes     uint8         `json:"attributes"`
	FirstCluster   uint32        `json:"firstcluster"`
	CreationTime   uint32        `json:"creationtime"`
	LastWriteTime  uint32        `json:"lastwritetime"`
	LastAccessTime uint32        `json:"lastaccesstime"`
	Children       []savedOrphan `json:"children"`
}

type savedSession struct {
	Offset int64         `json:"offset"`
	Length int64         `json:"length"`
	Roots  []savedOrphan `json:"roots"`
}

// SaveRoots writes the linked root trees as JSON so a scan can be reviewed or
// resumed without resweeping the volume.
func (fa *FatXAnalyzer) SaveRoots(w io.Writer) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	session := savedSession{
		Offset: fa.volume.Offset(),
		Length: fa.volume.Length(),
		Roots:  make([]savedOrphan, 0, len(fa.roots)),
	}

	for _, orphan := range fa.roots {
		session.Roots = append(session.Roots, saveOrphan(orphan))
	}

	e := json.NewEncoder(w)
	e.SetIndent("", "  ")

	err = e.Encode(session)
	log.PanicIf(err)

	return nil
}

func saveOrphan(orphan *Orphan) savedOrphan {
	so := savedOrphan{
		Offset:         orphan.Offset(),
		Cluster:        orphan.Cluster(),
		FileName:       orphan.FileName,
		FileNameLength: orphan.FileNameLength,
		FileSize:       orphan.FileSize,
		Attributes:     uint8(orphan.FileAttributes),
		FirstCluster:   orphan.FirstCluster,
		Children:       make([]savedOrphan, 0, len(orphan.Children())),
	}

	if orphan.CreationTime != nil {
		so.CreationTime = orphan.CreationTime.Raw()
	}

	if orphan.LastWriteTime != nil {
		so.LastWriteTime = orphan.LastWriteTime.Raw()
	}

	if orphan.LastAccessTime != nil {
		so.LastAccessTime = orphan.LastAccessTime.Raw()
	}

	for _, child := range orphan.Children() {
		so.Children = append(so.Children, saveOrphan(child))
	}

	return so
}
