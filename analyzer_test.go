package fatx

import (
	"bytes"
	"io/ioutil"
	"os"
	"path"
	"testing"

	"encoding/json"
)

// testOrphanImage plants a directory record, a child file record inside the
// directory's cluster chain, and the child's content.
func testOrphanImage() *testImage {
	ti := newTestImage()

	timestamp := packTestTimestamp(2020, 1, 1, 0, 0, 0)

	ti.writeCluster(2, makeTestDirent(3, AttributeDirectory, "DIR", 5, 0, timestamp))
	ti.writeCluster(5, makeTestDirent(9, 0, "CHILD.BIN", 6, 100, timestamp))
	ti.writeCluster(6, bytes.Repeat([]byte{0x42}, 100))

	ti.setFatEntry(5, 0xffff)

	return ti
}

func TestFatXAnalyzer_ScanOrphans(t *testing.T) {
	ti := testOrphanImage()
	fv := ti.volume(t)

	fa := NewFatXAnalyzer(fv)

	err := fa.ScanOrphans(0)
	if err != nil {
		t.Fatalf("Could not scan: %s", err.Error())
	}

	orphanage := fa.Orphanage()
	if len(orphanage) != 2 {
		t.Fatalf("Orphan count not correct: (%d)", len(orphanage))
	}

	if orphanage[0].FileName != "DIR" || orphanage[0].Cluster() != 2 {
		t.Fatalf("Directory orphan not discovered correctly: %s", orphanage[0])
	}

	if orphanage[1].FileName != "CHILD.BIN" || orphanage[1].Cluster() != 5 {
		t.Fatalf("File orphan not discovered correctly: %s", orphanage[1])
	}

	if orphanage[0].Offset() != fv.ClusterToPhysicalOffset(2) {
		t.Fatalf("Discovery offset not correct: (0x%x)", orphanage[0].Offset())
	}
}

func TestFatXAnalyzer_LinkOrphans(t *testing.T) {
	ti := testOrphanImage()
	fv := ti.volume(t)

	fa := NewFatXAnalyzer(fv)

	err := fa.ScanOrphans(0)
	if err != nil {
		t.Fatalf("Could not scan: %s", err.Error())
	}

	fa.LinkOrphans()

	roots := fa.Roots()
	if len(roots) != 1 {
		t.Fatalf("Root count not correct: (%d)", len(roots))
	}

	root := roots[0]
	if root.FileName != "DIR" {
		t.Fatalf("Root not correct: %s", root)
	}

	if len(root.Children()) != 1 || root.Children()[0].FileName != "CHILD.BIN" {
		t.Fatalf("Child not linked correctly.")
	}

	if root.Children()[0].Parent() != root {
		t.Fatalf("Parent linkage not correct.")
	}
}

func TestFatXAnalyzer_LinkOrphans_FirstParentWins(t *testing.T) {
	ti := newTestImage()

	timestamp := packTestTimestamp(2020, 1, 1, 0, 0, 0)

	// Two directory records claim the same cluster, so both chains contain
	// the child. Only the first claimant adopts it.
	ti.writeCluster(2, makeTestDirent(4, AttributeDirectory, "DIRA", 5, 0, timestamp))
	ti.writeCluster(3, makeTestDirent(4, AttributeDirectory, "DIRB", 5, 0, timestamp))
	ti.writeCluster(5, makeTestDirent(9, 0, "CHILD.BIN", 6, 100, timestamp))

	ti.setFatEntry(5, 0xffff)

	fv := ti.volume(t)

	fa := NewFatXAnalyzer(fv)

	err := fa.ScanOrphans(0)
	if err != nil {
		t.Fatalf("Could not scan: %s", err.Error())
	}

	fa.LinkOrphans()

	roots := fa.Roots()
	if len(roots) != 2 {
		t.Fatalf("Root count not correct: (%d)", len(roots))
	}

	if len(roots[0].Children()) != 1 || roots[0].Children()[0].FileName != "CHILD.BIN" {
		t.Fatalf("First claimant should adopt the child.")
	}

	if len(roots[1].Children()) != 0 {
		t.Fatalf("Second claimant should not duplicate the child.")
	}

	if roots[0].Children()[0].Parent() != roots[0] {
		t.Fatalf("Parent linkage not correct.")
	}
}

func TestFatXAnalyzer_RescueAll(t *testing.T) {
	ti := testOrphanImage()
	fv := ti.volume(t)

	fa := NewFatXAnalyzer(fv)

	err := fa.ScanOrphans(0)
	if err != nil {
		t.Fatalf("Could not scan: %s", err.Error())
	}

	fa.LinkOrphans()

	outPath, err := ioutil.TempDir("", "fatxtest")
	if err != nil {
		t.Fatalf("Could not create temporary path: %s", err.Error())
	}

	defer os.RemoveAll(outPath)

	fa.RescueAll(outPath)

	recovered, err := ioutil.ReadFile(path.Join(outPath, "DIR", "CHILD.BIN"))
	if err != nil {
		t.Fatalf("Could not read rescued file: %s", err.Error())
	}

	if bytes.Equal(recovered, bytes.Repeat([]byte{0x42}, 100)) == false {
		t.Fatalf("Rescued content not correct.")
	}
}

func TestFatXAnalyzer_SaveRoots(t *testing.T) {
	ti := testOrphanImage()
	fv := ti.volume(t)

	fa := NewFatXAnalyzer(fv)

	err := fa.ScanOrphans(0)
	if err != nil {
		t.Fatalf("Could not scan: %s", err.Error())
	}

	fa.LinkOrphans()

	b := new(bytes.Buffer)

	err = fa.SaveRoots(b)
	if err != nil {
		t.Fatalf("Could not save: %s", err.Error())
	}

	session := savedSession{}

	err = json.Unmarshal(b.Bytes(), &session)
	if err != nil {
		t.Fatalf("Saved session not parseable: %s", err.Error())
	}

	if session.Length != testImageSize {
		t.Fatalf("Session length not correct: (%d)", session.Length)
	}

	if len(session.Roots) != 1 || session.Roots[0].FileName != "DIR" {
		t.Fatalf("Roots not saved correctly.")
	}

	if len(session.Roots[0].Children) != 1 || session.Roots[0].Children[0].FileName != "CHILD.BIN" {
		t.Fatalf("Children not saved correctly.")
	}

	if session.Roots[0].Children[0].FirstCluster != 6 {
		t.Fatalf("Child fields not saved correctly.")
	}
}
