package merkletree

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/nosqlbench/nbdatatools-sub010/internal/merkleshape"
)

func writeTestContent(t *testing.T, dir string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, "content")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write content: %v", err)
	}
	return path
}

func TestBuildAndRootHashDeterministic(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 5*4096+100)
	for i := range data {
		data[i] = byte(i)
	}
	contentPath := writeTestContent(t, dir, data)

	shape, err := merkleshape.ForContent(int64(len(data)), 4096)
	if err != nil {
		t.Fatalf("ForContent: %v", err)
	}

	tree1, err := Build(context.Background(), contentPath, shape, 4)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	root1 := tree1.RootHash()
	if err := tree1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	os.Remove(contentPath + ".mrkl")
	tree2, err := Build(context.Background(), contentPath, shape, 1)
	if err != nil {
		t.Fatalf("Build (second): %v", err)
	}
	defer tree2.Close()
	root2 := tree2.RootHash()

	if root1 != root2 {
		t.Errorf("root hash not deterministic across worker counts: %x vs %x", root1, root2)
	}
	if root1 == ([32]byte{}) {
		t.Error("root hash must not be all-zero for non-empty content")
	}
}

func TestEmptyChunkHashesSentinel(t *testing.T) {
	want := sha256.Sum256([]byte{0x00})
	got := hashLeafBytes(nil)
	if got != want {
		t.Errorf("empty chunk hash = %x, want H(0x00) = %x", got, want)
	}
	gotEmptySlice := hashLeafBytes([]byte{})
	if gotEmptySlice != want {
		t.Errorf("empty slice hash = %x, want H(0x00) = %x", gotEmptySlice, want)
	}
}

func TestInvalidateLeafClearsAncestors(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 8*1024)
	for i := range data {
		data[i] = byte(i % 251)
	}
	contentPath := writeTestContent(t, dir, data)

	shape, err := merkleshape.ForContent(int64(len(data)), 1024)
	if err != nil {
		t.Fatalf("ForContent: %v", err)
	}

	tree, err := Build(context.Background(), contentPath, shape, 2)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer tree.Close()

	root := tree.RootHash()
	if root == ([32]byte{}) {
		t.Fatal("root must be non-zero before invalidation")
	}

	tree.SetLeafValid(0)
	if !tree.IsLeafValid(0) {
		t.Fatal("expected leaf 0 to be valid after SetLeafValid")
	}

	tree.InvalidateLeaf(0)
	if tree.IsLeafValid(0) {
		t.Error("expected leaf 0 to be invalid after InvalidateLeaf")
	}
	if tree.GetHash(shape.LeafNodeIndex(0)) != zeroHash {
		t.Error("expected leaf 0 hash to be zeroed after InvalidateLeaf")
	}

	var ancestorCount int
	shape.AncestorsOf(0, func(idx int64) bool {
		ancestorCount++
		if tree.GetHash(idx) != zeroHash {
			t.Errorf("ancestor node %d not zeroed after invalidation", idx)
		}
		return true
	})
	if ancestorCount == 0 {
		t.Fatal("expected at least one ancestor (the root) to be visited")
	}

	tree.ComputeAllInternals()
	recomputedRoot := tree.RootHash()
	if recomputedRoot == root {
		t.Error("expected root to change after invalidating and recomputing with leaf 0 still zero")
	}
}

func TestFlushAndReopenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 3*2048)
	for i := range data {
		data[i] = byte(i * 7)
	}
	contentPath := writeTestContent(t, dir, data)

	shape, err := merkleshape.ForContent(int64(len(data)), 2048)
	if err != nil {
		t.Fatalf("ForContent: %v", err)
	}

	tree, err := Build(context.Background(), contentPath, shape, 2)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	tree.SetLeafValid(0)
	tree.SetLeafValid(2)
	want := tree.RootHash()

	if err := tree.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(contentPath + ".mrkl")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()

	if reopened.RootHash() != want {
		t.Errorf("reopened root = %x, want %x", reopened.RootHash(), want)
	}
	if !reopened.IsLeafValid(0) || !reopened.IsLeafValid(2) {
		t.Error("expected leaves 0 and 2 to remain valid after reopen")
	}
	if reopened.IsLeafValid(1) {
		t.Error("expected leaf 1 to remain invalid after reopen")
	}
}

func TestVirtualLeavesHashZero(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 1024+1) // leafCount=2, capLeaf=2: no virtual leaves here
	contentPath := writeTestContent(t, dir, data)

	shape, err := merkleshape.ForContent(int64(len(data)), 1024)
	if err != nil {
		t.Fatalf("ForContent: %v", err)
	}
	// Force a shape with a virtual leaf: 3 real leaves rounds capLeaf to 4.
	shape, err = merkleshape.ForContent(3*1024, 1024)
	if err != nil {
		t.Fatalf("ForContent: %v", err)
	}
	if shape.CapLeaf != 4 || shape.LeafCount != 3 {
		t.Fatalf("expected capLeaf=4 leafCount=3, got capLeaf=%d leafCount=%d", shape.CapLeaf, shape.LeafCount)
	}

	data = make([]byte, 3*1024)
	contentPath = writeTestContent(t, dir, data)

	tree, err := Build(context.Background(), contentPath, shape, 2)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer tree.Close()

	virtualLeafIdx := shape.LeafNodeIndex(3)
	if tree.GetHash(virtualLeafIdx) != zeroHash {
		t.Error("expected virtual leaf 3's hash to remain all-zero")
	}
}
