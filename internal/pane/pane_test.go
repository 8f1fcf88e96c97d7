package pane

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nosqlbench/nbdatatools-sub010/internal/merkleshape"
	"github.com/nosqlbench/nbdatatools-sub010/internal/merkletree"
)

func buildReference(t *testing.T, dir string, data []byte, chunkSize int64) (*merkletree.ReferenceTree, merkleshape.Shape, string) {
	t.Helper()
	contentPath := filepath.Join(dir, "reference-content")
	if err := os.WriteFile(contentPath, data, 0o644); err != nil {
		t.Fatalf("write reference content: %v", err)
	}

	shape, err := merkleshape.ForContent(int64(len(data)), chunkSize)
	if err != nil {
		t.Fatalf("ForContent: %v", err)
	}

	tree, err := merkletree.Build(context.Background(), contentPath, shape, 2)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for c := int64(0); c < shape.LeafCount; c++ {
		tree.SetLeafValid(c)
	}
	tree.ComputeAllInternals()
	if err := tree.Close(); err != nil {
		t.Fatalf("Close reference build tree: %v", err)
	}

	refPath := filepath.Join(dir, "artifact.mref")
	if err := os.Rename(contentPath+".mrkl", refPath); err != nil {
		t.Fatalf("rename to .mref: %v", err)
	}

	ref, err := merkletree.OpenReferenceTree(refPath)
	if err != nil {
		t.Fatalf("OpenReferenceTree: %v", err)
	}
	return ref, shape, contentPath
}

func TestSubmitChunkAcceptsMatchingBytes(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 3*1024)
	for i := range data {
		data[i] = byte(i)
	}
	ref, shape, _ := buildReference(t, dir, data, 1024)
	defer ref.Close()

	p, err := Open(filepath.Join(dir, "local-content"), ref)
	if err != nil {
		t.Fatalf("Open pane: %v", err)
	}
	defer p.Close()

	chunkBytes := data[0:1024]
	if p.IsChunkIntact(0) {
		t.Fatal("expected chunk 0 to start out not intact")
	}
	if err := p.SubmitChunk(0, chunkBytes); err != nil {
		t.Fatalf("SubmitChunk: %v", err)
	}
	if !p.IsChunkIntact(0) {
		t.Error("expected chunk 0 to be intact after SubmitChunk")
	}

	boundary := p.GetChunkBoundary(0)
	if boundary.StartIncl != 0 || boundary.EndExcl != shape.ChunkSize {
		t.Errorf("unexpected boundary %+v", boundary)
	}
}

func TestSubmitChunkRejectsMismatch(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 2*1024)
	ref, _, _ := buildReference(t, dir, data, 1024)
	defer ref.Close()

	p, err := Open(filepath.Join(dir, "local-content"), ref)
	if err != nil {
		t.Fatalf("Open pane: %v", err)
	}
	defer p.Close()

	wrong := make([]byte, 1024)
	wrong[0] = 0xFF
	if err := p.SubmitChunk(0, wrong); err == nil {
		t.Fatal("expected SubmitChunk to reject mismatched bytes")
	}
	if p.IsChunkIntact(0) {
		t.Error("expected chunk 0 to remain not intact after a failed submit")
	}
}

func TestVerifyChunkRoundTrip(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 2*1024)
	for i := range data {
		data[i] = byte(i * 3)
	}
	ref, _, _ := buildReference(t, dir, data, 1024)
	defer ref.Close()

	p, err := Open(filepath.Join(dir, "local-content"), ref)
	if err != nil {
		t.Fatalf("Open pane: %v", err)
	}
	defer p.Close()

	if err := p.SubmitChunk(1, data[1024:2048]); err != nil {
		t.Fatalf("SubmitChunk: %v", err)
	}
	if err := p.VerifyChunk(1); err != nil {
		t.Fatalf("VerifyChunk: %v", err)
	}
	if !p.IsChunkIntact(1) {
		t.Error("expected chunk 1 to remain intact after VerifyChunk")
	}
}

func TestCloseBumpsTreeMtime(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 1024)
	ref, _, _ := buildReference(t, dir, data, 1024)
	defer ref.Close()

	localPath := filepath.Join(dir, "local-content")
	p, err := Open(localPath, ref)
	if err != nil {
		t.Fatalf("Open pane: %v", err)
	}
	if err := p.SubmitChunk(0, data); err != nil {
		t.Fatalf("SubmitChunk: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	contentInfo, err := os.Stat(localPath)
	if err != nil {
		t.Fatalf("stat content: %v", err)
	}
	treeInfo, err := os.Stat(localPath + ".mrkl")
	if err != nil {
		t.Fatalf("stat tree: %v", err)
	}
	if !treeInfo.ModTime().After(contentInfo.ModTime()) {
		t.Errorf("expected tree mtime %v to be after content mtime %v", treeInfo.ModTime(), contentInfo.ModTime())
	}
}
