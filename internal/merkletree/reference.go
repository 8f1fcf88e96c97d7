package merkletree

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/nosqlbench/nbdatatools-sub010/internal/merkleshape"
	"github.com/nosqlbench/nbdatatools-sub010/internal/transport"
)

// ReferenceTree is a thin read-only wrapper around MerkleTree: the
// authoritative hash source a pane verifies downloaded chunks against.
// Every leaf bit is set; nothing ever mutates it after materialization.
type ReferenceTree struct {
	tree *MerkleTree
}

// OpenReferenceTree loads an existing reference file (e.g. "F.mref")
// read-only.
func OpenReferenceTree(path string) (*ReferenceTree, error) {
	t, err := Open(path)
	if err != nil {
		return nil, err
	}
	t.readOnly = true
	return &ReferenceTree{tree: t}, nil
}

// MaterializeReferenceTree downloads the reference tree file for a remote
// artifact to localPath (conventionally "<content>.mref") if it does not
// already exist, then opens it read-only. This is the one-shot download
// the painter performs before any chunk can be committed.
func MaterializeReferenceTree(ctx context.Context, t transport.ChunkedTransport, localPath string) (*ReferenceTree, error) {
	if _, err := os.Stat(localPath); err == nil {
		return OpenReferenceTree(localPath)
	}

	size, err := t.Size(ctx)
	if err != nil {
		return nil, fmt.Errorf("merkletree: size reference file: %w", err)
	}

	data, err := t.FetchRange(ctx, 0, size)
	if err != nil {
		return nil, fmt.Errorf("merkletree: download reference file: %w", err)
	}

	tmp := localPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("merkletree: create reference temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("merkletree: write reference temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("merkletree: close reference temp file: %w", err)
	}
	if err := os.Rename(tmp, localPath); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("merkletree: rename reference temp file: %w", err)
	}

	return OpenReferenceTree(localPath)
}

// Shape returns the reference tree's geometry.
func (r *ReferenceTree) Shape() merkleshape.Shape { return r.tree.Shape() }

// LeafHash returns the authoritative hash for chunk.
func (r *ReferenceTree) LeafHash(chunk int64) [32]byte {
	return r.tree.GetHash(r.tree.shape.LeafNodeIndex(chunk))
}

// Close releases the underlying file handle and mapping.
func (r *ReferenceTree) Close() error { return r.tree.Close() }

var _ io.Closer = (*ReferenceTree)(nil)
