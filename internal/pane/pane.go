// Package pane implements MerklePane: the owner of a single artifact's
// content file, local MerkleTree, and ReferenceTree. It is the only
// component that ever writes verified bytes to disk or flips an intact
// bit, so every authenticity invariant funnels through here.
package pane

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nosqlbench/nbdatatools-sub010/internal/merkleshape"
	"github.com/nosqlbench/nbdatatools-sub010/internal/merkletree"
)

// ErrVerificationFailed is returned by SubmitChunk (and surfaced by the
// painter) when downloaded bytes do not hash to the reference leaf hash.
var ErrVerificationFailed = errors.New("pane: chunk verification failed")

// ErrChunkSubmission wraps an I/O failure that occurred while attempting
// to write or read a chunk's content bytes. A chunk's intact bit is never
// left set when this error occurs.
var ErrChunkSubmission = errors.New("pane: chunk submission I/O error")

// Boundary is a chunk's half-open byte range within the content file.
type Boundary struct {
	StartIncl int64
	EndExcl   int64
}

// Pane owns the content file and the pair of Merkle trees (local, still
// being filled in; reference, immutable and fully authoritative) used to
// verify it chunk by chunk.
type Pane struct {
	mu sync.RWMutex

	shape   merkleshape.Shape
	content *os.File

	local     *merkletree.MerkleTree
	reference *merkletree.ReferenceTree
}

// Open opens (creating if necessary) the content file at contentPath,
// sized sparsely to the reference's content size, and attaches the
// (possibly preexisting) local tree at contentPath+".mrkl".
func Open(contentPath string, reference *merkletree.ReferenceTree) (*Pane, error) {
	shape := reference.Shape()

	content, err := os.OpenFile(contentPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pane: open content %s: %w", contentPath, err)
	}
	if err := content.Truncate(shape.ContentSize); err != nil {
		content.Close()
		return nil, fmt.Errorf("pane: size content %s: %w", contentPath, err)
	}

	local, err := merkletree.OpenOrCreateLocal(contentPath+".mrkl", shape)
	if err != nil {
		content.Close()
		return nil, err
	}

	return &Pane{
		shape:     shape,
		content:   content,
		local:     local,
		reference: reference,
	}, nil
}

// Shape returns the artifact's geometry.
func (p *Pane) Shape() merkleshape.Shape { return p.shape }

// IsChunkIntact reports whether chunk's content is verified present.
func (p *Pane) IsChunkIntact(chunk int64) bool {
	return p.local.IsLeafValid(chunk)
}

// GetChunkBoundary returns chunk's byte range, clamped to content size.
func (p *Pane) GetChunkBoundary(chunk int64) Boundary {
	lo, hi := p.shape.ChunkRange(chunk)
	return Boundary{StartIncl: lo, EndExcl: hi}
}

// SubmitChunk hashes bytes, compares against the reference leaf hash, and
// on match writes bytes to the content file, stores the leaf hash, sets
// the intact bit, and clears ancestor hashes. On mismatch it returns
// ErrVerificationFailed without touching content or bitset.
func (p *Pane) SubmitChunk(chunk int64, bytes []byte) error {
	h := merkletree.HashChunk(bytes)
	ref := p.reference.LeafHash(chunk)
	if h != ref {
		return fmt.Errorf("%w: chunk %d", ErrVerificationFailed, chunk)
	}
	return p.commitChunk(chunk, bytes, h)
}

// SubmitChunkWithHash behaves like SubmitChunk but trusts the caller's
// precomputed hash instead of rehashing bytes, for callers (the painter)
// that already verified the hash themselves.
func (p *Pane) SubmitChunkWithHash(chunk int64, bytes []byte, precomputed [32]byte) error {
	return p.commitChunk(chunk, bytes, precomputed)
}

// commitChunk performs the ordered write sequence required by the
// crash-safety invariant: bytes to disk, then leaf hash stored, then
// intact bit set, then ancestors invalidated. A crash between any two
// steps leaves the chunk observed as invalid on next open, since the bit
// (the last thing touched) lives in a tail-written bitset.
func (p *Pane) commitChunk(chunk int64, data []byte, h [32]byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	lo, _ := p.shape.ChunkRange(chunk)
	if _, err := p.content.WriteAt(data, lo); err != nil {
		return fmt.Errorf("%w: write chunk %d: %v", ErrChunkSubmission, chunk, err)
	}

	p.local.StoreLeafHash(chunk, h)
	p.local.SetLeafValid(chunk)

	// Ancestors are stale the moment any sibling subtree changes; clear
	// them so a reader never observes an internal hash derived from a
	// mix of old and new leaves. ComputeAllInternals rebuilds them later
	// (on flush or explicit request).
	p.local.ClearAncestors(chunk)

	return nil
}

// VerifyChunk reads bytes from the content file for chunk's range,
// hashes them, and compares against the reference. The intact bit is set
// on match and cleared on mismatch.
func (p *Pane) VerifyChunk(chunk int64) error {
	lo, hi := p.shape.ChunkRange(chunk)
	buf := make([]byte, hi-lo)

	p.mu.RLock()
	_, err := p.content.ReadAt(buf, lo)
	p.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("%w: read chunk %d: %v", ErrChunkSubmission, chunk, err)
	}

	h := merkletree.HashChunk(buf)
	ref := p.reference.LeafHash(chunk)

	p.mu.Lock()
	defer p.mu.Unlock()
	if h != ref {
		p.local.InvalidateLeaf(chunk)
		return fmt.Errorf("%w: chunk %d", ErrVerificationFailed, chunk)
	}
	p.local.StoreLeafHash(chunk, h)
	p.local.SetLeafValid(chunk)
	return nil
}

// Close runs the shutdown sequence: materialize derivable ancestor
// hashes, flush the bitset/footer and content file, and ensure the tree
// file's mtime strictly follows the content file's.
func (p *Pane) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.local.ComputeAllInternals()

	if err := p.content.Sync(); err != nil {
		return fmt.Errorf("pane: sync content: %w", err)
	}
	if err := p.local.Flush(); err != nil {
		return fmt.Errorf("pane: flush tree: %w", err)
	}
	if err := bumpMtimeAfter(p.local.Path(), p.content.Name()); err != nil {
		return err
	}

	if err := p.local.Close(); err != nil {
		return err
	}
	return p.content.Close()
}

// bumpMtimeAfter ensures treePath's mtime is strictly later than
// contentPath's, per the on-disk invariant that a flushed tree file must
// postdate the content it describes.
func bumpMtimeAfter(treePath, contentPath string) error {
	contentInfo, err := os.Stat(contentPath)
	if err != nil {
		return fmt.Errorf("pane: stat content for mtime check: %w", err)
	}
	treeInfo, err := os.Stat(treePath)
	if err != nil {
		return fmt.Errorf("pane: stat tree for mtime check: %w", err)
	}
	if treeInfo.ModTime().After(contentInfo.ModTime()) {
		return nil
	}
	want := contentInfo.ModTime().Add(time.Millisecond)
	if err := os.Chtimes(treePath, want, want); err != nil {
		return fmt.Errorf("pane: bump tree mtime: %w", err)
	}
	return nil
}
