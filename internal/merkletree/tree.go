// Package merkletree implements MerkleTree, the memory-mapped hash array
// and valid-chunk bitset backing a single artifact's local verification
// state, plus ReferenceTree, its read-only counterpart loaded from an
// immutable reference file.
package merkletree

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/sync/errgroup"

	"github.com/nosqlbench/nbdatatools-sub010/internal/merklefooter"
	"github.com/nosqlbench/nbdatatools-sub010/internal/merkleshape"
)

// ErrCorruptTree is returned when a tree file's structure cannot be
// trusted (wrong size, unreadable bitset, footer geometry mismatch).
var ErrCorruptTree = errors.New("merkletree: corrupt tree file")

// MerkleTree is the memory-mapped hash array and valid-leaf bitset for a
// single artifact. One MerkleTree is owned by exactly one pane (or, for a
// ReferenceTree, held read-only by the painter).
type MerkleTree struct {
	mu sync.RWMutex

	shape merkleshape.Shape
	path  string

	file   *os.File
	region hashRegion
	bits   *bitset.BitSet

	readOnly bool
}

// Shape returns the tree's geometry.
func (t *MerkleTree) Shape() merkleshape.Shape { return t.shape }

// Path returns the backing file path.
func (t *MerkleTree) Path() string { return t.path }

// fileLayout computes byte offsets within the tree file for each section:
// hashes, then bitset, then footer (matching the on-disk format: hash
// nodes, intact bitset, fixed footer).
func fileLayout(shape merkleshape.Shape) (hashBytes, bitsetBytes, totalBytes int64) {
	hashBytes = shape.NodeCount * nodeSize
	bitsetBytes = (shape.CapLeaf + 7) / 8
	totalBytes = hashBytes + bitsetBytes + merklefooter.FooterLength
	return
}

// Open loads an existing tree file for read/write use, mapping the hash
// region and reading the bitset and footer from its tail. The footer's
// chunkSize/totalSize are trusted to reconstruct the shape; a legacy
// 49-byte footer is surfaced as merklefooter.ErrLegacyFooter rather than
// silently accepted, since its embedded digest predates the bitset-gated
// per-leaf hash model and cannot be trusted.
func Open(path string) (*MerkleTree, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("merkletree: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("merkletree: stat %s: %w", path, err)
	}

	tail := make([]byte, merklefooter.FooterLength)
	if _, err := f.ReadAt(tail, info.Size()-merklefooter.FooterLength); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: read footer: %v", ErrCorruptTree, err)
	}
	footer, err := merklefooter.DecodeTail(tail)
	if err != nil {
		f.Close()
		return nil, err
	}

	shape, err := merkleshape.ForContent(footer.TotalSize, footer.ChunkSize)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrCorruptTree, err)
	}

	hashBytes, bitsetBytes, totalBytes := fileLayout(shape)
	if info.Size() != totalBytes {
		f.Close()
		return nil, fmt.Errorf("%w: file size %d, want %d", ErrCorruptTree, info.Size(), totalBytes)
	}

	bitsetBuf := make([]byte, bitsetBytes)
	if _, err := f.ReadAt(bitsetBuf, hashBytes); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: read bitset: %v", ErrCorruptTree, err)
	}

	region, err := openHashRegion(f, shape.NodeCount)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &MerkleTree{
		shape:  shape,
		path:   path,
		file:   f,
		region: region,
		bits:   deserializeBitset(bitsetBuf, shape.CapLeaf),
	}, nil
}

// Build creates a fresh tree file for shape, hashing every leaf of
// contentPath in parallel across workers (default 2*GOMAXPROCS, matching
// the teacher's concurrent-compression pool sizing), then computing
// internal hashes bottom-up. No leaf bit is set: Build only establishes
// hashes, never authenticity (authenticity comes from the bitset, set
// later by verification against a ReferenceTree).
func Build(ctx context.Context, contentPath string, shape merkleshape.Shape, workers int) (*MerkleTree, error) {
	if workers <= 0 {
		workers = 2 * runtime.GOMAXPROCS(0)
	}

	content, err := os.Open(contentPath)
	if err != nil {
		return nil, fmt.Errorf("merkletree: open content %s: %w", contentPath, err)
	}
	defer content.Close()

	treePath := contentPath + ".mrkl"
	f, err := os.OpenFile(treePath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("merkletree: create %s: %w", treePath, err)
	}

	_, _, totalBytes := fileLayout(shape)
	if err := f.Truncate(totalBytes); err != nil {
		f.Close()
		return nil, fmt.Errorf("merkletree: size %s: %w", treePath, err)
	}

	region, err := openHashRegion(f, shape.NodeCount)
	if err != nil {
		f.Close()
		return nil, err
	}

	t := &MerkleTree{
		shape:  shape,
		path:   treePath,
		file:   f,
		region: region,
		bits:   bitset.New(uint(shape.CapLeaf)),
	}

	if err := t.hashAllLeaves(ctx, content, workers); err != nil {
		t.Close()
		return nil, err
	}
	t.ComputeAllInternals()

	return t, nil
}

// hashAllLeaves reads and hashes every real leaf's bytes from content,
// distributing chunk indices across workers via errgroup, matching the
// teacher's bounded worker-pool idiom for CPU-bound per-item work.
func (t *MerkleTree) hashAllLeaves(ctx context.Context, content *os.File, workers int) error {
	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan int64, workers*2)

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			buf := make([]byte, t.shape.ChunkSize)
			for chunk := range jobs {
				lo, hi := t.shape.ChunkRange(chunk)
				n := hi - lo
				if _, err := content.ReadAt(buf[:n], lo); err != nil {
					return fmt.Errorf("merkletree: read chunk %d: %w", chunk, err)
				}
				t.HashLeaf(chunk, buf[:n])
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		for chunk := int64(0); chunk < t.shape.LeafCount; chunk++ {
			select {
			case jobs <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	return g.Wait()
}

// OpenOrCreateLocal opens the local tree file at path if it already
// exists, or creates a fresh all-zero, all-invalid one sized for shape
// otherwise. This is how a MerklePane acquires its local tree before any
// bytes have been downloaded: no leaf is hashed and no bit is set until
// the painter commits verified chunks.
func OpenOrCreateLocal(path string, shape merkleshape.Shape) (*MerkleTree, error) {
	if _, err := os.Stat(path); err == nil {
		return Open(path)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("merkletree: create %s: %w", path, err)
	}

	_, _, totalBytes := fileLayout(shape)
	if err := f.Truncate(totalBytes); err != nil {
		f.Close()
		return nil, fmt.Errorf("merkletree: size %s: %w", path, err)
	}

	region, err := openHashRegion(f, shape.NodeCount)
	if err != nil {
		f.Close()
		return nil, err
	}

	t := &MerkleTree{
		shape:  shape,
		path:   path,
		file:   f,
		region: region,
		bits:   bitset.New(uint(shape.CapLeaf)),
	}
	if err := t.Flush(); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

// GetHash returns the digest stored at nodeIdx. For a leaf, the result is
// authoritative only if the corresponding bit is set (check IsLeafValid).
// For an internal node, the result is not guaranteed authoritative unless
// ComputeAllInternals has been called since the last invalidation.
func (t *MerkleTree) GetHash(nodeIdx int64) [32]byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.region.get(nodeIdx)
}

// HashLeaf computes H(bytes) (or H(0x00) for an empty chunk) and stores it
// at chunk's leaf slot. It does not set the valid bit; callers verifying
// against a reference set the bit only after a successful comparison.
func (t *MerkleTree) HashLeaf(chunk int64, data []byte) [32]byte {
	h := hashLeafBytes(data)
	t.mu.Lock()
	t.region.set(t.shape.LeafNodeIndex(chunk), h)
	t.mu.Unlock()
	return h
}

// StoreLeafHash stores a precomputed digest at chunk's leaf slot without
// recomputing it, for callers that already hashed the bytes themselves
// (e.g. the painter, after its own verification pass).
func (t *MerkleTree) StoreLeafHash(chunk int64, h [32]byte) {
	t.mu.Lock()
	t.region.set(t.shape.LeafNodeIndex(chunk), h)
	t.mu.Unlock()
}

// SetLeafValid marks chunk's leaf bit authoritative.
func (t *MerkleTree) SetLeafValid(chunk int64) {
	t.mu.Lock()
	t.bits.Set(uint(chunk))
	t.mu.Unlock()
}

// IsLeafValid reports whether chunk's leaf bit is set.
func (t *MerkleTree) IsLeafValid(chunk int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bits.Test(uint(chunk))
}

var zeroHash [32]byte

// ClearAncestors zeroes every internal-node hash on the path from chunk's
// leaf to the root, without touching the leaf itself. Used after a fresh
// leaf hash/bit is stored, so stale internal values (derived from the
// leaf's prior state) are never read before the next
// ComputeAllInternals.
func (t *MerkleTree) ClearAncestors(chunk int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shape.AncestorsOf(chunk, func(idx int64) bool {
		t.region.set(idx, zeroHash)
		return true
	})
}

// InvalidateLeaf clears chunk's valid bit, zeroes its leaf hash, and
// clears every ancestor hash along the path to the root, so a reader can
// never observe a stale internal value derived from the now-invalid leaf.
func (t *MerkleTree) InvalidateLeaf(chunk int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.bits.Clear(uint(chunk))
	t.region.set(t.shape.LeafNodeIndex(chunk), zeroHash)
	t.shape.AncestorsOf(chunk, func(idx int64) bool {
		t.region.set(idx, zeroHash)
		return true
	})
}

// ComputeAllInternals recomputes every internal node's hash bottom-up from
// its children. Idempotent; required before the root hash (or any
// internal hash) is meaningful. Virtual leaves beyond LeafCount keep their
// all-zero hash; interior nodes over them are hashed from those zero
// children like any other node, so they are not themselves all-zero.
func (t *MerkleTree) ComputeAllInternals() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for idx := t.shape.InternalCount - 1; idx >= 0; idx-- {
		left, right := t.shape.Children(idx)
		lh := t.region.get(left)
		rh := t.region.get(right)
		t.region.set(idx, hashInternalNode(lh, rh))
	}
}

// RootHash returns the hash at node index 0. Meaningful only after
// ComputeAllInternals.
func (t *MerkleTree) RootHash() [32]byte {
	return t.GetHash(0)
}

// Flush persists the hash region (msync/fsync), rewrites the bitset, and
// rewrites the footer. A crash mid-flush that leaves a bad footer is
// detectable on next open: a garbled trailing length byte makes Open fail
// with merklefooter.ErrCorruptFooter (or ErrLegacyFooter if it names the
// legacy length), and a truncated file fails with ErrCorruptTree; Open
// returns these errors instead of trusting a half-written file.
func (t *MerkleTree) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.readOnly {
		return nil
	}

	if err := t.region.flush(); err != nil {
		return err
	}

	hashBytes, bitsetBytes, _ := fileLayout(t.shape)
	bitsetBuf := serializeBitset(t.bits, t.shape.CapLeaf)
	if int64(len(bitsetBuf)) != bitsetBytes {
		return fmt.Errorf("%w: bitset serialization length mismatch", ErrCorruptTree)
	}
	if _, err := t.file.WriteAt(bitsetBuf, hashBytes); err != nil {
		return fmt.Errorf("merkletree: write bitset: %w", err)
	}

	footer := merklefooter.Footer{
		ChunkSize:    t.shape.ChunkSize,
		TotalSize:    t.shape.ContentSize,
		FooterLength: merklefooter.FooterLength,
	}
	if _, err := t.file.WriteAt(footer.Encode(), hashBytes+bitsetBytes); err != nil {
		return fmt.Errorf("merkletree: write footer: %w", err)
	}

	return t.file.Sync()
}

// Close flushes (best-effort) and releases the tree's mapped region and
// file handle. Errors from the flush are returned but the file handle is
// always closed.
func (t *MerkleTree) Close() error {
	flushErr := t.Flush()
	t.mu.Lock()
	regionErr := t.region.close()
	fileErr := t.file.Close()
	t.mu.Unlock()
	if flushErr != nil {
		return flushErr
	}
	if regionErr != nil {
		return regionErr
	}
	return fileErr
}

func serializeBitset(bs *bitset.BitSet, capLeaf int64) []byte {
	out := make([]byte, (capLeaf+7)/8)
	for i := int64(0); i < capLeaf; i++ {
		if bs.Test(uint(i)) {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

func deserializeBitset(data []byte, capLeaf int64) *bitset.BitSet {
	bs := bitset.New(uint(capLeaf))
	for i := int64(0); i < capLeaf; i++ {
		if i/8 < int64(len(data)) && data[i/8]&(1<<uint(i%8)) != 0 {
			bs.Set(uint(i))
		}
	}
	return bs
}
