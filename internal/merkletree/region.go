package merkletree

import "crypto/sha256"

// nodeSize is the on-disk/in-memory width of a single node's digest.
const nodeSize = sha256.Size

// hashRegion stores nodeCount fixed-width digest slots addressed by heap
// index (see internal/merkleshape), backed by the leading bytes of an
// already-open, already-sized file. Two implementations exist: an
// mmap-backed one for unix platforms (region_unix.go) and a plain
// ReadAt/WriteAt fallback everywhere else (region_other.go). Both satisfy
// this interface so MerkleTree never branches on platform.
type hashRegion interface {
	// get returns the digest stored at node index idx.
	get(idx int64) [nodeSize]byte

	// set stores digest v at node index idx.
	set(idx int64, v [nodeSize]byte)

	// flush persists any buffered writes to stable storage.
	flush() error

	// close releases the region's resources (but does not close the
	// underlying file, which the caller owns).
	close() error
}

func regionOffset(idx int64) int64 { return idx * nodeSize }
