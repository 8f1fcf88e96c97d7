package merkletree

import (
	"crypto/sha256"
	"hash"
	"sync"
)

// hasherPool recycles sha256.Hash instances across leaf- and internal-node
// hashing. Modeled on the zlib/zstd pooling idiom used for pack object
// compression: a sync.Pool of ready-to-use stateful encoders, reset and
// returned on every use rather than allocated per call.
var hasherPool = sync.Pool{
	New: func() interface{} {
		return sha256.New()
	},
}

// withDigest acquires a pooled hasher, resets it, hands it to fn, and
// returns the resulting 32-byte digest. The hasher is returned to the pool
// before withDigest returns.
func withDigest(fn func(h hash.Hash)) [sha256.Size]byte {
	h := hasherPool.Get().(hash.Hash)
	h.Reset()
	defer hasherPool.Put(h)

	fn(h)

	var out [sha256.Size]byte
	h.Sum(out[:0])
	return out
}

// zeroLengthSentinel is hashed in place of a genuinely empty chunk, so
// that no leaf hash is ever SHA-256 over empty input. An empty chunk
// therefore hashes the same as a one-byte chunk holding 0x00.
var zeroLengthSentinel = []byte{0x00}

// HashChunk computes the authoritative leaf digest for chunk bytes: the
// single source of truth for the empty-chunk convention (H(0x00) rather
// than H("")), shared by MerkleTree itself and by callers (pane, painter)
// that hash chunk bytes before handing them to a tree.
func HashChunk(chunk []byte) [sha256.Size]byte {
	return hashLeafBytes(chunk)
}

// hashLeafBytes computes the authoritative leaf digest: SHA-256 over the
// raw chunk bytes, or over zeroLengthSentinel for a zero-length chunk.
func hashLeafBytes(chunk []byte) [sha256.Size]byte {
	return withDigest(func(h hash.Hash) {
		if len(chunk) == 0 {
			h.Write(zeroLengthSentinel)
			return
		}
		h.Write(chunk)
	})
}

// hashInternalNode computes an interior node's digest from its two
// children's digests, concatenated left-then-right.
func hashInternalNode(left, right [sha256.Size]byte) [sha256.Size]byte {
	return withDigest(func(h hash.Hash) {
		h.Write(left[:])
		h.Write(right[:])
	})
}
