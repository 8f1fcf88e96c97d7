//go:build unix

package merkletree

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mmapRegion memory-maps the leading nodeCount*32 bytes of an already-sized
// file, so readers of already-verified hashes never pay a syscall: getHash
// is a slice index into mapped memory. Writes during tree construction go
// through the same mapping and are pushed out with an explicit flush
// (msync); the bitset and footer trailing the mapped region are handled by
// MerkleTree directly via the same file handle.
type mmapRegion struct {
	data []byte
}

// openHashRegion maps the first nodeCount*32 bytes of file, which must
// already be open for read/write and sized to at least that many bytes.
func openHashRegion(file *os.File, nodeCount int64) (hashRegion, error) {
	size := nodeCount * nodeSize
	if size == 0 {
		size = nodeSize // mmap requires a non-empty region
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("merkletree: mmap hash region: %w", err)
	}

	return &mmapRegion{data: data}, nil
}

func (r *mmapRegion) get(idx int64) [nodeSize]byte {
	var out [nodeSize]byte
	off := regionOffset(idx)
	copy(out[:], r.data[off:off+nodeSize])
	return out
}

func (r *mmapRegion) set(idx int64, v [nodeSize]byte) {
	off := regionOffset(idx)
	copy(r.data[off:off+nodeSize], v[:])
}

func (r *mmapRegion) flush() error {
	if err := unix.Msync(r.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("merkletree: msync hash region: %w", err)
	}
	return nil
}

func (r *mmapRegion) close() error {
	if err := unix.Munmap(r.data); err != nil {
		return fmt.Errorf("merkletree: munmap hash region: %w", err)
	}
	return nil
}
