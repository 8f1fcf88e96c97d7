//go:build !unix

package merkletree

import "os"

// fileRegion is the non-unix fallback hash region: plain positional
// ReadAt/WriteAt against the leading nodeCount*32 bytes of the backing
// file, no memory mapping. Functionally equivalent to mmapRegion, just
// without the zero-copy read path.
type fileRegion struct {
	file *os.File
}

func openHashRegion(file *os.File, nodeCount int64) (hashRegion, error) {
	return &fileRegion{file: file}, nil
}

func (r *fileRegion) get(idx int64) [nodeSize]byte {
	var out [nodeSize]byte
	r.file.ReadAt(out[:], regionOffset(idx))
	return out
}

func (r *fileRegion) set(idx int64, v [nodeSize]byte) {
	r.file.WriteAt(v[:], regionOffset(idx))
}

func (r *fileRegion) flush() error {
	return r.file.Sync()
}

func (r *fileRegion) close() error {
	return nil
}
