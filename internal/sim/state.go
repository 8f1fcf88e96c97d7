package sim

import "github.com/bits-and-blooms/bitset"

// EngineState is the simulation's mutable world: which chunks are valid,
// which are mid-download, and the running statistics schedulers may
// consult (the adaptive strategy reads Stats to tune itself).
type EngineState struct {
	Valid      *bitset.BitSet
	InProgress map[int64]bool
	NumChunks  int64
	Stats      *Stats
}

func newEngineState(numChunks int64) *EngineState {
	return &EngineState{
		Valid:      bitset.New(uint(numChunks)),
		InProgress: make(map[int64]bool),
		NumChunks:  numChunks,
		Stats:      newStats(),
	}
}

func (s *EngineState) IsValid(chunk int64) bool {
	if chunk < 0 || chunk >= s.NumChunks {
		return false
	}
	return s.Valid.Test(uint(chunk))
}

func (s *EngineState) markValid(chunk int64) {
	s.Valid.Set(uint(chunk))
}

func (s *EngineState) isInProgress(chunk int64) bool {
	return s.InProgress[chunk]
}

func (s *EngineState) markInProgress(chunk int64) {
	s.InProgress[chunk] = true
}

func (s *EngineState) clearInProgress(chunk int64) {
	delete(s.InProgress, chunk)
}

// ConnectionsInUse reports how many chunk downloads are currently active.
func (s *EngineState) ConnectionsInUse() int {
	return len(s.InProgress)
}
