package painter

import "github.com/nosqlbench/nbdatatools-sub010/internal/merkleshape"

// Range is a half-open chunk-index range [StartChunk, EndChunk) chosen by
// PlanRanges for a single coalesced transport fetch.
type Range struct {
	StartChunk int64
	EndChunk   int64
}

// sizeOf returns the byte span covered by r (the sum of its chunks'
// lengths, since a Range is always contiguous).
func sizeOf(shape merkleshape.Shape, r Range) int64 {
	if r.StartChunk >= r.EndChunk {
		return 0
	}
	lo, _ := shape.ChunkRange(r.StartChunk)
	_, hi := shape.ChunkRange(r.EndChunk - 1)
	return hi - lo
}

// PlanRanges coalesces the non-skipped chunks in [startChunk,
// endChunkInclusive] into one or more contiguous Ranges honoring
// minSize/maxSize. isSkipped reports whether a chunk is already intact or
// already in flight and should be excluded from the plan. Every
// non-skipped chunk in the span is covered by exactly one emitted Range:
// a chunk is never dropped from the plan merely for forming an undersized
// run, since the caller may already have committed to fetching it (e.g.
// reserved it as in-flight) before planning runs.
//
// Policy: chunks accumulate into a pending range until adding the next
// one would exceed maxSize, at which point the pending range closes
// (even if it is still under minSize) and a new one opens with that
// chunk; a range exceeds maxSize only when a single chunk does. A skipped
// chunk breaks the run: the pending range is always emitted, since the
// chunks it covers have nowhere else to go. The final pending range, if
// still under minSize, is merged into the immediately preceding range
// only when the two are adjacent (no skipped chunk separates them) and
// the merge does not exceed maxSize; otherwise it is emitted alone.
func PlanRanges(shape merkleshape.Shape, startChunk, endChunkInclusive, minSize, maxSize int64, isSkipped func(chunk int64) bool) []Range {
	var ranges []Range
	var start, end int64 = -1, -1 // pending range [start, end), end exclusive

	for c := startChunk; c <= endChunkInclusive; c++ {
		if isSkipped(c) {
			if start >= 0 {
				ranges = append(ranges, Range{StartChunk: start, EndChunk: end})
				start, end = -1, -1
			}
			continue
		}

		if start < 0 {
			start, end = c, c+1
			continue
		}

		candidate := Range{StartChunk: start, EndChunk: c + 1}
		if sizeOf(shape, candidate) > maxSize {
			ranges = append(ranges, Range{StartChunk: start, EndChunk: end})
			start, end = c, c+1
			continue
		}
		end = c + 1
	}

	if start >= 0 {
		trailing := Range{StartChunk: start, EndChunk: end}
		size := sizeOf(shape, trailing)
		switch {
		case size >= minSize || len(ranges) == 0:
			ranges = append(ranges, trailing)
		default:
			last := ranges[len(ranges)-1]
			merged := Range{StartChunk: last.StartChunk, EndChunk: trailing.EndChunk}
			if last.EndChunk == trailing.StartChunk && sizeOf(shape, merged) <= maxSize {
				ranges[len(ranges)-1] = merged
			} else {
				ranges = append(ranges, trailing)
			}
		}
	}

	return ranges
}
