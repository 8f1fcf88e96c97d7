package sim

// WorkloadParams describes the synthetic read-request stream a
// simulation replays against the content.
type WorkloadParams struct {
	NumRequests           int
	RequestIntervalSecs   float64
	RequestSizeBytes      int64
	SequentialProbability float64 // chance the next read continues where the last left off
}

// DefaultWorkloadParams models a mostly-sequential scan.
func DefaultWorkloadParams() WorkloadParams {
	return WorkloadParams{
		NumRequests:           200,
		RequestIntervalSecs:   0.05,
		RequestSizeBytes:      256 * 1024,
		SequentialProbability: 0.85,
	}
}

// requestPlan is one generated ReadRequest, materialized up front so the
// whole stream is deterministic given (seed, workload, contentSize).
type requestPlan struct {
	Time   float64
	Offset int64
	Length int64
}

// generateWorkload deterministically produces NumRequests reads: each
// either continues contiguously from the previous request's end
// (weighted by SequentialProbability) or jumps to a new random offset.
func generateWorkload(w WorkloadParams, contentSize int64, rng *RNG) []requestPlan {
	if contentSize <= 0 || w.RequestSizeBytes <= 0 {
		return nil
	}
	plans := make([]requestPlan, 0, w.NumRequests)
	var lastEnd int64
	haveLast := false
	t := 0.0

	for i := 0; i < w.NumRequests; i++ {
		var offset int64
		if haveLast && rng.Float64() < w.SequentialProbability {
			offset = lastEnd
			if offset >= contentSize {
				offset = 0
			}
		} else {
			offset = rng.Int63n(contentSize)
		}

		length := w.RequestSizeBytes
		if offset+length > contentSize {
			length = contentSize - offset
		}
		if length <= 0 {
			offset = 0
			length = w.RequestSizeBytes
			if length > contentSize {
				length = contentSize
			}
		}

		plans = append(plans, requestPlan{Time: t, Offset: offset, Length: length})
		lastEnd = offset + length
		haveLast = true
		t += w.RequestIntervalSecs
	}

	return plans
}
