package sim

// NetworkParams parameterizes the simulated transport: a fixed latency
// floor plus a bandwidth-bound transfer, both jittered per-download so
// repeated fetches of the same size don't take identical time.
type NetworkParams struct {
	BaseLatencySeconds float64
	BandwidthBps       float64
	JitterFraction     float64 // 0 disables jitter; 0.1 = +/-10%
	FailureRate        float64 // probability [0,1) a download fails outright
}

// DefaultNetworkParams models a modest broadband link.
func DefaultNetworkParams() NetworkParams {
	return NetworkParams{
		BaseLatencySeconds: 0.02,
		BandwidthBps:       50 * 1024 * 1024,
		JitterFraction:     0.1,
		FailureRate:        0,
	}
}

// transferTime returns the simulated duration of a single chunk
// download: the parameterized latency plus bytes/bandwidth, each
// independently jittered by the RNG.
func (n NetworkParams) transferTime(rng *RNG, bytes int64) float64 {
	latency := n.BaseLatencySeconds * n.jitter(rng)
	bandwidth := n.BandwidthBps
	if bandwidth <= 0 {
		bandwidth = 1
	}
	transfer := float64(bytes) / bandwidth * n.jitter(rng)
	return latency + transfer
}

func (n NetworkParams) jitter(rng *RNG) float64 {
	if n.JitterFraction <= 0 {
		return 1
	}
	spread := (rng.Float64()*2 - 1) * n.JitterFraction
	factor := 1 + spread
	if factor < 0.01 {
		factor = 0.01
	}
	return factor
}

func (n NetworkParams) fails(rng *RNG) bool {
	if n.FailureRate <= 0 {
		return false
	}
	return rng.Float64() < n.FailureRate
}
