// Package painter implements MerklePainter: the active orchestrator that
// plans downloads, de-duplicates in-flight fetches, verifies chunks
// against a reference tree, commits them through a MerklePane, and
// speculates ahead on sustained sequential access.
package painter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nosqlbench/nbdatatools-sub010/internal/eventlog"
	"github.com/nosqlbench/nbdatatools-sub010/internal/merkleshape"
	"github.com/nosqlbench/nbdatatools-sub010/internal/merkletree"
	"github.com/nosqlbench/nbdatatools-sub010/internal/pane"
	"github.com/nosqlbench/nbdatatools-sub010/internal/transport"
	"sync"
)

// ErrCancelled is wrapped (together with the context's own error) by the
// error Paint returns when a paint is abandoned due to context
// cancellation; no partial chunk is ever committed in this case.
var ErrCancelled = errors.New("painter: cancelled")

// Painter orchestrates downloads for one artifact's pane.
type Painter struct {
	pane      *pane.Pane
	reference *merkletree.ReferenceTree
	transport transport.ChunkedTransport
	shape     merkleshape.Shape
	cfg       Config
	sink      eventlog.Sink

	schedulingMutex sync.Mutex
	inFlight        map[int64]*chunkFuture

	contiguity contiguityTracker

	sem chan struct{}

	closeOnce sync.Once
}

// New creates a Painter over an already-open pane and reference tree. If
// sink is nil, events are discarded.
func New(p *pane.Pane, reference *merkletree.ReferenceTree, t transport.ChunkedTransport, cfg Config, sink eventlog.Sink) *Painter {
	if sink == nil {
		sink = eventlog.NopSink{}
	}
	maxConns := t.MaxConcurrentConnections()
	if maxConns <= 0 {
		maxConns = 1
	}
	return &Painter{
		pane:      p,
		reference: reference,
		transport: t,
		shape:     p.Shape(),
		cfg:       cfg,
		sink:      sink,
		inFlight:  make(map[int64]*chunkFuture),
		sem:       make(chan struct{}, maxConns),
	}
}

// IsRangeValid reports whether every chunk covering [a,b) is already
// intact, allowing the caller to skip all planning (§4.6.1).
func (p *Painter) IsRangeValid(a, b int64) bool {
	if b <= a {
		return true
	}
	start := p.shape.LeafIndex(a)
	end := p.shape.LeafIndex(b - 1)
	for c := start; c <= end; c++ {
		if !p.pane.IsChunkIntact(c) {
			return false
		}
	}
	return true
}

// Paint blocks until every chunk in [a,b) is intact, or returns the
// worst failure encountered.
func (p *Painter) Paint(ctx context.Context, a, b int64) error {
	progress := p.PaintAsync(ctx, a, b)
	err := progress.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return err
}

// PaintAsync returns immediately with a handle tracking the paint's
// progress; the paint itself proceeds concurrently.
func (p *Painter) PaintAsync(ctx context.Context, a, b int64) *DownloadProgress {
	total := b - a
	if total < 0 {
		total = 0
	}
	progress := newDownloadProgress(total)

	if p.IsRangeValid(a, b) {
		progress.complete(nil)
		return progress
	}

	go p.run(ctx, a, b, progress)
	return progress
}

// run performs the full plan/reserve/fetch/verify/commit cycle for
// [a,b) and, if auto-buffering has kicked in, fires off read-ahead.
func (p *Painter) run(ctx context.Context, a, b int64, progress *DownloadProgress) {
	start := p.shape.LeafIndex(a)
	end := p.shape.LeafIndex(b - 1)

	autoBufferOn := p.contiguity.observe(a, b)
	if autoBufferOn {
		p.sink.Emit(eventlog.AutoBufferOn, nil)
	}

	ours, waitFutures, skipForPlanning := p.reserveChunks(start, end)

	ranges := PlanRanges(p.shape, start, end, p.cfg.MinDownloadSize, p.cfg.MaxDownloadSize, func(c int64) bool {
		return p.pane.IsChunkIntact(c) || skipForPlanning[c]
	})

	var wg sync.WaitGroup
	for _, rng := range ranges {
		rng := rng
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.fetchAndCommitRange(ctx, rng, ours, progress)
		}()
	}
	wg.Wait()

	var firstErr error
	for _, f := range waitFutures {
		ok, err := f.wait(ctx)
		if !ok && firstErr == nil {
			if err != nil {
				firstErr = err
			} else {
				firstErr = fmt.Errorf("painter: chunk verification failed")
			}
		}
	}
	progress.complete(firstErr)

	if autoBufferOn && firstErr == nil {
		p.scheduleReadAhead(ctx, end)
	}
}

// reserveChunks atomically reserves every not-yet-intact chunk in
// [start,end] for this call: chunks already in flight are returned for
// waiting only (shared with whoever owns them); chunks with no existing
// future are claimed as "ours" and must be fetched by this call. This is
// the de-duplication contract (§4.6.4, P6).
func (p *Painter) reserveChunks(start, end int64) (ours map[int64]*chunkFuture, waitFutures []*chunkFuture, skipForPlanning map[int64]bool) {
	ours = make(map[int64]*chunkFuture)
	skipForPlanning = make(map[int64]bool)

	p.schedulingMutex.Lock()
	defer p.schedulingMutex.Unlock()

	for c := start; c <= end; c++ {
		if p.pane.IsChunkIntact(c) {
			continue
		}
		if f, ok := p.inFlight[c]; ok {
			waitFutures = append(waitFutures, f)
			skipForPlanning[c] = true
			continue
		}
		f := newChunkFuture()
		p.inFlight[c] = f
		ours[c] = f
		waitFutures = append(waitFutures, f)
	}
	return ours, waitFutures, skipForPlanning
}

// releaseChunk removes chunk's in-flight entry once its future has
// resolved (success or failure), per the "always remove on completion"
// rule of §4.6.5 step 4.
func (p *Painter) releaseChunk(chunk int64) {
	p.schedulingMutex.Lock()
	delete(p.inFlight, chunk)
	p.schedulingMutex.Unlock()
}

// fetchAndCommitRange issues one coalesced transport fetch for rng,
// slices it into per-chunk views, and verifies+commits each chunk owned
// by this call (present in ours). A whole-range transport failure fails
// every owned chunk in rng; a per-chunk verification mismatch is retried
// individually before failing just that chunk.
func (p *Painter) fetchAndCommitRange(ctx context.Context, rng Range, ours map[int64]*chunkFuture, progress *DownloadProgress) {
	p.sem <- struct{}{}
	defer func() { <-p.sem }()

	lo, _ := p.shape.ChunkRange(rng.StartChunk)
	_, hi := p.shape.ChunkRange(rng.EndChunk - 1)
	length := hi - lo

	p.sink.Emit(eventlog.RangeStart, map[string]string{
		"offset": fmt.Sprintf("%d", lo),
		"length": fmt.Sprintf("%d", length),
	})

	data, err := p.fetchRangeWithRetry(ctx, lo, length)
	if err != nil {
		p.sink.Emit(eventlog.ErrorDownload, map[string]string{"offset": fmt.Sprintf("%d", lo), "error": err.Error()})
		for c := rng.StartChunk; c < rng.EndChunk; c++ {
			if f, ok := ours[c]; ok {
				f.complete(false, err)
				p.releaseChunk(c)
			}
		}
		return
	}

	for c := rng.StartChunk; c < rng.EndChunk; c++ {
		f, ok := ours[c]
		if !ok {
			continue
		}
		clo, chi := p.shape.ChunkRange(c)
		chunkBytes := data[clo-lo : chi-lo]
		p.verifyAndCommitChunk(ctx, c, chunkBytes, f, progress)
	}

	p.sink.Emit(eventlog.RangeComplete, map[string]string{
		"offset": fmt.Sprintf("%d", lo),
		"length": fmt.Sprintf("%d", length),
	})
}

// verifyAndCommitChunk hashes bytes, compares against the reference, and
// either commits (on match) or retries with a fresh single-chunk fetch
// (up to cfg.ChunkRetries) before declaring the chunk a verification
// failure.
func (p *Painter) verifyAndCommitChunk(ctx context.Context, chunk int64, bytes []byte, f *chunkFuture, progress *DownloadProgress) {
	defer p.releaseChunk(chunk)

	want := p.reference.LeafHash(chunk)
	got := merkletree.HashChunk(bytes)

	attempt := 0
	for got != want {
		attempt++
		p.sink.Emit(eventlog.ChunkVfyFail, map[string]string{
			"chunk": fmt.Sprintf("%d", chunk),
			"want":  fmt.Sprintf("%x", want),
			"got":   fmt.Sprintf("%x", got),
		})
		if attempt > p.cfg.ChunkRetries {
			f.complete(false, fmt.Errorf("painter: chunk %d: %w", chunk, pane.ErrVerificationFailed))
			return
		}
		clo, chi := p.shape.ChunkRange(chunk)
		fresh, err := p.fetchRangeWithRetry(ctx, clo, chi-clo)
		if err != nil {
			f.complete(false, fmt.Errorf("painter: chunk %d retry: %w", chunk, err))
			return
		}
		bytes = fresh
		got = merkletree.HashChunk(bytes)
	}

	if err := p.pane.SubmitChunkWithHash(chunk, bytes, got); err != nil {
		p.sink.Emit(eventlog.ErrorHash, map[string]string{"chunk": fmt.Sprintf("%d", chunk), "error": err.Error()})
		f.complete(false, err)
		return
	}

	p.sink.Emit(eventlog.ChunkVfyOK, map[string]string{"chunk": fmt.Sprintf("%d", chunk)})
	progress.addBytes(int64(len(bytes)))
	f.complete(true, nil)
}

// fetchRangeWithRetry retries a single ranged transport fetch up to
// cfg.RangeRetries times with exponential backoff (100ms, doubling per
// retry), each attempt bounded by cfg.RangeTimeout.
func (p *Painter) fetchRangeWithRetry(ctx context.Context, offset, length int64) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.RangeRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(1<<(attempt-1)) * 100 * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		rangeCtx, cancel := context.WithTimeout(ctx, p.cfg.RangeTimeout)
		data, err := p.transport.FetchRange(rangeCtx, offset, length)
		cancel()
		if err == nil {
			return data, nil
		}
		lastErr = err
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("painter: fetch range [%d,%d) failed after %d attempts: %w", offset, offset+length, p.cfg.RangeRetries+1, lastErr)
}

// scheduleReadAhead scans forward from just past endChunk for up to
// ReadAheadChunks non-intact, non-in-flight chunks, reserves them, and
// dispatches them through the same planner (packed toward MaxDownloadSize
// since this is pure speculation, not a size-gated user request).
func (p *Painter) scheduleReadAhead(ctx context.Context, endChunk int64) {
	candidates := p.scanReadAheadCandidates(endChunk)
	if len(candidates) == 0 {
		return
	}

	p.sink.Emit(eventlog.ReadAhead, map[string]string{"count": fmt.Sprintf("%d", len(candidates))})

	rangeStart := candidates[0]
	rangeEnd := candidates[len(candidates)-1]

	ours, _, skipForPlanning := p.reserveChunks(rangeStart, rangeEnd)
	wanted := make(map[int64]bool, len(candidates))
	for _, c := range candidates {
		wanted[c] = true
	}

	ranges := PlanRanges(p.shape, rangeStart, rangeEnd, 0, p.cfg.MaxDownloadSize, func(c int64) bool {
		return !wanted[c] || p.pane.IsChunkIntact(c) || skipForPlanning[c]
	})

	progress := newDownloadProgress(0)
	for _, rng := range ranges {
		rng := rng
		go p.fetchAndCommitRange(ctx, rng, ours, progress)
	}
}

func (p *Painter) scanReadAheadCandidates(endChunk int64) []int64 {
	var out []int64
	for c := endChunk + 1; c < p.shape.LeafCount && len(out) < ReadAheadChunks; c++ {
		if p.pane.IsChunkIntact(c) {
			continue
		}
		p.schedulingMutex.Lock()
		_, busy := p.inFlight[c]
		p.schedulingMutex.Unlock()
		if busy {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Close releases the transport and triggers the pane's shutdown sequence.
func (p *Painter) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.sink.Emit(eventlog.ShutdownStart, nil)
		if tErr := p.transport.Close(); tErr != nil {
			err = tErr
		}
		if pErr := p.pane.Close(); pErr != nil && err == nil {
			err = pErr
		}
		if err != nil {
			p.sink.Emit(eventlog.ShutdownFailed, map[string]string{"error": err.Error()})
		} else {
			p.sink.Emit(eventlog.ShutdownOK, nil)
		}
	})
	return err
}
