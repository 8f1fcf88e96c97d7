package painter

import (
	"context"
	"sync"
)

// chunkFuture represents the outcome of fetching+verifying a single
// chunk, shared by every caller whose requested range overlaps it (the
// in-flight de-duplication contract, P6).
type chunkFuture struct {
	done chan struct{}
	once sync.Once
	ok   bool
	err  error
}

func newChunkFuture() *chunkFuture {
	return &chunkFuture{done: make(chan struct{})}
}

// complete resolves the future exactly once; subsequent calls are no-ops.
func (f *chunkFuture) complete(ok bool, err error) {
	f.once.Do(func() {
		f.ok = ok
		f.err = err
		close(f.done)
	})
}

// wait blocks until the future resolves or ctx is done.
func (f *chunkFuture) wait(ctx context.Context) (bool, error) {
	select {
	case <-f.done:
		return f.ok, f.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// DownloadProgress is returned by PaintAsync: a cancellable handle on an
// in-progress paint covering a user-requested byte range.
type DownloadProgress struct {
	TotalBytes   int64
	currentBytes int64 // guarded by mu

	mu   sync.Mutex
	done chan struct{}
	err  error
}

func newDownloadProgress(totalBytes int64) *DownloadProgress {
	return &DownloadProgress{
		TotalBytes: totalBytes,
		done:       make(chan struct{}),
	}
}

// CurrentBytes returns the number of verified bytes committed so far.
func (p *DownloadProgress) CurrentBytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentBytes
}

func (p *DownloadProgress) addBytes(n int64) {
	p.mu.Lock()
	p.currentBytes += n
	p.mu.Unlock()
}

func (p *DownloadProgress) complete(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.done:
		return
	default:
		p.err = err
		close(p.done)
	}
}

// Wait blocks until the paint completes (or ctx is cancelled) and returns
// its terminal error, if any.
func (p *DownloadProgress) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
