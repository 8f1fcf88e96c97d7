// Package sim implements the event-driven simulation core: a
// single-threaded cooperative event loop that exercises the four
// scheduler strategies against a parameterized network and synthetic
// read workload, entirely independent of the real painter/pane/tree
// stack, to compare scheduling policies without touching a network.
package sim

import "container/heap"

// Config parameterizes one simulation run. Two runs with identical
// Config (including Seed) produce byte-identical Summary output (P7),
// since every source of randomness in the run derives from the single
// seeded RNG.
type Config struct {
	ContentSize          int64
	ChunkSize            int64
	AvailableConnections int
	SimulationDuration   float64
	Seed                 uint64
	Strategy             string
	Network              NetworkParams
	Workload             WorkloadParams
}

// DefaultConfig returns a reasonable baseline run.
func DefaultConfig() Config {
	return Config{
		ContentSize:          64 * 1024 * 1024,
		ChunkSize:            1024 * 1024,
		AvailableConnections: 8,
		SimulationDuration:   60,
		Seed:                 1,
		Strategy:             "default",
		Network:              DefaultNetworkParams(),
		Workload:             DefaultWorkloadParams(),
	}
}

type reqTracker struct {
	remaining int
	startTime float64
}

// Simulation is one run's mutable engine state.
type Simulation struct {
	cfg       Config
	scheduler Scheduler
	rng       *RNG
	state     *EngineState
	numChunks int64

	queue eventQueue
	ids   eventIDCounter

	pending        []int64
	requestTracker map[int64]*reqTracker
	chunkWaiters   map[int64][]int64
}

// New constructs a simulation ready to Run.
func New(cfg Config) *Simulation {
	numChunks := (cfg.ContentSize + cfg.ChunkSize - 1) / cfg.ChunkSize
	if numChunks <= 0 {
		numChunks = 1
	}
	return &Simulation{
		cfg:            cfg,
		scheduler:      NewScheduler(cfg.Strategy),
		rng:            NewRNG(cfg.Seed),
		state:          newEngineState(numChunks),
		numChunks:      numChunks,
		requestTracker: make(map[int64]*reqTracker),
		chunkWaiters:   make(map[int64][]int64),
	}
}

func (s *Simulation) push(ev *Event) {
	ev.ID = s.ids.nextID()
	heap.Push(&s.queue, ev)
}

// Run executes the event loop to completion (queue drained, or clock
// reaching SimulationDuration) and returns the finalized statistics.
func (s *Simulation) Run() Summary {
	heap.Init(&s.queue)

	plans := generateWorkload(s.cfg.Workload, s.cfg.ContentSize, s.rng)
	for i, p := range plans {
		s.push(&Event{Time: p.Time, Kind: ReadRequest, Offset: p.Offset, Length: p.Length, RequestID: int64(i)})
	}
	s.push(&Event{Time: s.cfg.SimulationDuration, Kind: SimulationEnd})

loop:
	for s.queue.Len() > 0 {
		ev := heap.Pop(&s.queue).(*Event)
		if ev.Time > s.cfg.SimulationDuration {
			break
		}
		switch ev.Kind {
		case SimulationEnd:
			break loop
		case ReadRequest:
			s.handleReadRequest(ev)
		case DownloadStart:
			s.handleDownloadStart(ev)
		case DownloadComplete:
			s.handleDownloadComplete(ev)
		case DownloadFailed:
			s.handleDownloadFailed(ev)
		}
	}

	targetLatency := s.cfg.Network.BaseLatencySeconds + float64(s.cfg.Workload.RequestSizeBytes)/nonZero(s.cfg.Network.BandwidthBps)
	return s.state.Stats.Finalize(s.cfg.Network.BandwidthBps, targetLatency)
}

func nonZero(f float64) float64 {
	if f <= 0 {
		return 1
	}
	return f
}

func (s *Simulation) chunkBytes(chunk int64) int64 {
	start := chunk * s.cfg.ChunkSize
	end := start + s.cfg.ChunkSize
	if end > s.cfg.ContentSize {
		end = s.cfg.ContentSize
	}
	if end < start {
		return 0
	}
	return end - start
}

func (s *Simulation) handleReadRequest(ev *Event) {
	start, end, _ := chunksForRange(ev.Offset, ev.Length, s.cfg.ChunkSize, s.cfg.ContentSize)
	needed := chunkRangeSlice(start, end)

	var neededNonValid []int64
	for _, c := range needed {
		if !s.state.IsValid(c) {
			neededNonValid = append(neededNonValid, c)
		}
	}
	if len(neededNonValid) == 0 {
		s.state.Stats.recordRequest(0, true)
		return
	}

	tracker := &reqTracker{remaining: len(neededNonValid), startTime: ev.Time}
	s.requestTracker[ev.RequestID] = tracker
	for _, c := range neededNonValid {
		s.chunkWaiters[c] = append(s.chunkWaiters[c], ev.RequestID)
	}

	result := s.scheduler.Schedule(ScheduleRequest{
		Now:                  ev.Time,
		Offset:               ev.Offset,
		Length:               ev.Length,
		ChunkSize:            s.cfg.ChunkSize,
		ContentSize:          s.cfg.ContentSize,
		AvailableConnections: s.cfg.AvailableConnections,
		State:                s.state,
	})

	started := 0
	for _, c := range result.Chunks {
		if s.state.IsValid(c) || s.state.isInProgress(c) {
			continue
		}
		if started < result.ConcurrencyLimit && s.state.ConnectionsInUse() < s.cfg.AvailableConnections {
			s.startDownload(c, ev.Time)
			started++
		} else {
			s.pending = append(s.pending, c)
		}
	}
}

func (s *Simulation) startDownload(chunk int64, now float64) {
	s.state.markInProgress(chunk)
	s.push(&Event{Time: now, Kind: DownloadStart, Chunk: chunk})
}

func (s *Simulation) handleDownloadStart(ev *Event) {
	bytes := s.chunkBytes(ev.Chunk)
	duration := s.cfg.Network.transferTime(s.rng, bytes)
	if s.cfg.Network.fails(s.rng) {
		s.push(&Event{Time: ev.Time + duration, Kind: DownloadFailed, Chunk: ev.Chunk, StartedAt: ev.Time})
		return
	}
	s.push(&Event{Time: ev.Time + duration, Kind: DownloadComplete, Chunk: ev.Chunk, StartedAt: ev.Time})
}

func (s *Simulation) handleDownloadComplete(ev *Event) {
	bytes := s.chunkBytes(ev.Chunk)
	s.state.Stats.recordDownload(ev.Time-ev.StartedAt, bytes, false)
	s.state.markValid(ev.Chunk)
	s.state.clearInProgress(ev.Chunk)
	s.resolveWaiters(ev.Chunk, ev.Time)
	s.drainPending(ev.Time)
}

func (s *Simulation) handleDownloadFailed(ev *Event) {
	bytes := s.chunkBytes(ev.Chunk)
	s.state.Stats.recordDownload(ev.Time-ev.StartedAt, bytes, true)
	s.state.clearInProgress(ev.Chunk)
	s.resolveWaiters(ev.Chunk, ev.Time)
	s.drainPending(ev.Time)
}

func (s *Simulation) resolveWaiters(chunk int64, now float64) {
	waiters := s.chunkWaiters[chunk]
	delete(s.chunkWaiters, chunk)
	for _, reqID := range waiters {
		tracker, ok := s.requestTracker[reqID]
		if !ok {
			continue
		}
		tracker.remaining--
		if tracker.remaining <= 0 {
			s.state.Stats.recordRequest(now-tracker.startTime, false)
			delete(s.requestTracker, reqID)
		}
	}
}

func (s *Simulation) drainPending(now float64) {
	for len(s.pending) > 0 && s.state.ConnectionsInUse() < s.cfg.AvailableConnections {
		chunk := s.pending[0]
		s.pending = s.pending[1:]
		if s.state.IsValid(chunk) || s.state.isInProgress(chunk) {
			continue
		}
		s.startDownload(chunk, now)
	}
}
