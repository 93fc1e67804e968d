// ABOUTME: Deadline-ordered playout scheduler translating server timestamps to local deadlines
// ABOUTME: Bounded by byte capacity with oldest-drop overflow and a 100ms late-sample skip policy
package scheduler

import (
	"container/heap"
	"context"
	"log"
	"sync"
	"time"

	"github.com/sendspin-audio/client-go/internal/audio"
	"github.com/sendspin-audio/client-go/internal/timefilter"
)

const (
	// defaultCapacityBytes is the default queued-PCM byte budget (32 MB).
	defaultCapacityBytes = 32 * 1024 * 1024

	// lateThreshold is how far past its deadline a queued entry may sit
	// before being dropped on push, per spec §4.8.
	lateThreshold = 100 * time.Millisecond

	// overflowWarnInterval rate-limits the "dropped oldest for overflow" log.
	overflowWarnInterval = 1 * time.Second

	tickInterval = 10 * time.Millisecond
)

// Stats mirrors the teacher's SchedulerStats shape, extended with the
// overflow counter spec's byte-capacity policy requires.
type Stats struct {
	Received int64
	Played   int64
	DroppedLate     int64
	DroppedOverflow int64
	QueuedBytes     int64
}

// Sink is polled for its own latency floor: a buffer is handed off once
// its local deadline is within that floor of now.
type Sink interface {
	LatencyFloor() time.Duration
}

type entry struct {
	localDeadlineUs int64
	buf             audio.Buffer
	sizeBytes       int
}

// queue is a min-heap over local deadlines, adapted from the teacher's
// container/heap-based BufferQueue.
type queue struct {
	items []entry
}

func (q *queue) Len() int { return len(q.items) }
func (q *queue) Less(i, j int) bool {
	return q.items[i].localDeadlineUs < q.items[j].localDeadlineUs
}
func (q *queue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }
func (q *queue) Push(x interface{}) {
	q.items = append(q.items, x.(entry))
}
func (q *queue) Pop() interface{} {
	n := len(q.items)
	item := q.items[n-1]
	q.items = q.items[:n-1]
	return item
}
func (q *queue) Peek() entry { return q.items[0] }

// Scheduler maintains a bounded, deadline-ordered FIFO of decoded PCM
// buffers and polls a Sink to hand off whatever is next due.
type Scheduler struct {
	mu sync.Mutex

	filter *timefilter.Filter
	sink   Sink
	logger *log.Logger

	q             queue
	capacityBytes int64
	queuedBytes   int64

	stats Stats

	lastOverflowWarn time.Time

	output chan audio.Buffer

	ctx    context.Context
	cancel context.CancelFunc

	nowFunc func() int64
}

// New creates a Scheduler bound to filter for server->local deadline
// translation and sink for the imminent-handoff latency floor. logger may
// be nil, in which case log.Default() is used.
func New(filter *timefilter.Filter, sink Sink, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		filter:        filter,
		sink:          sink,
		logger:        logger,
		capacityBytes: defaultCapacityBytes,
		output:        make(chan audio.Buffer, 16),
		nowFunc:       func() int64 { return time.Now().UnixMicro() },
	}
}

// SetCapacityBytes overrides the default 32MB overflow budget.
func (s *Scheduler) SetCapacityBytes(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capacityBytes = n
}

// SetNowFunc overrides the clock source, for deterministic tests.
func (s *Scheduler) SetNowFunc(now func() int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFunc = now
}

// Output returns the channel the owning session reads ready buffers from.
func (s *Scheduler) Output() <-chan audio.Buffer {
	return s.output
}

// Stats returns a snapshot of scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	stats.QueuedBytes = s.queuedBytes
	return stats
}

// Start launches the 10ms poll loop as a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	runCtx, cancel := context.WithCancel(ctx)
	s.ctx = runCtx
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(runCtx)
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

// Stop cancels the poll loop. It does not clear the queue — callers that
// want a fresh scheduler for a new stream should call Clear explicitly.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Clear drops all queued entries and zeroes the queued-byte count, for
// stream/clear. The cumulative received, played and dropped counters are
// kept.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.q.items = nil
	s.queuedBytes = 0
}

// Push enqueues a decoded buffer, translating its server timestamp to a
// local deadline via the time filter. Samples already more than 100ms
// late relative to the local clock are dropped immediately rather than
// entering the queue.
func (s *Scheduler) Push(buf audio.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	localDeadlineUs := s.filter.ServerToClient(buf.ServerTimestampUs)
	now := s.nowFunc()

	s.stats.Received++

	lateUs := now - localDeadlineUs
	if lateUs > int64(lateThreshold/time.Microsecond) {
		s.stats.DroppedLate++
		return
	}

	size := len(buf.Samples) * 4
	e := entry{localDeadlineUs: localDeadlineUs, buf: buf, sizeBytes: size}
	heap.Push(&s.q, e)
	s.queuedBytes += int64(size)

	s.enforceCapacityLocked()
}

// enforceCapacityLocked drops the oldest (earliest-deadline) entries
// first once queued bytes exceed the configured capacity. Must be called
// with mu held.
func (s *Scheduler) enforceCapacityLocked() {
	dropped := false
	for s.queuedBytes > s.capacityBytes && s.q.Len() > 0 {
		oldest := heap.Pop(&s.q).(entry)
		s.queuedBytes -= int64(oldest.sizeBytes)
		s.stats.DroppedOverflow++
		dropped = true
	}
	if dropped && time.Since(s.lastOverflowWarn) > overflowWarnInterval {
		s.logger.Printf("scheduler: overflow, dropped oldest entries, queued=%d cap=%d", s.queuedBytes, s.capacityBytes)
		s.lastOverflowWarn = time.Now()
	}
}

// poll hands off every entry whose local deadline is imminent — at or
// before now plus the sink's own latency floor.
func (s *Scheduler) poll() {
	s.mu.Lock()
	now := s.nowFunc()
	floorUs := int64(s.sink.LatencyFloor() / time.Microsecond)

	var ready []entry
	for s.q.Len() > 0 {
		head := s.q.Peek()
		if head.localDeadlineUs > now+floorUs {
			break
		}
		ready = append(ready, heap.Pop(&s.q).(entry))
	}
	for _, e := range ready {
		s.queuedBytes -= int64(e.sizeBytes)
	}
	s.mu.Unlock()

	for _, e := range ready {
		select {
		case s.output <- e.buf:
			s.mu.Lock()
			s.stats.Played++
			s.mu.Unlock()
		case <-s.ctx.Done():
			return
		}
	}
}

// OnLargeClockCorrection recomputes local deadlines for every queued
// entry using the filter's current estimate, without skewing already-
// scheduled playback: only future (still-queued) entries are touched.
func (s *Scheduler) OnLargeClockCorrection() {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]entry, len(s.q.items))
	copy(items, s.q.items)
	for i := range items {
		items[i].localDeadlineUs = s.filter.ServerToClient(items[i].buf.ServerTimestampUs)
	}
	s.q.items = items
	heap.Init(&s.q)
}
