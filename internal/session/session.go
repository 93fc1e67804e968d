// ABOUTME: SessionEngine: the idle->connecting->handshaking->connected->stream_active state machine
// ABOUTME: A single worker goroutine owns all mutation; listener callbacks fire outside any internal lock
package session

import (
	"context"
	"encoding/base64"
	"log"
	"sync"
	"time"

	"github.com/sendspin-audio/client-go/internal/audio"
	"github.com/sendspin-audio/client-go/internal/burstsync"
	"github.com/sendspin-audio/client-go/internal/decode"
	"github.com/sendspin-audio/client-go/internal/outputsink"
	"github.com/sendspin-audio/client-go/internal/protocol"
	"github.com/sendspin-audio/client-go/internal/scheduler"
	"github.com/sendspin-audio/client-go/internal/timefilter"
	"github.com/sendspin-audio/client-go/internal/transport"
	"github.com/sendspin-audio/client-go/internal/version"
)

// State is the session's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateHandshaking
	StateConnected
	StateStreamActive
	StateClosing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateConnected:
		return "connected"
	case StateStreamActive:
		return "stream_active"
	case StateClosing:
		return "closing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	handshakeTimeout = 5 * time.Second
	eventQueueDepth  = 64
)

// PlayerState mirrors the player-role fields carried in client/state and
// server/command.
type PlayerState struct {
	Volume int
	Muted  bool
}

// Metadata is the last-known track-metadata snapshot from server/state.
type Metadata struct {
	Timestamp       int64
	Title           string
	Artist          string
	AlbumArtist     string
	Album           string
	ArtworkURL      string
	Year            int
	Track           int
	TrackProgressMs int
	TrackDurationMs int
	PlaybackSpeed   int
}

// Snapshot is the transient, non-persisted telemetry view spec §6 promises
// the host on request.
type Snapshot struct {
	State       State
	Format      audio.Format
	Player      PlayerState
	Metadata    Metadata
	FilterStats timefilter.Stats
}

// Listener receives engine events. Every method is invoked from the
// engine's own worker goroutine, except the StateConnecting notification
// that Start fires on its caller's goroutine; none is invoked while an
// internal lock is held.
type Listener interface {
	OnStateChanged(state State)
	OnServerHello(hello protocol.ServerHello)
	OnMetadata(meta Metadata)
	OnPlayerState(player PlayerState)
	OnGroupUpdate(update protocol.GroupUpdate)
	OnAuxFrame(tag byte, timestampUs int64, payload []byte)
	OnSyncOffset(playerID string, offsetMs int, source string)
	OnError(kind error)
}

// Config is the capability set advertised in client/hello and the engine's
// tunables.
type Config struct {
	ClientID          string
	Name              string
	SupportedRoles    []string
	ProductName       string
	Manufacturer      string
	SoftwareVersion   string
	SupportedFormats  []protocol.AudioFormat
	BufferCapacity    int
	SupportedCommands []string

	// LargeCorrectionThresholdUs is the |Δoffset| above which the
	// scheduler recomputes future deadlines instead of skewing already-
	// queued buffers (spec §4.8); 0 keeps burstsync's 20ms default.
	LargeCorrectionThresholdUs int64
}

func (c Config) withDefaults() Config {
	if c.ProductName == "" {
		c.ProductName = version.Product
	}
	if c.Manufacturer == "" {
		c.Manufacturer = version.Manufacturer
	}
	if c.SoftwareVersion == "" {
		c.SoftwareVersion = version.Version
	}
	if c.SupportedRoles == nil {
		c.SupportedRoles = []string{"player@v1"}
	}
	return c
}

// Engine is the session state machine. It owns the burst manager, time
// filter, decoder pipeline, and scheduler for one connected session; it is
// rebuilt (via New) for the next connection attempt.
type Engine struct {
	cfg       Config
	transport transport.Transport
	filter    *timefilter.Filter
	burst     *burstsync.Manager
	decoder   *decode.Pipeline
	sched     *scheduler.Scheduler
	sink      outputsink.Sink
	listener  Listener
	logger    *log.Logger

	mu       sync.Mutex
	state    State
	format   audio.Format
	player   PlayerState
	metadata Metadata
	streamed bool

	events chan event

	handshakeCancel context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	nowFunc func() int64
}

// New builds an Engine with no transport bound yet. Construction is two
// phase because the transport itself must be built with this Engine's own
// Listener (see NewTransportListener) — a genuine chicken-and-egg that two
// steps resolve cleanly: New the engine, build NewTransportListener(e),
// pass that listener to the Transport constructor, then BindTransport.
// filter and sink outlive a single session (filter may be frozen/thawed
// across reconnects); the decoder pipeline and scheduler are owned by this
// engine and rebuilt for each new session.
func New(cfg Config, filter *timefilter.Filter, sink outputsink.Sink, listener Listener, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	e := &Engine{
		cfg:      cfg.withDefaults(),
		filter:   filter,
		decoder:  decode.NewPipeline(),
		sink:     sink,
		listener: listener,
		logger:   logger,
		state:    StateIdle,
		player:   PlayerState{Volume: 100, Muted: false},
		events:   make(chan event, eventQueueDepth),
		nowFunc:  func() int64 { return time.Now().UnixMicro() },
	}
	e.sched = scheduler.New(filter, sink, logger)
	e.burst = burstsync.New(e.sendClientTime, filter, logger)
	if e.cfg.LargeCorrectionThresholdUs > 0 {
		e.burst.SetLargeCorrectionThreshold(e.cfg.LargeCorrectionThresholdUs)
	}
	e.burst.SetOnLargeCorrection(func(deltaUs int64) {
		e.logger.Printf("session: large clock correction Δ=%dus, recomputing future deadlines", deltaUs)
		e.sched.OnLargeClockCorrection()
	})
	return e
}

// BindTransport attaches tr, which must already have been constructed with
// this Engine's NewTransportListener(e) as its transport.Listener. Must be
// called before Start.
func (e *Engine) BindTransport(tr transport.Transport) {
	e.transport = tr
}

// State returns the current session state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Snapshot returns a point-in-time view for telemetry.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		State:       e.state,
		Format:      e.format,
		Player:      e.player,
		Metadata:    e.metadata,
		FilterStats: e.filter.Stats(),
	}
}

// SchedulerStats returns the scheduler's queue/drop telemetry, for hosts
// building their own playback-quality UI.
func (e *Engine) SchedulerStats() scheduler.Stats {
	return e.sched.Stats()
}

// SetBufferCapacityBytes adjusts the scheduler's queued-PCM byte budget,
// e.g. to apply the host's output_buffer_capacity / low-memory-mode config.
func (e *Engine) SetBufferCapacityBytes(n int64) {
	e.sched.SetCapacityBytes(n)
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	e.listener.OnStateChanged(s)
}

// Start launches the worker goroutine and the scheduler's own poll loop,
// and begins dialing the transport in the I/O group (a separate goroutine,
// since Transport.Connect blocks until connected or failed).
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})

	e.sched.Start(e.ctx)
	go e.audioDrainLoop()
	go e.worker()

	e.setState(StateConnecting)
	go func() {
		if err := e.transport.Connect(); err != nil {
			e.logger.Printf("session: connect failed: %v", err)
		}
	}()
}

// Wait blocks until the worker loop has exited (failure or closing
// completion).
func (e *Engine) Wait() {
	<-e.done
}

// Disconnect performs the user-initiated shutdown sequence: client/goodbye,
// stop the burst manager, freeze the filter if ready, close the transport.
func (e *Engine) Disconnect(reason string) {
	select {
	case e.events <- disconnectEvent{reason: reason}:
	case <-e.ctx.Done():
	}
}

// SetVolume requests a local volume change (0-100, clamped), the same way
// a host UI action would. The change is applied on the worker goroutine
// and reported to the server via client/state.
func (e *Engine) SetVolume(volume int) {
	e.enqueue(setVolumeEvent{volume: volume})
}

// SetMuted requests a local mute-state change, applied and reported the
// same way as SetVolume.
func (e *Engine) SetMuted(muted bool) {
	e.enqueue(setMutedEvent{muted: muted})
}

func (e *Engine) enqueue(ev event) {
	if e.ctx == nil {
		return
	}
	select {
	case e.events <- ev:
	case <-e.ctx.Done():
	}
}

// audioDrainLoop feeds decoded buffers the scheduler judged imminent to the
// output sink; it runs for the lifetime of the session independent of the
// worker's event loop, matching spec §5's separate audio group.
func (e *Engine) audioDrainLoop() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case buf, ok := <-e.sched.Output():
			if !ok {
				return
			}
			localDeadlineUs := e.filter.ServerToClient(buf.ServerTimestampUs)
			if !e.sink.Push(localDeadlineUs, buf.Samples) {
				e.logger.Printf("session: output sink rejected a buffer (overflow)")
			}
		}
	}
}

func (e *Engine) worker() {
	defer close(e.done)
	for {
		select {
		case <-e.ctx.Done():
			return
		case ev := <-e.events:
			e.handleEvent(ev)
		}
	}
}

func (e *Engine) handleEvent(ev event) {
	switch v := ev.(type) {
	case connectedEvent:
		e.handleConnected()
	case textEvent:
		e.handleText(v.data)
	case binaryEvent:
		e.handleBinary(v.data)
	case closingEvent:
		// Best-effort notice; the authoritative transition happens on closedEvent.
	case closedEvent:
		e.handleClosed(v.code, v.reason)
	case failureEvent:
		e.handleFailure(v.err, v.recoverable)
	case handshakeTimeoutEvent:
		e.handleHandshakeTimeout()
	case disconnectEvent:
		e.handleDisconnect(v.reason)
	case setVolumeEvent:
		e.handleSetVolume(v.volume)
	case setMutedEvent:
		e.handleSetMuted(v.muted)
	}
}

func (e *Engine) sendMessage(msgType string, payload interface{}) bool {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		e.logger.Printf("session: encode %s: %v", msgType, err)
		return false
	}
	return e.transport.SendText(data)
}

// decodeCodecHeader base64-decodes stream/start's optional codec_header,
// returning nil (not an error) when absent.
func decodeCodecHeader(b64 string) ([]byte, error) {
	if b64 == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(b64)
}
