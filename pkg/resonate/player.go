// ABOUTME: Player is the high-level entry point: wires endpoint + transport
// ABOUTME: selection + session engine + output sink into one reconnecting client
package resonate

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/sendspin-audio/client-go/internal/endpoint"
	"github.com/sendspin-audio/client-go/internal/errkind"
	"github.com/sendspin-audio/client-go/internal/netclass"
	"github.com/sendspin-audio/client-go/internal/outputsink"
	"github.com/sendspin-audio/client-go/internal/protocol"
	"github.com/sendspin-audio/client-go/internal/scheduler"
	"github.com/sendspin-audio/client-go/internal/session"
	"github.com/sendspin-audio/client-go/internal/supervisor"
	"github.com/sendspin-audio/client-go/internal/timefilter"
	"github.com/sendspin-audio/client-go/internal/transport"
	"github.com/sendspin-audio/client-go/internal/version"
)

// DeviceInfo describes the player device advertised in client/hello.
type DeviceInfo struct {
	ProductName     string
	Manufacturer    string
	SoftwareVersion string
}

// Metadata mirrors the last-known track-metadata snapshot from server/state.
type Metadata struct {
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

// PlayerState is a point-in-time view of connection and playback condition.
type PlayerState struct {
	SessionState string // idle/connecting/handshaking/connected/stream_active/closing/failed
	AppState     string // disconnected/connecting/connected/reconnecting/failed
	Connected    bool
	Volume       int
	Muted        bool
	Codec        string
	SampleRate   int
	Channels     int
	BitDepth     int
}

// PlayerStats reports scheduler and clock-sync telemetry for a host UI.
type PlayerStats struct {
	Received        int64
	Played          int64
	DroppedLate     int64
	DroppedOverflow int64
	QueuedBytes     int64
	OffsetUs        int64
	DriftPPM        float64
	ErrorUs         float64
	Stability       float64
	SyncReady       bool
	SyncConverged   bool
}

// PlayerConfig configures one Player, bound to a single endpoint for its
// lifetime per spec §3 (a different endpoint needs a new Player).
type PlayerConfig struct {
	// Endpoint is the server record this player connects to. Must satisfy
	// endpoint.Endpoint.Validate().
	Endpoint endpoint.Endpoint

	// ClientID identifies this client instance; a random UUID if empty.
	ClientID string

	// PlayerName is the display name advertised in client/hello.
	PlayerName string

	// DeviceInfo identifies the physical device; version.Product/
	// Manufacturer/Version fill in anything left zero.
	DeviceInfo DeviceInfo

	// Volume is the initial volume (0-100); clamped, defaults to 100.
	Volume int

	// HighPowerMode requests the 15s WebSocket idle-ping interval instead
	// of the default 30s (spec §6 high_power_mode).
	HighPowerMode bool

	// StaticDelayMs is the user-tunable audio-path calibration applied in
	// the server->client conversion direction (spec §6 static_delay_ms).
	StaticDelayMs float64

	// BufferCapacityBytes bounds the scheduler's queued PCM (spec §6
	// output_buffer_capacity); 0 keeps the scheduler's 32MB default.
	BufferCapacityBytes int64

	// ClockCorrectionThresholdMs is the |Δoffset| above which the
	// scheduler recomputes future playout deadlines instead of skewing
	// already-queued buffers (spec §4.8); 0 keeps the 20ms default.
	ClockCorrectionThresholdMs float64

	// CodecPreference orders the formats advertised in client/hello (spec
	// §6 codec_preference); defaults to ["opus","flac","pcm"].
	CodecPreference []string

	// MaxReconnectAttempts caps the supervisor's backoff schedule (spec §6
	// max_reconnect_attempts); 0 uses the spec default of 11.
	MaxReconnectAttempts int

	// SignalingURL is the WebRTC signaling endpoint, required only if
	// Endpoint carries a remote descriptor.
	SignalingURL string

	// NetObserver reports network-class changes; a static "unknown"
	// observer is used if nil.
	NetObserver netclass.Observer

	// Sink is the decoded-PCM output device; a malgo-backed sink is used
	// if nil.
	Sink outputsink.Sink

	// Logger receives diagnostic output; log.Default() is used if nil.
	Logger *log.Logger

	// OnMetadata, OnStateChange, and OnError are invoked from the
	// session's own worker goroutine (spec §5) — never call back into
	// Player synchronously from within them.
	OnMetadata    func(Metadata)
	OnStateChange func(PlayerState)
	OnError       func(error)
}

func (c PlayerConfig) withDefaults() PlayerConfig {
	if c.ClientID == "" {
		c.ClientID = uuid.New().String()
	}
	if c.Volume == 0 {
		c.Volume = 100
	}
	if c.Volume > 100 {
		c.Volume = 100
	} else if c.Volume < 0 {
		c.Volume = 0
	}
	if c.DeviceInfo.ProductName == "" {
		c.DeviceInfo.ProductName = version.Product
	}
	if c.DeviceInfo.Manufacturer == "" {
		c.DeviceInfo.Manufacturer = version.Manufacturer
	}
	if c.DeviceInfo.SoftwareVersion == "" {
		c.DeviceInfo.SoftwareVersion = version.Version
	}
	if len(c.CodecPreference) == 0 {
		c.CodecPreference = []string{"opus", "flac", "pcm"}
	}
	if c.NetObserver == nil {
		c.NetObserver = staticNetObserver{}
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// staticNetObserver is the default netclass.Observer used when the host
// does not supply one: always "unknown", never calls back.
type staticNetObserver struct{}

func (staticNetObserver) Class() netclass.Class      { return netclass.ClassUnknown }
func (staticNetObserver) OnChange(func(netclass.Class)) {}

// formatsForCodec lists the AudioFormat entries advertised for one codec
// name, highest quality first, matching the PCM/opus hi-res ladder the
// teacher's client/hello advertised.
func formatsForCodec(codec string) []protocol.AudioFormat {
	switch codec {
	case "pcm":
		return []protocol.AudioFormat{
			{Codec: "pcm", Channels: 2, SampleRate: 192000, BitDepth: 24},
			{Codec: "pcm", Channels: 2, SampleRate: 96000, BitDepth: 24},
			{Codec: "pcm", Channels: 2, SampleRate: 48000, BitDepth: 16},
			{Codec: "pcm", Channels: 2, SampleRate: 44100, BitDepth: 16},
		}
	case "opus":
		return []protocol.AudioFormat{{Codec: "opus", Channels: 2, SampleRate: 48000, BitDepth: 16}}
	case "flac":
		return []protocol.AudioFormat{{Codec: "flac", Channels: 2, SampleRate: 48000, BitDepth: 16}}
	case "aac":
		return []protocol.AudioFormat{{Codec: "aac", Channels: 2, SampleRate: 48000, BitDepth: 16}}
	default:
		return nil
	}
}

func supportedFormats(preference []string) []protocol.AudioFormat {
	var out []protocol.AudioFormat
	for _, codec := range preference {
		out = append(out, formatsForCodec(codec)...)
	}
	return out
}

// Player is the public, reconnecting synchronized-audio client. It owns a
// time filter and output sink that outlive any single session (so a new
// session continues from the filter's current estimate instead of starting
// cold) and hands a
// fresh session.Engine to the supervisor on every successful dial.
type Player struct {
	cfg    PlayerConfig
	logger *log.Logger

	filter *timefilter.Filter
	sink   outputsink.Sink
	sup    *supervisor.Supervisor

	mu     sync.Mutex
	engine *session.Engine
	state  PlayerState

	ctx    context.Context
	cancel context.CancelFunc
}

// NewPlayer builds a Player for config. It does not connect; call Connect.
func NewPlayer(config PlayerConfig) (*Player, error) {
	config = config.withDefaults()
	if err := config.Endpoint.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errkind.ConfigError, err)
	}
	if config.Endpoint.HasRemote() && config.SignalingURL == "" {
		return nil, fmt.Errorf("%w: endpoint has a remote descriptor but no SignalingURL configured", errkind.ConfigError)
	}

	sink := config.Sink
	if sink == nil {
		sink = outputsink.NewMalgoSink()
	}

	p := &Player{
		cfg:    config,
		logger: config.Logger,
		filter: timefilter.New(config.Logger),
		sink:   sink,
		state: PlayerState{
			SessionState: session.StateIdle.String(),
			AppState:     supervisor.StateDisconnected.String(),
			Volume:       config.Volume,
		},
	}
	p.filter.SetStaticDelay(config.StaticDelayMs)

	p.sup = supervisor.New(supervisor.Config{
		Endpoint:             config.Endpoint,
		NetObserver:          config.NetObserver,
		Dialer:               &realDialer{player: p},
		Listener:             p,
		MaxReconnectAttempts: config.MaxReconnectAttempts,
	}, config.Logger)

	return p, nil
}

// Connect starts the connection supervisor: transport-variant selection
// followed by auto-reconnect for as long as ctx lives or until Close is
// called. It returns immediately; connection progress is reported through
// OnStateChange.
func (p *Player) Connect(ctx context.Context) {
	p.mu.Lock()
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()
	p.sup.Start(p.ctx)
}

// Disconnect performs a user-initiated shutdown of the current session (if
// any) and cancels the supervisor's reconnect loop entirely, per spec
// §4.9's cancellation invariant.
func (p *Player) Disconnect() {
	p.mu.Lock()
	engine := p.engine
	p.mu.Unlock()

	p.sup.CancelReconnection()
	if engine != nil {
		engine.Disconnect("user_disconnect")
	}
}

// Close is Disconnect plus releasing the output sink. The Player is not
// usable afterward.
func (p *Player) Close() error {
	p.Disconnect()
	p.sup.Wait()
	if p.cancel != nil {
		p.cancel()
	}
	return p.sink.Close()
}

// SetVolume requests a volume change (0-100, clamped) on the active
// session, if any, and updates the locally-cached state regardless so
// Status() reflects the request even before the server round-trip.
func (p *Player) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	p.mu.Lock()
	p.state.Volume = volume
	engine := p.engine
	p.mu.Unlock()
	if engine != nil {
		engine.SetVolume(volume)
	}
	if v, ok := p.sink.(outputsink.VolumeControl); ok {
		v.SetVolume(volume)
	}
}

// SetMuted requests a mute-state change, mirroring SetVolume's semantics.
func (p *Player) SetMuted(muted bool) {
	p.mu.Lock()
	p.state.Muted = muted
	engine := p.engine
	p.mu.Unlock()
	if engine != nil {
		engine.SetMuted(muted)
	}
	if v, ok := p.sink.(outputsink.VolumeControl); ok {
		v.SetMuted(muted)
	}
}

// Status returns a point-in-time snapshot of connection and playback state.
func (p *Player) Status() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns scheduler and clock-sync telemetry. The scheduler counters
// are zero when there is no active session; the clock-sync fields always
// come from the Player's time filter, which outlives sessions.
func (p *Player) Stats() PlayerStats {
	p.mu.Lock()
	engine := p.engine
	p.mu.Unlock()

	stats := PlayerStats{}
	fs := p.filter.Stats()
	stats.OffsetUs = fs.OffsetUs
	stats.DriftPPM = fs.Drift * 1e6
	stats.ErrorUs = fs.ErrorUs
	stats.Stability = fs.Stability
	stats.SyncReady = fs.Ready
	stats.SyncConverged = fs.Converged

	if engine != nil {
		var ss scheduler.Stats = engine.SchedulerStats()
		stats.Received = ss.Received
		stats.Played = ss.Played
		stats.DroppedLate = ss.DroppedLate
		stats.DroppedOverflow = ss.DroppedOverflow
		stats.QueuedBytes = ss.QueuedBytes
	}
	return stats
}

func (p *Player) sessionConfig() session.Config {
	var thresholdUs int64
	if p.cfg.ClockCorrectionThresholdMs > 0 {
		thresholdUs = int64(p.cfg.ClockCorrectionThresholdMs * 1000)
	}
	return session.Config{
		ClientID:                   p.cfg.ClientID,
		Name:                       p.cfg.PlayerName,
		ProductName:                p.cfg.DeviceInfo.ProductName,
		Manufacturer:               p.cfg.DeviceInfo.Manufacturer,
		SoftwareVersion:            p.cfg.DeviceInfo.SoftwareVersion,
		SupportedFormats:           supportedFormats(p.cfg.CodecPreference),
		BufferCapacity:             1 << 20,
		SupportedCommands:          []string{"volume", "mute"},
		LargeCorrectionThresholdUs: thresholdUs,
	}
}

// --- session.Listener ---

func (p *Player) OnStateChanged(state session.State) {
	p.mu.Lock()
	p.state.SessionState = state.String()
	p.state.Connected = state == session.StateConnected || state == session.StateStreamActive
	if state == session.StateStreamActive && p.engine != nil {
		format := p.engine.Snapshot().Format
		p.state.Codec = format.Codec
		p.state.SampleRate = format.SampleRate
		p.state.Channels = format.Channels
		p.state.BitDepth = format.BitDepth
	}
	snap := p.state
	p.mu.Unlock()
	if p.cfg.OnStateChange != nil {
		p.cfg.OnStateChange(snap)
	}
}

func (p *Player) OnServerHello(hello protocol.ServerHello) {
	p.logger.Printf("resonate: connected to %q (%s)", hello.Name, hello.ConnectionReason)
}

func (p *Player) OnMetadata(meta session.Metadata) {
	if p.cfg.OnMetadata == nil {
		return
	}
	p.cfg.OnMetadata(Metadata{
		Title:           meta.Title,
		Artist:          meta.Artist,
		AlbumArtist:     meta.AlbumArtist,
		Album:           meta.Album,
		ArtworkURL:      meta.ArtworkURL,
		Year:            meta.Year,
		Track:           meta.Track,
		TrackProgressMs: meta.TrackProgressMs,
		TrackDurationMs: meta.TrackDurationMs,
		PlaybackSpeed:   meta.PlaybackSpeed,
	})
}

func (p *Player) OnPlayerState(player session.PlayerState) {
	p.mu.Lock()
	p.state.Volume = player.Volume
	p.state.Muted = player.Muted
	snap := p.state
	p.mu.Unlock()
	if p.cfg.OnStateChange != nil {
		p.cfg.OnStateChange(snap)
	}
}

func (p *Player) OnGroupUpdate(update protocol.GroupUpdate) {
	p.logger.Printf("resonate: group %q playback_state=%s", update.GroupName, update.PlaybackState)
}

func (p *Player) OnAuxFrame(tag byte, timestampUs int64, payload []byte) {
	// Artwork/visualizer channels are passed through byte-for-byte; this
	// reference Player has no host surface for them (spec §1 scope).
}

func (p *Player) OnSyncOffset(playerID string, offsetMs int, source string) {
	p.logger.Printf("resonate: sync_offset player=%q offset=%dms source=%q", playerID, offsetMs, source)
}

func (p *Player) OnError(err error) {
	if p.cfg.OnError != nil {
		p.cfg.OnError(err)
	} else {
		p.logger.Printf("resonate: session error: %v", err)
	}
}

// --- supervisor.Listener ---

func (p *Player) OnConnected(engine *session.Engine) {
	if p.cfg.BufferCapacityBytes > 0 {
		engine.SetBufferCapacityBytes(p.cfg.BufferCapacityBytes)
	}
	p.mu.Lock()
	p.engine = engine
	p.state.AppState = supervisor.StateConnected.String()
	p.mu.Unlock()
}

func (p *Player) OnReconnectAttempt(attempt int) {
	p.mu.Lock()
	p.engine = nil
	p.state.AppState = supervisor.StateReconnecting.String()
	p.state.Connected = false
	p.mu.Unlock()
	p.logger.Printf("resonate: reconnect attempt %d", attempt)
}

func (p *Player) OnFailed(err error) {
	p.mu.Lock()
	p.engine = nil
	p.state.AppState = supervisor.StateFailed.String()
	p.state.Connected = false
	p.mu.Unlock()
	p.OnError(err)
}

var _ session.Listener = (*Player)(nil)
var _ supervisor.Listener = (*Player)(nil)

// --- Dialer ---

// realDialer builds the concrete transport variant, wires it to a fresh
// session.Engine bound to the Player's persistent filter and sink, and
// blocks until that engine reaches session.StateConnected (handshake
// complete) or the attempt window expires.
type realDialer struct {
	player *Player
}

// attemptGate forwards every session.Listener call through to the real
// Player listener while also watching for the connected/failed outcome
// this one dial attempt is waiting on.
type attemptGate struct {
	inner    session.Listener
	once     sync.Once
	resultCh chan error
}

func (g *attemptGate) finish(err error) {
	g.once.Do(func() { g.resultCh <- err })
}

func (g *attemptGate) OnStateChanged(state session.State) {
	g.inner.OnStateChanged(state)
	switch state {
	case session.StateConnected:
		g.finish(nil)
	case session.StateFailed:
		g.finish(fmt.Errorf("%w: session failed before handshake completed", errkind.TransportRecoverable))
	}
}

func (g *attemptGate) OnServerHello(hello protocol.ServerHello) { g.inner.OnServerHello(hello) }
func (g *attemptGate) OnMetadata(meta session.Metadata)         { g.inner.OnMetadata(meta) }
func (g *attemptGate) OnPlayerState(player session.PlayerState) { g.inner.OnPlayerState(player) }
func (g *attemptGate) OnGroupUpdate(update protocol.GroupUpdate) {
	g.inner.OnGroupUpdate(update)
}
func (g *attemptGate) OnAuxFrame(tag byte, timestampUs int64, payload []byte) {
	g.inner.OnAuxFrame(tag, timestampUs, payload)
}
func (g *attemptGate) OnSyncOffset(playerID string, offsetMs int, source string) {
	g.inner.OnSyncOffset(playerID, offsetMs, source)
}
func (g *attemptGate) OnError(err error) { g.inner.OnError(err) }

func (d *realDialer) Dial(attemptCtx, sessionCtx context.Context, variant supervisor.Variant, ep endpoint.Endpoint) (*session.Engine, error) {
	p := d.player

	gate := &attemptGate{inner: p, resultCh: make(chan error, 1)}
	engine := session.New(p.sessionConfig(), p.filter, p.sink, gate, p.logger)
	tl := session.NewTransportListener(engine)

	var tr transport.Transport
	switch variant {
	case supervisor.VariantLocal:
		if !ep.HasLocal() {
			return nil, fmt.Errorf("%w: endpoint has no local descriptor", errkind.ConfigError)
		}
		url := fmt.Sprintf("ws://%s:%d%s", ep.Local.Host, ep.Local.Port, ep.Local.Path)
		tr = transport.NewWebSocketTransport(transport.WebSocketConfig{
			URL:       url,
			HighPower: p.cfg.HighPowerMode,
		}, tl, p.logger)

	case supervisor.VariantProxy:
		if !ep.HasProxy() {
			return nil, fmt.Errorf("%w: endpoint has no proxy descriptor", errkind.ConfigError)
		}
		tr = transport.NewWebSocketTransport(transport.WebSocketConfig{
			URL:       ep.Proxy.URL,
			Bearer:    ep.Proxy.Auth.BearerToken,
			Username:  ep.Proxy.Auth.Username,
			Password:  ep.Proxy.Auth.Password,
			HighPower: p.cfg.HighPowerMode,
		}, tl, p.logger)

	case supervisor.VariantRemote:
		if !ep.HasRemote() {
			return nil, fmt.Errorf("%w: endpoint has no remote descriptor", errkind.ConfigError)
		}
		wt, err := transport.DialWebRTC(attemptCtx, p.cfg.SignalingURL, string(ep.Remote), tl, p.logger)
		if err != nil {
			kind, _ := transport.ClassifyError(err)
			return nil, kind
		}
		tr = wt

	default:
		return nil, fmt.Errorf("%w: unknown transport variant", errkind.ConfigError)
	}

	engine.BindTransport(tr)
	engine.Start(sessionCtx)

	select {
	case err := <-gate.resultCh:
		if err != nil {
			return nil, err
		}
		return engine, nil
	case <-attemptCtx.Done():
		engine.Disconnect("dial attempt timed out")
		return nil, fmt.Errorf("%w: %v", errkind.TransportRecoverable, attemptCtx.Err())
	}
}

var _ supervisor.Dialer = (*realDialer)(nil)
