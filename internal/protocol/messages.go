// ABOUTME: Sendspin wire protocol message type definitions
// ABOUTME: Defines structs for every JSON message type named in the spec
package protocol

// Message is the top-level wrapper for all protocol JSON messages.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// DeviceInfo identifies the physical device running the client.
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// AudioFormat describes one supported (or negotiated) audio format.
type AudioFormat struct {
	Codec      string `json:"codec"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth"`
}

// PlayerSupport describes the player role's capabilities, sent in client/hello.
type PlayerSupport struct {
	SupportedFormats  []AudioFormat `json:"supported_formats"`
	BufferCapacity    int           `json:"buffer_capacity"`
	SupportedCommands []string      `json:"supported_commands"`
}

// ClientHello is sent once, immediately after transport connect.
type ClientHello struct {
	ClientID       string         `json:"client_id"`
	Name           string         `json:"name"`
	Version        int            `json:"version"`
	SupportedRoles []string       `json:"supported_roles"`
	DeviceInfo     *DeviceInfo    `json:"device_info,omitempty"`
	PlayerSupport  *PlayerSupport `json:"player_support,omitempty"`
}

// ServerHello is the server's reply to client/hello.
type ServerHello struct {
	Name             string   `json:"name"`
	ServerID         string   `json:"server_id"`
	ConnectionReason string   `json:"connection_reason"`
	ActiveRoles      []string `json:"active_roles"`
}

// ClientPlayerState reports the player's own condition, nested in client/state.
type ClientPlayerState struct {
	Volume int  `json:"volume"`
	Muted  bool `json:"muted"`
}

// ClientState is sent whenever local player state changes, and once right
// after the handshake completes.
type ClientState struct {
	State  string            `json:"state"` // "synchronized", "error", ...
	Player ClientPlayerState `json:"player"`
}

// ProgressState carries playback position within the current track.
type ProgressState struct {
	TrackProgressMs int `json:"track_progress_ms"`
	TrackDurationMs int `json:"track_duration_ms"`
	PlaybackSpeed   int `json:"playback_speed"` // 1000 == 1.0x, 0 == paused
}

// MetadataState is the track-metadata snapshot nested in server/state.
type MetadataState struct {
	Timestamp   int64          `json:"timestamp"`
	Title       string         `json:"title"`
	Artist      string         `json:"artist"`
	AlbumArtist string         `json:"album_artist"`
	Album       string         `json:"album"`
	ArtworkURL  string         `json:"artwork_url"`
	Year        int            `json:"year"`
	Track       int            `json:"track"`
	Progress    *ProgressState `json:"progress,omitempty"`
}

// ServerState is a combined state/metadata push from the server.
type ServerState struct {
	State    string         `json:"state"`
	Metadata *MetadataState `json:"metadata,omitempty"`
}

// StreamStartPlayer describes the audio format a stream is about to carry.
type StreamStartPlayer struct {
	Codec       string `json:"codec"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
	BitDepth    int    `json:"bit_depth"`
	CodecHeader string `json:"codec_header,omitempty"` // base64
}

// StreamStart notifies the client that binary audio frames are about to
// begin, carrying the format those frames are encoded in.
type StreamStart struct {
	Player *StreamStartPlayer `json:"player,omitempty"`
}

// PlayerCommand is a control command directed at the player role.
type PlayerCommand struct {
	Command string `json:"command"` // "volume", "mute", or unknown
	Volume  int    `json:"volume,omitempty"`
	Mute    bool   `json:"mute,omitempty"`
}

// ServerCommand wraps a role-specific command sent server -> client.
type ServerCommand struct {
	Player *PlayerCommand `json:"player,omitempty"`
}

// ClientCommand wraps a role-specific command sent client -> server
// (e.g. in response to a local UI action forwarded through the core).
type ClientCommand struct {
	Controller *ControllerCommand `json:"controller,omitempty"`
}

// ControllerCommand is a command issued by the controller role.
type ControllerCommand struct {
	Command string `json:"command"`
}

// ClientGoodbye announces an intentional disconnect.
type ClientGoodbye struct {
	Reason string `json:"reason"`
}

// ClientTime is the client/time clock-sync request.
type ClientTime struct {
	ClientTransmitted int64 `json:"client_transmitted"`
}

// ServerTime is the server/time clock-sync reply.
type ServerTime struct {
	ClientTransmitted int64 `json:"client_transmitted"`
	ServerReceived    int64 `json:"server_received"`
	ServerTransmitted int64 `json:"server_transmitted"`
}

// GroupUpdate reports a change in the multi-room group this client belongs to.
type GroupUpdate struct {
	GroupID       string `json:"group_id"`
	GroupName     string `json:"group_name"`
	PlaybackState string `json:"playback_state"`
}

// SyncOffset instructs the client to apply a per-player timing correction,
// e.g. to compensate for a speaker with known extra output latency.
type SyncOffset struct {
	PlayerID string `json:"player_id"`
	OffsetMs int    `json:"offset_ms"`
	Source   string `json:"source"`
}

// Type name constants for the `type` field of Message.
const (
	TypeClientHello    = "client/hello"
	TypeServerHello    = "server/hello"
	TypeClientTime     = "client/time"
	TypeServerTime     = "server/time"
	TypeClientState    = "client/state"
	TypeServerState    = "server/state"
	TypeStreamStart    = "stream/start"
	TypeStreamEnd      = "stream/end"
	TypeStreamClear    = "stream/clear"
	TypeClientCommand  = "client/command"
	TypeServerCommand  = "server/command"
	TypeClientGoodbye  = "client/goodbye"
	TypeGroupUpdate    = "group/update"
	TypeClientSyncOffs = "client/sync_offset"
)
