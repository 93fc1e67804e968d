// ABOUTME: Tests for Player construction, config defaults, and local state handling
package resonate

import (
	"testing"

	"github.com/sendspin-audio/client-go/internal/endpoint"
)

func localEndpoint() endpoint.Endpoint {
	return endpoint.Endpoint{
		ID:   "e1",
		Name: "Test Speaker",
		Local: &endpoint.LocalAddress{
			Host: "127.0.0.1",
			Port: 8927,
			Path: "/ws",
		},
	}
}

func TestNewPlayerRejectsInvalidEndpoint(t *testing.T) {
	_, err := NewPlayer(PlayerConfig{Endpoint: endpoint.Endpoint{ID: "e1"}})
	if err == nil {
		t.Fatal("expected error for endpoint with no connection descriptor")
	}
}

func TestNewPlayerRequiresSignalingURLForRemoteEndpoint(t *testing.T) {
	ep := endpoint.Endpoint{ID: "e1", Remote: endpoint.RemoteHandle("ABCDEFGHIJKLMNOPQRSTUVWXYZ")}
	_, err := NewPlayer(PlayerConfig{Endpoint: ep})
	if err == nil {
		t.Fatal("expected error when a remote descriptor is configured without SignalingURL")
	}
}

func TestNewPlayerAppliesDefaults(t *testing.T) {
	player, err := NewPlayer(PlayerConfig{Endpoint: localEndpoint(), PlayerName: "Kitchen"})
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}

	if player.cfg.ClientID == "" {
		t.Error("expected a generated ClientID")
	}
	if player.cfg.Volume != 100 {
		t.Errorf("expected default Volume=100, got %d", player.cfg.Volume)
	}
	if player.cfg.DeviceInfo.ProductName == "" {
		t.Error("expected a default DeviceInfo.ProductName")
	}
	if len(player.cfg.CodecPreference) == 0 {
		t.Error("expected a default CodecPreference list")
	}

	state := player.Status()
	if state.Connected {
		t.Error("expected Connected=false before Connect")
	}
	if state.Volume != 100 {
		t.Errorf("expected initial status volume=100, got %d", state.Volume)
	}
}

func TestSupportedFormatsFollowsCodecPreferenceOrder(t *testing.T) {
	formats := supportedFormats([]string{"flac", "pcm"})
	if len(formats) == 0 {
		t.Fatal("expected non-empty format list")
	}
	if formats[0].Codec != "flac" {
		t.Errorf("expected flac formats first, got %s", formats[0].Codec)
	}
	for _, f := range formats {
		if f.Codec != "flac" && f.Codec != "pcm" {
			t.Errorf("unexpected codec %s leaked into supported formats", f.Codec)
		}
	}
}

func TestPlayerSetVolumeClampsAndUpdatesStatusWithoutASession(t *testing.T) {
	player, err := NewPlayer(PlayerConfig{Endpoint: localEndpoint()})
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}

	player.SetVolume(500)
	if got := player.Status().Volume; got != 100 {
		t.Errorf("expected volume clamped to 100, got %d", got)
	}

	player.SetVolume(-5)
	if got := player.Status().Volume; got != 0 {
		t.Errorf("expected volume clamped to 0, got %d", got)
	}
}

func TestPlayerSetMutedUpdatesStatusWithoutASession(t *testing.T) {
	player, err := NewPlayer(PlayerConfig{Endpoint: localEndpoint()})
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}

	player.SetMuted(true)
	if !player.Status().Muted {
		t.Error("expected Muted=true after SetMuted(true)")
	}
	player.SetMuted(false)
	if player.Status().Muted {
		t.Error("expected Muted=false after SetMuted(false)")
	}
}

func TestPlayerCloseWithoutConnectIsSafe(t *testing.T) {
	player, err := NewPlayer(PlayerConfig{Endpoint: localEndpoint()})
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}
	if err := player.Close(); err != nil {
		t.Errorf("Close on a never-connected player returned an error: %v", err)
	}
}
