// ABOUTME: Interface-conformance and construction checks; device open needs real hardware
package outputsink

import (
	"testing"

	"github.com/sendspin-audio/client-go/internal/audio"
)

func TestMalgoSinkImplementsSink(t *testing.T) {
	var _ Sink = (*MalgoSink)(nil)
	var _ VolumeControl = (*MalgoSink)(nil)
}

func TestOtoSinkImplementsSink(t *testing.T) {
	var _ Sink = (*OtoSink)(nil)
	var _ VolumeControl = (*OtoSink)(nil)
}

func TestNewMalgoSink(t *testing.T) {
	s := NewMalgoSink()
	if s == nil {
		t.Fatal("NewMalgoSink returned nil")
	}
	if s.volume != 100 {
		t.Errorf("expected default volume 100, got %d", s.volume)
	}
}

func TestNewOtoSink(t *testing.T) {
	s := NewOtoSink()
	if s == nil {
		t.Fatal("NewOtoSink returned nil")
	}
	if s.volume != 100 {
		t.Errorf("expected default volume 100, got %d", s.volume)
	}
}

func TestOtoSinkRejectsNon16Bit(t *testing.T) {
	s := NewOtoSink()
	err := s.Configure(audio.Format{SampleRate: 48000, Channels: 2, BitDepth: 24})
	if err == nil {
		t.Fatal("expected error configuring oto sink with 24-bit format")
	}
}
