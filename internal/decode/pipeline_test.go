// ABOUTME: Tests Pipeline's configure/teardown lifecycle across codec switches
package decode

import (
	"testing"

	"github.com/sendspin-audio/client-go/internal/audio"
)

func TestPipelineConfigure_PCM(t *testing.T) {
	p := NewPipeline()
	err := p.Configure(audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16})
	if err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if !p.IsConfigured() {
		t.Fatal("expected IsConfigured=true")
	}

	samples, err := p.Decode([]byte{0x00, 0x01, 0x02, 0x03})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(samples) != 2 {
		t.Errorf("expected 2 samples, got %d", len(samples))
	}
}

func TestPipelineConfigure_UnsupportedCodec(t *testing.T) {
	p := NewPipeline()
	if err := p.Configure(audio.Format{Codec: "mp3", SampleRate: 48000, Channels: 2, BitDepth: 16}); err == nil {
		t.Fatal("expected error for unsupported codec")
	}
	if p.IsConfigured() {
		t.Fatal("expected IsConfigured=false after failed configure")
	}
}

func TestPipelineReconfigure_TearsDownPrevious(t *testing.T) {
	p := NewPipeline()
	if err := p.Configure(audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16}); err != nil {
		t.Fatalf("first configure failed: %v", err)
	}
	firstCodec := p.codec

	if err := p.Configure(audio.Format{Codec: "pcm", SampleRate: 44100, Channels: 1, BitDepth: 16}); err != nil {
		t.Fatalf("second configure failed: %v", err)
	}
	if p.codec == firstCodec {
		t.Fatal("expected a new codec instance after reconfigure")
	}
	if firstCodec.IsConfigured() {
		t.Error("expected the old codec to be released on reconfigure")
	}
}

func TestPipelineDecode_BeforeConfigure(t *testing.T) {
	p := NewPipeline()
	if _, err := p.Decode([]byte{0x00}); err == nil {
		t.Fatal("expected error decoding before configure")
	}
}

func TestPipelineRelease(t *testing.T) {
	p := NewPipeline()
	if err := p.Configure(audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16}); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if err := p.Release(); err != nil {
		t.Errorf("expected Release to succeed, got error: %v", err)
	}
	if p.IsConfigured() {
		t.Error("expected IsConfigured=false after Release")
	}
}
