// ABOUTME: Tests FLAC codec header validation and teardown; full frame decoding needs a real encoded stream
package decode

import "testing"

func validStreamInfo() []byte {
	// A minimal, arbitrary 34-byte STREAMINFO block; decode correctness of
	// the frame payload itself is exercised against a real server stream,
	// not fabricated bytes here.
	return make([]byte, 34)
}

func TestFLACConfigure_ValidHeaderLength(t *testing.T) {
	d := &FLACCodec{}
	if err := d.Configure(48000, 2, 24, validStreamInfo()); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if !d.IsConfigured() {
		t.Fatal("expected IsConfigured=true")
	}
}

func TestFLACConfigure_WrongHeaderLength(t *testing.T) {
	d := &FLACCodec{}
	if err := d.Configure(48000, 2, 24, []byte{0x00, 0x01}); err == nil {
		t.Fatal("expected error for malformed STREAMINFO header")
	}
	if d.IsConfigured() {
		t.Fatal("expected IsConfigured=false after failed configure")
	}
}

func TestFLACDecode_BeforeConfigure(t *testing.T) {
	d := &FLACCodec{}
	if _, err := d.Decode([]byte{0x00, 0x01, 0x02, 0x03}); err == nil {
		t.Fatal("expected error decoding before configure")
	}
}

func TestFLACDecode_MalformedFrameErrors(t *testing.T) {
	d := &FLACCodec{}
	if err := d.Configure(48000, 2, 24, validStreamInfo()); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	// Not a real FLAC frame; Decode must return an error rather than panic.
	if _, err := d.Decode([]byte{0xff, 0xff, 0x00, 0x00}); err == nil {
		t.Fatal("expected error decoding a malformed frame")
	}
}

func TestFLACRelease(t *testing.T) {
	d := &FLACCodec{}
	if err := d.Configure(48000, 2, 24, validStreamInfo()); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if err := d.Release(); err != nil {
		t.Errorf("expected Release to succeed, got error: %v", err)
	}
	if d.IsConfigured() {
		t.Error("expected IsConfigured=false after Release")
	}
}

func TestRescaleTo24Bit(t *testing.T) {
	cases := []struct {
		sample   int32
		bitDepth int
		want     int32
	}{
		{sample: 100, bitDepth: 24, want: 100},
		{sample: 100, bitDepth: 16, want: 100 << 8},
		{sample: 100 << 8, bitDepth: 32, want: 100},
	}
	for _, c := range cases {
		got := rescaleTo24Bit(c.sample, c.bitDepth)
		if got != c.want {
			t.Errorf("rescaleTo24Bit(%d, %d) = %d, want %d", c.sample, c.bitDepth, got, c.want)
		}
	}
}
