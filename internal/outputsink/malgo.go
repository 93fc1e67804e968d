// ABOUTME: malgo/miniaudio-backed Sink, the default adapter for 24-bit formats
package outputsink

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/sendspin-audio/client-go/internal/audio"
)

// malgoLatencyFloor approximates miniaudio's own internal buffering for the
// default playback backend; it is not measured per-device.
const malgoLatencyFloor = 20 * time.Millisecond

// ringBufferMs is how much audio the ring buffer holds before Push starts
// rejecting buffers as overflow.
const ringBufferMs = 500

// MalgoSink plays 16/24/32-bit PCM through miniaudio via a pull-based
// device callback backed by a ring buffer.
type MalgoSink struct {
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device

	format audio.Format
	ready  bool
	paused bool

	volume int
	muted  bool

	ring *ringBuffer

	mu sync.Mutex
}

// NewMalgoSink constructs an unconfigured sink at full, unmuted volume.
func NewMalgoSink() *MalgoSink {
	return &MalgoSink{volume: 100}
}

func (m *MalgoSink) Configure(format audio.Format) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil && m.format.Codec == format.Codec && m.format.SampleRate == format.SampleRate &&
		m.format.Channels == format.Channels && m.format.BitDepth == format.BitDepth {
		return nil
	}
	if m.device != nil {
		if err := m.closeDeviceLocked(); err != nil {
			return fmt.Errorf("outputsink: close previous device: %w", err)
		}
	}

	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return fmt.Errorf("outputsink: init malgo context: %w", err)
		}
		m.malgoCtx = ctx
	}

	var deviceFormat malgo.FormatType
	switch format.BitDepth {
	case 16:
		deviceFormat = malgo.FormatS16
	case 24:
		deviceFormat = malgo.FormatS24
	case 32:
		deviceFormat = malgo.FormatS32
	default:
		return fmt.Errorf("outputsink: unsupported bit depth: %d", format.BitDepth)
	}

	capacitySamples := (format.SampleRate * format.Channels * ringBufferMs) / 1000
	m.ring = newRingBuffer(capacitySamples)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = deviceFormat
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			m.dataCallback(deviceFormat, format.Channels, output, frameCount)
		},
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("outputsink: init playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("outputsink: start device: %w", err)
	}

	m.device = device
	m.format = format
	m.ready = true
	m.paused = false
	return nil
}

func (m *MalgoSink) Push(_ int64, pcm []int32) bool {
	m.mu.Lock()
	ready := m.ready
	volume, muted := m.volume, m.muted
	ring := m.ring
	m.mu.Unlock()

	if !ready {
		return false
	}
	if ring.Free() < len(pcm) {
		return false
	}
	ring.Write(applyVolume(pcm, volume, muted))
	return true
}

func (m *MalgoSink) dataCallback(format malgo.FormatType, channels int, output []byte, frameCount uint32) {
	samples := make([]int32, int(frameCount)*channels)
	m.mu.Lock()
	paused := m.paused
	ring := m.ring
	m.mu.Unlock()

	if paused || ring == nil {
		for i := range output {
			output[i] = 0
		}
		return
	}
	ring.Read(samples)

	switch format {
	case malgo.FormatS16:
		for i, s := range samples {
			v := audio.SampleToInt16(s)
			output[i*2] = byte(v)
			output[i*2+1] = byte(v >> 8)
		}
	case malgo.FormatS24:
		for i, s := range samples {
			b := audio.SampleTo24Bit(s)
			output[i*3] = b[0]
			output[i*3+1] = b[1]
			output[i*3+2] = b[2]
		}
	case malgo.FormatS32:
		for i, s := range samples {
			v := s << 8
			output[i*4] = byte(v)
			output[i*4+1] = byte(v >> 8)
			output[i*4+2] = byte(v >> 16)
			output[i*4+3] = byte(v >> 24)
		}
	}
}

func (m *MalgoSink) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
	return nil
}

func (m *MalgoSink) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
	return nil
}

func (m *MalgoSink) Flush() error {
	m.mu.Lock()
	ring := m.ring
	m.mu.Unlock()
	if ring != nil {
		ring.Clear()
	}
	return nil
}

func (m *MalgoSink) LatencyFloor() time.Duration {
	return malgoLatencyFloor
}

func (m *MalgoSink) SetVolume(volume int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = clampVolume(volume)
}

func (m *MalgoSink) SetMuted(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = muted
}

func (m *MalgoSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.closeDeviceLocked(); err != nil {
		return err
	}
	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			log.Printf("outputsink: malgo context uninit: %v", err)
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	return nil
}

// closeDeviceLocked stops and releases the device. Must be called with m.mu held.
func (m *MalgoSink) closeDeviceLocked() error {
	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			log.Printf("outputsink: device stop: %v", err)
		}
		m.device.Uninit()
		m.device = nil
		m.ready = false
	}
	return nil
}
