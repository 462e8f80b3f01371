// Package audioio moves PCM audio between the local machine and a voice call.
//
// A Source is the microphone side, a Sink the speaker side. Two backends
// ship with the package:
//   - Pipe - raw PCM16 little-endian over an io.Reader / io.Writer, which
//     is how the headless CLI talks to sox, arecord or a test harness
//   - Mock - synthetic audio for CI and tests
//
// Codecs live behind the Encoder and Decoder interfaces; the cgo Opus
// implementation is in the opus subpackage.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendPipe streams raw PCM16 over stdin/stdout or any reader/writer.
	BackendPipe Backend = "pipe"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Default: 48000, the WebRTC Opus clock rate.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	Channels int `yaml:"channels" json:"channels"`

	// BufferDuration is the size of audio buffers. Opus accepts 10, 20,
	// 40 and 60 ms frames.
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendPipe,
		SampleRate:     48000,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendPipe, BackendMock:
	default:
		return fmt.Errorf("unsupported backend %q", c.Backend)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 || c.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of samples per channel in one buffer.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of a buffer in bytes (assuming int16 samples).
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}
