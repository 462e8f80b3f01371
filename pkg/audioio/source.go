package audioio

import (
	"context"
	"io"
	"time"
)

// AudioChunk represents a chunk of interleaved PCM16 audio.
type AudioChunk struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Bytes returns the chunk as little-endian PCM16.
func (c *AudioChunk) Bytes() []byte {
	return SamplesToBytes(c.Samples)
}

// FromBytes populates the chunk from raw PCM16 bytes.
func (c *AudioChunk) FromBytes(data []byte, sampleRate, channels int) {
	c.SampleRate = sampleRate
	c.Channels = channels
	c.Samples = BytesToSamples(data)
}

// Duration returns the playback duration of this chunk.
func (c *AudioChunk) Duration() time.Duration {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Source captures audio from a microphone or other input.
type Source interface {
	// Start begins capture. A source that cannot be opened (device busy,
	// permission denied, closed pipe) returns an error here.
	Start(ctx context.Context) error

	// Stop halts capture. It is safe to call Stop multiple times.
	Stop() error

	// Read reads the next audio chunk, blocking if necessary.
	// Returns io.EOF when the source is stopped.
	Read(ctx context.Context) (AudioChunk, error)

	// Stream returns a channel that receives audio chunks.
	// The channel is closed when the source is stopped.
	Stream() <-chan AudioChunk

	Config() Config
	Name() string

	// Close releases all resources. After Close the source cannot be restarted.
	io.Closer
}

// SourceStats contains statistics about the audio source.
type SourceStats struct {
	ChunksRead  int64  `json:"chunks_read"`
	SamplesRead int64  `json:"samples_read"`
	Overruns    int64  `json:"overruns"`
	Running     bool   `json:"running"`
	Backend     string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}
