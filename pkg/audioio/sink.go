package audioio

import (
	"context"
	"io"
)

// Sink plays audio to a speaker or other output.
//
// A voice call process keeps a single Sink for its lifetime and reattaches
// it to each new call, so implementations must tolerate Clear followed by
// fresh Writes.
type Sink interface {
	// Start begins playback. After calling Start, audio can be written via Write.
	Start(ctx context.Context) error

	// Stop halts playback. It is safe to call Stop multiple times.
	Stop() error

	// Write sends an audio chunk to the output. It may block if the
	// output buffer is full.
	Write(ctx context.Context, chunk AudioChunk) error

	// Flush waits for all buffered audio to be played.
	Flush(ctx context.Context) error

	// Clear discards all buffered audio immediately.
	Clear() error

	Config() Config
	Name() string

	// Close releases all resources. After Close the sink cannot be restarted.
	io.Closer
}

// SinkStats contains statistics about the audio sink.
type SinkStats struct {
	ChunksWritten   int64  `json:"chunks_written"`
	SamplesWritten  int64  `json:"samples_written"`
	Clears          int64  `json:"clears"`
	Running         bool   `json:"running"`
	Backend         string `json:"backend"`
	BufferedSamples int64  `json:"buffered_samples"`
}

// SinkWithStats extends Sink with statistics.
type SinkWithStats interface {
	Sink
	Stats() SinkStats
}
