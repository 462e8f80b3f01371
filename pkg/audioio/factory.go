package audioio

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// NewSource creates an audio source for cfg.Backend. The pipe backend
// reads from r, or os.Stdin when r is nil.
func NewSource(cfg Config, r io.Reader, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("audioio: invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("creating audio source",
		"backend", cfg.Backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"buffer_ms", cfg.BufferDuration.Milliseconds(),
	)

	switch cfg.Backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendPipe:
		if r == nil {
			r = os.Stdin
		}
		return NewPipeSource(cfg, r, logger), nil
	default:
		return nil, fmt.Errorf("audioio: unsupported backend: %s", cfg.Backend)
	}
}

// NewSink creates an audio sink for cfg.Backend. The pipe backend writes
// to w, or os.Stdout when w is nil.
func NewSink(cfg Config, w io.Writer, logger *slog.Logger) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("audioio: invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("creating audio sink",
		"backend", cfg.Backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
	)

	switch cfg.Backend {
	case BackendMock:
		return NewMockSink(cfg, logger), nil
	case BackendPipe:
		if w == nil {
			w = os.Stdout
		}
		return NewPipeSink(cfg, w, logger), nil
	default:
		return nil, fmt.Errorf("audioio: unsupported backend: %s", cfg.Backend)
	}
}
