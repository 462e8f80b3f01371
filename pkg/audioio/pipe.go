package audioio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// PipeSource reads raw PCM16 little-endian frames from an io.Reader.
type PipeSource struct {
	cfg    Config
	r      io.Reader
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan AudioChunk
	stopCh   chan struct{}

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// NewPipeSource creates a source reading cfg.BufferBytes() per chunk from r.
func NewPipeSource(cfg Config, r io.Reader, logger *slog.Logger) *PipeSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipeSource{
		cfg:      cfg,
		r:        r,
		logger:   logger.With("component", "audioio.pipe_source"),
		streamCh: make(chan AudioChunk),
		stopCh:   make(chan struct{}),
	}
}

// Start begins reading. The read loop ends on Stop, ctx cancellation or
// when the reader reports EOF.
func (p *PipeSource) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return io.ErrClosedPipe
	}
	if p.r == nil {
		return errors.New("audioio: pipe source has no reader")
	}
	if p.running {
		return nil
	}

	p.running = true
	p.stopCh = make(chan struct{})
	p.streamCh = make(chan AudioChunk, 16)
	go p.readLoop(ctx, p.stopCh, p.streamCh)

	p.logger.Info("pipe audio source started", "sample_rate", p.cfg.SampleRate)
	return nil
}

func (p *PipeSource) readLoop(ctx context.Context, stopCh <-chan struct{}, out chan<- AudioChunk) {
	defer close(out)

	buf := make([]byte, p.cfg.BufferBytes())
	for {
		if _, err := io.ReadFull(p.r, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				p.logger.Warn("pipe read failed", "error", err)
			}
			p.markStopped(stopCh)
			return
		}

		var chunk AudioChunk
		chunk.FromBytes(buf, p.cfg.SampleRate, p.cfg.Channels)

		select {
		case <-ctx.Done():
			p.markStopped(stopCh)
			return
		case <-stopCh:
			return
		case out <- chunk:
			p.chunksRead.Add(1)
			p.samplesRead.Add(int64(len(chunk.Samples)))
		default:
			p.overruns.Add(1)
		}
	}
}

// markStopped flips running off when the loop ends on its own.
func (p *PipeSource) markStopped(stopCh <-chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running && p.stopCh == stopCh {
		p.running = false
		close(p.stopCh)
	}
}

// Stop halts reading. A read already blocked on the pipe completes and
// its chunk is discarded.
func (p *PipeSource) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}
	p.running = false
	close(p.stopCh)
	p.logger.Info("pipe audio source stopped")
	return nil
}

// Read reads the next audio chunk.
func (p *PipeSource) Read(ctx context.Context) (AudioChunk, error) {
	p.mu.Lock()
	ch := p.streamCh
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-ch:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

func (p *PipeSource) Stream() <-chan AudioChunk {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streamCh
}

func (p *PipeSource) Config() Config { return p.cfg }

func (p *PipeSource) Name() string { return "pipe" }

// Close stops the source and closes the reader if it is an io.Closer.
func (p *PipeSource) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.Stop()
	if c, ok := p.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (p *PipeSource) Stats() SourceStats {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()

	return SourceStats{
		ChunksRead:  p.chunksRead.Load(),
		SamplesRead: p.samplesRead.Load(),
		Overruns:    p.overruns.Load(),
		Running:     running,
		Backend:     "pipe",
	}
}

var _ SourceWithStats = (*PipeSource)(nil)

// PipeSink writes raw PCM16 little-endian audio to an io.Writer.
type PipeSink struct {
	cfg    Config
	w      io.Writer
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
	clears         atomic.Int64
}

// NewPipeSink creates a sink writing to w.
func NewPipeSink(cfg Config, w io.Writer, logger *slog.Logger) *PipeSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipeSink{
		cfg:    cfg,
		w:      w,
		logger: logger.With("component", "audioio.pipe_sink"),
	}
}

func (p *PipeSink) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return io.ErrClosedPipe
	}
	p.running = true
	return nil
}

func (p *PipeSink) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	return nil
}

// Write converts the chunk to the sink format and writes it.
func (p *PipeSink) Write(ctx context.Context, chunk AudioChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chunk = Convert(chunk, p.cfg.SampleRate, p.cfg.Channels)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || !p.running {
		return io.ErrClosedPipe
	}
	if _, err := p.w.Write(chunk.Bytes()); err != nil {
		return err
	}
	p.chunksWritten.Add(1)
	p.samplesWritten.Add(int64(len(chunk.Samples)))
	return nil
}

type flusher interface{ Flush() error }

func (p *PipeSink) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.w.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// Clear has nothing buffered to drop; the downstream player owns its buffer.
func (p *PipeSink) Clear() error {
	p.clears.Add(1)
	return nil
}

func (p *PipeSink) Config() Config { return p.cfg }

func (p *PipeSink) Name() string { return "pipe" }

func (p *PipeSink) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.running = false
	p.mu.Unlock()

	if c, ok := p.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (p *PipeSink) Stats() SinkStats {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	return SinkStats{
		ChunksWritten:  p.chunksWritten.Load(),
		SamplesWritten: p.samplesWritten.Load(),
		Clears:         p.clears.Load(),
		Running:        running,
		Backend:        "pipe",
	}
}

var _ SinkWithStats = (*PipeSink)(nil)
