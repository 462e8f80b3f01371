package realtime

import (
	"errors"
	"log/slog"
	"time"

	"github.com/teslashibe/go-concierge/pkg/history"
)

// Config holds configuration for a Controller.
type Config struct {
	// Voices maps detected languages to synthesis voices.
	Voices VoiceMap

	// InitialLanguage is the language a new session assumes.
	InitialLanguage Language

	// History receives the conversation after every final transcript.
	// Nil disables mirroring.
	History history.Writer

	// HistoryTimeout bounds each history write.
	HistoryTimeout time.Duration

	// Recorder receives metrics. Nil disables them.
	Recorder Recorder

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Voices:          DefaultVoices(),
		InitialLanguage: English,
		HistoryTimeout:  10 * time.Second,
		Logger:          slog.Default(),
	}
}

// Option is a functional option for configuring a Controller.
type Option func(*Config)

// WithVoices sets the language to voice mapping.
func WithVoices(v VoiceMap) Option {
	return func(c *Config) {
		c.Voices = v
	}
}

// WithInitialLanguage sets the language sessions start in.
func WithInitialLanguage(l Language) Option {
	return func(c *Config) {
		c.InitialLanguage = l
	}
}

// WithHistory mirrors conversation history to w.
func WithHistory(w history.Writer) Option {
	return func(c *Config) {
		c.History = w
	}
}

// WithHistoryTimeout bounds each history write.
func WithHistoryTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.HistoryTimeout = d
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Config) {
		c.Recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Voices.VoiceFor(English) == "" {
		return errors.New("realtime: an english voice is required")
	}
	if !c.InitialLanguage.Valid() {
		return errors.New("realtime: unknown initial language")
	}
	if c.History != nil && c.HistoryTimeout <= 0 {
		return errors.New("realtime: history timeout must be positive")
	}
	return nil
}
