// Package config loads process configuration for go-concierge commands.
//
// Values come from built-in defaults, then an optional YAML file named by
// CONCIERGE_CONFIG, then environment variables. Later sources win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultPort                = "8080"
	DefaultRealtimeURL         = "https://api.openai.com/v1/realtime"
	DefaultRealtimeSessionsURL = "https://api.openai.com/v1/realtime/sessions"
	DefaultRealtimeModel       = "gpt-4o-realtime-preview"
	DefaultICEGatherTimeout    = 5 * time.Second
	DefaultVoiceEnglish        = "alloy"
	DefaultVoiceHindi          = "shimmer"
	DefaultAudioBackend        = "pipe"
	DefaultSampleRate          = 48000
)

// DefaultSTUNServers are independent public STUN servers.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// DefaultSystemPrompt keeps the assistant on-topic and bilingual.
const DefaultSystemPrompt = `You are a friendly real-estate concierge helping callers find, compare and book property viewings.
Always reply in the language the caller last spoke. Only English and Hindi are supported: if the caller uses any other language, answer in English.
Keep answers short and conversational because they are spoken aloud.`

// Config is the process configuration.
type Config struct {
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// OpenAIAPIKey is only needed by the credential proxy.
	OpenAIAPIKey        string `yaml:"openai_api_key"`
	RealtimeURL         string `yaml:"realtime_url"`
	RealtimeSessionsURL string `yaml:"realtime_sessions_url"`
	RealtimeModel       string `yaml:"realtime_model"`

	// VoiceTokenURL is the credential proxy a headless call fetches tokens from.
	VoiceTokenURL string `yaml:"voice_token_url"`
	HistoryURL    string `yaml:"history_url"`
	DatabaseURL   string `yaml:"database_url"`

	STUNServers      []string      `yaml:"stun_servers"`
	ICEGatherTimeout time.Duration `yaml:"ice_gather_timeout"`

	VoiceEnglish string `yaml:"voice_english"`
	VoiceHindi   string `yaml:"voice_hindi"`

	SystemPromptFile string `yaml:"system_prompt_file"`
	SystemPrompt     string `yaml:"system_prompt"`

	AudioBackend string `yaml:"audio_backend"`
	SampleRate   int    `yaml:"sample_rate"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Port:                DefaultPort,
		LogLevel:            "info",
		RealtimeURL:         DefaultRealtimeURL,
		RealtimeSessionsURL: DefaultRealtimeSessionsURL,
		RealtimeModel:       DefaultRealtimeModel,
		STUNServers:         append([]string(nil), DefaultSTUNServers...),
		ICEGatherTimeout:    DefaultICEGatherTimeout,
		VoiceEnglish:        DefaultVoiceEnglish,
		VoiceHindi:          DefaultVoiceHindi,
		SystemPrompt:        DefaultSystemPrompt,
		AudioBackend:        DefaultAudioBackend,
		SampleRate:          DefaultSampleRate,
	}
}

// Load builds the configuration from defaults, file and environment.
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path := getenv("CONCIERGE_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.mergeEnv(getenv); err != nil {
		return nil, err
	}
	cfg.STUNServers = distinct(cfg.STUNServers)
	if cfg.SystemPromptFile != "" {
		b, err := os.ReadFile(cfg.SystemPromptFile)
		if err != nil {
			return nil, fmt.Errorf("config: read system prompt: %w", err)
		}
		cfg.SystemPrompt = strings.TrimSpace(string(b))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("PORT", &c.Port)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("OPENAI_API_KEY", &c.OpenAIAPIKey)
	str("REALTIME_URL", &c.RealtimeURL)
	str("REALTIME_SESSIONS_URL", &c.RealtimeSessionsURL)
	str("REALTIME_MODEL", &c.RealtimeModel)
	str("VOICE_TOKEN_URL", &c.VoiceTokenURL)
	str("HISTORY_URL", &c.HistoryURL)
	str("DATABASE_URL", &c.DatabaseURL)
	str("VOICE_ENGLISH", &c.VoiceEnglish)
	str("VOICE_HINDI", &c.VoiceHindi)
	str("SYSTEM_PROMPT_FILE", &c.SystemPromptFile)
	str("AUDIO_BACKEND", &c.AudioBackend)

	if v := getenv("STUN_SERVERS"); v != "" {
		c.STUNServers = splitList(v)
	}
	if v := getenv("ICE_GATHER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: ICE_GATHER_TIMEOUT: %w", err)
		}
		c.ICEGatherTimeout = d
	}
	if v := getenv("SAMPLE_RATE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: SAMPLE_RATE: %w", err)
		}
		c.SampleRate = n
	}
	return nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if c.RealtimeURL == "" {
		errs = append(errs, errors.New("realtime_url is required"))
	}
	if c.RealtimeModel == "" {
		errs = append(errs, errors.New("realtime_model is required"))
	}
	if n := len(distinct(c.STUNServers)); n < 2 {
		errs = append(errs, fmt.Errorf("at least two distinct stun servers are required, got %d", n))
	}
	if c.ICEGatherTimeout <= 0 {
		errs = append(errs, errors.New("ice_gather_timeout must be positive"))
	}
	if c.VoiceEnglish == "" || c.VoiceHindi == "" {
		errs = append(errs, errors.New("voice_english and voice_hindi are required"))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, errors.New("sample_rate must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// distinct drops repeated entries, comparing case-insensitively, and
// keeps the first spelling of each.
func distinct(list []string) []string {
	seen := make(map[string]bool, len(list))
	var out []string
	for _, v := range list {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
