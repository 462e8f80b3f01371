package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/teslashibe/go-concierge/internal/httpc"
)

// ErrMissingAPIKey is returned when no upstream API key is configured.
var ErrMissingAPIKey = errors.New("server: OpenAI API key is not configured")

// TokenIssuer mints short-lived realtime credentials. Its method set
// matches realtime.CredentialSource, so an issuer can also feed a
// Controller in-process.
type TokenIssuer interface {
	Token(ctx context.Context) (string, error)
}

// OpenAIIssuer creates ephemeral realtime sessions with the server-held
// API key. The key never leaves the server.
type OpenAIIssuer struct {
	url          string
	apiKey       string
	model        string
	instructions string
	client       *http.Client
	logger       *slog.Logger
}

// NewOpenAIIssuer creates an issuer posting to the realtime sessions URL.
func NewOpenAIIssuer(url, apiKey, model, instructions string, client *http.Client, logger *slog.Logger) *OpenAIIssuer {
	if client == nil {
		client = httpc.Client
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIIssuer{
		url:          url,
		apiKey:       apiKey,
		model:        model,
		instructions: instructions,
		client:       client,
		logger:       logger.With("component", "server.issuer"),
	}
}

type transcriptionConfig struct {
	Model string `json:"model"`
}

// sessionRequest is the body sent to the realtime sessions endpoint.
type sessionRequest struct {
	Model                   string              `json:"model"`
	Modalities              []string            `json:"modalities"`
	InputAudioTranscription transcriptionConfig `json:"input_audio_transcription"`
	Instructions            string              `json:"instructions,omitempty"`
}

type sessionResponse struct {
	ID           string `json:"id"`
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

// Token implements TokenIssuer.
func (i *OpenAIIssuer) Token(ctx context.Context) (string, error) {
	if i.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	req := sessionRequest{
		Model:                   i.model,
		Modalities:              []string{"audio", "text"},
		InputAudioTranscription: transcriptionConfig{Model: "whisper-1"},
		Instructions:            i.instructions,
	}
	var resp sessionResponse
	if err := httpc.PostJSON(ctx, i.client, i.url, req, &resp, "Authorization", "Bearer "+i.apiKey); err != nil {
		return "", fmt.Errorf("server: create realtime session: %w", err)
	}
	if resp.ClientSecret.Value == "" {
		return "", errors.New("server: realtime session has no client secret")
	}

	i.logger.Debug("issued voice token", "session", resp.ID, "expires_at", resp.ClientSecret.ExpiresAt)
	return resp.ClientSecret.Value, nil
}
