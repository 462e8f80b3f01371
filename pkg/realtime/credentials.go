package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/teslashibe/go-concierge/internal/httpc"
)

// CredentialSource yields a short-lived token for one session.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticCredential is a fixed token, mostly for tests and local tools.
type StaticCredential string

func (c StaticCredential) Token(context.Context) (string, error) {
	if c == "" {
		return "", &CredentialError{Reason: "empty token"}
	}
	return string(c), nil
}

// VoiceTokenResponse is the body served by the credential proxy.
type VoiceTokenResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    *struct {
		VoiceToken string `json:"voiceToken"`
	} `json:"data,omitempty"`
}

// HTTPCredentials fetches tokens from the credential proxy.
type HTTPCredentials struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

var _ CredentialSource = (*HTTPCredentials)(nil)

// NewHTTPCredentials creates a source reading from url.
func NewHTTPCredentials(url string, client *http.Client, logger *slog.Logger) *HTTPCredentials {
	if client == nil {
		client = httpc.Client
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPCredentials{
		url:    url,
		client: client,
		logger: logger.With("component", "realtime.credentials"),
	}
}

// Token fetches a fresh token. A response without data.voiceToken is a
// CredentialError.
func (c *HTTPCredentials) Token(ctx context.Context) (string, error) {
	var body VoiceTokenResponse
	if err := httpc.GetJSON(ctx, c.client, c.url, &body); err != nil {
		var se *httpc.StatusError
		if errors.As(err, &se) {
			return "", &CredentialError{Reason: se.Status, Cause: err}
		}
		return "", &CredentialError{Reason: "request failed", Cause: err}
	}
	if !body.Success {
		reason := body.Message
		if reason == "" {
			reason = "proxy reported failure"
		}
		return "", &CredentialError{Reason: reason}
	}
	if body.Data == nil || body.Data.VoiceToken == "" {
		return "", &CredentialError{Reason: "response has no voiceToken"}
	}
	c.logger.Debug("voice token issued")
	return body.Data.VoiceToken, nil
}
