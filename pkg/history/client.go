package history

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/teslashibe/go-concierge/internal/httpc"
)

// SaveRequest is the body of POST /api/history.
type SaveRequest struct {
	ID       *string   `json:"id"`
	Messages []Message `json:"messages"`
}

// SaveResponse is the reply of POST /api/history.
type SaveResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    *struct {
		ID string `json:"id"`
	} `json:"data,omitempty"`
}

// Client writes history to the history API.
type Client struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

var _ Writer = (*Client)(nil)

// NewClient creates a client posting to url.
func NewClient(url string, client *http.Client, logger *slog.Logger) *Client {
	if client == nil {
		client = httpc.Client
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:    url,
		client: client,
		logger: logger.With("component", "history.client"),
	}
}

// Save posts the messages. On failure it returns the id it was given
// alongside the error, so callers can keep using the previous handle.
func (c *Client) Save(ctx context.Context, id string, messages []Message) (string, error) {
	req := SaveRequest{Messages: messages}
	if id != "" {
		req.ID = &id
	}

	var resp SaveResponse
	if err := httpc.PostJSON(ctx, c.client, c.url, req, &resp); err != nil {
		return id, fmt.Errorf("history: save: %w", err)
	}
	if !resp.Success || resp.Data == nil || resp.Data.ID == "" {
		msg := resp.Message
		if msg == "" {
			msg = "no id returned"
		}
		return id, fmt.Errorf("history: save rejected: %s", msg)
	}
	c.logger.Debug("history saved", "id", resp.Data.ID, "messages", len(messages))
	return resp.Data.ID, nil
}
