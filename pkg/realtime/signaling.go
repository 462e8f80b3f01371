package realtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/teslashibe/go-concierge/internal/httpc"
)

// Signaler exchanges an SDP offer for an answer.
type Signaler interface {
	Negotiate(ctx context.Context, offerSDP, credential string) (string, error)
}

// HTTPSignaler posts the offer to the realtime endpoint. There is no retry
// and no deadline beyond ctx.
type HTTPSignaler struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

var _ Signaler = (*HTTPSignaler)(nil)

// NewHTTPSignaler creates a signaler for baseURL and model. A nil client
// gets one without an overall timeout.
func NewHTTPSignaler(baseURL, model string, client *http.Client, logger *slog.Logger) *HTTPSignaler {
	if client == nil {
		client = httpc.NewClient(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSignaler{
		baseURL: baseURL,
		model:   model,
		client:  client,
		logger:  logger.With("component", "realtime.signaling"),
	}
}

// Negotiate sends offerSDP and returns the answer SDP. Any non-2xx
// status yields a SignalingError carrying the status text.
func (s *HTTPSignaler) Negotiate(ctx context.Context, offerSDP, credential string) (string, error) {
	endpoint, err := s.endpoint()
	if err != nil {
		return "", &SignalingError{Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(offerSDP))
	if err != nil {
		return "", &SignalingError{Cause: err}
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("Authorization", "Bearer "+credential)

	s.logger.Debug("sending offer", "url", endpoint, "offer_bytes", len(offerSDP))

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &SignalingError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := httpc.ReadError(resp)
		s.logger.Error("signaling rejected", "status", resp.Status, "body", se.Body)
		return "", &SignalingError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       se.Body,
		}
	}

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &SignalingError{StatusCode: resp.StatusCode, Status: resp.Status, Cause: err}
	}
	if strings.TrimSpace(string(answer)) == "" {
		return "", &SignalingError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Cause:      fmt.Errorf("empty answer"),
		}
	}
	return string(answer), nil
}

func (s *HTTPSignaler) endpoint() (string, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", s.model)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
