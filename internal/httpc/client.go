// Package httpc provides shared HTTP clients with sensible defaults.
// Use these instead of http.DefaultClient so connect timeouts are always set.
package httpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
)

// maxErrorBody bounds how much of a failed response is kept for messages.
const maxErrorBody = 4 << 10

func newTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   DefaultConnectTimeout,
			KeepAlive: DefaultKeepAlive,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Client is a shared HTTP client with production-ready defaults.
var Client = NewClient(DefaultTimeout)

// NewClient creates a new HTTP client with the specified overall timeout.
// A zero timeout leaves requests bounded only by their context, which is
// what SDP signaling wants.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(),
	}
}

// StatusError is returned by the JSON helpers for non-2xx responses.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("httpc: %s: %s", e.Status, e.Body)
	}
	return "httpc: " + e.Status
}

// ReadError drains up to a few KiB of a failed response into a StatusError.
func ReadError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(bytes.TrimSpace(body)),
	}
}

// GetJSON performs a GET and decodes a 2xx JSON body into out.
func GetJSON(ctx context.Context, c *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return doJSON(c, req, out)
}

// PostJSON marshals in, POSTs it, and decodes a 2xx JSON body into out.
// Extra headers are applied as key/value pairs.
func PostJSON(ctx context.Context, c *http.Client, url string, in, out any, headers ...string) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("httpc: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return doJSON(c, req, out)
}

func doJSON(c *http.Client, req *http.Request, out any) error {
	if c == nil {
		c = Client
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ReadError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("httpc: decode response: %w", err)
	}
	return nil
}
