// Package zapi is a client for a Z-API-style WhatsApp gateway: text sends by
// phone number plus a bulk "does this number have WhatsApp" existence probe.
package zapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/vendaslab/prospect-cli/internal/resilience"
)

// SendResult is the gateway's acknowledgment of an accepted message.
type SendResult struct {
	MessageID string
}

// Client talks to the WhatsApp gateway.
type Client interface {
	// SendText delivers a text message to a phone number in canonical form.
	SendText(ctx context.Context, phone, text string) (*SendResult, error)
	// CheckNumbers probes which phone numbers are reachable on WhatsApp.
	// Probes run in batches with a pause in between to stay under the
	// gateway's burst tolerance.
	CheckNumbers(ctx context.Context, phones []string) (map[string]bool, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default gateway base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithProbeBatch tunes the CheckNumbers batch size and inter-batch pause.
func WithProbeBatch(size int, pause time.Duration) Option {
	return func(c *httpClient) {
		if size > 0 {
			c.probeBatch = size
		}
		if pause >= 0 {
			c.probePause = pause
		}
	}
}

type httpClient struct {
	baseURL    string
	instanceID string
	token      string
	http       *http.Client
	probeBatch int
	probePause time.Duration
}

// NewClient creates a gateway client for the given instance credentials.
func NewClient(baseURL, instanceID, token string, opts ...Option) Client {
	c := &httpClient{
		baseURL:    baseURL,
		instanceID: instanceID,
		token:      token,
		http:       &http.Client{Timeout: 30 * time.Second},
		probeBatch: 10,
		probePause: 2 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type sendTextRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type sendTextResponse struct {
	MessageID string `json:"messageId"`
	ZapID     string `json:"zapId"`
	Error     string `json:"error,omitempty"`
}

func (c *httpClient) SendText(ctx context.Context, phone, text string) (*SendResult, error) {
	// The gateway takes bare digits, no "+" prefix.
	payload := sendTextRequest{Phone: strings.TrimPrefix(phone, "+"), Message: text}

	var result sendTextResponse
	if err := c.post(ctx, "/send-text", payload, &result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, eris.Errorf("zapi: send rejected: %s", result.Error)
	}

	id := result.MessageID
	if id == "" {
		id = result.ZapID
	}
	return &SendResult{MessageID: id}, nil
}

type phoneExistsEntry struct {
	Phone  string `json:"inputPhone"`
	Exists bool   `json:"exists"`
}

func (c *httpClient) CheckNumbers(ctx context.Context, phones []string) (map[string]bool, error) {
	out := make(map[string]bool, len(phones))

	for start := 0; start < len(phones); start += c.probeBatch {
		end := start + c.probeBatch
		if end > len(phones) {
			end = len(phones)
		}
		batch := make([]string, 0, end-start)
		for _, p := range phones[start:end] {
			batch = append(batch, strings.TrimPrefix(p, "+"))
		}

		var entries []phoneExistsEntry
		if err := c.post(ctx, "/phone-exists-batch", map[string][]string{"phones": batch}, &entries); err != nil {
			return nil, err
		}
		for _, e := range entries {
			out["+"+e.Phone] = e.Exists
		}

		if end < len(phones) && c.probePause > 0 {
			timer := time.NewTimer(c.probePause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, eris.Wrap(ctx.Err(), "zapi: probe canceled")
			case <-timer.C:
			}
		}
	}
	return out, nil
}

func (c *httpClient) post(ctx context.Context, path string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "zapi: marshal request")
	}

	url := fmt.Sprintf("%s/instances/%s/token/%s%s", c.baseURL, c.instanceID, c.token, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "zapi: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "zapi: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "zapi: read response")
	}

	switch {
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return resilience.NewTransientError(
			eris.Errorf("zapi: status %d", resp.StatusCode), resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return eris.Errorf("zapi: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return eris.Wrap(err, "zapi: unmarshal response")
	}
	return nil
}
