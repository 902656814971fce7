// Package receitaws queries the ReceitaWS free CNPJ API, the last-resort
// email provider. Lowest trust rank: its contact data frequently points at
// the filing accountant rather than the company, which the email classifier
// accounts for.
package receitaws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/vendaslab/prospect-cli/internal/resilience"
)

const defaultBaseURL = "https://receitaws.com.br/v1"

// Client fetches the registered contact email for a CNPJ.
type Client interface {
	FetchEmail(ctx context.Context, cnpj string) (string, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
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

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a ReceitaWS client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type cnpjResponse struct {
	Status  string `json:"status"` // "OK" or "ERROR"
	Message string `json:"message"`
	Email   string `json:"email"`
}

// FetchEmail returns the registered email, or "" when the record lists none.
// The API reports unknown CNPJs with HTTP 200 and status "ERROR".
func (c *httpClient) FetchEmail(ctx context.Context, cnpj string) (string, error) {
	url := fmt.Sprintf("%s/cnpj/%s", c.baseURL, cnpj)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", eris.Wrap(err, "receitaws: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "receitaws: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "receitaws: read response")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", eris.Wrapf(resilience.ErrNotFound, "receitaws: cnpj %s", cnpj)
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return "", resilience.NewTransientError(
			eris.Errorf("receitaws: status %d", resp.StatusCode), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", eris.Errorf("receitaws: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result cnpjResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", eris.Wrap(err, "receitaws: unmarshal response")
	}
	if result.Status == "ERROR" {
		return "", eris.Wrapf(resilience.ErrNotFound, "receitaws: cnpj %s: %s", cnpj, result.Message)
	}
	return result.Email, nil
}
