// Package cnpjws queries the publica.cnpj.ws registry API, the second-ranked
// email-capable CNPJ provider.
package cnpjws

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

const defaultBaseURL = "https://publica.cnpj.ws"

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

// NewClient creates a cnpj.ws client.
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
	Estabelecimento struct {
		Email string `json:"email"`
	} `json:"estabelecimento"`
}

// FetchEmail returns the registered email, or "" when the record lists none.
func (c *httpClient) FetchEmail(ctx context.Context, cnpj string) (string, error) {
	url := fmt.Sprintf("%s/cnpj/%s", c.baseURL, cnpj)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", eris.Wrap(err, "cnpjws: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "cnpjws: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "cnpjws: read response")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", eris.Wrapf(resilience.ErrNotFound, "cnpjws: cnpj %s", cnpj)
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return "", resilience.NewTransientError(
			eris.Errorf("cnpjws: status %d", resp.StatusCode), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", eris.Errorf("cnpjws: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result cnpjResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", eris.Wrap(err, "cnpjws: unmarshal response")
	}
	return result.Estabelecimento.Email, nil
}
