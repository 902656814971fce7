// Package cnpja queries the CNPJá open API, the first-ranked email-capable
// CNPJ provider. Strictly rate limited upstream; callers must admit requests
// through the provider's gate.
package cnpja

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

const defaultBaseURL = "https://open.cnpja.com"

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

// NewClient creates a CNPJá client.
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

type officeResponse struct {
	TaxID  string `json:"taxId"`
	Emails []struct {
		Address string `json:"address"`
	} `json:"emails"`
}

// FetchEmail returns the first registered email address, or "" when the
// record exists but lists none.
func (c *httpClient) FetchEmail(ctx context.Context, cnpj string) (string, error) {
	url := fmt.Sprintf("%s/office/%s", c.baseURL, cnpj)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", eris.Wrap(err, "cnpja: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "cnpja: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "cnpja: read response")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", eris.Wrapf(resilience.ErrNotFound, "cnpja: cnpj %s", cnpj)
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return "", resilience.NewTransientError(
			eris.Errorf("cnpja: status %d", resp.StatusCode), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", eris.Errorf("cnpja: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result officeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", eris.Wrap(err, "cnpja: unmarshal response")
	}
	if len(result.Emails) == 0 {
		return "", nil
	}
	return result.Emails[0].Address, nil
}
