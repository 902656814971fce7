// Package brasilapi queries the BrasilAPI public CNPJ registry, the fast
// structured-data source for company name, address and phone baseline.
package brasilapi

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

const defaultBaseURL = "https://brasilapi.com.br/api"

// Company is the subset of the registry record the pipeline consumes.
type Company struct {
	CNPJ         string
	RazaoSocial  string
	NomeFantasia string
	Situacao     string
	Phones       []string // raw registry strings, not yet normalized
	Email        string
	City         string
	State        string
	CNAE         string
}

// Client fetches structured company data by CNPJ.
type Client interface {
	Fetch(ctx context.Context, cnpj string) (*Company, error)
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

// NewClient creates a BrasilAPI client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type cnpjResponse struct {
	CNPJ          string `json:"cnpj"`
	RazaoSocial   string `json:"razao_social"`
	NomeFantasia  string `json:"nome_fantasia"`
	Situacao      string `json:"descricao_situacao_cadastral"`
	DDDTelefone1  string `json:"ddd_telefone_1"`
	DDDTelefone2  string `json:"ddd_telefone_2"`
	Email         string `json:"email"`
	CNAEFiscal    int    `json:"cnae_fiscal"`
	Municipio     string `json:"municipio"`
	UF            string `json:"uf"`
}

func (c *httpClient) Fetch(ctx context.Context, cnpj string) (*Company, error) {
	url := fmt.Sprintf("%s/cnpj/v1/%s", c.baseURL, cnpj)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "brasilapi: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "brasilapi: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "brasilapi: read response")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, eris.Wrapf(resilience.ErrNotFound, "brasilapi: cnpj %s", cnpj)
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("brasilapi: status %d", resp.StatusCode), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("brasilapi: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result cnpjResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "brasilapi: unmarshal response")
	}
	if result.CNPJ == "" {
		return nil, eris.Wrapf(resilience.ErrNotFound, "brasilapi: cnpj %s", cnpj)
	}

	company := &Company{
		CNPJ:         result.CNPJ,
		RazaoSocial:  result.RazaoSocial,
		NomeFantasia: result.NomeFantasia,
		Situacao:     result.Situacao,
		Email:        result.Email,
		City:         result.Municipio,
		State:        result.UF,
	}
	if result.CNAEFiscal > 0 {
		company.CNAE = fmt.Sprintf("%07d", result.CNAEFiscal)
	}
	for _, p := range []string{result.DDDTelefone1, result.DDDTelefone2} {
		if p != "" {
			company.Phones = append(company.Phones, p)
		}
	}
	return company, nil
}
