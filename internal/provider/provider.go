// Package provider bundles each external data source with its admission
// gate. The ranked email-provider list is defined once here and consumed by
// both the single and bulk lookup paths, so trust order and retry policy
// never diverge between them.
package provider

import (
	"context"
	"time"

	"github.com/vendaslab/prospect-cli/internal/gate"
	"github.com/vendaslab/prospect-cli/internal/resilience"
	"github.com/vendaslab/prospect-cli/pkg/brasilapi"
	"github.com/vendaslab/prospect-cli/pkg/cnpja"
	"github.com/vendaslab/prospect-cli/pkg/cnpjws"
	"github.com/vendaslab/prospect-cli/pkg/receitaws"
)

// Structured is the fast structured-data source guarded by its gate. It
// supplies the name/address/phone baseline for a company record.
type Structured struct {
	name   string
	gate   *gate.Gate
	client brasilapi.Client
}

// Name returns the provider's registry name.
func (s *Structured) Name() string { return s.name }

// Fetch retrieves the structured company record through the gate.
func (s *Structured) Fetch(ctx context.Context, cnpj string) (*brasilapi.Company, error) {
	return gate.Do(ctx, s.gate, "fetch "+cnpj, func(ctx context.Context) (*brasilapi.Company, error) {
		return s.client.Fetch(ctx, cnpj)
	})
}

// Email is one trust-ranked email-capable source guarded by its gate.
type Email struct {
	name  string
	gate  *gate.Gate
	fetch func(ctx context.Context, cnpj string) (string, error)
}

// NewEmail wraps a fetch function with a gate. Exposed so tests and future
// sources can join the ranked list without touching the orchestrators.
func NewEmail(name string, g *gate.Gate, fetch func(ctx context.Context, cnpj string) (string, error)) *Email {
	return &Email{name: name, gate: g, fetch: fetch}
}

// Name returns the provider's registry name.
func (e *Email) Name() string { return e.name }

// FetchEmail retrieves the contact email through the gate. An empty string
// with nil error means the provider answered but has no email on file.
func (e *Email) FetchEmail(ctx context.Context, cnpj string) (string, error) {
	return gate.Do(ctx, e.gate, "fetch email "+cnpj, func(ctx context.Context) (string, error) {
		return e.fetch(ctx, cnpj)
	})
}

// Limits carries the per-provider gate parameters. Zero values fall back to
// the gate defaults (1 concurrent, 3 per minute), which match the strict
// email providers' public quotas.
type Limits struct {
	Structured gate.Limits
	CNPJA      gate.Limits
	CNPJWS     gate.Limits
	ReceitaWS  gate.Limits
}

// DefaultLimits returns the stock quotas: the structured provider tolerates
// real concurrency, the email providers are held to their per-minute caps.
func DefaultLimits() Limits {
	return Limits{
		Structured: gate.Limits{MaxConcurrent: 5, MaxPerWindow: 20, Window: time.Second},
	}
}

// Set owns every long-lived provider for the process, constructed once at
// startup and injected into the orchestrators.
type Set struct {
	Structured *Structured
	// Ranked is ordered highest trust first; the final entry is the
	// last-resort source whose uncorroborated emails are suspect.
	Ranked []*Email
}

// Option adjusts client construction, mainly for tests pointing clients at
// an httptest server.
type Option func(*setOptions)

type setOptions struct {
	brasilAPI []brasilapi.Option
	cnpja     []cnpja.Option
	cnpjws    []cnpjws.Option
	receitaWS []receitaws.Option
}

// WithBrasilAPIOptions forwards options to the structured client.
func WithBrasilAPIOptions(opts ...brasilapi.Option) Option {
	return func(o *setOptions) { o.brasilAPI = append(o.brasilAPI, opts...) }
}

// WithCNPJAOptions forwards options to the cnpja client.
func WithCNPJAOptions(opts ...cnpja.Option) Option {
	return func(o *setOptions) { o.cnpja = append(o.cnpja, opts...) }
}

// WithCNPJWSOptions forwards options to the cnpj.ws client.
func WithCNPJWSOptions(opts ...cnpjws.Option) Option {
	return func(o *setOptions) { o.cnpjws = append(o.cnpjws, opts...) }
}

// WithReceitaWSOptions forwards options to the receitaws client.
func WithReceitaWSOptions(opts ...receitaws.Option) Option {
	return func(o *setOptions) { o.receitaWS = append(o.receitaWS, opts...) }
}

// NewSet registers one gate per provider and builds the ranked list:
// cnpja, then cnpj.ws, with receitaws as the last resort.
func NewSet(reg *gate.Registry, limits Limits, retry resilience.RetryConfig, opts ...Option) *Set {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}

	cnpjaClient := cnpja.NewClient(o.cnpja...)
	cnpjwsClient := cnpjws.NewClient(o.cnpjws...)
	receitaClient := receitaws.NewClient(o.receitaWS...)

	return &Set{
		Structured: &Structured{
			name:   "brasilapi",
			gate:   reg.Register("brasilapi", limits.Structured, retry),
			client: brasilapi.NewClient(o.brasilAPI...),
		},
		Ranked: []*Email{
			NewEmail("cnpja", reg.Register("cnpja", limits.CNPJA, retry), cnpjaClient.FetchEmail),
			NewEmail("cnpjws", reg.Register("cnpjws", limits.CNPJWS, retry), cnpjwsClient.FetchEmail),
			NewEmail("receitaws", reg.Register("receitaws", limits.ReceitaWS, retry), receitaClient.FetchEmail),
		},
	}
}

// TopPair returns the two highest-trust email providers, the pair the bulk
// path spreads its first pass across.
func (s *Set) TopPair() (*Email, *Email) {
	return s.Ranked[0], s.Ranked[1]
}

// LastResort returns the lowest-trust email provider.
func (s *Set) LastResort() *Email {
	return s.Ranked[len(s.Ranked)-1]
}

// LowTrustName returns the name of the last-resort provider, which the email
// classifier treats as unreliable.
func (s *Set) LowTrustName() string {
	return s.LastResort().Name()
}
