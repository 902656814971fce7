// Package lookup implements the cached multi-provider company lookup: a TTL
// cache over the persistent store, a structured-data baseline fetch, and a
// trust-ranked email cascade shared by the single and bulk paths.
package lookup

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vendaslab/prospect-cli/internal/email"
	"github.com/vendaslab/prospect-cli/internal/model"
	"github.com/vendaslab/prospect-cli/internal/phone"
	"github.com/vendaslab/prospect-cli/internal/provider"
	"github.com/vendaslab/prospect-cli/internal/resilience"
	"github.com/vendaslab/prospect-cli/internal/store"
)

// DefaultTTL is the cache freshness window when none is configured.
const DefaultTTL = 30 * 24 * time.Hour

// cacheCheckConcurrency bounds parallel store reads during a bulk run; the
// store is local, so this is about fd pressure, not provider quotas.
const cacheCheckConcurrency = 8

// Service orchestrates lookups against the provider set and the cache.
type Service struct {
	store      store.Store
	providers  *provider.Set
	classifier *email.Classifier
	ttl        time.Duration
	now        func() time.Time
}

// Option adjusts Service construction.
type Option func(*Service)

// WithTTL overrides the cache freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New builds a lookup service over the given store and provider set.
func New(st store.Store, providers *provider.Set, classifier *email.Classifier, opts ...Option) *Service {
	s := &Service{
		store:      st,
		providers:  providers,
		classifier: classifier,
		ttl:        DefaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeID strips punctuation from a tax id and validates it is the
// 14-digit company form. Registry lookups only work for companies.
func NormalizeID(raw string) (string, error) {
	id := digits(raw)
	if len(id) != 14 {
		return "", eris.Errorf("lookup: invalid tax id %q: want 14 digits, got %d", raw, len(id))
	}
	return id, nil
}

// NormalizeLeadID accepts either id form a lead may carry: the 14-digit
// company id or the 11-digit personal id.
func NormalizeLeadID(raw string) (string, error) {
	id := digits(raw)
	if len(id) != 14 && len(id) != 11 {
		return "", eris.Errorf("lookup: invalid lead id %q: want 11 or 14 digits, got %d", raw, len(id))
	}
	return id, nil
}

func digits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Lookup returns the company record for one tax id, serving from cache when
// fresh. A failed structured fetch still produces and caches a record tagged
// lookup_failed, so a down provider is not re-hammered inside the TTL window.
// skipSlowFallback returns right after the structured fetch, without
// consulting the email providers.
func (s *Service) Lookup(ctx context.Context, rawID string, skipSlowFallback bool) (*model.CompanyRecord, error) {
	id, err := NormalizeID(rawID)
	if err != nil {
		return nil, err
	}

	cached, err := s.store.GetCompany(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if cached.Fresh(now, s.ttl) {
		return cached, nil
	}

	rec := s.fetchStructured(ctx, id, cached)

	if !skipSlowFallback && rec.Email == "" {
		s.fetchEmailRanked(ctx, rec)
	}
	s.classifyRecord(rec, "")

	stamp := s.now().UTC()
	rec.LastLookupAt = &stamp
	if err := s.store.UpsertCompany(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// fetchStructured builds the baseline record from the structured provider,
// carrying phones forward from a stale cached row when one exists.
func (s *Service) fetchStructured(ctx context.Context, id string, cached *model.CompanyRecord) *model.CompanyRecord {
	rec := &model.CompanyRecord{Identifier: id}
	existingPhones := ""
	if cached != nil {
		existingPhones = cached.Phones
	}

	company, err := s.providers.Structured.Fetch(ctx, id)
	if err != nil {
		zap.L().Warn("structured lookup failed",
			zap.String("identifier", id),
			zap.String("provider", s.providers.Structured.Name()),
			zap.Bool("not_found", errors.Is(err, resilience.ErrNotFound)),
			zap.Error(err))
		rec.LookupFailed = true
		rec.Phones = phone.Merge(existingPhones)
		return rec
	}

	rec.RazaoSocial = company.RazaoSocial
	rec.NomeFantasia = company.NomeFantasia
	rec.Situacao = company.Situacao
	rec.City = company.City
	rec.State = company.State
	rec.CNAE = company.CNAE
	rec.Phones = phone.Merge(existingPhones, company.Phones...)
	if company.Email != "" {
		rec.Email = company.Email
		rec.EmailSource = s.providers.Structured.Name()
	}
	return rec
}

// fetchEmailRanked walks the ranked providers in trust order, stopping at
// the first non-empty email. A provider error is logged and skipped; it
// never aborts the cascade.
func (s *Service) fetchEmailRanked(ctx context.Context, rec *model.CompanyRecord) {
	for _, p := range s.providers.Ranked {
		addr, err := p.FetchEmail(ctx, rec.Identifier)
		if err != nil {
			if !errors.Is(err, resilience.ErrNotFound) {
				zap.L().Warn("email lookup failed",
					zap.String("identifier", rec.Identifier),
					zap.String("provider", p.Name()),
					zap.Error(err))
			}
			continue
		}
		if addr != "" {
			rec.Email = addr
			rec.EmailSource = p.Name()
			return
		}
	}
}

// classifyRecord stamps the email category. alternative is a differing email
// seen from another source for the same id, when one exists.
func (s *Service) classifyRecord(rec *model.CompanyRecord, alternative string) {
	if rec.Email == "" {
		rec.EmailCategory = ""
		return
	}
	rec.EmailCategory = s.classifier.Classify(rec.Email, rec.EmailSource, alternative)
}
