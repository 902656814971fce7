package lookup

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vendaslab/prospect-cli/internal/model"
	"github.com/vendaslab/prospect-cli/internal/provider"
	"github.com/vendaslab/prospect-cli/internal/resilience"
)

// LookupMany resolves a batch of tax ids. Fresh cache rows are returned
// without network calls; the rest get a parallel structured fetch, then a
// two-pass email fan-out: pass 1 alternates ids across the two top-trust
// providers to fill both rate windows at once, pass 2 sends the residual to
// the last-resort provider. Every miss is upserted back into the cache,
// including failed fetches.
func (s *Service) LookupMany(ctx context.Context, rawIDs []string, skipSlowFallback bool) (map[string]*model.CompanyRecord, error) {
	ids := dedupeIDs(rawIDs)
	out := make(map[string]*model.CompanyRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	now := s.now()
	stale := make(map[string]*model.CompanyRecord) // miss id -> stale row or nil
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(cacheCheckConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			cached, err := s.store.GetCompany(ctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if cached.Fresh(now, s.ttl) {
				out[id] = cached
			} else {
				stale[id] = cached
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(stale) == 0 {
		return out, nil
	}

	misses := make([]*model.CompanyRecord, 0, len(stale))
	var fetchGroup errgroup.Group
	for id, cached := range stale {
		rec := &model.CompanyRecord{Identifier: id}
		misses = append(misses, rec)
		fetchGroup.Go(func() error {
			// the provider gate bounds concurrency; no extra throttle here
			*rec = *s.fetchStructured(ctx, id, cached)
			return nil
		})
	}
	fetchGroup.Wait() //nolint:errcheck // goroutines never return errors

	if !skipSlowFallback {
		s.bulkFetchEmails(ctx, misses)
	}

	stamp := s.now().UTC()
	for _, rec := range misses {
		s.classifyRecord(rec, "")
		ts := stamp
		rec.LastLookupAt = &ts
		if err := s.store.UpsertCompany(ctx, rec); err != nil {
			return nil, err
		}
		out[rec.Identifier] = rec
	}
	return out, nil
}

// bulkFetchEmails runs the two-pass fan-out over the records still missing
// an email after the structured fetch.
func (s *Service) bulkFetchEmails(ctx context.Context, misses []*model.CompanyRecord) {
	var needsEmail []*model.CompanyRecord
	for _, rec := range misses {
		if rec.Email == "" {
			needsEmail = append(needsEmail, rec)
		}
	}
	if len(needsEmail) == 0 {
		return
	}

	// pass 1: index parity splits the batch across the top-trust pair
	first, second := s.providers.TopPair()
	var pass1 errgroup.Group
	for i, rec := range needsEmail {
		p := first
		if i%2 == 1 {
			p = second
		}
		pass1.Go(func() error {
			s.tryEmail(ctx, p, rec)
			return nil
		})
	}
	pass1.Wait() //nolint:errcheck

	// pass 2: residual goes to the last resort
	last := s.providers.LastResort()
	var pass2 errgroup.Group
	for _, rec := range needsEmail {
		if rec.Email != "" {
			continue
		}
		pass2.Go(func() error {
			s.tryEmail(ctx, last, rec)
			return nil
		})
	}
	pass2.Wait() //nolint:errcheck
}

func (s *Service) tryEmail(ctx context.Context, p *provider.Email, rec *model.CompanyRecord) {
	addr, err := p.FetchEmail(ctx, rec.Identifier)
	if err != nil {
		if !errors.Is(err, resilience.ErrNotFound) {
			zap.L().Warn("email lookup failed",
				zap.String("identifier", rec.Identifier),
				zap.String("provider", p.Name()),
				zap.Error(err))
		}
		return
	}
	if addr != "" {
		rec.Email = addr
		rec.EmailSource = p.Name()
	}
}

// dedupeIDs normalizes and deduplicates, preserving first-seen order.
// Invalid ids are dropped with a warning rather than failing the batch.
func dedupeIDs(rawIDs []string) []string {
	seen := make(map[string]bool, len(rawIDs))
	out := make([]string, 0, len(rawIDs))
	for _, raw := range rawIDs {
		id, err := NormalizeID(raw)
		if err != nil {
			zap.L().Warn("skipping invalid tax id", zap.String("raw", raw))
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
