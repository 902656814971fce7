// Package campaign implements the outbound send governor: per-source quota
// selection, the address-level exclusion set, paced dispatch with a daily
// cap, and the pending→sent|failed audit trail.
package campaign

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vendaslab/prospect-cli/internal/channel"
	"github.com/vendaslab/prospect-cli/internal/model"
	"github.com/vendaslab/prospect-cli/internal/store"
)

// SourceQuota is one selection bucket: category+source pulled in priority
// order, each capped at its own quota of sends per run.
type SourceQuota struct {
	Category string `yaml:"category"`
	Source   string `yaml:"source"`
	Quota    int    `yaml:"quota"`
}

// Config parameterizes one governor.
type Config struct {
	Quotas []SourceQuota
	// DailyCap bounds sent rows per calendar day; 0 disables the cap.
	DailyCap int
	// Delay is the blocking pause between consecutive sends in a run.
	Delay time.Duration
	// TemplateSeq tags the send-log rows of this run's template.
	TemplateSeq int
}

// Composer renders the outbound message for a lead.
type Composer func(lead *model.Lead) channel.Message

// Governor runs outbound campaigns on a single channel. The invariant it
// exists to enforce: a physical address that has ever received a message on
// the channel is never selected again, across runs, templates, and
// categories.
type Governor struct {
	store   store.Store
	adapter channel.Adapter
	cfg     Config
	compose Composer

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option adjusts Governor construction.
type Option func(*Governor)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) { g.now = now }
}

// WithSleep overrides the inter-send pause, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Governor) { g.sleep = sleep }
}

// New builds a governor for the adapter's channel.
func New(st store.Store, adapter channel.Adapter, cfg Config, compose Composer, opts ...Option) *Governor {
	g := &Governor{
		store:   st,
		adapter: adapter,
		cfg:     cfg,
		compose: compose,
		now:     time.Now,
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type candidate struct {
	lead    model.Lead
	address string
}

// Run executes one campaign pass and reports the outcome. A single
// recipient's failure never aborts the run.
func (g *Governor) Run(ctx context.Context) (*model.CampaignOutcome, error) {
	ch := g.adapter.Channel()
	outcome := &model.CampaignOutcome{Channel: ch}

	excluded, err := g.store.SentAddresses(ctx, ch)
	if err != nil {
		return nil, err
	}

	queue, skipped, err := g.selectCandidates(ctx, ch, excluded)
	if err != nil {
		return nil, err
	}
	outcome.Skipped += skipped

	dayStart := startOfDay(g.now())
	sentToday, err := g.store.CountSentSince(ctx, ch, dayStart)
	if err != nil {
		return nil, err
	}

	for i, cand := range queue {
		if err := ctx.Err(); err != nil {
			return outcome, eris.Wrap(err, "campaign: run")
		}
		if g.cfg.DailyCap > 0 && sentToday >= g.cfg.DailyCap {
			zap.L().Info("daily cap reached",
				zap.String("channel", string(ch)),
				zap.Int("cap", g.cfg.DailyCap))
			outcome.Skipped += len(queue) - i
			break
		}

		// re-check right before dispatch: another process may have
		// contacted this address since selection
		contacted, err := g.store.HasContacted(ctx, ch, cand.address)
		if err != nil {
			return outcome, err
		}
		if contacted {
			if err := g.markSkipped(ctx, &cand.lead, ch); err != nil {
				return outcome, err
			}
			outcome.Skipped++
			continue
		}

		if g.dispatch(ctx, ch, cand, outcome) {
			sentToday++
		}

		if i < len(queue)-1 {
			if err := g.sleep(ctx, g.cfg.Delay); err != nil {
				return outcome, eris.Wrap(err, "campaign: inter-send delay")
			}
		}
	}
	return outcome, nil
}

// selectCandidates walks the quota buckets in priority order, collecting up
// to each bucket's quota of deliverable leads. Leads whose address is
// already excluded are marked contacted so they stop being re-selected on
// every run; addresses queued earlier in the same run join the exclusion set
// immediately.
func (g *Governor) selectCandidates(ctx context.Context, ch model.Channel, excluded map[string]bool) ([]candidate, int, error) {
	var queue []candidate
	skipped := 0

	for _, bucket := range g.cfg.Quotas {
		if bucket.Quota <= 0 {
			continue
		}
		leads, err := g.store.SelectLeads(ctx, store.LeadFilter{
			Category:   bucket.Category,
			Source:     bucket.Source,
			Channel:    ch,
			OnlyUnsent: true,
		})
		if err != nil {
			return nil, 0, err
		}

		taken := 0
		for i := range leads {
			if taken >= bucket.Quota {
				break
			}
			lead := leads[i]
			addr := lead.Address(ch)
			if addr == "" {
				continue
			}
			if excluded[addr] {
				if err := g.markSkipped(ctx, &lead, ch); err != nil {
					return nil, 0, err
				}
				skipped++
				continue
			}
			excluded[addr] = true
			queue = append(queue, candidate{lead: lead, address: addr})
			taken++
		}
	}
	return queue, skipped, nil
}

// markSkipped stamps the lead's channel counter to 1 without sending. The
// send-log row for the address, written by whichever run actually sent, is
// the authoritative record; the counter only stops re-selection.
func (g *Governor) markSkipped(ctx context.Context, lead *model.Lead, ch model.Channel) error {
	return g.store.SetLeadSentCount(ctx, lead.Identifier, ch, 1)
}

// dispatch writes the pending row, sends, and resolves the row. Returns
// whether the send succeeded.
func (g *Governor) dispatch(ctx context.Context, ch model.Channel, cand candidate, outcome *model.CampaignOutcome) bool {
	entry := &model.SendLogEntry{
		ID:             uuid.NewString(),
		Channel:        ch,
		Address:        cand.address,
		LeadIdentifier: cand.lead.Identifier,
		LeadName:       cand.lead.Name,
		TemplateSeq:    g.cfg.TemplateSeq,
	}
	if err := g.store.CreateSendLog(ctx, entry); err != nil {
		outcome.Failed++
		outcome.LastError = err.Error()
		return false
	}

	msgID, err := g.adapter.Send(ctx, g.compose(&cand.lead))
	if err != nil {
		zap.L().Warn("send failed",
			zap.String("channel", string(ch)),
			zap.String("lead", cand.lead.Identifier),
			zap.Error(err))
		if rerr := g.store.ResolveSendLog(ctx, entry.ID, model.SendStatusFailed, "", err.Error()); rerr != nil {
			zap.L().Error("resolve send log", zap.String("id", entry.ID), zap.Error(rerr))
		}
		outcome.Failed++
		outcome.LastError = err.Error()
		return false
	}

	if err := g.store.ResolveSendLog(ctx, entry.ID, model.SendStatusSent, msgID, ""); err != nil {
		zap.L().Error("resolve send log", zap.String("id", entry.ID), zap.Error(err))
	}
	if err := g.store.IncrementLeadSent(ctx, cand.lead.Identifier, ch, g.now()); err != nil {
		zap.L().Error("increment lead counter",
			zap.String("lead", cand.lead.Identifier), zap.Error(err))
	}
	outcome.Sent++
	return true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
