// Package store defines the persistence interface for the enrichment
// pipeline and campaign governor, with postgres and sqlite backends.
package store

import (
	"context"
	"time"

	"github.com/vendaslab/prospect-cli/internal/model"
)

// LeadFilter specifies criteria for selecting campaign candidates.
type LeadFilter struct {
	Category string        `json:"category,omitempty"`
	Source   string        `json:"source,omitempty"`
	Channel  model.Channel `json:"channel,omitempty"`
	// OnlyUnsent restricts to leads whose channel counter is exactly 0,
	// which also excludes the opt-out sentinel (-1).
	OnlyUnsent bool `json:"only_unsent,omitempty"`
	Limit      int  `json:"limit,omitempty"`
}

// Store is the persistence contract. Get methods return (nil, nil) when the
// row does not exist; upserts never duplicate rows.
type Store interface {
	// Company lookup cache
	GetCompany(ctx context.Context, identifier string) (*model.CompanyRecord, error)
	UpsertCompany(ctx context.Context, rec *model.CompanyRecord) error

	// Leads
	GetLead(ctx context.Context, identifier string) (*model.Lead, error)
	UpsertLead(ctx context.Context, lead *model.Lead) error
	BulkUpsertLeads(ctx context.Context, leads []model.Lead) (int64, error)
	SelectLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	// IncrementLeadSent bumps the channel counter and stamps the channel's
	// last-sent time after a successful dispatch.
	IncrementLeadSent(ctx context.Context, identifier string, ch model.Channel, at time.Time) error
	// SetLeadSentCount overwrites the channel counter; used by the
	// exclusion-set skip path (count 1) and opt-out (model.OptedOut).
	SetLeadSentCount(ctx context.Context, identifier string, ch model.Channel, count int) error
	DeleteLead(ctx context.Context, identifier string) error

	// Send log / audit trail
	CreateSendLog(ctx context.Context, entry *model.SendLogEntry) error
	ResolveSendLog(ctx context.Context, id string, status model.SendStatus, providerMessageID, errDetail string) error
	// AdvanceDeliveryStatus applies an asynchronous delivery callback.
	// Transitions only move forward; an unknown provider message id is a
	// no-op and returns false without error.
	AdvanceDeliveryStatus(ctx context.Context, providerMessageID string, status model.SendStatus) (bool, error)
	// SentAddresses returns every address on the channel with a row in
	// {sent, delivered, read}: the campaign exclusion set.
	SentAddresses(ctx context.Context, ch model.Channel) (map[string]bool, error)
	// HasContacted is the pre-send race re-check for a single address.
	HasContacted(ctx context.Context, ch model.Channel, address string) (bool, error)
	// CountSentSince counts rows that reached sent-or-later since the
	// given instant; drives the daily cap.
	CountSentSince(ctx context.Context, ch model.Channel, since time.Time) (int, error)

	// Job runs
	CreateJobRun(ctx context.Context, run *model.JobRun) error
	FinishJobRun(ctx context.Context, id string, status model.JobStatus, detail string) error
	// ReconcileInterrupted marks job runs left "running" by a dead process
	// as interrupted; called once on boot.
	ReconcileInterrupted(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
