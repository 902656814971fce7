package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/vendaslab/prospect-cli/internal/db"
	"github.com/vendaslab/prospect-cli/internal/model"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres wraps an existing pool. Callers own the pool's lifecycle when
// they pass one in; Close closes it either way.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS company_cache (
	identifier     TEXT PRIMARY KEY,
	razao_social   TEXT NOT NULL DEFAULT '',
	nome_fantasia  TEXT NOT NULL DEFAULT '',
	phones         TEXT NOT NULL DEFAULT '',
	email          TEXT NOT NULL DEFAULT '',
	email_source   TEXT NOT NULL DEFAULT '',
	email_category TEXT NOT NULL DEFAULT '',
	city           TEXT NOT NULL DEFAULT '',
	state          TEXT NOT NULL DEFAULT '',
	cnae           TEXT NOT NULL DEFAULT '',
	situacao       TEXT NOT NULL DEFAULT '',
	lookup_failed  BOOLEAN NOT NULL DEFAULT FALSE,
	last_lookup_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS leads (
	identifier            TEXT PRIMARY KEY,
	name                  TEXT NOT NULL DEFAULT '',
	phones                TEXT NOT NULL DEFAULT '',
	email                 TEXT NOT NULL DEFAULT '',
	email_category        TEXT NOT NULL DEFAULT '',
	category              TEXT NOT NULL DEFAULT '',
	source                TEXT NOT NULL DEFAULT '',
	observed_value        DOUBLE PRECISION NOT NULL DEFAULT 0,
	email_sent_count      INTEGER NOT NULL DEFAULT 0,
	whatsapp_sent_count   INTEGER NOT NULL DEFAULT 0,
	email_last_sent_at    TIMESTAMPTZ,
	whatsapp_last_sent_at TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS send_logs (
	id                  TEXT PRIMARY KEY,
	channel             TEXT NOT NULL,
	address             TEXT NOT NULL,
	lead_identifier     TEXT NOT NULL DEFAULT '',
	lead_name           TEXT NOT NULL DEFAULT '',
	template_seq        INTEGER NOT NULL DEFAULT 0,
	status              TEXT NOT NULL DEFAULT 'pending',
	provider_message_id TEXT NOT NULL DEFAULT '',
	error               TEXT NOT NULL DEFAULT '',
	sent_at             TIMESTAMPTZ,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS job_runs (
	id          TEXT PRIMARY KEY,
	job         TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	detail      TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_leads_category ON leads(category);
CREATE INDEX IF NOT EXISTS idx_leads_source ON leads(source);
CREATE INDEX IF NOT EXISTS idx_send_logs_channel_address ON send_logs(channel, address);
CREATE INDEX IF NOT EXISTS idx_send_logs_provider_message_id ON send_logs(provider_message_id);
CREATE INDEX IF NOT EXISTS idx_send_logs_status ON send_logs(status);
CREATE INDEX IF NOT EXISTS idx_job_runs_status ON job_runs(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- company cache ---

func (s *PostgresStore) GetCompany(ctx context.Context, identifier string) (*model.CompanyRecord, error) {
	rec := &model.CompanyRecord{}
	err := s.pool.QueryRow(ctx, `
		SELECT identifier, razao_social, nome_fantasia, phones, email, email_source,
		       email_category, city, state, cnae, situacao, lookup_failed, last_lookup_at
		FROM company_cache WHERE identifier = $1`, identifier,
	).Scan(&rec.Identifier, &rec.RazaoSocial, &rec.NomeFantasia, &rec.Phones, &rec.Email,
		&rec.EmailSource, &rec.EmailCategory, &rec.City, &rec.State, &rec.CNAE,
		&rec.Situacao, &rec.LookupFailed, &rec.LastLookupAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get company %s", identifier)
	}
	return rec, nil
}

func (s *PostgresStore) UpsertCompany(ctx context.Context, rec *model.CompanyRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO company_cache (
			identifier, razao_social, nome_fantasia, phones, email, email_source,
			email_category, city, state, cnae, situacao, lookup_failed, last_lookup_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (identifier) DO UPDATE SET
			razao_social = EXCLUDED.razao_social,
			nome_fantasia = EXCLUDED.nome_fantasia,
			phones = EXCLUDED.phones,
			email = EXCLUDED.email,
			email_source = EXCLUDED.email_source,
			email_category = EXCLUDED.email_category,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			cnae = EXCLUDED.cnae,
			situacao = EXCLUDED.situacao,
			lookup_failed = EXCLUDED.lookup_failed,
			last_lookup_at = EXCLUDED.last_lookup_at`,
		rec.Identifier, rec.RazaoSocial, rec.NomeFantasia, rec.Phones, rec.Email,
		rec.EmailSource, rec.EmailCategory, rec.City, rec.State, rec.CNAE,
		rec.Situacao, rec.LookupFailed, rec.LastLookupAt,
	)
	return eris.Wrapf(err, "postgres: upsert company %s", rec.Identifier)
}

// --- leads ---

var leadCols = []string{
	"identifier", "name", "phones", "email", "email_category", "category", "source",
	"observed_value", "email_sent_count", "whatsapp_sent_count",
	"email_last_sent_at", "whatsapp_last_sent_at", "created_at", "updated_at",
}

const selectLeadSQL = `
	SELECT identifier, name, phones, email, email_category, category, source,
	       observed_value, email_sent_count, whatsapp_sent_count,
	       email_last_sent_at, whatsapp_last_sent_at, created_at, updated_at
	FROM leads`

func scanLeadRow(row pgx.Row) (*model.Lead, error) {
	lead := &model.Lead{}
	err := row.Scan(&lead.Identifier, &lead.Name, &lead.Phones, &lead.Email,
		&lead.EmailCategory, &lead.Category, &lead.Source, &lead.ObservedValue,
		&lead.EmailSentCount, &lead.WhatsappSentCount,
		&lead.EmailLastSentAt, &lead.WhatsappLastSentAt,
		&lead.CreatedAt, &lead.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return lead, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, identifier string) (*model.Lead, error) {
	lead, err := scanLeadRow(s.pool.QueryRow(ctx, selectLeadSQL+` WHERE identifier = $1`, identifier))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %s", identifier)
	}
	return lead, nil
}

func (s *PostgresStore) UpsertLead(ctx context.Context, lead *model.Lead) error {
	now := time.Now().UTC()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now
	_, err := s.pool.Exec(ctx, `
		INSERT INTO leads (
			identifier, name, phones, email, email_category, category, source,
			observed_value, email_sent_count, whatsapp_sent_count,
			email_last_sent_at, whatsapp_last_sent_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (identifier) DO UPDATE SET
			name = EXCLUDED.name,
			phones = EXCLUDED.phones,
			email = EXCLUDED.email,
			email_category = EXCLUDED.email_category,
			category = EXCLUDED.category,
			source = EXCLUDED.source,
			observed_value = EXCLUDED.observed_value,
			updated_at = EXCLUDED.updated_at`,
		lead.Identifier, lead.Name, lead.Phones, lead.Email, lead.EmailCategory,
		lead.Category, lead.Source, lead.ObservedValue,
		lead.EmailSentCount, lead.WhatsappSentCount,
		lead.EmailLastSentAt, lead.WhatsappLastSentAt,
		lead.CreatedAt, lead.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert lead %s", lead.Identifier)
}

// BulkUpsertLeads streams rows through a temp table and COPY, so large
// import batches stay one round trip.
func (s *PostgresStore) BulkUpsertLeads(ctx context.Context, leads []model.Lead) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(leads))
	for i := range leads {
		lead := &leads[i]
		if lead.CreatedAt.IsZero() {
			lead.CreatedAt = now
		}
		lead.UpdatedAt = now
		rows = append(rows, []any{
			lead.Identifier, lead.Name, lead.Phones, lead.Email, lead.EmailCategory,
			lead.Category, lead.Source, lead.ObservedValue,
			lead.EmailSentCount, lead.WhatsappSentCount,
			lead.EmailLastSentAt, lead.WhatsappLastSentAt,
			lead.CreatedAt, lead.UpdatedAt,
		})
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "leads",
		Columns:      leadCols,
		ConflictKeys: []string{"identifier"},
		UpdateCols: []string{
			"name", "phones", "email", "email_category", "category",
			"source", "observed_value", "updated_at",
		},
	}, rows)
}

func (s *PostgresStore) SelectLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	var conds []string
	var args []any

	if filter.Category != "" {
		args = append(args, filter.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Source != "" {
		args = append(args, filter.Source)
		conds = append(conds, fmt.Sprintf("source = $%d", len(args)))
	}
	if filter.Channel != "" {
		if filter.Channel == model.ChannelWhatsapp {
			conds = append(conds, "phones != ''")
		} else {
			conds = append(conds, "email != ''")
		}
		if filter.OnlyUnsent {
			conds = append(conds, counterColumn(filter.Channel)+" = 0")
		}
	}

	query := selectLeadSQL
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY observed_value DESC, identifier"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		lead, err := scanLeadRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *lead)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: select leads")
}

func (s *PostgresStore) IncrementLeadSent(ctx context.Context, identifier string, ch model.Channel, at time.Time) error {
	query := fmt.Sprintf(
		`UPDATE leads SET %s = %s + 1, %s = $1, updated_at = $2 WHERE identifier = $3`,
		counterColumn(ch), counterColumn(ch), lastSentColumn(ch))
	_, err := s.pool.Exec(ctx, query, at.UTC(), time.Now().UTC(), identifier)
	return eris.Wrapf(err, "postgres: increment %s sent for %s", ch, identifier)
}

func (s *PostgresStore) SetLeadSentCount(ctx context.Context, identifier string, ch model.Channel, count int) error {
	query := fmt.Sprintf(
		`UPDATE leads SET %s = $1, updated_at = $2 WHERE identifier = $3`, counterColumn(ch))
	_, err := s.pool.Exec(ctx, query, count, time.Now().UTC(), identifier)
	return eris.Wrapf(err, "postgres: set %s count for %s", ch, identifier)
}

func (s *PostgresStore) DeleteLead(ctx context.Context, identifier string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE identifier = $1`, identifier)
	return eris.Wrapf(err, "postgres: delete lead %s", identifier)
}

// --- send log ---

func (s *PostgresStore) CreateSendLog(ctx context.Context, entry *model.SendLogEntry) error {
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	if entry.Status == "" {
		entry.Status = model.SendStatusPending
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO send_logs (
			id, channel, address, lead_identifier, lead_name, template_seq,
			status, provider_message_id, error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.Channel, entry.Address, entry.LeadIdentifier, entry.LeadName,
		entry.TemplateSeq, entry.Status, entry.ProviderMessageID, entry.Error,
		entry.CreatedAt, entry.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: create send log %s", entry.ID)
}

func (s *PostgresStore) ResolveSendLog(ctx context.Context, id string, status model.SendStatus, providerMessageID, errDetail string) error {
	now := time.Now().UTC()
	// sent_at is stamped exactly once, when the send succeeds. Later
	// delivery callbacks only touch status/updated_at, so the daily cap
	// keeps counting the row on its original send day.
	var sentAt *time.Time
	if status == model.SendStatusSent {
		sentAt = &now
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE send_logs SET status = $1, provider_message_id = $2, error = $3, sent_at = $4, updated_at = $5
		WHERE id = $6`,
		status, providerMessageID, errDetail, sentAt, now, id,
	)
	return eris.Wrapf(err, "postgres: resolve send log %s", id)
}

func (s *PostgresStore) AdvanceDeliveryStatus(ctx context.Context, providerMessageID string, status model.SendStatus) (bool, error) {
	var current model.SendStatus
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM send_logs WHERE provider_message_id = $1`, providerMessageID,
	).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil // unknown message id: no-op by contract
	}
	if err != nil {
		return false, eris.Wrapf(err, "postgres: lookup send log by message id %s", providerMessageID)
	}
	if !current.Advances(status) {
		return false, nil
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE send_logs SET status = $1, updated_at = $2 WHERE provider_message_id = $3`,
		status, time.Now().UTC(), providerMessageID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: advance delivery status %s", providerMessageID)
	}
	return true, nil
}

func (s *PostgresStore) SentAddresses(ctx context.Context, ch model.Channel) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT address FROM send_logs
		WHERE channel = $1 AND status IN ('sent', 'delivered', 'read')`, ch)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: sent addresses")
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, eris.Wrap(err, "postgres: scan address")
		}
		out[addr] = true
	}
	return out, eris.Wrap(rows.Err(), "postgres: sent addresses")
}

func (s *PostgresStore) HasContacted(ctx context.Context, ch model.Channel, address string) (bool, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(1) FROM send_logs
		WHERE channel = $1 AND address = $2 AND status IN ('sent', 'delivered', 'read')`,
		ch, address,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: has contacted %s", address)
	}
	return n > 0, nil
}

func (s *PostgresStore) CountSentSince(ctx context.Context, ch model.Channel, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(1) FROM send_logs
		WHERE channel = $1 AND sent_at >= $2`,
		ch, since.UTC(),
	).Scan(&n)
	return n, eris.Wrapf(err, "postgres: count sent since %s", since)
}

// --- job runs ---

func (s *PostgresStore) CreateJobRun(ctx context.Context, run *model.JobRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = model.JobStatusRunning
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_runs (id, job, status, detail, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Job, run.Status, run.Detail, run.StartedAt,
	)
	return eris.Wrapf(err, "postgres: create job run %s", run.ID)
}

func (s *PostgresStore) FinishJobRun(ctx context.Context, id string, status model.JobStatus, detail string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE job_runs SET status = $1, detail = $2, finished_at = $3 WHERE id = $4`,
		status, detail, time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "postgres: finish job run %s", id)
}

func (s *PostgresStore) ReconcileInterrupted(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE job_runs SET status = $1, finished_at = $2 WHERE status = $3`,
		model.JobStatusInterrupted, time.Now().UTC(), model.JobStatusRunning,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reconcile interrupted job runs")
	}
	return int(tag.RowsAffected()), nil
}

var _ Store = (*PostgresStore)(nil)
var _ Store = (*SQLiteStore)(nil)
