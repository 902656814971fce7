package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/vendaslab/prospect-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Used for local and
// single-operator deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
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
	lookup_failed  INTEGER NOT NULL DEFAULT 0,
	last_lookup_at DATETIME
);

CREATE TABLE IF NOT EXISTS leads (
	identifier            TEXT PRIMARY KEY,
	name                  TEXT NOT NULL DEFAULT '',
	phones                TEXT NOT NULL DEFAULT '',
	email                 TEXT NOT NULL DEFAULT '',
	email_category        TEXT NOT NULL DEFAULT '',
	category              TEXT NOT NULL DEFAULT '',
	source                TEXT NOT NULL DEFAULT '',
	observed_value        REAL NOT NULL DEFAULT 0,
	email_sent_count      INTEGER NOT NULL DEFAULT 0,
	whatsapp_sent_count   INTEGER NOT NULL DEFAULT 0,
	email_last_sent_at    DATETIME,
	whatsapp_last_sent_at DATETIME,
	created_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at            DATETIME NOT NULL DEFAULT (datetime('now'))
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
	sent_at             DATETIME,
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS job_runs (
	id          TEXT PRIMARY KEY,
	job         TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	detail      TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_leads_category ON leads(category);
CREATE INDEX IF NOT EXISTS idx_leads_source ON leads(source);
CREATE INDEX IF NOT EXISTS idx_send_logs_channel_address ON send_logs(channel, address);
CREATE INDEX IF NOT EXISTS idx_send_logs_provider_message_id ON send_logs(provider_message_id);
CREATE INDEX IF NOT EXISTS idx_send_logs_status ON send_logs(status);
CREATE INDEX IF NOT EXISTS idx_job_runs_status ON job_runs(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- company cache ---

func (s *SQLiteStore) GetCompany(ctx context.Context, identifier string) (*model.CompanyRecord, error) {
	rec := &model.CompanyRecord{}
	var lastLookup sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT identifier, razao_social, nome_fantasia, phones, email, email_source,
		       email_category, city, state, cnae, situacao, lookup_failed, last_lookup_at
		FROM company_cache WHERE identifier = ?`, identifier,
	).Scan(&rec.Identifier, &rec.RazaoSocial, &rec.NomeFantasia, &rec.Phones, &rec.Email,
		&rec.EmailSource, &rec.EmailCategory, &rec.City, &rec.State, &rec.CNAE,
		&rec.Situacao, &rec.LookupFailed, &lastLookup)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get company %s", identifier)
	}
	if lastLookup.Valid {
		t := lastLookup.Time
		rec.LastLookupAt = &t
	}
	return rec, nil
}

func (s *SQLiteStore) UpsertCompany(ctx context.Context, rec *model.CompanyRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO company_cache (
			identifier, razao_social, nome_fantasia, phones, email, email_source,
			email_category, city, state, cnae, situacao, lookup_failed, last_lookup_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (identifier) DO UPDATE SET
			razao_social = excluded.razao_social,
			nome_fantasia = excluded.nome_fantasia,
			phones = excluded.phones,
			email = excluded.email,
			email_source = excluded.email_source,
			email_category = excluded.email_category,
			city = excluded.city,
			state = excluded.state,
			cnae = excluded.cnae,
			situacao = excluded.situacao,
			lookup_failed = excluded.lookup_failed,
			last_lookup_at = excluded.last_lookup_at`,
		rec.Identifier, rec.RazaoSocial, rec.NomeFantasia, rec.Phones, rec.Email,
		rec.EmailSource, rec.EmailCategory, rec.City, rec.State, rec.CNAE,
		rec.Situacao, rec.LookupFailed, nullTime(rec.LastLookupAt),
	)
	return eris.Wrapf(err, "sqlite: upsert company %s", rec.Identifier)
}

// --- leads ---

const leadColumns = `identifier, name, phones, email, email_category, category, source,
	observed_value, email_sent_count, whatsapp_sent_count,
	email_last_sent_at, whatsapp_last_sent_at, created_at, updated_at`

func (s *SQLiteStore) scanLead(row interface{ Scan(...any) error }) (*model.Lead, error) {
	lead := &model.Lead{}
	var emailLast, whatsappLast sql.NullTime
	err := row.Scan(&lead.Identifier, &lead.Name, &lead.Phones, &lead.Email,
		&lead.EmailCategory, &lead.Category, &lead.Source, &lead.ObservedValue,
		&lead.EmailSentCount, &lead.WhatsappSentCount,
		&emailLast, &whatsappLast, &lead.CreatedAt, &lead.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if emailLast.Valid {
		t := emailLast.Time
		lead.EmailLastSentAt = &t
	}
	if whatsappLast.Valid {
		t := whatsappLast.Time
		lead.WhatsappLastSentAt = &t
	}
	return lead, nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, identifier string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE identifier = ?`, identifier)
	lead, err := s.scanLead(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %s", identifier)
	}
	return lead, nil
}

func (s *SQLiteStore) UpsertLead(ctx context.Context, lead *model.Lead) error {
	now := time.Now().UTC()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leads (`+leadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (identifier) DO UPDATE SET
			name = excluded.name,
			phones = excluded.phones,
			email = excluded.email,
			email_category = excluded.email_category,
			category = excluded.category,
			source = excluded.source,
			observed_value = excluded.observed_value,
			updated_at = excluded.updated_at`,
		lead.Identifier, lead.Name, lead.Phones, lead.Email, lead.EmailCategory,
		lead.Category, lead.Source, lead.ObservedValue,
		lead.EmailSentCount, lead.WhatsappSentCount,
		nullTime(lead.EmailLastSentAt), nullTime(lead.WhatsappLastSentAt),
		lead.CreatedAt, lead.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert lead %s", lead.Identifier)
}

func (s *SQLiteStore) BulkUpsertLeads(ctx context.Context, leads []model.Lead) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin bulk upsert")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var n int64
	for i := range leads {
		lead := &leads[i]
		if lead.CreatedAt.IsZero() {
			lead.CreatedAt = now
		}
		lead.UpdatedAt = now
		_, err := tx.ExecContext(ctx, `
			INSERT INTO leads (`+leadColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (identifier) DO UPDATE SET
				name = excluded.name,
				phones = excluded.phones,
				email = excluded.email,
				email_category = excluded.email_category,
				category = excluded.category,
				source = excluded.source,
				observed_value = excluded.observed_value,
				updated_at = excluded.updated_at`,
			lead.Identifier, lead.Name, lead.Phones, lead.Email, lead.EmailCategory,
			lead.Category, lead.Source, lead.ObservedValue,
			lead.EmailSentCount, lead.WhatsappSentCount,
			nullTime(lead.EmailLastSentAt), nullTime(lead.WhatsappLastSentAt),
			lead.CreatedAt, lead.UpdatedAt,
		)
		if err != nil {
			return n, eris.Wrapf(err, "sqlite: bulk upsert lead %s", lead.Identifier)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return n, eris.Wrap(err, "sqlite: commit bulk upsert")
	}
	return n, nil
}

func (s *SQLiteStore) SelectLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	var conds []string
	var args []any

	if filter.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Source != "" {
		conds = append(conds, "source = ?")
		args = append(args, filter.Source)
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

	query := `SELECT ` + leadColumns + ` FROM leads`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY observed_value DESC, identifier"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		lead, err := s.scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *lead)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: select leads")
}

func (s *SQLiteStore) IncrementLeadSent(ctx context.Context, identifier string, ch model.Channel, at time.Time) error {
	query := fmt.Sprintf(
		`UPDATE leads SET %s = %s + 1, %s = ?, updated_at = ? WHERE identifier = ?`,
		counterColumn(ch), counterColumn(ch), lastSentColumn(ch))
	_, err := s.db.ExecContext(ctx, query, at.UTC(), time.Now().UTC(), identifier)
	return eris.Wrapf(err, "sqlite: increment %s sent for %s", ch, identifier)
}

func (s *SQLiteStore) SetLeadSentCount(ctx context.Context, identifier string, ch model.Channel, count int) error {
	query := fmt.Sprintf(
		`UPDATE leads SET %s = ?, updated_at = ? WHERE identifier = ?`, counterColumn(ch))
	_, err := s.db.ExecContext(ctx, query, count, time.Now().UTC(), identifier)
	return eris.Wrapf(err, "sqlite: set %s count for %s", ch, identifier)
}

func (s *SQLiteStore) DeleteLead(ctx context.Context, identifier string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE identifier = ?`, identifier)
	return eris.Wrapf(err, "sqlite: delete lead %s", identifier)
}

// --- send log ---

func (s *SQLiteStore) CreateSendLog(ctx context.Context, entry *model.SendLogEntry) error {
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	if entry.Status == "" {
		entry.Status = model.SendStatusPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO send_logs (
			id, channel, address, lead_identifier, lead_name, template_seq,
			status, provider_message_id, error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Channel, entry.Address, entry.LeadIdentifier, entry.LeadName,
		entry.TemplateSeq, entry.Status, entry.ProviderMessageID, entry.Error,
		entry.CreatedAt, entry.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: create send log %s", entry.ID)
}

func (s *SQLiteStore) ResolveSendLog(ctx context.Context, id string, status model.SendStatus, providerMessageID, errDetail string) error {
	now := time.Now().UTC()
	// sent_at is stamped exactly once, when the send succeeds. Later
	// delivery callbacks only touch status/updated_at, so the daily cap
	// keeps counting the row on its original send day.
	var sentAt sql.NullTime
	if status == model.SendStatusSent {
		sentAt = sql.NullTime{Time: now, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE send_logs SET status = ?, provider_message_id = ?, error = ?, sent_at = ?, updated_at = ?
		WHERE id = ?`,
		status, providerMessageID, errDetail, sentAt, now, id,
	)
	return eris.Wrapf(err, "sqlite: resolve send log %s", id)
}

func (s *SQLiteStore) AdvanceDeliveryStatus(ctx context.Context, providerMessageID string, status model.SendStatus) (bool, error) {
	var current model.SendStatus
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM send_logs WHERE provider_message_id = ?`, providerMessageID,
	).Scan(&current)
	if err == sql.ErrNoRows {
		return false, nil // unknown message id: no-op by contract
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: lookup send log by message id %s", providerMessageID)
	}
	if !current.Advances(status) {
		return false, nil
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE send_logs SET status = ?, updated_at = ? WHERE provider_message_id = ?`,
		status, time.Now().UTC(), providerMessageID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: advance delivery status %s", providerMessageID)
	}
	return true, nil
}

func (s *SQLiteStore) SentAddresses(ctx context.Context, ch model.Channel) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT address FROM send_logs
		WHERE channel = ? AND status IN ('sent', 'delivered', 'read')`, ch)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: sent addresses")
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan address")
		}
		out[addr] = true
	}
	return out, eris.Wrap(rows.Err(), "sqlite: sent addresses")
}

func (s *SQLiteStore) HasContacted(ctx context.Context, ch model.Channel, address string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM send_logs
		WHERE channel = ? AND address = ? AND status IN ('sent', 'delivered', 'read')`,
		ch, address,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: has contacted %s", address)
	}
	return n > 0, nil
}

func (s *SQLiteStore) CountSentSince(ctx context.Context, ch model.Channel, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM send_logs
		WHERE channel = ? AND sent_at >= ?`,
		ch, since.UTC(),
	).Scan(&n)
	return n, eris.Wrapf(err, "sqlite: count sent since %s", since)
}

// --- job runs ---

func (s *SQLiteStore) CreateJobRun(ctx context.Context, run *model.JobRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = model.JobStatusRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_runs (id, job, status, detail, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Job, run.Status, run.Detail, run.StartedAt,
	)
	return eris.Wrapf(err, "sqlite: create job run %s", run.ID)
}

func (s *SQLiteStore) FinishJobRun(ctx context.Context, id string, status model.JobStatus, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE job_runs SET status = ?, detail = ?, finished_at = ? WHERE id = ?`,
		status, detail, time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "sqlite: finish job run %s", id)
}

func (s *SQLiteStore) ReconcileInterrupted(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE job_runs SET status = ?, finished_at = ? WHERE status = ?`,
		model.JobStatusInterrupted, time.Now().UTC(), model.JobStatusRunning,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reconcile interrupted job runs")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: reconcile rows affected")
}

// --- helpers ---

func counterColumn(ch model.Channel) string {
	if ch == model.ChannelWhatsapp {
		return "whatsapp_sent_count"
	}
	return "email_sent_count"
}

func lastSentColumn(ch model.Channel) string {
	if ch == model.ChannelWhatsapp {
		return "whatsapp_last_sent_at"
	}
	return "email_last_sent_at"
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
