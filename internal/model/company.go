// Package model defines the core entities shared across the enrichment
// pipeline, the campaign governor, and the persistence layer.
package model

import "time"

// EmailCategory classifies the likely origin of a contact email.
type EmailCategory string

const (
	// EmailCategoryCompany is a direct company contact (default).
	EmailCategoryCompany EmailCategory = "company"
	// EmailCategoryLikelyAccountant marks an email that came from the
	// lowest-trust provider with no corroborating source.
	EmailCategoryLikelyAccountant EmailCategory = "likely-accountant"
	// EmailCategoryConfirmedAccountant marks an email whose domain matches
	// accounting-firm keywords, or that diverged across sources.
	EmailCategoryConfirmedAccountant EmailCategory = "confirmed-accountant"
)

// CompanyRecord is the cached result of a CNPJ lookup. One row per tax id,
// upserted in place on every re-lookup, never deleted by the pipeline.
type CompanyRecord struct {
	Identifier    string        `json:"identifier"` // normalized 14-digit CNPJ
	RazaoSocial   string        `json:"razao_social,omitempty"`
	NomeFantasia  string        `json:"nome_fantasia,omitempty"`
	Phones        string        `json:"phones,omitempty"` // canonical ", "-joined list, mobiles first
	Email         string        `json:"email,omitempty"`
	EmailSource   string        `json:"email_source,omitempty"` // provider that supplied the email
	EmailCategory EmailCategory `json:"email_category,omitempty"`
	City          string        `json:"city,omitempty"`
	State         string        `json:"state,omitempty"`
	CNAE          string        `json:"cnae,omitempty"`
	Situacao      string        `json:"situacao,omitempty"`
	LookupFailed  bool          `json:"lookup_failed,omitempty"` // structured provider failed; still cached

	// LastLookupAt drives TTL freshness. nil forces a fresh lookup
	// regardless of the record's content.
	LastLookupAt *time.Time `json:"last_lookup_at,omitempty"`
}

// Fresh reports whether the record is within the TTL window as of now.
func (c *CompanyRecord) Fresh(now time.Time, ttl time.Duration) bool {
	if c == nil || c.LastLookupAt == nil {
		return false
	}
	return now.Sub(*c.LastLookupAt) < ttl
}
