// Package email classifies contact emails by likely origin. Brazilian company
// registries frequently list the company's outsourced accounting firm as the
// official contact; campaign messaging differs by category, so accountant
// addresses must be told apart from the company's own. Pure functions, no I/O.
package email

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/vendaslab/prospect-cli/internal/model"
)

// DefaultAccountingKeywords are domain substrings that identify accounting
// and advisory firms. Overridable via configuration.
var DefaultAccountingKeywords = []string{
	"contab",
	"contad",
	"fiscal",
	"tribut",
	"assessor",
	"escritorio",
	"consult",
	"audit",
}

// Classifier assigns contact emails to a category.
type Classifier struct {
	keywords []string
	// lowTrustSource is the provider whose results are suspect enough that
	// provenance alone downgrades the category.
	lowTrustSource string
}

// NewClassifier builds a Classifier. Empty keywords fall back to the default
// list; lowTrustSource names the least trusted email provider.
func NewClassifier(keywords []string, lowTrustSource string) *Classifier {
	if len(keywords) == 0 {
		keywords = DefaultAccountingKeywords
	}
	return &Classifier{keywords: keywords, lowTrustSource: lowTrustSource}
}

// Classify applies the category rules in order, first match wins:
//
//  1. no email → company (neutral default)
//  2. domain contains an accounting keyword → confirmed-accountant
//  3. email came from the low-trust source AND a differing email was seen
//     from another source → confirmed-accountant (divergence is evidence)
//  4. email came from the low-trust source alone → likely-accountant
//  5. otherwise → company
//
// alternative is the email another provider returned for the same company,
// or "" when there is nothing to compare against.
func (c *Classifier) Classify(email, source, alternative string) model.EmailCategory {
	if email == "" {
		return model.EmailCategoryCompany
	}

	if c.domainMatchesKeyword(email) {
		return model.EmailCategoryConfirmedAccountant
	}

	if source == c.lowTrustSource && c.lowTrustSource != "" {
		if alternative != "" && !strings.EqualFold(alternative, email) {
			return model.EmailCategoryConfirmedAccountant
		}
		return model.EmailCategoryLikelyAccountant
	}

	return model.EmailCategoryCompany
}

func (c *Classifier) domainMatchesKeyword(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := foldDiacritics(strings.ToLower(email[at+1:]))
	for _, kw := range c.keywords {
		if strings.Contains(domain, kw) {
			return true
		}
	}
	return false
}

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldDiacritics maps accented characters to their base form so keywords
// match domains like "contábilsp" regardless of spelling.
func foldDiacritics(s string) string {
	out, _, err := transform.String(diacriticStripper, s)
	if err != nil {
		return s
	}
	return out
}
