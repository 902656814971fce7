package email

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vendaslab/prospect-cli/internal/model"
)

func newTestClassifier() *Classifier {
	return NewClassifier(nil, "receitaws")
}

func TestClassify_NoEmail(t *testing.T) {
	c := newTestClassifier()
	assert.Equal(t, model.EmailCategoryCompany, c.Classify("", "cnpja", ""))
}

func TestClassify_AccountingDomain(t *testing.T) {
	c := newTestClassifier()
	cases := []string{
		"contato@abccontabilidade.com.br",
		"fin@escritoriofiscal.com",
		"x@assessoriatributaria.net.br",
		"adm@escritóriocontábil.com.br", // accents fold to base form
	}
	for _, email := range cases {
		// Domain rule takes precedence over source, including high-trust ones.
		assert.Equal(t, model.EmailCategoryConfirmedAccountant,
			c.Classify(email, "brasilapi", ""), "email=%q", email)
	}
}

func TestClassify_LowTrustDivergence(t *testing.T) {
	c := newTestClassifier()
	got := c.Classify("joao@empresa.com", "receitaws", "maria@empresa.com")
	assert.Equal(t, model.EmailCategoryConfirmedAccountant, got)
}

func TestClassify_LowTrustNoAlternative(t *testing.T) {
	c := newTestClassifier()
	got := c.Classify("joao@empresa.com", "receitaws", "")
	assert.Equal(t, model.EmailCategoryLikelyAccountant, got)
}

func TestClassify_LowTrustSameAlternative(t *testing.T) {
	c := newTestClassifier()
	// Agreement across sources is not divergence, case-insensitively.
	got := c.Classify("joao@empresa.com", "receitaws", "JOAO@EMPRESA.COM")
	assert.Equal(t, model.EmailCategoryLikelyAccountant, got)
}

func TestClassify_TrustedSource(t *testing.T) {
	c := newTestClassifier()
	assert.Equal(t, model.EmailCategoryCompany, c.Classify("joao@empresa.com", "cnpja", ""))
}

func TestClassify_CustomKeywords(t *testing.T) {
	c := NewClassifier([]string{"despacho"}, "receitaws")
	assert.Equal(t, model.EmailCategoryConfirmedAccountant,
		c.Classify("a@despachoaduaneiro.com", "cnpja", ""))
	// Default keywords are replaced, not extended.
	assert.Equal(t, model.EmailCategoryCompany,
		c.Classify("a@contabilx.com", "cnpja", ""))
}
