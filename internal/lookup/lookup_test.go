package lookup

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendaslab/prospect-cli/internal/email"
	"github.com/vendaslab/prospect-cli/internal/gate"
	"github.com/vendaslab/prospect-cli/internal/model"
	"github.com/vendaslab/prospect-cli/internal/provider"
	"github.com/vendaslab/prospect-cli/internal/resilience"
	"github.com/vendaslab/prospect-cli/internal/store"
	"github.com/vendaslab/prospect-cli/pkg/brasilapi"
	"github.com/vendaslab/prospect-cli/pkg/cnpja"
	"github.com/vendaslab/prospect-cli/pkg/cnpjws"
	"github.com/vendaslab/prospect-cli/pkg/receitaws"
)

const (
	idA = "12345678000195"
	idB = "98765432000110"
	idC = "11222333000181"
	idD = "55666777000143"
)

// harness wires a Service to four httptest-backed providers with per-server
// call counters and a real sqlite store.
type harness struct {
	svc   *Service
	store *store.SQLiteStore

	brasilCalls  atomic.Int32
	cnpjaCalls   atomic.Int32
	cnpjwsCalls  atomic.Int32
	receitaCalls atomic.Int32
}

// handler funcs receive the cnpj extracted from the request path tail.
type handlers struct {
	brasil  func(w http.ResponseWriter, cnpj string)
	cnpja   func(w http.ResponseWriter, cnpj string)
	cnpjws  func(w http.ResponseWriter, cnpj string)
	receita func(w http.ResponseWriter, cnpj string)
}

func pathTail(r *http.Request) string {
	p := r.URL.Path
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

func newHarness(t *testing.T, h handlers, opts ...Option) *harness {
	t.Helper()
	ha := &harness{}

	serve := func(counter *atomic.Int32, fn func(w http.ResponseWriter, cnpj string)) *httptest.Server {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			counter.Add(1)
			if fn == nil {
				http.NotFound(w, r)
				return
			}
			fn(w, pathTail(r))
		}))
		t.Cleanup(srv.Close)
		return srv
	}

	brasilSrv := serve(&ha.brasilCalls, h.brasil)
	cnpjaSrv := serve(&ha.cnpjaCalls, h.cnpja)
	cnpjwsSrv := serve(&ha.cnpjwsCalls, h.cnpjws)
	receitaSrv := serve(&ha.receitaCalls, h.receita)

	wide := gate.Limits{MaxConcurrent: 8, MaxPerWindow: 1000, Window: time.Second}
	set := provider.NewSet(gate.NewRegistry(), provider.Limits{
		Structured: wide, CNPJA: wide, CNPJWS: wide, ReceitaWS: wide,
	}, resilience.RetryConfig{MaxAttempts: 1, AttemptTimeout: 5 * time.Second},
		provider.WithBrasilAPIOptions(brasilapi.WithBaseURL(brasilSrv.URL)),
		provider.WithCNPJAOptions(cnpja.WithBaseURL(cnpjaSrv.URL)),
		provider.WithCNPJWSOptions(cnpjws.WithBaseURL(cnpjwsSrv.URL)),
		provider.WithReceitaWSOptions(receitaws.WithBaseURL(receitaSrv.URL)),
	)

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "lookup.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	classifier := email.NewClassifier(nil, set.LowTrustName())
	ha.store = st
	ha.svc = New(st, set, classifier, opts...)
	return ha
}

func brasilOK(phones, emailAddr string) func(w http.ResponseWriter, cnpj string) {
	return func(w http.ResponseWriter, cnpj string) {
		fmt.Fprintf(w, `{
			"cnpj": %q,
			"razao_social": "EMPRESA %s LTDA",
			"nome_fantasia": "Empresa",
			"descricao_situacao_cadastral": "ATIVA",
			"ddd_telefone_1": %q,
			"email": %q,
			"cnae_fiscal": 4751201,
			"municipio": "SAO PAULO",
			"uf": "SP"
		}`, cnpj, cnpj, phones, emailAddr)
	}
}

func cnpjaEmail(addr string) func(w http.ResponseWriter, cnpj string) {
	return func(w http.ResponseWriter, cnpj string) {
		if addr == "" {
			fmt.Fprintf(w, `{"taxId": %q, "emails": []}`, cnpj)
			return
		}
		fmt.Fprintf(w, `{"taxId": %q, "emails": [{"address": %q}]}`, cnpj, addr)
	}
}

func cnpjwsEmail(addr string) func(w http.ResponseWriter, cnpj string) {
	return func(w http.ResponseWriter, _ string) {
		fmt.Fprintf(w, `{"estabelecimento": {"email": %q}}`, addr)
	}
}

func receitaEmail(addr string) func(w http.ResponseWriter, cnpj string) {
	return func(w http.ResponseWriter, _ string) {
		fmt.Fprintf(w, `{"status": "OK", "email": %q}`, addr)
	}
}

func TestLookupFreshCacheSkipsNetwork(t *testing.T) {
	h := newHarness(t, handlers{})
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, h.store.UpsertCompany(ctx, &model.CompanyRecord{
		Identifier:   idA,
		RazaoSocial:  "CACHED LTDA",
		LastLookupAt: &now,
	}))

	rec, err := h.svc.Lookup(ctx, idA, false)
	require.NoError(t, err)
	assert.Equal(t, "CACHED LTDA", rec.RazaoSocial)
	assert.EqualValues(t, 0, h.brasilCalls.Load())
	assert.EqualValues(t, 0, h.cnpjaCalls.Load())
}

func TestLookupStaleCacheRefetches(t *testing.T) {
	h := newHarness(t, handlers{
		brasil: brasilOK("11999998888", ""),
		cnpja:  cnpjaEmail("contato@empresa.com.br"),
	}, WithTTL(30*24*time.Hour))
	ctx := context.Background()

	stale := time.Now().UTC().Add(-31 * 24 * time.Hour)
	require.NoError(t, h.store.UpsertCompany(ctx, &model.CompanyRecord{
		Identifier:   idA,
		Phones:       "+551155554444",
		LastLookupAt: &stale,
	}))

	rec, err := h.svc.Lookup(ctx, idA, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, h.brasilCalls.Load())
	// stale phones survive the refresh, new mobile sorts first
	assert.Equal(t, "+5511999998888, +551155554444", rec.Phones)
	assert.Equal(t, "contato@empresa.com.br", rec.Email)
	assert.Equal(t, "cnpja", rec.EmailSource)
	assert.Equal(t, model.EmailCategoryCompany, rec.EmailCategory)
}

func TestLookupEmailCascadeStopsAtFirstHit(t *testing.T) {
	h := newHarness(t, handlers{
		brasil: brasilOK("1133332222", ""),
		cnpja:  cnpjaEmail(""),
		cnpjws: cnpjwsEmail("fiscal@empresa.com.br"),
	})

	rec, err := h.svc.Lookup(context.Background(), idA, false)
	require.NoError(t, err)
	assert.Equal(t, "fiscal@empresa.com.br", rec.Email)
	assert.Equal(t, "cnpjws", rec.EmailSource)
	assert.EqualValues(t, 1, h.cnpjaCalls.Load())
	assert.EqualValues(t, 1, h.cnpjwsCalls.Load())
	assert.EqualValues(t, 0, h.receitaCalls.Load(), "cascade stops before the last resort")
}

func TestLookupLastResortEmailIsLikelyAccountant(t *testing.T) {
	h := newHarness(t, handlers{
		brasil:  brasilOK("", ""),
		receita: receitaEmail("joao@empresa.com"),
	})

	rec, err := h.svc.Lookup(context.Background(), idA, false)
	require.NoError(t, err)
	assert.Equal(t, "joao@empresa.com", rec.Email)
	assert.Equal(t, "receitaws", rec.EmailSource)
	assert.Equal(t, model.EmailCategoryLikelyAccountant, rec.EmailCategory)
}

func TestLookupStructuredEmailWins(t *testing.T) {
	h := newHarness(t, handlers{
		brasil: brasilOK("11988887777", "direto@empresa.com.br"),
	})

	rec, err := h.svc.Lookup(context.Background(), idA, false)
	require.NoError(t, err)
	assert.Equal(t, "direto@empresa.com.br", rec.Email)
	assert.Equal(t, "brasilapi", rec.EmailSource)
	assert.EqualValues(t, 0, h.cnpjaCalls.Load(), "email providers not consulted")
}

func TestLookupFailureIsCached(t *testing.T) {
	h := newHarness(t, handlers{
		brasil: func(w http.ResponseWriter, _ string) {
			w.WriteHeader(http.StatusInternalServerError)
		},
	})
	ctx := context.Background()

	rec, err := h.svc.Lookup(ctx, idA, true)
	require.NoError(t, err)
	assert.True(t, rec.LookupFailed)
	require.NotNil(t, rec.LastLookupAt)

	// second call inside the TTL serves the failure from cache
	rec2, err := h.svc.Lookup(ctx, idA, true)
	require.NoError(t, err)
	assert.True(t, rec2.LookupFailed)
	assert.EqualValues(t, 1, h.brasilCalls.Load())
}

func TestLookupSkipSlowFallback(t *testing.T) {
	h := newHarness(t, handlers{
		brasil: brasilOK("1133332222", ""),
	})

	rec, err := h.svc.Lookup(context.Background(), idA, true)
	require.NoError(t, err)
	assert.Empty(t, rec.Email)
	assert.EqualValues(t, 0, h.cnpjaCalls.Load())
	assert.EqualValues(t, 0, h.cnpjwsCalls.Load())
	assert.EqualValues(t, 0, h.receitaCalls.Load())
}

func TestLookupRejectsInvalidID(t *testing.T) {
	h := newHarness(t, handlers{})
	_, err := h.svc.Lookup(context.Background(), "123", false)
	require.Error(t, err)
	assert.EqualValues(t, 0, h.brasilCalls.Load())
}

func TestNormalizeID(t *testing.T) {
	id, err := NormalizeID("12.345.678/0001-95")
	require.NoError(t, err)
	assert.Equal(t, "12345678000195", id)

	_, err = NormalizeID("12.345.678/0001")
	assert.Error(t, err)

	// personal ids are valid lead identifiers but not registry lookups
	_, err = NormalizeID("123.456.789-09")
	assert.Error(t, err)
}

func TestNormalizeLeadID(t *testing.T) {
	id, err := NormalizeLeadID("12.345.678/0001-95")
	require.NoError(t, err)
	assert.Equal(t, "12345678000195", id)

	id, err = NormalizeLeadID("123.456.789-09")
	require.NoError(t, err)
	assert.Equal(t, "12345678909", id)

	_, err = NormalizeLeadID("1234567890")
	assert.Error(t, err)
}

func TestLookupManyCacheMixedWithMisses(t *testing.T) {
	h := newHarness(t, handlers{
		brasil: brasilOK("11988887777", "x@empresa.com.br"),
	})
	ctx := context.Background()

	now := time.Now().UTC()
	stale := now.Add(-31 * 24 * time.Hour)
	require.NoError(t, h.store.UpsertCompany(ctx, &model.CompanyRecord{
		Identifier: idA, RazaoSocial: "FRESCA LTDA", LastLookupAt: &now,
	}))
	require.NoError(t, h.store.UpsertCompany(ctx, &model.CompanyRecord{
		Identifier: idB, RazaoSocial: "VELHA LTDA", LastLookupAt: &stale,
	}))

	out, err := h.svc.LookupMany(ctx, []string{idA, idB, idC, idA}, false)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "FRESCA LTDA", out[idA].RazaoSocial)
	// exactly one structured call each for the stale and the unseen id
	assert.EqualValues(t, 2, h.brasilCalls.Load())
	assert.Contains(t, out[idB].RazaoSocial, "EMPRESA")
	assert.Contains(t, out[idC].RazaoSocial, "EMPRESA")
}

func TestLookupManyParitySplitsTopPair(t *testing.T) {
	h := newHarness(t, handlers{
		brasil: brasilOK("", ""),
		cnpja:  cnpjaEmail("a@empresa.com.br"),
		cnpjws: cnpjwsEmail("b@empresa.com.br"),
	})

	out, err := h.svc.LookupMany(context.Background(), []string{idA, idB, idC, idD}, false)
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.EqualValues(t, 2, h.cnpjaCalls.Load())
	assert.EqualValues(t, 2, h.cnpjwsCalls.Load())
	assert.EqualValues(t, 0, h.receitaCalls.Load())
	for _, rec := range out {
		assert.NotEmpty(t, rec.Email)
	}
}

func TestLookupManyResidualGoesToLastResort(t *testing.T) {
	h := newHarness(t, handlers{
		brasil:  brasilOK("", ""),
		cnpja:   cnpjaEmail(""),
		cnpjws:  cnpjwsEmail(""),
		receita: receitaEmail("resto@empresa.com"),
	})

	out, err := h.svc.LookupMany(context.Background(), []string{idA, idB}, false)
	require.NoError(t, err)
	assert.EqualValues(t, 2, h.receitaCalls.Load())
	for _, rec := range out {
		assert.Equal(t, "receitaws", rec.EmailSource)
		assert.Equal(t, model.EmailCategoryLikelyAccountant, rec.EmailCategory)
	}
}

func TestLookupManySkipSlowFallbackPersists(t *testing.T) {
	h := newHarness(t, handlers{
		brasil: brasilOK("11988887777", ""),
	})
	ctx := context.Background()

	out, err := h.svc.LookupMany(ctx, []string{idA, idB}, true)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.EqualValues(t, 0, h.cnpjaCalls.Load())

	// results landed in the cache
	rec, err := h.store.GetCompany(ctx, idA)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "+5511988887777", rec.Phones)
	require.NotNil(t, rec.LastLookupAt)
}
