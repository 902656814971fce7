package receitaws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendaslab/prospect-cli/internal/resilience"
)

func TestFetchEmail_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cnpj/11222333000181", r.URL.Path)
		w.Write([]byte(`{"status":"OK","email":"contato@empresa.com.br"}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	email, err := c.FetchEmail(context.Background(), "11222333000181")
	require.NoError(t, err)
	assert.Equal(t, "contato@empresa.com.br", email)
}

func TestFetchEmail_NoEmailOnRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"OK","email":""}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	email, err := c.FetchEmail(context.Background(), "11222333000181")
	require.NoError(t, err)
	assert.Empty(t, email)
}

func TestFetchEmail_StatusErrorIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// ReceitaWS reports unknown CNPJs with HTTP 200.
		w.Write([]byte(`{"status":"ERROR","message":"CNPJ inválido"}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.FetchEmail(context.Background(), "00000000000000")
	assert.ErrorIs(t, err, resilience.ErrNotFound)
}

func TestFetchEmail_TooManyRequestsIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.FetchEmail(context.Background(), "11222333000181")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}
