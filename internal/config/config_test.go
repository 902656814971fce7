package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 30, cfg.Lookup.TTLDays)
	assert.Equal(t, 30*24*time.Hour, cfg.Lookup.TTL())
	assert.Equal(t, 5, cfg.Providers.BrasilAPI.MaxConcurrent)
	assert.Equal(t, 3, cfg.Providers.ReceitaWS.MaxPerWindow)
	assert.Equal(t, 60, cfg.Providers.ReceitaWS.WindowSecs)
	assert.Equal(t, 3*time.Minute, cfg.Campaign.WhatsApp.Delay())
	assert.Equal(t, 50, cfg.Campaign.WhatsApp.DailyCap)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("PROSPECT_STORE_DRIVER", "postgres")
	t.Setenv("PROSPECT_LOOKUP_TTL_DAYS", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 7, cfg.Lookup.TTLDays)
}

func TestProviderLimitsConversion(t *testing.T) {
	p := ProviderLimits{MaxConcurrent: 2, MaxPerWindow: 10, WindowSecs: 60}
	l := p.Limits()
	assert.Equal(t, 2, l.MaxConcurrent)
	assert.Equal(t, 10, l.MaxPerWindow)
	assert.Equal(t, time.Minute, l.Window)
}

func TestInitLoggerRejectsBadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)

	err = InitLogger(LogConfig{Level: "debug", Format: "console"})
	assert.NoError(t, err)
}
