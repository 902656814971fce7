package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vendaslab/prospect-cli/internal/gate"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Lookup    LookupConfig    `yaml:"lookup" mapstructure:"lookup"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	Campaign  CampaignConfig  `yaml:"campaign" mapstructure:"campaign"`
	SMTP      SMTPConfig      `yaml:"smtp" mapstructure:"smtp"`
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp" mapstructure:"whatsapp"`
	Jobs      JobsConfig      `yaml:"jobs" mapstructure:"jobs"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // postgres | sqlite
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// LookupConfig configures the cache and classifier.
type LookupConfig struct {
	TTLDays int `yaml:"ttl_days" mapstructure:"ttl_days"`
	// AccountingKeywords override the built-in accounting-domain keyword
	// list when non-empty.
	AccountingKeywords []string `yaml:"accounting_keywords" mapstructure:"accounting_keywords"`
}

// TTL returns the cache freshness window.
func (c LookupConfig) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// ProviderLimits configures one provider's admission gate.
type ProviderLimits struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	MaxPerWindow  int `yaml:"max_per_window" mapstructure:"max_per_window"`
	WindowSecs    int `yaml:"window_secs" mapstructure:"window_secs"`
}

// Limits converts to the gate parameter type.
func (p ProviderLimits) Limits() gate.Limits {
	return gate.Limits{
		MaxConcurrent: p.MaxConcurrent,
		MaxPerWindow:  p.MaxPerWindow,
		Window:        time.Duration(p.WindowSecs) * time.Second,
	}
}

// ProvidersConfig holds per-provider gate limits.
type ProvidersConfig struct {
	BrasilAPI ProviderLimits `yaml:"brasilapi" mapstructure:"brasilapi"`
	CNPJA     ProviderLimits `yaml:"cnpja" mapstructure:"cnpja"`
	CNPJWS    ProviderLimits `yaml:"cnpjws" mapstructure:"cnpjws"`
	ReceitaWS ProviderLimits `yaml:"receitaws" mapstructure:"receitaws"`
}

// ChannelCampaignConfig governs one channel's outbound runs.
type ChannelCampaignConfig struct {
	QuotaFile    string `yaml:"quota_file" mapstructure:"quota_file"`
	DailyCap     int    `yaml:"daily_cap" mapstructure:"daily_cap"`
	DelayMinutes int    `yaml:"delay_minutes" mapstructure:"delay_minutes"`
	TemplateSeq  int    `yaml:"template_seq" mapstructure:"template_seq"`
	Subject      string `yaml:"subject" mapstructure:"subject"` // email only
	TemplateFile string `yaml:"template_file" mapstructure:"template_file"`
}

// Delay returns the inter-send pause.
func (c ChannelCampaignConfig) Delay() time.Duration {
	return time.Duration(c.DelayMinutes) * time.Minute
}

// CampaignConfig holds both channels' governor settings.
type CampaignConfig struct {
	Email    ChannelCampaignConfig `yaml:"email" mapstructure:"email"`
	WhatsApp ChannelCampaignConfig `yaml:"whatsapp" mapstructure:"whatsapp"`
}

// SMTPConfig holds the email relay settings.
type SMTPConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	From     string `yaml:"from" mapstructure:"from"`
}

// WhatsAppConfig holds the gateway credentials.
type WhatsAppConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	InstanceID     string `yaml:"instance_id" mapstructure:"instance_id"`
	Token          string `yaml:"token" mapstructure:"token"`
	ProbeBatch     int    `yaml:"probe_batch" mapstructure:"probe_batch"`
	ProbePauseSecs int    `yaml:"probe_pause_secs" mapstructure:"probe_pause_secs"`
}

// JobsConfig sets the scheduler intervals.
type JobsConfig struct {
	EnrichIntervalHours   int    `yaml:"enrich_interval_hours" mapstructure:"enrich_interval_hours"`
	CampaignIntervalHours int    `yaml:"campaign_interval_hours" mapstructure:"campaign_interval_hours"`
	EnrichFile            string `yaml:"enrich_file" mapstructure:"enrich_file"`
	CampaignChannel       string `yaml:"campaign_channel" mapstructure:"campaign_channel"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROSPECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "prospect.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("lookup.ttl_days", 30)
	v.SetDefault("providers.brasilapi.max_concurrent", 5)
	v.SetDefault("providers.brasilapi.max_per_window", 20)
	v.SetDefault("providers.brasilapi.window_secs", 1)
	v.SetDefault("providers.cnpja.max_concurrent", 1)
	v.SetDefault("providers.cnpja.max_per_window", 3)
	v.SetDefault("providers.cnpja.window_secs", 60)
	v.SetDefault("providers.cnpjws.max_concurrent", 1)
	v.SetDefault("providers.cnpjws.max_per_window", 3)
	v.SetDefault("providers.cnpjws.window_secs", 60)
	v.SetDefault("providers.receitaws.max_concurrent", 1)
	v.SetDefault("providers.receitaws.max_per_window", 3)
	v.SetDefault("providers.receitaws.window_secs", 60)
	v.SetDefault("campaign.whatsapp.quota_file", "quotas.yaml")
	v.SetDefault("campaign.whatsapp.daily_cap", 50)
	v.SetDefault("campaign.whatsapp.delay_minutes", 3)
	v.SetDefault("campaign.whatsapp.template_seq", 1)
	v.SetDefault("campaign.email.quota_file", "quotas.yaml")
	v.SetDefault("campaign.email.daily_cap", 200)
	v.SetDefault("campaign.email.delay_minutes", 1)
	v.SetDefault("campaign.email.template_seq", 1)
	v.SetDefault("campaign.email.subject", "Proposta comercial")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("whatsapp.base_url", "https://api.z-api.io")
	v.SetDefault("whatsapp.probe_batch", 10)
	v.SetDefault("whatsapp.probe_pause_secs", 2)
	v.SetDefault("jobs.enrich_interval_hours", 24)
	v.SetDefault("jobs.campaign_interval_hours", 24)
	v.SetDefault("jobs.campaign_channel", "whatsapp")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
