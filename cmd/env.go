package main

import (
	"bytes"
	"context"
	"os"
	"text/template"
	"time"

	"github.com/rotisserie/eris"

	"github.com/vendaslab/prospect-cli/internal/campaign"
	"github.com/vendaslab/prospect-cli/internal/channel"
	"github.com/vendaslab/prospect-cli/internal/config"
	"github.com/vendaslab/prospect-cli/internal/db"
	"github.com/vendaslab/prospect-cli/internal/email"
	"github.com/vendaslab/prospect-cli/internal/gate"
	"github.com/vendaslab/prospect-cli/internal/lookup"
	"github.com/vendaslab/prospect-cli/internal/model"
	"github.com/vendaslab/prospect-cli/internal/provider"
	"github.com/vendaslab/prospect-cli/internal/resilience"
	"github.com/vendaslab/prospect-cli/internal/store"
	"github.com/vendaslab/prospect-cli/pkg/zapi"
)

// env bundles the long-lived components a command needs.
type env struct {
	store     store.Store
	providers *provider.Set
	lookup    *lookup.Service
}

// initEnv opens the store and constructs the provider set and lookup
// service from the loaded config.
func initEnv(ctx context.Context) (*env, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	set := provider.NewSet(gate.NewRegistry(), provider.Limits{
		Structured: cfg.Providers.BrasilAPI.Limits(),
		CNPJA:      cfg.Providers.CNPJA.Limits(),
		CNPJWS:     cfg.Providers.CNPJWS.Limits(),
		ReceitaWS:  cfg.Providers.ReceitaWS.Limits(),
	}, resilience.RetryConfig{})

	classifier := email.NewClassifier(cfg.Lookup.AccountingKeywords, set.LowTrustName())
	svc := lookup.New(st, set, classifier, lookup.WithTTL(cfg.Lookup.TTL()))

	return &env{store: st, providers: set, lookup: svc}, nil
}

func (e *env) Close() {
	_ = e.store.Close()
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("database URL is required (PROSPECT_STORE_DATABASE_URL)")
		}
		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, 0, 0)
		if err != nil {
			return nil, err
		}
		return store.NewPostgres(pool), nil
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// newWhatsAppSender builds the gateway-backed adapter from config.
func newWhatsAppSender() (*channel.WhatsAppSender, error) {
	if cfg.WhatsApp.InstanceID == "" || cfg.WhatsApp.Token == "" {
		return nil, eris.New("whatsapp credentials are required (PROSPECT_WHATSAPP_INSTANCE_ID, PROSPECT_WHATSAPP_TOKEN)")
	}
	client := zapi.NewClient(cfg.WhatsApp.BaseURL, cfg.WhatsApp.InstanceID, cfg.WhatsApp.Token,
		zapi.WithProbeBatch(cfg.WhatsApp.ProbeBatch, time.Duration(cfg.WhatsApp.ProbePauseSecs)*time.Second))
	return channel.NewWhatsAppSender(client), nil
}

// newGovernor wires the channel adapter, quota table, and message template
// for one channel's campaign run.
func newGovernor(st store.Store, ch model.Channel) (*campaign.Governor, error) {
	var adapter channel.Adapter
	var chCfg config.ChannelCampaignConfig

	switch ch {
	case model.ChannelWhatsapp:
		sender, err := newWhatsAppSender()
		if err != nil {
			return nil, err
		}
		adapter = sender
		chCfg = cfg.Campaign.WhatsApp
	case model.ChannelEmail:
		if cfg.SMTP.Host == "" || cfg.SMTP.From == "" {
			return nil, eris.New("smtp host and from are required (PROSPECT_SMTP_HOST, PROSPECT_SMTP_FROM)")
		}
		adapter = channel.NewEmailSender(channel.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		chCfg = cfg.Campaign.Email
	default:
		return nil, eris.Errorf("unknown channel %q", ch)
	}

	quotas, err := campaign.LoadQuotas(chCfg.QuotaFile)
	if err != nil {
		return nil, err
	}

	compose, err := newComposer(ch, chCfg)
	if err != nil {
		return nil, err
	}

	return campaign.New(st, adapter, campaign.Config{
		Quotas:      quotas,
		DailyCap:    chCfg.DailyCap,
		Delay:       chCfg.Delay(),
		TemplateSeq: chCfg.TemplateSeq,
	}, compose), nil
}

const defaultTemplate = "Olá {{.Name}}! Vimos sua empresa em licitações públicas e " +
	"gostaríamos de apresentar nossos serviços. Responda esta mensagem para saber mais."

// newComposer renders the channel's message template per lead.
func newComposer(ch model.Channel, chCfg config.ChannelCampaignConfig) (campaign.Composer, error) {
	body := defaultTemplate
	if chCfg.TemplateFile != "" {
		raw, err := os.ReadFile(chCfg.TemplateFile)
		if err != nil {
			return nil, eris.Wrapf(err, "read template %s", chCfg.TemplateFile)
		}
		body = string(raw)
	}
	tmpl, err := template.New("message").Parse(body)
	if err != nil {
		return nil, eris.Wrap(err, "parse message template")
	}

	return func(lead *model.Lead) channel.Message {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, lead); err != nil {
			buf.Reset()
			buf.WriteString("Olá! Vimos sua empresa em licitações públicas e gostaríamos de apresentar nossos serviços.")
		}
		return channel.Message{
			To:      lead.Address(ch),
			Subject: chCfg.Subject,
			Body:    buf.String(),
		}
	}, nil
}
