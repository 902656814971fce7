package channel

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/vendaslab/prospect-cli/internal/model"
	"github.com/vendaslab/prospect-cli/internal/phone"
	"github.com/vendaslab/prospect-cli/pkg/zapi"
)

// WhatsAppSender sends campaign messages through the WhatsApp gateway.
type WhatsAppSender struct {
	client zapi.Client
}

// NewWhatsAppSender wraps a gateway client as a channel adapter.
func NewWhatsAppSender(client zapi.Client) *WhatsAppSender {
	return &WhatsAppSender{client: client}
}

func (s *WhatsAppSender) Channel() model.Channel { return model.ChannelWhatsapp }

// Send delivers a text message to a canonical phone number.
func (s *WhatsAppSender) Send(ctx context.Context, msg Message) (string, error) {
	if phone.Normalize(msg.To) == "" {
		return "", eris.Errorf("channel: whatsapp send: invalid phone %q", msg.To)
	}
	res, err := s.client.SendText(ctx, msg.To, msg.Body)
	if err != nil {
		return "", err
	}
	return res.MessageID, nil
}

// Reachable probes which of the given canonical numbers have a WhatsApp
// account, batched by the gateway client. Used to prune a candidate pool
// before a run burns quota on dead numbers.
func (s *WhatsAppSender) Reachable(ctx context.Context, phones []string) (map[string]bool, error) {
	return s.client.CheckNumbers(ctx, phones)
}
