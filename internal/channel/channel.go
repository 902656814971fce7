// Package channel defines the outbound message adapters the campaign
// governor dispatches through: SMTP email and the WhatsApp gateway behind a
// single interface.
package channel

import (
	"context"

	"github.com/vendaslab/prospect-cli/internal/model"
)

// Message is one outbound message addressed to a canonical contact
// (E.164-style phone or email address, depending on the adapter).
type Message struct {
	To      string
	Subject string // email only
	Body    string
}

// Adapter dispatches messages on one channel. Send returns the provider's
// message id, the key later delivery callbacks arrive under.
type Adapter interface {
	Channel() model.Channel
	Send(ctx context.Context, msg Message) (providerMessageID string, err error)
}
