package model

import "time"

// Channel is an outbound messaging channel.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsapp Channel = "whatsapp"
)

// SendStatus is the lifecycle state of a send-log row.
// pending → sent|failed; sent may advance to delivered and then read via
// asynchronous delivery callbacks, never backward.
type SendStatus string

const (
	SendStatusPending   SendStatus = "pending"
	SendStatusSent      SendStatus = "sent"
	SendStatusFailed    SendStatus = "failed"
	SendStatusDelivered SendStatus = "delivered"
	SendStatusRead      SendStatus = "read"
)

// statusRank orders the forward-only delivery progression.
var statusRank = map[SendStatus]int{
	SendStatusPending:   0,
	SendStatusFailed:    1,
	SendStatusSent:      1,
	SendStatusDelivered: 2,
	SendStatusRead:      3,
}

// Advances reports whether moving from to next is a forward transition.
// Delivery callbacks that would move status backward are ignored.
func (s SendStatus) Advances(next SendStatus) bool {
	return statusRank[next] > statusRank[s]
}

// Contacted reports whether the status counts as "this address has been
// reached": the ground truth for the campaign exclusion set.
func (s SendStatus) Contacted() bool {
	switch s {
	case SendStatusSent, SendStatusDelivered, SendStatusRead:
		return true
	}
	return false
}

// SendLogEntry is one attempted send on one channel. Created with status
// pending immediately before dispatch so a crash mid-send leaves evidence;
// updated in place as the attempt resolves.
type SendLogEntry struct {
	ID                string     `json:"id"` // uuid
	Channel           Channel    `json:"channel"`
	Address           string     `json:"address"` // canonical phone or email
	LeadIdentifier    string     `json:"lead_identifier,omitempty"`
	LeadName          string     `json:"lead_name,omitempty"`
	TemplateSeq       int        `json:"template_seq"`
	Status            SendStatus `json:"status"`
	ProviderMessageID string     `json:"provider_message_id,omitempty"`
	Error             string     `json:"error,omitempty"`
	SentAt            *time.Time `json:"sent_at,omitempty"` // set once, when the send succeeds
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
