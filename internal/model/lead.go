package model

import "time"

// OptedOut is the reserved sentinel for a per-channel send counter meaning
// the recipient must never be contacted again on that channel. Distinct from
// 0 (never sent) and positive N (sent N times).
const OptedOut = -1

// Lead is a business prospect. Identifier is a company tax id or, for
// individual-person leads, a personal id; unique across the lead set.
type Lead struct {
	Identifier    string        `json:"identifier"`
	Name          string        `json:"name,omitempty"`
	Phones        string        `json:"phones,omitempty"`
	Email         string        `json:"email,omitempty"`
	EmailCategory EmailCategory `json:"email_category,omitempty"`
	Category      string        `json:"category,omitempty"` // e.g. "empresa", "contabilidade"
	Source        string        `json:"source,omitempty"`   // acquisition source (pncp, gazette, import)
	ObservedValue float64       `json:"observed_value,omitempty"`

	EmailSentCount    int `json:"email_sent_count"`
	WhatsappSentCount int `json:"whatsapp_sent_count"` // OptedOut (-1) blocks all future sends

	EmailLastSentAt    *time.Time `json:"email_last_sent_at,omitempty"`
	WhatsappLastSentAt *time.Time `json:"whatsapp_last_sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SentCount returns the per-channel send counter.
func (l *Lead) SentCount(ch Channel) int {
	if ch == ChannelWhatsapp {
		return l.WhatsappSentCount
	}
	return l.EmailSentCount
}

// OptedOutOf reports whether the lead carries the opt-out sentinel for the
// channel. Terminal: such leads are never selected regardless of other state.
func (l *Lead) OptedOutOf(ch Channel) bool {
	return l.SentCount(ch) == OptedOut
}

// Address returns the physical address the channel would deliver to, or ""
// when the lead has no usable contact for that channel.
func (l *Lead) Address(ch Channel) string {
	if ch == ChannelWhatsapp {
		return firstPhone(l.Phones)
	}
	return l.Email
}

func firstPhone(phones string) string {
	for i := 0; i < len(phones); i++ {
		if phones[i] == ',' {
			return phones[:i]
		}
	}
	return phones
}
