package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompanyRecordFresh(t *testing.T) {
	now := time.Now()
	ttl := 30 * 24 * time.Hour

	var nilRec *CompanyRecord
	assert.False(t, nilRec.Fresh(now, ttl))
	assert.False(t, (&CompanyRecord{}).Fresh(now, ttl), "no lookup timestamp means stale")

	recent := now.Add(-24 * time.Hour)
	assert.True(t, (&CompanyRecord{LastLookupAt: &recent}).Fresh(now, ttl))

	old := now.Add(-31 * 24 * time.Hour)
	assert.False(t, (&CompanyRecord{LastLookupAt: &old}).Fresh(now, ttl))
}

func TestSendStatusAdvances(t *testing.T) {
	assert.True(t, SendStatusPending.Advances(SendStatusSent))
	assert.True(t, SendStatusSent.Advances(SendStatusDelivered))
	assert.True(t, SendStatusSent.Advances(SendStatusRead), "read may skip delivered")
	assert.False(t, SendStatusRead.Advances(SendStatusDelivered))
	assert.False(t, SendStatusDelivered.Advances(SendStatusDelivered))
	assert.False(t, SendStatusSent.Advances(SendStatusPending))
}

func TestSendStatusContacted(t *testing.T) {
	assert.True(t, SendStatusSent.Contacted())
	assert.True(t, SendStatusDelivered.Contacted())
	assert.True(t, SendStatusRead.Contacted())
	assert.False(t, SendStatusPending.Contacted())
	assert.False(t, SendStatusFailed.Contacted())
}

func TestLeadChannelAccessors(t *testing.T) {
	lead := &Lead{
		Phones:            "+5511999998888, +551133334444",
		Email:             "contato@empresa.com.br",
		WhatsappSentCount: OptedOut,
		EmailSentCount:    2,
	}

	assert.Equal(t, "+5511999998888", lead.Address(ChannelWhatsapp), "first phone wins")
	assert.Equal(t, "contato@empresa.com.br", lead.Address(ChannelEmail))
	assert.True(t, lead.OptedOutOf(ChannelWhatsapp))
	assert.False(t, lead.OptedOutOf(ChannelEmail))
	assert.Equal(t, 2, lead.SentCount(ChannelEmail))

	empty := &Lead{}
	assert.Empty(t, empty.Address(ChannelWhatsapp))
}
