package webhook

import (
	"context"
	"testing"

	"whatsapp-automation/internal/models"
	"whatsapp-automation/internal/tenant"
	wire "whatsapp-automation/pkg/models"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDispatch_RecoversPanics(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	// a router without collaborators panics on every item
	router := NewRouter(nil, nil, zap.New(core))
	tc := &tenant.Context{TenantID: "t1", Integration: &models.Integration{PhoneNumberID: "PN1"}}

	payload := wire.WebhookPayload{Entry: []wire.Entry{{
		ID: "WABA1",
		Changes: []wire.Change{{
			Field: "messages",
			Value: wire.Value{
				Metadata: wire.Metadata{PhoneNumberID: "PN1"},
				Messages: []wire.Message{{ID: "wamid.1", From: "5511", Type: "text"}},
				Statuses: []wire.Status{{ID: "wamid.2", Status: "read"}},
			},
		}, {
			Field: wire.TemplateStatusField,
			Value: wire.Value{Event: "APPROVED", MessageTemplateName: "welcome"},
		}},
	}}}

	failed := router.Dispatch(context.Background(), tc, payload, "req-1")

	assert.Equal(t, 3, failed)
	assert.Equal(t, 3, logs.FilterMessage("panic while processing webhook item").Len())
}

func TestDispatch_SkipsOtherPhoneNumbers(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	router := NewRouter(nil, nil, zap.New(core))
	tc := &tenant.Context{TenantID: "t1", Integration: &models.Integration{PhoneNumberID: "PN1"}}

	payload := wire.WebhookPayload{Entry: []wire.Entry{{
		Changes: []wire.Change{{Value: wire.Value{
			Metadata: wire.Metadata{PhoneNumberID: "PN9"},
			Messages: []wire.Message{{ID: "wamid.1", From: "5511", Type: "text"}},
		}}},
	}}}

	assert.Equal(t, 0, router.Dispatch(context.Background(), tc, payload, ""))
	assert.Equal(t, 1, logs.FilterMessage("change for another phone number skipped").Len())
}

func TestProfileName(t *testing.T) {
	var maria, joao wire.WebhookContact
	maria.WaID, maria.Profile.Name = "5511", "Maria"
	joao.WaID, joao.Profile.Name = "5522", "João"

	assert.Equal(t, "João", profileName([]wire.WebhookContact{maria, joao}, "5522"))
	assert.Equal(t, "Maria", profileName([]wire.WebhookContact{maria}, "5599"))
	assert.Equal(t, "", profileName([]wire.WebhookContact{maria, joao}, "5599"))
	assert.Equal(t, "", profileName(nil, "5511"))
}

func TestPayloadAccountID(t *testing.T) {
	withPhone := wire.WebhookPayload{Entry: []wire.Entry{
		{ID: "WABA1", Changes: []wire.Change{{Field: wire.TemplateStatusField}}},
		{ID: "WABA1", Changes: []wire.Change{{Value: wire.Value{Metadata: wire.Metadata{PhoneNumberID: "PN1"}}}}},
	}}
	assert.Equal(t, "PN1", payloadAccountID(withPhone))

	templatesOnly := wire.WebhookPayload{Entry: []wire.Entry{{ID: "WABA1"}}}
	assert.Equal(t, "WABA1", payloadAccountID(templatesOnly))

	assert.Equal(t, "", payloadAccountID(wire.WebhookPayload{Entry: []wire.Entry{{}}}))
}
