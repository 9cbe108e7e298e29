package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeMessageReceived = "message.received.v1"
	TypeMessageStatus   = "message.status.v1"
	TypeFlowFinished    = "flow.finished.v1"
	TypeTemplateStatus  = "template.status.v1"

	Producer = "whatsapp-automation"
)

type Meta struct {
	// Trace / request correlation ID
	CorrelationID *string `json:"correlation_id,omitempty"`
	// Unique event ID
	ID       string    `json:"id"`
	Producer *string   `json:"producer,omitempty"`
	TenantID string    `json:"tenant_id"`
	Time     time.Time `json:"time"`
	// Event name and version, also the routing key
	Type string `json:"type"`
}

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// New wraps data in an envelope with a fresh id.
func New(eventType, tenantID, correlationID string, data any) Envelope {
	producer := Producer
	meta := Meta{
		ID:       uuid.NewString(),
		Producer: &producer,
		TenantID: tenantID,
		Time:     time.Now().UTC(),
		Type:     eventType,
	}
	if correlationID != "" {
		meta.CorrelationID = &correlationID
	}
	return Envelope{Meta: meta, Data: data}
}

type MessageReceivedV1 struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	ContactID      string    `json:"contact_id"`
	Phone          string    `json:"phone"`
	Kind           string    `json:"kind"`
	Summary        string    `json:"summary"`
	MediaURL       string    `json:"media_url,omitempty"`
	AtProvider     time.Time `json:"at_provider"`
}

type MessageStatusV1 struct {
	MessageID string    `json:"message_id"`
	Status    string    `json:"status"`
	At        time.Time `json:"at"`
}

type FlowFinishedV1 struct {
	FlowID         string `json:"flow_id"`
	ConversationID string `json:"conversation_id"`
	ContactID      string `json:"contact_id"`
	Outcome        string `json:"outcome"` // completed, failed, terminated
	Error          string `json:"error,omitempty"`
}

type TemplateStatusV1 struct {
	TemplateID string `json:"template_id,omitempty"`
	Name       string `json:"name"`
	Language   string `json:"language,omitempty"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}
