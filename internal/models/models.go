package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	IntegrationConnected    = "connected"
	IntegrationError        = "error"
	IntegrationDisconnected = "disconnected"

	ConversationOpen    = "open"
	ConversationPending = "pending"
	ConversationClosed  = "closed"

	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	FlowPublished = "published"
	FlowDraft     = "draft"

	// UnknownContactName is stored until the provider supplies a profile name.
	UnknownContactName = "Unknown"
)

// Tenant is an isolated customer account. Managed outside this service.
type Tenant struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name      string    `gorm:"type:varchar(255)" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Tenant) TableName() string {
	return "tenants"
}

// Integration holds a tenant's WhatsApp Cloud API credentials.
type Integration struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TenantID      string    `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	Status        string    `gorm:"type:varchar(20);default:'connected'" json:"status"`
	PhoneNumberID string    `gorm:"type:varchar(64);uniqueIndex" json:"phone_number_id"`
	WABAID        string    `gorm:"column:waba_id;type:varchar(64);index" json:"waba_id"`
	AccessToken   string    `gorm:"type:text" json:"-"`
	WebhookSecret string    `gorm:"type:varchar(255)" json:"-"`
	WebhookURL    string    `gorm:"type:text" json:"webhook_url"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Integration) TableName() string {
	return "integrations"
}

func (i Integration) Enabled() bool {
	return i.Status == IntegrationConnected
}

// Contact is a remote party identified by phone number within a tenant
type Contact struct {
	ID        string                                `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TenantID  string                                `gorm:"type:varchar(64);not null;uniqueIndex:idx_contact_tenant_phone" json:"tenant_id"`
	Phone     string                                `gorm:"type:varchar(32);not null;uniqueIndex:idx_contact_tenant_phone" json:"phone"`
	Name      string                                `gorm:"type:varchar(255);default:'Unknown'" json:"name"`
	Tags      datatypes.JSONType[[]string]          `json:"tags"`
	FlowData  datatypes.JSONType[map[string]string] `json:"flow_data"`
	Stage     string                                `gorm:"type:varchar(100)" json:"stage"`
	CreatedAt time.Time                             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time                             `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

func (c *Contact) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Conversation is a message thread with a contact. At most one flow is active at a time.
type Conversation struct {
	ID            string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TenantID      string     `gorm:"type:varchar(64);not null;index:idx_conversation_lookup" json:"tenant_id"`
	ContactID     string     `gorm:"type:varchar(64);not null;index:idx_conversation_lookup" json:"contact_id"`
	Status        string     `gorm:"type:varchar(20);default:'open'" json:"status"`
	LastMessage   string     `gorm:"type:text" json:"last_message"`
	LastMessageAt *time.Time `json:"last_message_at"`
	UnreadCount   int        `gorm:"default:0" json:"unread_count"`
	ActiveFlowID  *string    `gorm:"type:varchar(64)" json:"active_flow_id"`
	CurrentStepID *string    `gorm:"type:varchar(255)" json:"current_step_id"`
	Version       int        `gorm:"not null;default:1" json:"version"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Cursor returns where the conversation is within a flow.
// A flow id without a step counts as no flow.
func (c *Conversation) Cursor() Cursor {
	if c.ActiveFlowID == nil || c.CurrentStepID == nil || *c.ActiveFlowID == "" || *c.CurrentStepID == "" {
		return Cursor{}
	}
	return Cursor{FlowID: *c.ActiveFlowID, StepID: *c.CurrentStepID}
}

// SetCursor writes both cursor columns together.
func (c *Conversation) SetCursor(cur Cursor) {
	if !cur.IsActive() {
		c.ActiveFlowID = nil
		c.CurrentStepID = nil
		return
	}
	flowID, stepID := cur.FlowID, cur.StepID
	c.ActiveFlowID = &flowID
	c.CurrentStepID = &stepID
}

// Cursor is the (flow, step) pair of an in-progress flow. The zero value means no flow.
type Cursor struct {
	FlowID string `json:"flow_id,omitempty"`
	StepID string `json:"step_id,omitempty"`
}

func (c Cursor) IsActive() bool {
	return c.FlowID != "" && c.StepID != ""
}

// Message is keyed by the provider's message id. Only status fields change after insert.
type Message struct {
	ID              string         `gorm:"primaryKey;type:varchar(255)" json:"id"`
	TenantID        string         `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	ConversationID  string         `gorm:"type:varchar(64);not null;index" json:"conversation_id"`
	Direction       string         `gorm:"type:varchar(10);not null" json:"direction"`
	Type            string         `gorm:"type:varchar(50)" json:"type"`
	Content         datatypes.JSON `json:"content"`
	MediaURL        *string        `gorm:"type:text" json:"media_url"`
	Timestamp       time.Time      `gorm:"index" json:"timestamp"`
	Status          string         `gorm:"type:varchar(20)" json:"status"`
	StatusTimestamp *time.Time     `json:"status_timestamp"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

// Flow is a tenant-authored automation graph
type Flow struct {
	ID        string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TenantID  string     `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	Name      string     `gorm:"type:varchar(255)" json:"name"`
	Status    string     `gorm:"type:varchar(50);default:'draft'" json:"status"`
	Nodes     []FlowNode `gorm:"foreignKey:FlowID;constraint:OnDelete:CASCADE;" json:"nodes"`
	Edges     []FlowEdge `gorm:"foreignKey:FlowID;constraint:OnDelete:CASCADE;" json:"edges"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Flow) TableName() string {
	return "flows"
}

func (f *Flow) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

type FlowNode struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	FlowID    string         `gorm:"index;type:varchar(64)" json:"flow_id"`
	NodeID    string         `gorm:"type:varchar(255)" json:"node_id"` // editor node id
	Type      string         `gorm:"type:varchar(50)" json:"type"`
	PositionX float64        `json:"position_x"`
	PositionY float64        `json:"position_y"`
	Data      datatypes.JSON `json:"data"` // type-specific node data
}

func (FlowNode) TableName() string {
	return "flow_nodes"
}

type FlowEdge struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	FlowID       string `gorm:"index;type:varchar(64)" json:"flow_id"`
	EdgeID       string `gorm:"type:varchar(255)" json:"edge_id"` // editor edge id
	Source       string `gorm:"type:varchar(255)" json:"source"`
	Target       string `gorm:"type:varchar(255)" json:"target"`
	SourceHandle string `gorm:"type:varchar(255)" json:"source_handle"`
}

func (FlowEdge) TableName() string {
	return "flow_edges"
}

// CannedResponse is a stored reply sent by message nodes
type CannedResponse struct {
	ID       string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TenantID string `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	Kind     string `gorm:"type:varchar(20);default:'text'" json:"kind"` // text, image, video, audio, document
	Text     string `gorm:"type:text" json:"text"`
	MediaURL string `gorm:"type:text" json:"media_url"`
	Caption  string `gorm:"type:text" json:"caption"`
	Filename string `gorm:"type:varchar(255)" json:"filename"`
}

func (CannedResponse) TableName() string {
	return "canned_responses"
}

// Template represents a WhatsApp message template
type Template struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TenantID   string    `gorm:"type:varchar(64);not null;index:idx_template_key" json:"tenant_id"`
	ProviderID string    `gorm:"type:varchar(255)" json:"provider_id"`
	Name       string    `gorm:"type:varchar(255);index:idx_template_key" json:"name"`
	Language   string    `gorm:"type:varchar(50);index:idx_template_key" json:"language"`
	Category   string    `gorm:"type:varchar(100)" json:"category"`
	Status     string    `gorm:"type:varchar(50)" json:"status"`
	Reason     string    `gorm:"type:text" json:"reason"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Template) TableName() string {
	return "templates"
}

const (
	OutcomeTriggered = "triggered"
	OutcomeAdvanced  = "advanced"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"

	// OutcomeTerminated is an active flow cleared by an operator.
	OutcomeTerminated = "terminated"
)

// AutomationLog is one row per flow outcome
type AutomationLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	TenantID       string    `gorm:"type:varchar(64);index" json:"tenant_id"`
	ConversationID string    `gorm:"type:varchar(64);index" json:"conversation_id"`
	FlowID         string    `gorm:"type:varchar(64)" json:"flow_id"`
	NodeID         string    `gorm:"type:varchar(255)" json:"node_id"`
	Outcome        string    `gorm:"type:varchar(20)" json:"outcome"`
	ErrorMessage   string    `gorm:"type:text" json:"error_message"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (AutomationLog) TableName() string {
	return "automation_logs"
}

// All lists every table for migrations and data copies, parents first.
func All() []interface{} {
	return []interface{}{
		&Tenant{},
		&Integration{},
		&Contact{},
		&Conversation{},
		&Message{},
		&Flow{},
		&FlowNode{},
		&FlowEdge{},
		&CannedResponse{},
		&Template{},
		&AutomationLog{},
	}
}
