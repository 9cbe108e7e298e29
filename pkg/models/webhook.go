package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// WebhookPayload represents the incoming JSON payload from WhatsApp
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one business account's batch of changes. ID is the WABA id.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value carries message, status and template events. Template updates arrive either
// nested under message_template_status_update or inline when Field names them.
type Value struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         Metadata         `json:"metadata"`
	Contacts         []WebhookContact `json:"contacts,omitempty"`
	Messages         []Message        `json:"messages,omitempty"`
	Statuses         []Status         `json:"statuses,omitempty"`

	TemplateStatusUpdate *TemplateStatusUpdate `json:"message_template_status_update,omitempty"`

	// inline template status update fields
	Event                   string `json:"event,omitempty"`
	MessageTemplateID       any    `json:"message_template_id,omitempty"`
	MessageTemplateName     string `json:"message_template_name,omitempty"`
	MessageTemplateLanguage string `json:"message_template_language,omitempty"`
	Reason                  string `json:"reason,omitempty"`
}

const TemplateStatusField = "message_template_status_update"

// TemplateUpdate returns the template status update carried by the change, if any.
func (c Change) TemplateUpdate() *TemplateStatusUpdate {
	if c.Value.TemplateStatusUpdate != nil {
		return c.Value.TemplateStatusUpdate
	}
	if c.Field == TemplateStatusField && c.Value.MessageTemplateName != "" {
		return &TemplateStatusUpdate{
			Event:                   c.Value.Event,
			MessageTemplateID:       c.Value.MessageTemplateID,
			MessageTemplateName:     c.Value.MessageTemplateName,
			MessageTemplateLanguage: c.Value.MessageTemplateLanguage,
			Reason:                  c.Value.Reason,
		}
	}
	return nil
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type WebhookContact struct {
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
	WaID string `json:"wa_id"`
}

// Message is one inbound message. Exactly one of the typed fields matches Type.
type Message struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`

	Text        *TextMessage        `json:"text,omitempty"`
	Image       *MediaMessage       `json:"image,omitempty"`
	Video       *MediaMessage       `json:"video,omitempty"`
	Audio       *MediaMessage       `json:"audio,omitempty"`
	Document    *MediaMessage       `json:"document,omitempty"`
	Sticker     *MediaMessage       `json:"sticker,omitempty"`
	Location    *LocationMessage    `json:"location,omitempty"`
	Interactive *InteractiveMessage `json:"interactive,omitempty"`
	Button      *ButtonMessage      `json:"button,omitempty"`
	Reaction    *ReactionMessage    `json:"reaction,omitempty"`
	Contacts    json.RawMessage     `json:"contacts,omitempty"`
}

// Media returns the attachment for media message types.
func (m Message) Media() *MediaMessage {
	switch m.Type {
	case "image":
		return m.Image
	case "video":
		return m.Video
	case "audio":
		return m.Audio
	case "document":
		return m.Document
	case "sticker":
		return m.Sticker
	}
	return nil
}

// Content returns the raw JSON of the type-specific part of the message.
func (m Message) Content() json.RawMessage {
	var part any
	switch m.Type {
	case "text":
		part = m.Text
	case "location":
		part = m.Location
	case "interactive":
		part = m.Interactive
	case "button":
		part = m.Button
	case "reaction":
		part = m.Reaction
	case "contacts":
		if len(m.Contacts) > 0 {
			return m.Contacts
		}
	default:
		part = m.Media()
	}
	b, err := json.Marshal(part)
	if err != nil || string(b) == "null" {
		return json.RawMessage("{}")
	}
	return b
}

// Time parses the unix-seconds timestamp; unparseable values fall back to fallback.
func (m Message) Time(fallback time.Time) time.Time {
	return ParseUnix(m.Timestamp, fallback)
}

type TextMessage struct {
	Body string `json:"body"`
}

// MediaMessage represents a media attachment in a WhatsApp message
type MediaMessage struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type LocationMessage struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// InteractiveMessage represents an interactive message response (buttons, lists, flows)
type InteractiveMessage struct {
	Type        string       `json:"type"`
	ButtonReply *ButtonReply `json:"button_reply,omitempty"`
	ListReply   *ListReply   `json:"list_reply,omitempty"`
	NfmReply    *NfmReply    `json:"nfm_reply,omitempty"`
}

// Title returns the selected option's title.
func (i InteractiveMessage) Title() string {
	switch {
	case i.ButtonReply != nil:
		return i.ButtonReply.Title
	case i.ListReply != nil:
		return i.ListReply.Title
	case i.NfmReply != nil:
		return i.NfmReply.Body
	}
	return ""
}

type ButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type ListReply struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// NfmReply represents a response from a WhatsApp Flow
type NfmReply struct {
	ResponsePayload string `json:"response_payload"`
	Body            string `json:"body"`
	Name            string `json:"name"`
}

// ButtonMessage is a quick-reply button press on a template message
type ButtonMessage struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

type ReactionMessage struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// Status is a delivery status update for an outbound message
type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

func (s Status) Time(fallback time.Time) time.Time {
	return ParseUnix(s.Timestamp, fallback)
}

type TemplateStatusUpdate struct {
	Event                   string `json:"event"`
	MessageTemplateID       any    `json:"message_template_id,omitempty"`
	MessageTemplateName     string `json:"message_template_name"`
	MessageTemplateLanguage string `json:"message_template_language"`
	Reason                  string `json:"reason,omitempty"`
}

// TemplateID renders the provider template id, which may arrive as a number or a string.
func (u TemplateStatusUpdate) TemplateID() string {
	switch v := u.MessageTemplateID.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// ParseUnix parses a unix-seconds string.
func ParseUnix(ts string, fallback time.Time) time.Time {
	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Unix(secs, 0).UTC()
}
