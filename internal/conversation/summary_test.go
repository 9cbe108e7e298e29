package conversation

import (
	"encoding/json"
	"testing"

	wire "whatsapp-automation/pkg/models"

	"github.com/stretchr/testify/assert"
)

func TestSummary(t *testing.T) {
	tests := []struct {
		name string
		msg  wire.Message
		want string
	}{
		{"text", wire.Message{Type: "text", Text: &wire.TextMessage{Body: "oi"}}, "oi"},
		{"image with caption", wire.Message{Type: "image", Image: &wire.MediaMessage{Caption: "look"}}, "look"},
		{"image without caption", wire.Message{Type: "image", Image: &wire.MediaMessage{}}, "Image"},
		{"video", wire.Message{Type: "video", Video: &wire.MediaMessage{}}, "Video"},
		{"audio", wire.Message{Type: "audio", Audio: &wire.MediaMessage{Caption: "ignored"}}, "Audio"},
		{"document with filename", wire.Message{Type: "document", Document: &wire.MediaMessage{Filename: "a.pdf"}}, "a.pdf"},
		{"document", wire.Message{Type: "document"}, "Document"},
		{"sticker", wire.Message{Type: "sticker"}, "Sticker"},
		{"location with name", wire.Message{Type: "location", Location: &wire.LocationMessage{Name: "Office"}}, "Office"},
		{"location", wire.Message{Type: "location", Location: &wire.LocationMessage{}}, "Location"},
		{"button reply", wire.Message{Type: "interactive", Interactive: &wire.InteractiveMessage{ButtonReply: &wire.ButtonReply{Title: "Yes"}}}, "Yes"},
		{"list reply", wire.Message{Type: "interactive", Interactive: &wire.InteractiveMessage{ListReply: &wire.ListReply{Title: "Pricing"}}}, "Pricing"},
		{"template button", wire.Message{Type: "button", Button: &wire.ButtonMessage{Text: "Stop"}}, "Stop"},
		{"reaction", wire.Message{Type: "reaction", Reaction: &wire.ReactionMessage{Emoji: "👍"}}, "👍"},
		{"contacts", wire.Message{Type: "contacts", Contacts: json.RawMessage(`[]`)}, "Contact"},
		{"unknown", wire.Message{Type: "order"}, "[order]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summary(tt.msg))
		})
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		name   string
		msg    wire.Message
		want   string
		isText bool
	}{
		{"text", wire.Message{Type: "text", Text: &wire.TextMessage{Body: "Oi"}}, "Oi", true},
		{"button reply", wire.Message{Type: "interactive", Interactive: &wire.InteractiveMessage{Type: "button_reply", ButtonReply: &wire.ButtonReply{Title: "Sim"}}}, "Sim", true},
		{"list reply", wire.Message{Type: "interactive", Interactive: &wire.InteractiveMessage{Type: "list_reply", ListReply: &wire.ListReply{Title: "Pricing"}}}, "Pricing", true},
		{"template button", wire.Message{Type: "button", Button: &wire.ButtonMessage{Text: "Stop"}}, "Stop", true},
		{"interactive without reply", wire.Message{Type: "interactive", Interactive: &wire.InteractiveMessage{}}, "", false},
		{"image caption", wire.Message{Type: "image", Image: &wire.MediaMessage{Caption: "oi"}}, "", false},
		{"text without body", wire.Message{Type: "text"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Text(tt.msg)
			assert.Equal(t, tt.isText, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
