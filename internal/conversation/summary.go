package conversation

import (
	"strings"

	wire "whatsapp-automation/pkg/models"
)

// Summary renders the one-line "last message" preview for an inbound message.
func Summary(msg wire.Message) string {
	switch msg.Type {
	case "text":
		if msg.Text != nil {
			return msg.Text.Body
		}
	case "image":
		return captionOr(msg.Image, "Image")
	case "video":
		return captionOr(msg.Video, "Video")
	case "audio":
		return "Audio"
	case "document":
		if msg.Document != nil && msg.Document.Filename != "" {
			return msg.Document.Filename
		}
		return "Document"
	case "sticker":
		return "Sticker"
	case "location":
		if msg.Location != nil && msg.Location.Name != "" {
			return msg.Location.Name
		}
		return "Location"
	case "interactive":
		if msg.Interactive != nil {
			if title := msg.Interactive.Title(); title != "" {
				return title
			}
		}
	case "button":
		if msg.Button != nil {
			return msg.Button.Text
		}
	case "reaction":
		if msg.Reaction != nil {
			return msg.Reaction.Emoji
		}
	case "contacts":
		return "Contact"
	}
	return "[" + msg.Type + "]"
}

func captionOr(media *wire.MediaMessage, placeholder string) string {
	if media != nil && strings.TrimSpace(media.Caption) != "" {
		return media.Caption
	}
	return placeholder
}

// Text returns what the contact typed or picked, and whether msg carries such text.
// Button and list replies count as text so they can answer prompts and trigger flows.
func Text(msg wire.Message) (string, bool) {
	switch msg.Type {
	case "text":
		if msg.Text != nil {
			return msg.Text.Body, true
		}
	case "interactive":
		if msg.Interactive != nil {
			if title := msg.Interactive.Title(); title != "" {
				return title, true
			}
		}
	case "button":
		if msg.Button != nil && msg.Button.Text != "" {
			return msg.Button.Text, true
		}
	}
	return "", false
}
