package webhook

import (
	"context"
	"errors"
	"time"

	"whatsapp-automation/internal/conversation"
	"whatsapp-automation/internal/models"
	"whatsapp-automation/internal/whatsapp"
	wire "whatsapp-automation/pkg/models"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

var errNoClient = errors.New("tenant has no messaging client")

// MessageSender is the provider surface flow output goes through.
type MessageSender interface {
	SendText(ctx context.Context, to, body string) (string, error)
	SendMedia(ctx context.Context, to, kind string, media whatsapp.MediaObj) (string, error)
}

// outboundSender sends flow output and records each sent message in the conversation.
type outboundSender struct {
	client   MessageSender
	writer   *conversation.Writer
	conv     *models.Conversation
	tenantID string
	now      func() time.Time
	log      *zap.Logger
}

func (s *outboundSender) SendText(ctx context.Context, to, body string) error {
	if s.client == nil {
		return errNoClient
	}
	id, err := s.client.SendText(ctx, to, body)
	if err != nil {
		return err
	}
	s.record(ctx, id, wire.Message{Type: "text", Text: &wire.TextMessage{Body: body}})
	return nil
}

// SendCanned sends a stored response. Unknown kinds are sent as text.
func (s *outboundSender) SendCanned(ctx context.Context, to string, resp *models.CannedResponse) error {
	switch resp.Kind {
	case "image", "video", "audio", "document":
	default:
		return s.SendText(ctx, to, resp.Text)
	}
	if s.client == nil {
		return errNoClient
	}

	media := whatsapp.MediaObj{Link: resp.MediaURL, Caption: resp.Caption}
	part := &wire.MediaMessage{Caption: resp.Caption}
	switch resp.Kind {
	case "audio":
		media.Caption, part.Caption = "", ""
	case "document":
		media.Filename, part.Filename = resp.Filename, resp.Filename
	}

	id, err := s.client.SendMedia(ctx, to, resp.Kind, media)
	if err != nil {
		return err
	}

	msg := wire.Message{Type: resp.Kind}
	switch resp.Kind {
	case "image":
		msg.Image = part
	case "video":
		msg.Video = part
	case "audio":
		msg.Audio = part
	case "document":
		msg.Document = part
	}
	s.record(ctx, id, msg)
	return nil
}

// record stores a sent message. A failure here does not undo the send.
func (s *outboundSender) record(ctx context.Context, id string, sent wire.Message) {
	if id == "" {
		s.log.Warn("provider returned no message id, outbound message not recorded")
		return
	}
	msg := &models.Message{
		ID:             id,
		TenantID:       s.tenantID,
		ConversationID: s.conv.ID,
		Type:           sent.Type,
		Content:        datatypes.JSON(sent.Content()),
		Timestamp:      s.now(),
	}
	if err := s.writer.RecordOutbound(ctx, s.conv, msg, conversation.Summary(sent)); err != nil {
		s.log.Error("failed to record outbound message", zap.String("message_id", id), zap.Error(err))
	}
}
