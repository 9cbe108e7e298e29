package webhook

import (
	"context"
	"time"

	"whatsapp-automation/internal/apperr"
	"whatsapp-automation/internal/automation"
	"whatsapp-automation/internal/conversation"
	"whatsapp-automation/internal/events"
	"whatsapp-automation/internal/media"
	"whatsapp-automation/internal/models"
	"whatsapp-automation/internal/tenant"
	wire "whatsapp-automation/pkg/models"

	goerrors "github.com/goliatone/go-errors"
	"github.com/moby/locker"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type MessageIndex interface {
	MessageExists(ctx context.Context, id string) (bool, error)
}

// Pipeline turns one inbound message or status into stored state and flow progress.
type Pipeline struct {
	messages MessageIndex
	media    *media.Resolver
	contacts *conversation.Resolver
	writer   *conversation.Writer
	engine   *automation.Engine
	events   events.Publisher
	locks    *locker.Locker
	now      func() time.Time
	log      *zap.Logger
}

type PipelineDeps struct {
	Messages MessageIndex
	Media    *media.Resolver
	Contacts *conversation.Resolver
	Writer   *conversation.Writer
	Engine   *automation.Engine
	Events   events.Publisher
}

func NewPipeline(deps PipelineDeps, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	return &Pipeline{
		messages: deps.Messages,
		media:    deps.Media,
		contacts: deps.Contacts,
		writer:   deps.Writer,
		engine:   deps.Engine,
		events:   deps.Events,
		locks:    locker.New(),
		now:      func() time.Time { return time.Now().UTC() },
		log:      log,
	}
}

// ProcessMessage handles one inbound message. Messages from the same contact of a
// tenant are processed one at a time.
func (p *Pipeline) ProcessMessage(ctx context.Context, tc *tenant.Context, msg wire.Message, profileName, correlationID string) error {
	if msg.ID == "" || msg.From == "" {
		return apperr.New("message without id or sender", goerrors.CategoryBadInput, map[string]any{
			"tenant_id": tc.TenantID,
			"type":      msg.Type,
		})
	}
	log := p.log.With(
		zap.String("tenant_id", tc.TenantID),
		zap.String("message_id", msg.ID),
		zap.String("type", msg.Type),
	)

	key := tc.TenantID + ":" + msg.From
	p.locks.Lock(key)
	defer func() { _ = p.locks.Unlock(key) }()

	exists, err := p.messages.MessageExists(ctx, msg.ID)
	if err != nil {
		return apperr.Wrap(err, goerrors.CategoryInternal, "check message id", map[string]any{"message_id": msg.ID})
	}
	if exists {
		log.Info("provider retry of a stored message skipped")
		return nil
	}

	var mediaURL string
	if attachment := msg.Media(); attachment != nil && attachment.ID != "" && tc.Client != nil {
		mediaURL = p.media.Resolve(ctx, tc.TenantID, tc.Client, attachment.ID)
	}

	contact, err := p.contacts.ResolveContact(ctx, tc.TenantID, msg.From, profileName)
	if err != nil {
		return apperr.Wrap(err, goerrors.CategoryInternal, "resolve contact", map[string]any{"message_id": msg.ID})
	}
	conv, err := p.contacts.ResolveConversation(ctx, tc.TenantID, contact.ID)
	if err != nil {
		return apperr.Wrap(err, goerrors.CategoryInternal, "resolve conversation", map[string]any{"message_id": msg.ID})
	}

	sender := &outboundSender{
		writer:   p.writer,
		conv:     conv,
		tenantID: tc.TenantID,
		now:      p.now,
		log:      log,
	}
	if tc.Client != nil {
		sender.client = tc.Client
	}

	text, isText := conversation.Text(msg)
	cursor, flowErr := p.engine.Process(ctx, automation.Turn{
		TenantID:      tc.TenantID,
		CorrelationID: correlationID,
		Conversation:  conv,
		Contact:       contact,
		Text:          text,
		IsText:        isText,
		Sender:        sender,
	})
	if flowErr != nil {
		if apperr.Is(flowErr, goerrors.CategoryOperation) {
			log.Warn("flow terminated", zap.String("conversation_id", conv.ID), zap.Error(flowErr))
		} else {
			log.Error("flow processing failed", zap.String("conversation_id", conv.ID), zap.Error(flowErr))
		}
	}

	summary := conversation.Summary(msg)
	record := &models.Message{
		ID:             msg.ID,
		TenantID:       tc.TenantID,
		ConversationID: conv.ID,
		Type:           msg.Type,
		Content:        datatypes.JSON(msg.Content()),
		Timestamp:      msg.Time(p.now()),
	}
	if mediaURL != "" {
		record.MediaURL = &mediaURL
	}

	inserted, err := p.writer.RecordInbound(ctx, conv, record, summary, cursor)
	if err != nil {
		return apperr.Wrap(err, goerrors.CategoryInternal, "record inbound message", map[string]any{"message_id": msg.ID})
	}
	if !inserted {
		return nil
	}

	p.publish(ctx, log, events.New(events.TypeMessageReceived, tc.TenantID, correlationID, events.MessageReceivedV1{
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		ContactID:      contact.ID,
		Phone:          contact.Phone,
		Kind:           msg.Type,
		Summary:        summary,
		MediaURL:       mediaURL,
		AtProvider:     record.Timestamp,
	}))
	return nil
}

// ProcessStatus applies a delivery status update.
func (p *Pipeline) ProcessStatus(ctx context.Context, tc *tenant.Context, st wire.Status, correlationID string) error {
	if st.ID == "" {
		return apperr.New("status without message id", goerrors.CategoryBadInput, map[string]any{
			"tenant_id": tc.TenantID,
		})
	}
	at := st.Time(p.now())
	applied, err := p.writer.ApplyStatus(ctx, st.ID, st.Status, at)
	if err != nil {
		return apperr.Wrap(err, goerrors.CategoryInternal, "apply status", map[string]any{"message_id": st.ID})
	}
	if !applied {
		return nil
	}

	p.publish(ctx, p.log, events.New(events.TypeMessageStatus, tc.TenantID, correlationID, events.MessageStatusV1{
		MessageID: st.ID,
		Status:    st.Status,
		At:        at,
	}))
	return nil
}

func (p *Pipeline) publish(ctx context.Context, log *zap.Logger, env events.Envelope) {
	if err := p.events.Publish(ctx, env); err != nil {
		log.Warn("failed to publish event", zap.String("type", env.Meta.Type), zap.Error(err))
	}
}
