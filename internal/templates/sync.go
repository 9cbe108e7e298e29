package templates

import (
	"context"
	"strings"

	"whatsapp-automation/internal/apperr"
	"whatsapp-automation/internal/events"
	wire "whatsapp-automation/pkg/models"

	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"
)

type Store interface {
	UpdateTemplateStatus(ctx context.Context, tenantID, name, language, status, reason string) (int64, error)
}

// Synchronizer applies provider template lifecycle events to stored templates.
type Synchronizer struct {
	store  Store
	events events.Publisher
	log    *zap.Logger
}

func NewSynchronizer(store Store, publisher events.Publisher, log *zap.Logger) *Synchronizer {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Synchronizer{store: store, events: publisher, log: log}
}

// NormalizeStatus maps a provider event name to the stored status.
func NormalizeStatus(event string) string {
	switch strings.ToUpper(strings.TrimSpace(event)) {
	case "APPROVED", "REINSTATED":
		return "approved"
	case "REJECTED":
		return "rejected"
	case "PENDING":
		return "pending"
	case "DISABLED":
		return "disabled"
	case "PAUSED":
		return "paused"
	default:
		return strings.ToLower(strings.TrimSpace(event))
	}
}

// Apply updates the tenant's templates matching the update's name and language.
// An empty language updates every language of the name. Unknown templates are
// logged and skipped.
func (s *Synchronizer) Apply(ctx context.Context, tenantID, correlationID string, update wire.TemplateStatusUpdate) error {
	name := strings.TrimSpace(update.MessageTemplateName)
	if name == "" {
		return apperr.New("template status update without a template name", goerrors.CategoryBadInput, map[string]any{
			"tenant_id": tenantID,
		})
	}
	status := NormalizeStatus(update.Event)
	if status == "" {
		return apperr.New("template status update without an event", goerrors.CategoryBadInput, map[string]any{
			"tenant_id": tenantID,
			"template":  name,
		})
	}

	updated, err := s.store.UpdateTemplateStatus(ctx, tenantID, name, update.MessageTemplateLanguage, status, update.Reason)
	if err != nil {
		return apperr.Wrap(err, goerrors.CategoryInternal, "update template status", map[string]any{
			"tenant_id": tenantID,
			"template":  name,
		})
	}

	log := s.log.With(
		zap.String("tenant_id", tenantID),
		zap.String("template", name),
		zap.String("language", update.MessageTemplateLanguage),
		zap.String("status", status),
	)
	if updated == 0 {
		log.Info("template status update for unknown template")
		return nil
	}
	log.Info("template status updated", zap.Int64("rows", updated))

	env := events.New(events.TypeTemplateStatus, tenantID, correlationID, events.TemplateStatusV1{
		TemplateID: update.TemplateID(),
		Name:       name,
		Language:   update.MessageTemplateLanguage,
		Status:     status,
		Reason:     update.Reason,
	})
	if err := s.events.Publish(ctx, env); err != nil {
		log.Warn("failed to publish template event", zap.Error(err))
	}
	return nil
}
