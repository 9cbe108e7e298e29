package webhook

import (
	"context"
	"fmt"

	"whatsapp-automation/internal/apperr"
	"whatsapp-automation/internal/templates"
	"whatsapp-automation/internal/tenant"
	wire "whatsapp-automation/pkg/models"

	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"
)

// Router dispatches the changes of a webhook batch to the message, status and
// template paths. A failing or panicking item is logged and the batch goes on.
type Router struct {
	pipeline  *Pipeline
	templates *templates.Synchronizer
	log       *zap.Logger
}

func NewRouter(pipeline *Pipeline, sync *templates.Synchronizer, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{pipeline: pipeline, templates: sync, log: log}
}

// Dispatch processes every change of the payload for the resolved tenant and
// returns the number of items that failed.
func (r *Router) Dispatch(ctx context.Context, tc *tenant.Context, payload wire.WebhookPayload, correlationID string) int {
	failed := 0
	for _, entry := range payload.Entry {
		seen := make(map[string]bool)
		for _, change := range entry.Changes {
			phoneID := change.Value.Metadata.PhoneNumberID
			if phoneID != "" && phoneID != tc.Integration.PhoneNumberID {
				r.log.Warn("change for another phone number skipped",
					zap.String("tenant_id", tc.TenantID),
					zap.String("phone_number_id", phoneID))
				continue
			}

			for _, msg := range change.Value.Messages {
				if seen[msg.ID] {
					continue
				}
				seen[msg.ID] = true
				msg := msg
				name := profileName(change.Value.Contacts, msg.From)
				failed += r.run(tc, "message", msg.ID, func() error {
					return r.pipeline.ProcessMessage(ctx, tc, msg, name, correlationID)
				})
			}

			for _, st := range change.Value.Statuses {
				st := st
				failed += r.run(tc, "status", st.ID, func() error {
					return r.pipeline.ProcessStatus(ctx, tc, st, correlationID)
				})
			}

			if update := change.TemplateUpdate(); update != nil {
				failed += r.run(tc, "template", update.MessageTemplateName, func() error {
					return r.templates.Apply(ctx, tc.TenantID, correlationID, *update)
				})
			}
		}
	}
	return failed
}

// run calls fn, turning errors and panics into a log line. Returns 1 on failure.
func (r *Router) run(tc *tenant.Context, kind, id string, fn func() error) (failed int) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic while processing webhook item",
				zap.String("tenant_id", tc.TenantID),
				zap.String("kind", kind),
				zap.String("id", id),
				zap.Any("panic", rec),
				zap.Stack("stack"))
			failed = 1
		}
	}()

	err := fn()
	if err == nil {
		return 0
	}
	fields := []zap.Field{
		zap.String("tenant_id", tc.TenantID),
		zap.String("kind", kind),
		zap.String("id", id),
		zap.String("category", fmt.Sprint(apperr.CategoryOf(err))),
		zap.Error(err),
	}
	if apperr.Is(err, goerrors.CategoryBadInput) {
		r.log.Warn("webhook item rejected", fields...)
	} else {
		r.log.Error("webhook item failed", fields...)
	}
	return 1
}

// profileName picks the sender's profile name from the change's contact list.
func profileName(contacts []wire.WebhookContact, from string) string {
	for _, c := range contacts {
		if c.WaID == from {
			return c.Profile.Name
		}
	}
	if len(contacts) == 1 {
		return contacts[0].Profile.Name
	}
	return ""
}
