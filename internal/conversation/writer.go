package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whatsapp-automation/internal/apperr"
	"whatsapp-automation/internal/database"
	"whatsapp-automation/internal/models"

	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"
)

const maxUpdateAttempts = 3

const (
	StatusReceived  = "received"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

var statusRank = map[string]int{
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// Writer appends messages and keeps the conversation summary and delivery status current.
type Writer struct {
	store Store
	log   *zap.Logger
}

func NewWriter(store Store, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{store: store, log: log}
}

// RecordInbound stores msg, refreshes the summary, bumps the unread count and writes
// the flow cursor. A message id that is already stored is ignored and reports false.
func (w *Writer) RecordInbound(ctx context.Context, conv *models.Conversation, msg *models.Message, summary string, cursor models.Cursor) (bool, error) {
	msg.Direction = models.DirectionInbound
	if msg.Status == "" {
		msg.Status = StatusReceived
	}
	inserted, err := w.store.InsertMessage(ctx, msg)
	if err != nil {
		return false, fmt.Errorf("insert inbound message: %w", err)
	}
	if !inserted {
		w.log.Info("duplicate inbound message ignored", zap.String("message_id", msg.ID))
		return false, nil
	}

	err = w.updateConversation(ctx, conv, func(c *models.Conversation) {
		applySummary(c, summary, msg.Timestamp)
		c.UnreadCount++
		c.SetCursor(cursor)
	})
	return true, err
}

// RecordOutbound stores a message we sent. The unread count and cursor are untouched.
func (w *Writer) RecordOutbound(ctx context.Context, conv *models.Conversation, msg *models.Message, summary string) error {
	msg.Direction = models.DirectionOutbound
	if msg.Status == "" {
		msg.Status = StatusSent
	}
	inserted, err := w.store.InsertMessage(ctx, msg)
	if err != nil {
		return fmt.Errorf("insert outbound message: %w", err)
	}
	if !inserted {
		return nil
	}

	return w.updateConversation(ctx, conv, func(c *models.Conversation) {
		applySummary(c, summary, msg.Timestamp)
	})
}

// ApplyStatus moves a message's delivery status forward. Statuses for unknown ids
// are logged and dropped. Replays and regressions leave the stored status as is.
func (w *Writer) ApplyStatus(ctx context.Context, messageID, status string, at time.Time) (bool, error) {
	msg, err := w.store.FindMessage(ctx, messageID)
	if errors.Is(err, database.ErrNotFound) {
		w.log.Warn("status for unknown message dropped",
			zap.String("message_id", messageID),
			zap.String("status", status),
		)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find message: %w", err)
	}

	if !advances(msg.Status, status) {
		w.log.Debug("status not applied",
			zap.String("message_id", messageID),
			zap.String("current", msg.Status),
			zap.String("status", status),
		)
		return false, nil
	}

	if err := w.store.UpdateMessageStatus(ctx, messageID, status, at); err != nil {
		return false, fmt.Errorf("update message status: %w", err)
	}
	return true, nil
}

// ClearCursor ends the conversation's active flow and returns the cursor it cleared,
// zero when no flow was active. Conversations of other tenants are not found.
func (w *Writer) ClearCursor(ctx context.Context, tenantID, conversationID string) (models.Cursor, error) {
	conv, err := w.store.GetConversation(ctx, conversationID)
	if err != nil {
		return models.Cursor{}, err
	}
	if conv.TenantID != tenantID {
		return models.Cursor{}, database.ErrNotFound
	}
	if !conv.Cursor().IsActive() {
		return models.Cursor{}, nil
	}

	var cleared models.Cursor
	err = w.updateConversation(ctx, conv, func(c *models.Conversation) {
		cleared = c.Cursor()
		c.SetCursor(models.Cursor{})
	})
	if err != nil {
		return models.Cursor{}, err
	}
	return cleared, nil
}

// advances reports whether next moves current forward in sent < delivered < read.
// failed can follow any status except itself and nothing follows it.
func advances(current, next string) bool {
	if current == StatusFailed {
		return false
	}
	if next == StatusFailed {
		return true
	}
	nextRank, ok := statusRank[next]
	if !ok {
		return false
	}
	return nextRank > statusRank[current]
}

// applySummary only moves the preview forward in time.
func applySummary(c *models.Conversation, summary string, at time.Time) {
	if c.LastMessageAt != nil && at.Before(*c.LastMessageAt) {
		return
	}
	ts := at
	c.LastMessage = summary
	c.LastMessageAt = &ts
}

// updateConversation applies mutate and saves, re-reading and re-applying on version conflicts.
func (w *Writer) updateConversation(ctx context.Context, conv *models.Conversation, mutate func(*models.Conversation)) error {
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		mutate(conv)
		err := w.store.UpdateConversation(ctx, conv)
		if err == nil {
			return nil
		}
		if !errors.Is(err, database.ErrVersionConflict) {
			return fmt.Errorf("update conversation: %w", err)
		}

		w.log.Debug("conversation version conflict, retrying",
			zap.String("conversation_id", conv.ID),
			zap.Int("attempt", attempt),
		)
		fresh, err := w.store.GetConversation(ctx, conv.ID)
		if err != nil {
			return fmt.Errorf("reload conversation: %w", err)
		}
		*conv = *fresh
	}
	return apperr.New("conversation update kept conflicting", goerrors.CategoryConflict, map[string]any{
		"conversation_id": conv.ID,
	})
}
