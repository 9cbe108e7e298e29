package conversation

import (
	"context"
	"testing"
	"time"

	"whatsapp-automation/internal/database"
	"whatsapp-automation/internal/database/dbtest"
	"whatsapp-automation/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"
)

func TestResolveContact(t *testing.T) {
	store := dbtest.NewStore(t)
	resolver := NewResolver(store, zaptest.NewLogger(t))
	ctx := context.Background()

	t.Run("creates with unknown name when no profile", func(t *testing.T) {
		contact, err := resolver.ResolveContact(ctx, "t1", "5511000", "")
		require.NoError(t, err)
		assert.Equal(t, models.UnknownContactName, contact.Name)
	})

	t.Run("backfills unknown name", func(t *testing.T) {
		contact, err := resolver.ResolveContact(ctx, "t1", "5511000", "Ana")
		require.NoError(t, err)
		assert.Equal(t, "Ana", contact.Name)

		stored, err := store.FindContactByPhone(ctx, "t1", "5511000")
		require.NoError(t, err)
		assert.Equal(t, "Ana", stored.Name)
	})

	t.Run("keeps a real name", func(t *testing.T) {
		contact, err := resolver.ResolveContact(ctx, "t1", "5511000", "Someone Else")
		require.NoError(t, err)
		assert.Equal(t, "Ana", contact.Name)
	})

	t.Run("is stable and tenant scoped", func(t *testing.T) {
		first, err := resolver.ResolveContact(ctx, "t1", "5511222", "Bia")
		require.NoError(t, err)
		second, err := resolver.ResolveContact(ctx, "t1", "5511222", "Bia")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		other, err := resolver.ResolveContact(ctx, "t2", "5511222", "Bia")
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, other.ID)
	})
}

func TestResolveConversation(t *testing.T) {
	store := dbtest.NewStore(t)
	resolver := NewResolver(store, zaptest.NewLogger(t))
	ctx := context.Background()

	first, err := resolver.ResolveConversation(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, models.ConversationOpen, first.Status)

	again, err := resolver.ResolveConversation(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	require.NoError(t, store.DB().Model(&models.Conversation{}).
		Where("id = ?", first.ID).Update("status", models.ConversationClosed).Error)

	reopened, err := resolver.ResolveConversation(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, reopened.ID)
}

func newConversation(t *testing.T, store *database.Store) *models.Conversation {
	t.Helper()
	conv := &models.Conversation{TenantID: "t1", ContactID: "c1", Status: models.ConversationOpen}
	require.NoError(t, store.CreateConversation(context.Background(), conv))
	return conv
}

func inboundMessage(id string, at time.Time) *models.Message {
	return &models.Message{
		ID: id, TenantID: "t1", Type: "text",
		Content: datatypes.JSON(`{"body":"oi"}`), Timestamp: at,
	}
}

func TestRecordInbound(t *testing.T) {
	store := dbtest.NewStore(t)
	writer := NewWriter(store, zaptest.NewLogger(t))
	ctx := context.Background()
	conv := newConversation(t, store)

	now := time.Now().UTC().Truncate(time.Second)
	msg := inboundMessage("wamid.1", now)
	msg.ConversationID = conv.ID

	inserted, err := writer.RecordInbound(ctx, conv, msg, "oi", models.Cursor{FlowID: "f1", StepID: "2"})
	require.NoError(t, err)
	assert.True(t, inserted)

	stored, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "oi", stored.LastMessage)
	assert.Equal(t, 1, stored.UnreadCount)
	assert.Equal(t, models.Cursor{FlowID: "f1", StepID: "2"}, stored.Cursor())

	t.Run("duplicate id is ignored", func(t *testing.T) {
		dup := inboundMessage("wamid.1", now)
		dup.ConversationID = conv.ID
		inserted, err := writer.RecordInbound(ctx, conv, dup, "oi again", models.Cursor{})
		require.NoError(t, err)
		assert.False(t, inserted)

		stored, err := store.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.UnreadCount)
		assert.True(t, stored.Cursor().IsActive())
	})

	t.Run("older message does not replace the summary", func(t *testing.T) {
		old := inboundMessage("wamid.0", now.Add(-time.Minute))
		old.ConversationID = conv.ID
		_, err := writer.RecordInbound(ctx, conv, old, "older", models.Cursor{})
		require.NoError(t, err)

		stored, err := store.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, "oi", stored.LastMessage)
		assert.Equal(t, 2, stored.UnreadCount)
		assert.False(t, stored.Cursor().IsActive())
	})
}

func TestRecordInbound_RetriesOnVersionConflict(t *testing.T) {
	store := dbtest.NewStore(t)
	writer := NewWriter(store, zaptest.NewLogger(t))
	ctx := context.Background()
	conv := newConversation(t, store)

	// a concurrent writer bumps the version behind our back
	other, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	other.UnreadCount = 5
	require.NoError(t, store.UpdateConversation(ctx, other))

	msg := inboundMessage("wamid.1", time.Now().UTC())
	msg.ConversationID = conv.ID
	_, err = writer.RecordInbound(ctx, conv, msg, "oi", models.Cursor{})
	require.NoError(t, err)

	stored, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, stored.UnreadCount)
	assert.Equal(t, 3, stored.Version)
}

func TestRecordOutbound(t *testing.T) {
	store := dbtest.NewStore(t)
	writer := NewWriter(store, zaptest.NewLogger(t))
	ctx := context.Background()
	conv := newConversation(t, store)
	conv.SetCursor(models.Cursor{FlowID: "f1", StepID: "3"})
	require.NoError(t, store.UpdateConversation(ctx, conv))

	msg := &models.Message{
		ID: "wamid.OUT", TenantID: "t1", ConversationID: conv.ID, Type: "text",
		Content: datatypes.JSON(`{"body":"hello"}`), Timestamp: time.Now().UTC(),
	}
	require.NoError(t, writer.RecordOutbound(ctx, conv, msg, "hello"))

	stored, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.LastMessage)
	assert.Equal(t, 0, stored.UnreadCount)
	assert.Equal(t, models.Cursor{FlowID: "f1", StepID: "3"}, stored.Cursor())

	out, err := store.FindMessage(ctx, "wamid.OUT")
	require.NoError(t, err)
	assert.Equal(t, models.DirectionOutbound, out.Direction)
	assert.Equal(t, StatusSent, out.Status)
}

func TestApplyStatus(t *testing.T) {
	store := dbtest.NewStore(t)
	writer := NewWriter(store, zaptest.NewLogger(t))
	ctx := context.Background()

	msg := &models.Message{
		ID: "wamid.123", TenantID: "t1", ConversationID: "conv1",
		Direction: models.DirectionOutbound, Type: "text", Status: StatusSent,
		Content: datatypes.JSON(`{}`), Timestamp: time.Now().UTC(),
	}
	_, err := store.InsertMessage(ctx, msg)
	require.NoError(t, err)

	at := time.Now().UTC().Truncate(time.Second)
	status := func() string {
		stored, err := store.FindMessage(ctx, "wamid.123")
		require.NoError(t, err)
		return stored.Status
	}

	applied, err := writer.ApplyStatus(ctx, "wamid.123", StatusRead, at)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, StatusRead, status())

	t.Run("replay is idempotent", func(t *testing.T) {
		applied, err := writer.ApplyStatus(ctx, "wamid.123", StatusRead, at)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, StatusRead, status())
	})

	t.Run("never regresses", func(t *testing.T) {
		_, err := writer.ApplyStatus(ctx, "wamid.123", StatusDelivered, at)
		require.NoError(t, err)
		assert.Equal(t, StatusRead, status())
	})

	t.Run("unknown id is dropped without error", func(t *testing.T) {
		applied, err := writer.ApplyStatus(ctx, "wamid.999", StatusRead, at)
		assert.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("failed is terminal", func(t *testing.T) {
		_, err := writer.ApplyStatus(ctx, "wamid.123", StatusFailed, at)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, status())
		_, err = writer.ApplyStatus(ctx, "wamid.123", StatusRead, at)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, status())
	})
}

func TestAdvances(t *testing.T) {
	assert.True(t, advances("", StatusSent))
	assert.True(t, advances(StatusSent, StatusDelivered))
	assert.True(t, advances(StatusSent, StatusRead))
	assert.False(t, advances(StatusRead, StatusRead))
	assert.False(t, advances(StatusRead, StatusSent))
	assert.True(t, advances(StatusRead, StatusFailed))
	assert.False(t, advances(StatusFailed, StatusFailed))
	assert.False(t, advances(StatusSent, "deleted"))
}

func TestClearCursor(t *testing.T) {
	store := dbtest.NewStore(t)
	writer := NewWriter(store, zaptest.NewLogger(t))
	ctx := context.Background()

	conv := newConversation(t, store)
	conv.SetCursor(models.Cursor{FlowID: "f1", StepID: "3"})
	require.NoError(t, store.UpdateConversation(ctx, conv))

	_, err := writer.ClearCursor(ctx, "t2", conv.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)

	cleared, err := writer.ClearCursor(ctx, "t1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Cursor{FlowID: "f1", StepID: "3"}, cleared)

	stored, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, stored.Cursor().IsActive())

	cleared, err = writer.ClearCursor(ctx, "t1", conv.ID)
	require.NoError(t, err)
	assert.False(t, cleared.IsActive())

	_, err = writer.ClearCursor(ctx, "t1", "missing")
	assert.ErrorIs(t, err, database.ErrNotFound)
}
