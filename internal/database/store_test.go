package database_test

import (
	"context"
	"testing"
	"time"

	"whatsapp-automation/internal/database"
	"whatsapp-automation/internal/database/dbtest"
	"whatsapp-automation/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestFindIntegration(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.DB().Create(&models.Integration{
		TenantID: "t1", Status: models.IntegrationConnected, PhoneNumberID: "PN1", WABAID: "WABA1",
	}).Error)

	byPhone, err := store.FindIntegration(ctx, "PN1")
	require.NoError(t, err)
	assert.Equal(t, "t1", byPhone.TenantID)

	byWABA, err := store.FindIntegration(ctx, "WABA1")
	require.NoError(t, err)
	assert.Equal(t, "t1", byWABA.TenantID)

	_, err = store.FindIntegration(ctx, "nope")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestContactRoundTrip(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()

	contact := &models.Contact{TenantID: "t1", Phone: "5511999", Name: models.UnknownContactName}
	require.NoError(t, store.CreateContact(ctx, contact))
	require.NotEmpty(t, contact.ID)

	contact.Tags = datatypes.NewJSONType([]string{"vip"})
	contact.FlowData = datatypes.NewJSONType(map[string]string{"idade": "18"})
	contact.Stage = "lead"
	require.NoError(t, store.UpdateContact(ctx, contact, "tags", "flow_data", "stage"))

	found, err := store.FindContactByPhone(ctx, "t1", "5511999")
	require.NoError(t, err)
	assert.Equal(t, []string{"vip"}, found.Tags.Data())
	assert.Equal(t, "18", found.FlowData.Data()["idade"])
	assert.Equal(t, "lead", found.Stage)

	_, err = store.FindContactByPhone(ctx, "t2", "5511999")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestUpdateConversation_VersionGuard(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()

	conv := &models.Conversation{TenantID: "t1", ContactID: "c1", Status: models.ConversationOpen}
	require.NoError(t, store.CreateConversation(ctx, conv))
	assert.Equal(t, 1, conv.Version)

	stale := *conv

	conv.LastMessage = "first"
	conv.SetCursor(models.Cursor{FlowID: "f1", StepID: "2"})
	require.NoError(t, store.UpdateConversation(ctx, conv))
	assert.Equal(t, 2, conv.Version)

	stale.LastMessage = "stale"
	assert.ErrorIs(t, store.UpdateConversation(ctx, &stale), database.ErrVersionConflict)

	fresh, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", fresh.LastMessage)
	assert.Equal(t, models.Cursor{FlowID: "f1", StepID: "2"}, fresh.Cursor())

	fresh.SetCursor(models.Cursor{})
	require.NoError(t, store.UpdateConversation(ctx, fresh))

	cleared, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, cleared.ActiveFlowID)
	assert.Nil(t, cleared.CurrentStepID)
}

func TestFindOpenConversation_SkipsClosed(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()

	closed := &models.Conversation{TenantID: "t1", ContactID: "c1", Status: models.ConversationClosed}
	require.NoError(t, store.CreateConversation(ctx, closed))

	_, err := store.FindOpenConversation(ctx, "t1", "c1")
	assert.ErrorIs(t, err, database.ErrNotFound)

	pending := &models.Conversation{TenantID: "t1", ContactID: "c1", Status: models.ConversationPending}
	require.NoError(t, store.CreateConversation(ctx, pending))

	found, err := store.FindOpenConversation(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, pending.ID, found.ID)
}

func TestInsertMessage_IgnoresDuplicateID(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()

	msg := &models.Message{
		ID: "wamid.1", TenantID: "t1", ConversationID: "conv1",
		Direction: models.DirectionInbound, Type: "text",
		Content: datatypes.JSON(`{"body":"oi"}`), Timestamp: time.Now().UTC(),
	}
	inserted, err := store.InsertMessage(ctx, msg)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := *msg
	dup.Content = datatypes.JSON(`{"body":"changed"}`)
	inserted, err = store.InsertMessage(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	exists, err := store.MessageExists(ctx, "wamid.1")
	require.NoError(t, err)
	assert.True(t, exists)

	stored, err := store.FindMessage(ctx, "wamid.1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"body":"oi"}`, string(stored.Content))
}

func TestPublishedFlows_CreationOrder(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"b", "a", "c"} {
		flow := &models.Flow{
			ID: id, TenantID: "t1", Status: models.FlowPublished, CreatedAt: base,
			Nodes: []models.FlowNode{{NodeID: "1", Type: "keywordTrigger", Data: datatypes.JSON(`{}`)}},
		}
		if i == 2 {
			flow.CreatedAt = base.Add(-time.Hour)
		}
		require.NoError(t, store.SaveFlow(ctx, flow))
	}
	require.NoError(t, store.SaveFlow(ctx, &models.Flow{ID: "draft", TenantID: "t1", Status: models.FlowDraft}))

	flows, err := store.PublishedFlows(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, flows, 3)
	assert.Equal(t, "c", flows[0].ID)
	assert.Equal(t, "a", flows[1].ID)
	assert.Equal(t, "b", flows[2].ID)
	assert.Len(t, flows[0].Nodes, 1)
}

func TestSaveFlow_ReplacesGraph(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()

	flow := &models.Flow{
		TenantID: "t1", Status: models.FlowPublished,
		Nodes: []models.FlowNode{
			{NodeID: "1", Type: "keywordTrigger", Data: datatypes.JSON(`{}`)},
			{NodeID: "2", Type: "message", Data: datatypes.JSON(`{"responseId":"r1"}`)},
		},
		Edges: []models.FlowEdge{{EdgeID: "e1", Source: "1", Target: "2"}},
	}
	require.NoError(t, store.SaveFlow(ctx, flow))
	require.NotEmpty(t, flow.ID)

	flow.Nodes = flow.Nodes[:1]
	flow.Edges = nil
	require.NoError(t, store.SaveFlow(ctx, flow))

	found, err := store.FindFlow(ctx, "t1", flow.ID)
	require.NoError(t, err)
	assert.Len(t, found.Nodes, 1)
	assert.Empty(t, found.Edges)

	_, err = store.FindFlow(ctx, "t2", flow.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestSaveFlow_KeepsCreatedAtOnReplace(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.SaveFlow(ctx, &models.Flow{ID: "f1", TenantID: "t1", Status: models.FlowPublished, CreatedAt: created}))

	require.NoError(t, store.SaveFlow(ctx, &models.Flow{ID: "f1", TenantID: "t1", Name: "renamed", Status: models.FlowPublished}))

	found, err := store.FindFlow(ctx, "t1", "f1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", found.Name)
	assert.True(t, created.Equal(found.CreatedAt), "created_at %s", found.CreatedAt)
}

func TestUpdateTemplateStatus(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.DB().Create(&[]models.Template{
		{TenantID: "t1", Name: "welcome", Language: "en_US", Status: "pending"},
		{TenantID: "t1", Name: "welcome", Language: "pt_BR", Status: "pending"},
		{TenantID: "t2", Name: "welcome", Language: "en_US", Status: "pending"},
	}).Error)

	n, err := store.UpdateTemplateStatus(ctx, "t1", "welcome", "en_US", "approved", "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = store.UpdateTemplateStatus(ctx, "t1", "welcome", "", "paused", "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	var other models.Template
	require.NoError(t, store.DB().Where("tenant_id = ?", "t2").First(&other).Error)
	assert.Equal(t, "pending", other.Status)
}
