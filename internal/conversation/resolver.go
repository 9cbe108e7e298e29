package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"whatsapp-automation/internal/database"
	"whatsapp-automation/internal/models"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Store interface {
	FindContactByPhone(ctx context.Context, tenantID, phone string) (*models.Contact, error)
	CreateContact(ctx context.Context, contact *models.Contact) error
	UpdateContact(ctx context.Context, contact *models.Contact, columns ...string) error

	FindOpenConversation(ctx context.Context, tenantID, contactID string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	UpdateConversation(ctx context.Context, conv *models.Conversation) error

	InsertMessage(ctx context.Context, msg *models.Message) (bool, error)
	FindMessage(ctx context.Context, id string) (*models.Message, error)
	UpdateMessageStatus(ctx context.Context, id, status string, at time.Time) error
}

// Resolver finds or creates the contact and its open thread.
type Resolver struct {
	store Store
	log   *zap.Logger
}

func NewResolver(store Store, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{store: store, log: log}
}

// ResolveContact matches the phone exactly within the tenant. A stored "Unknown"
// name is replaced once a profile name arrives.
func (r *Resolver) ResolveContact(ctx context.Context, tenantID, phone, profileName string) (*models.Contact, error) {
	profileName = strings.TrimSpace(profileName)

	contact, err := r.store.FindContactByPhone(ctx, tenantID, phone)
	if errors.Is(err, database.ErrNotFound) {
		return r.createContact(ctx, tenantID, phone, profileName)
	}
	if err != nil {
		return nil, fmt.Errorf("find contact: %w", err)
	}

	if contact.Name == models.UnknownContactName && profileName != "" {
		contact.Name = profileName
		if err := r.store.UpdateContact(ctx, contact, "name"); err != nil {
			return nil, fmt.Errorf("backfill contact name: %w", err)
		}
	}
	return contact, nil
}

func (r *Resolver) createContact(ctx context.Context, tenantID, phone, profileName string) (*models.Contact, error) {
	name := profileName
	if name == "" {
		name = models.UnknownContactName
	}
	contact := &models.Contact{
		TenantID: tenantID,
		Phone:    phone,
		Name:     name,
		Tags:     datatypes.NewJSONType([]string{}),
		FlowData: datatypes.NewJSONType(map[string]string{}),
	}
	if err := r.store.CreateContact(ctx, contact); err != nil {
		// another process may have created it between our read and write
		if existing, findErr := r.store.FindContactByPhone(ctx, tenantID, phone); findErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create contact: %w", err)
	}
	r.log.Info("contact created",
		zap.String("tenant_id", tenantID),
		zap.String("contact_id", contact.ID),
	)
	return contact, nil
}

// ResolveConversation returns the first open or pending thread, creating an open one if none exists.
func (r *Resolver) ResolveConversation(ctx context.Context, tenantID, contactID string) (*models.Conversation, error) {
	conv, err := r.store.FindOpenConversation(ctx, tenantID, contactID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("find conversation: %w", err)
	}

	conv = &models.Conversation{
		TenantID:  tenantID,
		ContactID: contactID,
		Status:    models.ConversationOpen,
		Version:   1,
	}
	if err := r.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	r.log.Info("conversation created",
		zap.String("tenant_id", tenantID),
		zap.String("conversation_id", conv.ID),
	)
	return conv, nil
}
