package tenant

import (
	"context"
	"errors"
	"strings"

	"whatsapp-automation/internal/apperr"
	"whatsapp-automation/internal/database"
	"whatsapp-automation/internal/models"
	"whatsapp-automation/internal/whatsapp"

	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"
)

// Context is everything tenant-specific a request needs. Built once per request.
type Context struct {
	TenantID    string
	Integration *models.Integration
	Client      *whatsapp.Client
}

// Secret is the shared secret for signatures and verification challenges.
func (c *Context) Secret() string {
	return c.Integration.WebhookSecret
}

type IntegrationStore interface {
	FindIntegration(ctx context.Context, accountID string) (*models.Integration, error)
}

type Resolver struct {
	store   IntegrationStore
	clients *whatsapp.Factory
	log     *zap.Logger
}

func NewResolver(store IntegrationStore, clients *whatsapp.Factory, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{store: store, clients: clients, log: log}
}

// Resolve maps a phone number id or WABA id to its tenant. Unknown accounts and
// integrations that are not connected resolve to a not-found error.
func (r *Resolver) Resolve(ctx context.Context, accountID string) (*Context, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, r.notFound(accountID, "empty account id")
	}

	integration, err := r.store.FindIntegration(ctx, accountID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, r.notFound(accountID, "no integration")
	}
	if err != nil {
		return nil, apperr.Wrap(err, goerrors.CategoryInternal, "lookup integration", map[string]any{
			"account_id": accountID,
		})
	}
	if !integration.Enabled() {
		return nil, r.notFound(accountID, "integration "+integration.Status)
	}

	return &Context{
		TenantID:    integration.TenantID,
		Integration: integration,
		Client:      r.clients.ForIntegration(integration),
	}, nil
}

func (r *Resolver) notFound(accountID, reason string) error {
	r.log.Warn("tenant not resolved",
		zap.String("account_id", accountID),
		zap.String("reason", reason),
	)
	return apperr.New("tenant not found", goerrors.CategoryNotFound, map[string]any{
		"account_id": accountID,
	})
}

func IsNotFound(err error) bool {
	return apperr.Is(err, goerrors.CategoryNotFound)
}
