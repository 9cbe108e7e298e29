package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"whatsapp-automation/internal/apperr"
	"whatsapp-automation/internal/middleware"
	"whatsapp-automation/internal/tenant"
	wire "whatsapp-automation/pkg/models"

	"github.com/gin-gonic/gin"
	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"
)

const EventReceived = "EVENT_RECEIVED"

type TenantResolver interface {
	Resolve(ctx context.Context, accountID string) (*tenant.Context, error)
}

type Handler struct {
	tenants TenantResolver
	router  *Router
	maxBody int64
	log     *zap.Logger
}

func NewHandler(tenants TenantResolver, router *Router, maxBody int64, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{tenants: tenants, router: router, maxBody: maxBody, log: log}
}

// RegisterRoutes mounts the webhook endpoints. Other methods on these paths get 405
// when the engine has HandleMethodNotAllowed set.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	limit := middleware.BodyLimit(h.maxBody)
	r.GET("/webhook/:accountId", h.VerifyWebhook)
	r.POST("/webhook", limit, h.HandleMessage)
	r.POST("/webhook/:accountId", limit, h.HandleMessage)
}

// VerifyWebhook answers the provider's subscription challenge with the tenant's secret as verify token.
func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := queryAny(c, "hub.mode", "mode")
	token := queryAny(c, "hub.verify_token", "verify_token")
	challenge := queryAny(c, "hub.challenge", "challenge")

	tc, err := h.tenants.Resolve(c.Request.Context(), c.Param("accountId"))
	if err != nil {
		if !tenant.IsNotFound(err) {
			h.log.Error("tenant lookup failed during verification", zap.Error(err))
			respondError(c, err)
			return
		}
		c.Status(http.StatusForbidden)
		return
	}

	if mode == "subscribe" && subtle.ConstantTimeCompare([]byte(token), []byte(tc.Secret())) == 1 && tc.Secret() != "" {
		h.log.Info("webhook verified", zap.String("tenant_id", tc.TenantID))
		c.String(http.StatusOK, challenge)
		return
	}
	h.log.Warn("webhook verification rejected", zap.String("tenant_id", tc.TenantID), zap.String("mode", mode))
	c.Status(http.StatusForbidden)
}

// HandleMessage authenticates, attributes and processes a webhook batch. Once the
// batch is accepted the response is 200 even when some items fail.
func (h *Handler) HandleMessage(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		respondError(c, apperr.Wrap(err, goerrors.CategoryBadInput, "read body", nil))
		return
	}

	signature := c.GetHeader(SignatureHeader)
	if signature == "" {
		respondError(c, apperr.New("missing signature", goerrors.CategoryAuth, nil))
		return
	}

	// With the account id in the path the signature is checked before the body is parsed.
	accountID := c.Param("accountId")
	var tc *tenant.Context
	if accountID != "" {
		if tc, err = h.authenticate(ctx, accountID, body, signature); err != nil {
			respondError(c, err)
			return
		}
	}

	var payload wire.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		respondError(c, apperr.Wrap(err, goerrors.CategoryBadInput, "body is not valid JSON", nil))
		return
	}
	if len(payload.Entry) == 0 {
		respondError(c, apperr.New("payload has no entries", goerrors.CategoryBadInput, nil))
		return
	}

	if tc == nil {
		if tc, err = h.authenticate(ctx, payloadAccountID(payload), body, signature); err != nil {
			respondError(c, err)
			return
		}
	}

	correlationID := c.GetString(middleware.RequestIDKey)
	if failed := h.router.Dispatch(ctx, tc, payload, correlationID); failed > 0 {
		h.log.Warn("webhook batch processed with failures",
			zap.String("tenant_id", tc.TenantID),
			zap.Int("failed", failed))
	}
	c.String(http.StatusOK, EventReceived)
}

// authenticate resolves the tenant for accountID and checks the body's signature against its secret.
func (h *Handler) authenticate(ctx context.Context, accountID string, body []byte, signature string) (*tenant.Context, error) {
	tc, err := h.tenants.Resolve(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !Verify(body, signature, tc.Secret()) {
		h.log.Warn("invalid webhook signature", zap.String("tenant_id", tc.TenantID))
		return nil, apperr.New("invalid signature", goerrors.CategoryAuth, map[string]any{"tenant_id": tc.TenantID})
	}
	return tc, nil
}

// payloadAccountID is the first change's phone number id, or the first entry's
// WABA id for batches without one (template updates).
func payloadAccountID(payload wire.WebhookPayload) string {
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if id := change.Value.Metadata.PhoneNumberID; id != "" {
				return id
			}
		}
	}
	for _, entry := range payload.Entry {
		if entry.ID != "" {
			return entry.ID
		}
	}
	return ""
}

func queryAny(c *gin.Context, keys ...string) string {
	for _, k := range keys {
		if v := c.Query(k); v != "" {
			return v
		}
	}
	return ""
}

func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(apperr.CategoryOf(err))
	body := gin.H{"error": err.Error()}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		body["error"] = rich.Message
		if rich.TextCode != "" {
			body["code"] = rich.TextCode
		}
	}
	c.AbortWithStatusJSON(status, body)
}
