package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"whatsapp-automation/internal/apperr"
	"whatsapp-automation/internal/conversation"
	"whatsapp-automation/internal/database"
	"whatsapp-automation/internal/events"
	"whatsapp-automation/internal/middleware"
	"whatsapp-automation/internal/models"

	"github.com/gin-gonic/gin"
	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

type AutomationStore interface {
	AutomationLogs(ctx context.Context, tenantID string, limit int) ([]models.AutomationLog, error)
	OutcomeCounts(ctx context.Context, tenantID string) (map[string]int64, error)
	ActiveConversations(ctx context.Context, tenantID string) ([]models.Conversation, error)
	LogFlowRun(ctx context.Context, entry *models.AutomationLog) error

	ListFlows(ctx context.Context, tenantID string) ([]models.Flow, error)
	FindFlow(ctx context.Context, tenantID, flowID string) (*models.Flow, error)
	SaveFlow(ctx context.Context, flow *models.Flow) error
}

// AutomationHandler serves the tenant-scoped automation admin routes.
type AutomationHandler struct {
	store  AutomationStore
	writer *conversation.Writer
	events events.Publisher
	log    *zap.Logger
}

func NewAutomationHandler(store AutomationStore, writer *conversation.Writer, publisher events.Publisher, log *zap.Logger) *AutomationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &AutomationHandler{store: store, writer: writer, events: publisher, log: log}
}

// RegisterRoutes mounts the admin routes under /api/:tenantId behind the bearer token.
func (h *AutomationHandler) RegisterRoutes(r gin.IRouter, token string) {
	g := r.Group("/api/:tenantId", middleware.BearerToken(token))

	g.GET("/automation/logs", h.GetLogs)
	g.GET("/automation/analytics", h.GetAnalytics)
	g.GET("/automation/sessions", h.GetActiveSessions)
	g.POST("/automation/sessions/:conversationId/terminate", h.TerminateSession)

	g.GET("/flows", h.GetFlows)
	g.POST("/flows", h.CreateFlow)
	g.GET("/flows/:id", h.GetFlow)
	g.PUT("/flows/:id", h.UpdateFlow)
}

// GetLogs returns flow audit rows, newest first
func (h *AutomationHandler) GetLogs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLogLimit)))
	if err != nil || limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	logs, err := h.store.AutomationLogs(c.Request.Context(), c.Param("tenantId"), limit)
	if err != nil {
		h.internal(c, "list automation logs", err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

// GetAnalytics returns outcome counts and the number of conversations inside a flow
func (h *AutomationHandler) GetAnalytics(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := c.Param("tenantId")

	counts, err := h.store.OutcomeCounts(ctx, tenantID)
	if err != nil {
		h.internal(c, "count automation outcomes", err)
		return
	}
	active, err := h.store.ActiveConversations(ctx, tenantID)
	if err != nil {
		h.internal(c, "list active sessions", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"triggered":       counts[models.OutcomeTriggered],
		"advanced":        counts[models.OutcomeAdvanced],
		"completed":       counts[models.OutcomeCompleted],
		"failed":          counts[models.OutcomeFailed],
		"terminated":      counts[models.OutcomeTerminated],
		"active_sessions": len(active),
	})
}

type sessionInfo struct {
	ConversationID string    `json:"conversation_id"`
	ContactID      string    `json:"contact_id"`
	FlowID         string    `json:"flow_id"`
	StepID         string    `json:"step_id"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// GetActiveSessions lists conversations that are waiting inside a flow
func (h *AutomationHandler) GetActiveSessions(c *gin.Context) {
	convs, err := h.store.ActiveConversations(c.Request.Context(), c.Param("tenantId"))
	if err != nil {
		h.internal(c, "list active sessions", err)
		return
	}

	sessions := make([]sessionInfo, 0, len(convs))
	for _, conv := range convs {
		cur := conv.Cursor()
		sessions = append(sessions, sessionInfo{
			ConversationID: conv.ID,
			ContactID:      conv.ContactID,
			FlowID:         cur.FlowID,
			StepID:         cur.StepID,
			UpdatedAt:      conv.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, sessions)
}

// TerminateSession clears a conversation's active flow
func (h *AutomationHandler) TerminateSession(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := c.Param("tenantId")
	convID := c.Param("conversationId")

	cleared, err := h.writer.ClearCursor(ctx, tenantID, convID)
	if errors.Is(err, database.ErrNotFound) {
		respondError(c, apperr.New("conversation not found", goerrors.CategoryNotFound, map[string]any{"conversation_id": convID}))
		return
	}
	if err != nil {
		h.internal(c, "terminate session", err)
		return
	}
	if !cleared.IsActive() {
		c.JSON(http.StatusOK, gin.H{"terminated": false})
		return
	}

	entry := &models.AutomationLog{
		TenantID:       tenantID,
		ConversationID: convID,
		FlowID:         cleared.FlowID,
		NodeID:         cleared.StepID,
		Outcome:        models.OutcomeTerminated,
	}
	if err := h.store.LogFlowRun(ctx, entry); err != nil {
		h.log.Error("failed to write automation log", zap.String("conversation_id", convID), zap.Error(err))
	}

	env := events.New(events.TypeFlowFinished, tenantID, c.GetString(middleware.RequestIDKey), events.FlowFinishedV1{
		FlowID:         cleared.FlowID,
		ConversationID: convID,
		Outcome:        models.OutcomeTerminated,
	})
	if err := h.events.Publish(ctx, env); err != nil {
		h.log.Warn("failed to publish flow event", zap.String("flow_id", cleared.FlowID), zap.Error(err))
	}

	h.log.Info("flow session terminated",
		zap.String("tenant_id", tenantID),
		zap.String("conversation_id", convID),
		zap.String("flow_id", cleared.FlowID))
	c.JSON(http.StatusOK, gin.H{"terminated": true, "flow_id": cleared.FlowID, "step_id": cleared.StepID})
}

func (h *AutomationHandler) internal(c *gin.Context, op string, err error) {
	h.log.Error(op+" failed", zap.String("tenant_id", c.Param("tenantId")), zap.Error(err))
	respondError(c, apperr.Wrap(err, goerrors.CategoryInternal, op, nil))
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
