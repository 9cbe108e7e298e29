package api

import (
	"errors"
	"net/http"

	"whatsapp-automation/internal/apperr"
	"whatsapp-automation/internal/automation"
	"whatsapp-automation/internal/database"
	"whatsapp-automation/internal/models"

	"github.com/gin-gonic/gin"
	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"
)

type flowRequest struct {
	Name    string                   `json:"name" binding:"required"`
	Publish bool                     `json:"publish"`
	Graph   automation.FlowGraphData `json:"graph"`
}

// GetFlows lists the tenant's flows without graphs
func (h *AutomationHandler) GetFlows(c *gin.Context) {
	flows, err := h.store.ListFlows(c.Request.Context(), c.Param("tenantId"))
	if err != nil {
		h.internal(c, "list flows", err)
		return
	}
	c.JSON(http.StatusOK, flows)
}

// GetFlow returns one flow with its nodes and edges
func (h *AutomationHandler) GetFlow(c *gin.Context) {
	flow, err := h.store.FindFlow(c.Request.Context(), c.Param("tenantId"), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		respondError(c, apperr.New("flow not found", goerrors.CategoryNotFound, map[string]any{"flow_id": c.Param("id")}))
		return
	}
	if err != nil {
		h.internal(c, "find flow", err)
		return
	}
	c.JSON(http.StatusOK, flow)
}

// CreateFlow stores an editor export as a new flow
func (h *AutomationHandler) CreateFlow(c *gin.Context) {
	h.saveFlow(c, "")
}

// UpdateFlow replaces an existing flow's graph, name and status
func (h *AutomationHandler) UpdateFlow(c *gin.Context) {
	flowID := c.Param("id")
	if _, err := h.store.FindFlow(c.Request.Context(), c.Param("tenantId"), flowID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(c, apperr.New("flow not found", goerrors.CategoryNotFound, map[string]any{"flow_id": flowID}))
			return
		}
		h.internal(c, "find flow", err)
		return
	}
	h.saveFlow(c, flowID)
}

// saveFlow builds the flow rows from the request. Published flows must pass graph
// validation, drafts may be incomplete.
func (h *AutomationHandler) saveFlow(c *gin.Context, flowID string) {
	tenantID := c.Param("tenantId")

	var req flowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(err, goerrors.CategoryBadInput, "invalid flow request", nil))
		return
	}

	status := models.FlowDraft
	if req.Publish {
		status = models.FlowPublished
	}
	flow := automation.BuildFlow(flowID, tenantID, req.Name, status, req.Graph)

	if _, err := automation.NewGraph(flow); err != nil {
		if req.Publish {
			respondError(c, apperr.Wrap(err, goerrors.CategoryBadInput, err.Error(), nil))
			return
		}
		h.log.Info("draft flow saved with an invalid graph", zap.String("tenant_id", tenantID), zap.Error(err))
	}

	if err := h.store.SaveFlow(c.Request.Context(), flow); err != nil {
		h.internal(c, "save flow", err)
		return
	}

	code := http.StatusOK
	if flowID == "" {
		code = http.StatusCreated
	}
	c.JSON(code, gin.H{
		"id":     flow.ID,
		"status": flow.Status,
		"nodes":  len(flow.Nodes),
		"edges":  len(flow.Edges),
	})
}
