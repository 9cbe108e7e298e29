package automation

import (
	"context"
	"errors"

	"whatsapp-automation/internal/apperr"
	"whatsapp-automation/internal/database"
	"whatsapp-automation/internal/events"
	"whatsapp-automation/internal/models"

	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"
)

const DefaultMaxChainDepth = 16

// Store is the slice of persistence the engine needs.
type Store interface {
	PublishedFlows(ctx context.Context, tenantID string) ([]models.Flow, error)
	FindFlow(ctx context.Context, tenantID, flowID string) (*models.Flow, error)
	FindCannedResponse(ctx context.Context, tenantID, id string) (*models.CannedResponse, error)
	UpdateContact(ctx context.Context, contact *models.Contact, columns ...string) error
	LogFlowRun(ctx context.Context, entry *models.AutomationLog) error
}

// Sender delivers flow output to the contact.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	SendCanned(ctx context.Context, to string, resp *models.CannedResponse) error
}

// Turn is one inbound message as seen by the engine.
type Turn struct {
	TenantID      string
	CorrelationID string
	Conversation  *models.Conversation
	Contact       *models.Contact
	Text          string
	IsText        bool
	Sender        Sender
}

type Engine struct {
	store    Store
	events   events.Publisher
	maxDepth int
	log      *zap.Logger
}

func NewEngine(store Store, publisher events.Publisher, maxDepth int, log *zap.Logger) *Engine {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxChainDepth
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, events: publisher, maxDepth: maxDepth, log: log}
}

// Process runs one step of automation for the turn and returns the cursor the
// conversation should carry afterwards. On a flow execution error the returned cursor
// is empty and the error has goerrors.CategoryOperation. Storage errors keep the
// conversation's current cursor.
func (e *Engine) Process(ctx context.Context, turn Turn) (models.Cursor, error) {
	current := turn.Conversation.Cursor()
	if current.IsActive() {
		return e.resume(ctx, turn, current)
	}
	if !turn.IsText {
		return models.Cursor{}, nil
	}
	return e.trigger(ctx, turn)
}

func (e *Engine) trigger(ctx context.Context, turn Turn) (models.Cursor, error) {
	flows, err := e.store.PublishedFlows(ctx, turn.TenantID)
	if err != nil {
		return models.Cursor{}, apperr.Wrap(err, goerrors.CategoryInternal, "load published flows", map[string]any{
			"tenant_id": turn.TenantID,
		})
	}

	for i := range flows {
		flow := &flows[i]
		g, err := NewGraph(flow)
		if err != nil {
			e.log.Warn("skipping invalid flow",
				zap.String("tenant_id", turn.TenantID),
				zap.String("flow_id", flow.ID),
				zap.Error(err))
			continue
		}
		if !g.Trigger().Matches(turn.Text) {
			continue
		}

		e.log.Info("flow triggered",
			zap.String("tenant_id", turn.TenantID),
			zap.String("flow_id", flow.ID),
			zap.String("conversation_id", turn.Conversation.ID))

		executed, err := e.advance(ctx, turn, g, TriggerNodeID, 0)
		if err != nil {
			return e.fail(ctx, turn, flow.ID, TriggerNodeID, err)
		}
		if executed == "" {
			return e.complete(ctx, turn, flow.ID, TriggerNodeID)
		}
		if g.SingleTurn() {
			return e.complete(ctx, turn, flow.ID, executed)
		}
		cursor := models.Cursor{FlowID: flow.ID, StepID: executed}
		e.logRun(ctx, turn, flow.ID, executed, models.OutcomeTriggered, "")
		return cursor, nil
	}
	return models.Cursor{}, nil
}

func (e *Engine) resume(ctx context.Context, turn Turn, current models.Cursor) (models.Cursor, error) {
	flow, err := e.store.FindFlow(ctx, turn.TenantID, current.FlowID)
	if errors.Is(err, database.ErrNotFound) {
		return e.fail(ctx, turn, current.FlowID, current.StepID, errors.New("active flow no longer exists"))
	}
	if err != nil {
		return current, apperr.Wrap(err, goerrors.CategoryInternal, "load active flow", map[string]any{
			"tenant_id": turn.TenantID,
			"flow_id":   current.FlowID,
		})
	}

	g, err := NewGraph(flow)
	if err != nil {
		return e.fail(ctx, turn, flow.ID, current.StepID, err)
	}
	node, ok := g.Node(current.StepID)
	if !ok {
		return e.fail(ctx, turn, flow.ID, current.StepID, errors.New("current step not found in flow"))
	}

	if capture, ok := node.Data.(*CaptureData); ok && turn.IsText {
		e.capture(ctx, turn, capture)
	}

	executed, err := e.advance(ctx, turn, g, node.ID, 0)
	if err != nil {
		return e.fail(ctx, turn, flow.ID, node.ID, err)
	}
	if executed == "" {
		return e.complete(ctx, turn, flow.ID, node.ID)
	}
	e.logRun(ctx, turn, flow.ID, executed, models.OutcomeAdvanced, "")
	return models.Cursor{FlowID: flow.ID, StepID: executed}, nil
}

// capture stores the reply before routing so conditionals see it.
func (e *Engine) capture(ctx context.Context, turn Turn, data *CaptureData) {
	if data.Variable == "" {
		return
	}
	flowData := map[string]string{}
	for k, v := range turn.Contact.FlowData.Data() {
		flowData[k] = v
	}
	flowData[data.Variable] = turn.Text
	turn.Contact.FlowData = jsonMap(flowData)

	if err := e.store.UpdateContact(ctx, turn.Contact, "flow_data"); err != nil {
		e.log.Error("failed to store captured reply",
			zap.String("contact_id", turn.Contact.ID),
			zap.String("variable", data.Variable),
			zap.Error(err))
	}
}

func (e *Engine) complete(ctx context.Context, turn Turn, flowID, nodeID string) (models.Cursor, error) {
	e.logRun(ctx, turn, flowID, nodeID, models.OutcomeCompleted, "")
	e.publishFinished(ctx, turn, flowID, models.OutcomeCompleted, "")
	return models.Cursor{}, nil
}

// fail terminates the flow and reports a flow execution error.
func (e *Engine) fail(ctx context.Context, turn Turn, flowID, nodeID string, cause error) (models.Cursor, error) {
	err := apperr.Wrap(cause, goerrors.CategoryOperation, "flow execution failed", map[string]any{
		"tenant_id":       turn.TenantID,
		"conversation_id": turn.Conversation.ID,
		"flow_id":         flowID,
		"node_id":         nodeID,
	})
	e.logRun(ctx, turn, flowID, nodeID, models.OutcomeFailed, cause.Error())
	e.publishFinished(ctx, turn, flowID, models.OutcomeFailed, cause.Error())
	return models.Cursor{}, err
}

func (e *Engine) logRun(ctx context.Context, turn Turn, flowID, nodeID, outcome, errMsg string) {
	entry := &models.AutomationLog{
		TenantID:       turn.TenantID,
		ConversationID: turn.Conversation.ID,
		FlowID:         flowID,
		NodeID:         nodeID,
		Outcome:        outcome,
		ErrorMessage:   errMsg,
	}
	if err := e.store.LogFlowRun(ctx, entry); err != nil {
		e.log.Error("failed to write automation log", zap.String("flow_id", flowID), zap.Error(err))
	}
}

func (e *Engine) publishFinished(ctx context.Context, turn Turn, flowID, outcome, errMsg string) {
	env := events.New(events.TypeFlowFinished, turn.TenantID, turn.CorrelationID, events.FlowFinishedV1{
		FlowID:         flowID,
		ConversationID: turn.Conversation.ID,
		ContactID:      turn.Contact.ID,
		Outcome:        outcome,
		Error:          errMsg,
	})
	if err := e.events.Publish(ctx, env); err != nil {
		e.log.Warn("failed to publish flow event", zap.String("flow_id", flowID), zap.Error(err))
	}
}
