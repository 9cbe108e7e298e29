package automation

import (
	"context"
	"fmt"

	"whatsapp-automation/internal/models"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// advance routes from the node `from` and executes where it lands. Landing on a
// conditional resolves it in place, up to maxDepth chained conditionals.
// Returns the id of the executed node, or "" when the flow has nowhere to go.
func (e *Engine) advance(ctx context.Context, turn Turn, g *Graph, from string, depth int) (string, error) {
	if depth > e.maxDepth {
		return "", fmt.Errorf("conditional chain deeper than %d at node %q", e.maxDepth, from)
	}

	node, ok := g.Node(from)
	if !ok {
		return "", fmt.Errorf("node %q not found", from)
	}

	next, ok, err := e.route(turn, g, node)
	if err != nil || !ok {
		return "", err
	}

	target, ok := g.Node(next)
	if !ok {
		return "", fmt.Errorf("node %q not found", next)
	}
	if target.Data.Kind() == KindConditional {
		return e.advance(ctx, turn, g, target.ID, depth+1)
	}

	e.execute(ctx, turn, target)
	return target.ID, nil
}

// route picks the next node id. ok is false when the flow ends here.
func (e *Engine) route(turn Turn, g *Graph, node *Node) (string, bool, error) {
	cond, isConditional := node.Data.(*ConditionalData)
	if !isConditional {
		out := g.Outgoing(node.ID)
		if len(out) == 0 {
			return "", false, nil
		}
		return out[0].Target, true, nil
	}

	flowData := turn.Contact.FlowData.Data()
	for _, c := range cond.Conditions {
		variable := c.Variable
		if variable == "" {
			variable = cond.Variable
		}
		actual, found := flowData[variable]
		if !found {
			actual = turn.Text
		}
		if !evaluate(c, actual) {
			continue
		}
		edge, ok := g.EdgeFromHandle(node.ID, c.ID)
		if !ok {
			return "", false, fmt.Errorf("no edge for satisfied condition %q on node %q", c.ID, node.ID)
		}
		return edge.Target, true, nil
	}

	if edge, ok := g.EdgeFromHandle(node.ID, ElseHandle); ok {
		return edge.Target, true, nil
	}
	return "", false, nil
}

// execute performs a node's side effect. Failures are logged and the step still counts.
func (e *Engine) execute(ctx context.Context, turn Turn, node *Node) {
	log := e.log.With(
		zap.String("tenant_id", turn.TenantID),
		zap.String("conversation_id", turn.Conversation.ID),
		zap.String("node_id", node.ID),
	)

	switch data := node.Data.(type) {
	case *MessageData:
		resp, err := e.store.FindCannedResponse(ctx, turn.TenantID, data.ResponseID)
		if err != nil {
			log.Warn("canned response unavailable", zap.String("response_id", data.ResponseID), zap.Error(err))
			return
		}
		if err := turn.Sender.SendCanned(ctx, turn.Contact.Phone, resp); err != nil {
			log.Error("failed to send canned response", zap.String("response_id", data.ResponseID), zap.Error(err))
		}

	case *CaptureData:
		if data.Prompt == "" {
			return
		}
		if err := turn.Sender.SendText(ctx, turn.Contact.Phone, data.Prompt); err != nil {
			log.Error("failed to send capture prompt", zap.Error(err))
		}

	case *ActionData:
		e.applyAction(ctx, turn.Contact, data, log)

	case *TriggerData, *ConditionalData:
		// routing only

	case *UnknownData:
		log.Info("skipping unsupported node type", zap.String("type", data.Type))
	}
}

func (e *Engine) applyAction(ctx context.Context, contact *models.Contact, data *ActionData, log *zap.Logger) {
	var column string
	switch data.Action {
	case ActionAddTag:
		if data.Tag == "" {
			return
		}
		tags := contact.Tags.Data()
		for _, t := range tags {
			if t == data.Tag {
				return
			}
		}
		contact.Tags = jsonTags(append(append([]string{}, tags...), data.Tag))
		column = "tags"

	case ActionRemoveTag:
		tags := contact.Tags.Data()
		kept := make([]string, 0, len(tags))
		for _, t := range tags {
			if t != data.Tag {
				kept = append(kept, t)
			}
		}
		if len(kept) == len(tags) {
			return
		}
		contact.Tags = jsonTags(kept)
		column = "tags"

	case ActionMoveCrmStage:
		if data.Stage == "" || contact.Stage == data.Stage {
			return
		}
		contact.Stage = data.Stage
		column = "stage"

	default:
		log.Warn("unknown internal action", zap.String("action", data.Action))
		return
	}

	if err := e.store.UpdateContact(ctx, contact, column); err != nil {
		log.Error("failed to update contact", zap.String("action", data.Action), zap.Error(err))
	}
}

func jsonTags(tags []string) datatypes.JSONType[[]string] {
	return datatypes.NewJSONType(tags)
}

func jsonMap(m map[string]string) datatypes.JSONType[map[string]string] {
	return datatypes.NewJSONType(m)
}
