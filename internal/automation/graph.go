package automation

import (
	"errors"
	"fmt"

	"whatsapp-automation/internal/models"
)

var ErrInvalidGraph = errors.New("invalid flow graph")

type Node struct {
	ID   string
	Data NodeData
}

type Edge struct {
	Source string
	Target string
	Handle string
}

// Graph is a validated flow: nodes in a slice addressed by index, edges grouped by source.
type Graph struct {
	FlowID string
	Name   string

	nodes    []Node
	index    map[string]int
	outgoing map[int][]Edge
	edges    int
}

// NewGraph validates flow and builds its graph. A valid flow has exactly one
// keywordTrigger node, with id "1" and no incoming edges, and every edge joins known nodes.
func NewGraph(flow *models.Flow) (*Graph, error) {
	g := &Graph{
		FlowID:   flow.ID,
		Name:     flow.Name,
		nodes:    make([]Node, 0, len(flow.Nodes)),
		index:    make(map[string]int, len(flow.Nodes)),
		outgoing: make(map[int][]Edge),
	}

	triggers := 0
	for _, n := range flow.Nodes {
		if _, dup := g.index[n.NodeID]; dup {
			return nil, fmt.Errorf("%w: duplicate node id %q", ErrInvalidGraph, n.NodeID)
		}
		data, err := ParseNodeData(n.Type, n.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: node %q: %v", ErrInvalidGraph, n.NodeID, err)
		}
		if data.Kind() == KindTrigger {
			triggers++
			if n.NodeID != TriggerNodeID {
				return nil, fmt.Errorf("%w: trigger node has id %q, want %q", ErrInvalidGraph, n.NodeID, TriggerNodeID)
			}
		}
		g.index[n.NodeID] = len(g.nodes)
		g.nodes = append(g.nodes, Node{ID: n.NodeID, Data: data})
	}
	if triggers != 1 {
		return nil, fmt.Errorf("%w: %d trigger nodes, want 1", ErrInvalidGraph, triggers)
	}

	for _, e := range flow.Edges {
		src, ok := g.index[e.Source]
		if !ok {
			return nil, fmt.Errorf("%w: edge %q from unknown node %q", ErrInvalidGraph, e.EdgeID, e.Source)
		}
		if _, ok := g.index[e.Target]; !ok {
			return nil, fmt.Errorf("%w: edge %q to unknown node %q", ErrInvalidGraph, e.EdgeID, e.Target)
		}
		if e.Target == TriggerNodeID {
			return nil, fmt.Errorf("%w: edge %q enters the trigger node", ErrInvalidGraph, e.EdgeID)
		}
		g.outgoing[src] = append(g.outgoing[src], Edge{Source: e.Source, Target: e.Target, Handle: e.SourceHandle})
		g.edges++
	}

	return g, nil
}

func (g *Graph) Node(id string) (*Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return &g.nodes[i], true
}

// Trigger returns the entry node's data.
func (g *Graph) Trigger() *TriggerData {
	node, _ := g.Node(TriggerNodeID)
	return node.Data.(*TriggerData)
}

func (g *Graph) Outgoing(id string) []Edge {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.outgoing[i]
}

// EdgeFromHandle finds the edge leaving id through handle.
func (g *Graph) EdgeFromHandle(id, handle string) (Edge, bool) {
	for _, e := range g.Outgoing(id) {
		if e.Handle == handle {
			return e, true
		}
	}
	return Edge{}, false
}

// SingleTurn reports whether the flow is at most the trigger plus one node joined by one edge.
// Such flows finish on the message that triggers them.
func (g *Graph) SingleTurn() bool {
	return len(g.nodes) <= 2 && g.edges <= 1
}

// BuildFlow converts an editor export into flow rows.
func BuildFlow(flowID, tenantID, name, status string, graph FlowGraphData) *models.Flow {
	flow := &models.Flow{
		ID:       flowID,
		TenantID: tenantID,
		Name:     name,
		Status:   status,
	}
	for _, n := range graph.Nodes {
		data := []byte(n.Data)
		if len(data) == 0 {
			data = []byte("{}")
		}
		flow.Nodes = append(flow.Nodes, models.FlowNode{
			NodeID:    n.ID,
			Type:      n.Type,
			PositionX: n.Position["x"],
			PositionY: n.Position["y"],
			Data:      data,
		})
	}
	for _, e := range graph.Edges {
		flow.Edges = append(flow.Edges, models.FlowEdge{
			EdgeID:       e.ID,
			Source:       e.Source,
			Target:       e.Target,
			SourceHandle: e.SourceHandle,
		})
	}
	return flow
}
