package automation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// NodeKind is the editor node type
type NodeKind string

const (
	KindTrigger        NodeKind = "keywordTrigger"
	KindMessage        NodeKind = "message"
	KindCaptureData    NodeKind = "captureData"
	KindConditional    NodeKind = "conditional"
	KindInternalAction NodeKind = "internalAction"
)

// TriggerNodeID is the id of the entry node of every flow
const TriggerNodeID = "1"

// ElseHandle is the source handle followed when no condition matches
const ElseHandle = "else"

// NodeData is implemented by the per-kind node payloads below.
type NodeData interface {
	Kind() NodeKind
}

// TriggerData lists the keywords that start a flow
type TriggerData struct {
	Keywords []Keyword `json:"keywords"`
}

type Keyword struct {
	Value     string `json:"value"`
	MatchType string `json:"matchType"` // exact, contains, starts_with
}

// MessageData sends a stored canned response
type MessageData struct {
	ResponseID string `json:"responseId"`
}

// CaptureData prompts the contact and stores the next reply under Variable
type CaptureData struct {
	Prompt   string `json:"prompt"`
	Variable string `json:"variable"`
}

// ConditionalData branches on flow data or the inbound text
type ConditionalData struct {
	Variable   string      `json:"variable,omitempty"` // default for conditions without one
	Conditions []Condition `json:"conditions"`
}

type Condition struct {
	ID       string     `json:"id"`
	Variable string     `json:"variable"`
	Operator string     `json:"operator"` // ==, !=, >, <, contains
	Value    FlexString `json:"value"`
}

const (
	ActionAddTag       = "addTag"
	ActionRemoveTag    = "removeTag"
	ActionMoveCrmStage = "moveCrmStage"
)

// ActionData mutates the contact
type ActionData struct {
	Action string `json:"action"`
	Tag    string `json:"tag,omitempty"`
	Stage  string `json:"stage,omitempty"`
}

// UnknownData keeps node types this engine does not run
type UnknownData struct {
	Type string
}

func (*TriggerData) Kind() NodeKind     { return KindTrigger }
func (*MessageData) Kind() NodeKind     { return KindMessage }
func (*CaptureData) Kind() NodeKind     { return KindCaptureData }
func (*ConditionalData) Kind() NodeKind { return KindConditional }
func (*ActionData) Kind() NodeKind      { return KindInternalAction }
func (d *UnknownData) Kind() NodeKind   { return NodeKind(d.Type) }

// ParseNodeData decodes raw node data for the given node type.
func ParseNodeData(nodeType string, raw []byte) (NodeData, error) {
	var data NodeData
	switch NodeKind(nodeType) {
	case KindTrigger:
		data = &TriggerData{}
	case KindMessage:
		data = &MessageData{}
	case KindCaptureData:
		data = &CaptureData{}
	case KindConditional:
		data = &ConditionalData{}
	case KindInternalAction:
		data = &ActionData{}
	default:
		return &UnknownData{Type: nodeType}, nil
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return data, nil
	}
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("decode %s node data: %w", nodeType, err)
	}
	return data, nil
}

// FlexString accepts a JSON string, number or boolean.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = FlexString(n.String())
		return nil
	}
	var v bool
	if err := json.Unmarshal(b, &v); err == nil {
		*f = FlexString(strconv.FormatBool(v))
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	return fmt.Errorf("unsupported condition value %s", b)
}

// ReactFlowNode represents a node in the flow editor export
type ReactFlowNode struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Position map[string]float64 `json:"position"`
	Data     json.RawMessage    `json:"data"`
}

// ReactFlowEdge represents an edge connection
type ReactFlowEdge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle"`
}

// FlowGraphData is the editor's exported graph
type FlowGraphData struct {
	Nodes []ReactFlowNode `json:"nodes"`
	Edges []ReactFlowEdge `json:"edges"`
}
