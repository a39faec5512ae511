package workflow

import (
	"encoding/json"
	"fmt"

	svcerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
)

type conditionConfig struct {
	Expression  string `json:"expression"`
	TrueBranch  string `json:"trueBranch,omitempty"`
	FalseBranch string `json:"falseBranch,omitempty"`
}

// ValidateDefinition enforces every §3 invariant on a WorkflowDefinition:
// entrypoint and edge endpoints resolve, node.next keys resolve, CONDITION
// branches resolve when present, and the graph is acyclic.
func ValidateDefinition(def Definition) error {
	if len(def.Nodes) == 0 {
		return svcerrors.New(svcerrors.CodeValidation, "workflow definition must declare at least one node")
	}
	for key, node := range def.Nodes {
		if node.ID != key {
			return svcerrors.New(svcerrors.CodeValidation, fmt.Sprintf("node %q has mismatched id %q", key, node.ID))
		}
		if !validNodeType(node.Type) {
			return svcerrors.New(svcerrors.CodeValidation, fmt.Sprintf("node %q has unknown type %q", key, node.Type))
		}
	}

	if _, ok := def.Nodes[def.Entrypoint]; !ok {
		return svcerrors.New(svcerrors.CodeValidation, fmt.Sprintf("entrypoint %q is not a declared node", def.Entrypoint))
	}

	for _, edge := range def.Edges {
		if _, ok := def.Nodes[edge.From]; !ok {
			return svcerrors.New(svcerrors.CodeValidation, fmt.Sprintf("edge references missing node %q", edge.From))
		}
		if _, ok := def.Nodes[edge.To]; !ok {
			return svcerrors.New(svcerrors.CodeValidation, fmt.Sprintf("edge references missing node %q", edge.To))
		}
	}

	for key, node := range def.Nodes {
		for _, next := range node.Next {
			if _, ok := def.Nodes[next]; !ok {
				return svcerrors.New(svcerrors.CodeValidation, fmt.Sprintf("node %q references missing successor %q", key, next))
			}
		}
		if node.Type == NodeCondition {
			var cfg conditionConfig
			if len(node.Config) > 0 {
				if err := json.Unmarshal(node.Config, &cfg); err != nil {
					return svcerrors.New(svcerrors.CodeValidation, fmt.Sprintf("node %q has invalid CONDITION config: %v", key, err))
				}
			}
			if cfg.TrueBranch != "" {
				if _, ok := def.Nodes[cfg.TrueBranch]; !ok {
					return svcerrors.New(svcerrors.CodeValidation, fmt.Sprintf("node %q trueBranch references missing node %q", key, cfg.TrueBranch))
				}
			}
			if cfg.FalseBranch != "" {
				if _, ok := def.Nodes[cfg.FalseBranch]; !ok {
					return svcerrors.New(svcerrors.CodeValidation, fmt.Sprintf("node %q falseBranch references missing node %q", key, cfg.FalseBranch))
				}
			}
		}
	}

	if cycle := findCycle(def); cycle != "" {
		return svcerrors.New(svcerrors.CodeValidation, fmt.Sprintf("workflow definition contains a cycle reachable from %q", cycle))
	}

	return nil
}

func validNodeType(t NodeType) bool {
	switch t {
	case NodeAICompletion, NodeHTTPRequest, NodeCondition, NodeTransform, NodeDelay, NodeWebhook:
		return true
	default:
		return false
	}
}

type color int

const (
	white color = iota
	gray
	black
)

// findCycle runs DFS three-coloring over node.Next edges and returns the key
// of a node participating in a cycle, or "" if the graph is acyclic.
func findCycle(def Definition) string {
	colors := make(map[string]color, len(def.Nodes))
	for key := range def.Nodes {
		colors[key] = white
	}

	var visit func(key string) string
	visit = func(key string) string {
		colors[key] = gray
		for _, next := range def.Nodes[key].Next {
			switch colors[next] {
			case gray:
				return next
			case white:
				if found := visit(next); found != "" {
					return found
				}
			}
		}
		colors[key] = black
		return ""
	}

	for key := range def.Nodes {
		if colors[key] == white {
			if found := visit(key); found != "" {
				return found
			}
		}
	}
	return ""
}
