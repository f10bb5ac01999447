package executor

import (
	"context"

	"github.com/aescanero/pipewright/pkg/domain"
)

// node is the sealed set of node behaviours. Only this package implements it,
// and newNode is the single place a node kind is mapped to its behaviour.
type node interface {
	kind() domain.NodeType
	execute(nc *nodeContext) (interface{}, error)
}

func newNode(def *domain.NodeDefinition) (node, error) {
	switch def.NodeType {
	case domain.NodeTypeInput:
		return &inputNode{def: def}, nil
	case domain.NodeTypeOutput:
		return &outputNode{def: def}, nil
	case domain.NodeTypeTransform:
		return &transformNode{def: def}, nil
	case domain.NodeTypeCondition:
		return &conditionNode{def: def}, nil
	case domain.NodeTypeLoop:
		return &loopNode{def: def}, nil
	case domain.NodeTypeParallel:
		return &parallelNode{def: def}, nil
	case domain.NodeTypeMerge:
		return &mergeNode{def: def}, nil
	default:
		return nil, domain.NewInvalidRequest("node %s has unsupported type %q", def.NodeID, def.NodeType)
	}
}

// nodeContext is everything a node may read while it runs
type nodeContext struct {
	ctx      context.Context
	executor *Executor
	run      *Run
	def      *domain.NodeDefinition

	// upstream holds the results of direct dependencies, in dependency order
	upstream      map[string]interface{}
	upstreamOrder []string
	incoming      []domain.EdgeDefinition

	// results holds every node result produced so far in this walk
	results map[string]interface{}
}

func (nc *nodeContext) emit(eventType domain.EventType, data map[string]interface{}) {
	nc.run.observer().Emit(eventType, nc.def.NodeID, data)
}
