package executor

import (
	"fmt"

	"github.com/aescanero/pipewright/pkg/domain"
)

const (
	// DefaultLoopIterations is used when a loop node does not configure a count
	DefaultLoopIterations = 3
	// MaxLoopIterations bounds a configured count; every iteration emits an event
	MaxLoopIterations = 10000
)

// loopNode runs its iterations sequentially, reporting each one
type loopNode struct {
	def *domain.NodeDefinition
}

func (n *loopNode) kind() domain.NodeType { return domain.NodeTypeLoop }

func (n *loopNode) execute(nc *nodeContext) (interface{}, error) {
	config := n.def.Config
	if nested := configMap(config, "loop"); nested != nil {
		config = nested
	}

	iterations, err := configInt(config, "iterations", DefaultLoopIterations)
	if err != nil {
		return nil, err
	}
	if iterations < 0 {
		return nil, fmt.Errorf("loop iterations must not be negative, got %d", iterations)
	}
	if iterations > MaxLoopIterations {
		return nil, fmt.Errorf("loop iterations %d exceed the limit of %d", iterations, MaxLoopIterations)
	}

	results := make([]interface{}, 0, iterations)
	for i := 1; i <= iterations; i++ {
		item := map[string]interface{}{
			"iteration": i,
			"total":     iterations,
			"input":     nc.upstream,
		}
		results = append(results, item)

		nc.emit(domain.EventTypeLoopIteration, map[string]interface{}{
			"iteration": i,
			"total":     iterations,
		})
	}

	return results, nil
}
