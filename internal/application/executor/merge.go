package executor

import (
	"fmt"

	"github.com/aescanero/pipewright/pkg/domain"
)

// Merge strategies
const (
	MergeCombine = "combine"
	MergeMerge   = "merge"
	MergeFlatten = "flatten"
)

// mergeNode combines all upstream outputs
type mergeNode struct {
	def *domain.NodeDefinition
}

func (n *mergeNode) kind() domain.NodeType { return domain.NodeTypeMerge }

func (n *mergeNode) execute(nc *nodeContext) (interface{}, error) {
	strategy := configString(n.def.Config, "strategy")
	if strategy == "" {
		strategy = MergeCombine
	}

	switch strategy {
	case MergeCombine:
		// Shallow union; non-object outputs are keyed by their node id
		combined := make(map[string]interface{})
		for _, id := range nc.upstreamOrder {
			switch v := nc.upstream[id].(type) {
			case map[string]interface{}:
				for k, val := range v {
					combined[k] = val
				}
			default:
				combined[id] = v
			}
		}
		return combined, nil

	case MergeMerge:
		merged := make([]interface{}, 0, len(nc.upstreamOrder))
		for _, id := range nc.upstreamOrder {
			merged = append(merged, nc.upstream[id])
		}
		return map[string]interface{}{
			"merged": merged,
			"count":  len(merged),
		}, nil

	case MergeFlatten:
		flat := make([]interface{}, 0, len(nc.upstreamOrder))
		for _, id := range nc.upstreamOrder {
			if items, ok := nc.upstream[id].([]interface{}); ok {
				flat = append(flat, items...)
				continue
			}
			flat = append(flat, nc.upstream[id])
		}
		return flat, nil

	default:
		return nil, fmt.Errorf("unsupported merge strategy %q", strategy)
	}
}
