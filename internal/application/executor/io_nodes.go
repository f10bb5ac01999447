package executor

import (
	"strings"

	"github.com/aescanero/pipewright/pkg/domain"
)

// inputNode projects the execution input through an optional field mapping
type inputNode struct {
	def *domain.NodeDefinition
}

func (n *inputNode) kind() domain.NodeType { return domain.NodeTypeInput }

func (n *inputNode) execute(nc *nodeContext) (interface{}, error) {
	input := nc.run.Input
	mapping := configMap(n.def.Config, "field_mapping", "mapping")
	if len(mapping) == 0 {
		out := make(map[string]interface{}, len(input))
		for k, v := range input {
			out[k] = v
		}
		return out, nil
	}

	out := make(map[string]interface{}, len(mapping))
	for target, source := range mapping {
		path, ok := source.(string)
		if !ok || path == "" {
			path = target
		}
		if value, found := lookupPath(input, path); found {
			out[target] = value
		}
	}
	return out, nil
}

// outputNode collects named outputs from upstream results
type outputNode struct {
	def *domain.NodeDefinition
}

func (n *outputNode) kind() domain.NodeType { return domain.NodeTypeOutput }

func (n *outputNode) execute(nc *nodeContext) (interface{}, error) {
	mapping := configMap(n.def.Config, "mapping", "port_mapping", "output_mapping")
	if len(mapping) > 0 {
		out := make(map[string]interface{}, len(mapping))
		for name, ref := range mapping {
			path, ok := ref.(string)
			if !ok || path == "" {
				continue
			}
			if value, found := resolveResult(nc.results, path); found {
				out[name] = value
			}
		}
		return out, nil
	}

	// Without an explicit mapping the incoming edge ports name the outputs
	out := make(map[string]interface{}, len(nc.incoming))
	for _, edge := range nc.incoming {
		value, ok := nc.upstream[edge.SourceNodeID]
		if !ok {
			continue
		}
		if edge.SourcePort != "" {
			if field, found := lookupPath(value, edge.SourcePort); found {
				value = field
			}
		}

		name := edge.TargetPort
		if name == "" {
			name = edge.SourcePort
		}
		if name == "" {
			name = edge.SourceNodeID
		}
		out[name] = value
	}
	return out, nil
}

// resolveResult resolves "<node_id>" or "<node_id>.<path>" against node results
func resolveResult(results map[string]interface{}, ref string) (interface{}, bool) {
	nodeID, rest, _ := strings.Cut(ref, ".")
	value, ok := results[nodeID]
	if !ok {
		return nil, false
	}
	return lookupPath(value, rest)
}
