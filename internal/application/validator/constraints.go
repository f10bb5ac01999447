package validator

import (
	"github.com/aescanero/pipewright/pkg/domain"
)

// validateConstraints enforces the schema's own policy limits
func (v *Validator) validateConstraints(s *domain.PipelineSchema) *result {
	r := newResult()
	c := s.Constraints
	r.Metrics["constraints_configured"] = c != nil
	r.Metrics["node_count"] = len(s.NodeDefinitions)
	r.Metrics["edge_count"] = len(s.EdgeDefinitions)
	if c == nil {
		return r
	}

	malformed := false
	if c.MaxNodes != nil && *c.MaxNodes < 0 {
		r.errorf(CodeInvalidConstraint, "", "max_nodes must not be negative, got %d", *c.MaxNodes)
		malformed = true
	}
	if c.MaxEdges != nil && *c.MaxEdges < 0 {
		r.errorf(CodeInvalidConstraint, "", "max_edges must not be negative, got %d", *c.MaxEdges)
		malformed = true
	}
	for _, t := range c.AllowedNodeTypes {
		if !t.Valid() {
			r.errorf(CodeInvalidConstraint, "", "allowed_node_types contains unsupported type %q", t)
			malformed = true
		}
	}
	if malformed {
		return r
	}

	if c.MaxNodes != nil {
		r.Metrics["max_nodes"] = *c.MaxNodes
		if len(s.NodeDefinitions) > *c.MaxNodes {
			r.errorf(CodeMaxNodesExceeded, "", "schema has %d nodes, limit is %d", len(s.NodeDefinitions), *c.MaxNodes)
		}
	}
	if c.MaxEdges != nil {
		r.Metrics["max_edges"] = *c.MaxEdges
		if len(s.EdgeDefinitions) > *c.MaxEdges {
			r.errorf(CodeMaxEdgesExceeded, "", "schema has %d edges, limit is %d", len(s.EdgeDefinitions), *c.MaxEdges)
		}
	}

	if len(c.AllowedNodeTypes) > 0 {
		allowed := make(map[domain.NodeType]bool, len(c.AllowedNodeTypes))
		for _, t := range c.AllowedNodeTypes {
			allowed[t] = true
		}
		for _, node := range s.NodeDefinitions {
			if !allowed[node.NodeType] {
				r.errorf(CodeNodeTypeNotAllowed, node.NodeID, "node %q has type %q which is not allowed", node.NodeID, node.NodeType)
			}
		}
	}

	return r
}
