package validator

import (
	"github.com/aescanero/pipewright/pkg/domain"
)

// validateCompleteness checks that required fields and per-kind node
// configuration are present
func (v *Validator) validateCompleteness(s *domain.PipelineSchema) *result {
	r := newResult()

	if s.ID == "" {
		r.errorf(CodeMissingField, "", "schema field %q is required", "id")
	}
	if s.Name == "" {
		r.errorf(CodeMissingField, "", "schema field %q is required", "name")
	}
	if len(s.NodeDefinitions) == 0 {
		r.errorf(CodeMissingField, "", "schema field %q is required", "node_definitions")
	}
	if s.InputSchema == nil {
		r.errorf(CodeMissingField, "", "schema field %q is required", "input_schema")
	}
	if s.OutputSchema == nil {
		r.errorf(CodeMissingField, "", "schema field %q is required", "output_schema")
	}

	outgoing := make(map[string]int)
	for _, edge := range s.EdgeDefinitions {
		outgoing[edge.SourceNodeID]++
	}

	incomplete := 0
	for i, node := range s.NodeDefinitions {
		complete := true
		ref := node.NodeID
		if ref == "" {
			r.errorf(CodeMissingNodeField, "", "node at index %d is missing %q", i, "node_id")
			complete = false
		}
		if node.NodeType == "" {
			r.errorf(CodeMissingNodeField, ref, "node %q is missing %q", ref, "node_type")
			complete = false
		} else if !node.NodeType.Valid() {
			r.errorf(CodeInvalidNodeType, ref, "node %q has unsupported type %q", ref, node.NodeType)
			complete = false
		}
		if node.NodeName == "" {
			r.errorf(CodeMissingNodeField, ref, "node %q is missing %q", ref, "node_name")
			complete = false
		}

		switch node.NodeType {
		case domain.NodeTypeCondition:
			if !hasConfig(node.Config, "condition") {
				r.warnf(CodeMissingConditionConfig, ref, "condition node %q declares no condition", ref)
				complete = false
			}
			if outgoing[node.NodeID] < 2 {
				r.warnf(CodeIncompleteBranches, ref, "condition node %q has %d outgoing edges, expected at least 2", ref, outgoing[node.NodeID])
				complete = false
			}
		case domain.NodeTypeLoop:
			if !hasConfig(node.Config, "iterations", "loop") {
				r.warnf(CodeMissingLoopConfig, ref, "loop node %q declares no loop configuration", ref)
				complete = false
			}
		}

		if !complete {
			incomplete++
		}
	}

	for i, rule := range s.ValidationRules {
		if rule.Name == "" {
			r.warnf(CodeUnnamedRule, "", "validation rule at index %d has no name", i)
		}
	}

	r.Metrics["nodes_checked"] = len(s.NodeDefinitions)
	r.Metrics["incomplete_nodes"] = incomplete
	if len(s.NodeDefinitions) > 0 {
		r.Metrics["completeness_ratio"] = float64(len(s.NodeDefinitions)-incomplete) / float64(len(s.NodeDefinitions))
	}

	return r
}

func hasConfig(config map[string]interface{}, keys ...string) bool {
	for _, key := range keys {
		if value, ok := config[key]; ok && value != nil {
			return true
		}
	}
	return false
}
