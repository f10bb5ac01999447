package validator

import (
	"sort"
	"strings"

	"github.com/aescanero/pipewright/pkg/domain"
)

// validateVariables cross-checks variable mappings against the declared
// input and output contracts
func (v *Validator) validateVariables(s *domain.PipelineSchema) *result {
	r := newResult()

	inputLeaves := FieldPaths(s.InputSchema)
	outputLeaves := FieldPaths(s.OutputSchema)
	inputPaths := pathSet(s.InputSchema)
	outputPaths := pathSet(s.OutputSchema)

	r.Metrics["input_fields"] = len(inputLeaves)
	r.Metrics["output_fields"] = len(outputLeaves)
	r.Metrics["mappings"] = len(s.VariableMappings)

	nodes := make(map[string]bool, len(s.NodeDefinitions))
	for _, node := range s.NodeDefinitions {
		nodes[node.NodeID] = true
	}

	names := make([]string, 0, len(s.VariableMappings))
	for name := range s.VariableMappings {
		names = append(names, name)
	}
	sort.Strings(names)

	produced := make(map[string]bool)
	unresolved := 0
	for _, name := range names {
		mapping := s.VariableMappings[name]
		if mapping.Variable == "" {
			r.errorf(CodeEmptyVariable, "", "variable mapping %q has no variable", name)
			unresolved++
			continue
		}

		switch mapping.Source {
		case domain.VariableSourceInput:
			if !inputPaths[mapping.Variable] {
				r.errorf(CodeUnresolvedInputVariable, "", "variable mapping %q references undeclared input field %q", name, mapping.Variable)
				unresolved++
			}
		case domain.VariableSourceOutput:
			if !outputPaths[mapping.Variable] {
				r.errorf(CodeUnresolvedOutputVariable, "", "variable mapping %q references undeclared output field %q", name, mapping.Variable)
				unresolved++
				continue
			}
			markProduced(produced, mapping.Variable, outputLeaves)
		case domain.VariableSourceNode, domain.VariableSourceTransform:
			nodeID := strings.SplitN(mapping.Variable, ".", 2)[0]
			if !nodes[nodeID] {
				r.warnf(CodeUnknownNodeReference, nodeID, "variable mapping %q references unknown node %q", name, nodeID)
			}
		default:
			r.errorf(CodeInvalidVariableSource, "", "variable mapping %q has invalid source %q", name, mapping.Source)
			unresolved++
		}
	}
	r.Metrics["unresolved"] = unresolved

	// A node may still synthesise these at runtime, so they only warn
	for _, path := range outputLeaves {
		if !produced[path] {
			r.warnf(CodeUnmappedOutputField, "", "output field %q is not produced by any variable mapping", path)
		}
	}

	return r
}

// FieldPaths returns the sorted dotted paths of every leaf field declared by
// an object schema
func FieldPaths(fs *domain.FieldSchema) []string {
	var paths []string
	walkFields(fs, "", func(path string, leaf bool) {
		if leaf {
			paths = append(paths, path)
		}
	})
	sort.Strings(paths)
	return paths
}

// pathSet holds leaf paths plus the intermediate object paths above them
func pathSet(fs *domain.FieldSchema) map[string]bool {
	set := make(map[string]bool)
	walkFields(fs, "", func(path string, _ bool) {
		set[path] = true
	})
	return set
}

func walkFields(fs *domain.FieldSchema, prefix string, visit func(path string, leaf bool)) {
	if fs == nil {
		return
	}
	for name, child := range fs.Properties {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		if child != nil && len(child.Properties) > 0 {
			visit(path, false)
			walkFields(child, path, visit)
			continue
		}
		visit(path, true)
	}
}

// markProduced records path and every leaf below it as produced
func markProduced(produced map[string]bool, path string, leaves []string) {
	produced[path] = true
	for _, leaf := range leaves {
		if strings.HasPrefix(leaf, path+".") {
			produced[leaf] = true
		}
	}
}
