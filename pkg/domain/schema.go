package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// NodeType identifies one of the fixed node kinds a pipeline can contain
type NodeType string

const (
	NodeTypeInput     NodeType = "input"
	NodeTypeOutput    NodeType = "output"
	NodeTypeTransform NodeType = "transform"
	NodeTypeCondition NodeType = "condition"
	NodeTypeLoop      NodeType = "loop"
	NodeTypeParallel  NodeType = "parallel"
	NodeTypeMerge     NodeType = "merge"
)

// NodeTypes lists every supported node kind
var NodeTypes = []NodeType{
	NodeTypeInput,
	NodeTypeOutput,
	NodeTypeTransform,
	NodeTypeCondition,
	NodeTypeLoop,
	NodeTypeParallel,
	NodeTypeMerge,
}

// Valid reports whether t is one of the supported node kinds
func (t NodeType) Valid() bool {
	for _, known := range NodeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// SchemaStatus is the publication state of a pipeline schema
type SchemaStatus string

const (
	SchemaStatusDraft      SchemaStatus = "draft"
	SchemaStatusActive     SchemaStatus = "active"
	SchemaStatusDeprecated SchemaStatus = "deprecated"
)

// VariableSource names where a mapped variable is produced or consumed
type VariableSource string

const (
	VariableSourceInput     VariableSource = "input"
	VariableSourceOutput    VariableSource = "output"
	VariableSourceNode      VariableSource = "node"
	VariableSourceTransform VariableSource = "transform"
)

// NodeDefinition declares a single node of a pipeline
type NodeDefinition struct {
	NodeID   string                 `json:"node_id" yaml:"node_id"`
	NodeType NodeType               `json:"node_type" yaml:"node_type"`
	NodeName string                 `json:"node_name" yaml:"node_name"`
	Config   map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
}

// EdgeDefinition is a directed link between two node ports
type EdgeDefinition struct {
	ID           string `json:"id" yaml:"id"`
	SourceNodeID string `json:"source_node_id" yaml:"source_node_id"`
	TargetNodeID string `json:"target_node_id" yaml:"target_node_id"`
	SourcePort   string `json:"source_port,omitempty" yaml:"source_port,omitempty"`
	TargetPort   string `json:"target_port,omitempty" yaml:"target_port,omitempty"`
}

// FieldSchema is a JSON-Schema-like field descriptor. Objects carry nested
// properties, arrays carry an item descriptor, everything else is a leaf.
type FieldSchema struct {
	Type        string                  `json:"type,omitempty" yaml:"type,omitempty"`
	Description string                  `json:"description,omitempty" yaml:"description,omitempty"`
	Properties  map[string]*FieldSchema `json:"properties,omitempty" yaml:"properties,omitempty"`
	Items       *FieldSchema            `json:"items,omitempty" yaml:"items,omitempty"`
	Required    []string                `json:"required,omitempty" yaml:"required,omitempty"`
}

// VariableMapping ties a logical variable to the place it comes from
type VariableMapping struct {
	Source   VariableSource `json:"source" yaml:"source"`
	Variable string         `json:"variable" yaml:"variable"`
}

// Constraints bounds the shape of a schema. Nil limits are not enforced.
type Constraints struct {
	MaxNodes         *int       `json:"max_nodes,omitempty" yaml:"max_nodes,omitempty"`
	MaxEdges         *int       `json:"max_edges,omitempty" yaml:"max_edges,omitempty"`
	AllowedNodeTypes []NodeType `json:"allowed_node_types,omitempty" yaml:"allowed_node_types,omitempty"`
}

// ValidationRule is a named rule descriptor attached to a schema
type ValidationRule struct {
	Name   string                 `json:"name" yaml:"name"`
	Type   string                 `json:"type,omitempty" yaml:"type,omitempty"`
	Custom bool                   `json:"custom,omitempty" yaml:"custom,omitempty"`
	Config map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
}

// PipelineSchema is a declarative workflow definition
type PipelineSchema struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Version     int          `json:"version" yaml:"version"`
	Status      SchemaStatus `json:"status" yaml:"status"`
	IsValid     bool         `json:"is_valid" yaml:"is_valid"`

	NodeDefinitions []NodeDefinition `json:"node_definitions" yaml:"node_definitions"`
	EdgeDefinitions []EdgeDefinition `json:"edge_definitions" yaml:"edge_definitions"`

	InputSchema  *FieldSchema `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
	OutputSchema *FieldSchema `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`

	VariableMappings map[string]VariableMapping `json:"variable_mappings,omitempty" yaml:"variable_mappings,omitempty"`
	Constraints      *Constraints               `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	ValidationRules  []ValidationRule           `json:"validation_rules,omitempty" yaml:"validation_rules,omitempty"`

	// Validation is the report of the most recent validation run
	Validation *ValidationReport `json:"validation,omitempty" yaml:"-"`

	CreatedBy string    `json:"created_by,omitempty" yaml:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at,omitempty"`
}

// Node returns the definition with the given id
func (s *PipelineSchema) Node(nodeID string) (*NodeDefinition, bool) {
	for i := range s.NodeDefinitions {
		if s.NodeDefinitions[i].NodeID == nodeID {
			return &s.NodeDefinitions[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the schema so executions can hold a snapshot
// that later schema updates cannot reach.
func (s *PipelineSchema) Clone() (*PipelineSchema, error) {
	if s == nil {
		return nil, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var out PipelineSchema
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}
	return &out, nil
}
