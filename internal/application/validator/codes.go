package validator

// Issue codes reported by the sub-validators
const (
	CodeEmptyNodes        = "EMPTY_NODES"
	CodeEmptyEdges        = "EMPTY_EDGES"
	CodeMissingInputNode  = "MISSING_INPUT_NODE"
	CodeMissingOutputNode = "MISSING_OUTPUT_NODE"
	CodeDuplicateNodeID   = "DUPLICATE_NODE_ID"
	CodeInvalidEdgeSource = "INVALID_EDGE_SOURCE"
	CodeInvalidEdgeTarget = "INVALID_EDGE_TARGET"
	CodeCycleDetected     = "CYCLE_DETECTED"
	CodeUnreachableNode   = "UNREACHABLE_NODE"
	CodeIsolatedNode      = "ISOLATED_NODE"

	CodeUnresolvedInputVariable  = "UNRESOLVED_INPUT_VARIABLE"
	CodeUnresolvedOutputVariable = "UNRESOLVED_OUTPUT_VARIABLE"
	CodeInvalidVariableSource    = "INVALID_VARIABLE_SOURCE"
	CodeEmptyVariable            = "EMPTY_VARIABLE"
	CodeUnknownNodeReference     = "UNKNOWN_NODE_REFERENCE"
	CodeUnmappedOutputField      = "UNMAPPED_OUTPUT_FIELD"

	CodeMissingField           = "MISSING_FIELD"
	CodeMissingNodeField       = "MISSING_NODE_FIELD"
	CodeInvalidNodeType        = "INVALID_NODE_TYPE"
	CodeMissingConditionConfig = "MISSING_CONDITION_CONFIG"
	CodeMissingLoopConfig      = "MISSING_LOOP_CONFIG"
	CodeIncompleteBranches     = "INCOMPLETE_BRANCHES"
	CodeUnnamedRule            = "UNNAMED_VALIDATION_RULE"

	CodeInvalidConstraint  = "INVALID_CONSTRAINT"
	CodeMaxNodesExceeded   = "MAX_NODES_EXCEEDED"
	CodeMaxEdgesExceeded   = "MAX_EDGES_EXCEEDED"
	CodeNodeTypeNotAllowed = "NODE_TYPE_NOT_ALLOWED"
)
