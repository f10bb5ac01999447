package domain

// ValidationType selects one of the schema sub-validators
type ValidationType string

const (
	ValidationTopology     ValidationType = "topology"
	ValidationVariables    ValidationType = "variables"
	ValidationCompleteness ValidationType = "completeness"
	ValidationConstraints  ValidationType = "constraints"
)

// ValidationTypes is the default set, in evaluation order
var ValidationTypes = []ValidationType{
	ValidationTopology,
	ValidationVariables,
	ValidationCompleteness,
	ValidationConstraints,
}

// ValidationStatus is the outcome of a validation run
type ValidationStatus string

const (
	ValidationPassed  ValidationStatus = "passed"
	ValidationWarning ValidationStatus = "warning"
	ValidationFailed  ValidationStatus = "failed"
)

// ValidationIssue describes a single error or warning
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	NodeID  string `json:"node_id,omitempty"`
}

// ValidationResult is the outcome of one sub-validator
type ValidationResult struct {
	Status   ValidationStatus       `json:"status"`
	Errors   []ValidationIssue      `json:"errors"`
	Warnings []ValidationIssue      `json:"warnings"`
	Metrics  map[string]interface{} `json:"metrics"`
}

// ValidationReport aggregates the selected sub-validator results
type ValidationReport struct {
	OverallStatus ValidationStatus                    `json:"overall_status"`
	Results       map[ValidationType]*ValidationResult `json:"results"`
	Errors        []ValidationIssue                   `json:"errors"`
}

// Valid reports whether no sub-validator failed
func (r *ValidationReport) Valid() bool {
	return r != nil && r.OverallStatus != ValidationFailed
}
