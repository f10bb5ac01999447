package validator

import (
	"fmt"
	"strings"

	"github.com/aescanero/pipewright/pkg/domain"
)

// Validator validates pipeline schemas
type Validator struct{}

// NewValidator creates a new schema validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate runs the selected sub-validators (all of them when types is empty)
// and aggregates their results. It only returns an error for malformed
// arguments; schema problems are reported in the returned report.
func (v *Validator) Validate(schema *domain.PipelineSchema, types ...domain.ValidationType) (*domain.ValidationReport, error) {
	if schema == nil {
		return nil, domain.NewInvalidRequest("schema is nil")
	}

	selected, err := normalizeTypes(types)
	if err != nil {
		return nil, err
	}

	report := &domain.ValidationReport{
		OverallStatus: domain.ValidationPassed,
		Results:       make(map[domain.ValidationType]*domain.ValidationResult, len(selected)),
		Errors:        []domain.ValidationIssue{},
	}

	for _, t := range selected {
		var res *result
		switch t {
		case domain.ValidationTopology:
			res = v.validateTopology(schema)
		case domain.ValidationVariables:
			res = v.validateVariables(schema)
		case domain.ValidationCompleteness:
			res = v.validateCompleteness(schema)
		case domain.ValidationConstraints:
			res = v.validateConstraints(schema)
		}

		res.finalize()
		report.Results[t] = res.ValidationResult
		report.Errors = append(report.Errors, res.Errors...)
		report.OverallStatus = worst(report.OverallStatus, res.Status)
	}

	return report, nil
}

// ParseTypes converts user-supplied names (for example from a query string)
// into validation types
func ParseTypes(names []string) ([]domain.ValidationType, error) {
	types := make([]domain.ValidationType, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		types = append(types, domain.ValidationType(name))
	}
	return normalizeTypes(types)
}

func normalizeTypes(types []domain.ValidationType) ([]domain.ValidationType, error) {
	if len(types) == 0 {
		return domain.ValidationTypes, nil
	}

	requested := make(map[domain.ValidationType]bool, len(types))
	for _, t := range types {
		if !isKnownType(t) {
			return nil, domain.NewInvalidRequest("unknown validation type %q (expected one of %s)", t, knownTypeNames())
		}
		requested[t] = true
	}

	// Keep the canonical evaluation order regardless of request order
	selected := make([]domain.ValidationType, 0, len(requested))
	for _, t := range domain.ValidationTypes {
		if requested[t] {
			selected = append(selected, t)
		}
	}
	return selected, nil
}

func isKnownType(t domain.ValidationType) bool {
	for _, known := range domain.ValidationTypes {
		if t == known {
			return true
		}
	}
	return false
}

func knownTypeNames() string {
	names := make([]string, len(domain.ValidationTypes))
	for i, t := range domain.ValidationTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func worst(a, b domain.ValidationStatus) domain.ValidationStatus {
	rank := map[domain.ValidationStatus]int{
		domain.ValidationPassed:  0,
		domain.ValidationWarning: 1,
		domain.ValidationFailed:  2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// result accumulates issues for one sub-validator
type result struct {
	*domain.ValidationResult
}

func newResult() *result {
	return &result{&domain.ValidationResult{
		Status:   domain.ValidationPassed,
		Errors:   []domain.ValidationIssue{},
		Warnings: []domain.ValidationIssue{},
		Metrics:  make(map[string]interface{}),
	}}
}

func (r *result) errorf(code, nodeID, format string, args ...interface{}) {
	r.Errors = append(r.Errors, domain.ValidationIssue{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		NodeID:  nodeID,
	})
}

func (r *result) warnf(code, nodeID, format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, domain.ValidationIssue{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		NodeID:  nodeID,
	})
}

func (r *result) finalize() {
	switch {
	case len(r.Errors) > 0:
		r.Status = domain.ValidationFailed
	case len(r.Warnings) > 0:
		r.Status = domain.ValidationWarning
	default:
		r.Status = domain.ValidationPassed
	}
}
