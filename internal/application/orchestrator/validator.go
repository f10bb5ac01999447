package orchestrator

import (
	"go.uber.org/zap"

	"github.com/aescanero/pipewright/pkg/domain"
)

// admit checks a schema snapshot before it is turned into an execution.
// Invalid schemas are still accepted: the walk is the authority on what
// actually runs, and a cycle is caught there as a failure. Snapshots that
// never went through the catalog carry no report, so one is computed here.
func (m *Manager) admit(schema *domain.PipelineSchema) {
	report := schema.Validation
	if report == nil {
		var err error
		report, err = m.validator.Validate(schema)
		if err != nil {
			m.logger.Warn("schema could not be validated",
				zap.String("schema_id", schema.ID),
				zap.Error(err))
			return
		}
		schema.Validation = report
		schema.IsValid = report.Valid()
		if m.metrics != nil {
			m.metrics.RecordValidation(string(report.OverallStatus))
		}
	}

	if !report.Valid() {
		fields := []zap.Field{
			zap.String("schema_id", schema.ID),
			zap.Int("version", schema.Version),
			zap.Int("errors", len(report.Errors)),
		}
		if len(report.Errors) > 0 {
			fields = append(fields, zap.String("first_error", report.Errors[0].Message))
		}
		m.logger.Warn("creating execution from an invalid schema", fields...)
	}
}
