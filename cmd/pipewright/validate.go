package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aescanero/pipewright/internal/application/validator"
	"github.com/aescanero/pipewright/pkg/adapters/storage/file"
	"github.com/aescanero/pipewright/pkg/domain"
)

var validateCmd = &cobra.Command{
	Use:   "validate FILE...",
	Short: "Validate pipeline schema files",
	Long: `Validate one or more pipeline schema files (YAML or JSON) without
starting the server.

Exit codes:
  0 - every schema passed or only raised warnings
  1 - at least one schema failed or could not be read

Examples:
  # Validate a schema with every validator
  pipewright validate pipelines/summarise.yaml

  # Only check the graph shape, print JSON
  pipewright validate --types topology --output json pipelines/*.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

// Flags for validate command
var (
	validateTypes  []string
	validateOutput string
)

// errValidationFailed marks a run where some schema did not pass
var errValidationFailed = errors.New("validation failed")

func init() {
	validateCmd.Flags().StringSliceVar(&validateTypes, "types", nil, "validators to run (topology, variables, completeness, constraints)")
	validateCmd.Flags().StringVarP(&validateOutput, "output", "o", "text", "output format (text, json, yaml)")
}

// fileReport is the outcome for one file
type fileReport struct {
	File     string                   `json:"file" yaml:"file"`
	SchemaID string                   `json:"schema_id,omitempty" yaml:"schema_id,omitempty"`
	Error    string                   `json:"error,omitempty" yaml:"error,omitempty"`
	Report   *domain.ValidationReport `json:"report,omitempty" yaml:"report,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	types, err := validator.ParseTypes(validateTypes)
	if err != nil {
		return err
	}
	switch validateOutput {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unsupported output format: %s", validateOutput)
	}

	v := validator.NewValidator()
	reports := make([]fileReport, 0, len(args))
	failed := false

	for _, path := range args {
		fr := fileReport{File: path}
		schema, err := file.LoadFile(path)
		if err != nil {
			fr.Error = err.Error()
			failed = true
			reports = append(reports, fr)
			continue
		}
		fr.SchemaID = schema.ID

		report, err := v.Validate(schema, types...)
		if err != nil {
			return err
		}
		fr.Report = report
		if !report.Valid() {
			failed = true
		}
		reports = append(reports, fr)
	}

	if err := writeReports(cmd.OutOrStdout(), reports, validateOutput); err != nil {
		return err
	}
	if failed {
		return errValidationFailed
	}
	return nil
}

func writeReports(w io.Writer, reports []fileReport, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer func() { _ = enc.Close() }()
		return enc.Encode(reports)
	}

	for _, fr := range reports {
		if fr.Error != "" {
			fmt.Fprintf(w, "%s: ERROR %s\n", fr.File, fr.Error)
			continue
		}
		fmt.Fprintf(w, "%s (%s): %s\n", fr.File, fr.SchemaID, strings.ToUpper(string(fr.Report.OverallStatus)))
		for _, t := range domain.ValidationTypes {
			res, ok := fr.Report.Results[t]
			if !ok {
				continue
			}
			fmt.Fprintf(w, "  %-13s %s\n", t, res.Status)
			for _, issue := range res.Errors {
				fmt.Fprintf(w, "    error   %s%s: %s\n", issue.Code, nodeSuffix(issue.NodeID), issue.Message)
			}
			for _, issue := range res.Warnings {
				fmt.Fprintf(w, "    warning %s%s: %s\n", issue.Code, nodeSuffix(issue.NodeID), issue.Message)
			}
		}
	}
	return nil
}

func nodeSuffix(nodeID string) string {
	if nodeID == "" {
		return ""
	}
	return " [" + nodeID + "]"
}
