// Package llm provides the transform executors used by real-mode executions.
//
// The factory creates an executor based on provider configuration.
// Currently supports:
//   - Anthropic Claude
package llm
