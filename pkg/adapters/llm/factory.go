package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/aescanero/pipewright/pkg/adapters/llm/anthropic"
	"github.com/aescanero/pipewright/pkg/ports"
)

// Config holds transform executor configuration
type Config struct {
	Provider  string
	APIKey    string
	Model     string
	MaxTokens int64

	// RequestsPerSecond caps API calls; zero means unlimited
	RequestsPerSecond float64
	Burst             int

	Metrics anthropic.Metrics
	Logger  *zap.Logger
}

// NewTransformExecutor creates the real-mode transform executor for a provider
func NewTransformExecutor(cfg *Config) (ports.TransformExecutor, error) {
	switch cfg.Provider {
	case "anthropic":
		exec, err := anthropic.NewExecutor(cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.Metrics, cfg.Logger)
		if err != nil {
			return nil, err
		}
		exec.LimitRate(cfg.RequestsPerSecond, cfg.Burst)
		return exec, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
