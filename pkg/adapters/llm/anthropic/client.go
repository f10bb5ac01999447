package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Defaults applied when neither the executor nor the node config chooses
const (
	DefaultModel     = "claude-sonnet-4-5"
	DefaultMaxTokens = 1024
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// messageCreator is the part of the SDK message service the executor uses
type messageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Metrics receives one observation per API call
type Metrics interface {
	RecordLLMCall(model, status string, latency time.Duration, inputTokens, outputTokens int64)
}

// Executor runs real-mode transform nodes against the Anthropic Messages API
type Executor struct {
	messages  messageCreator
	model     string
	maxTokens int64
	metrics   Metrics
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewExecutor creates a transform executor with its own API client
func NewExecutor(apiKey, model string, maxTokens int64, metrics Metrics, logger *zap.Logger) (*Executor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return newExecutor(&client.Messages, model, maxTokens, metrics, logger), nil
}

func newExecutor(messages messageCreator, model string, maxTokens int64, metrics Metrics, logger *zap.Logger) *Executor {
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Executor{
		messages:  messages,
		model:     model,
		maxTokens: maxTokens,
		metrics:   metrics,
		logger:    logger,
	}
}

// LimitRate caps outgoing requests at perSecond with the given burst. A
// non-positive rate removes the cap.
func (e *Executor) LimitRate(perSecond float64, burst int) {
	if perSecond <= 0 {
		e.limiter = nil
		return
	}
	if burst < 1 {
		burst = 1
	}
	e.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Execute renders the node prompt against upstream results and returns the
// model reply. Node config keys: prompt (required), system, model,
// max_tokens, temperature, response_format ("json" decodes the reply).
func (e *Executor) Execute(ctx context.Context, nodeConfig map[string]interface{}, upstream map[string]interface{}) (interface{}, error) {
	prompt, _ := nodeConfig["prompt"].(string)
	if prompt == "" {
		return nil, fmt.Errorf("transform config has no prompt")
	}
	prompt = render(prompt, upstream)

	model := e.model
	if m, ok := nodeConfig["model"].(string); ok && m != "" {
		model = m
	}
	maxTokens := e.maxTokens
	if n, ok := number(nodeConfig["max_tokens"]); ok && n > 0 {
		maxTokens = int64(n)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system, ok := nodeConfig["system"].(string); ok && system != "" {
		params.System = []anthropic.TextBlockParam{{Text: render(system, upstream)}}
	}
	if t, ok := number(nodeConfig["temperature"]); ok {
		params.Temperature = anthropic.Float(t)
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	start := time.Now()
	msg, err := e.messages.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		e.record(model, "error", latency, 0, 0)
		e.logger.Error("anthropic request failed",
			zap.String("model", model),
			zap.Duration("latency", latency),
			zap.Error(err))
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	e.record(model, "success", latency, msg.Usage.InputTokens, msg.Usage.OutputTokens)

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	e.logger.Debug("anthropic request completed",
		zap.String("model", model),
		zap.Duration("latency", latency),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens))

	result := map[string]interface{}{
		"text":        text.String(),
		"model":       string(msg.Model),
		"stop_reason": string(msg.StopReason),
		"usage": map[string]interface{}{
			"input_tokens":  msg.Usage.InputTokens,
			"output_tokens": msg.Usage.OutputTokens,
		},
	}

	if format, _ := nodeConfig["response_format"].(string); format == "json" {
		var data interface{}
		if err := json.Unmarshal([]byte(extractJSON(text.String())), &data); err != nil {
			return nil, fmt.Errorf("model reply is not valid JSON: %w", err)
		}
		result["data"] = data
	}

	return result, nil
}

func (e *Executor) record(model, status string, latency time.Duration, in, out int64) {
	if e.metrics != nil {
		e.metrics.RecordLLMCall(model, status, latency, in, out)
	}
}

// render replaces {{node_id.path}} placeholders with upstream values
func render(template string, upstream map[string]interface{}) string {
	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		path := placeholder.FindStringSubmatch(match)[1]
		value, ok := lookup(upstream, path)
		if !ok {
			return match
		}
		if s, isString := value.(string); isString {
			return s
		}
		data, err := json.Marshal(value)
		if err != nil {
			return match
		}
		return string(data)
	})
}

func lookup(data map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = data
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// extractJSON strips a Markdown code fence around a JSON reply
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimPrefix(text, "json")
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
