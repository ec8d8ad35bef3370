package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aescanero/capo/pkg/domain"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// Defaults applied when neither the capability nor the process sets them
const (
	DefaultModel     = anthropic.ModelClaudeSonnet4_20250514
	DefaultMaxTokens = 1024
)

// MessageClient sends a Messages API request. *anthropic.MessageService
// satisfies it.
type MessageClient interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// NewMessageClient creates an Anthropic Messages client for apiKey
func NewMessageClient(apiKey string) (MessageClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("LLM API key is required")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &client.Messages, nil
}

// Config configures an LLM capability
type Config struct {
	Prompt    string `json:"prompt"`
	System    string `json:"system"`
	Model     string `json:"model"`
	MaxTokens int64  `json:"max_tokens"`
	// JSONOutput passes a JSON reply through as data instead of a string
	JSONOutput bool `json:"json_output"`
}

// Capability sends the configured prompt plus call parameters to a model
// and returns the text reply as data.
type Capability struct {
	client     MessageClient
	prompt     string
	system     string
	model      anthropic.Model
	maxTokens  int64
	jsonOutput bool
	logger     *zap.Logger
}

// New creates an LLM capability. Empty model and max tokens fall back to
// defaultModel and defaultMaxTokens, then to the package defaults.
func New(cfg Config, client MessageClient, defaultModel string, defaultMaxTokens int64, logger *zap.Logger) (*Capability, error) {
	if client == nil {
		return nil, fmt.Errorf("LLM client is required")
	}
	if strings.TrimSpace(cfg.Prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.Model(defaultModel)
	}
	if model == "" {
		model = DefaultModel
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &Capability{
		client:     client,
		prompt:     cfg.Prompt,
		system:     cfg.System,
		model:      model,
		maxTokens:  maxTokens,
		jsonOutput: cfg.JSONOutput,
		logger:     logger,
	}, nil
}

// Execute sends one message. API errors are returned as faults.
func (c *Capability) Execute(ctx context.Context, tenantID int, parameters json.RawMessage) (*domain.CapabilityResult, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(c.userPrompt(tenantID, parameters))),
		},
	}
	if c.system != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: c.system},
		}
	}

	resp, err := c.client.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("LLM call failed: %w", err)
	}

	c.logger.Debug("llm call completed",
		zap.String("model", string(c.model)),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens))

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}

	data, err := c.encode(text.String())
	if err != nil {
		return nil, err
	}
	return domain.SuccessResult(data, nil), nil
}

func (c *Capability) userPrompt(tenantID int, parameters json.RawMessage) string {
	var b strings.Builder
	b.WriteString(c.prompt)
	fmt.Fprintf(&b, "\n\nTenant: %d", tenantID)
	if len(bytes.TrimSpace(parameters)) > 0 {
		b.WriteString("\nParameters:\n")
		b.Write(parameters)
	}
	return b.String()
}

func (c *Capability) encode(text string) (json.RawMessage, error) {
	if c.jsonOutput {
		trimmed := strings.TrimSpace(text)
		if json.Valid([]byte(trimmed)) {
			return json.RawMessage(trimmed), nil
		}
		return nil, fmt.Errorf("model reply is not valid JSON")
	}
	data, err := json.Marshal(text)
	if err != nil {
		return nil, fmt.Errorf("encode reply: %w", err)
	}
	return data, nil
}
