package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
)

const (
	DefaultClaudeModel     = string(anthropic.ModelClaudeSonnet4_5)
	defaultClaudeMaxTokens = 2048
)

// ClaudeConfig configures the Anthropic Messages API client
type ClaudeConfig struct {
	APIKey string
	// BaseURL overrides the API endpoint, mainly for a proxy
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature *float64
}

// ClaudeClient implements interfaces.LLM. Claude has no embedding model, so it is paired with
// another Embedder.
type ClaudeClient struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature *float64
}

// NewClaude creates a new Claude API client
func NewClaude(cfg ClaudeConfig) (*ClaudeClient, error) {
	if cfg.APIKey == "" {
		return nil, goerr.New("API key is required for Claude client")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	c := &ClaudeClient{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
	if c.model == "" {
		c.model = DefaultClaudeModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultClaudeMaxTokens
	}
	return c, nil
}

func (c *ClaudeClient) chat(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if c.temperature != nil {
		params.Temperature = anthropic.Float(*c.temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		opts := []goerr.Option{goerr.V("model", c.model)}
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			opts = append(opts, goerr.V("status", apiErr.StatusCode), goerr.V("request_id", apiErr.RequestID))
		}
		return "", goerr.Wrap(err, "failed to create message", opts...)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", goerr.New("empty message response", goerr.V("model", c.model), goerr.V("stop_reason", msg.StopReason))
	}
	return b.String(), nil
}

// Generate implements interfaces.Generator
func (c *ClaudeClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.chat(ctx, "", prompt)
}

// GenerateJSON implements interfaces.StructuredGenerator. The schema is given in the system
// prompt and a fenced reply is unwrapped.
func (c *ClaudeClient) GenerateJSON(ctx context.Context, prompt string, schema *jsonschema.Schema) (string, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal response schema")
	}

	system := "Respond with a single JSON object that conforms to this JSON schema and nothing else: " + string(schemaJSON)
	text, err := c.chat(ctx, system, prompt)
	if err != nil {
		return "", err
	}
	return unfenceJSON(text), nil
}

func unfenceJSON(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
