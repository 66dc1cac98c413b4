package adapter

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// GroqBaseURL is the OpenAI-compatible endpoint of Groq
	GroqBaseURL = "https://api.groq.com/openai/v1"

	DefaultOpenAIChatModel = "llama-3.3-70b-versatile"
)

// OpenAIConfig configures an OpenAI-compatible chat and embedding client such as Groq
type OpenAIConfig struct {
	APIKey  string
	BaseURL string

	ChatModel      string
	EmbeddingModel string
	Dimensions     int
	Temperature    *float32
}

// OpenAIClient implements interfaces.LLM, and interfaces.Embedder when an embedding model is set
type OpenAIClient struct {
	client         *openai.Client
	chatModel      string
	embeddingModel openai.EmbeddingModel
	dimensions     int
	temperature    *float32
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, goerr.New("API key is required for OpenAI compatible client")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = DefaultOpenAIChatModel
	}

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(clientCfg),
		chatModel:      chatModel,
		embeddingModel: openai.EmbeddingModel(cfg.EmbeddingModel),
		dimensions:     cfg.Dimensions,
		temperature:    cfg.Temperature,
	}, nil
}

func (c *OpenAIClient) chatRequest(messages []openai.ChatCompletionMessage) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    c.chatModel,
		Messages: messages,
	}
	if c.temperature != nil {
		req.Temperature = *c.temperature
	}
	return req
}

func (c *OpenAIClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", wrapOpenAIError(err, "failed to create chat completion", c.chatModel)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", goerr.New("empty chat completion", goerr.V("model", c.chatModel))
	}
	return resp.Choices[0].Message.Content, nil
}

// Generate implements interfaces.Generator
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	req := c.chatRequest([]openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	})
	return c.complete(ctx, req)
}

// GenerateJSON implements interfaces.StructuredGenerator. JSON object mode is used because
// not every compatible provider supports json_schema; the schema is given as a system message.
func (c *OpenAIClient) GenerateJSON(ctx context.Context, prompt string, schema *jsonschema.Schema) (string, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal response schema")
	}

	req := c.chatRequest([]openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: "Respond with a single JSON object that conforms to this JSON schema: " + string(schemaJSON)},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	})
	req.ResponseFormat = &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	}
	return c.complete(ctx, req)
}

// Embed implements interfaces.Embedder
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.embeddingModel == "" {
		return nil, goerr.New("embedding model is not configured for OpenAI compatible client")
	}

	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          c.embeddingModel,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if c.dimensions > 0 {
		req.Dimensions = c.dimensions
	}

	resp, err := c.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, wrapOpenAIError(err, "failed to create embedding", string(c.embeddingModel))
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, goerr.New("empty embedding response", goerr.V("model", c.embeddingModel))
	}
	return resp.Data[0].Embedding, nil
}

func wrapOpenAIError(err error, msg, model string) error {
	opts := []goerr.Option{goerr.V("model", model)}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		opts = append(opts, goerr.V("status", apiErr.HTTPStatusCode), goerr.V("detail", apiErr.Message))
	case errors.As(err, &reqErr):
		opts = append(opts, goerr.V("status", reqErr.HTTPStatusCode), goerr.V("body", string(reqErr.Body)))
	}

	return goerr.Wrap(err, msg, opts...)
}
