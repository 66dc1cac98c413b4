package adapter

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

const (
	DefaultGeminiGenerativeModel = "gemini-2.5-flash"
	DefaultGeminiEmbeddingModel  = "gemini-embedding-001"
)

// GeminiConfig selects the backend of the Gemini client. Vertex AI is used when ProjectID is
// set, otherwise APIKey is required for the Gemini API.
type GeminiConfig struct {
	ProjectID string
	Location  string
	APIKey    string

	// BaseURL overrides the API endpoint, mainly for a proxy
	BaseURL string
}

// GeminiClient implements interfaces.Embedder and interfaces.LLM on top of genai
type GeminiClient struct {
	client          *genai.Client
	generativeModel string
	embeddingModel  string
	dimension       int32
	temperature     *float32
}

type GeminiOption func(*GeminiClient)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.generativeModel = model
	}
}

func WithEmbeddingModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.embeddingModel = model
	}
}

// WithEmbeddingDimension truncates embeddings to the given size. 0 keeps the model default.
func WithEmbeddingDimension(dim int) GeminiOption {
	return func(g *GeminiClient) {
		g.dimension = int32(dim)
	}
}

func WithTemperature(t float32) GeminiOption {
	return func(g *GeminiClient) {
		g.temperature = &t
	}
}

func NewGemini(ctx context.Context, cfg GeminiConfig, opts ...GeminiOption) (*GeminiClient, error) {
	cc := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	}

	switch {
	case cfg.ProjectID != "":
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.ProjectID
		cc.Location = cfg.Location
	case cfg.APIKey != "":
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	default:
		return nil, goerr.New("either gemini project ID or API key is required")
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client",
			goerr.V("project", cfg.ProjectID), goerr.V("location", cfg.Location))
	}

	g := &GeminiClient{
		client:          client,
		generativeModel: DefaultGeminiGenerativeModel,
		embeddingModel:  DefaultGeminiEmbeddingModel,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Generate implements interfaces.Generator
func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: g.temperature,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, genai.Text(prompt), config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate content", goerr.V("model", g.generativeModel))
	}

	text := resp.Text()
	if text == "" {
		return "", goerr.New("empty response from gemini", goerr.V("model", g.generativeModel))
	}
	return text, nil
}

// GenerateJSON implements interfaces.StructuredGenerator. The response is constrained to schema.
func (g *GeminiClient) GenerateJSON(ctx context.Context, prompt string, schema *jsonschema.Schema) (string, error) {
	responseSchema, err := convertJSONSchemaToGenai(schema)
	if err != nil {
		return "", goerr.Wrap(err, "failed to convert response schema")
	}

	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		Temperature:      g.temperature,
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema,
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: &thinkingBudget,
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, genai.Text(prompt), config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate JSON content", goerr.V("model", g.generativeModel))
	}

	text := resp.Text()
	if text == "" {
		return "", goerr.New("empty JSON response from gemini", goerr.V("model", g.generativeModel))
	}
	return text, nil
}

// Embed implements interfaces.Embedder
func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	config := &genai.EmbedContentConfig{}
	if g.dimension > 0 {
		config.OutputDimensionality = &g.dimension
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content", goerr.V("model", g.embeddingModel))
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, goerr.New("no embedding returned", goerr.V("model", g.embeddingModel))
	}

	return resp.Embeddings[0].Values, nil
}
