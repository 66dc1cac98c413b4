package interfaces

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
)

// Embedder converts text into a fixed-length vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces a text response for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// StructuredGenerator produces a JSON document conforming to schema
type StructuredGenerator interface {
	GenerateJSON(ctx context.Context, prompt string, schema *jsonschema.Schema) (string, error)
}

// LLM is a model client offering both free text and structured generation
type LLM interface {
	Generator
	StructuredGenerator
}
