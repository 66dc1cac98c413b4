package adapter

import (
	"context"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/aiguide/pkg/interfaces"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/time/rate"
)

// Throttle paces model calls to stay within a provider quota. Calls block until a token is
// available or ctx is done.
type Throttle struct {
	limiter  *rate.Limiter
	llm      interfaces.LLM
	embedder interfaces.Embedder
}

var (
	_ interfaces.LLM      = (*Throttle)(nil)
	_ interfaces.Embedder = (*Throttle)(nil)
)

// NewThrottle allows perMinute calls per minute with the given burst. Either llm or embedder
// may be nil when only the other side is used.
func NewThrottle(perMinute, burst int, llm interfaces.LLM, embedder interfaces.Embedder) *Throttle {
	if burst < 1 {
		burst = 1
	}
	return &Throttle{
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(max(perMinute, 1))), burst),
		llm:      llm,
		embedder: embedder,
	}
}

func (t *Throttle) wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return goerr.Wrap(err, "rate limit wait interrupted")
	}
	return nil
}

// Generate implements interfaces.Generator
func (t *Throttle) Generate(ctx context.Context, prompt string) (string, error) {
	if t.llm == nil {
		return "", goerr.New("no generator behind throttle")
	}
	if err := t.wait(ctx); err != nil {
		return "", err
	}
	return t.llm.Generate(ctx, prompt)
}

// GenerateJSON implements interfaces.StructuredGenerator
func (t *Throttle) GenerateJSON(ctx context.Context, prompt string, schema *jsonschema.Schema) (string, error) {
	if t.llm == nil {
		return "", goerr.New("no generator behind throttle")
	}
	if err := t.wait(ctx); err != nil {
		return "", err
	}
	return t.llm.GenerateJSON(ctx, prompt, schema)
}

// Embed implements interfaces.Embedder
func (t *Throttle) Embed(ctx context.Context, text string) ([]float32, error) {
	if t.embedder == nil {
		return nil, goerr.New("no embedder behind throttle")
	}
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.embedder.Embed(ctx, text)
}
