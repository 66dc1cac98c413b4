package query

import (
	"time"

	"github.com/m-mizutani/aiguide/pkg/interfaces"
	"github.com/m-mizutani/goerr/v2"
)

const (
	DefaultTopK            = 5
	// MaxTopK is the largest k accepted, the nearest-neighbor limit of Firestore
	MaxTopK                = 1000
	DefaultGenerateTimeout = 60 * time.Second
	DefaultPersona         = "You are a friendly restaurant recommender helping a user decide where to eat."

	// InsufficientInfoMessage answers a query when no restaurant was retrieved
	InsufficientInfoMessage = "I couldn't find enough information about restaurants matching your request. Could you rephrase it or loosen the criteria?"
	// FallbackMessage answers a query when an upstream service failed
	FallbackMessage = "Sorry, I'm unable to process your request right now. Please try again in a moment."
)

var (
	ErrInvalidQuery = goerr.New("invalid query")
)

// UseCase answers restaurant questions by retrieval and generation. One instance owns one
// SessionHistory and may be shared by concurrent callers.
type UseCase struct {
	embedder  interfaces.Embedder
	store     interfaces.VectorStore
	llm       interfaces.LLM
	extractor *FilterExtractor
	history   *SessionHistory

	topK            int
	generateTimeout time.Duration
	weights         RankWeights
	extractFilter   bool
	persona         string
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithTopK sets the number of restaurants retrieved when the caller passes k = 0
func WithTopK(k int) Option {
	return func(uc *UseCase) {
		if k > 0 {
			uc.topK = k
		}
	}
}

// WithHistoryCapacity replaces the history with an empty one of the given capacity
func WithHistoryCapacity(capacity int) Option {
	return func(uc *UseCase) {
		uc.history = NewSessionHistory(capacity)
	}
}

func WithGenerateTimeout(d time.Duration) Option {
	return func(uc *UseCase) {
		if d > 0 {
			uc.generateTimeout = d
		}
	}
}

func WithRankWeights(w RankWeights) Option {
	return func(uc *UseCase) {
		uc.weights = w
	}
}

// WithFilterExtraction toggles deriving search filters from the query
func WithFilterExtraction(enabled bool) Option {
	return func(uc *UseCase) {
		uc.extractFilter = enabled
	}
}

func WithPersona(persona string) Option {
	return func(uc *UseCase) {
		if persona != "" {
			uc.persona = persona
		}
	}
}

// New creates a query UseCase
func New(
	embedder interfaces.Embedder,
	store interfaces.VectorStore,
	llm interfaces.LLM,
	opts ...Option,
) *UseCase {
	uc := &UseCase{
		embedder:        embedder,
		store:           store,
		llm:             llm,
		extractor:       NewFilterExtractor(llm),
		history:         NewSessionHistory(DefaultHistoryCapacity),
		topK:            DefaultTopK,
		generateTimeout: DefaultGenerateTimeout,
		weights:         DefaultRankWeights(),
		extractFilter:   true,
		persona:         DefaultPersona,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// GenerateTimeout is the deadline applied to each model call of a turn
func (uc *UseCase) GenerateTimeout() time.Duration {
	return uc.generateTimeout
}

// History returns the session history owned by the use case
func (uc *UseCase) History() *SessionHistory {
	return uc.history
}
