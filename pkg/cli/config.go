package cli

import (
	"context"
	"strings"

	"github.com/m-mizutani/aiguide/pkg/adapter"
	"github.com/m-mizutani/aiguide/pkg/interfaces"
	"github.com/m-mizutani/aiguide/pkg/repository"
	"github.com/m-mizutani/aiguide/pkg/usecase/ingest"
	"github.com/m-mizutani/aiguide/pkg/usecase/query"
	"github.com/m-mizutani/aiguide/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const (
	providerGemini = "gemini"
	providerOpenAI = "openai"
	providerClaude = "claude"

	storeFirestore = "firestore"
	storeQdrant    = "qdrant"
	storeMemory    = "memory"
)

// config holds configuration values
type config struct {
	// Repository
	store      string
	project    string
	database   string
	collection string
	qdrantHost string
	qdrantPort int64
	qdrantKey  string
	qdrantTLS  bool
	dataset    string

	// Adapters
	llmProvider       string
	embedderProvider  string
	geminiProject     string
	geminiLocation    string
	geminiAPIKey      string
	geminiModel       string
	geminiEmbedModel  string
	embeddingDim      int64
	openaiAPIKey      string
	openaiBaseURL     string
	openaiModel       string
	openaiEmbedModel  string
	anthropicAPIKey   string
	claudeModel       string
	redisAddr         string
	redisPassword     string
	rateLimit         int64
	pipelineConfigLoc string

	gemini  *adapter.GeminiClient
	closers []func()
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to pipeline YAML config",
			Sources:     cli.EnvVars("AIGUIDE_CONFIG"),
			Destination: &cfg.pipelineConfigLoc,
		},
	}
}

// storeFlags returns flags for the vector store with destination config
func storeFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "store",
			Usage:       "Vector store (firestore, qdrant, memory)",
			Value:       storeFirestore,
			Sources:     cli.EnvVars("AIGUIDE_STORE"),
			Destination: &cfg.store,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "collection",
			Usage:       "Firestore or Qdrant collection name",
			Value:       "restaurants",
			Sources:     cli.EnvVars("AIGUIDE_COLLECTION"),
			Destination: &cfg.collection,
		},
		&cli.StringFlag{
			Name:        "qdrant-host",
			Usage:       "Qdrant gRPC host",
			Value:       "localhost",
			Sources:     cli.EnvVars("QDRANT_HOST"),
			Destination: &cfg.qdrantHost,
		},
		&cli.IntFlag{
			Name:        "qdrant-port",
			Usage:       "Qdrant gRPC port",
			Value:       6334,
			Sources:     cli.EnvVars("QDRANT_PORT"),
			Destination: &cfg.qdrantPort,
		},
		&cli.StringFlag{
			Name:        "qdrant-api-key",
			Usage:       "Qdrant API key",
			Sources:     cli.EnvVars("QDRANT_API_KEY"),
			Destination: &cfg.qdrantKey,
		},
		&cli.BoolFlag{
			Name:        "qdrant-tls",
			Usage:       "Connect to Qdrant over TLS",
			Sources:     cli.EnvVars("QDRANT_TLS"),
			Destination: &cfg.qdrantTLS,
		},
		&cli.StringFlag{
			Name:        "dataset",
			Usage:       "CSV (local or gs://) loaded into the memory store at startup",
			Sources:     cli.EnvVars("AIGUIDE_DATASET"),
			Destination: &cfg.dataset,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm",
			Usage:       "Generative model provider (gemini, openai, claude)",
			Value:       providerGemini,
			Sources:     cli.EnvVars("AIGUIDE_LLM"),
			Destination: &cfg.llmProvider,
		},
		&cli.StringFlag{
			Name:        "embedder",
			Usage:       "Embedding model provider (gemini, openai)",
			Value:       providerGemini,
			Sources:     cli.EnvVars("AIGUIDE_EMBEDDER"),
			Destination: &cfg.embedderProvider,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini on Vertex AI",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key, used when no project is set",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini generative model",
			Value:       adapter.DefaultGeminiGenerativeModel,
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "gemini-embedding-model",
			Usage:       "Gemini embedding model",
			Value:       adapter.DefaultGeminiEmbeddingModel,
			Sources:     cli.EnvVars("GEMINI_EMBEDDING_MODEL"),
			Destination: &cfg.geminiEmbedModel,
		},
		&cli.IntFlag{
			Name:        "embedding-dimension",
			Usage:       "Embedding dimension, 0 for the model default",
			Sources:     cli.EnvVars("AIGUIDE_EMBEDDING_DIMENSION"),
			Destination: &cfg.embeddingDim,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "API key of an OpenAI-compatible endpoint such as Groq",
			Sources:     cli.EnvVars("OPENAI_API_KEY", "GROQ_API_KEY"),
			Destination: &cfg.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Usage:       "Base URL of the OpenAI-compatible endpoint",
			Value:       adapter.GroqBaseURL,
			Sources:     cli.EnvVars("OPENAI_BASE_URL"),
			Destination: &cfg.openaiBaseURL,
		},
		&cli.StringFlag{
			Name:        "openai-model",
			Usage:       "Chat model of the OpenAI-compatible endpoint",
			Value:       adapter.DefaultOpenAIChatModel,
			Sources:     cli.EnvVars("OPENAI_MODEL"),
			Destination: &cfg.openaiModel,
		},
		&cli.StringFlag{
			Name:        "openai-embedding-model",
			Usage:       "Embedding model of the OpenAI-compatible endpoint",
			Sources:     cli.EnvVars("OPENAI_EMBEDDING_MODEL"),
			Destination: &cfg.openaiEmbedModel,
		},
		&cli.StringFlag{
			Name:        "anthropic-api-key",
			Usage:       "Anthropic API key for the claude provider",
			Sources:     cli.EnvVars("ANTHROPIC_API_KEY"),
			Destination: &cfg.anthropicAPIKey,
		},
		&cli.StringFlag{
			Name:        "claude-model",
			Usage:       "Claude model",
			Value:       adapter.DefaultClaudeModel,
			Sources:     cli.EnvVars("CLAUDE_MODEL"),
			Destination: &cfg.claudeModel,
		},
		&cli.StringFlag{
			Name:        "redis-addr",
			Usage:       "Redis address for the embedding cache, disabled when empty",
			Sources:     cli.EnvVars("AIGUIDE_REDIS_ADDR"),
			Destination: &cfg.redisAddr,
		},
		&cli.StringFlag{
			Name:        "redis-password",
			Usage:       "Redis password",
			Sources:     cli.EnvVars("AIGUIDE_REDIS_PASSWORD"),
			Destination: &cfg.redisPassword,
		},
		&cli.IntFlag{
			Name:        "rate-limit",
			Usage:       "Maximum model calls per minute, 0 for unlimited",
			Sources:     cli.EnvVars("AIGUIDE_RATE_LIMIT"),
			Destination: &cfg.rateLimit,
		},
	}
}

func (cfg *config) close() {
	for i := len(cfg.closers) - 1; i >= 0; i-- {
		cfg.closers[i]()
	}
	cfg.closers = nil
}

func (cfg *config) onClose(f func()) {
	cfg.closers = append(cfg.closers, f)
}

// newGemini creates the Gemini adapter once and shares it between LLM and embedder
func (cfg *config) newGemini(ctx context.Context) (*adapter.GeminiClient, error) {
	if cfg.gemini != nil {
		return cfg.gemini, nil
	}
	if cfg.geminiProject == "" && cfg.geminiAPIKey == "" {
		return nil, goerr.New("gemini-project or gemini-api-key is required")
	}

	opts := []adapter.GeminiOption{
		adapter.WithGenerativeModel(cfg.geminiModel),
		adapter.WithEmbeddingModel(cfg.geminiEmbedModel),
	}
	if cfg.embeddingDim > 0 {
		opts = append(opts, adapter.WithEmbeddingDimension(int(cfg.embeddingDim)))
	}

	client, err := adapter.NewGemini(ctx, adapter.GeminiConfig{
		ProjectID: cfg.geminiProject,
		Location:  cfg.geminiLocation,
		APIKey:    cfg.geminiAPIKey,
	}, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini client")
	}
	cfg.gemini = client
	return client, nil
}

func (cfg *config) newOpenAI() (*adapter.OpenAIClient, error) {
	if cfg.openaiAPIKey == "" {
		return nil, goerr.New("openai-api-key is required")
	}
	client, err := adapter.NewOpenAI(adapter.OpenAIConfig{
		APIKey:         cfg.openaiAPIKey,
		BaseURL:        cfg.openaiBaseURL,
		ChatModel:      cfg.openaiModel,
		EmbeddingModel: cfg.openaiEmbedModel,
		Dimensions:     int(cfg.embeddingDim),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create openai client")
	}
	return client, nil
}

// newClaude creates a new Claude adapter instance
func (cfg *config) newClaude() (*adapter.ClaudeClient, error) {
	if cfg.anthropicAPIKey == "" {
		return nil, goerr.New("anthropic-api-key is required")
	}
	client, err := adapter.NewClaude(adapter.ClaudeConfig{
		APIKey: cfg.anthropicAPIKey,
		Model:  cfg.claudeModel,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create claude client")
	}
	return client, nil
}

// newLLM creates the generative model adapter, throttled when rate-limit is set
func (cfg *config) newLLM(ctx context.Context) (interfaces.LLM, error) {
	var llm interfaces.LLM
	switch strings.ToLower(cfg.llmProvider) {
	case providerGemini:
		client, err := cfg.newGemini(ctx)
		if err != nil {
			return nil, err
		}
		llm = client
	case providerOpenAI:
		client, err := cfg.newOpenAI()
		if err != nil {
			return nil, err
		}
		llm = client
	case providerClaude:
		client, err := cfg.newClaude()
		if err != nil {
			return nil, err
		}
		llm = client
	default:
		return nil, goerr.New("unsupported llm provider", goerr.V("llm", cfg.llmProvider))
	}

	if cfg.rateLimit > 0 {
		llm = adapter.NewThrottle(int(cfg.rateLimit), 1, llm, nil)
	}
	return llm, nil
}

// newEmbedder creates the embedding adapter, cached in Redis when redis-addr is set
func (cfg *config) newEmbedder(ctx context.Context) (interfaces.Embedder, error) {
	var embedder interfaces.Embedder
	var namespace string
	switch strings.ToLower(cfg.embedderProvider) {
	case providerGemini:
		client, err := cfg.newGemini(ctx)
		if err != nil {
			return nil, err
		}
		embedder = client
		namespace = cfg.geminiEmbedModel
	case providerOpenAI:
		if cfg.openaiEmbedModel == "" {
			return nil, goerr.New("openai-embedding-model is required")
		}
		client, err := cfg.newOpenAI()
		if err != nil {
			return nil, err
		}
		embedder = client
		namespace = cfg.openaiEmbedModel
	default:
		return nil, goerr.New("unsupported embedder provider", goerr.V("embedder", cfg.embedderProvider))
	}

	if cfg.rateLimit > 0 {
		embedder = adapter.NewThrottle(int(cfg.rateLimit), 1, nil, embedder)
	}

	if cfg.redisAddr != "" {
		client, err := adapter.NewRedis(adapter.RedisConfig{
			Addrs:    []string{cfg.redisAddr},
			Password: cfg.redisPassword,
		})
		if err != nil {
			return nil, err
		}
		cfg.onClose(client.Close)
		embedder = adapter.NewEmbeddingCache(client, embedder, adapter.WithCacheNamespace(namespace))
	}

	return embedder, nil
}

// newRepository creates a new repository instance
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	var repo repository.Repository
	switch strings.ToLower(cfg.store) {
	case storeFirestore:
		if cfg.project == "" {
			return nil, goerr.New("project is required")
		}
		if cfg.database == "" {
			return nil, goerr.New("database is required")
		}
		fs, err := repository.NewFirestore(ctx, cfg.project, cfg.database, repository.WithCollection(cfg.collection))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create repository")
		}
		repo = fs

	case storeQdrant:
		if cfg.qdrantHost == "" {
			return nil, goerr.New("qdrant-host is required")
		}
		q, err := repository.NewQdrant(repository.QdrantConfig{
			Host:       cfg.qdrantHost,
			Port:       int(cfg.qdrantPort),
			APIKey:     cfg.qdrantKey,
			UseTLS:     cfg.qdrantTLS,
			Collection: cfg.collection,
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create repository")
		}
		repo = q

	case storeMemory:
		repo = repository.NewMemory()

	default:
		return nil, goerr.New("unsupported store", goerr.V("store", cfg.store))
	}

	cfg.onClose(func() {
		if err := repo.Close(); err != nil {
			logging.Default().Warn("failed to close repository", "error", err)
		}
	})
	return repo, nil
}

// newStorage creates the Cloud Storage adapter for gs:// datasets
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	storage, err := adapter.NewStorage(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	cfg.onClose(func() { _ = storage.Close() })
	return storage, nil
}

// newQuery builds the query pipeline. A memory store is populated from --dataset first.
func (cfg *config) newQuery(ctx context.Context) (*query.UseCase, error) {
	if cfg.dataset != "" && strings.ToLower(cfg.store) != storeMemory {
		return nil, goerr.New("dataset is only supported with the memory store", goerr.V("store", cfg.store))
	}

	pipeline, err := loadPipelineConfig(cfg.pipelineConfigLoc)
	if err != nil {
		return nil, err
	}

	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}
	embedder, err := cfg.newEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	llm, err := cfg.newLLM(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.dataset != "" {
		if err := cfg.preload(ctx, embedder, repo); err != nil {
			return nil, err
		}
	}

	return query.New(embedder, repo, llm, pipeline.options()...), nil
}

func (cfg *config) preload(ctx context.Context, embedder interfaces.Embedder, store interfaces.VectorStore) error {
	var opts []ingest.Option
	if strings.HasPrefix(cfg.dataset, "gs://") {
		storage, err := cfg.newStorage(ctx)
		if err != nil {
			return err
		}
		opts = append(opts, ingest.WithStorage(storage))
	}

	report, err := ingest.New(embedder, store, opts...).ImportCSV(ctx, cfg.dataset)
	if err != nil {
		return goerr.Wrap(err, "failed to preload dataset", goerr.V("dataset", cfg.dataset))
	}
	if report.Inserted == 0 {
		return goerr.New("no restaurant loaded from dataset",
			goerr.V("dataset", cfg.dataset), goerr.V("failed", report.Failed))
	}
	return nil
}
