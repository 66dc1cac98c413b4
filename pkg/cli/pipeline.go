package cli

import (
	"os"
	"time"

	"github.com/m-mizutani/aiguide/pkg/usecase/query"
	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// pipelineConfig is the tuning file of the query pipeline. Missing keys keep their defaults.
type pipelineConfig struct {
	TopK            int                `yaml:"top_k"`
	HistoryCapacity int                `yaml:"history_capacity"`
	GenerateTimeout time.Duration      `yaml:"generate_timeout"`
	RankWeights     *rankWeightsConfig `yaml:"rank_weights"`
	ExtractFilter   *bool              `yaml:"extract_filter"`
	Persona         string             `yaml:"persona"`
}

// rankWeightsConfig overrides single ranking weights; unset ones keep query.DefaultRankWeights
type rankWeightsConfig struct {
	Similarity *float64 `yaml:"similarity"`
	Rating     *float64 `yaml:"rating"`
	Votes      *float64 `yaml:"votes"`
	Cost       *float64 `yaml:"cost"`
}

func (c *rankWeightsConfig) weights() query.RankWeights {
	w := query.DefaultRankWeights()
	if c == nil {
		return w
	}
	for _, f := range []struct {
		src *float64
		dst *float64
	}{
		{c.Similarity, &w.Similarity},
		{c.Rating, &w.Rating},
		{c.Votes, &w.Votes},
		{c.Cost, &w.Cost},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	return w
}

func loadPipelineConfig(path string) (*pipelineConfig, error) {
	cfg := &pipelineConfig{}
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read pipeline config", goerr.V("path", path))
	}

	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse pipeline config", goerr.V("path", path))
	}
	if err := cfg.validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid pipeline config", goerr.V("path", path))
	}

	return cfg, nil
}

func (cfg *pipelineConfig) validate() error {
	if cfg.TopK < 0 {
		return goerr.New("top_k must not be negative", goerr.V("top_k", cfg.TopK))
	}
	if cfg.HistoryCapacity < 0 {
		return goerr.New("history_capacity must not be negative", goerr.V("history_capacity", cfg.HistoryCapacity))
	}
	if cfg.GenerateTimeout < 0 {
		return goerr.New("generate_timeout must not be negative", goerr.V("generate_timeout", cfg.GenerateTimeout))
	}
	if cfg.RankWeights != nil {
		w := cfg.RankWeights.weights()
		if w.Similarity < 0 || w.Rating < 0 || w.Votes < 0 || w.Cost < 0 {
			return goerr.New("rank weights must not be negative", goerr.V("rank_weights", w))
		}
	}
	return nil
}

func (cfg *pipelineConfig) options() []query.Option {
	opts := []query.Option{
		query.WithTopK(cfg.TopK),
		query.WithGenerateTimeout(cfg.GenerateTimeout),
		query.WithPersona(cfg.Persona),
	}
	if cfg.HistoryCapacity > 0 {
		opts = append(opts, query.WithHistoryCapacity(cfg.HistoryCapacity))
	}
	if cfg.RankWeights != nil {
		opts = append(opts, query.WithRankWeights(cfg.RankWeights.weights()))
	}
	if cfg.ExtractFilter != nil {
		opts = append(opts, query.WithFilterExtraction(*cfg.ExtractFilter))
	}
	return opts
}
