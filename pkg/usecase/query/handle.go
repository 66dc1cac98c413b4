package query

import (
	"context"
	"strings"

	"github.com/m-mizutani/aiguide/pkg/model"
	"github.com/m-mizutani/aiguide/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Answer is the outcome of one query
type Answer struct {
	Response string
	// Images are image references of the retrieved restaurants in rank order
	Images  []string
	Results []*model.SearchResult
	Filter  *model.FilterCriteria

	// Insufficient is set when nothing was retrieved and Response is InsufficientInfoMessage
	Insufficient bool
	// Fallback is set when an upstream call failed and Response is FallbackMessage
	Fallback bool
}

func fallbackAnswer() *Answer {
	return &Answer{Response: FallbackMessage, Fallback: true}
}

// HandleQuery answers query from the k nearest restaurants. k = 0 uses the configured default
// and k must not exceed MaxTopK. Filter extraction and generation each get the generation timeout.
// Only invalid input is returned as an error. Upstream failures produce a fallback Answer and
// leave the history untouched.
func (uc *UseCase) HandleQuery(ctx context.Context, query string, k int) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, goerr.Wrap(ErrInvalidQuery, "query is empty")
	}
	if k < 0 || k > MaxTopK {
		return nil, goerr.Wrap(ErrInvalidQuery, "k is out of range", goerr.V("k", k), goerr.V("max", MaxTopK))
	}
	if k == 0 {
		k = uc.topK
	}

	logger := logging.From(ctx).With("query", query, "k", k)

	var filter *model.FilterCriteria
	if uc.extractFilter {
		extractCtx, cancel := context.WithTimeout(ctx, uc.generateTimeout)
		result := uc.extractor.Extract(extractCtx, query)
		cancel()
		if !result.OK {
			logger.Warn("filter extraction failed, searching without filter", "reason", result.Reason)
		}
		filter = result.Filter()
	}
	logger.Debug("search filter", "filter", filter)

	embedding, err := uc.embedder.Embed(ctx, query)
	if err != nil {
		logger.Error("failed to embed query", "error", err)
		return fallbackAnswer(), nil
	}

	results, err := uc.store.SearchRestaurants(ctx, embedding, k, filter)
	if err != nil {
		logger.Error("failed to search restaurants", "error", err)
		return fallbackAnswer(), nil
	}

	if len(results) == 0 {
		logger.Info("no restaurant retrieved")
		uc.history.Append(model.NewHistoryEntry(query, nil, InsufficientInfoMessage))
		return &Answer{
			Response:     InsufficientInfoMessage,
			Filter:       filter,
			Insufficient: true,
		}, nil
	}

	results = rank(results, uc.weights)

	prompt, err := buildAnswerPrompt(answerPromptInput{
		Persona: uc.persona,
		History: uc.history.Render(),
		Context: renderContext(results),
		Query:   query,
	})
	if err != nil {
		logger.Error("failed to build prompt", "error", err)
		return fallbackAnswer(), nil
	}

	genCtx, cancel := context.WithTimeout(ctx, uc.generateTimeout)
	defer cancel()

	response, err := uc.llm.Generate(genCtx, prompt)
	if err != nil {
		logger.Error("failed to generate response", "error", err, "timeout", uc.generateTimeout)
		return fallbackAnswer(), nil
	}

	uc.history.Append(model.NewHistoryEntry(query, results, response))
	logger.Info("query answered", "results", len(results))

	return &Answer{
		Response: response,
		Images:   collectImages(results),
		Results:  results,
		Filter:   filter,
	}, nil
}

func collectImages(results []*model.SearchResult) []string {
	images := make([]string, 0, len(results))
	for _, r := range results {
		if r.Restaurant.ImageURL != "" {
			images = append(images, r.Restaurant.ImageURL)
		}
	}
	return images
}
