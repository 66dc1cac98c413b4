package query_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/aiguide/pkg/model"
	"github.com/m-mizutani/aiguide/pkg/repository"
	"github.com/m-mizutani/aiguide/pkg/usecase/query"
	"github.com/m-mizutani/gt"
)

type embedderMock struct {
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
}

func (m *embedderMock) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.EmbedFunc(ctx, text)
}

type storeMock struct {
	UpsertRestaurantFunc  func(ctx context.Context, r *model.Restaurant, embedding []float32) (bool, error)
	GetRestaurantFunc     func(ctx context.Context, id model.RestaurantID) (*model.Restaurant, error)
	SearchRestaurantsFunc func(ctx context.Context, embedding []float32, k int, filter *model.FilterCriteria) ([]*model.SearchResult, error)
}

func (m *storeMock) UpsertRestaurant(ctx context.Context, r *model.Restaurant, embedding []float32) (bool, error) {
	return m.UpsertRestaurantFunc(ctx, r, embedding)
}

func (m *storeMock) GetRestaurant(ctx context.Context, id model.RestaurantID) (*model.Restaurant, error) {
	return m.GetRestaurantFunc(ctx, id)
}

func (m *storeMock) SearchRestaurants(ctx context.Context, embedding []float32, k int, filter *model.FilterCriteria) ([]*model.SearchResult, error) {
	return m.SearchRestaurantsFunc(ctx, embedding, k, filter)
}

// llmMock records prompts. GenerateFunc defaults to echoing the prompt back.
type llmMock struct {
	mu               sync.Mutex
	prompts          []string
	GenerateFunc     func(ctx context.Context, prompt string) (string, error)
	GenerateJSONFunc func(ctx context.Context, prompt string, schema *jsonschema.Schema) (string, error)
}

func (m *llmMock) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.GenerateFunc == nil {
		return prompt, nil
	}
	return m.GenerateFunc(ctx, prompt)
}

func (m *llmMock) GenerateJSON(ctx context.Context, prompt string, schema *jsonschema.Schema) (string, error) {
	if m.GenerateJSONFunc == nil {
		return "{}", nil
	}
	return m.GenerateJSONFunc(ctx, prompt, schema)
}

func (m *llmMock) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func ptr[T any](v T) *T { return &v }

func constEmbedder() *embedderMock {
	return &embedderMock{EmbedFunc: func(context.Context, string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}}
}

func seedStore(t *testing.T, restaurants ...*model.Restaurant) *repository.Memory {
	store := repository.NewMemory()
	for i, r := range restaurants {
		vec := []float32{1, float32(i) * 0.1, 0}
		_, err := store.UpsertRestaurant(context.Background(), r, vec)
		gt.NoError(t, err)
	}
	return store
}

func greenLeaf() *model.Restaurant {
	return &model.Restaurant{
		ID:       model.NewRestaurantID("1"),
		Name:     "Green Leaf",
		Locality: "Anna Nagar",
		City:     "Madurai",
		Cuisines: []string{"Vegetarian", "South Indian"},
		Rating:   ptr(4.3),
		Votes:    ptr(int64(520)),
		Cost:     ptr(150.0),
		ImageURL: "https://img.example.com/1.png",
	}
}

func charcoalGrill() *model.Restaurant {
	return &model.Restaurant{
		ID:       model.NewRestaurantID("2"),
		Name:     "Charcoal Grill",
		City:     "Madurai",
		Cuisines: []string{"BBQ", "North Indian"},
		Rating:   ptr(4.6),
		Cost:     ptr(900.0),
		ImageURL: "https://img.example.com/2.png",
	}
}

func TestHandleQueryFiltersByExtractedCriteria(t *testing.T) {
	store := seedStore(t, greenLeaf(), charcoalGrill())
	llm := &llmMock{
		GenerateJSONFunc: func(_ context.Context, prompt string, _ *jsonschema.Schema) (string, error) {
			gt.S(t, prompt).Contains("vegetarian food under 200 in Madurai")
			return `{"cuisine":"vegetarian","location":"Madurai","max_cost":200}`, nil
		},
	}

	uc := query.New(constEmbedder(), store, llm)
	answer, err := uc.HandleQuery(context.Background(), "vegetarian food under 200 in Madurai", 5)
	gt.NoError(t, err)

	gt.False(t, answer.Fallback)
	gt.False(t, answer.Insufficient)
	gt.S(t, answer.Response).Contains("Green Leaf")
	gt.S(t, answer.Response).NotContains("Charcoal Grill")
	gt.A(t, answer.Images).Length(1)
	gt.Equal(t, answer.Images[0], "https://img.example.com/1.png")
	gt.Equal(t, answer.Filter.Cuisine, "vegetarian")
	gt.Equal(t, uc.History().Len(), 1)
}

func TestHandleQueryHistoryEvictsOldest(t *testing.T) {
	store := seedStore(t, greenLeaf(), charcoalGrill())
	turn := 0
	llm := &llmMock{
		GenerateFunc: func(context.Context, string) (string, error) {
			turn++
			return fmt.Sprintf("answer #%d", turn), nil
		},
	}
	uc := query.New(constEmbedder(), store, llm,
		query.WithHistoryCapacity(2),
		query.WithFilterExtraction(false),
	)

	ctx := context.Background()
	queries := []string{"first question about dosa", "second question about biryani", "third question about kebab"}
	for _, q := range queries {
		_, err := uc.HandleQuery(ctx, q, 2)
		gt.NoError(t, err)
	}

	// the third prompt still sees the two earlier turns
	gt.S(t, llm.prompts[2]).Contains(queries[0])
	gt.S(t, llm.prompts[2]).Contains(queries[1])

	entries := uc.History().Entries()
	gt.A(t, entries).Length(2)
	gt.Equal(t, entries[0].Query(), queries[1])
	gt.Equal(t, entries[1].Query(), queries[2])

	_, err := uc.HandleQuery(ctx, "fourth question", 2)
	gt.NoError(t, err)
	gt.S(t, llm.prompts[3]).NotContains(queries[0])
	gt.S(t, llm.prompts[3]).Contains(queries[1])
	gt.S(t, llm.prompts[3]).Contains(queries[2])
}

func TestHandleQuerySearchFailure(t *testing.T) {
	store := &storeMock{
		SearchRestaurantsFunc: func(context.Context, []float32, int, *model.FilterCriteria) ([]*model.SearchResult, error) {
			return nil, errors.New("connection refused")
		},
	}
	llm := &llmMock{}
	uc := query.New(constEmbedder(), store, llm)

	answer, err := uc.HandleQuery(context.Background(), "anything good near me?", 5)
	gt.NoError(t, err)
	gt.True(t, answer.Fallback)
	gt.Equal(t, answer.Response, query.FallbackMessage)
	gt.Equal(t, uc.History().Len(), 0)
	gt.Equal(t, llm.calls(), 0)
}

func TestHandleQueryEmbedFailure(t *testing.T) {
	embedder := &embedderMock{EmbedFunc: func(context.Context, string) ([]float32, error) {
		return nil, errors.New("quota exceeded")
	}}
	uc := query.New(embedder, seedStore(t, greenLeaf()), &llmMock{})

	answer, err := uc.HandleQuery(context.Background(), "idli", 5)
	gt.NoError(t, err)
	gt.True(t, answer.Fallback)
	gt.Equal(t, uc.History().Len(), 0)
}

func TestHandleQueryGenerateTimeout(t *testing.T) {
	llm := &llmMock{
		GenerateFunc: func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	uc := query.New(constEmbedder(), seedStore(t, greenLeaf()), llm,
		query.WithGenerateTimeout(20*time.Millisecond),
		query.WithFilterExtraction(false),
	)

	answer, err := uc.HandleQuery(context.Background(), "idli", 5)
	gt.NoError(t, err)
	gt.True(t, answer.Fallback)
	gt.Equal(t, uc.History().Len(), 0)

	// the pipeline stays usable afterwards
	llm.GenerateFunc = func(context.Context, string) (string, error) { return "Try Green Leaf.", nil }
	answer, err = uc.HandleQuery(context.Background(), "idli", 5)
	gt.NoError(t, err)
	gt.Equal(t, answer.Response, "Try Green Leaf.")
	gt.Equal(t, uc.History().Len(), 1)
}

func TestHandleQueryFilterExtractionTimeout(t *testing.T) {
	llm := &llmMock{
		GenerateFunc: func(context.Context, string) (string, error) { return "Try Green Leaf.", nil },
		GenerateJSONFunc: func(ctx context.Context, _ string, _ *jsonschema.Schema) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	uc := query.New(constEmbedder(), seedStore(t, greenLeaf()), llm,
		query.WithGenerateTimeout(20*time.Millisecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	answer, err := uc.HandleQuery(ctx, "idli", 5)
	gt.NoError(t, err)
	gt.True(t, time.Since(start) < time.Second)

	// extraction gave up, the turn continued unfiltered
	gt.False(t, answer.Fallback)
	gt.True(t, answer.Filter == nil)
	gt.Equal(t, answer.Response, "Try Green Leaf.")
	gt.Equal(t, uc.History().Len(), 1)
}

func TestHandleQueryNoResults(t *testing.T) {
	llm := &llmMock{}
	uc := query.New(constEmbedder(), repository.NewMemory(), llm, query.WithFilterExtraction(false))

	answer, err := uc.HandleQuery(context.Background(), "sushi in Madurai", 5)
	gt.NoError(t, err)
	gt.True(t, answer.Insufficient)
	gt.Equal(t, answer.Response, query.InsufficientInfoMessage)
	gt.A(t, answer.Images).Length(0)
	gt.Equal(t, llm.calls(), 0)
	gt.Equal(t, uc.History().Len(), 1)
}

func TestHandleQueryFilterExtractionFailsOpen(t *testing.T) {
	testCases := map[string]func(context.Context, string, *jsonschema.Schema) (string, error){
		"model error": func(context.Context, string, *jsonschema.Schema) (string, error) {
			return "", errors.New("503")
		},
		"not JSON": func(context.Context, string, *jsonschema.Schema) (string, error) {
			return "cuisine = vegetarian", nil
		},
		"unknown field": func(context.Context, string, *jsonschema.Schema) (string, error) {
			return `{"cuisine":"vegetarian","rating":5}`, nil
		},
		"negative cost": func(context.Context, string, *jsonschema.Schema) (string, error) {
			return `{"max_cost":-1}`, nil
		},
	}

	for name, extract := range testCases {
		t.Run(name, func(t *testing.T) {
			var gotFilter *model.FilterCriteria
			store := &storeMock{
				SearchRestaurantsFunc: func(_ context.Context, _ []float32, _ int, filter *model.FilterCriteria) ([]*model.SearchResult, error) {
					gotFilter = filter
					return []*model.SearchResult{{Restaurant: greenLeaf(), Similarity: 0.9}}, nil
				},
			}
			uc := query.New(constEmbedder(), store, &llmMock{GenerateJSONFunc: extract})

			answer, err := uc.HandleQuery(context.Background(), "vegetarian please", 3)
			gt.NoError(t, err)
			gt.False(t, answer.Fallback)
			gt.True(t, gotFilter == nil)
		})
	}
}

func TestHandleQueryRendersMissingFields(t *testing.T) {
	sparse := &model.Restaurant{
		ID:   model.NewRestaurantID("sparse"),
		Name: "Mystery Mess",
	}
	llm := &llmMock{}
	uc := query.New(constEmbedder(), seedStore(t, sparse), llm, query.WithFilterExtraction(false))

	answer, err := uc.HandleQuery(context.Background(), "somewhere cheap", 5)
	gt.NoError(t, err)
	gt.S(t, answer.Response).Contains("- Rating: N/A")
	gt.S(t, answer.Response).Contains("- Cost for two: N/A")
	gt.S(t, answer.Response).Contains("- Cuisines: N/A")
	gt.S(t, answer.Response).Contains("- City: N/A")
	gt.A(t, answer.Images).Length(0)
}

func TestHandleQueryPromptHidesScores(t *testing.T) {
	store := &storeMock{
		SearchRestaurantsFunc: func(context.Context, []float32, int, *model.FilterCriteria) ([]*model.SearchResult, error) {
			return []*model.SearchResult{{Restaurant: greenLeaf(), Similarity: 0.987654}}, nil
		},
	}
	llm := &llmMock{}
	uc := query.New(constEmbedder(), store, llm, query.WithFilterExtraction(false))

	answer, err := uc.HandleQuery(context.Background(), "veg", 1)
	gt.NoError(t, err)
	gt.S(t, answer.Response).NotContains("0.987654")
	gt.True(t, answer.Results[0].Score > 0)
	gt.Equal(t, answer.Results[0].Rank, 1)
}

func TestHandleQueryInvalidInput(t *testing.T) {
	uc := query.New(constEmbedder(), repository.NewMemory(), &llmMock{})

	_, err := uc.HandleQuery(context.Background(), "   ", 5)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, query.ErrInvalidQuery))

	_, err = uc.HandleQuery(context.Background(), "dosa", -1)
	gt.True(t, errors.Is(err, query.ErrInvalidQuery))

	_, err = uc.HandleQuery(context.Background(), "dosa", query.MaxTopK+1)
	gt.True(t, errors.Is(err, query.ErrInvalidQuery))
}

func TestHandleQueryAcceptsMaxTopK(t *testing.T) {
	var gotK int
	store := &storeMock{
		SearchRestaurantsFunc: func(_ context.Context, _ []float32, k int, _ *model.FilterCriteria) ([]*model.SearchResult, error) {
			gotK = k
			return nil, nil
		},
	}
	uc := query.New(constEmbedder(), store, &llmMock{}, query.WithFilterExtraction(false))

	_, err := uc.HandleQuery(context.Background(), "dosa", query.MaxTopK)
	gt.NoError(t, err)
	gt.Equal(t, gotK, query.MaxTopK)
}

func TestHandleQueryDefaultTopK(t *testing.T) {
	var gotK int
	store := &storeMock{
		SearchRestaurantsFunc: func(_ context.Context, _ []float32, k int, _ *model.FilterCriteria) ([]*model.SearchResult, error) {
			gotK = k
			return nil, nil
		},
	}
	uc := query.New(constEmbedder(), store, &llmMock{}, query.WithTopK(7), query.WithFilterExtraction(false))

	_, err := uc.HandleQuery(context.Background(), "dosa", 0)
	gt.NoError(t, err)
	gt.Equal(t, gotK, 7)
}

func TestHandleQueryConcurrent(t *testing.T) {
	uc := query.New(constEmbedder(), seedStore(t, greenLeaf(), charcoalGrill()), &llmMock{},
		query.WithHistoryCapacity(3), query.WithFilterExtraction(false))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := uc.HandleQuery(context.Background(), strings.Repeat("q", i+1), 2); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	gt.Equal(t, uc.History().Len(), 3)
}
