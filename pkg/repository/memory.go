package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/aiguide/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

type memoryRecord struct {
	restaurant  *model.Restaurant
	embedding   []float32
	fingerprint string
	seq         int
}

// Memory is an in-process store using brute-force cosine similarity. It is used for local
// runs and tests; data is lost on exit.
type Memory struct {
	mu        sync.RWMutex
	dimension int
	records   map[model.RestaurantID]*memoryRecord
	nextSeq   int
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		records: make(map[model.RestaurantID]*memoryRecord),
	}
}

// UpsertRestaurant implements interfaces.VectorStore
func (m *Memory) UpsertRestaurant(ctx context.Context, r *model.Restaurant, embedding []float32) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, err
	}
	if len(embedding) == 0 {
		return false, goerr.Wrap(errEmptyEmbedding, "invalid restaurant embedding", goerr.V("id", r.ID))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dimension == 0 {
		m.dimension = len(embedding)
	} else if m.dimension != len(embedding) {
		return false, goerr.Wrap(errDimensionMismatch, "failed to upsert restaurant",
			goerr.V("id", r.ID), goerr.V("expected", m.dimension), goerr.V("actual", len(embedding)))
	}

	fp := r.Fingerprint()
	seq := m.nextSeq
	if existing, ok := m.records[r.ID]; ok {
		if existing.fingerprint == fp {
			return false, nil
		}
		seq = existing.seq
	} else {
		m.nextSeq++
	}

	m.records[r.ID] = &memoryRecord{
		restaurant:  r.Clone(),
		embedding:   append([]float32(nil), embedding...),
		fingerprint: fp,
		seq:         seq,
	}
	return true, nil
}

// GetRestaurant implements interfaces.VectorStore
func (m *Memory) GetRestaurant(ctx context.Context, id model.RestaurantID) (*model.Restaurant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "restaurant not found", goerr.V("id", id))
	}
	return rec.restaurant.Clone(), nil
}

// SearchRestaurants implements interfaces.VectorStore
func (m *Memory) SearchRestaurants(ctx context.Context, embedding []float32, k int, filter *model.FilterCriteria) ([]*model.SearchResult, error) {
	if err := validateSearch(embedding, k); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.dimension != 0 && m.dimension != len(embedding) {
		return nil, goerr.Wrap(errDimensionMismatch, "failed to search restaurants",
			goerr.V("expected", m.dimension), goerr.V("actual", len(embedding)))
	}

	type candidate struct {
		rec        *memoryRecord
		similarity float64
	}
	candidates := make([]candidate, 0, len(m.records))
	for _, rec := range m.records {
		if !filter.Match(rec.restaurant) {
			continue
		}
		candidates = append(candidates, candidate{
			rec:        rec,
			similarity: cosineSimilarity(rec.embedding, embedding),
		})
	}

	// insertion order breaks ties so results are deterministic
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].similarity != candidates[j].similarity {
			return candidates[i].similarity > candidates[j].similarity
		}
		return candidates[i].rec.seq < candidates[j].rec.seq
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]*model.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, &model.SearchResult{
			Restaurant: c.rec.restaurant.Clone(),
			Similarity: c.similarity,
		})
	}
	return results, nil
}

// Len returns the number of stored records
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close implements Repository
func (m *Memory) Close() error {
	return nil
}
