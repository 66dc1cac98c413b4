package interfaces

import (
	"context"

	"github.com/m-mizutani/aiguide/pkg/model"
)

// VectorStore holds restaurant records with their embeddings
type VectorStore interface {
	// UpsertRestaurant stores r under r.ID. It returns false without writing when a record
	// with identical attributes already exists.
	UpsertRestaurant(ctx context.Context, r *model.Restaurant, embedding []float32) (bool, error)

	// GetRestaurant retrieves a record by ID, or model.ErrNotFound
	GetRestaurant(ctx context.Context, id model.RestaurantID) (*model.Restaurant, error)

	// SearchRestaurants returns up to k records closest to embedding, most similar first.
	// A nil filter places no constraint.
	SearchRestaurants(ctx context.Context, embedding []float32, k int, filter *model.FilterCriteria) ([]*model.SearchResult, error)
}
