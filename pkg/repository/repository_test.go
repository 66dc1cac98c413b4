package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/m-mizutani/aiguide/pkg/model"
	"github.com/m-mizutani/aiguide/pkg/repository"
	"github.com/m-mizutani/gt"
)

func ptr[T any](v T) *T { return &v }

func newRestaurant(name, city string, cuisines []string, cost float64) *model.Restaurant {
	return &model.Restaurant{
		ID:        model.NewRestaurantID(uuid.NewString()),
		SourceKey: name,
		Name:      name,
		City:      city,
		Cuisines:  cuisines,
		Rating:    ptr(4.0),
		Votes:     ptr(int64(100)),
		Cost:      ptr(cost),
	}
}

// testVectorStore runs the behaviour every store must share
func testVectorStore(t *testing.T, store repository.Repository) {
	ctx := context.Background()

	veg := newRestaurant("Green Leaf", "Madurai", []string{"Vegetarian", "South Indian"}, 150)
	grill := newRestaurant("Charcoal Grill", "Madurai", []string{"BBQ"}, 900)
	far := newRestaurant("Harbour View", "Chennai", []string{"Vegetarian"}, 180)

	vecVeg := []float32{1, 0, 0}
	vecGrill := []float32{0.8, 0.6, 0}
	vecFar := []float32{0, 0, 1}

	for _, tc := range []struct {
		r   *model.Restaurant
		vec []float32
	}{{veg, vecVeg}, {grill, vecGrill}, {far, vecFar}} {
		written, err := store.UpsertRestaurant(ctx, tc.r, tc.vec)
		gt.NoError(t, err)
		gt.True(t, written)
	}

	t.Run("upsert of identical record is a no-op", func(t *testing.T) {
		written, err := store.UpsertRestaurant(ctx, veg.Clone(), vecVeg)
		gt.NoError(t, err)
		gt.False(t, written)

		got, err := store.GetRestaurant(ctx, veg.ID)
		gt.NoError(t, err)
		gt.Equal(t, got.Fingerprint(), veg.Fingerprint())
	})

	t.Run("upsert of changed record overwrites", func(t *testing.T) {
		changed := grill.Clone()
		changed.Rating = ptr(3.2)
		written, err := store.UpsertRestaurant(ctx, changed, vecGrill)
		gt.NoError(t, err)
		gt.True(t, written)

		got, err := store.GetRestaurant(ctx, grill.ID)
		gt.NoError(t, err)
		gt.Equal(t, *got.Rating, 3.2)
	})

	t.Run("search orders by similarity", func(t *testing.T) {
		results, err := store.SearchRestaurants(ctx, []float32{1, 0.1, 0}, 2, nil)
		gt.NoError(t, err)
		gt.A(t, results).Length(2)
		gt.Equal(t, results[0].Restaurant.ID, veg.ID)
		gt.Equal(t, results[1].Restaurant.ID, grill.ID)
		gt.True(t, results[0].Similarity >= results[1].Similarity)
	})

	t.Run("search applies filter", func(t *testing.T) {
		filter := &model.FilterCriteria{Cuisine: "vegetarian", Location: "madurai", MaxCost: ptr(200.0)}
		results, err := store.SearchRestaurants(ctx, []float32{0, 0, 1}, 5, filter)
		gt.NoError(t, err)
		gt.A(t, results).Length(1)
		gt.Equal(t, results[0].Restaurant.Name, "Green Leaf")
	})

	t.Run("missing record", func(t *testing.T) {
		_, err := store.GetRestaurant(ctx, model.NewRestaurantID(uuid.NewString()))
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrNotFound))
	})

	t.Run("invalid search limit", func(t *testing.T) {
		_, err := store.SearchRestaurants(ctx, vecVeg, 0, nil)
		gt.Error(t, err)
	})
}
