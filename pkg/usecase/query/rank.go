package query

import (
	"math"
	"slices"

	"github.com/m-mizutani/aiguide/pkg/model"
)

// RankWeights are the coefficients of the re-ranking score
type RankWeights struct {
	Similarity float64 `yaml:"similarity"`
	Rating     float64 `yaml:"rating"`
	Votes      float64 `yaml:"votes"`
	Cost       float64 `yaml:"cost"`
}

func DefaultRankWeights() RankWeights {
	return RankWeights{
		Similarity: 0.55,
		Rating:     0.25,
		Votes:      0.1,
		Cost:       0.1,
	}
}

const maxRating = 5.0

// rank scores results in place and returns them sorted by score descending. Votes and cost
// are normalized against the maximum within the result set; a missing attribute adds 0.
// Equal scores keep the engine's order.
func rank(results []*model.SearchResult, w RankWeights) []*model.SearchResult {
	var maxVotes int64
	var maxCost float64
	for _, r := range results {
		if v := r.Restaurant.Votes; v != nil && *v > maxVotes {
			maxVotes = *v
		}
		if c := r.Restaurant.Cost; c != nil && *c > maxCost {
			maxCost = *c
		}
	}

	for _, r := range results {
		score := w.Similarity * r.Similarity

		if rating := r.Restaurant.Rating; rating != nil {
			score += w.Rating * clamp(*rating/maxRating)
		}
		if votes := r.Restaurant.Votes; votes != nil && maxVotes > 0 && *votes > 0 {
			score += w.Votes * math.Log1p(float64(*votes)) / math.Log1p(float64(maxVotes))
		}
		if cost := r.Restaurant.Cost; cost != nil && maxCost > 0 {
			score += w.Cost * clamp(1-*cost/maxCost)
		}

		r.Score = score
	}

	slices.SortStableFunc(results, func(a, b *model.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	for i, r := range results {
		r.Rank = i + 1
	}
	return results
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
