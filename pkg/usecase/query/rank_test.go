package query

import (
	"testing"

	"github.com/m-mizutani/aiguide/pkg/model"
	"github.com/m-mizutani/gt"
)

func ptr[T any](v T) *T { return &v }

func result(name string, sim float64, rating *float64, votes *int64, cost *float64) *model.SearchResult {
	return &model.SearchResult{
		Restaurant: &model.Restaurant{Name: name, Rating: rating, Votes: votes, Cost: cost},
		Similarity: sim,
	}
}

func names(results []*model.SearchResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Restaurant.Name)
	}
	return out
}

func TestRankPrefersRatingAtEqualSimilarity(t *testing.T) {
	results := []*model.SearchResult{
		result("average", 0.8, ptr(3.0), ptr(int64(100)), ptr(300.0)),
		result("great", 0.8, ptr(4.8), ptr(int64(100)), ptr(300.0)),
	}

	ranked := rank(results, DefaultRankWeights())
	gt.Equal(t, names(ranked), []string{"great", "average"})
	gt.Equal(t, ranked[0].Rank, 1)
	gt.Equal(t, ranked[1].Rank, 2)
}

func TestRankSimilarityDominatesByDefault(t *testing.T) {
	results := []*model.SearchResult{
		result("popular but off-topic", 0.2, ptr(4.9), ptr(int64(9000)), ptr(100.0)),
		result("on-topic", 0.95, ptr(3.5), ptr(int64(20)), ptr(400.0)),
	}

	ranked := rank(results, DefaultRankWeights())
	gt.Equal(t, ranked[0].Restaurant.Name, "on-topic")
}

func TestRankMissingFieldsContributeZero(t *testing.T) {
	results := []*model.SearchResult{
		result("unknown", 0.5, nil, nil, nil),
		result("known", 0.5, ptr(2.5), nil, nil),
	}

	ranked := rank(results, RankWeights{Similarity: 1, Rating: 1})
	gt.Equal(t, names(ranked), []string{"known", "unknown"})
	gt.Equal(t, ranked[1].Score, 0.5)
	gt.Equal(t, ranked[0].Score, 1.0)
}

func TestRankKeepsEngineOrderOnTies(t *testing.T) {
	results := []*model.SearchResult{
		result("first", 0.7, nil, nil, nil),
		result("second", 0.7, nil, nil, nil),
		result("third", 0.7, nil, nil, nil),
	}

	ranked := rank(results, DefaultRankWeights())
	gt.Equal(t, names(ranked), []string{"first", "second", "third"})
}

func TestRankCheaperIsBetter(t *testing.T) {
	results := []*model.SearchResult{
		result("pricey", 0.6, nil, nil, ptr(1000.0)),
		result("cheap", 0.6, nil, nil, ptr(200.0)),
	}

	ranked := rank(results, RankWeights{Cost: 1})
	gt.Equal(t, names(ranked), []string{"cheap", "pricey"})
	gt.Equal(t, ranked[1].Score, 0.0)
}
