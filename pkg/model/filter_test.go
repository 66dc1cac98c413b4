package model_test

import (
	"testing"

	"github.com/m-mizutani/aiguide/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestFilterCriteriaMatch(t *testing.T) {
	veg := &model.Restaurant{
		Name:     "Sree Sabarees",
		Cuisines: []string{"South Indian", "Pure Vegetarian"},
		Locality: "Simmakkal",
		City:     "Madurai",
		Cost:     ptr(150.0),
	}
	noCost := &model.Restaurant{
		Name:     "Nameless",
		Cuisines: []string{"Vegetarian"},
		City:     "Madurai",
	}

	testCases := []struct {
		name   string
		filter *model.FilterCriteria
		r      *model.Restaurant
		want   bool
	}{
		{name: "nil filter", filter: nil, r: veg, want: true},
		{name: "cuisine substring", filter: &model.FilterCriteria{Cuisine: "vegetarian"}, r: veg, want: true},
		{name: "cuisine mismatch", filter: &model.FilterCriteria{Cuisine: "chinese"}, r: veg, want: false},
		{name: "city", filter: &model.FilterCriteria{Location: "MADURAI"}, r: veg, want: true},
		{name: "locality", filter: &model.FilterCriteria{Location: "simmakkal"}, r: veg, want: true},
		{name: "location mismatch", filter: &model.FilterCriteria{Location: "Chennai"}, r: veg, want: false},
		{name: "under ceiling", filter: &model.FilterCriteria{MaxCost: ptr(200.0)}, r: veg, want: true},
		{name: "equal to ceiling", filter: &model.FilterCriteria{MaxCost: ptr(150.0)}, r: veg, want: true},
		{name: "over ceiling", filter: &model.FilterCriteria{MaxCost: ptr(100.0)}, r: veg, want: false},
		{name: "missing cost with ceiling", filter: &model.FilterCriteria{MaxCost: ptr(200.0)}, r: noCost, want: false},
		{
			name:   "all fields",
			filter: &model.FilterCriteria{Cuisine: "vegetarian", Location: "madurai", MaxCost: ptr(200.0)},
			r:      veg,
			want:   true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gt.Equal(t, tc.filter.Match(tc.r), tc.want)
		})
	}
}

func TestFilterCriteriaValidate(t *testing.T) {
	gt.NoError(t, (&model.FilterCriteria{MaxCost: ptr(0.0)}).Validate())
	gt.Error(t, (&model.FilterCriteria{MaxCost: ptr(-1.0)}).Validate())
}

func TestFilterResult(t *testing.T) {
	t.Run("failed result applies no filter", func(t *testing.T) {
		r := model.FilterFailed("bad json")
		gt.False(t, r.OK)
		gt.Equal(t, r.Reason, "bad json")
		gt.True(t, r.Filter() == nil)
	})

	t.Run("empty criteria applies no filter", func(t *testing.T) {
		r := model.FilterExtracted(&model.FilterCriteria{})
		gt.True(t, r.OK)
		gt.True(t, r.Filter() == nil)
	})

	t.Run("criteria are returned", func(t *testing.T) {
		c := &model.FilterCriteria{Cuisine: "vegetarian"}
		r := model.FilterExtracted(c)
		gt.Equal(t, r.Filter(), c)
	})
}
