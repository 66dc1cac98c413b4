package model

import (
	"log/slog"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrInvalidFilter = goerr.New("invalid filter criteria")
)

// FilterCriteria narrows a restaurant search. Empty strings and a nil MaxCost place no
// constraint on that field.
type FilterCriteria struct {
	Cuisine  string
	Location string
	MaxCost  *float64
}

// IsEmpty reports whether no field is constrained
func (f *FilterCriteria) IsEmpty() bool {
	return f == nil || (f.Cuisine == "" && f.Location == "" && f.MaxCost == nil)
}

// Validate checks the numeric ceiling
func (f *FilterCriteria) Validate() error {
	if f == nil {
		return nil
	}
	if f.MaxCost != nil && *f.MaxCost < 0 {
		return goerr.Wrap(ErrInvalidFilter, "max cost is negative", goerr.V("max_cost", *f.MaxCost))
	}
	return nil
}

// Match reports whether r satisfies every present field. Cuisine matches when any cuisine
// tag contains it, location when city, locality or location contains it (both
// case-insensitive). A record without cost never satisfies a cost ceiling.
func (f *FilterCriteria) Match(r *Restaurant) bool {
	if f.IsEmpty() {
		return true
	}

	if f.Cuisine != "" {
		want := NormalizeKey(f.Cuisine)
		found := false
		for _, c := range r.CuisineKeys() {
			if strings.Contains(c, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.Location != "" {
		want := NormalizeKey(f.Location)
		found := false
		for _, v := range []string{r.City, r.Locality, r.Location} {
			if strings.Contains(NormalizeKey(v), want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.MaxCost != nil {
		if r.Cost == nil || *r.Cost > *f.MaxCost {
			return false
		}
	}

	return true
}

// LogValue implements slog.LogValuer
func (f *FilterCriteria) LogValue() slog.Value {
	if f.IsEmpty() {
		return slog.StringValue("none")
	}
	attrs := []slog.Attr{
		slog.String("cuisine", f.Cuisine),
		slog.String("location", f.Location),
	}
	if f.MaxCost != nil {
		attrs = append(attrs, slog.Float64("max_cost", *f.MaxCost))
	}
	return slog.GroupValue(attrs...)
}

// FilterResult is the tagged outcome of extracting FilterCriteria from free text.
//
// Extraction is delegated to a language model. Its accuracy is bounded by that model and is
// not deterministic: the same query may yield different criteria across calls. A failed
// extraction is never fatal and means "search without a filter".
type FilterResult struct {
	OK       bool
	Criteria *FilterCriteria
	Reason   string
}

// FilterExtracted returns a successful result
func FilterExtracted(c *FilterCriteria) FilterResult {
	return FilterResult{OK: true, Criteria: c}
}

// FilterFailed returns a failed result with the reason kept for logging
func FilterFailed(reason string) FilterResult {
	return FilterResult{Reason: reason}
}

// Filter returns the criteria to apply, or nil when extraction failed or found nothing
func (r FilterResult) Filter() *FilterCriteria {
	if !r.OK || r.Criteria.IsEmpty() {
		return nil
	}
	return r.Criteria
}
