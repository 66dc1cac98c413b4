package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrInvalidRestaurant = goerr.New("invalid restaurant")
	ErrNotFound          = goerr.New("not found")
)

// restaurantNamespace scopes name-based UUIDs of restaurant records.
var restaurantNamespace = uuid.MustParse("6f1d3c2e-52a4-4b8e-9c57-0d8a4f7b2e19")

type RestaurantID string

// NewRestaurantID derives a stable ID from the dataset key (unique id column or row index).
// The same key always yields the same ID, so re-ingesting a row addresses the same record.
func NewRestaurantID(sourceKey string) RestaurantID {
	return RestaurantID(uuid.NewSHA1(restaurantNamespace, []byte(sourceKey)).String())
}

// Restaurant is a single restaurant record. Optional numeric attributes are nil when the
// dataset has no value for them; empty strings mean the same for text attributes.
type Restaurant struct {
	ID        RestaurantID `json:"id"`
	SourceKey string       `json:"source_key"`
	Name      string       `json:"name"`
	Location  string       `json:"location"`
	Locality  string       `json:"locality"`
	City      string       `json:"city"`
	Cuisines  []string     `json:"cuisines"`
	Rating    *float64     `json:"rating"`
	Votes     *int64       `json:"votes"`
	Cost      *float64     `json:"cost"`
	ImageURL  string       `json:"image_url"`
}

// Validate checks required fields and numeric ranges
func (r *Restaurant) Validate() error {
	if r.ID == "" {
		return goerr.Wrap(ErrInvalidRestaurant, "id is empty")
	}
	if r.Name == "" {
		return goerr.Wrap(ErrInvalidRestaurant, "name is empty", goerr.V("id", r.ID))
	}
	if r.Rating != nil && (*r.Rating < 0 || *r.Rating > 5) {
		return goerr.Wrap(ErrInvalidRestaurant, "rating out of range",
			goerr.V("id", r.ID), goerr.V("rating", *r.Rating))
	}
	if r.Votes != nil && *r.Votes < 0 {
		return goerr.Wrap(ErrInvalidRestaurant, "votes is negative",
			goerr.V("id", r.ID), goerr.V("votes", *r.Votes))
	}
	if r.Cost != nil && *r.Cost < 0 {
		return goerr.Wrap(ErrInvalidRestaurant, "cost is negative",
			goerr.V("id", r.ID), goerr.V("cost", *r.Cost))
	}
	return nil
}

// Document returns the text that is embedded for similarity search
func (r *Restaurant) Document() string {
	parts := []string{r.Name}
	if len(r.Cuisines) > 0 {
		parts = append(parts, "Cuisine: "+strings.Join(r.Cuisines, ", "))
	}

	var place []string
	for _, v := range []string{r.Location, r.Locality, r.City} {
		if v != "" && !containsFold(place, v) {
			place = append(place, v)
		}
	}
	if len(place) > 0 {
		parts = append(parts, "Located in "+strings.Join(place, ", "))
	}
	if r.Rating != nil {
		parts = append(parts, "Rated "+strconv.FormatFloat(*r.Rating, 'f', -1, 64)+" out of 5")
	}
	if r.Cost != nil {
		parts = append(parts, "Cost for two "+strconv.FormatFloat(*r.Cost, 'f', -1, 64))
	}
	return strings.Join(parts, ". ")
}

// Fingerprint is a content hash of all attributes. Two records with the same fingerprint are
// identical, which lets stores skip no-op upserts.
func (r *Restaurant) Fingerprint() string {
	// json.Marshal of a struct has a fixed field order
	raw, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// CuisineKeys returns normalized cuisine tags for exact-match filtering in stores
func (r *Restaurant) CuisineKeys() []string {
	keys := make([]string, 0, len(r.Cuisines))
	for _, c := range r.Cuisines {
		if k := NormalizeKey(c); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Clone returns a deep copy
func (r *Restaurant) Clone() *Restaurant {
	if r == nil {
		return nil
	}
	c := *r
	if r.Cuisines != nil {
		c.Cuisines = append(make([]string, 0, len(r.Cuisines)), r.Cuisines...)
	}
	if r.Rating != nil {
		v := *r.Rating
		c.Rating = &v
	}
	if r.Votes != nil {
		v := *r.Votes
		c.Votes = &v
	}
	if r.Cost != nil {
		v := *r.Cost
		c.Cost = &v
	}
	return &c
}

// NormalizeKey lowercases s and collapses whitespace
func NormalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// SplitCuisines parses a comma separated cuisine column
func SplitCuisines(s string) []string {
	var out []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
