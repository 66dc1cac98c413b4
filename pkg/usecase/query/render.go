package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/m-mizutani/aiguide/pkg/model"
)

const notAvailable = "N/A"

type field struct {
	name  string
	value string
}

// restaurantFields lists every attribute in a fixed order. Missing values are N/A, never omitted.
func restaurantFields(r *model.Restaurant) []field {
	return []field{
		{"Name", orNA(r.Name)},
		{"Cuisines", orNA(strings.Join(r.Cuisines, ", "))},
		{"Location", orNA(r.Location)},
		{"Locality", orNA(r.Locality)},
		{"City", orNA(r.City)},
		{"Rating", floatOrNA(r.Rating)},
		{"Votes", intOrNA(r.Votes)},
		{"Cost for two", floatOrNA(r.Cost)},
		{"Image", orNA(r.ImageURL)},
	}
}

// renderContext writes results in rank order. Scores and similarities are left out.
func renderContext(results []*model.SearchResult) string {
	var b strings.Builder
	for i, res := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Restaurant %d:\n", i+1)
		for _, f := range restaurantFields(res.Restaurant) {
			fmt.Fprintf(&b, "- %s: %s\n", f.name, f.value)
		}
	}
	return b.String()
}

// summarizeRestaurant is the one-line form used in history
func summarizeRestaurant(r *model.Restaurant) string {
	fields := restaurantFields(r)
	parts := make([]string, 0, len(fields)-1)
	for _, f := range fields[1:] {
		if f.name == "Image" {
			continue
		}
		parts = append(parts, f.name+": "+f.value)
	}
	return fields[0].value + " (" + strings.Join(parts, " | ") + ")"
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}

func floatOrNA(v *float64) string {
	if v == nil {
		return notAvailable
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func intOrNA(v *int64) string {
	if v == nil {
		return notAvailable
	}
	return strconv.FormatInt(*v, 10)
}
