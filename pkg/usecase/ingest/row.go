package ingest

import (
	"strconv"
	"strings"

	"github.com/m-mizutani/aiguide/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// columnAliases maps each restaurant attribute to accepted column names, in priority order.
// Column names are compared after normalizeColumn.
var columnAliases = map[string][]string{
	"key":      {"unique_id", "restaurant_id", "id"},
	"name":     {"restaurant_name", "name"},
	"location": {"location", "address"},
	"locality": {"locality", "locality_verbose"},
	"city":     {"city"},
	"cuisines": {"cuisines", "cuisine"},
	"rating":   {"aggregate_rating", "rating"},
	"votes":    {"votes"},
	"cost":     {"average_cost_for_two", "cost_for_two", "cost"},
	"image":    {"s3image_path", "image_url", "image_path"},
}

// missingValues are cell values treated as absent
var missingValues = map[string]struct{}{
	"": {}, "n/a": {}, "na": {}, "none": {}, "nan": {}, "null": {},
}

// Row is one source record keyed by normalized column name
type Row map[string]string

func normalizeColumn(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(name)
}

// NewRow normalizes column names of a raw record
func NewRow(raw map[string]string) Row {
	row := make(Row, len(raw))
	for k, v := range raw {
		row[normalizeColumn(k)] = v
	}
	return row
}

func (r Row) get(attr string) string {
	for _, col := range columnAliases[attr] {
		v := strings.TrimSpace(r[col])
		if _, missing := missingValues[strings.ToLower(v)]; !missing {
			return v
		}
	}
	return ""
}

func (r Row) float(attr string) (*float64, error) {
	s := r.get(attr)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return nil, goerr.Wrap(model.ErrInvalidRestaurant, "not a number", goerr.V("field", attr), goerr.V("value", s))
	}
	return &v, nil
}

func (r Row) int(attr string) (*int64, error) {
	f, err := r.float(attr)
	if err != nil || f == nil {
		return nil, err
	}
	v := int64(*f)
	return &v, nil
}

// toRestaurant converts a row. index is the zero-based row position, used as the record key
// when the row has no unique id. imageBaseURL, when set, replaces the image with
// <imageBaseURL>/<unique id>.png.
func (r Row) toRestaurant(index int, imageBaseURL string) (*model.Restaurant, error) {
	uniqueID := r.get("key")
	sourceKey := uniqueID
	if sourceKey == "" {
		sourceKey = "row-" + strconv.Itoa(index)
	}

	rest := &model.Restaurant{
		ID:        model.NewRestaurantID(sourceKey),
		SourceKey: sourceKey,
		Name:      r.get("name"),
		Location:  r.get("location"),
		Locality:  r.get("locality"),
		City:      r.get("city"),
		Cuisines:  model.SplitCuisines(r.get("cuisines")),
		ImageURL:  r.get("image"),
	}

	var err error
	if rest.Rating, err = r.float("rating"); err != nil {
		return nil, err
	}
	if rest.Votes, err = r.int("votes"); err != nil {
		return nil, err
	}
	if rest.Cost, err = r.float("cost"); err != nil {
		return nil, err
	}

	if imageBaseURL != "" && uniqueID != "" {
		rest.ImageURL = strings.TrimRight(imageBaseURL, "/") + "/" + uniqueID + ".png"
	}

	if err := rest.Validate(); err != nil {
		return nil, err
	}
	return rest, nil
}
