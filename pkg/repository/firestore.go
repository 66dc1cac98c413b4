package repository

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/aiguide/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFirestoreCollection = "restaurants"
	firestoreDistanceField     = "vector_distance"
)

// Firestore stores restaurants in a Firestore collection and searches them with the
// FindNearest vector query. Filter fields are matched exactly against normalized keys, so a
// location filter must name a whole city or locality. A composite vector index on
// "embedding" is required for each filter combination in use.
type Firestore struct {
	client     *firestore.Client
	collection string
}

// FirestoreOption is a functional option for Firestore
type FirestoreOption func(*Firestore)

// WithCollection overrides the collection name
func WithCollection(name string) FirestoreOption {
	return func(f *Firestore) {
		f.collection = name
	}
}

// NewFirestore creates a Firestore repository for the given project and database
func NewFirestore(ctx context.Context, projectID, databaseID string, opts ...FirestoreOption) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID), goerr.V("database", databaseID))
	}

	f := &Firestore{
		client:     client,
		collection: defaultFirestoreCollection,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

type restaurantDoc struct {
	ID          string             `firestore:"id"`
	SourceKey   string             `firestore:"source_key"`
	Name        string             `firestore:"name"`
	Location    string             `firestore:"location"`
	Locality    string             `firestore:"locality"`
	City        string             `firestore:"city"`
	Cuisines    []string           `firestore:"cuisines"`
	Rating      *float64           `firestore:"rating"`
	Votes       *int64             `firestore:"votes"`
	Cost        *float64           `firestore:"cost"`
	ImageURL    string             `firestore:"image_url"`
	CuisineKeys []string           `firestore:"cuisine_keys"`
	CityKey     string             `firestore:"city_key"`
	LocalityKey string             `firestore:"locality_key"`
	Fingerprint string             `firestore:"fingerprint"`
	Embedding   firestore.Vector32 `firestore:"embedding"`
	Distance    float64            `firestore:"vector_distance,omitempty"`
}

func newRestaurantDoc(r *model.Restaurant, embedding []float32) *restaurantDoc {
	return &restaurantDoc{
		ID:          string(r.ID),
		SourceKey:   r.SourceKey,
		Name:        r.Name,
		Location:    r.Location,
		Locality:    r.Locality,
		City:        r.City,
		Cuisines:    r.Cuisines,
		Rating:      r.Rating,
		Votes:       r.Votes,
		Cost:        r.Cost,
		ImageURL:    r.ImageURL,
		CuisineKeys: r.CuisineKeys(),
		CityKey:     model.NormalizeKey(r.City),
		LocalityKey: model.NormalizeKey(r.Locality),
		Fingerprint: r.Fingerprint(),
		Embedding:   firestore.Vector32(embedding),
	}
}

func (d *restaurantDoc) restaurant() *model.Restaurant {
	return &model.Restaurant{
		ID:        model.RestaurantID(d.ID),
		SourceKey: d.SourceKey,
		Name:      d.Name,
		Location:  d.Location,
		Locality:  d.Locality,
		City:      d.City,
		Cuisines:  d.Cuisines,
		Rating:    d.Rating,
		Votes:     d.Votes,
		Cost:      d.Cost,
		ImageURL:  d.ImageURL,
	}
}

// UpsertRestaurant implements interfaces.VectorStore
func (f *Firestore) UpsertRestaurant(ctx context.Context, r *model.Restaurant, embedding []float32) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, err
	}
	if len(embedding) == 0 {
		return false, goerr.Wrap(errEmptyEmbedding, "invalid restaurant embedding", goerr.V("id", r.ID))
	}

	doc := newRestaurantDoc(r, embedding)
	ref := f.client.Collection(f.collection).Doc(doc.ID)

	snap, err := ref.Get(ctx)
	switch {
	case err == nil:
		var existing restaurantDoc
		if err := snap.DataTo(&existing); err != nil {
			return false, goerr.Wrap(err, "failed to decode restaurant", goerr.V("id", r.ID))
		}
		if existing.Fingerprint == doc.Fingerprint {
			return false, nil
		}
	case status.Code(err) == codes.NotFound:
	default:
		return false, goerr.Wrap(err, "failed to get restaurant", goerr.V("id", r.ID))
	}

	if _, err := ref.Set(ctx, doc); err != nil {
		return false, goerr.Wrap(err, "failed to set restaurant", goerr.V("id", r.ID))
	}
	return true, nil
}

// GetRestaurant implements interfaces.VectorStore
func (f *Firestore) GetRestaurant(ctx context.Context, id model.RestaurantID) (*model.Restaurant, error) {
	snap, err := f.client.Collection(f.collection).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "restaurant not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get restaurant", goerr.V("id", id))
	}

	var doc restaurantDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode restaurant", goerr.V("id", id))
	}
	return doc.restaurant(), nil
}

// SearchRestaurants implements interfaces.VectorStore
func (f *Firestore) SearchRestaurants(ctx context.Context, embedding []float32, k int, filter *model.FilterCriteria) ([]*model.SearchResult, error) {
	if err := validateSearch(embedding, k); err != nil {
		return nil, err
	}

	q := f.client.Collection(f.collection).Query
	if !filter.IsEmpty() {
		if filter.Cuisine != "" {
			q = q.Where("cuisine_keys", "array-contains", model.NormalizeKey(filter.Cuisine))
		}
		if filter.Location != "" {
			key := model.NormalizeKey(filter.Location)
			q = q.WhereEntity(firestore.OrFilter{
				Filters: []firestore.EntityFilter{
					firestore.PropertyFilter{Path: "city_key", Operator: "==", Value: key},
					firestore.PropertyFilter{Path: "locality_key", Operator: "==", Value: key},
				},
			})
		}
		if filter.MaxCost != nil {
			q = q.Where("cost", "<=", *filter.MaxCost)
		}
	}

	vq := q.FindNearest("embedding", firestore.Vector32(embedding), k,
		firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{DistanceResultField: firestoreDistanceField})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	var results []*model.SearchResult
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate restaurants", goerr.V("k", k))
		}

		var doc restaurantDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode restaurant", goerr.V("doc", snap.Ref.ID))
		}
		results = append(results, &model.SearchResult{
			Restaurant: doc.restaurant(),
			// cosine distance is 1 - cosine similarity
			Similarity: 1 - doc.Distance,
		})
	}

	return results, nil
}

// Close implements Repository
func (f *Firestore) Close() error {
	if err := f.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close firestore client")
	}
	return nil
}
