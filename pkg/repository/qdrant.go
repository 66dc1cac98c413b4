package repository

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/m-mizutani/aiguide/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/qdrant/go-client/qdrant"
)

const (
	defaultQdrantCollection = "restaurants"

	payloadRecord      = "record"
	payloadFingerprint = "fingerprint"
	payloadCuisineKeys = "cuisine_keys"
	payloadCityKey     = "city_key"
	payloadLocalityKey = "locality_key"
	payloadCost        = "cost"
)

// QdrantConfig is the connection setting of a Qdrant server
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// Qdrant stores restaurants as points in a Qdrant collection over gRPC. The collection is
// created with cosine distance on the first upsert when it does not exist. Like Firestore,
// cuisine and location filters match normalized keys exactly.
type Qdrant struct {
	client     *qdrant.Client
	collection string

	ensureMu sync.Mutex
	ensured  bool
}

// NewQdrant connects to a Qdrant server
func NewQdrant(cfg QdrantConfig) (*Qdrant, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create qdrant client",
			goerr.V("host", cfg.Host), goerr.V("port", cfg.Port))
	}

	collection := cfg.Collection
	if collection == "" {
		collection = defaultQdrantCollection
	}

	return &Qdrant{
		client:     client,
		collection: collection,
	}, nil
}

func (q *Qdrant) ensureCollection(ctx context.Context, dimension int) error {
	q.ensureMu.Lock()
	defer q.ensureMu.Unlock()

	if q.ensured {
		return nil
	}

	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return goerr.Wrap(err, "failed to check qdrant collection", goerr.V("collection", q.collection))
	}

	if !exists {
		if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			return goerr.Wrap(err, "failed to create qdrant collection",
				goerr.V("collection", q.collection), goerr.V("dimension", dimension))
		}
	}

	q.ensured = true
	return nil
}

// UpsertRestaurant implements interfaces.VectorStore
func (q *Qdrant) UpsertRestaurant(ctx context.Context, r *model.Restaurant, embedding []float32) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, err
	}
	if len(embedding) == 0 {
		return false, goerr.Wrap(errEmptyEmbedding, "invalid restaurant embedding", goerr.V("id", r.ID))
	}
	if err := q.ensureCollection(ctx, len(embedding)); err != nil {
		return false, err
	}

	fingerprint := r.Fingerprint()
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(string(r.ID))},
		WithPayload:    qdrant.NewWithPayloadInclude(payloadFingerprint),
	})
	if err != nil {
		return false, goerr.Wrap(err, "failed to get qdrant point", goerr.V("id", r.ID))
	}
	if len(points) > 0 && points[0].GetPayload()[payloadFingerprint].GetStringValue() == fingerprint {
		return false, nil
	}

	payload, err := restaurantPayload(r, fingerprint)
	if err != nil {
		return false, err
	}

	if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDUUID(string(r.ID)),
				Vectors: qdrant.NewVectorsDense(embedding),
				Payload: payload,
			},
		},
	}); err != nil {
		return false, goerr.Wrap(err, "failed to upsert qdrant point", goerr.V("id", r.ID))
	}

	return true, nil
}

// GetRestaurant implements interfaces.VectorStore
func (q *Qdrant) GetRestaurant(ctx context.Context, id model.RestaurantID) (*model.Restaurant, error) {
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(string(id))},
		WithPayload:    qdrant.NewWithPayloadInclude(payloadRecord),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get qdrant point", goerr.V("id", id))
	}
	if len(points) == 0 {
		return nil, goerr.Wrap(model.ErrNotFound, "restaurant not found", goerr.V("id", id))
	}
	return decodeRestaurantPayload(points[0].GetPayload())
}

// SearchRestaurants implements interfaces.VectorStore
func (q *Qdrant) SearchRestaurants(ctx context.Context, embedding []float32, k int, filter *model.FilterCriteria) ([]*model.SearchResult, error) {
	if err := validateSearch(embedding, k); err != nil {
		return nil, err
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(embedding),
		Limit:          qdrant.PtrOf(uint64(k)),
		Filter:         qdrantFilter(filter),
		WithPayload:    qdrant.NewWithPayloadInclude(payloadRecord),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query qdrant", goerr.V("collection", q.collection), goerr.V("k", k))
	}

	results := make([]*model.SearchResult, 0, len(points))
	for _, p := range points {
		r, err := decodeRestaurantPayload(p.GetPayload())
		if err != nil {
			return nil, err
		}
		results = append(results, &model.SearchResult{
			Restaurant: r,
			Similarity: float64(p.GetScore()),
		})
	}
	return results, nil
}

// Close implements Repository
func (q *Qdrant) Close() error {
	if err := q.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close qdrant client")
	}
	return nil
}

func qdrantFilter(filter *model.FilterCriteria) *qdrant.Filter {
	if filter.IsEmpty() {
		return nil
	}

	var must []*qdrant.Condition
	if filter.Cuisine != "" {
		must = append(must, qdrant.NewMatchKeyword(payloadCuisineKeys, model.NormalizeKey(filter.Cuisine)))
	}
	if filter.Location != "" {
		key := model.NormalizeKey(filter.Location)
		must = append(must, qdrant.NewFilterAsCondition(&qdrant.Filter{
			Should: []*qdrant.Condition{
				qdrant.NewMatchKeyword(payloadCityKey, key),
				qdrant.NewMatchKeyword(payloadLocalityKey, key),
			},
		}))
	}
	if filter.MaxCost != nil {
		must = append(must, qdrant.NewRange(payloadCost, &qdrant.Range{Lte: qdrant.PtrOf(*filter.MaxCost)}))
	}
	return &qdrant.Filter{Must: must}
}

func restaurantPayload(r *model.Restaurant, fingerprint string) (map[string]*qdrant.Value, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal restaurant", goerr.V("id", r.ID))
	}

	cuisineKeys := make([]any, 0, len(r.Cuisines))
	for _, k := range r.CuisineKeys() {
		cuisineKeys = append(cuisineKeys, k)
	}

	fields := map[string]any{
		payloadRecord:      string(raw),
		payloadFingerprint: fingerprint,
		payloadCuisineKeys: cuisineKeys,
		payloadCityKey:     model.NormalizeKey(r.City),
		payloadLocalityKey: model.NormalizeKey(r.Locality),
	}
	if r.Cost != nil {
		fields[payloadCost] = *r.Cost
	}

	payload, err := qdrant.TryValueMap(fields)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build qdrant payload", goerr.V("id", r.ID))
	}
	return payload, nil
}

func decodeRestaurantPayload(payload map[string]*qdrant.Value) (*model.Restaurant, error) {
	raw := payload[payloadRecord].GetStringValue()
	if raw == "" {
		return nil, goerr.New("qdrant point has no record payload")
	}

	var r model.Restaurant
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal restaurant payload", goerr.V("payload", raw))
	}
	return &r, nil
}
