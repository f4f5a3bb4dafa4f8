package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"newsdigest/internal/logging"
)

const (
	payloadObservedAt = "observed_at_ms"
	qdrantSearchLimit = 16
	qdrantBatchSize   = 256
)

// Qdrant keeps the index in a Qdrant collection over gRPC. Item IDs are used
// as numeric point IDs; observed time is stored in the payload for the
// horizon filter.
type Qdrant struct {
	conn        *grpc.ClientConn
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	collection  string
	logger      *slog.Logger

	mu   sync.Mutex
	dims int
	ids  map[int64]struct{}
}

// HealthCheck asks the server for its version.
func (q *Qdrant) HealthCheck(ctx context.Context) (string, error) {
	reply, err := qdrant.NewQdrantClient(q.conn).HealthCheck(ctx, &qdrant.HealthCheckRequest{})
	if err != nil {
		return "", fmt.Errorf("qdrant health: %w", err)
	}
	return reply.GetVersion(), nil
}

// NewQdrant dials addr (host:port of the gRPC listener).
func NewQdrant(addr, collection string, logger *slog.Logger) (*Qdrant, error) {
	if addr == "" {
		return nil, errors.New("qdrant address is required")
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial qdrant %s: %w", addr, err)
	}
	return &Qdrant{
		conn:        conn,
		points:      qdrant.NewPointsClient(conn),
		collections: qdrant.NewCollectionsClient(conn),
		collection:  collection,
		logger:      logging.NewComponentLogger(logger, "vectorindex"),
		ids:         make(map[int64]struct{}),
	}, nil
}

func (q *Qdrant) Nearest(ctx context.Context, vec []float32, since time.Time, exclude int64) (*Match, error) {
	q.mu.Lock()
	empty := len(q.ids) == 0
	q.mu.Unlock()
	if empty {
		return nil, nil
	}

	req := &qdrant.SearchPoints{
		CollectionName: q.collection,
		Vector:         vec,
		Limit:          qdrantSearchLimit,
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	}
	req.Filter = searchFilter(since, exclude)
	resp, err := q.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}
	var best *Match
	for _, point := range resp.GetResult() {
		if candidate := matchFromScored(point); better(candidate, best) {
			best = candidate
		}
	}
	return best, nil
}

func (q *Qdrant) Add(ctx context.Context, entry Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ensureCollection(ctx, len(entry.Vector)); err != nil {
		return err
	}
	if err := q.upsert(ctx, []*qdrant.PointStruct{pointFromEntry(entry)}); err != nil {
		return err
	}
	q.ids[entry.ItemID] = struct{}{}
	return nil
}

func (q *Qdrant) Rebuild(ctx context.Context, entries []Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, err := q.collections.Delete(ctx, &qdrant.DeleteCollection{CollectionName: q.collection}); err != nil {
		if st, ok := status.FromError(err); !ok || st.Code() != codes.NotFound {
			return fmt.Errorf("drop collection %s: %w", q.collection, err)
		}
	}
	q.dims = 0
	q.ids = make(map[int64]struct{}, len(entries))
	if len(entries) == 0 {
		return nil
	}
	if err := q.ensureCollection(ctx, len(entries[0].Vector)); err != nil {
		return err
	}
	for start := 0; start < len(entries); start += qdrantBatchSize {
		end := min(start+qdrantBatchSize, len(entries))
		batch := make([]*qdrant.PointStruct, 0, end-start)
		for _, entry := range entries[start:end] {
			if len(entry.Vector) != q.dims {
				return fmt.Errorf("item %d: vector has %d dimensions, collection has %d", entry.ItemID, len(entry.Vector), q.dims)
			}
			batch = append(batch, pointFromEntry(entry))
		}
		if err := q.upsert(ctx, batch); err != nil {
			return err
		}
		for _, entry := range entries[start:end] {
			q.ids[entry.ItemID] = struct{}{}
		}
	}
	q.logger.Info("qdrant index rebuilt",
		logging.String("collection", q.collection),
		logging.Int("entries", len(q.ids)),
	)
	return nil
}

func (q *Qdrant) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

func (q *Qdrant) Close() error {
	return q.conn.Close()
}

func (q *Qdrant) ensureCollection(ctx context.Context, dims int) error {
	if dims == 0 {
		return errors.New("empty vector")
	}
	if q.dims != 0 {
		if dims != q.dims {
			return fmt.Errorf("vector has %d dimensions, collection has %d", dims, q.dims)
		}
		return nil
	}
	_, err := q.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: q.collection})
	if err == nil {
		q.dims = dims
		return nil
	}
	if st, ok := status.FromError(err); !ok || st.Code() != codes.NotFound {
		return fmt.Errorf("check collection %s: %w", q.collection, err)
	}
	q.logger.Info("creating qdrant collection", logging.String("collection", q.collection), logging.Int("dims", dims))
	_, err = q.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(dims),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", q.collection, err)
	}
	q.dims = dims
	return nil
}

func (q *Qdrant) upsert(ctx context.Context, points []*qdrant.PointStruct) error {
	wait := true
	_, err := q.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert %d points: %w", len(points), err)
	}
	return nil
}

// searchFilter limits a search to the horizon and drops the querying item.
// It returns nil when neither applies.
func searchFilter(since time.Time, exclude int64) *qdrant.Filter {
	filter := &qdrant.Filter{}
	if !since.IsZero() {
		gte := float64(since.UnixMilli())
		filter.Must = append(filter.Must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   payloadObservedAt,
					Range: &qdrant.Range{Gte: &gte},
				},
			},
		})
	}
	if exclude > 0 {
		filter.MustNot = append(filter.MustNot, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_HasId{
				HasId: &qdrant.HasIdCondition{
					HasId: []*qdrant.PointId{pointID(exclude)},
				},
			},
		})
	}
	if len(filter.Must) == 0 && len(filter.MustNot) == 0 {
		return nil
	}
	return filter
}

func pointID(id int64) *qdrant.PointId {
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Num{Num: uint64(id)}}
}

func pointFromEntry(entry Entry) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id: pointID(entry.ItemID),
		Payload: map[string]*qdrant.Value{
			payloadObservedAt: {Kind: &qdrant.Value_IntegerValue{IntegerValue: entry.ObservedAt.UnixMilli()}},
		},
		Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: entry.Vector}}},
	}
}

func matchFromScored(point *qdrant.ScoredPoint) *Match {
	match := &Match{
		ItemID:     int64(point.GetId().GetNum()),
		Similarity: float64(point.GetScore()),
	}
	if value, ok := point.GetPayload()[payloadObservedAt]; ok {
		match.ObservedAt = time.UnixMilli(value.GetIntegerValue()).UTC()
	}
	return match
}
