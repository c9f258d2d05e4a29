package vector

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/hyperjump/scout/internal/fileid"
	"github.com/hyperjump/scout/internal/models"
	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// RemoteOptions configures a connection to a vector service.
type RemoteOptions struct {
	Address           string
	APIKey            string
	UseTLS            bool
	RequestTimeout    time.Duration
	ReadyTimeout      time.Duration
	ReadyPollInterval time.Duration
	Logger            *zap.Logger
}

// QdrantIndex stores entries as Qdrant points. Point ids are the UUID form of the image
// identity; the payload carries the identity and metadata.
type QdrantIndex struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	opts        RemoteOptions
	logger      *zap.Logger
}

// NewQdrant connects to Qdrant's gRPC API. collection is the default collection name;
// EnsureIndex may replace it.
func NewQdrant(collection string, opts RemoteOptions) (*QdrantIndex, error) {
	return newQdrant(collection, opts)
}

func newQdrant(collection string, opts RemoteOptions, extra ...grpc.DialOption) (*QdrantIndex, error) {
	creds := insecure.NewCredentials()
	if opts.UseTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if opts.APIKey != "" {
		dialOpts = append(dialOpts, grpc.WithUnaryInterceptor(apiKeyInterceptor(opts.APIKey)))
	}
	dialOpts = append(dialOpts, extra...)
	conn, err := grpc.NewClient(opts.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant connect %s: %w", ErrUnavailable, opts.Address, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QdrantIndex{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		opts:        opts,
		logger:      logger,
	}, nil
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", key)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func qdrantDistance(m Metric) pb.Distance {
	if m == MetricDot {
		return pb.Distance_Dot
	}
	return pb.Distance_Cosine
}

// EnsureIndex creates the collection if it does not exist and waits until it is green.
func (q *QdrantIndex) EnsureIndex(ctx context.Context, spec IndexSpec) error {
	if spec.Name != "" {
		q.collection = spec.Name
	}
	q.logger.Debug("placement hints are not used by qdrant",
		zap.String("cloud", spec.Cloud), zap.String("region", spec.Region))

	callCtx, cancel := withTimeout(ctx, q.opts.RequestTimeout)
	exists, err := q.collections.CollectionExists(callCtx, &pb.CollectionExistsRequest{CollectionName: q.collection})
	cancel()
	if err != nil {
		return fmt.Errorf("%w: check collection %s: %w", ErrUnavailable, q.collection, err)
	}
	if !exists.GetResult().GetExists() {
		q.logger.Info("creating collection",
			zap.String("collection", q.collection), zap.Int("dimension", spec.Dimension))
		callCtx, cancel := withTimeout(ctx, q.opts.RequestTimeout)
		_, err := q.collections.Create(callCtx, &pb.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{
				Size:     uint64(spec.Dimension),
				Distance: qdrantDistance(spec.Metric),
			}}},
		})
		cancel()
		if err != nil {
			return fmt.Errorf("failed to create collection %s: %w", q.collection, err)
		}
	}
	return WaitReady(ctx, q.ready, q.opts.ReadyTimeout, q.opts.ReadyPollInterval)
}

func (q *QdrantIndex) ready(ctx context.Context) (bool, error) {
	callCtx, cancel := withTimeout(ctx, q.opts.RequestTimeout)
	defer cancel()
	info, err := q.collections.Get(callCtx, &pb.GetCollectionInfoRequest{CollectionName: q.collection})
	if err != nil {
		return false, err
	}
	return info.GetResult().GetStatus() == pb.CollectionStatus_Green, nil
}

// Upsert writes one batch of points and waits for the write to be applied.
func (q *QdrantIndex) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(entries))
	for i, e := range entries {
		id, err := fileid.UUID(e.ID)
		if err != nil {
			return err
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: e.Vector}}},
			Payload: map[string]*pb.Value{
				"image_id": stringValue(e.ID),
				"path":     stringValue(e.Metadata.Path),
				"filename": stringValue(e.Metadata.Filename),
			},
		}
	}
	ctx, cancel := withTimeout(ctx, q.opts.RequestTimeout)
	defer cancel()
	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         points,
	})
	return transient("upsert", err)
}

// Query returns the nearest points with their payload.
func (q *QdrantIndex) Query(ctx context.Context, vec []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	ctx, cancel := withTimeout(ctx, q.opts.RequestTimeout)
	defer cancel()
	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         vec,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, transient("query", err)
	}
	matches := make([]Match, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		payload := pt.GetPayload()
		id := payload["image_id"].GetStringValue()
		if id == "" {
			if id, err = fileid.FromUUID(pt.GetId().GetUuid()); err != nil {
				q.logger.Warn("skipping point with unknown id", zap.Error(err))
				continue
			}
		}
		matches = append(matches, Match{
			ID:    id,
			Score: float64(pt.GetScore()),
			Metadata: models.ImageMetadata{
				Path:     payload["path"].GetStringValue(),
				Filename: payload["filename"].GetStringValue(),
			},
		})
	}
	return matches, nil
}

// FetchExisting retrieves the given points without payload or vectors.
func (q *QdrantIndex) FetchExisting(ctx context.Context, ids []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	if len(ids) == 0 {
		return found, nil
	}
	pointIDs, err := qdrantPointIDs(ids)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx, q.opts.RequestTimeout)
	defer cancel()
	resp, err := q.points.Get(ctx, &pb.GetPoints{
		CollectionName: q.collection,
		Ids:            pointIDs,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: false}},
	})
	if err != nil {
		return nil, transient("fetch", err)
	}
	for _, pt := range resp.GetResult() {
		id, err := fileid.FromUUID(pt.GetId().GetUuid())
		if err != nil {
			continue
		}
		found[id] = struct{}{}
	}
	return found, nil
}

// Delete removes points by identity.
func (q *QdrantIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs, err := qdrantPointIDs(ids)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx, q.opts.RequestTimeout)
	defer cancel()
	wait := true
	_, err = q.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{PointsSelectorOneOf: &pb.PointsSelector_Points{
			Points: &pb.PointsIdsList{Ids: pointIDs},
		}},
	})
	return transient("delete", err)
}

// DeleteIndex drops the named collection.
func (q *QdrantIndex) DeleteIndex(ctx context.Context, name string) error {
	if name == "" {
		name = q.collection
	}
	ctx, cancel := withTimeout(ctx, q.opts.RequestTimeout)
	defer cancel()
	if _, err := q.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name}); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, err)
	}
	return nil
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.conn.Close()
}

func qdrantPointIDs(ids []string) ([]*pb.PointId, error) {
	out := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		u, err := fileid.UUID(id)
		if err != nil {
			return nil, err
		}
		out[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: u}}
	}
	return out, nil
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

var _ Index = (*QdrantIndex)(nil)
