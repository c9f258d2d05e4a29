package vector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperjump/scout/internal/models"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"go.uber.org/zap"
)

// Milvus field names.
const (
	FieldID       = "id"
	FieldVector   = "vector"
	FieldPath     = "path"
	FieldFilename = "filename"
)

// MilvusIndex stores entries in a Milvus collection with a VarChar primary key and an
// HNSW-indexed float vector field.
type MilvusIndex struct {
	client     *milvusclient.Client
	collection string
	dimension  int
	opts       RemoteOptions
	logger     *zap.Logger
}

// NewMilvus connects to Milvus.
func NewMilvus(ctx context.Context, collection string, opts RemoteOptions) (*MilvusIndex, error) {
	connCtx, cancel := withTimeout(ctx, opts.RequestTimeout)
	defer cancel()
	client, err := milvusclient.New(connCtx, &milvusclient.ClientConfig{
		Address:       opts.Address,
		APIKey:        opts.APIKey,
		EnableTLSAuth: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: milvus connect %s: %w", ErrUnavailable, opts.Address, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MilvusIndex{client: client, collection: collection, opts: opts, logger: logger}, nil
}

func milvusMetric(m Metric) entity.MetricType {
	if m == MetricDot {
		return entity.IP
	}
	return entity.COSINE
}

// EnsureIndex creates the collection and its vector index when absent, loads it and waits
// for the load to finish.
func (m *MilvusIndex) EnsureIndex(ctx context.Context, spec IndexSpec) error {
	if spec.Name != "" {
		m.collection = spec.Name
	}
	m.dimension = spec.Dimension
	m.logger.Debug("placement hints are not used by milvus",
		zap.String("cloud", spec.Cloud), zap.String("region", spec.Region))

	callCtx, cancel := withTimeout(ctx, m.opts.RequestTimeout)
	exists, err := m.client.HasCollection(callCtx, milvusclient.NewHasCollectionOption(m.collection))
	cancel()
	if err != nil {
		return fmt.Errorf("%w: check collection %s: %w", ErrUnavailable, m.collection, err)
	}
	if !exists {
		if err := m.create(ctx, spec); err != nil {
			return err
		}
	}

	callCtx, cancel = withTimeout(ctx, m.opts.RequestTimeout)
	_, err = m.client.LoadCollection(callCtx, milvusclient.NewLoadCollectionOption(m.collection))
	cancel()
	if err != nil {
		return fmt.Errorf("failed to load collection %s: %w", m.collection, err)
	}
	return WaitReady(ctx, m.ready, m.opts.ReadyTimeout, m.opts.ReadyPollInterval)
}

func (m *MilvusIndex) create(ctx context.Context, spec IndexSpec) error {
	m.logger.Info("creating collection",
		zap.String("collection", m.collection), zap.Int("dimension", spec.Dimension))
	schema := milvusSchema(m.collection, spec.Dimension)
	callCtx, cancel := withTimeout(ctx, m.opts.RequestTimeout)
	defer cancel()
	if err := m.client.CreateCollection(callCtx, milvusclient.NewCreateCollectionOption(m.collection, schema)); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", m.collection, err)
	}
	idx := index.NewHNSWIndex(milvusMetric(spec.Metric), 16, 200)
	if _, err := m.client.CreateIndex(callCtx, milvusclient.NewCreateIndexOption(m.collection, FieldVector, idx)); err != nil {
		return fmt.Errorf("failed to create index on %s: %w", FieldVector, err)
	}
	return nil
}

// milvusSchema describes the collection: a VarChar primary key holding the identity, the
// float vector and the two metadata columns.
func milvusSchema(collection string, dimension int) *entity.Schema {
	return &entity.Schema{
		CollectionName: collection,
		Description:    "image embeddings",
		Fields: []*entity.Field{
			{
				Name:       FieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       FieldVector,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(dimension)},
			},
			{
				Name:       FieldPath,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "4096"},
			},
			{
				Name:       FieldFilename,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "1024"},
			},
		},
	}
}

func (m *MilvusIndex) ready(ctx context.Context) (bool, error) {
	callCtx, cancel := withTimeout(ctx, m.opts.RequestTimeout)
	defer cancel()
	state, err := m.client.GetLoadState(callCtx, milvusclient.NewGetLoadStateOption(m.collection))
	if err != nil {
		return false, err
	}
	return state.State == entity.LoadStateLoaded, nil
}

// Upsert writes one batch column-wise.
func (m *MilvusIndex) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]string, len(entries))
	paths := make([]string, len(entries))
	names := make([]string, len(entries))
	vecs := make([][]float32, len(entries))
	for i, e := range entries {
		ids[i], paths[i], names[i], vecs[i] = e.ID, e.Metadata.Path, e.Metadata.Filename, e.Vector
	}
	dim := m.dimension
	if dim == 0 {
		dim = len(vecs[0])
	}
	opt := milvusclient.NewColumnBasedInsertOption(m.collection).
		WithVarcharColumn(FieldID, ids).
		WithFloatVectorColumn(FieldVector, dim, vecs).
		WithVarcharColumn(FieldPath, paths).
		WithVarcharColumn(FieldFilename, names)
	ctx, cancel := withTimeout(ctx, m.opts.RequestTimeout)
	defer cancel()
	_, err := m.client.Upsert(ctx, opt)
	return transient("upsert", err)
}

// Query runs an ANN search on the vector field.
func (m *MilvusIndex) Query(ctx context.Context, vec []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	opt := milvusclient.NewSearchOption(m.collection, topK, []entity.Vector{entity.FloatVector(vec)}).
		WithANNSField(FieldVector).
		WithOutputFields(FieldPath, FieldFilename)
	ctx, cancel := withTimeout(ctx, m.opts.RequestTimeout)
	defer cancel()
	results, err := m.client.Search(ctx, opt)
	if err != nil {
		return nil, transient("query", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	rs := results[0]
	matches := make([]Match, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		id, err := rs.IDs.GetAsString(i)
		if err != nil {
			m.logger.Warn("skipping result without id", zap.Int("row", i), zap.Error(err))
			continue
		}
		match := Match{ID: id}
		if i < len(rs.Scores) {
			match.Score = float64(rs.Scores[i])
		}
		match.Metadata = models.ImageMetadata{
			Path:     columnString(rs.GetColumn(FieldPath), i),
			Filename: columnString(rs.GetColumn(FieldFilename), i),
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// FetchExisting queries primary keys with an "in" filter.
func (m *MilvusIndex) FetchExisting(ctx context.Context, ids []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	if len(ids) == 0 {
		return found, nil
	}
	opt := milvusclient.NewQueryOption(m.collection).
		WithFilter(idFilter(ids)).
		WithOutputFields(FieldID)
	ctx, cancel := withTimeout(ctx, m.opts.RequestTimeout)
	defer cancel()
	rs, err := m.client.Query(ctx, opt)
	if err != nil {
		return nil, transient("fetch", err)
	}
	col := rs.GetColumn(FieldID)
	if col == nil {
		return found, nil
	}
	for i := 0; i < col.Len(); i++ {
		if id, err := col.GetAsString(i); err == nil {
			found[id] = struct{}{}
		}
	}
	return found, nil
}

// Delete removes entries by primary key.
func (m *MilvusIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := withTimeout(ctx, m.opts.RequestTimeout)
	defer cancel()
	_, err := m.client.Delete(ctx, milvusclient.NewDeleteOption(m.collection).WithStringIDs(FieldID, ids))
	return transient("delete", err)
}

// DeleteIndex drops the named collection.
func (m *MilvusIndex) DeleteIndex(ctx context.Context, name string) error {
	if name == "" {
		name = m.collection
	}
	ctx, cancel := withTimeout(ctx, m.opts.RequestTimeout)
	defer cancel()
	if err := m.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(name)); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", name, err)
	}
	return nil
}

// Close closes the client connection.
func (m *MilvusIndex) Close() error {
	return m.client.Close(context.Background())
}

type stringColumn interface {
	GetAsString(int) (string, error)
}

func columnString(col stringColumn, i int) string {
	if col == nil {
		return ""
	}
	s, err := col.GetAsString(i)
	if err != nil {
		return ""
	}
	return s
}

// idFilter builds `id in ["a","b"]`. Identities are hex digests, so no escaping is needed
// beyond quoting.
func idFilter(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = strconv.Quote(id)
	}
	return fmt.Sprintf("%s in [%s]", FieldID, strings.Join(quoted, ","))
}

var _ Index = (*MilvusIndex)(nil)
