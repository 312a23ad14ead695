package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/anchorwatch/backend/pkg/logger"
)

// Vector kinds stored in the shared collection. Tag, knowledge-base and
// hypothetical-document vectors feed anchor composition; document vectors are
// the per-chunk embeddings of ingested documents.
const (
	KindTag      = "tag"
	KindKBItem   = "kb_item"
	KindHypoDoc  = "hypodoc"
	KindDocument = "document"
)

type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

type VectorRecord struct {
	ID         string
	Kind       string
	RefID      string
	ChunkIndex int
	Embedding  []float32
	Timestamp  time.Time
}

func NewClient(endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(
		context.Background(),
		endpoint,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (v *Client) Close() error {
	return v.client.Close()
}

func (v *Client) EnsureCollection(ctx context.Context) error {
	has, err := v.client.HasCollection(ctx, v.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", v.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: v.collectionName,
		Description:    "Research corpus and anchor component embeddings",
		Fields: []*entity.Field{
			{
				Name:       "vec_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     "kind",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     "ref_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "256",
				},
			},
			{
				Name:     "chunk_index",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", v.vectorDim),
				},
			},
			{
				Name:     "timestamp",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	err = v.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.IP, 1024)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	err = v.client.CreateIndex(ctx, v.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = v.client.LoadCollection(ctx, v.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", v.collectionName))

	return nil
}

func (v *Client) Insert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, len(records))
	kinds := make([]string, len(records))
	refIDs := make([]string, len(records))
	chunkIndexes := make([]int64, len(records))
	embeddings := make([][]float32, len(records))
	timestamps := make([]int64, len(records))

	for i, rec := range records {
		ids[i] = rec.ID
		kinds[i] = rec.Kind
		refIDs[i] = rec.RefID
		chunkIndexes[i] = int64(rec.ChunkIndex)
		embeddings[i] = rec.Embedding
		timestamps[i] = rec.Timestamp.Unix()
	}

	_, err := v.client.Insert(
		ctx,
		v.collectionName,
		"",
		entity.NewColumnVarChar("vec_id", ids),
		entity.NewColumnVarChar("kind", kinds),
		entity.NewColumnVarChar("ref_id", refIDs),
		entity.NewColumnInt64("chunk_index", chunkIndexes),
		entity.NewColumnFloatVector("embedding", v.vectorDim, embeddings),
		entity.NewColumnInt64("timestamp", timestamps),
	)
	if err != nil {
		return fmt.Errorf("failed to insert vectors: %w", err)
	}

	err = v.client.Flush(ctx, v.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Vectors inserted", zap.Int("count", len(records)))

	return nil
}

// VectorsByRef fetches every stored vector for one (kind, ref_id) pair. A
// chunked entry returns all of its chunk vectors.
func (v *Client) VectorsByRef(ctx context.Context, kind, refID string) ([][]float32, error) {
	expr := fmt.Sprintf(`kind == "%s" && ref_id == "%s"`, kind, refID)

	rs, err := v.client.Query(
		ctx,
		v.collectionName,
		nil,
		expr,
		[]string{"embedding"},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}

	col := rs.GetColumn("embedding")
	if col == nil {
		return nil, nil
	}
	vecCol, ok := col.(*entity.ColumnFloatVector)
	if !ok {
		return nil, fmt.Errorf("unexpected embedding column type %T", col)
	}

	data := vecCol.Data()
	vectors := make([][]float32, 0, len(data))
	for _, vec := range data {
		vectors = append(vectors, vec)
	}

	logger.Debug("Vector lookup completed",
		zap.String("kind", kind),
		zap.String("ref_id", refID),
		zap.Int("vectors", len(vectors)),
	)

	return vectors, nil
}
