package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/anchorwatch/backend/internal/pipeline"
	"github.com/anchorwatch/backend/internal/storage/models"
	"github.com/anchorwatch/backend/internal/storage/sqlite"
	"github.com/anchorwatch/backend/internal/vector/milvus"
	"github.com/anchorwatch/backend/pkg/logger"
	"github.com/anchorwatch/backend/pkg/utils"
)

var ErrInvalidSubmission = errors.New("invalid document submission")

// VectorStore is the write surface for chunk embeddings.
type VectorStore interface {
	Insert(ctx context.Context, records []milvus.VectorRecord) error
}

// Submission is one document arriving with its chunk embeddings already
// computed upstream.
type Submission struct {
	SourceID int64
	URL      string
	Title    string
	Chunks   [][]float32
}

// Ingestor persists submitted documents and their chunk vectors, then stamps
// them indexed so the matcher picks them up. A document whose vectors fail to
// store stays unindexed and can be resubmitted.
type Ingestor struct {
	db        *sqlite.Client
	vectors   VectorStore
	tracker   *pipeline.Tracker
	vectorDim int
}

func NewIngestor(db *sqlite.Client, vectors VectorStore, tracker *pipeline.Tracker, vectorDim int) *Ingestor {
	return &Ingestor{
		db:        db,
		vectors:   vectors,
		tracker:   tracker,
		vectorDim: vectorDim,
	}
}

// Ingest stores one submission end to end and returns the document ID.
func (ing *Ingestor) Ingest(ctx context.Context, sub Submission) (int64, error) {
	if err := ing.validate(sub); err != nil {
		return 0, err
	}

	docID, err := ing.db.InsertDocument(ctx, &models.Document{
		SourceID:   sub.SourceID,
		URL:        sub.URL,
		Title:      sub.Title,
		IngestedAt: time.Now(),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to store document: %w", err)
	}

	refID := fmt.Sprintf("%d", docID)
	urlHash := utils.HashString(sub.URL)
	records := make([]milvus.VectorRecord, 0, len(sub.Chunks))
	for i, chunk := range sub.Chunks {
		records = append(records, milvus.VectorRecord{
			ID:         fmt.Sprintf("%s_%s_%d", milvus.KindDocument, urlHash, i),
			Kind:       milvus.KindDocument,
			RefID:      refID,
			ChunkIndex: i,
			Embedding:  chunk,
			Timestamp:  time.Now(),
		})
	}

	if err := ing.vectors.Insert(ctx, records); err != nil {
		return 0, fmt.Errorf("failed to store chunk vectors: %w", err)
	}

	if err := ing.tracker.Advance(ctx, pipeline.StageIndexed, []int64{docID}, time.Now()); err != nil {
		return 0, fmt.Errorf("failed to mark document indexed: %w", err)
	}

	logger.Info("Document ingested",
		zap.Int64("document_id", docID),
		zap.String("url", sub.URL),
		zap.Int("chunks", len(records)),
	)

	return docID, nil
}

func (ing *Ingestor) validate(sub Submission) error {
	if sub.SourceID <= 0 {
		return fmt.Errorf("%w: source_id is required", ErrInvalidSubmission)
	}
	if !isValidURL(sub.URL) {
		return fmt.Errorf("%w: bad url %q", ErrInvalidSubmission, sub.URL)
	}
	if len(sub.Chunks) == 0 {
		return fmt.Errorf("%w: no chunk embeddings", ErrInvalidSubmission)
	}
	for i, chunk := range sub.Chunks {
		if len(chunk) != ing.vectorDim {
			return fmt.Errorf("%w: chunk %d has dimension %d, want %d",
				ErrInvalidSubmission, i, len(chunk), ing.vectorDim)
		}
	}
	return nil
}

func isValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
