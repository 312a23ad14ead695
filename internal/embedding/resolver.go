package embedding

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/anchorwatch/backend/internal/storage/models"
	"github.com/anchorwatch/backend/internal/vector/milvus"
	"github.com/anchorwatch/backend/pkg/circuitbreaker"
	"github.com/anchorwatch/backend/pkg/logger"
	"github.com/anchorwatch/backend/pkg/retry"
)

var ErrUnknownComponentType = errors.New("unknown component type")

// Store is the vector-store surface the resolver depends on.
type Store interface {
	VectorsByRef(ctx context.Context, kind, refID string) ([][]float32, error)
}

// Cache is an optional read-through cache for component vectors.
type Cache interface {
	GetVectors(ctx context.Context, kind, refID string) ([][]float32, bool, error)
	SetVectors(ctx context.Context, kind, refID string, vectors [][]float32, ttl time.Duration) error
}

// Resolver turns component references and document IDs into vectors. It is a
// pure lookup: no embedding computation happens here.
type Resolver struct {
	store    Store
	cache    Cache
	breaker  *circuitbreaker.CircuitBreaker
	retryCfg retry.Config
	cacheTTL time.Duration
}

func NewResolver(store Store, cache Cache, cacheTTL time.Duration) *Resolver {
	return &Resolver{
		store: store,
		cache: cache,
		breaker: circuitbreaker.NewCircuitBreaker("vector-store", circuitbreaker.Config{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
			Logger:           logger.Log,
		}),
		retryCfg: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Logger:       logger.Log,
		},
		cacheTTL: cacheTTL,
	}
}

// ComponentVectors resolves one anchor component to its stored vectors.
// Component vectors change rarely, so they go through the cache; the cache is
// invalidated on anchor edits.
func (r *Resolver) ComponentVectors(ctx context.Context, comp models.AnchorComponent) ([][]float32, error) {
	kind, err := kindForComponent(comp.Type)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		vectors, hit, err := r.cache.GetVectors(ctx, kind, comp.ComponentID)
		if err != nil {
			logger.Warn("Component vector cache read failed", zap.Error(err))
		} else if hit {
			return vectors, nil
		}
	}

	vectors, err := r.fetch(ctx, kind, comp.ComponentID)
	if err != nil {
		return nil, err
	}

	if r.cache != nil && len(vectors) > 0 {
		if err := r.cache.SetVectors(ctx, kind, comp.ComponentID, vectors, r.cacheTTL); err != nil {
			logger.Warn("Component vector cache write failed", zap.Error(err))
		}
	}

	return vectors, nil
}

// DocumentVectors returns the chunk vectors for one document. Documents are
// scored once per matcher pass, so these are not cached.
func (r *Resolver) DocumentVectors(ctx context.Context, docID int64) ([][]float32, error) {
	return r.fetch(ctx, milvus.KindDocument, strconv.FormatInt(docID, 10))
}

func (r *Resolver) fetch(ctx context.Context, kind, refID string) ([][]float32, error) {
	return retry.DoWithResult(ctx, r.retryCfg, func() ([][]float32, error) {
		var vectors [][]float32
		err := r.breaker.Execute(ctx, func() error {
			var innerErr error
			vectors, innerErr = r.store.VectorsByRef(ctx, kind, refID)
			return innerErr
		})
		if err != nil {
			return nil, fmt.Errorf("vector lookup %s/%s: %w", kind, refID, err)
		}
		return vectors, nil
	})
}

func kindForComponent(componentType string) (string, error) {
	switch componentType {
	case models.ComponentTag:
		return milvus.KindTag, nil
	case models.ComponentKBItem:
		return milvus.KindKBItem, nil
	case models.ComponentHypoDoc:
		return milvus.KindHypoDoc, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownComponentType, componentType)
	}
}
