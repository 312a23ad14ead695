package anchor

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/anchorwatch/backend/internal/storage/models"
	"github.com/anchorwatch/backend/pkg/logger"
)

// ErrNotComposable marks an anchor with zero resolvable components. The
// matcher skips such anchors instead of failing the run.
var ErrNotComposable = errors.New("anchor has no resolvable components")

// ComponentResolver resolves one component reference to its stored vectors.
type ComponentResolver interface {
	ComponentVectors(ctx context.Context, comp models.AnchorComponent) ([][]float32, error)
}

// Compositor builds an anchor's effective vector as the centroid of all of
// its resolved component vectors. The result is recomputed on demand rather
// than cached: anchors are mutable and a stale centroid would silently skew
// every score.
type Compositor struct {
	resolver ComponentResolver
}

func NewCompositor(resolver ComponentResolver) *Compositor {
	return &Compositor{resolver: resolver}
}

// Composite returns the anchor's centroid vector. Components that fail to
// resolve, or resolve to nothing, are skipped with a warning; only when no
// component yields a vector does the anchor become ErrNotComposable.
func (c *Compositor) Composite(ctx context.Context, anchor models.Anchor) ([]float32, error) {
	var collected [][]float32
	for _, comp := range anchor.Components {
		vectors, err := c.resolver.ComponentVectors(ctx, comp)
		if err != nil {
			logger.Warn("Skipping unresolvable anchor component",
				zap.String("anchor", anchor.Name),
				zap.String("component_type", comp.Type),
				zap.String("component_id", comp.ComponentID),
				zap.Error(err),
			)
			continue
		}
		for _, vec := range vectors {
			if len(vec) == 0 {
				continue
			}
			if len(collected) > 0 && len(vec) != len(collected[0]) {
				logger.Warn("Skipping component vector with mismatched dimension",
					zap.String("anchor", anchor.Name),
					zap.String("component_id", comp.ComponentID),
					zap.Int("want", len(collected[0])),
					zap.Int("got", len(vec)),
				)
				continue
			}
			collected = append(collected, vec)
		}
	}

	if len(collected) == 0 {
		return nil, ErrNotComposable
	}

	return centroid(collected), nil
}

// centroid is the arithmetic mean of the vectors, accumulated in float64 so
// the result is deterministic for a fixed component set.
func centroid(vectors [][]float32) []float32 {
	dim := len(vectors[0])
	sums := make([]float64, dim)
	for _, vec := range vectors {
		for i, v := range vec {
			sums[i] += float64(v)
		}
	}

	out := make([]float32, dim)
	n := float64(len(vectors))
	for i, s := range sums {
		out[i] = float32(s / n)
	}
	return out
}
