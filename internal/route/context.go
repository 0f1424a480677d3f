package route

import (
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/replayproof/engine/internal/verify/canon"
	"github.com/replayproof/engine/pkg/types"
)

// BuilderFunc contributes fields to the render context for a matched route.
// Returned mappings are shallow-merged over the accumulated context, later
// builders overriding earlier ones.
type BuilderFunc func(req *types.Request, params map[string]string) (map[string]any, error)

// ContextBuilder assembles the render context: the default request-derived
// context first, then each registered builder in registration order.
// Builder errors are logged and the builder's contribution skipped; context
// assembly itself never fails.
type ContextBuilder struct {
	builders []BuilderFunc
	logger   *zap.Logger
	now      func() time.Time
	rand     *rand.Rand
}

// NewContextBuilder creates a context builder with only the default context.
func NewContextBuilder(logger *zap.Logger) *ContextBuilder {
	return &ContextBuilder{
		logger: logger,
		now:    time.Now,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Register appends a context builder. Registration order is merge order.
func (b *ContextBuilder) Register(fn BuilderFunc) {
	b.builders = append(b.builders, fn)
}

// SetClock overrides the context clock (tests only).
func (b *ContextBuilder) SetClock(now func() time.Time) { b.now = now }

// SetRand overrides the random source (tests only).
func (b *ContextBuilder) SetRand(r *rand.Rand) { b.rand = r }

// Build assembles the render context for a request and its extracted path
// parameters.
func (b *ContextBuilder) Build(req *types.Request, params map[string]string) map[string]any {
	ctx := b.defaultContext(req, params)

	for i, fn := range b.builders {
		extra, err := fn(req, params)
		if err != nil {
			b.logger.Warn("Context builder failed, skipping its contribution",
				zap.Int("builder_index", i),
				zap.Error(err))
			continue
		}
		for k, v := range extra {
			ctx[k] = v
		}
	}

	return ctx
}

func (b *ContextBuilder) defaultContext(req *types.Request, params map[string]string) map[string]any {
	paramMap := make(map[string]any, len(params))
	for k, v := range params {
		paramMap[k] = v
	}

	return map[string]any{
		"request": map[string]any{
			"method": strings.ToUpper(req.Method),
			"path":   req.Path,
			"query":  canon.Value(req.Query),
			"params": paramMap,
			"body":   canon.Value(req.Body),
		},
		"timestamp": b.now().UnixMilli(),
		"random": map[string]any{
			"uuid":   uuid.NewString(),
			"number": b.rand.Intn(1000),
		},
	}
}
