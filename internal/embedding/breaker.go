package embedding

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerEmbedder guards an Embedder with a circuit breaker. When the
// provider is down or slow the breaker trips open and every call fails
// immediately, so requests degrade straight to "no semantic cache" instead
// of queueing behind a dead upstream.
type BreakerEmbedder struct {
	inner Embedder
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerEmbedder wraps inner with a circuit breaker.
func NewBreakerEmbedder(inner Embedder, logger *zap.Logger) *BreakerEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("embedder_breaker")

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedding-provider",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &BreakerEmbedder{inner: inner, cb: cb}
}

func (b *BreakerEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return out.([]float32), nil
}
