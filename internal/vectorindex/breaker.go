package vectorindex

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerIndex guards an Index with a circuit breaker so a dead backend
// fails fast to a semantic miss instead of holding requests on the wire.
type BreakerIndex struct {
	inner Index
	cb    *gobreaker.CircuitBreaker
}

func NewBreakerIndex(inner Index, logger *zap.Logger) *BreakerIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("vectorindex_breaker")

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "vector-index",
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

	return &BreakerIndex{inner: inner, cb: cb}
}

func (b *BreakerIndex) Query(ctx context.Context, vector []float32, bucket string, topK int) ([]Match, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Query(ctx, vector, bucket, topK)
	})
	if err != nil {
		return nil, err
	}
	return out.([]Match), nil
}

func (b *BreakerIndex) Upsert(ctx context.Context, entry Entry) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.Upsert(ctx, entry)
	})
	return err
}
