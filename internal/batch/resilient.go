package batch

import (
	"context"

	"github.com/sells-group/fiber-bom/internal/feature"
	"github.com/sells-group/fiber-bom/internal/resilience"
	"github.com/sells-group/fiber-bom/internal/spatial"
)

// ResilientSource retries transient fetch failures and stops calling the
// spatial database once it keeps failing. An unknown boundary is never
// retried and never trips the breaker.
type ResilientSource struct {
	Source  Source
	Retry   resilience.RetryConfig
	Breaker *resilience.Breaker
}

// NewResilientSource wraps src with retry and a breaker.
func NewResilientSource(src Source, retry resilience.RetryConfig, breaker resilience.BreakerConfig) *ResilientSource {
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("batch", "fetch")
	}
	return &ResilientSource{Source: src, Retry: retry, Breaker: resilience.NewBreaker(breaker)}
}

// Fetch implements Source.
func (r *ResilientSource) Fetch(ctx context.Context, plan spatial.Plan, boundary string) (*feature.Set, error) {
	return resilience.DoVal(ctx, r.Retry, func(ctx context.Context) (*feature.Set, error) {
		if r.Breaker == nil {
			return r.Source.Fetch(ctx, plan, boundary)
		}
		return resilience.ExecuteVal(ctx, r.Breaker, func(ctx context.Context) (*feature.Set, error) {
			return r.Source.Fetch(ctx, plan, boundary)
		})
	})
}
