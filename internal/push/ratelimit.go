package push

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedTransport spaces sends with a token bucket. Waiting is bounded by
// the caller's context; running out of time is a failed send.
type RateLimitedTransport struct {
	next    Transport
	limiter *rate.Limiter
}

func NewRateLimitedTransport(next Transport, perSecond float64, burst int) *RateLimitedTransport {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &RateLimitedTransport{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (t *RateLimitedTransport) Name() string { return t.next.Name() }

func (t *RateLimitedTransport) Send(ctx context.Context, msg Message) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", &SendError{Code: "rate_limited", Err: err}
	}
	return t.next.Send(ctx, msg)
}
