package push

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"schoolnotify/pkg/circuitbreaker"
)

// BreakerTransport stops calling the wrapped transport while it keeps failing.
// A rejected call is a failed send; nothing is queued for later. Errors about
// a single message or token do not count as transport failures.
type BreakerTransport struct {
	next    Transport
	breaker *circuitbreaker.CircuitBreaker
}

func NewBreakerTransport(next Transport, cfg circuitbreaker.Config, logger *zap.Logger) *BreakerTransport {
	logger = logger.Named("push-breaker")
	cfg.OnStateChange = func(from, to circuitbreaker.State) {
		logger.Warn("Push circuit breaker state changed",
			zap.String("transport", next.Name()),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	return &BreakerTransport{
		next:    next,
		breaker: circuitbreaker.NewCircuitBreaker(cfg),
	}
}

func (t *BreakerTransport) Name() string { return t.next.Name() }

func (t *BreakerTransport) Send(ctx context.Context, msg Message) (string, error) {
	var (
		id     string
		msgErr error
	)
	err := t.breaker.Execute(func() error {
		var sendErr error
		id, sendErr = t.next.Send(ctx, msg)
		if IsMessageError(sendErr) {
			msgErr = sendErr
			return nil
		}
		return sendErr
	})
	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		return "", &SendError{Code: "circuit_open", Err: err}
	}
	if msgErr != nil {
		return "", msgErr
	}
	return id, err
}
