package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// GuardConfig tunes Guard.
type GuardConfig struct {
	Timeout     time.Duration // per call
	MaxFailures uint32        // consecutive failures before the breaker opens
	OpenTimeout time.Duration // how long the breaker stays open
}

// Guard decorates a Provider: every outbound call gets its own deadline
// and runs through a circuit breaker.  Webhook verification is local and
// passes straight through.
type Guard struct {
	next    Provider
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
}

var _ Provider = (*Guard)(nil)

// NewGuard wraps next.
func NewGuard(next Provider, cfg GuardConfig, log logrus.FieldLogger) *Guard {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	maxFailures := cfg.MaxFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "payment-provider",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("payment: circuit breaker state changed")
		},
	})
	return &Guard{next: next, timeout: cfg.Timeout, cb: cb}
}

// outcome carries errors that are answers rather than provider failures,
// so they do not count against the breaker.
type outcome struct {
	val any
	err error
}

func (g *Guard) call(ctx context.Context, op string, fn func(ctx context.Context) (any, error)) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	res, err := g.cb.Execute(func() (interface{}, error) {
		v, err := fn(ctx)
		if errors.Is(err, ErrUnknownReference) {
			return outcome{err: err}, nil
		}
		if err != nil {
			return nil, err
		}
		return outcome{val: v}, nil
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%s: %w", op, ErrUnavailable)
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nil, fmt.Errorf("%s: %w: %v", op, ErrTimeout, err)
	case err != nil:
		return nil, err
	}
	o := res.(outcome)
	return o.val, o.err
}

func (g *Guard) CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*Intent, error) {
	v, err := g.call(ctx, "create intent", func(ctx context.Context) (any, error) {
		return g.next.CreateIntent(ctx, amountCents, currency, metadata)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Intent), nil
}

func (g *Guard) GetStatus(ctx context.Context, reference string) (*Status, error) {
	v, err := g.call(ctx, "get status", func(ctx context.Context) (any, error) {
		return g.next.GetStatus(ctx, reference)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Status), nil
}

func (g *Guard) Refund(ctx context.Context, reference string, amountCents int64, idempotencyKey string) (string, error) {
	v, err := g.call(ctx, "refund", func(ctx context.Context) (any, error) {
		return g.next.Refund(ctx, reference, amountCents, idempotencyKey)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (g *Guard) VerifyWebhookSignature(payload []byte, signature string) (*Event, error) {
	return g.next.VerifyWebhookSignature(payload, signature)
}
