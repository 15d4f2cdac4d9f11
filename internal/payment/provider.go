// Package payment talks to the external payment provider.  The booking
// services depend only on Provider; Stripe is the production
// implementation, Sandbox stands in when no Stripe key is configured, and
// Guard bounds every network call with a timeout and a circuit breaker.
package payment

import (
	"context"
	"errors"
)

// Metadata keys written on every payment intent.
const (
	MetaReservationID = "reservation_id"
	MetaBookingCode   = "booking_code"
	MetaUserID        = "user_id"
)

// Provider states and webhook event types the services care about.
const (
	StateSucceeded = "succeeded"

	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

var (
	// ErrUnknownReference means the provider has no payment with that id.
	ErrUnknownReference = errors.New("payment: unknown reference")
	// ErrInvalidSignature means a webhook payload failed verification.
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
	// ErrTimeout means the provider did not answer in time.
	ErrTimeout = errors.New("payment: provider timeout")
	// ErrUnavailable means the circuit breaker is open.
	ErrUnavailable = errors.New("payment: provider unavailable")
)

// Intent is the handle a client uses to complete a payment.
type Intent struct {
	Reference    string
	ClientSecret string
}

// Status is the provider's view of a payment.
type Status struct {
	Reference   string
	State       string
	AmountCents int64
	Currency    string
	Metadata    map[string]string
}

// Succeeded reports whether the payment was captured.
func (s *Status) Succeeded() bool { return s != nil && s.State == StateSucceeded }

// Event is a verified webhook notification.
type Event struct {
	ID        string
	Type      string
	Reference string
	State     string
	Metadata  map[string]string
}

// Provider is the reconciliation contract with the payment provider.
type Provider interface {
	CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*Intent, error)
	GetStatus(ctx context.Context, reference string) (*Status, error)
	// Refund refunds amountCents of the payment, or all of it when
	// amountCents is zero.  Calls sharing an idempotency key refund once.
	Refund(ctx context.Context, reference string, amountCents int64, idempotencyKey string) (refundID string, err error)
	// VerifyWebhookSignature returns the decoded event or
	// ErrInvalidSignature.
	VerifyWebhookSignature(payload []byte, signature string) (*Event, error)
}
