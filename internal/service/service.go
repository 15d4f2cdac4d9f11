// Package service holds the booking core: availability, reservation
// creation, the reservation state machine, cancellation with refunds and
// payment reconciliation.  Persistence, the payment provider and
// notifications are injected.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/payment"
	"github.com/iliyamo/hotel-reservation/internal/pricing"
	"github.com/iliyamo/hotel-reservation/internal/repository"
)

// Config holds booking rules that come from configuration.
type Config struct {
	TaxRate         float64
	Currency        string
	CancelCutoff    time.Duration // no cancellation closer than this to check-in
	SimulateEnabled bool          // allow test-mode payments without the provider
}

// DefaultConfig returns the rules used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		TaxRate:      pricing.DefaultTaxRate,
		Currency:     "usd",
		CancelCutoff: 24 * time.Hour,
	}
}

// Deps are the collaborators shared by the services.
type Deps struct {
	Store    repository.Store
	Provider payment.Provider
	Notifier Notifier
	Log      logrus.FieldLogger
	Now      func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Notifier == nil {
		d.Notifier = NopNotifier{}
	}
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID uint64
	Email  string
	Admin  bool
}

// owns reports whether a may act on r.  Staff may act on any reservation.
func (a Actor) owns(r *model.Reservation) bool {
	return a.Admin || (a.UserID != 0 && a.UserID == r.UserID)
}

// Notifier receives lifecycle notifications.  Implementations must not
// block the caller for long and must swallow their own failures.
type Notifier interface {
	BookingConfirmed(ctx context.Context, r *model.Reservation)
	BookingCancelled(ctx context.Context, r *model.Reservation, refundCents int64)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) BookingConfirmed(context.Context, *model.Reservation)        {}
func (NopNotifier) BookingCancelled(context.Context, *model.Reservation, int64) {}

var tracer = otel.Tracer("github.com/iliyamo/hotel-reservation/internal/service")

func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// newBookingCode returns a short human readable code such as BK-3F9A1C0E.
func newBookingCode() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "BK-" + strings.ToUpper(id[:8])
}
