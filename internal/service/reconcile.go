package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/payment"
	"github.com/iliyamo/hotel-reservation/internal/repository"
)

// OverbookedReason is recorded on reservations cancelled because their
// payment arrived after the room filled up.
const OverbookedReason = "capacity exhausted at confirmation"

// Confirmation sources, used in logs.
const (
	SourceWebhook  = "webhook"
	SourceVerify   = "verify"
	SourceSimulate = "simulate"
)

// EventDeduper remembers processed webhook event ids.
type EventDeduper interface {
	// Claim returns false when the event was already claimed.
	Claim(ctx context.Context, eventID string) (bool, error)
	// Release forgets a claim so a redelivery is processed again.
	Release(ctx context.Context, eventID string)
}

// Payments is the reconciliation gateway: webhook deliveries, client
// verify calls and simulated payments all end in confirm, which moves a
// reservation to confirmed at most once.
type Payments struct {
	deps   Deps
	cfg    Config
	dedupe EventDeduper
}

// NewPayments returns the gateway.  dedupe may be nil.
func NewPayments(deps Deps, cfg Config, dedupe EventDeduper) *Payments {
	return &Payments{deps: deps.withDefaults(), cfg: cfg, dedupe: dedupe}
}

// IntentResult is returned to the client to complete payment.
type IntentResult struct {
	Reference    string
	ClientSecret string
	AmountCents  int64
	Currency     string
}

// CreateIntent opens a payment for a pending reservation owned by actor
// and stores the provider reference on it.
func (p *Payments) CreateIntent(ctx context.Context, actor Actor, id uint64) (_ *IntentResult, err error) {
	ctx, span := startSpan(ctx, "Payments.CreateIntent")
	defer func() { endSpan(span, err) }()

	res, err := p.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if res.Status != model.StatusPending {
		return nil, newError(KindInvalidTransition, "a %s reservation cannot be paid", res.Status)
	}
	intent, err := p.deps.Provider.CreateIntent(ctx, res.Pricing.GrandTotalCents, p.cfg.Currency, map[string]string{
		payment.MetaReservationID: strconv.FormatUint(res.ID, 10),
		payment.MetaBookingCode:   res.Code,
		payment.MetaUserID:        strconv.FormatUint(res.UserID, 10),
	})
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	err = p.deps.Store.WithTx(ctx, func(tx repository.Tx) error {
		cur, err := lockReservation(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status != model.StatusPending {
			return newError(KindInvalidTransition, "a %s reservation cannot be paid", cur.Status)
		}
		cur.Payment.Reference = intent.Reference
		cur.UpdatedAt = p.deps.Now().UTC()
		return tx.UpdateReservation(ctx, cur)
	})
	if err != nil {
		return nil, err
	}
	return &IntentResult{
		Reference:    intent.Reference,
		ClientSecret: intent.ClientSecret,
		AmountCents:  res.Pricing.GrandTotalCents,
		Currency:     p.cfg.Currency,
	}, nil
}

// Status returns the reservation so the caller can render its payment
// state.
func (p *Payments) Status(ctx context.Context, actor Actor, id uint64) (*model.Reservation, error) {
	return p.load(ctx, actor, id)
}

func (p *Payments) load(ctx context.Context, actor Actor, id uint64) (*model.Reservation, error) {
	res, err := p.deps.Store.ReservationByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, "reservation %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	if !actor.owns(res) {
		return nil, newError(KindForbidden, "reservation %d belongs to another guest", id)
	}
	return res, nil
}

// Verify confirms a reservation after asking the provider whether the
// payment succeeded and belongs to this reservation.  The client's word
// is never enough.
func (p *Payments) Verify(ctx context.Context, actor Actor, id uint64, reference string) (_ *model.Reservation, err error) {
	ctx, span := startSpan(ctx, "Payments.Verify")
	defer func() { endSpan(span, err) }()

	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, newError(KindValidation, "payment reference is required")
	}
	res, err := p.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if settled(res.Status) && res.Payment.Reference == reference {
		return res, nil
	}

	st, err := p.deps.Provider.GetStatus(ctx, reference)
	if errors.Is(err, payment.ErrUnknownReference) {
		return nil, newError(KindVerificationFailed, "payment %s not found at provider", reference)
	}
	if err != nil {
		return nil, fmt.Errorf("query payment status: %w", err)
	}
	if !st.Succeeded() {
		return nil, newError(KindVerificationFailed, "payment status is %q", st.State)
	}
	if st.Metadata[payment.MetaReservationID] != strconv.FormatUint(id, 10) {
		p.deps.Log.WithFields(logrus.Fields{
			"reservation_id": id,
			"payment_ref":    reference,
			"user_id":        actor.UserID,
		}).Warn("payment: verify with a reference issued for another reservation")
		return nil, newError(KindVerificationFailed, "payment does not belong to this reservation")
	}
	return p.confirm(ctx, id, reference, SourceVerify)
}

// Simulate confirms a reservation without the provider.  It only works
// when simulated payments are enabled.
func (p *Payments) Simulate(ctx context.Context, actor Actor, id uint64) (_ *model.Reservation, err error) {
	ctx, span := startSpan(ctx, "Payments.Simulate")
	defer func() { endSpan(span, err) }()

	if !p.cfg.SimulateEnabled {
		return nil, newError(KindForbidden, "simulated payments are disabled")
	}
	res, err := p.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if settled(res.Status) {
		return res, nil
	}
	ref := simulatedPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	return p.confirm(ctx, id, ref, SourceSimulate)
}

// WebhookResult tells the transport whether the delivery changed anything.
// Deliveries that were verified but not applied are still acknowledged.
type WebhookResult struct {
	Processed bool
	Reason    string
}

// HandleWebhook verifies and applies a provider webhook.  Only
// infrastructure failures are returned as errors, so the provider retries
// those and nothing else.
func (p *Payments) HandleWebhook(ctx context.Context, payload []byte, signature string) (_ WebhookResult, err error) {
	ctx, span := startSpan(ctx, "Payments.HandleWebhook")
	defer func() { endSpan(span, err) }()

	ev, err := p.deps.Provider.VerifyWebhookSignature(payload, signature)
	if err != nil {
		p.deps.Log.WithError(err).Warn("payment: dropping webhook with invalid signature")
		return WebhookResult{Reason: "invalid signature"}, nil
	}
	log := p.deps.Log.WithFields(logrus.Fields{"event_id": ev.ID, "event_type": ev.Type, "payment_ref": ev.Reference})

	if p.dedupe != nil && ev.ID != "" {
		fresh, err := p.dedupe.Claim(ctx, ev.ID)
		if err != nil {
			log.WithError(err).Warn("payment: webhook dedupe unavailable, processing anyway")
		} else if !fresh {
			log.Info("payment: duplicate webhook delivery ignored")
			return WebhookResult{Reason: "duplicate"}, nil
		}
	}

	switch ev.Type {
	case payment.EventPaymentSucceeded:
		id, perr := strconv.ParseUint(ev.Metadata[payment.MetaReservationID], 10, 64)
		if perr != nil || id == 0 {
			log.Warn("payment: succeeded event without reservation id")
			return WebhookResult{Reason: "no reservation id"}, nil
		}
		if _, err := p.confirm(ctx, id, ev.Reference, SourceWebhook); err != nil {
			if KindOf(err) != 0 {
				log.WithError(err).WithField("reservation_id", id).Warn("payment: webhook not applied")
				return WebhookResult{Reason: err.Error()}, nil
			}
			if p.dedupe != nil && ev.ID != "" {
				p.dedupe.Release(ctx, ev.ID)
			}
			return WebhookResult{}, err
		}
		return WebhookResult{Processed: true}, nil
	case payment.EventPaymentFailed:
		log.WithField("reservation_id", ev.Metadata[payment.MetaReservationID]).Info("payment: provider reported a failed payment")
		return WebhookResult{Reason: "payment failed"}, nil
	}
	return WebhookResult{Reason: "ignored event type"}, nil
}

// settled reports whether a reservation in status st has been paid for and
// not cancelled.
func settled(st model.ReservationStatus) bool {
	return st == model.StatusConfirmed || st == model.StatusCheckedIn || st == model.StatusCheckedOut
}

// errOverbooked aborts the confirm transaction when the room filled up.
var errOverbooked = errors.New("overbooked")

// confirm applies a verified payment to a reservation.  Concurrent calls
// for the same reservation serialize on its row lock; the first one wins
// and the rest see a confirmed reservation with the same reference, or a
// simulated one, and return it unchanged.
func (p *Payments) confirm(ctx context.Context, id uint64, ref, source string) (*model.Reservation, error) {
	log := p.deps.Log.WithFields(logrus.Fields{"reservation_id": id, "payment_ref": ref, "source": source})

	snapshot, err := p.deps.Store.ReservationByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, "reservation %d not found", id)
	}
	if err != nil {
		return nil, err
	}

	var (
		out          *model.Reservation
		transitioned bool
	)
	err = p.deps.Store.WithTx(ctx, func(tx repository.Tx) error {
		// Room before reservation, the same order Create uses.
		room, err := tx.LockRoom(ctx, snapshot.RoomID)
		if err != nil {
			return fmt.Errorf("lock room %d: %w", snapshot.RoomID, err)
		}
		res, err := lockReservation(ctx, tx, id)
		if err != nil {
			return err
		}
		out = res
		switch {
		case settled(res.Status):
			// A simulated payment carries no money, so losing the race to
			// any other confirmation is not a second payment.
			if res.Payment.Reference == ref || source == SourceSimulate {
				return nil
			}
			log.WithFields(logrus.Fields{"recorded_ref": res.Payment.Reference, "anomaly": true}).
				Error("payment: second successful payment for a confirmed reservation")
			return newError(KindPaymentConflict, "reservation %d is already paid with another payment", id)
		case res.Status == model.StatusCancelled:
			return newError(KindInvalidTransition, "reservation %d is cancelled", id)
		}

		n, err := occupied(ctx, tx, room.ID, res.CheckIn, res.CheckOut, res.ID)
		if err != nil {
			return err
		}
		if n >= room.Quantity {
			return errOverbooked
		}

		now := p.deps.Now().UTC()
		if err := res.MoveTo(model.StatusConfirmed); err != nil {
			return illegal(err)
		}
		if err := res.Payment.MarkPaid(ref, now); err != nil {
			return illegal(err)
		}
		res.UpdatedAt = now
		if err := tx.UpdateReservation(ctx, res); err != nil {
			return err
		}
		transitioned = true
		return nil
	})
	switch {
	case errors.Is(err, errOverbooked):
		return nil, p.compensateOverbooked(ctx, out, ref, log)
	case errors.Is(err, ErrInvalidTransition) && out != nil && out.Status == model.StatusCancelled:
		p.refundOrphan(ctx, out, ref, log)
		return nil, err
	case err != nil:
		return nil, err
	}
	if transitioned {
		log.Info("payment: reservation confirmed")
		p.deps.Notifier.BookingConfirmed(ctx, out)
	}
	return out, nil
}

// compensateOverbooked refunds a payment that arrived after the room was
// filled by other confirmed stays, then cancels the reservation.
func (p *Payments) compensateOverbooked(ctx context.Context, res *model.Reservation, ref string, log logrus.FieldLogger) error {
	unavailable := newError(KindUnavailable, "room filled up before payment %s was confirmed; the payment is refunded", ref)
	var refundRef string
	if !strings.HasPrefix(ref, simulatedPrefix) {
		var err error
		refundRef, err = p.deps.Provider.Refund(ctx, ref, 0, "compensate-"+strconv.FormatUint(res.ID, 10)+"-"+ref)
		if err != nil {
			log.WithError(err).WithField("anomaly", true).Error("payment: overbooked and refund failed, operator action required")
			return unavailable
		}
	}
	var cancelled *model.Reservation
	err := p.deps.Store.WithTx(ctx, func(tx repository.Tx) error {
		cur, err := lockReservation(ctx, tx, res.ID)
		if err != nil {
			return err
		}
		if cur.Status != model.StatusPending {
			return nil
		}
		now := p.deps.Now().UTC()
		if err := cur.Payment.MarkPaid(ref, now); err != nil {
			return illegal(err)
		}
		if err := applyCancellation(cur, OverbookedReason, cur.Pricing.GrandTotalCents, refundRef, now); err != nil {
			return err
		}
		if err := tx.UpdateReservation(ctx, cur); err != nil {
			return err
		}
		cancelled = cur
		return nil
	})
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{"refund_ref": refundRef, "anomaly": true}).
			Error("payment: overbooking refund issued but cancellation not recorded")
		return unavailable
	}
	if cancelled != nil {
		log.WithField("refund_ref", refundRef).Warn("payment: overbooked at confirmation, refunded and cancelled")
		p.deps.Notifier.BookingCancelled(ctx, cancelled, cancelled.Cancellation.RefundCents)
	}
	return unavailable
}

// refundOrphan returns a payment that succeeded for a reservation that was
// already cancelled.
func (p *Payments) refundOrphan(ctx context.Context, res *model.Reservation, ref string, log logrus.FieldLogger) {
	if res.Payment.Reference == ref && res.Payment.Status != model.PaymentPending {
		return
	}
	log = log.WithField("anomaly", true)
	if strings.HasPrefix(ref, simulatedPrefix) {
		log.Error("payment: simulated payment for a cancelled reservation")
		return
	}
	refundRef, err := p.deps.Provider.Refund(ctx, ref, 0, "orphan-"+strconv.FormatUint(res.ID, 10)+"-"+ref)
	if err != nil {
		log.WithError(err).Error("payment: payment for a cancelled reservation could not be refunded")
		return
	}
	log.WithField("refund_ref", refundRef).Error("payment: payment for a cancelled reservation was refunded")
}
