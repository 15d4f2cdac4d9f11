package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/pricing"
	"github.com/iliyamo/hotel-reservation/internal/repository"
)

// DefaultCancelReason is recorded when the caller gives none.
const DefaultCancelReason = "User requested cancellation"

// simulatedPrefix marks payment references created by the simulate path;
// no money moved, so nothing is refunded at the provider.
const simulatedPrefix = "simulated_"

// maxCancelAttempts bounds the check / refund / re-check loop in Cancel.
const maxCancelAttempts = 3

// cancellation is what cancelling a reservation right now would do.
type cancellation struct {
	refundCents int64
	// needsRefund is set when money must go back through the provider.
	needsRefund bool
}

// planCancellation applies the cutoff and the hotel's refund policy to
// res at instant now.  Only a paid reservation is refunded.
func planCancellation(res *model.Reservation, policy model.CancellationPolicy, cutoff time.Duration, now time.Time) (cancellation, error) {
	switch res.Status {
	case model.StatusCancelled:
		return cancellation{}, newError(KindInvalidTransition, "reservation is already cancelled")
	case model.StatusCheckedOut, model.StatusCheckedIn:
		return cancellation{}, newError(KindInvalidTransition, "a %s reservation cannot be cancelled", res.Status)
	}
	lead := res.CheckIn.Sub(now)
	if lead < cutoff {
		return cancellation{}, newError(KindPolicyViolation, "cancellations close %s before check-in", formatHours(cutoff))
	}
	var c cancellation
	if res.Payment.Status == model.PaymentPaid &&
		lead >= time.Duration(policy.FreeCancellationDays)*24*time.Hour {
		c.refundCents = pricing.Refund(res.Pricing.GrandTotalCents, policy.RefundPercentage)
	}
	c.needsRefund = c.refundCents > 0 && !strings.HasPrefix(res.Payment.Reference, simulatedPrefix)
	return c, nil
}

func formatHours(d time.Duration) string {
	return strconv.Itoa(int(d.Hours())) + "h"
}

// applyCancellation freezes the cancellation record onto res.
func applyCancellation(res *model.Reservation, reason string, refundCents int64, refundRef string, now time.Time) error {
	if err := res.MoveTo(model.StatusCancelled); err != nil {
		return illegal(err)
	}
	if refundCents > 0 {
		if err := res.Payment.MarkRefunded(refundCents, res.Pricing.GrandTotalCents); err != nil {
			return illegal(err)
		}
	}
	res.Cancellation = &model.Cancellation{
		CancelledAt: now,
		Reason:      reason,
		RefundCents: refundCents,
		RefundRef:   refundRef,
	}
	res.UpdatedAt = now
	return nil
}

func refundKey(kind string, id uint64, amount int64) string {
	return fmt.Sprintf("%s-%d-%d", kind, id, amount)
}

// Cancel cancels a reservation and refunds what the hotel policy allows.
//
// The refund is issued with no lock held; the reservation is then locked,
// the decision re-checked and the cancellation committed.  If the state
// moved in between so that a different refund is owed, the cycle repeats.
// Refunds carry an idempotency key, so repeating never pays twice.  When
// the refund fails nothing is changed and KindRefundFailed is returned.
func (b *Bookings) Cancel(ctx context.Context, actor Actor, id uint64, reason string) (_ *model.Reservation, err error) {
	ctx, span := startSpan(ctx, "Bookings.Cancel")
	defer func() { endSpan(span, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultCancelReason
	}
	now := b.deps.Now().UTC()

	// issued remembers a refund already sent to the provider, so a later
	// failure can be reported to an operator.
	var issued string
	fail := func(err error) (*model.Reservation, error) {
		if issued != "" {
			b.deps.Log.WithError(err).WithFields(logrus.Fields{
				"reservation_id": id,
				"refund_ref":     issued,
				"anomaly":        true,
			}).Error("booking: refund issued but cancellation not recorded")
		}
		return nil, err
	}

	for attempt := 0; attempt < maxCancelAttempts; attempt++ {
		res, err := b.deps.Store.ReservationByID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return fail(newError(KindNotFound, "reservation %d not found", id))
		}
		if err != nil {
			return fail(err)
		}
		if !actor.owns(res) {
			return nil, newError(KindForbidden, "reservation %d belongs to another guest", id)
		}
		hotel, err := b.deps.Store.HotelByID(ctx, res.HotelID)
		if err != nil {
			return fail(fmt.Errorf("load hotel %d: %w", res.HotelID, err))
		}
		plan, err := planCancellation(res, hotel.Policy, b.cfg.CancelCutoff, now)
		if err != nil {
			return fail(err)
		}

		var refundRef string
		if plan.needsRefund {
			refundRef, err = b.deps.Provider.Refund(ctx, res.Payment.Reference, plan.refundCents, refundKey("refund", res.ID, plan.refundCents))
			if err != nil {
				b.deps.Log.WithError(err).WithFields(logrus.Fields{
					"reservation_id": id,
					"payment_ref":    res.Payment.Reference,
					"refund_cents":   plan.refundCents,
				}).Error("booking: refund failed, reservation left unchanged")
				return fail(&Error{Kind: KindRefundFailed, Msg: "refund could not be issued, reservation not cancelled", Err: err})
			}
			issued = refundRef
		}

		var out *model.Reservation
		retry := false
		err = b.deps.Store.WithTx(ctx, func(tx repository.Tx) error {
			cur, err := lockReservation(ctx, tx, id)
			if err != nil {
				return err
			}
			again, err := planCancellation(cur, hotel.Policy, b.cfg.CancelCutoff, now)
			if err != nil {
				return err
			}
			if again != plan {
				retry = true
				return nil
			}
			if err := applyCancellation(cur, reason, plan.refundCents, refundRef, now); err != nil {
				return err
			}
			if err := tx.UpdateReservation(ctx, cur); err != nil {
				return err
			}
			out = cur
			return nil
		})
		if err != nil {
			return fail(err)
		}
		if retry {
			continue
		}
		b.deps.Log.WithFields(logrus.Fields{
			"reservation_id": id,
			"refund_cents":   plan.refundCents,
			"payment_status": out.Payment.Status,
		}).Info("booking: reservation cancelled")
		b.deps.Notifier.BookingCancelled(ctx, out, plan.refundCents)
		return out, nil
	}
	return fail(fmt.Errorf("cancel reservation %d: state kept changing, giving up", id))
}
