package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/payment"
)

func TestVerifyConfirms(t *testing.T) {
	e := newEnv(t)
	res := e.paid(t, e.stay(5, 2))
	if res.Status != model.StatusConfirmed || res.Payment.Status != model.PaymentPaid || res.Payment.PaidAt == nil {
		t.Fatalf("after verify = %s/%s paidAt=%v", res.Status, res.Payment.Status, res.Payment.PaidAt)
	}
	if e.notes.confirmedCount() != 1 {
		t.Fatalf("confirmations = %d, want 1", e.notes.confirmedCount())
	}
	// Verifying again with the same reference is a no-op.
	again, err := e.payments.Verify(context.Background(), guest, res.ID, res.Payment.Reference)
	if err != nil || !again.Payment.PaidAt.Equal(*res.Payment.PaidAt) {
		t.Fatalf("repeat verify = %v, %v", again, err)
	}
	if e.notes.confirmedCount() != 1 {
		t.Fatalf("repeat verify notified again")
	}
}

func TestConcurrentVerifyConfirmsOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t, e.stay(5, 2))
	in, err := e.payments.CreateIntent(ctx, guest, res.ID)
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.payments.Verify(ctx, guest, res.ID, in.Reference); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent verify: %v", err)
	}
	if e.notes.confirmedCount() != 1 {
		t.Fatalf("confirmations = %d, want 1", e.notes.confirmedCount())
	}
}

func TestWebhookDeliveredTwice(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t, e.stay(5, 2))
	in, err := e.payments.CreateIntent(ctx, guest, res.ID)
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	payload, sig, err := e.sandbox.SignedEvent(payment.EventPaymentSucceeded, in.Reference)
	if err != nil {
		t.Fatalf("SignedEvent: %v", err)
	}

	first, err := e.payments.HandleWebhook(ctx, payload, sig)
	if err != nil || !first.Processed {
		t.Fatalf("first delivery = %+v, %v", first, err)
	}
	paidAt := *e.reload(t, res.ID).Payment.PaidAt
	e.clock.Advance(10)

	second, err := e.payments.HandleWebhook(ctx, payload, sig)
	if err != nil || second.Processed || second.Reason != "duplicate" {
		t.Fatalf("second delivery = %+v, %v", second, err)
	}
	got := e.reload(t, res.ID)
	if !got.Payment.PaidAt.Equal(paidAt) || e.notes.confirmedCount() != 1 {
		t.Fatalf("duplicate delivery changed state: paidAt %v -> %v, notes %d", paidAt, got.Payment.PaidAt, e.notes.confirmedCount())
	}
}

func TestWebhookWithoutDeduperIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cfg := DefaultConfig()
	gw := NewPayments(e.deps, cfg, nil)
	res := e.create(t, e.stay(5, 2))
	in, err := gw.CreateIntent(ctx, guest, res.ID)
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	for i := 0; i < 3; i++ {
		payload, sig, err := e.sandbox.SignedEvent(payment.EventPaymentSucceeded, in.Reference)
		if err != nil {
			t.Fatalf("SignedEvent: %v", err)
		}
		if _, err := gw.HandleWebhook(ctx, payload, sig); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if e.notes.confirmedCount() != 1 {
		t.Fatalf("confirmations = %d, want 1", e.notes.confirmedCount())
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t, e.stay(5, 2))
	in, err := e.payments.CreateIntent(ctx, guest, res.ID)
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	payload, _, err := e.sandbox.SignedEvent(payment.EventPaymentSucceeded, in.Reference)
	if err != nil {
		t.Fatalf("SignedEvent: %v", err)
	}
	out, err := e.payments.HandleWebhook(ctx, payload, "t=1,v1=deadbeef")
	if err != nil {
		t.Fatalf("bad signature should be acknowledged, got %v", err)
	}
	if out.Processed {
		t.Fatalf("bad signature processed")
	}
	if got := e.reload(t, res.ID); got.Status != model.StatusPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}
}

func TestWebhookFailedPaymentLeavesPending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t, e.stay(5, 2))
	in, err := e.payments.CreateIntent(ctx, guest, res.ID)
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	payload, sig, err := e.sandbox.SignedEvent(payment.EventPaymentFailed, in.Reference)
	if err != nil {
		t.Fatalf("SignedEvent: %v", err)
	}
	out, err := e.payments.HandleWebhook(ctx, payload, sig)
	if err != nil || out.Processed {
		t.Fatalf("failed event = %+v, %v", out, err)
	}
	if got := e.reload(t, res.ID); got.Status != model.StatusPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}
}

func TestVerifyRejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.create(t, e.stay(5, 2))
	b := e.create(t, e.stay(5, 2))
	inB, err := e.payments.CreateIntent(ctx, guest, b.ID)
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}

	if _, err := e.payments.Verify(ctx, guest, a.ID, inB.Reference); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("foreign reference = %v, want ErrVerificationFailed", err)
	}
	if _, err := e.payments.Verify(ctx, guest, a.ID, "pi_missing"); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("unknown reference = %v, want ErrVerificationFailed", err)
	}
	if _, err := e.payments.Verify(ctx, guest, a.ID, " "); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty reference = %v, want ErrValidation", err)
	}
	if _, err := e.payments.Verify(ctx, other, b.ID, inB.Reference); !errors.Is(err, ErrForbidden) {
		t.Fatalf("other user verify = %v, want ErrForbidden", err)
	}

	e.sandbox.SetState(inB.Reference, "requires_payment_method")
	if _, err := e.payments.Verify(ctx, guest, b.ID, inB.Reference); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("unpaid intent = %v, want ErrVerificationFailed", err)
	}
	for _, id := range []uint64{a.ID, b.ID} {
		if got := e.reload(t, id); got.Status != model.StatusPending {
			t.Fatalf("reservation %d status = %s, want pending", id, got.Status)
		}
	}
}

func TestSimulateDisabled(t *testing.T) {
	e := newEnv(t)
	gw := NewPayments(e.deps, DefaultConfig(), nil)
	res := e.create(t, e.stay(5, 2))
	if _, err := gw.Simulate(context.Background(), guest, res.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("Simulate = %v, want ErrForbidden", err)
	}
}

func TestSecondPaymentIsConflict(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.paid(t, e.stay(5, 2))
	dup, err := e.sandbox.CreateIntent(ctx, res.Pricing.GrandTotalCents, "usd", map[string]string{
		payment.MetaReservationID: strconv.FormatUint(res.ID, 10),
	})
	if err != nil {
		t.Fatalf("sandbox CreateIntent: %v", err)
	}
	if _, err := e.payments.Verify(ctx, guest, res.ID, dup.Reference); !errors.Is(err, ErrPaymentConflict) {
		t.Fatalf("second payment = %v, want ErrPaymentConflict", err)
	}
	if got := e.reload(t, res.ID); got.Payment.Reference != res.Payment.Reference {
		t.Fatalf("reference overwritten: %s", got.Payment.Reference)
	}
	if _, err := e.payments.CreateIntent(ctx, guest, res.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("intent for confirmed = %v, want ErrInvalidTransition", err)
	}
}

func TestLatePaymentIsCompensated(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	first := e.create(t, e.stay(5, 3))
	second, err := e.bookings.Create(ctx, other, e.stay(6, 2))
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	inFirst, err := e.payments.CreateIntent(ctx, guest, first.ID)
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	inSecond, err := e.payments.CreateIntent(ctx, other, second.ID)
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}

	if _, err := e.payments.Verify(ctx, guest, first.ID, inFirst.Reference); err != nil {
		t.Fatalf("first Verify: %v", err)
	}
	if _, err := e.payments.Verify(ctx, other, second.ID, inSecond.Reference); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("late Verify = %v, want ErrUnavailable", err)
	}

	got := e.reload(t, second.ID)
	if got.Status != model.StatusCancelled || got.Cancellation.Reason != OverbookedReason {
		t.Fatalf("late reservation = %s %+v", got.Status, got.Cancellation)
	}
	if got.Payment.Status != model.PaymentRefunded || got.Cancellation.RefundCents != got.Pricing.GrandTotalCents {
		t.Fatalf("late payment = %s refund %d", got.Payment.Status, got.Cancellation.RefundCents)
	}
	if e.sandbox.RefundCount() != 1 {
		t.Fatalf("refunds = %d, want 1", e.sandbox.RefundCount())
	}
	if e.reload(t, first.ID).Status != model.StatusConfirmed {
		t.Fatalf("first reservation lost its confirmation")
	}
}

func TestConcurrentPaymentsNeverOverbook(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	const n = 10
	ids := make([]uint64, n)
	for i := range ids {
		ids[i] = e.create(t, e.stay(5, 2)).ID
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	unavailable := 0
	for _, id := range ids {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			_, err := e.payments.Simulate(ctx, guest, id)
			switch {
			case errors.Is(err, ErrUnavailable):
				mu.Lock()
				unavailable++
				mu.Unlock()
			case err != nil:
				t.Errorf("Simulate(%d): %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	confirmed := 0
	for _, id := range ids {
		switch got := e.reload(t, id); got.Status {
		case model.StatusConfirmed:
			confirmed++
		case model.StatusCancelled:
			if got.Cancellation.Reason != OverbookedReason {
				t.Fatalf("reservation %d cancelled with %q", id, got.Cancellation.Reason)
			}
		default:
			t.Fatalf("reservation %d left %s", id, got.Status)
		}
	}
	if confirmed != 1 || unavailable != n-1 {
		t.Fatalf("confirmed = %d unavailable = %d, want 1 and %d", confirmed, unavailable, n-1)
	}
}

func TestPaymentForCancelledReservationIsRefunded(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t, e.stay(10, 2))
	in, err := e.payments.CreateIntent(ctx, guest, res.ID)
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	if _, err := e.bookings.Cancel(ctx, guest, res.ID, ""); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	payload, sig, err := e.sandbox.SignedEvent(payment.EventPaymentSucceeded, in.Reference)
	if err != nil {
		t.Fatalf("SignedEvent: %v", err)
	}
	out, err := e.payments.HandleWebhook(ctx, payload, sig)
	if err != nil || out.Processed {
		t.Fatalf("webhook for cancelled = %+v, %v", out, err)
	}
	if e.sandbox.RefundCount() != 1 {
		t.Fatalf("orphan payment refunds = %d, want 1", e.sandbox.RefundCount())
	}
	if got := e.reload(t, res.ID); got.Status != model.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
}
