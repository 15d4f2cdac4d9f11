package model

import (
	"fmt"
	"time"
)

// PriceBreakdown is the itemised price computed once at booking time and
// frozen on the reservation.  All amounts are in cents.
type PriceBreakdown struct {
	Nights           int   // reservations.nights
	RoomTotalCents   int64 // reservations.room_total_cents
	ExtrasTotalCents int64 // reservations.extras_total_cents
	TaxesCents       int64 // reservations.taxes_cents
	GrandTotalCents  int64 // reservations.grand_total_cents
}

// SubtotalCents is room plus extras, before tax.
func (p PriceBreakdown) SubtotalCents() int64 { return p.RoomTotalCents + p.ExtrasTotalCents }

// Payment is the payment sub-record of a reservation.
//
// Fields:
//
//	Reference – provider reference (payment intent id); empty until an
//	            intent is created or a payment is confirmed.
//	Status    – payment state.
//	PaidAt    – when the payment was confirmed.
type Payment struct {
	Reference string        // reservations.payment_ref
	Status    PaymentStatus // reservations.payment_status
	PaidAt    *time.Time    // reservations.paid_at (nullable)
}

// Cancellation is written once when a reservation is cancelled and never
// changed afterwards.
type Cancellation struct {
	CancelledAt time.Time // reservations.cancelled_at
	Reason      string    // reservations.cancel_reason
	RefundCents int64     // reservations.refund_cents
	RefundRef   string    // reservations.refund_ref
}

// Reservation is a guest's claim on one instance of a room for the
// half-open date range [CheckIn, CheckOut).
//
// Fields:
//
//	ID              – primary key identifier.
//	Code            – human readable booking code (BK-XXXXXXXX).
//	UserID          – guest who owns the reservation.
//	GuestEmail      – address used for notifications, may be empty.
//	HotelID, RoomID – booked hotel and room type.
//	CheckIn         – first night.
//	CheckOut        – departure day, exclusive.
//	Adults          – at least one.
//	Children        – zero or more.
//	Extras          – extras frozen at booking time.
//	SpecialRequests – free text from the guest.
//	Pricing         – frozen price breakdown.
//	Status          – lifecycle state.
//	Payment         – payment sub-record.
//	Cancellation    – set once when cancelled.
//	CreatedAt       – creation timestamp.
//	UpdatedAt       – last update timestamp.
type Reservation struct {
	ID              uint64            // reservations.id
	Code            string            // reservations.code
	UserID          uint64            // reservations.user_id
	GuestEmail      string            // reservations.guest_email
	HotelID         uint64            // reservations.hotel_id
	RoomID          uint64            // reservations.room_id
	CheckIn         time.Time         // reservations.check_in
	CheckOut        time.Time         // reservations.check_out
	Adults          int               // reservations.adults
	Children        int               // reservations.children
	Extras          []SelectedExtra   // reservations.extras (JSON)
	SpecialRequests string            // reservations.special_requests
	Pricing         PriceBreakdown    // reservations.*_cents, reservations.nights
	Status          ReservationStatus // reservations.status
	Payment         Payment           // reservations.payment_*
	Cancellation    *Cancellation     // reservations.cancelled_at etc. (nullable)
	CreatedAt       time.Time         // reservations.created_at
	UpdatedAt       time.Time         // reservations.updated_at
}

// Guests returns adults plus children.
func (r *Reservation) Guests() int { return r.Adults + r.Children }

// Overlaps reports whether the reservation's stay shares at least one
// night with [checkIn, checkOut).
func (r *Reservation) Overlaps(checkIn, checkOut time.Time) bool {
	return RangesOverlap(r.CheckIn, r.CheckOut, checkIn, checkOut)
}

// RangesOverlap reports whether [a, b) and [c, d) intersect.  Ranges that
// only touch (b == c) do not overlap, so a same-day turnover is allowed.
func RangesOverlap(a, b, c, d time.Time) bool {
	return a.Before(d) && c.Before(b)
}

// MoveTo changes the reservation status along the transition table.
func (r *Reservation) MoveTo(next ReservationStatus) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: reservation %s -> %s", ErrIllegalTransition, r.Status, next)
	}
	r.Status = next
	return nil
}

// MarkPaid records a successful payment with reference ref.
func (p *Payment) MarkPaid(ref string, at time.Time) error {
	if !p.Status.CanTransitionTo(PaymentPaid) {
		return fmt.Errorf("%w: payment %s -> %s", ErrIllegalTransition, p.Status, PaymentPaid)
	}
	p.Reference = ref
	p.Status = PaymentPaid
	p.PaidAt = &at
	return nil
}

// MarkRefunded records a refund of refundCents out of totalCents.
func (p *Payment) MarkRefunded(refundCents, totalCents int64) error {
	next := PaymentPartialRefund
	if refundCents >= totalCents {
		next = PaymentRefunded
	}
	if !p.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: payment %s -> %s", ErrIllegalTransition, p.Status, next)
	}
	p.Status = next
	return nil
}

// Clone returns a deep copy so callers can mutate it without affecting
// shared state.
func (r *Reservation) Clone() *Reservation {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Extras != nil {
		cp.Extras = append([]SelectedExtra(nil), r.Extras...)
	}
	if r.Payment.PaidAt != nil {
		t := *r.Payment.PaidAt
		cp.Payment.PaidAt = &t
	}
	if r.Cancellation != nil {
		c := *r.Cancellation
		cp.Cancellation = &c
	}
	return &cp
}
