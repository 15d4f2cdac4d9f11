// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"time"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

// Queue names.  Both queues are durable and use the default exchange.
const (
	ConfirmedQueue = "booking.confirmed"
	CancelledQueue = "booking.cancelled"
)

// BookingConfirmedEvent is published when a reservation's payment is
// confirmed.  It carries enough for downstream consumers to log or email
// the guest without querying the primary database.
type BookingConfirmedEvent struct {
	ReservationID    uint64 `json:"reservation_id"`
	Code             string `json:"code"`
	UserID           uint64 `json:"user_id"`
	GuestEmail       string `json:"guest_email,omitempty"`
	HotelID          uint64 `json:"hotel_id"`
	RoomID           uint64 `json:"room_id"`
	CheckIn          string `json:"check_in"`
	CheckOut         string `json:"check_out"`
	Nights           int    `json:"nights"`
	TotalAmountCents int64  `json:"total_amount_cents"`
	PaymentRef       string `json:"payment_ref"`
	ConfirmedAt      string `json:"confirmed_at"`
}

// BookingCancelledEvent is published when a reservation is cancelled, by
// the guest, by staff, by the pending sweeper or by overbooking
// compensation.
type BookingCancelledEvent struct {
	ReservationID uint64 `json:"reservation_id"`
	Code          string `json:"code"`
	UserID        uint64 `json:"user_id"`
	GuestEmail    string `json:"guest_email,omitempty"`
	HotelID       uint64 `json:"hotel_id"`
	CheckIn       string `json:"check_in"`
	CheckOut      string `json:"check_out"`
	Reason        string `json:"reason"`
	RefundCents   int64  `json:"refund_cents"`
	CancelledAt   string `json:"cancelled_at"`
}

// NewConfirmedEvent builds the event for a confirmed reservation.
func NewConfirmedEvent(r *model.Reservation) BookingConfirmedEvent {
	confirmed := r.UpdatedAt
	if r.Payment.PaidAt != nil {
		confirmed = *r.Payment.PaidAt
	}
	return BookingConfirmedEvent{
		ReservationID:    r.ID,
		Code:             r.Code,
		UserID:           r.UserID,
		GuestEmail:       r.GuestEmail,
		HotelID:          r.HotelID,
		RoomID:           r.RoomID,
		CheckIn:          r.CheckIn.UTC().Format(time.RFC3339),
		CheckOut:         r.CheckOut.UTC().Format(time.RFC3339),
		Nights:           r.Pricing.Nights,
		TotalAmountCents: r.Pricing.GrandTotalCents,
		PaymentRef:       r.Payment.Reference,
		ConfirmedAt:      confirmed.UTC().Format(time.RFC3339),
	}
}

// NewCancelledEvent builds the event for a cancelled reservation.
func NewCancelledEvent(r *model.Reservation, refundCents int64) BookingCancelledEvent {
	ev := BookingCancelledEvent{
		ReservationID: r.ID,
		Code:          r.Code,
		UserID:        r.UserID,
		GuestEmail:    r.GuestEmail,
		HotelID:       r.HotelID,
		CheckIn:       r.CheckIn.UTC().Format(time.RFC3339),
		CheckOut:      r.CheckOut.UTC().Format(time.RFC3339),
		RefundCents:   refundCents,
		CancelledAt:   r.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if r.Cancellation != nil {
		ev.Reason = r.Cancellation.Reason
		ev.CancelledAt = r.Cancellation.CancelledAt.UTC().Format(time.RFC3339)
	}
	return ev
}
