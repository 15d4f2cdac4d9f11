package model

import (
	"errors"
	"fmt"
)

// ReservationStatus is the lifecycle state of a reservation.  Only the
// constants below are valid; use ParseReservationStatus for input from
// the outside world.
type ReservationStatus string

const (
	StatusPending    ReservationStatus = "pending"
	StatusConfirmed  ReservationStatus = "confirmed"
	StatusCheckedIn  ReservationStatus = "checked-in"
	StatusCheckedOut ReservationStatus = "checked-out"
	StatusCancelled  ReservationStatus = "cancelled"
)

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusCheckedIn, StatusCancelled},
	StatusCheckedIn:  {StatusCheckedOut},
	StatusCheckedOut: nil,
	StatusCancelled:  nil,
}

// ErrIllegalTransition is returned when a status change is not in the
// transition table.
var ErrIllegalTransition = errors.New("illegal status transition")

// ParseReservationStatus converts s into a ReservationStatus.
func ParseReservationStatus(s string) (ReservationStatus, error) {
	st := ReservationStatus(s)
	if _, ok := reservationTransitions[st]; !ok {
		return "", fmt.Errorf("unknown reservation status %q", s)
	}
	return st, nil
}

// CanTransitionTo reports whether moving from s to next is a legal step.
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	for _, n := range reservationTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// OccupiesInventory reports whether a reservation in this state counts
// against room quantity.  Pending reservations do not.
func (s ReservationStatus) OccupiesInventory() bool {
	return s == StatusConfirmed || s == StatusCheckedIn
}

// OccupyingStatuses lists the statuses that count against room quantity.
func OccupyingStatuses() []ReservationStatus {
	return []ReservationStatus{StatusConfirmed, StatusCheckedIn}
}

// PaymentStatus is the state of the payment attached to a reservation.
type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "pending"
	PaymentPaid          PaymentStatus = "paid"
	PaymentRefunded      PaymentStatus = "refunded"
	PaymentPartialRefund PaymentStatus = "partial-refund"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:       {PaymentPaid},
	PaymentPaid:          {PaymentRefunded, PaymentPartialRefund},
	PaymentRefunded:      nil,
	PaymentPartialRefund: nil,
}

// ParsePaymentStatus converts s into a PaymentStatus.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	st := PaymentStatus(s)
	if _, ok := paymentTransitions[st]; !ok {
		return "", fmt.Errorf("unknown payment status %q", s)
	}
	return st, nil
}

// CanTransitionTo reports whether moving from s to next is a legal step.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, n := range paymentTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}
