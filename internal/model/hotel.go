package model

import "time"

// CancellationPolicy governs the refund owed when a guest cancels.  It
// does not decide whether a cancellation is allowed at all; that cutoff
// is enforced by the booking service.
//
// Fields:
//
//	FreeCancellationDays – minimum whole days before check-in for a refund.
//	RefundPercentage     – share of the grand total refunded, 0..100.
type CancellationPolicy struct {
	FreeCancellationDays int // hotels.free_cancellation_days
	RefundPercentage     int // hotels.refund_percentage
}

// DefaultCancellationPolicy is applied to hotels created without an
// explicit policy.
var DefaultCancellationPolicy = CancellationPolicy{FreeCancellationDays: 3, RefundPercentage: 100}

// Hotel is a property that owns rooms and extras.
//
// Fields:
//
//	ID           – primary key identifier.
//	Name         – display name.
//	City         – city used for search and e-mails.
//	CheckInTime  – local check-in time, "15:00" by default.
//	CheckOutTime – local check-out time, "11:00" by default.
//	Policy       – cancellation/refund policy.
//	IsActive     – inactive hotels cannot be booked.
//	CreatedAt    – creation timestamp.
//	UpdatedAt    – last update timestamp.
type Hotel struct {
	ID           uint64             // hotels.id
	Name         string             // hotels.name
	City         string             // hotels.city
	CheckInTime  string             // hotels.check_in_time
	CheckOutTime string             // hotels.check_out_time
	Policy       CancellationPolicy // hotels.free_cancellation_days, hotels.refund_percentage
	IsActive     bool               // hotels.is_active
	CreatedAt    time.Time          // hotels.created_at
	UpdatedAt    time.Time          // hotels.updated_at
}
