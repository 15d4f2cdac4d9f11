package model

// Extra is an add-on a hotel sells alongside a room (breakfast, parking).
//
// Fields:
//
//	ID         – primary key identifier.
//	HotelID    – hotel offering the extra.
//	Name       – display name.
//	PriceCents – unit price in cents.
//	IsActive   – inactive extras cannot be selected.
type Extra struct {
	ID         uint64 // extras.id
	HotelID    uint64 // extras.hotel_id
	Name       string // extras.name
	PriceCents int64  // extras.price_cents
	IsActive   bool   // extras.is_active
}

// SelectedExtra is an extra frozen onto a reservation at booking time.
type SelectedExtra struct {
	ExtraID    uint64
	Name       string
	PriceCents int64
	Quantity   int
}
