package handler

import (
	"time"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/service"
)

// Money is always integer cents on the wire.

type extraView struct {
	ExtraID    uint64 `json:"extra_id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Quantity   int    `json:"quantity"`
}

type pricingView struct {
	Nights           int   `json:"nights"`
	RoomTotalCents   int64 `json:"room_total_cents"`
	ExtrasTotalCents int64 `json:"extras_total_cents"`
	SubtotalCents    int64 `json:"subtotal_cents"`
	TaxesCents       int64 `json:"taxes_cents"`
	GrandTotalCents  int64 `json:"grand_total_cents"`
}

type paymentView struct {
	Status    string     `json:"status"`
	Reference string     `json:"reference,omitempty"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

type cancellationView struct {
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason"`
	RefundCents int64     `json:"refund_cents"`
	RefundRef   string    `json:"refund_ref,omitempty"`
}

type reservationView struct {
	ID              uint64            `json:"id"`
	Code            string            `json:"code"`
	UserID          uint64            `json:"user_id"`
	HotelID         uint64            `json:"hotel_id"`
	RoomID          uint64            `json:"room_id"`
	CheckIn         time.Time         `json:"check_in"`
	CheckOut        time.Time         `json:"check_out"`
	Adults          int               `json:"adults"`
	Children        int               `json:"children"`
	Extras          []extraView       `json:"extras"`
	SpecialRequests string            `json:"special_requests,omitempty"`
	Pricing         pricingView       `json:"pricing"`
	Status          string            `json:"status"`
	Payment         paymentView       `json:"payment"`
	Cancellation    *cancellationView `json:"cancellation,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func newReservationView(r *model.Reservation) reservationView {
	v := reservationView{
		ID:              r.ID,
		Code:            r.Code,
		UserID:          r.UserID,
		HotelID:         r.HotelID,
		RoomID:          r.RoomID,
		CheckIn:         r.CheckIn,
		CheckOut:        r.CheckOut,
		Adults:          r.Adults,
		Children:        r.Children,
		Extras:          make([]extraView, 0, len(r.Extras)),
		SpecialRequests: r.SpecialRequests,
		Pricing: pricingView{
			Nights:           r.Pricing.Nights,
			RoomTotalCents:   r.Pricing.RoomTotalCents,
			ExtrasTotalCents: r.Pricing.ExtrasTotalCents,
			SubtotalCents:    r.Pricing.SubtotalCents(),
			TaxesCents:       r.Pricing.TaxesCents,
			GrandTotalCents:  r.Pricing.GrandTotalCents,
		},
		Status:    string(r.Status),
		Payment:   paymentView{Status: string(r.Payment.Status), Reference: r.Payment.Reference, PaidAt: r.Payment.PaidAt},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	for _, e := range r.Extras {
		v.Extras = append(v.Extras, extraView{ExtraID: e.ExtraID, Name: e.Name, PriceCents: e.PriceCents, Quantity: e.Quantity})
	}
	if c := r.Cancellation; c != nil {
		v.Cancellation = &cancellationView{CancelledAt: c.CancelledAt, Reason: c.Reason, RefundCents: c.RefundCents, RefundRef: c.RefundRef}
	}
	return v
}

type roomView struct {
	ID                 uint64 `json:"id"`
	HotelID            uint64 `json:"hotel_id"`
	Name               string `json:"name"`
	Type               string `json:"type"`
	Adults             int    `json:"capacity_adults"`
	Children           int    `json:"capacity_children"`
	PricePerNightCents int64  `json:"price_per_night_cents"`
}

type availabilityView struct {
	Room          roomView `json:"room"`
	Available     int      `json:"available"`
	TotalQuantity int      `json:"total_quantity"`
}

func newAvailabilityView(a service.RoomAvailability) availabilityView {
	r := a.Room
	return availabilityView{
		Room: roomView{
			ID: r.ID, HotelID: r.HotelID, Name: r.Name, Type: string(r.Type),
			Adults: r.Capacity.Adults, Children: r.Capacity.Children, PricePerNightCents: r.PricePerNightCents,
		},
		Available:     a.Available,
		TotalQuantity: a.TotalQuantity,
	}
}

type paginationView struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type listView struct {
	Items      []reservationView `json:"items"`
	Pagination paginationView    `json:"pagination"`
}

func newListView(res *service.ListResult) listView {
	items := make([]reservationView, 0, len(res.Items))
	for i := range res.Items {
		items = append(items, newReservationView(&res.Items[i]))
	}
	return listView{Items: items, Pagination: paginationView{Page: res.Page, Limit: res.Limit, Total: res.Total, Pages: res.Pages}}
}
