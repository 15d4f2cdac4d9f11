package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/pricing"
	"github.com/iliyamo/hotel-reservation/internal/repository"
)

// Bookings creates reservations and drives them through their lifecycle.
type Bookings struct {
	deps Deps
	cfg  Config
}

// NewBookings returns a Bookings service.
func NewBookings(deps Deps, cfg Config) *Bookings {
	return &Bookings{deps: deps.withDefaults(), cfg: cfg}
}

// ExtraSelection picks Quantity units of a hotel extra.
type ExtraSelection struct {
	ExtraID  uint64
	Quantity int
}

// CreateRequest describes a new booking.
type CreateRequest struct {
	HotelID         uint64
	RoomID          uint64
	CheckIn         time.Time
	CheckOut        time.Time
	Adults          int
	Children        int
	Extras          []ExtraSelection
	SpecialRequests string
}

func (r CreateRequest) validate() error {
	if err := validateRange(r.CheckIn, r.CheckOut); err != nil {
		return err
	}
	if r.Adults < 1 {
		return newError(KindValidation, "at least one adult is required")
	}
	if r.Children < 0 {
		return newError(KindValidation, "children cannot be negative")
	}
	for _, e := range r.Extras {
		if e.ExtraID == 0 || e.Quantity < 1 {
			return newError(KindValidation, "extras need an id and a positive quantity")
		}
	}
	return nil
}

// mergeExtras folds repeated selections of the same extra together while
// keeping first-seen order.
func mergeExtras(in []ExtraSelection) ([]ExtraSelection, []uint64) {
	idx := make(map[uint64]int, len(in))
	var out []ExtraSelection
	var ids []uint64
	for _, e := range in {
		if i, ok := idx[e.ExtraID]; ok {
			out[i].Quantity += e.Quantity
			continue
		}
		idx[e.ExtraID] = len(out)
		out = append(out, e)
		ids = append(ids, e.ExtraID)
	}
	return out, ids
}

// Create books a room.  The room row is locked while the occupancy is
// re-counted and the reservation inserted, so the count cannot go stale
// between check and insert.  The new reservation is pending and does not
// hold inventory until its payment is confirmed.
func (b *Bookings) Create(ctx context.Context, actor Actor, req CreateRequest) (_ *model.Reservation, err error) {
	ctx, span := startSpan(ctx, "Bookings.Create")
	defer func() { endSpan(span, err) }()

	if err := req.validate(); err != nil {
		return nil, err
	}
	selections, extraIDs := mergeExtras(req.Extras)
	now := b.deps.Now().UTC()

	var created *model.Reservation
	err = b.deps.Store.WithTx(ctx, func(tx repository.Tx) error {
		hotel, err := tx.HotelByID(ctx, req.HotelID)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && !hotel.IsActive) {
			return newError(KindNotFound, "hotel %d not found", req.HotelID)
		}
		if err != nil {
			return err
		}
		room, err := tx.LockRoom(ctx, req.RoomID)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && (!room.IsActive || room.HotelID != hotel.ID)) {
			return newError(KindNotFound, "room %d not found", req.RoomID)
		}
		if err != nil {
			return err
		}
		if !room.Fits(req.Adults + req.Children) {
			return newError(KindValidation, "room sleeps at most %d guests", room.Capacity.Total())
		}

		frozen, priced, err := b.resolveExtras(ctx, tx, hotel.ID, selections, extraIDs)
		if err != nil {
			return err
		}

		n, err := occupied(ctx, tx, room.ID, req.CheckIn, req.CheckOut, 0)
		if err != nil {
			return err
		}
		if n >= room.Quantity {
			return newError(KindUnavailable, "room %d is fully booked for the selected dates", room.ID)
		}

		nights := pricing.Nights(req.CheckIn, req.CheckOut)
		res := &model.Reservation{
			Code:            newBookingCode(),
			UserID:          actor.UserID,
			GuestEmail:      actor.Email,
			HotelID:         hotel.ID,
			RoomID:          room.ID,
			CheckIn:         req.CheckIn.UTC(),
			CheckOut:        req.CheckOut.UTC(),
			Adults:          req.Adults,
			Children:        req.Children,
			Extras:          frozen,
			SpecialRequests: strings.TrimSpace(req.SpecialRequests),
			Pricing:         pricing.Compute(room.PricePerNightCents, nights, priced, b.cfg.TaxRate),
			Status:          model.StatusPending,
			Payment:         model.Payment{Status: model.PaymentPending},
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.InsertReservation(ctx, res); err != nil {
			return err
		}
		created = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.deps.Log.WithFields(logrus.Fields{
		"reservation_id": created.ID,
		"code":           created.Code,
		"room_id":        created.RoomID,
		"grand_total":    created.Pricing.GrandTotalCents,
	}).Info("booking: reservation created")
	return created, nil
}

func (b *Bookings) resolveExtras(ctx context.Context, tx repository.Reader, hotelID uint64, sel []ExtraSelection, ids []uint64) ([]model.SelectedExtra, []pricing.Extra, error) {
	if len(sel) == 0 {
		return nil, nil, nil
	}
	found, err := tx.ExtrasByIDs(ctx, hotelID, ids)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[uint64]model.Extra, len(found))
	for _, e := range found {
		byID[e.ID] = e
	}
	frozen := make([]model.SelectedExtra, 0, len(sel))
	priced := make([]pricing.Extra, 0, len(sel))
	for _, s := range sel {
		e, ok := byID[s.ExtraID]
		if !ok || !e.IsActive {
			return nil, nil, newError(KindValidation, "extra %d is not offered by this hotel", s.ExtraID)
		}
		frozen = append(frozen, model.SelectedExtra{ExtraID: e.ID, Name: e.Name, PriceCents: e.PriceCents, Quantity: s.Quantity})
		priced = append(priced, pricing.Extra{PriceCents: e.PriceCents, Quantity: s.Quantity})
	}
	return frozen, priced, nil
}

// Get returns a reservation the actor may see.
func (b *Bookings) Get(ctx context.Context, actor Actor, id uint64) (*model.Reservation, error) {
	res, err := b.deps.Store.ReservationByID(ctx, id)
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

// ListQuery filters List.  Guests only ever see their own reservations.
type ListQuery struct {
	Status  string
	HotelID uint64
	Page    int
	Limit   int
}

// ListResult is one page of reservations.
type ListResult struct {
	Items []model.Reservation
	Page  int
	Limit int
	Total int
	Pages int
}

// List returns reservations newest first.
func (b *Bookings) List(ctx context.Context, actor Actor, q ListQuery) (*ListResult, error) {
	f := repository.ReservationFilter{HotelID: q.HotelID}
	if q.Status != "" {
		st, err := model.ParseReservationStatus(q.Status)
		if err != nil {
			return nil, &Error{Kind: KindValidation, Msg: "invalid status filter", Err: err}
		}
		f.Status = st
	}
	if !actor.Admin {
		f.UserID = actor.UserID
	}
	page := max(q.Page, 1)
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	limit = min(limit, 100)
	f.Offset = (page - 1) * limit
	f.Limit = limit

	items, total, err := b.deps.Store.ListReservations(ctx, f)
	if err != nil {
		return nil, err
	}
	return &ListResult{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: (total + limit - 1) / limit,
	}, nil
}

// UpdateRequest carries the guest-editable fields.  Nil means unchanged.
type UpdateRequest struct {
	SpecialRequests *string
	Adults          *int
	Children        *int
}

// Update edits special requests or the guest split of a pending or
// confirmed reservation.  The frozen price is not recomputed.
func (b *Bookings) Update(ctx context.Context, actor Actor, id uint64, req UpdateRequest) (_ *model.Reservation, err error) {
	ctx, span := startSpan(ctx, "Bookings.Update")
	defer func() { endSpan(span, err) }()

	var out *model.Reservation
	err = b.deps.Store.WithTx(ctx, func(tx repository.Tx) error {
		res, err := lockReservation(ctx, tx, id)
		if err != nil {
			return err
		}
		if !actor.owns(res) {
			return newError(KindForbidden, "reservation %d belongs to another guest", id)
		}
		if res.Status != model.StatusPending && res.Status != model.StatusConfirmed {
			return newError(KindInvalidTransition, "a %s reservation cannot be modified", res.Status)
		}
		if req.SpecialRequests != nil {
			res.SpecialRequests = strings.TrimSpace(*req.SpecialRequests)
		}
		if req.Adults != nil || req.Children != nil {
			adults, children := res.Adults, res.Children
			if req.Adults != nil {
				adults = *req.Adults
			}
			if req.Children != nil {
				children = *req.Children
			}
			if adults < 1 || children < 0 {
				return newError(KindValidation, "at least one adult is required")
			}
			room, err := tx.RoomByID(ctx, res.RoomID)
			if err != nil {
				return err
			}
			if !room.Fits(adults + children) {
				return newError(KindValidation, "room sleeps at most %d guests", room.Capacity.Total())
			}
			res.Adults, res.Children = adults, children
		}
		res.UpdatedAt = b.deps.Now().UTC()
		if err := tx.UpdateReservation(ctx, res); err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CheckIn moves a confirmed reservation to checked-in.
func (b *Bookings) CheckIn(ctx context.Context, actor Actor, id uint64) (*model.Reservation, error) {
	return b.advance(ctx, actor, id, model.StatusCheckedIn, "Bookings.CheckIn")
}

// CheckOut moves a checked-in reservation to checked-out.
func (b *Bookings) CheckOut(ctx context.Context, actor Actor, id uint64) (*model.Reservation, error) {
	return b.advance(ctx, actor, id, model.StatusCheckedOut, "Bookings.CheckOut")
}

func (b *Bookings) advance(ctx context.Context, actor Actor, id uint64, next model.ReservationStatus, op string) (_ *model.Reservation, err error) {
	ctx, span := startSpan(ctx, op)
	defer func() { endSpan(span, err) }()

	if !actor.Admin {
		return nil, newError(KindForbidden, "only staff can %s a reservation", next)
	}
	var out *model.Reservation
	err = b.deps.Store.WithTx(ctx, func(tx repository.Tx) error {
		res, err := lockReservation(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := res.MoveTo(next); err != nil {
			return newError(KindInvalidTransition, "cannot move reservation from %s to %s", res.Status, next)
		}
		res.UpdatedAt = b.deps.Now().UTC()
		if err := tx.UpdateReservation(ctx, res); err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.deps.Log.WithFields(logrus.Fields{"reservation_id": id, "status": next}).Info("booking: status changed")
	return out, nil
}

func lockReservation(ctx context.Context, tx repository.Tx, id uint64) (*model.Reservation, error) {
	res, err := tx.LockReservation(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, "reservation %d not found", id)
	}
	return res, err
}
