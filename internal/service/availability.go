package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/repository"
)

// RoomAvailability is the result of an availability query for one room.
// Available is zero when the room cannot hold the requested guests.
type RoomAvailability struct {
	Room          model.Room
	Available     int
	TotalQuantity int
}

// Availability answers read-only availability questions.
type Availability struct {
	store repository.Reader
}

// NewAvailability returns an Availability reading from store.
func NewAvailability(store repository.Reader) *Availability {
	return &Availability{store: store}
}

func validateRange(checkIn, checkOut time.Time) error {
	if checkIn.IsZero() || checkOut.IsZero() {
		return newError(KindValidation, "check-in and check-out dates are required")
	}
	if !checkOut.After(checkIn) {
		return newError(KindValidation, "check-out must be after check-in")
	}
	return nil
}

// occupied counts reservations holding inventory of roomID during
// [checkIn, checkOut), ignoring the reservation with id exclude.
func occupied(ctx context.Context, r repository.Reader, roomID uint64, checkIn, checkOut time.Time, exclude uint64) (int, error) {
	rows, err := r.FindOverlapping(ctx, roomID, checkIn, checkOut, model.OccupyingStatuses())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, row := range rows {
		if row.ID != exclude && row.Status.OccupiesInventory() {
			n++
		}
	}
	return n, nil
}

func roomAvailability(ctx context.Context, r repository.Reader, room model.Room, checkIn, checkOut time.Time, guests int) (RoomAvailability, error) {
	out := RoomAvailability{Room: room, TotalQuantity: room.Quantity}
	if !room.Fits(guests) {
		return out, nil
	}
	n, err := occupied(ctx, r, room.ID, checkIn, checkOut, 0)
	if err != nil {
		return out, err
	}
	out.Available = max(room.Quantity-n, 0)
	return out, nil
}

// CheckRoom reports how many instances of a room are free for the whole
// range.  guests <= 0 skips the capacity filter.
func (a *Availability) CheckRoom(ctx context.Context, roomID uint64, checkIn, checkOut time.Time, guests int) (_ *RoomAvailability, err error) {
	ctx, span := startSpan(ctx, "Availability.CheckRoom")
	defer func() { endSpan(span, err) }()

	if err := validateRange(checkIn, checkOut); err != nil {
		return nil, err
	}
	room, err := a.store.RoomByID(ctx, roomID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !room.IsActive) {
		return nil, newError(KindNotFound, "room %d not found", roomID)
	}
	if err != nil {
		return nil, err
	}
	res, err := roomAvailability(ctx, a.store, *room, checkIn, checkOut, guests)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// CheckHotel lists the hotel's rooms that have at least one free instance
// for the range and fit guests.
func (a *Availability) CheckHotel(ctx context.Context, hotelID uint64, checkIn, checkOut time.Time, guests int) (_ []RoomAvailability, err error) {
	ctx, span := startSpan(ctx, "Availability.CheckHotel")
	defer func() { endSpan(span, err) }()

	if err := validateRange(checkIn, checkOut); err != nil {
		return nil, err
	}
	hotel, err := a.store.HotelByID(ctx, hotelID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !hotel.IsActive) {
		return nil, newError(KindNotFound, "hotel %d not found", hotelID)
	}
	if err != nil {
		return nil, err
	}
	rooms, err := a.store.RoomsByHotel(ctx, hotelID)
	if err != nil {
		return nil, err
	}
	out := make([]RoomAvailability, 0, len(rooms))
	for _, room := range rooms {
		ra, err := roomAvailability(ctx, a.store, room, checkIn, checkOut, guests)
		if err != nil {
			return nil, err
		}
		if ra.Available > 0 {
			out = append(out, ra)
		}
	}
	return out, nil
}
