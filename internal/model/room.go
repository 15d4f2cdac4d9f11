package model

import (
	"fmt"
	"time"
)

// RoomType is the closed set of room categories.
type RoomType string

const (
	RoomSingle    RoomType = "single"
	RoomDouble    RoomType = "double"
	RoomSuite     RoomType = "suite"
	RoomDeluxe    RoomType = "deluxe"
	RoomPenthouse RoomType = "penthouse"
)

// ParseRoomType validates s against the known room types.
func ParseRoomType(s string) (RoomType, error) {
	switch t := RoomType(s); t {
	case RoomSingle, RoomDouble, RoomSuite, RoomDeluxe, RoomPenthouse:
		return t, nil
	}
	return "", fmt.Errorf("unknown room type %q", s)
}

// Capacity is the number of guests a single room instance sleeps.
type Capacity struct {
	Adults   int // rooms.capacity_adults
	Children int // rooms.capacity_children
}

// Total returns adults plus children.
func (c Capacity) Total() int { return c.Adults + c.Children }

// Room is a room type inside a hotel.  Quantity physical rooms of this
// type exist; they are not tracked individually, so availability is the
// quantity minus the number of overlapping occupying reservations.
//
// Fields:
//
//	ID                 – primary key identifier.
//	HotelID            – owning hotel.
//	Name               – display name ("Sea view double").
//	Type               – room category.
//	Capacity           – adults/children per room instance.
//	PricePerNightCents – nightly rate in cents.
//	Quantity           – number of identical physical rooms.
//	IsActive           – inactive rooms cannot be booked.
type Room struct {
	ID                 uint64    // rooms.id
	HotelID            uint64    // rooms.hotel_id
	Name               string    // rooms.name
	Type               RoomType  // rooms.type
	Capacity           Capacity  // rooms.capacity_adults, rooms.capacity_children
	PricePerNightCents int64     // rooms.price_per_night_cents
	Quantity           int       // rooms.quantity
	IsActive           bool      // rooms.is_active
	CreatedAt          time.Time // rooms.created_at
	UpdatedAt          time.Time // rooms.updated_at
}

// Fits reports whether guests people can stay in one instance of the room.
// A non-positive guest count always fits.
func (r Room) Fits(guests int) bool {
	return guests <= 0 || r.Capacity.Total() >= guests
}
