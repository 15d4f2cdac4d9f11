package main

import (
	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/repository/memory"
)

// seedDemo fills an in-memory store with one hotel so the API can be
// exercised without a database.
func seedDemo(s *memory.Store) {
	h := s.AddHotel(model.Hotel{
		Name: "Harbor View", City: "Lisbon", CheckInTime: "15:00", CheckOutTime: "11:00",
		Policy: model.DefaultCancellationPolicy, IsActive: true,
	})
	s.AddRoom(model.Room{HotelID: h.ID, Name: "Standard Double", Type: model.RoomDouble,
		Capacity: model.Capacity{Adults: 2, Children: 1}, PricePerNightCents: 12000, Quantity: 5, IsActive: true})
	s.AddRoom(model.Room{HotelID: h.ID, Name: "Harbor Suite", Type: model.RoomSuite,
		Capacity: model.Capacity{Adults: 4, Children: 2}, PricePerNightCents: 32000, Quantity: 2, IsActive: true})
	s.AddExtra(model.Extra{HotelID: h.ID, Name: "Breakfast", PriceCents: 1800, IsActive: true})
	s.AddExtra(model.Extra{HotelID: h.ID, Name: "Airport transfer", PriceCents: 4500, IsActive: true})
}
