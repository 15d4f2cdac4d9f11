package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/payment"
	"github.com/iliyamo/hotel-reservation/internal/repository/memory"
)

var (
	guest = Actor{UserID: 7, Email: "guest@example.com"}
	other = Actor{UserID: 8, Email: "other@example.com"}
	staff = Actor{UserID: 1, Admin: true}
)

type notice struct {
	id     uint64
	refund int64
}

type recorder struct {
	mu        sync.Mutex
	confirmed []uint64
	cancelled []notice
}

func (r *recorder) BookingConfirmed(_ context.Context, res *model.Reservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed = append(r.confirmed, res.ID)
}

func (r *recorder) BookingCancelled(_ context.Context, res *model.Reservation, refund int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, notice{id: res.ID, refund: refund})
}

func (r *recorder) confirmedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.confirmed)
}

func (r *recorder) cancelledNotices() []notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notice(nil), r.cancelled...)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type memDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memDeduper) Claim(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *memDeduper) Release(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
}

type env struct {
	store    *memory.Store
	sandbox  *payment.Sandbox
	notes    *recorder
	clock    *clock
	hotel    model.Hotel
	room     model.Room
	extra    model.Extra
	bookings *Bookings
	payments *Payments
	avail    *Availability
	deps     Deps
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store:   memory.New(),
		sandbox: payment.NewSandbox("whsec_test"),
		notes:   &recorder{},
		clock:   &clock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
	e.hotel = e.store.AddHotel(model.Hotel{
		Name: "Harbor View", City: "Lisbon", CheckInTime: "15:00", CheckOutTime: "11:00",
		Policy: model.DefaultCancellationPolicy, IsActive: true,
	})
	e.room = e.store.AddRoom(model.Room{
		HotelID: e.hotel.ID, Name: "Double", Type: model.RoomDouble,
		Capacity: model.Capacity{Adults: 2, Children: 1}, PricePerNightCents: 10000, Quantity: 1, IsActive: true,
	})
	e.extra = e.store.AddExtra(model.Extra{HotelID: e.hotel.ID, Name: "Breakfast", PriceCents: 2000, IsActive: true})

	e.deps = Deps{Store: e.store, Provider: e.sandbox, Notifier: e.notes, Log: quietLogger(), Now: e.clock.Now}
	cfg := DefaultConfig()
	cfg.SimulateEnabled = true
	e.bookings = NewBookings(e.deps, cfg)
	e.payments = NewPayments(e.deps, cfg, &memDeduper{seen: map[string]bool{}})
	e.avail = NewAvailability(e.store)
	return e
}

// stay returns a request for nights nights starting daysAhead days from the
// fixture clock.
func (e *env) stay(daysAhead, nights int) CreateRequest {
	in := e.clock.Now().Add(time.Duration(daysAhead) * 24 * time.Hour)
	return CreateRequest{
		HotelID:  e.hotel.ID,
		RoomID:   e.room.ID,
		CheckIn:  in,
		CheckOut: in.Add(time.Duration(nights) * 24 * time.Hour),
		Adults:   2,
	}
}

func (e *env) create(t *testing.T, req CreateRequest) *model.Reservation {
	t.Helper()
	res, err := e.bookings.Create(context.Background(), guest, req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return res
}

// paid creates a reservation and confirms it through the verify path with a
// real sandbox intent.
func (e *env) paid(t *testing.T, req CreateRequest) *model.Reservation {
	t.Helper()
	res := e.create(t, req)
	ctx := context.Background()
	in, err := e.payments.CreateIntent(ctx, guest, res.ID)
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	out, err := e.payments.Verify(ctx, guest, res.ID, in.Reference)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	return out
}

func (e *env) reload(t *testing.T, id uint64) *model.Reservation {
	t.Helper()
	res, err := e.store.ReservationByID(context.Background(), id)
	if err != nil {
		t.Fatalf("ReservationByID(%d): %v", id, err)
	}
	return res
}
