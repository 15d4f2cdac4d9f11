package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

func TestCreateFreezesPricing(t *testing.T) {
	e := newEnv(t)
	req := e.stay(10, 3)
	req.Extras = []ExtraSelection{{ExtraID: e.extra.ID, Quantity: 1}, {ExtraID: e.extra.ID, Quantity: 1}}
	res := e.create(t, req)

	if res.Status != model.StatusPending || res.Payment.Status != model.PaymentPending {
		t.Fatalf("status = %s/%s, want pending/pending", res.Status, res.Payment.Status)
	}
	if !strings.HasPrefix(res.Code, "BK-") || len(res.Code) != 11 {
		t.Fatalf("code = %q, want BK-XXXXXXXX", res.Code)
	}
	p := res.Pricing
	if p.Nights != 3 || p.RoomTotalCents != 30000 || p.ExtrasTotalCents != 4000 || p.TaxesCents != 3400 || p.GrandTotalCents != 37400 {
		t.Fatalf("pricing = %+v, want 3 nights 30000+4000 tax 3400 total 37400", p)
	}
	if len(res.Extras) != 1 || res.Extras[0].Quantity != 2 || res.Extras[0].Name != "Breakfast" {
		t.Fatalf("extras = %+v, want one merged breakfast x2", res.Extras)
	}
	if res.UserID != guest.UserID || res.GuestEmail != guest.Email {
		t.Fatalf("owner = %d/%q", res.UserID, res.GuestEmail)
	}
}

func TestCreateValidation(t *testing.T) {
	e := newEnv(t)
	inactive := e.store.AddHotel(model.Hotel{Name: "Closed", IsActive: false})
	closedRoom := e.store.AddRoom(model.Room{HotelID: e.hotel.ID, Type: model.RoomSingle, Capacity: model.Capacity{Adults: 1}, Quantity: 1, IsActive: false})

	cases := []struct {
		name   string
		mutate func(*CreateRequest)
		want   error
	}{
		{"checkout before checkin", func(r *CreateRequest) { r.CheckOut = r.CheckIn.Add(-time.Hour) }, ErrValidation},
		{"checkout equals checkin", func(r *CreateRequest) { r.CheckOut = r.CheckIn }, ErrValidation},
		{"no adults", func(r *CreateRequest) { r.Adults = 0 }, ErrValidation},
		{"too many guests", func(r *CreateRequest) { r.Adults, r.Children = 3, 1 }, ErrValidation},
		{"unknown extra", func(r *CreateRequest) { r.Extras = []ExtraSelection{{ExtraID: 999, Quantity: 1}} }, ErrValidation},
		{"missing room", func(r *CreateRequest) { r.RoomID = 999 }, ErrNotFound},
		{"inactive room", func(r *CreateRequest) { r.RoomID = closedRoom.ID }, ErrNotFound},
		{"inactive hotel", func(r *CreateRequest) { r.HotelID = inactive.ID }, ErrNotFound},
		{"room of another hotel", func(r *CreateRequest) { r.HotelID = inactive.ID + 100 }, ErrNotFound},
	}
	for _, tc := range cases {
		req := e.stay(5, 2)
		tc.mutate(&req)
		_, err := e.bookings.Create(context.Background(), guest, req)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: error = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestCreateRejectsWhenConfirmedStaysFillRoom(t *testing.T) {
	e := newEnv(t)
	e.paid(t, e.stay(5, 3))

	_, err := e.bookings.Create(context.Background(), guest, e.stay(6, 1))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("overlapping create error = %v, want ErrUnavailable", err)
	}
	// Same-day turnover is fine.
	if _, err := e.bookings.Create(context.Background(), guest, e.stay(8, 2)); err != nil {
		t.Fatalf("back-to-back create: %v", err)
	}
}

func TestPendingDoesNotHoldInventory(t *testing.T) {
	e := newEnv(t)
	e.create(t, e.stay(5, 3))
	if _, err := e.bookings.Create(context.Background(), other, e.stay(5, 3)); err != nil {
		t.Fatalf("second pending create: %v", err)
	}
}

func TestGetAndListScoping(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	mine := e.create(t, e.stay(5, 1))
	e.clock.Advance(time.Minute)
	e.create(t, e.stay(7, 1))
	if _, err := e.bookings.Create(ctx, other, e.stay(9, 1)); err != nil {
		t.Fatalf("other create: %v", err)
	}

	if _, err := e.bookings.Get(ctx, other, mine.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("Get by other = %v, want ErrForbidden", err)
	}
	if _, err := e.bookings.Get(ctx, staff, mine.ID); err != nil {
		t.Fatalf("Get by staff: %v", err)
	}
	if _, err := e.bookings.Get(ctx, guest, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}

	page, err := e.bookings.List(ctx, guest, ListQuery{Page: 1, Limit: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 2 || page.Pages != 2 || len(page.Items) != 1 {
		t.Fatalf("page = total %d pages %d items %d, want 2/2/1", page.Total, page.Pages, len(page.Items))
	}
	if page.Items[0].ID == mine.ID {
		t.Fatalf("newest reservation should come first")
	}

	all, err := e.bookings.List(ctx, staff, ListQuery{Status: "pending", HotelID: e.hotel.ID})
	if err != nil {
		t.Fatalf("staff List: %v", err)
	}
	if all.Total != 3 || all.Limit != 10 || all.Page != 1 {
		t.Fatalf("staff list = %+v", all)
	}
	if _, err := e.bookings.List(ctx, staff, ListQuery{Status: "bogus"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad status filter = %v, want ErrValidation", err)
	}
}

func TestUpdateGuestsChecksCapacity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t, e.stay(5, 2))

	three := 3
	one := 1
	if _, err := e.bookings.Update(ctx, guest, res.ID, UpdateRequest{Adults: &three, Children: &one}); !errors.Is(err, ErrValidation) {
		t.Fatalf("over capacity update = %v, want ErrValidation", err)
	}
	note := "  late arrival "
	got, err := e.bookings.Update(ctx, guest, res.ID, UpdateRequest{SpecialRequests: &note, Children: &one})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.SpecialRequests != "late arrival" || got.Children != 1 || got.Pricing != res.Pricing {
		t.Fatalf("updated = %+v", got)
	}
	if _, err := e.bookings.Update(ctx, other, res.ID, UpdateRequest{SpecialRequests: &note}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("other update = %v, want ErrForbidden", err)
	}
}

func TestStateMachine(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	pending := e.create(t, e.stay(5, 2))

	if _, err := e.bookings.CheckIn(ctx, staff, pending.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("check-in pending = %v, want ErrInvalidTransition", err)
	}
	if _, err := e.bookings.CheckOut(ctx, staff, pending.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("check-out pending = %v, want ErrInvalidTransition", err)
	}

	res := e.paid(t, e.stay(20, 2))
	if _, err := e.bookings.CheckIn(ctx, guest, res.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("guest check-in = %v, want ErrForbidden", err)
	}
	in, err := e.bookings.CheckIn(ctx, staff, res.ID)
	if err != nil || in.Status != model.StatusCheckedIn {
		t.Fatalf("check-in = %v, %v", in, err)
	}
	if _, err := e.bookings.Cancel(ctx, staff, res.ID, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancel checked-in = %v, want ErrInvalidTransition", err)
	}
	out, err := e.bookings.CheckOut(ctx, staff, res.ID)
	if err != nil || out.Status != model.StatusCheckedOut {
		t.Fatalf("check-out = %v, %v", out, err)
	}
	if _, err := e.bookings.CheckOut(ctx, staff, res.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second check-out = %v, want ErrInvalidTransition", err)
	}
	if _, err := e.bookings.Cancel(ctx, staff, res.ID, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancel checked-out = %v, want ErrInvalidTransition", err)
	}
}
