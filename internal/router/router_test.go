package router

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-reservation/internal/handler"
	"github.com/iliyamo/hotel-reservation/internal/middleware"
	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/payment"
	"github.com/iliyamo/hotel-reservation/internal/repository/memory"
	"github.com/iliyamo/hotel-reservation/internal/service"
	"github.com/iliyamo/hotel-reservation/internal/utils"
)

const secret = "router-secret"

type api struct {
	t       *testing.T
	e       *echo.Echo
	sandbox *payment.Sandbox
	hotel   model.Hotel
	room    model.Room
	guest   string
	other   string
	admin   string
}

func newAPI(t *testing.T) *api {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	store := memory.New()
	hotel := store.AddHotel(model.Hotel{Name: "Harbor View", Policy: model.DefaultCancellationPolicy, IsActive: true})
	room := store.AddRoom(model.Room{
		HotelID: hotel.ID, Name: "Double", Type: model.RoomDouble,
		Capacity: model.Capacity{Adults: 2}, PricePerNightCents: 10000, Quantity: 1, IsActive: true,
	})
	sandbox := payment.NewSandbox("whsec_router")

	cfg := service.DefaultConfig()
	cfg.SimulateEnabled = true
	deps := service.Deps{Store: store, Provider: sandbox, Log: log}
	authz, err := middleware.NewAuthorizer(middleware.DefaultPolicies)
	if err != nil {
		t.Fatalf("NewAuthorizer: %v", err)
	}

	e := echo.New()
	e.Validator = handler.NewRequestValidator()
	rh := handler.NewReservationHandler(service.NewBookings(deps, cfg), log)
	Register(e, Handlers{
		Reservations: rh,
		Admin:        handler.NewAdminHandler(rh),
		Availability: handler.NewAvailabilityHandler(service.NewAvailability(store), log),
		Payments:     handler.NewPaymentHandler(service.NewPayments(deps, cfg, nil), log),
		Ready:        handler.Ready(nil),
	}, Options{JWTSecret: secret, Authorizer: authz})

	tok := func(id uint64, role string) string {
		at, err := utils.NewAccessToken(secret, utils.Subject{UserID: id, Role: role, Email: "u" + strconv.FormatUint(id, 10) + "@example.com"}, time.Hour)
		if err != nil {
			t.Fatalf("NewAccessToken: %v", err)
		}
		return at.Token
	}
	return &api{
		t: t, e: e, sandbox: sandbox, hotel: hotel, room: room,
		guest: tok(7, middleware.RoleCustomer),
		other: tok(8, middleware.RoleCustomer),
		admin: tok(1, middleware.RoleAdmin),
	}
}

func (a *api) do(method, path, token string, body any) (int, map[string]any) {
	a.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Header().Get(echo.HeaderContentType) != "" && rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec.Code, out
}

func (a *api) book(token string, checkIn time.Time, nights int) (int, map[string]any) {
	return a.do(http.MethodPost, "/v1/reservations", token, map[string]any{
		"hotel_id":  a.hotel.ID,
		"room_id":   a.room.ID,
		"check_in":  checkIn.Format(time.DateOnly),
		"check_out": checkIn.AddDate(0, 0, nights).Format(time.DateOnly),
		"adults":    2,
	})
}

func idOf(t *testing.T, body map[string]any) string {
	t.Helper()
	id, ok := body["id"].(float64)
	if !ok {
		t.Fatalf("response has no id: %v", body)
	}
	return strconv.FormatUint(uint64(id), 10)
}

func day(n int) time.Time {
	return time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, n)
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	a := newAPI(t)

	code, body := a.book(a.guest, day(10), 3)
	if code != http.StatusCreated {
		t.Fatalf("create = %d %v", code, body)
	}
	id := idOf(t, body)
	pricing := body["pricing"].(map[string]any)
	if pricing["grand_total_cents"].(float64) != 33000 || body["status"] != "pending" {
		t.Fatalf("created = %v", body)
	}

	if code, body := a.do(http.MethodGet, "/v1/reservations/"+id, a.other, nil); code != http.StatusForbidden || body["error"] != "forbidden" {
		t.Fatalf("other get = %d %v", code, body)
	}
	if code, _ := a.do(http.MethodGet, "/v1/reservations/"+id, a.admin, nil); code != http.StatusOK {
		t.Fatalf("admin get = %d", code)
	}

	if code, body := a.do(http.MethodPost, "/v1/reservations/"+id+"/payment/simulate", a.guest, nil); code != http.StatusOK || body["status"] != "confirmed" {
		t.Fatalf("simulate = %d %v", code, body)
	}

	// The room is now taken for those nights.
	if code, body := a.book(a.other, day(11), 1); code != http.StatusConflict || body["error"] != "unavailable" {
		t.Fatalf("overlapping create = %d %v", code, body)
	}
	avail := "/v1/rooms/" + strconv.FormatUint(a.room.ID, 10) + "/availability?check_in=" + day(11).Format(time.DateOnly) + "&check_out=" + day(12).Format(time.DateOnly)
	if code, body := a.do(http.MethodGet, avail, "", nil); code != http.StatusOK || body["available"].(float64) != 0 {
		t.Fatalf("availability = %d %v", code, body)
	}

	if code, _ := a.do(http.MethodPost, "/v1/admin/reservations/"+id+"/check-in", a.guest, nil); code != http.StatusForbidden {
		t.Fatalf("guest check-in = %d, want 403", code)
	}

	code, body = a.do(http.MethodPost, "/v1/reservations/"+id+"/cancel", a.guest, map[string]any{"reason": "plans changed"})
	if code != http.StatusOK || body["refund_cents"].(float64) != 33000 {
		t.Fatalf("cancel = %d %v", code, body)
	}
	if code, body := a.do(http.MethodPost, "/v1/reservations/"+id+"/cancel", a.guest, nil); code != http.StatusConflict || body["error"] != "invalid_transition" {
		t.Fatalf("second cancel = %d %v", code, body)
	}
}

func TestAdminCheckInOut(t *testing.T) {
	a := newAPI(t)
	_, body := a.book(a.guest, day(5), 2)
	id := idOf(t, body)

	if code, body := a.do(http.MethodPost, "/v1/admin/reservations/"+id+"/check-in", a.admin, nil); code != http.StatusConflict {
		t.Fatalf("check-in pending = %d %v", code, body)
	}
	a.do(http.MethodPost, "/v1/reservations/"+id+"/payment/simulate", a.guest, nil)
	if code, body := a.do(http.MethodPost, "/v1/admin/reservations/"+id+"/check-in", a.admin, nil); code != http.StatusOK || body["status"] != "checked-in" {
		t.Fatalf("check-in = %d %v", code, body)
	}
	if code, body := a.do(http.MethodPost, "/v1/admin/reservations/"+id+"/check-out", a.admin, nil); code != http.StatusOK || body["status"] != "checked-out" {
		t.Fatalf("check-out = %d %v", code, body)
	}
	code, body := a.do(http.MethodGet, "/v1/admin/reservations?status=checked-out", a.admin, nil)
	if code != http.StatusOK || body["pagination"].(map[string]any)["total"].(float64) != 1 {
		t.Fatalf("admin list = %d %v", code, body)
	}
}

func TestErrorMapping(t *testing.T) {
	a := newAPI(t)

	if code, body := a.do(http.MethodPost, "/v1/reservations", a.guest, map[string]any{"hotel_id": a.hotel.ID}); code != http.StatusBadRequest || body["error"] != "validation_error" {
		t.Fatalf("missing fields = %d %v", code, body)
	}
	if code, body := a.book(a.guest, day(3), 0); code != http.StatusBadRequest {
		t.Fatalf("zero nights = %d %v", code, body)
	}
	if code, _ := a.do(http.MethodGet, "/v1/reservations/abc", a.guest, nil); code != http.StatusBadRequest {
		t.Fatalf("bad id = %d", code)
	}
	if code, body := a.do(http.MethodGet, "/v1/reservations/999", a.guest, nil); code != http.StatusNotFound || body["error"] != "not_found" {
		t.Fatalf("missing = %d %v", code, body)
	}

	// Check-in is tomorrow at midnight, which is inside the 24h cutoff
	// for any current time of day.
	_, body := a.book(a.guest, day(1), 1)
	id := idOf(t, body)
	if code, body := a.do(http.MethodPost, "/v1/reservations/"+id+"/cancel", a.guest, nil); code != http.StatusUnprocessableEntity || body["error"] != "policy_violation" {
		t.Fatalf("late cancel = %d %v", code, body)
	}

	if code, body := a.do(http.MethodPost, "/v1/reservations/"+id+"/payment/verify", a.guest, map[string]any{"reference": "pi_unknown"}); code != http.StatusPaymentRequired {
		t.Fatalf("verify unknown = %d %v", code, body)
	}
	if code, _ := a.do(http.MethodGet, "/v1/reservations", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("no token = %d", code)
	}
}

func TestWebhookOverHTTP(t *testing.T) {
	a := newAPI(t)
	_, body := a.book(a.guest, day(10), 2)
	id := idOf(t, body)
	code, intent := a.do(http.MethodPost, "/v1/reservations/"+id+"/payment/intent", a.guest, nil)
	if code != http.StatusCreated {
		t.Fatalf("intent = %d %v", code, intent)
	}
	ref := intent["reference"].(string)

	payload, sig, err := a.sandbox.SignedEvent(payment.EventPaymentSucceeded, ref)
	if err != nil {
		t.Fatalf("SignedEvent: %v", err)
	}
	post := func(sig string) (int, map[string]any) {
		req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", bytes.NewReader(payload))
		req.Header.Set("Stripe-Signature", sig)
		rec := httptest.NewRecorder()
		a.e.ServeHTTP(rec, req)
		out := map[string]any{}
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
		return rec.Code, out
	}

	if code, out := post("t=1,v1=00"); code != http.StatusOK || out["processed"] != false {
		t.Fatalf("bad signature = %d %v", code, out)
	}
	if code, out := post(sig); code != http.StatusOK || out["processed"] != true {
		t.Fatalf("webhook = %d %v", code, out)
	}
	code, status := a.do(http.MethodGet, "/v1/reservations/"+id+"/payment", a.guest, nil)
	if code != http.StatusOK || status["status"] != "confirmed" || status["payment_status"] != "paid" || status["reference"] != ref {
		t.Fatalf("payment status = %d %v", code, status)
	}
}

func TestWebhookRejectsOversizedBody(t *testing.T) {
	a := newAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", bytes.NewReader(bytes.Repeat([]byte("x"), 65<<10)))
	req.Header.Set("Stripe-Signature", "t=1,v1=00")
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized webhook = %d %s", rec.Code, rec.Body.String())
	}
}

func TestProbes(t *testing.T) {
	a := newAPI(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		a.e.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s = %d", path, rec.Code)
		}
	}
}
