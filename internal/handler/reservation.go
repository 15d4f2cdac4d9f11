package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-reservation/internal/service"
)

// ReservationHandler serves the guest-facing booking lifecycle under
// /v1/reservations.  JWT authentication and role checks run in middleware;
// ownership is enforced by the booking service.
type ReservationHandler struct {
	Bookings *service.Bookings
	Log      logrus.FieldLogger
}

// NewReservationHandler panics on a nil service, like the other handler
// constructors.
func NewReservationHandler(b *service.Bookings, log logrus.FieldLogger) *ReservationHandler {
	if b == nil {
		panic("nil bookings service passed to NewReservationHandler")
	}
	return &ReservationHandler{Bookings: b, Log: log}
}

type extraRequest struct {
	ExtraID  uint64 `json:"extra_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"min=1,max=50"`
}

type createRequest struct {
	HotelID         uint64         `json:"hotel_id" validate:"required"`
	RoomID          uint64         `json:"room_id" validate:"required"`
	CheckIn         string         `json:"check_in" validate:"required"`
	CheckOut        string         `json:"check_out" validate:"required"`
	Adults          int            `json:"adults" validate:"min=1,max=20"`
	Children        int            `json:"children" validate:"min=0,max=20"`
	Extras          []extraRequest `json:"extras" validate:"max=20,dive"`
	SpecialRequests string         `json:"special_requests" validate:"max=1000"`
}

// Create handles POST /v1/reservations.  The new reservation is pending
// until its payment is confirmed; 201 with the frozen pricing on success.
func (h *ReservationHandler) Create(c echo.Context) error {
	who, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	var body createRequest
	if ok, err := bindAndValidate(c, &body); !ok {
		return err
	}
	in, err := parseStayTime(body.CheckIn)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_error", "message": "check_in: " + err.Error()})
	}
	out, err := parseStayTime(body.CheckOut)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_error", "message": "check_out: " + err.Error()})
	}
	req := service.CreateRequest{
		HotelID:         body.HotelID,
		RoomID:          body.RoomID,
		CheckIn:         in,
		CheckOut:        out,
		Adults:          body.Adults,
		Children:        body.Children,
		SpecialRequests: body.SpecialRequests,
	}
	for _, e := range body.Extras {
		req.Extras = append(req.Extras, service.ExtraSelection{ExtraID: e.ExtraID, Quantity: e.Quantity})
	}
	res, err := h.Bookings.Create(c.Request().Context(), who, req)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, newReservationView(res))
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	who, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c, "reservation")
	}
	res, err := h.Bookings.Get(c.Request().Context(), who, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, newReservationView(res))
}

// List handles GET /v1/reservations?status=&hotel_id=&page=&limit=.
// Guests only see their own reservations.
func (h *ReservationHandler) List(c echo.Context) error {
	who, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	return h.list(c, who)
}

func (h *ReservationHandler) list(c echo.Context, who service.Actor) error {
	q := service.ListQuery{Status: c.QueryParam("status")}
	if s := c.QueryParam("hotel_id"); s != "" {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return badID(c, "hotel")
		}
		q.HotelID = id
	}
	q.Page, _ = strconv.Atoi(c.QueryParam("page"))
	q.Limit, _ = strconv.Atoi(c.QueryParam("limit"))
	res, err := h.Bookings.List(c.Request().Context(), who, q)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, newListView(res))
}

type updateRequest struct {
	SpecialRequests *string `json:"special_requests" validate:"omitempty,max=1000"`
	Adults          *int    `json:"adults" validate:"omitempty,min=1,max=20"`
	Children        *int    `json:"children" validate:"omitempty,min=0,max=20"`
}

// Update handles PATCH /v1/reservations/:id.  Only special requests and
// the guest split can change; the price stays frozen.
func (h *ReservationHandler) Update(c echo.Context) error {
	who, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c, "reservation")
	}
	var body updateRequest
	if ok, err := bindAndValidate(c, &body); !ok {
		return err
	}
	res, err := h.Bookings.Update(c.Request().Context(), who, id, service.UpdateRequest{
		SpecialRequests: body.SpecialRequests,
		Adults:          body.Adults,
		Children:        body.Children,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, newReservationView(res))
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// Cancel handles POST /v1/reservations/:id/cancel.  The body is optional.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	who, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	return h.cancel(c, who)
}

func (h *ReservationHandler) cancel(c echo.Context, who service.Actor) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c, "reservation")
	}
	var body cancelRequest
	if c.Request().ContentLength != 0 {
		if ok, err := bindAndValidate(c, &body); !ok {
			return err
		}
	}
	res, err := h.Bookings.Cancel(c.Request().Context(), who, id, body.Reason)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	refund := int64(0)
	if res.Cancellation != nil {
		refund = res.Cancellation.RefundCents
	}
	return c.JSON(http.StatusOK, echo.Map{"reservation": newReservationView(res), "refund_cents": refund})
}
