package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/service"
)

// AdminHandler serves staff operations under /v1/admin.  The casbin
// policy admits only the ADMIN role; the actor is still marked admin from
// the token so the service applies its own check as well.
type AdminHandler struct {
	*ReservationHandler
}

// NewAdminHandler shares the reservation handler's service and logger.
func NewAdminHandler(r *ReservationHandler) *AdminHandler {
	return &AdminHandler{ReservationHandler: r}
}

// ListAll handles GET /v1/admin/reservations with the same filters as
// the guest list, across all guests.
func (h *AdminHandler) ListAll(c echo.Context) error {
	who, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	return h.list(c, who)
}

// CheckIn handles POST /v1/admin/reservations/:id/check-in.
func (h *AdminHandler) CheckIn(c echo.Context) error {
	return h.advance(c, h.Bookings.CheckIn)
}

// CheckOut handles POST /v1/admin/reservations/:id/check-out.
func (h *AdminHandler) CheckOut(c echo.Context) error {
	return h.advance(c, h.Bookings.CheckOut)
}

// CancelAny handles POST /v1/admin/reservations/:id/cancel.
func (h *AdminHandler) CancelAny(c echo.Context) error {
	who, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	return h.cancel(c, who)
}

type advanceFunc func(ctx context.Context, who service.Actor, id uint64) (*model.Reservation, error)

func (h *AdminHandler) advance(c echo.Context, step advanceFunc) error {
	who, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c, "reservation")
	}
	res, err := step(c.Request().Context(), who, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, newReservationView(res))
}
