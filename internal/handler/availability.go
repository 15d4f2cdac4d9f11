package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-reservation/internal/service"
)

// AvailabilityHandler serves the public availability reads.  Responses
// are cacheable for a few seconds.
type AvailabilityHandler struct {
	Availability *service.Availability
	Log          logrus.FieldLogger
}

func NewAvailabilityHandler(a *service.Availability, log logrus.FieldLogger) *AvailabilityHandler {
	return &AvailabilityHandler{Availability: a, Log: log}
}

// stayQuery reads check_in, check_out and guests from the query string.
// guests is optional.
func stayQuery(c echo.Context) (in, out time.Time, guests int, err error) {
	if in, err = parseStayTime(c.QueryParam("check_in")); err != nil {
		return
	}
	if out, err = parseStayTime(c.QueryParam("check_out")); err != nil {
		return
	}
	if s := c.QueryParam("guests"); s != "" {
		guests, err = strconv.Atoi(s)
	}
	return
}

// Room handles GET /v1/rooms/:id/availability.
func (h *AvailabilityHandler) Room(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c, "room")
	}
	in, out, guests, err := stayQuery(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_error", "message": err.Error()})
	}
	ra, err := h.Availability.CheckRoom(c.Request().Context(), id, in, out, guests)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, newAvailabilityView(*ra))
}

// Hotel handles GET /v1/hotels/:id/availability and lists only rooms with
// at least one free unit.
func (h *AvailabilityHandler) Hotel(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c, "hotel")
	}
	in, out, guests, err := stayQuery(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_error", "message": err.Error()})
	}
	rooms, err := h.Availability.CheckHotel(c.Request().Context(), id, in, out, guests)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	items := make([]availabilityView, 0, len(rooms))
	for _, r := range rooms {
		items = append(items, newAvailabilityView(r))
	}
	return c.JSON(http.StatusOK, echo.Map{"hotel_id": id, "rooms": items})
}
