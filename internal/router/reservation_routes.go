package router

import (
	"github.com/labstack/echo/v4"
)

// RegisterReservations mounts the guest lifecycle and payment endpoints.
// The casbin policy admits CUSTOMER and ADMIN; ownership is checked by the
// services.
func RegisterReservations(e *echo.Echo, h Handlers, o Options) {
	g := e.Group("/v1/reservations", protected(o)...)
	g.POST("", h.Reservations.Create)
	g.GET("", h.Reservations.List)
	g.GET("/:id", h.Reservations.Get)
	g.PATCH("/:id", h.Reservations.Update)
	g.POST("/:id/cancel", h.Reservations.Cancel)

	g.GET("/:id/payment", h.Payments.Status)
	g.POST("/:id/payment/intent", h.Payments.CreateIntent)
	g.POST("/:id/payment/verify", h.Payments.Verify)
	g.POST("/:id/payment/simulate", h.Payments.Simulate)
}
