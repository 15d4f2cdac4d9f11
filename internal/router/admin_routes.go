package router

import (
	"github.com/labstack/echo/v4"
)

// RegisterAdmin mounts staff operations under /v1/admin; the casbin
// policy admits only ADMIN.
func RegisterAdmin(e *echo.Echo, h Handlers, o Options) {
	g := e.Group("/v1/admin", protected(o)...)
	g.GET("/reservations", h.Admin.ListAll)
	g.POST("/reservations/:id/check-in", h.Admin.CheckIn)
	g.POST("/reservations/:id/check-out", h.Admin.CheckOut)
	g.POST("/reservations/:id/cancel", h.Admin.CancelAny)
}
