// Package router registers the HTTP routes of the booking API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hotel-reservation/internal/handler"
	"github.com/iliyamo/hotel-reservation/internal/middleware"
)

// Handlers are the endpoint groups to mount.
type Handlers struct {
	Reservations *handler.ReservationHandler
	Admin        *handler.AdminHandler
	Availability *handler.AvailabilityHandler
	Payments     *handler.PaymentHandler
	Ready        echo.HandlerFunc
}

// Options carry the cross-cutting middleware.  RateLimit and Cache may be
// nil.
type Options struct {
	JWTSecret  string
	Authorizer *middleware.Authorizer
	RateLimit  echo.MiddlewareFunc
	Cache      echo.MiddlewareFunc
}

// Register mounts every route on e.
func Register(e *echo.Echo, h Handlers, o Options) {
	RegisterRoutes(e, h.Ready)
	RegisterPublic(e, h, o)
	RegisterReservations(e, h, o)
	RegisterAdmin(e, h, o)
}

// RegisterRoutes mounts the unauthenticated probes.
func RegisterRoutes(e *echo.Echo, ready echo.HandlerFunc) {
	e.GET("/healthz", handler.Health)
	if ready != nil {
		e.GET("/readyz", ready)
	}
}

// protected returns the middleware chain for authenticated groups.
func protected(o Options) []echo.MiddlewareFunc {
	chain := []echo.MiddlewareFunc{middleware.JWTAuth(o.JWTSecret), o.Authorizer.Middleware()}
	if o.RateLimit != nil {
		chain = append(chain, o.RateLimit)
	}
	return chain
}
