package router

import (
	"github.com/labstack/echo/v4"
)

// RegisterPublic mounts the availability reads and the payment provider
// webhook.  Neither needs a token; the webhook authenticates by signature.
func RegisterPublic(e *echo.Echo, h Handlers, o Options) {
	g := e.Group("/v1")
	var reads []echo.MiddlewareFunc
	if o.RateLimit != nil {
		reads = append(reads, o.RateLimit)
	}
	if o.Cache != nil {
		reads = append(reads, o.Cache)
	}
	g.GET("/rooms/:id/availability", h.Availability.Room, reads...)
	g.GET("/hotels/:id/availability", h.Availability.Hotel, reads...)

	// No rate limit: the provider retries and bursts on recovery.
	g.POST("/payments/webhook", h.Payments.Webhook)
}
