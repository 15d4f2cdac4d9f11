package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-reservation/internal/service"
)

// maxWebhookBody bounds webhook payloads read into memory.
const maxWebhookBody = 64 << 10

// PaymentHandler serves payment endpoints: intent creation, client
// verification, simulated payments, status and the provider webhook.
type PaymentHandler struct {
	Payments *service.Payments
	Log      logrus.FieldLogger
}

func NewPaymentHandler(p *service.Payments, log logrus.FieldLogger) *PaymentHandler {
	if p == nil {
		panic("nil payments service passed to NewPaymentHandler")
	}
	return &PaymentHandler{Payments: p, Log: log}
}

// CreateIntent handles POST /v1/reservations/:id/payment/intent.
func (h *PaymentHandler) CreateIntent(c echo.Context) error {
	who, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c, "reservation")
	}
	in, err := h.Payments.CreateIntent(c.Request().Context(), who, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"reference":     in.Reference,
		"client_secret": in.ClientSecret,
		"amount_cents":  in.AmountCents,
		"currency":      in.Currency,
	})
}

type verifyRequest struct {
	Reference string `json:"reference" validate:"required,max=255"`
}

// Verify handles POST /v1/reservations/:id/payment/verify.  The reference
// is checked with the provider before anything changes.
func (h *PaymentHandler) Verify(c echo.Context) error {
	who, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c, "reservation")
	}
	var body verifyRequest
	if ok, err := bindAndValidate(c, &body); !ok {
		return err
	}
	res, err := h.Payments.Verify(c.Request().Context(), who, id, body.Reference)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, newReservationView(res))
}

// Simulate handles POST /v1/reservations/:id/payment/simulate.  It is
// refused with 403 unless simulated payments are enabled.
func (h *PaymentHandler) Simulate(c echo.Context) error {
	who, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c, "reservation")
	}
	res, err := h.Payments.Simulate(c.Request().Context(), who, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, newReservationView(res))
}

// Status handles GET /v1/reservations/:id/payment.
func (h *PaymentHandler) Status(c echo.Context) error {
	who, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c, "reservation")
	}
	res, err := h.Payments.Status(c.Request().Context(), who, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"reservation_id":    res.ID,
		"status":            res.Status,
		"payment_status":    res.Payment.Status,
		"reference":         res.Payment.Reference,
		"paid_at":           res.Payment.PaidAt,
		"grand_total_cents": res.Pricing.GrandTotalCents,
	})
}

// Webhook handles POST /v1/payments/webhook.  Deliveries are acknowledged
// with 200 unless processing hit an infrastructure error, in which case a
// 500 asks the provider to retry.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, maxWebhookBody))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.Log.WithField("limit_bytes", tooLarge.Limit).Warn("http: webhook body too large, dropped")
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "payload_too_large", "message": "webhook body exceeds the size limit"})
	}
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_error", "message": "unreadable body"})
	}
	res, err := h.Payments.HandleWebhook(c.Request().Context(), payload, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		h.Log.WithError(err).Error("http: webhook processing failed, provider will retry")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "webhook processing failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true, "processed": res.Processed, "reason": res.Reason})
}
