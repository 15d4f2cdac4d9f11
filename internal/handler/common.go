package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-reservation/internal/middleware"
	"github.com/iliyamo/hotel-reservation/internal/payment"
	"github.com/iliyamo/hotel-reservation/internal/service"
)

// RequestValidator adapts go-playground/validator to echo.Validator so
// handlers can call c.Validate on bound request bodies.
type RequestValidator struct {
	v *validator.Validate
}

// NewRequestValidator returns a validator that reports JSON field names.
func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{v: v}
}

func (rv *RequestValidator) Validate(i interface{}) error {
	return rv.v.Struct(i)
}

// validationMessage flattens validator errors into one line such as
// "check_in is required; adults must be at least 1".
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "min", "gte":
			msgs = append(msgs, fe.Field()+" must be at least "+fe.Param())
		case "max", "lte":
			msgs = append(msgs, fe.Field()+" must be at most "+fe.Param())
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

// bindAndValidate binds the request body into dst and validates it.  On
// failure it has already written the 400 response and returns false.
func bindAndValidate(c echo.Context, dst interface{}) (bool, error) {
	if err := c.Bind(dst); err != nil {
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_error", "message": "invalid request body"})
	}
	if err := c.Validate(dst); err != nil {
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_error", "message": validationMessage(err)})
	}
	return true, nil
}

// actor returns the authenticated caller.
func actor(c echo.Context) (service.Actor, bool) {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return service.Actor{}, false
	}
	return service.Actor{UserID: id.UserID, Email: id.Email, Admin: id.IsAdmin()}, true
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "authentication required"})
}

// pathID parses a positive integer path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func badID(c echo.Context, what string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_error", "message": "invalid " + what + " id"})
}

// parseStayTime accepts a calendar date (2026-07-01, read as midnight UTC)
// or a full RFC 3339 timestamp.
func parseStayTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.New("dates must be YYYY-MM-DD or RFC 3339")
	}
	return t.UTC(), nil
}

// statusFor maps a booking error kind to its HTTP status.
var statusFor = map[service.Kind]int{
	service.KindNotFound:           http.StatusNotFound,
	service.KindValidation:         http.StatusBadRequest,
	service.KindUnavailable:        http.StatusConflict,
	service.KindInvalidTransition:  http.StatusConflict,
	service.KindPolicyViolation:    http.StatusUnprocessableEntity,
	service.KindVerificationFailed: http.StatusPaymentRequired,
	service.KindForbidden:          http.StatusForbidden,
	service.KindRefundFailed:       http.StatusBadGateway,
	service.KindPaymentConflict:    http.StatusConflict,
}

// writeError renders err as {"error": code, "message": ...}.  Anything
// that is not a booking error is logged and reported as a 500 without
// internal detail, except payment provider outages.
func writeError(c echo.Context, log logrus.FieldLogger, err error) error {
	if kind := service.KindOf(err); kind != 0 {
		var se *service.Error
		errors.As(err, &se)
		msg := se.Msg
		if msg == "" {
			msg = se.Error()
		}
		return c.JSON(statusFor[kind], echo.Map{"error": kind.String(), "message": msg})
	}
	entry := log.WithError(err).WithFields(logrus.Fields{"method": c.Request().Method, "path": c.Path()})
	switch {
	case errors.Is(err, payment.ErrTimeout):
		entry.Warn("http: payment provider timed out")
		return c.JSON(http.StatusGatewayTimeout, echo.Map{"error": "payment_timeout", "message": "payment provider did not answer in time"})
	case errors.Is(err, payment.ErrUnavailable):
		entry.Warn("http: payment provider unavailable")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "payment_unavailable", "message": "payment provider is unavailable, retry later"})
	}
	entry.Error("http: internal error")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "internal server error"})
}
