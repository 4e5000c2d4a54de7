package api

import (
	"errors"
	"net/http"

	"storefront/internal/apperr"
	"storefront/internal/checkout"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const loginRedirect = checkout.RedirectLogin

type errorBody struct {
	Error    string            `json:"error"`
	Redirect string            `json:"redirect,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// classify maps an error to its HTTP status, metric label and response body
func classify(err error) (int, string, errorBody) {
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "validation", errorBody{Error: "validation failed", Fields: verr.Fields}
	case errors.Is(err, apperr.ErrAuthRequired):
		return http.StatusUnauthorized, "auth_required", errorBody{Error: "please sign in to continue", Redirect: loginRedirect}
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden, "forbidden", errorBody{Error: "admin access required"}
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, "not_found", errorBody{Error: "not found"}
	case errors.Is(err, apperr.ErrEmptyCart):
		return http.StatusBadRequest, "empty_cart", errorBody{Error: "your cart is empty", Redirect: checkout.RedirectCatalog}
	case errors.Is(err, apperr.ErrCheckoutInFlight):
		return http.StatusConflict, "in_flight", errorBody{Error: "a checkout is already in progress"}
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict, "conflict", errorBody{Error: err.Error()}
	case errors.Is(err, apperr.ErrInvalidTransition):
		return http.StatusUnprocessableEntity, "invalid_transition", errorBody{Error: err.Error()}
	case errors.Is(err, apperr.ErrPaymentFailed):
		return http.StatusPaymentRequired, "payment_failed", errorBody{Error: "payment could not be confirmed, your order is pending"}
	case errors.Is(err, apperr.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable", errorBody{Error: "service temporarily unavailable, please retry"}
	default:
		return http.StatusInternalServerError, "internal", errorBody{Error: "internal server error"}
	}
}

type checkoutErrorBody struct {
	errorBody
	Attempt *checkout.Attempt `json:"attempt,omitempty"`
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status, body := h.recordError(c, err)
	c.JSON(status, body)
}

// writeCheckoutError includes the attempt so clients can see which state it ended in
func (h *Handler) writeCheckoutError(c *gin.Context, err error, attempt *checkout.Attempt) {
	status, body := h.recordError(c, err)
	c.JSON(status, checkoutErrorBody{errorBody: body, Attempt: attempt})
}

func (h *Handler) recordError(c *gin.Context, err error) (int, errorBody) {
	status, kind, body := classify(err)
	util.APIErrorsTotal.WithLabelValues(kind).Inc()

	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", fields...)
	} else {
		h.logger.Debug("Request rejected", fields...)
	}
	return status, body
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	util.APIErrorsTotal.WithLabelValues("bad_request").Inc()
	c.JSON(http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
}
