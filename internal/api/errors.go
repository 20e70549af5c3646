package api

import (
	"errors"
	"net/http"

	"storefront-be/internal/cart"
	"storefront-be/internal/logger"
	"storefront-be/internal/order"
	"storefront-be/internal/payment"
	"storefront-be/internal/pricing"
	"storefront-be/internal/product"
	"storefront-be/internal/user"
	"storefront-be/internal/utils"

	"go.uber.org/zap"
)

var statusByError = []struct {
	err    error
	status int
}{
	// 400
	{errBadRequest, http.StatusBadRequest},
	{product.ErrInvalidID, http.StatusBadRequest},
	{cart.ErrInvalidQuantity, http.StatusBadRequest},
	{cart.ErrInvalidSize, http.StatusBadRequest},
	{cart.ErrInvalidColor, http.StatusBadRequest},
	{cart.ErrInvalidLineID, http.StatusBadRequest},
	{order.ErrEmptyCart, http.StatusBadRequest},
	{order.ErrInvalidAddress, http.StatusBadRequest},
	{order.ErrInvalidPaymentMethod, http.StatusBadRequest},
	{order.ErrInvalidStatus, http.StatusBadRequest},
	{order.ErrInvalidTrackingNumber, http.StatusBadRequest},
	{order.ErrMissingProduct, http.StatusBadRequest},
	{payment.ErrInvalidAmount, http.StatusBadRequest},
	{pricing.ErrInvalidInput, http.StatusBadRequest},
	{user.ErrInvalidEmail, http.StatusBadRequest},
	{user.ErrWeakPassword, http.StatusBadRequest},

	// 401 / 403
	{cart.ErrUserNotAuthenticated, http.StatusUnauthorized},
	{order.ErrUnauthorized, http.StatusUnauthorized},
	{user.ErrInvalidCredentials, http.StatusUnauthorized},
	{order.ErrForbidden, http.StatusForbidden},

	// 404
	{product.ErrProductNotFound, http.StatusNotFound},
	{cart.ErrProductNotFound, http.StatusNotFound},
	{cart.ErrCartItemNotFound, http.StatusNotFound},
	{order.ErrOrderNotFound, http.StatusNotFound},
	{order.ErrSessionNotFound, http.StatusNotFound},
	{user.ErrUserNotFound, http.StatusNotFound},

	// 409
	{cart.ErrOutOfStock, http.StatusConflict},
	{cart.ErrInsufficientStock, http.StatusConflict},
	{order.ErrInvalidTransition, http.StatusConflict},
	{order.ErrStatusConflict, http.StatusConflict},
	{order.ErrNotShippable, http.StatusConflict},
	{user.ErrEmailExists, http.StatusConflict},

	// 502
	{payment.ErrProviderRequest, http.StatusBadGateway},
}

func statusFor(err error) int {
	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// writeError maps a service error to a status. Server errors are logged and
// hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromCtx(r.Context()).Error("request failed",
			zap.String("layer", "api"),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
		msg := "internal server error"
		if status == http.StatusBadGateway {
			msg = "payment provider unavailable"
		}
		utils.WriteJSONError(w, msg, status)
		return
	}
	utils.WriteJSONError(w, err.Error(), status)
}
