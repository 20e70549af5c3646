package order

import "errors"

var (
	// -- Authentication/Authorization --
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// -- Validation & Input --
	ErrEmptyCart             = errors.New("cart is empty")
	ErrInvalidAddress        = errors.New("invalid address")
	ErrInvalidPaymentMethod  = errors.New("invalid payment method")
	ErrInvalidPaymentRef     = errors.New("payment reference is required")
	ErrInvalidStatus         = errors.New("invalid order status")
	ErrInvalidTrackingNumber = errors.New("tracking number is required")
	ErrMissingProduct        = errors.New("cart line has no product to snapshot")

	// -- Resource State --
	ErrOrderNotFound   = errors.New("order not found")
	ErrSessionNotFound = errors.New("checkout session not found")

	// -- Business Rules --
	ErrInvalidTransition = errors.New("order status transition not allowed")
	ErrStatusConflict    = errors.New("order status changed concurrently")
	ErrAmountMismatch    = errors.New("paid amount does not match order total")
	ErrNotShippable      = errors.New("order is not in a shippable status")

	// -- Database & Operation Failures --
	ErrFailedCreateOrder   = errors.New("failed to create order")
	ErrFailedGetOrder      = errors.New("failed to get order")
	ErrFailedUpdateOrder   = errors.New("failed to update order")
	ErrFailedCreateSession = errors.New("failed to create checkout session")
	ErrFailedGetSession    = errors.New("failed to get checkout session")
)
