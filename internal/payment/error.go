package payment

import "errors"

var (
	// -- Configuration --
	ErrUnknownProvider       = errors.New("unknown payment provider")
	ErrProviderNotConfigured = errors.New("payment provider not configured")

	// -- Validation & Input --
	ErrInvalidAmount  = errors.New("payment amount must be greater than zero")
	ErrInvalidPayload = errors.New("invalid webhook payload")

	// -- Webhook Security --
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrSignatureExpired = errors.New("webhook signature timestamp outside tolerance")

	// -- Provider Failures --
	ErrProviderRequest = errors.New("payment provider request failed")

	// -- Database & Operation Failures --
	ErrFailedSavePayment = errors.New("failed to save payment")
	ErrFailedSaveWebhook = errors.New("failed to save payment webhook")
)
