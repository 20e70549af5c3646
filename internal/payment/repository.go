package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"storefront-be/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Repository interface {
	CreatePayment(ctx context.Context, p *Payment) error
	UpdatePaymentStatus(ctx context.Context, provider Provider, reference string, status Status) error
	// GetPaymentByReference returns (nil, nil) when absent.
	GetPaymentByReference(ctx context.Context, provider Provider, reference string) (*Payment, error)

	// SavePaymentWebhook records a delivery. isDuplicate is true when the
	// same (provider, event_id) was already processed; a redelivery of an
	// unprocessed event returns its existing id so it can be retried.
	SavePaymentWebhook(
		ctx context.Context,
		provider Provider,
		eventID string,
		eventType string,
		reference string,
		payload json.RawMessage,
		signatureValid bool,
	) (webhookID int64, isDuplicate bool, err error)

	MarkWebhookProcessed(ctx context.Context, webhookID int64) error
	MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreatePayment(ctx context.Context, p *Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = StatusPending
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO payments (
			id,
			checkout_session_id,
			provider,
			reference,
			amount,
			amount_minor,
			currency,
			status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`,
		p.ID,
		p.CheckoutSessionID,
		p.Provider,
		p.Reference,
		p.Amount,
		p.AmountMinor,
		p.Currency,
		p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to insert payment",
			zap.String("layer", "repository"),
			zap.String("provider", string(p.Provider)),
			zap.String("reference", p.Reference),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrFailedSavePayment, err)
	}
	return nil
}

func (r *repository) UpdatePaymentStatus(ctx context.Context, provider Provider, reference string, status Status) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $1,
		    updated_at = NOW()
		WHERE provider = $2 AND reference = $3
	`, status, provider, reference)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	return nil
}

func (r *repository) GetPaymentByReference(ctx context.Context, provider Provider, reference string) (*Payment, error) {
	var p Payment
	err := r.db.QueryRowContext(ctx, `
		SELECT
			id,
			checkout_session_id,
			provider,
			reference,
			amount,
			amount_minor,
			currency,
			status,
			created_at,
			updated_at
		FROM payments
		WHERE provider = $1 AND reference = $2
	`, provider, reference).Scan(
		&p.ID,
		&p.CheckoutSessionID,
		&p.Provider,
		&p.Reference,
		&p.Amount,
		&p.AmountMinor,
		&p.Currency,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) SavePaymentWebhook(
	ctx context.Context,
	provider Provider,
	eventID string,
	eventType string,
	reference string,
	payload json.RawMessage,
	signatureValid bool,
) (int64, bool, error) {

	const q = `
	INSERT INTO payment_webhooks (
		provider,
		event_id,
		event_type,
		reference,
		signature_valid,
		payload
	)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (provider, event_id)
	DO UPDATE SET
		attempts = payment_webhooks.attempts + 1,
		process_error = NULL
	WHERE payment_webhooks.processed_at IS NULL
	RETURNING id;
	`

	var id int64
	err := r.db.QueryRowContext(
		ctx,
		q,
		provider,
		eventID,
		eventType,
		reference,
		signatureValid,
		payload,
	).Scan(&id)

	if err != nil {
		// Already processed
		if errors.Is(err, sql.ErrNoRows) {
			return 0, true, nil
		}
		logger.FromCtx(ctx).Error("failed to save payment webhook",
			zap.String("layer", "repository"),
			zap.String("provider", string(provider)),
			zap.String("event_id", eventID),
			zap.Error(err),
		)
		return 0, false, fmt.Errorf("%w: %w", ErrFailedSaveWebhook, err)
	}

	return id, false, nil
}

func (r *repository) MarkWebhookProcessed(ctx context.Context, webhookID int64) error {
	const q = `
	UPDATE payment_webhooks
	SET processed_at = now(),
	    process_error = NULL
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, webhookID)
	return err
}

func (r *repository) MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error {
	const q = `
	UPDATE payment_webhooks
	SET process_error = $2
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, webhookID, reason)
	return err
}
