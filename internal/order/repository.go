package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront-be/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Repository interface {
	// CreateOrderTx writes the order, its items, the stock decrement and the
	// session completion in one transaction. created is false when an order
	// with the same payment id already exists; nothing is written then.
	CreateOrderTx(ctx context.Context, order *Order, sessionID *uuid.UUID) (created bool, err error)

	// Lookups return (nil, nil) when absent.
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrderByPaymentID(ctx context.Context, paymentID string) (*Order, error)
	ListOrders(ctx context.Context, opts ListOptions) ([]*Order, error)

	// UpdateOrderStatus moves an order from -> to and returns
	// ErrStatusConflict when the order is no longer in from. An empty
	// paymentStatus leaves the payment status unchanged.
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to OrderStatus, paymentStatus PaymentStatus) error
	SetTrackingNumber(ctx context.Context, id uuid.UUID, tracking string) error

	CreateCheckoutSession(ctx context.Context, session *CheckoutSession) error
	GetCheckoutSessionByPaymentRef(ctx context.Context, paymentRef string) (*CheckoutSession, error)
	UpdateCheckoutSessionStatus(ctx context.Context, id uuid.UUID, from, to SessionStatus) (bool, error)
	ExpireCheckoutSessions(ctx context.Context, before time.Time) (int64, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const orderColumns = `
		id,
		order_number,
		user_id,
		status,
		payment_status,
		subtotal,
		tax,
		shipping,
		discount,
		total,
		currency,
		shipping_address,
		billing_address,
		payment_method,
		payment_id,
		tracking_number,
		notes,
		created_at,
		updated_at`

func scanOrder(row rowScanner) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.UserID,
		&o.Status,
		&o.PaymentStatus,
		&o.Subtotal,
		&o.Tax,
		&o.Shipping,
		&o.Discount,
		&o.Total,
		&o.Currency,
		&o.ShippingAddress,
		&o.BillingAddress,
		&o.PaymentMethod,
		&o.PaymentID,
		&o.TrackingNumber,
		&o.Notes,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repository) CreateOrderTx(ctx context.Context, o *Order, sessionID *uuid.UUID) (bool, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateOrderTx"),
		zap.String("order_id", o.ID.String()),
		zap.Int("item_count", len(o.Items)),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction", zap.Error(err))
		return false, fmt.Errorf("%w: %w", ErrFailedCreateOrder, err)
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("failed to rollback transaction", zap.Error(rbErr))
			} else {
				log.Debug("transaction rolled back")
			}
		}
	}()

	// 1. Order row; a second confirmation of the same payment hits the
	// unique payment_id and returns no row.
	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (
			id,
			order_number,
			user_id,
			status,
			payment_status,
			subtotal,
			tax,
			shipping,
			discount,
			total,
			currency,
			shipping_address,
			billing_address,
			payment_method,
			payment_id,
			notes
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (payment_id) DO NOTHING
		RETURNING created_at, updated_at
	`,
		o.ID,
		o.OrderNumber,
		o.UserID,
		o.Status,
		o.PaymentStatus,
		o.Subtotal,
		o.Tax,
		o.Shipping,
		o.Discount,
		o.Total,
		o.Currency,
		o.ShippingAddress,
		o.BillingAddress,
		o.PaymentMethod,
		o.PaymentID,
		o.Notes,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		log.Info("order already exists for payment")
		return false, nil
	}
	if err != nil {
		log.Error("failed to insert order", zap.Error(err))
		return false, fmt.Errorf("%w: %w", ErrFailedCreateOrder, err)
	}

	// 2. Items with frozen product, then stock
	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id,
				order_id,
				product_id,
				product_snapshot,
				quantity,
				size,
				color,
				unit_price,
				total_price
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			item.ID,
			item.OrderID,
			item.ProductID,
			[]byte(item.ProductSnapshot),
			item.Quantity,
			item.Size,
			item.Color,
			item.UnitPrice,
			item.TotalPrice,
		)
		if err != nil {
			log.Error("failed to insert order item",
				zap.Int("item_index", i),
				zap.String("product_id", item.ProductID),
				zap.Error(err),
			)
			return false, fmt.Errorf("%w: %w", ErrFailedCreateOrder, err)
		}

		// The payment is already captured, so stock never blocks the order.
		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET stock = GREATEST(stock - $1, 0),
			    updated_at = NOW()
			WHERE id = $2
		`, item.Quantity, item.ProductID)
		if err != nil {
			log.Error("failed to decrement stock",
				zap.String("product_id", item.ProductID),
				zap.Error(err),
			)
			return false, fmt.Errorf("%w: %w", ErrFailedCreateOrder, err)
		}
	}

	// 3. Session completion
	if sessionID != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE checkout_sessions
			SET status = $1,
			    completed_at = NOW()
			WHERE id = $2
		`, SessionCompleted, *sessionID)
		if err != nil {
			log.Error("failed to complete checkout session", zap.Error(err))
			return false, fmt.Errorf("%w: %w", ErrFailedCreateOrder, err)
		}
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit order transaction", zap.Error(err))
		return false, fmt.Errorf("%w: %w", ErrFailedCreateOrder, err)
	}

	committed = true
	log.Info("order transaction committed")
	return true, nil
}

func (r *repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.getOrder(ctx, "id = $1", id)
}

func (r *repository) GetOrderByPaymentID(ctx context.Context, paymentID string) (*Order, error) {
	return r.getOrder(ctx, "payment_id = $1", paymentID)
}

func (r *repository) getOrder(ctx context.Context, where string, arg any) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "getOrder"),
		zap.Any("key", arg),
	)

	o, err := scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		log.Error("failed to query order", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrFailedGetOrder, err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT
			id,
			order_id,
			product_id,
			product_snapshot,
			quantity,
			size,
			color,
			unit_price,
			total_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY product_id, size, color
	`, o.ID)
	if err != nil {
		log.Error("failed to query order items", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrFailedGetOrder, err)
	}
	defer rows.Close()

	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductSnapshot,
			&item.Quantity,
			&item.Size,
			&item.Color,
			&item.UnitPrice,
			&item.TotalPrice,
		); err != nil {
			log.Error("failed to scan order item", zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrFailedGetOrder, err)
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedGetOrder, err)
	}

	return o, nil
}

func (r *repository) ListOrders(ctx context.Context, opts ListOptions) ([]*Order, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := opts.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "ListOrders"),
		zap.Int("limit", limit),
		zap.Int("page", page),
	)

	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	args := []any{}
	argIndex := 1

	if opts.UserID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argIndex)
		args = append(args, *opts.UserID)
		argIndex++
	}
	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, opts.Status)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query orders", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrFailedGetOrder, err)
	}
	defer rows.Close()

	orders := make([]*Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			log.Error("failed to scan order row", zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrFailedGetOrder, err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		log.Error("rows iteration error", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrFailedGetOrder, err)
	}

	log.Debug("list orders success", zap.Int("count", len(orders)))
	return orders, nil
}

func (r *repository) UpdateOrderStatus(
	ctx context.Context,
	id uuid.UUID,
	from, to OrderStatus,
	paymentStatus PaymentStatus,
) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    payment_status = COALESCE(NULLIF($2, ''), payment_status),
		    updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, to, paymentStatus, id, from)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to update order status",
			zap.String("layer", "repository"),
			zap.String("order_id", id.String()),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrFailedUpdateOrder, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedUpdateOrder, err)
	}
	if n == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *repository) SetTrackingNumber(ctx context.Context, id uuid.UUID, tracking string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET tracking_number = $1,
		    updated_at = NOW()
		WHERE id = $2
	`, tracking, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedUpdateOrder, err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

const sessionColumns = `
		id,
		user_id,
		status,
		provider,
		payment_ref,
		items,
		subtotal,
		tax,
		shipping,
		discount,
		total,
		currency,
		shipping_address,
		billing_address,
		payment_method,
		notes,
		expires_at,
		created_at,
		completed_at`

func (r *repository) CreateCheckoutSession(ctx context.Context, s *CheckoutSession) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateCheckoutSession"),
		zap.String("session_id", s.ID.String()),
		zap.Int("item_count", len(s.Items)),
	)

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO checkout_sessions (
			id,
			user_id,
			status,
			provider,
			payment_ref,
			items,
			subtotal,
			tax,
			shipping,
			discount,
			total,
			currency,
			shipping_address,
			billing_address,
			payment_method,
			notes,
			expires_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING created_at
	`,
		s.ID,
		s.UserID,
		s.Status,
		s.Provider,
		s.PaymentRef,
		s.Items,
		s.Subtotal,
		s.Tax,
		s.Shipping,
		s.Discount,
		s.Total,
		s.Currency,
		s.ShippingAddress,
		s.BillingAddress,
		s.PaymentMethod,
		s.Notes,
		s.ExpiresAt,
	).Scan(&s.CreatedAt)
	if err != nil {
		log.Error("failed to insert checkout session", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrFailedCreateSession, err)
	}

	log.Info("checkout session created", zap.String("payment_ref", s.PaymentRef))
	return nil
}

func (r *repository) GetCheckoutSessionByPaymentRef(ctx context.Context, paymentRef string) (*CheckoutSession, error) {
	var s CheckoutSession
	err := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM checkout_sessions WHERE payment_ref = $1`,
		paymentRef,
	).Scan(
		&s.ID,
		&s.UserID,
		&s.Status,
		&s.Provider,
		&s.PaymentRef,
		&s.Items,
		&s.Subtotal,
		&s.Tax,
		&s.Shipping,
		&s.Discount,
		&s.Total,
		&s.Currency,
		&s.ShippingAddress,
		&s.BillingAddress,
		&s.PaymentMethod,
		&s.Notes,
		&s.ExpiresAt,
		&s.CreatedAt,
		&s.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logger.FromCtx(ctx).Error("failed to query checkout session",
			zap.String("layer", "repository"),
			zap.String("payment_ref", paymentRef),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrFailedGetSession, err)
	}
	return &s, nil
}

func (r *repository) UpdateCheckoutSessionStatus(ctx context.Context, id uuid.UUID, from, to SessionStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE checkout_sessions
		SET status = $1
		WHERE id = $2
		  AND status = $3
	`, to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update checkout session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *repository) ExpireCheckoutSessions(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE checkout_sessions
		SET status = $1
		WHERE status = $2
		  AND expires_at < $3
	`, SessionExpired, SessionPending, before)
	if err != nil {
		return 0, fmt.Errorf("failed to expire checkout sessions: %w", err)
	}
	return res.RowsAffected()
}
