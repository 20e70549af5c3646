package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront-be/internal/logger"
	"storefront-be/internal/product"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Repository is the persistence gateway for cart_items.
type Repository interface {
	GetCartLines(ctx context.Context, userID uint) ([]*CartLine, error)
	// UpsertCartLine merges by natural key in a single statement.
	// It returns ErrInsufficientStock when the merged quantity would exceed
	// params.MaxQuantity.
	UpsertCartLine(ctx context.Context, params UpsertCartLineParams) (*CartLine, error)
	UpdateCartLineQuantity(ctx context.Context, userID uint, lineID uuid.UUID, quantity int) (*CartLine, error)
	RemoveCartLine(ctx context.Context, userID uint, lineID uuid.UUID) error
	ClearCart(ctx context.Context, userID uint) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const lineReturning = `
	RETURNING
		id,
		user_id,
		product_id,
		size,
		color,
		quantity,
		added_at,
		updated_at`

func scanLine(row *sql.Row) (*CartLine, error) {
	var l CartLine
	err := row.Scan(
		&l.ID,
		&l.UserID,
		&l.ProductID,
		&l.Size,
		&l.Color,
		&l.Quantity,
		&l.AddedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *repository) GetCartLines(ctx context.Context, userID uint) ([]*CartLine, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetCartLines"),
		zap.Uint("user_id", userID),
	)
	start := time.Now()

	query := `
	SELECT
		c.id,
		c.user_id,
		c.product_id,
		c.size,
		c.color,
		c.quantity,
		c.added_at,
		c.updated_at,
		p.id,
		p.name,
		p.description,
		p.price,
		p.discount_price,
		p.stock,
		p.sizes,
		p.colors,
		p.image_url,
		p.active,
		p.created_at,
		p.updated_at
	FROM cart_items c
	JOIN products p ON p.id = c.product_id
	WHERE c.user_id = $1
	ORDER BY c.added_at ASC, c.id ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrFailedGetCart, err)
	}
	defer rows.Close()

	lines := make([]*CartLine, 0)
	for rows.Next() {
		l := &CartLine{Product: &product.Product{}}
		p := l.Product
		if err := rows.Scan(
			&l.ID,
			&l.UserID,
			&l.ProductID,
			&l.Size,
			&l.Color,
			&l.Quantity,
			&l.AddedAt,
			&l.UpdatedAt,
			&p.ID,
			&p.Name,
			&p.Description,
			&p.Price,
			&p.DiscountPrice,
			&p.Stock,
			pq.Array(&p.Sizes),
			pq.Array(&p.Colors),
			&p.ImageURL,
			&p.Active,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			log.Error("row scan failed", zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrFailedGetCart, err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		log.Error("rows iteration failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrFailedGetCart, err)
	}

	log.Debug("query success",
		zap.Int("rows", len(lines)),
		zap.Duration("duration", time.Since(start)),
	)
	return lines, nil
}

func (r *repository) UpsertCartLine(ctx context.Context, params UpsertCartLineParams) (*CartLine, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "UpsertCartLine"),
		zap.Uint("user_id", params.UserID),
		zap.String("product_id", params.ProductID),
		zap.String("size", params.Size),
		zap.String("color", params.Color),
		zap.Int("quantity", params.Quantity),
	)

	// The conflict branch only fires when the bound still holds, so a
	// concurrent add that would overshoot stock returns no row.
	query := `
	INSERT INTO cart_items (
		user_id,
		product_id,
		size,
		color,
		quantity
	)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (user_id, product_id, size, color)
	DO UPDATE SET
		quantity = cart_items.quantity + EXCLUDED.quantity,
		updated_at = NOW()
	WHERE $6::int = 0 OR cart_items.quantity + EXCLUDED.quantity <= $6::int` + lineReturning

	line, err := scanLine(r.db.QueryRowContext(
		ctx,
		query,
		params.UserID,
		params.ProductID,
		params.Size,
		params.Color,
		params.Quantity,
		params.MaxQuantity,
	))
	if errors.Is(err, sql.ErrNoRows) {
		log.Warn("merged quantity exceeds stock bound", zap.Int("max_quantity", params.MaxQuantity))
		return nil, ErrInsufficientStock
	}
	if err != nil {
		log.Error("failed to upsert cart item", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrFailedUpsertCartItem, err)
	}

	log.Info("cart item saved",
		zap.String("cart_item_id", line.ID.String()),
		zap.Int("final_qty", line.Quantity),
	)
	return line, nil
}

func (r *repository) UpdateCartLineQuantity(
	ctx context.Context,
	userID uint,
	lineID uuid.UUID,
	quantity int,
) (*CartLine, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	query := `
	UPDATE cart_items
	SET quantity = $1,
	    updated_at = NOW()
	WHERE id = $2 AND user_id = $3` + lineReturning

	line, err := scanLine(r.db.QueryRowContext(ctx, query, quantity, lineID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartItemNotFound
	}
	if err != nil {
		logger.FromCtx(ctx).Error("failed to update cart item",
			zap.String("layer", "repository"),
			zap.String("cart_item_id", lineID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrFailedUpdateCart, err)
	}
	return line, nil
}

// RemoveCartLine succeeds when the line is already gone.
func (r *repository) RemoveCartLine(ctx context.Context, userID uint, lineID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE id = $1 AND user_id = $2
	`, lineID, userID)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to remove cart item",
			zap.String("layer", "repository"),
			zap.String("cart_item_id", lineID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrFailedRemoveCart, err)
	}
	return nil
}

func (r *repository) ClearCart(ctx context.Context, userID uint) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to clear cart",
			zap.String("layer", "repository"),
			zap.Uint("user_id", userID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrFailedClearCart, err)
	}

	if n, err := res.RowsAffected(); err == nil {
		logger.FromCtx(ctx).Debug("cart cleared", zap.Uint("user_id", userID), zap.Int64("rows", n))
	}
	return nil
}
