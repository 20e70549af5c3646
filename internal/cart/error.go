package cart

import "errors"

var (
	// -- Authentication/Authorization --
	ErrUserNotAuthenticated = errors.New("user not authenticated")

	// -- Validation & Input --
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	ErrInvalidSize     = errors.New("invalid size for this product")
	ErrInvalidColor    = errors.New("invalid color for this product")
	ErrInvalidLineID   = errors.New("invalid cart item id")

	// -- Resource State --
	ErrCartItemNotFound = errors.New("cart item not found")
	ErrProductNotFound  = errors.New("product not found")

	// -- Business Rules --
	ErrOutOfStock        = errors.New("product is out of stock")
	ErrInsufficientStock = errors.New("insufficient stock")

	// -- Database & Operation Failures --
	ErrFailedGetCart        = errors.New("failed to get cart")
	ErrFailedUpsertCartItem = errors.New("failed to save cart item")
	ErrFailedUpdateCart     = errors.New("failed to update cart item")
	ErrFailedRemoveCart     = errors.New("failed to remove cart item")
	ErrFailedClearCart      = errors.New("failed to clear cart")
)
