package api

import (
	"net/http"

	"storefront-be/internal/cart"
	"storefront-be/internal/utils"

	"github.com/google/uuid"
)

type addToCartRequest struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Quantity  int    `json:"quantity"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func lineID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, cart.ErrInvalidLineID
	}
	return id, nil
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.GetCart(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) getCartCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.carts.GetCartCount(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	line, err := h.carts.AddToCart(r.Context(), cart.AddToCartParams{
		UserID:    currentUser(r),
		ProductID: req.ProductID,
		Size:      req.Size,
		Color:     req.Color,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, line)
}

// updateCartItem returns the recalculated cart. A quantity of zero or less
// removes the line.
func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := lineID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateQuantityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	userID := currentUser(r)
	err = h.carts.UpdateCartQuantity(r.Context(), cart.UpdateQuantityParams{
		UserID:   userID,
		LineID:   id,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.carts.GetCart(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := lineID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.carts.RemoveFromCart(r.Context(), currentUser(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.ClearCart(r.Context(), currentUser(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
