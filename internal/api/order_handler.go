package api

import (
	"net/http"

	"storefront-be/internal/order"
	"storefront-be/internal/payment"
	"storefront-be/internal/utils"

	"github.com/google/uuid"
)

type checkoutRequest struct {
	Provider        payment.Provider    `json:"provider"`
	ShippingAddress order.Address       `json:"shipping_address"`
	BillingAddress  order.Address       `json:"billing_address"`
	PaymentMethod   order.PaymentMethod `json:"payment_method"`
	Notes           *string             `json:"notes"`
}

type updateStatusRequest struct {
	Status order.OrderStatus `json:"status"`
}

type trackingRequest struct {
	TrackingNumber string `json:"tracking_number"`
}

func orderID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, order.ErrOrderNotFound
	}
	return id, nil
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.orders.StartCheckout(r.Context(), order.StartCheckoutParams{
		UserID:          currentUser(r),
		Provider:        req.Provider,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, page := pageParams(r)
	orders, err := h.orders.ListOrders(r.Context(), order.ListOptions{
		Status: order.OrderStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Page:   page,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{"orders": order.ToOrderSummaries(orders)})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdateOrderStatus(r.Context(), id, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) setTrackingNumber(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req trackingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.SetTrackingNumber(r.Context(), id, req.TrackingNumber)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, o)
}
