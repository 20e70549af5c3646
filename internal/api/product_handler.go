package api

import (
	"net/http"

	"storefront-be/internal/product"
	"storefront-be/internal/utils"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	limit, page := pageParams(r)
	products, err := h.products.ListProducts(r.Context(), product.ListOptions{
		Search: r.URL.Query().Get("search"),
		Limit:  limit,
		Page:   page,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, p)
}
