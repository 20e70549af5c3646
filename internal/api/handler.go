package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"storefront-be/internal/cart"
	"storefront-be/internal/middleware"
	"storefront-be/internal/order"
	"storefront-be/internal/product"
	"storefront-be/internal/user"
	"storefront-be/internal/utils"
)

const maxRequestBytes = 1 << 20

var errBadRequest = errors.New("invalid request body")

type Handler struct {
	users    user.Service
	products product.Service
	carts    cart.Service
	orders   order.Service
	// secureCookies marks the access token cookie Secure.
	secureCookies bool
}

func NewHandler(
	users user.Service,
	products product.Service,
	carts cart.Service,
	orders order.Service,
	secureCookies bool,
) *Handler {
	return &Handler{
		users:         users,
		products:      products,
		carts:         carts,
		orders:        orders,
		secureCookies: secureCookies,
	}
}

// Register mounts the JSON API on mux. Authentication must already have
// run; protected routes only check the context.
func (h *Handler) Register(mux *http.ServeMux) {
	authed := func(f http.HandlerFunc) http.Handler { return middleware.RequireAuth(f) }
	admin := func(f http.HandlerFunc) http.Handler { return middleware.RequireRole(utils.RoleAdmin)(f) }

	mux.HandleFunc("POST /auth/register", h.register)
	mux.HandleFunc("POST /auth/login", h.login)
	mux.HandleFunc("POST /auth/logout", h.logout)

	mux.HandleFunc("GET /products", h.listProducts)
	mux.HandleFunc("GET /products/{id}", h.getProduct)

	mux.Handle("GET /cart", authed(h.getCart))
	mux.Handle("GET /cart/count", authed(h.getCartCount))
	mux.Handle("POST /cart/items", authed(h.addToCart))
	mux.Handle("PATCH /cart/items/{id}", authed(h.updateCartItem))
	mux.Handle("DELETE /cart/items/{id}", authed(h.removeCartItem))
	mux.Handle("DELETE /cart", authed(h.clearCart))

	mux.Handle("POST /checkout", authed(h.checkout))

	mux.Handle("GET /orders", authed(h.listOrders))
	mux.Handle("GET /orders/{id}", authed(h.getOrder))

	mux.Handle("GET /admin/orders", admin(h.listOrders))
	mux.Handle("PATCH /admin/orders/{id}/status", admin(h.updateOrderStatus))
	mux.Handle("PUT /admin/orders/{id}/tracking", admin(h.setTrackingNumber))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", errBadRequest)
	}
	return nil
}

// pageParams reads limit and page query parameters; invalid values are
// left to the repository defaults.
func pageParams(r *http.Request) (limit, page int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	return limit, page
}

func currentUser(r *http.Request) uint {
	id, _ := utils.GetUserIDFromContext(r.Context())
	return id
}
