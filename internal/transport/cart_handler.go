package transport

import (
	"net/http"

	"storefront/internal/checkout"
	"storefront/internal/domain"
	"storefront/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CartHandler handles HTTP requests for the caller's cart
type CartHandler struct {
	checkout checkout.Service
	logger   *zap.Logger
}

// NewCartHandler creates a new CartHandler
func NewCartHandler(checkoutService checkout.Service, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		checkout: checkoutService,
		logger:   logger,
	}
}

// RegisterRoutes registers all cart routes. Every route requires authentication.
func (h *CartHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/cart", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Post("/items", h.AddItem)
		r.Put("/items/{productID}", h.UpdateItem)
		r.Delete("/items/{productID}", h.RemoveItem)
	})
}

// GetCart returns the caller's cart, empty if none exists yet
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	cart, err := h.checkout.GetCart(r.Context(), user)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}
	h.respondWithCart(w, http.StatusOK, cart)
}

// AddItem adds a product to the cart or increases its quantity
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Add to cart validation failed", zap.Error(err))
		middleware.RespondWithBindError(w, err)
		return
	}

	user := middleware.UserFromContext(r.Context())
	cart, err := h.checkout.AddToCart(r.Context(), user, uuid.MustParse(req.ProductID), req.Quantity)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}
	h.respondWithCart(w, http.StatusOK, cart)
}

// UpdateItem sets the quantity of a product already in the cart
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathUUID(r, "productID")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UpdateItemRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithBindError(w, err)
		return
	}

	user := middleware.UserFromContext(r.Context())
	cart, err := h.checkout.UpdateCartItem(r.Context(), user, productID, req.Quantity)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}
	h.respondWithCart(w, http.StatusOK, cart)
}

// RemoveItem drops a product from the cart. Absent products are ignored.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathUUID(r, "productID")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	user := middleware.UserFromContext(r.Context())
	cart, err := h.checkout.RemoveCartItem(r.Context(), user, productID)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}
	h.respondWithCart(w, http.StatusOK, cart)
}

// ClearCart empties the cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if err := h.checkout.ClearCart(r.Context(), user); err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) respondWithCart(w http.ResponseWriter, status int, cart *domain.Cart) {
	resp, err := toCartResponse(cart)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, status, resp)
}
