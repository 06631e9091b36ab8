package transport

import (
	"net/http"

	"storefront/internal/checkout"
	"storefront/internal/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AdminHandler handles fulfilment and stock management
type AdminHandler struct {
	checkout checkout.Service
	logger   *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(checkoutService checkout.Service, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		checkout: checkoutService,
		logger:   logger,
	}
}

// RegisterRoutes registers all admin routes behind authentication and the admin role check
func (h *AdminHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(middleware.RequireAdmin(h.logger))

		r.Post("/orders/{id}/ship", h.ShipOrder)
		r.Post("/orders/{id}/deliver", h.DeliverOrder)
		r.Put("/products/{id}/stock", h.RestockProduct)
	})
}

// ShipOrder moves a paid order to shipped
func (h *AdminHandler) ShipOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req ShipRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithBindError(w, err)
		return
	}

	order, err := h.checkout.ShipOrder(r.Context(), middleware.UserFromContext(r.Context()), orderID, req.TrackingNumber)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}
	respondWithOrder(w, h.logger, http.StatusOK, order)
}

// DeliverOrder moves a shipped order to delivered
func (h *AdminHandler) DeliverOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.checkout.DeliverOrder(r.Context(), middleware.UserFromContext(r.Context()), orderID)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}
	respondWithOrder(w, h.logger, http.StatusOK, order)
}

// RestockProduct replaces a product's stock count
func (h *AdminHandler) RestockProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req RestockRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithBindError(w, err)
		return
	}

	product, err := h.checkout.RestockProduct(r.Context(), middleware.UserFromContext(r.Context()), productID, *req.Stock)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}

	h.logger.Info("Product restocked",
		zap.String("product_id", product.ID.String()),
		zap.Int("stock", product.Stock),
	)
	middleware.RespondWithJSON(w, http.StatusOK, ProductStockResponse{
		ID:    product.ID.String(),
		Name:  product.Name,
		Stock: product.Stock,
	})
}
