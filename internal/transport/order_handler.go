package transport

import (
	"errors"
	"net/http"

	"storefront/internal/checkout"
	"storefront/internal/domain"
	"storefront/internal/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// OrderHandler handles HTTP requests for checkout and the order lifecycle
type OrderHandler struct {
	checkout checkout.Service
	logger   *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(checkoutService checkout.Service, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		checkout: checkoutService,
		logger:   logger,
	}
}

// RegisterRoutes registers all order routes. checkoutLimiter wraps only the
// routes that charge or create orders.
func (h *OrderHandler) RegisterRoutes(r chi.Router, authMiddleware, checkoutLimiter func(http.Handler) http.Handler) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(authMiddleware)

		r.With(checkoutLimiter).Post("/", h.PlaceOrder)
		r.Get("/", h.ListOrders)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetOrder)
			r.Get("/history", h.GetHistory)
			r.Get("/payments", h.GetPayments)
			r.With(checkoutLimiter).Post("/pay", h.PayOrder)
			r.Post("/cancel", h.CancelOrder)
			r.Post("/refund", h.RefundOrder)
		})
	})
}

// PlaceOrder checks out the caller's cart. A repeated Idempotency-Key
// answers with the original order and the replay header.
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	key, err := idempotencyKey(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req PlaceOrderRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil && !errors.Is(err, middleware.ErrEmptyBody) {
		middleware.RespondWithBindError(w, err)
		return
	}

	user := middleware.UserFromContext(r.Context())
	result, err := h.checkout.PlaceOrder(r.Context(), user, checkout.PlaceOrderInput{
		IdempotencyKey: key,
		PaymentMethod:  req.PaymentMethod,
	})
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}

	if result.PaymentDeclined {
		middleware.RespondWithErrorDetails(w, http.StatusPaymentRequired, domain.ErrPaymentFailed.Error(), map[string]interface{}{
			"order_id": result.Order.ID.String(),
		})
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		w.Header().Set(middleware.IdempotentReplayHeader, "true")
		status = http.StatusOK
	}
	respondWithOrder(w, h.logger, status, result.Order)
}

// ListOrders returns a page of the caller's orders, or every order for admins
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	user := middleware.UserFromContext(r.Context())
	orders, err := h.checkout.ListOrders(r.Context(), user, limit, offset)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}

	resp := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		o, err := toOrderResponse(order)
		if err != nil {
			middleware.RespondWithDomainError(w, h.logger, err)
			return
		}
		resp = append(resp, o)
	}
	middleware.RespondWithJSON(w, http.StatusOK, resp)
}

// GetOrder returns one order
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.checkout.GetOrder(r.Context(), middleware.UserFromContext(r.Context()), orderID)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}
	respondWithOrder(w, h.logger, http.StatusOK, order)
}

// GetHistory returns the statuses the order went through
func (h *OrderHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	history, err := h.checkout.OrderHistory(r.Context(), middleware.UserFromContext(r.Context()), orderID)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}
	if history == nil {
		history = []domain.OrderHistoryEntry{}
	}
	middleware.RespondWithJSON(w, http.StatusOK, history)
}

// GetPayments returns the charges and refunds recorded for the order
func (h *OrderHandler) GetPayments(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, err := h.checkout.Payments(r.Context(), middleware.UserFromContext(r.Context()), orderID)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}

	resp := make([]PaymentResponse, 0, len(txs))
	for _, tx := range txs {
		resp = append(resp, toPaymentResponse(tx))
	}
	middleware.RespondWithJSON(w, http.StatusOK, resp)
}

// PayOrder charges a pending order
func (h *OrderHandler) PayOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req PayOrderRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithBindError(w, err)
		return
	}

	order, err := h.checkout.PayOrder(r.Context(), middleware.UserFromContext(r.Context()), orderID, req.PaymentMethod)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}
	respondWithOrder(w, h.logger, http.StatusOK, order)
}

// CancelOrder cancels a pending or paid order and returns its stock
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	user := middleware.UserFromContext(r.Context())
	order, err := h.checkout.CancelOrder(r.Context(), user, orderID)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}

	h.logger.Info("Order cancelled",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", user.ID.String()),
	)
	respondWithOrder(w, h.logger, http.StatusOK, order)
}

// RefundOrder refunds part or all of a paid order
func (h *OrderHandler) RefundOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req RefundRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithBindError(w, err)
		return
	}

	amount, err := domain.ParseMoney(req.Amount, req.Currency)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}

	tx, err := h.checkout.RefundOrder(r.Context(), middleware.UserFromContext(r.Context()), orderID, amount)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, toPaymentResponse(tx))
}

func respondWithOrder(w http.ResponseWriter, logger *zap.Logger, status int, order *domain.Order) {
	resp, err := toOrderResponse(order)
	if err != nil {
		middleware.RespondWithDomainError(w, logger, err)
		return
	}
	middleware.RespondWithJSON(w, status, resp)
}
