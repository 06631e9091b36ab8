package transport

import (
	"crypto/subtle"
	"net/http"

	"storefront/internal/checkout"
	"storefront/internal/domain"
	"storefront/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CallbackSecretHeader carries the shared secret the gateway signs callbacks with
const CallbackSecretHeader = "X-Callback-Secret"

const callbackStatusSucceeded = "succeeded"

// PaymentHandler receives asynchronous payment confirmations from the gateway
type PaymentHandler struct {
	checkout checkout.Service
	secret   string
	logger   *zap.Logger
}

// NewPaymentHandler creates a new PaymentHandler. An empty secret rejects every callback.
func NewPaymentHandler(checkoutService checkout.Service, secret string, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		checkout: checkoutService,
		secret:   secret,
		logger:   logger,
	}
}

// RegisterRoutes registers the public callback route
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/payments/callback", h.Callback)
}

// Callback confirms a pending order's payment. Replays of the same
// transaction answer with the order unchanged.
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provided := r.Header.Get(CallbackSecretHeader)
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) != 1 {
		h.logger.Warn("Rejected payment callback with bad secret")
		middleware.RespondWithError(w, http.StatusUnauthorized, "invalid callback secret")
		return
	}

	var req PaymentCallbackRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithBindError(w, err)
		return
	}

	orderID := uuid.MustParse(req.OrderID)
	if req.Status != callbackStatusSucceeded {
		h.logger.Info("Payment callback reported failure",
			zap.String("order_id", req.OrderID),
			zap.String("transaction_id", req.TransactionID),
		)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	amount, err := domain.ParseMoney(req.Amount, req.Currency)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}

	order, err := h.checkout.ConfirmPayment(r.Context(), orderID, req.TransactionID, amount)
	if err != nil {
		h.logger.Warn("Payment callback not applied",
			zap.String("order_id", req.OrderID),
			zap.String("transaction_id", req.TransactionID),
			zap.Error(err),
		)
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}
	respondWithOrder(w, h.logger, http.StatusOK, order)
}
