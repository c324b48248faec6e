package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Handler exposes the balance and payment read/admin API.
type Handler struct {
	repo   *Repository
	logger *slog.Logger
}

func NewHandler(repo *Repository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

func (h *Handler) HandleListBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.repo.ListBalances(r.Context())
	if err != nil {
		h.logger.Error("failed to list balances", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, balances)
}

func (h *Handler) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	balance, err := h.repo.GetBalance(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get balance", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if balance == nil {
		h.writeError(w, http.StatusNotFound, "balance not found")
		return
	}

	h.writeJSON(w, http.StatusOK, balance)
}

type upsertBalanceRequest struct {
	Amount int64 `json:"amount"`
}

func (h *Handler) HandleUpsertBalance(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	var req upsertBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Amount < 0 {
		h.writeError(w, http.StatusBadRequest, "amount must be non-negative")
		return
	}

	balance, err := h.repo.UpsertBalance(r.Context(), userID, req.Amount)
	if err != nil {
		h.logger.Error("failed to upsert balance", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("balance updated", "user_id", userID, "amount", req.Amount)
	h.writeJSON(w, http.StatusOK, balance)
}

func (h *Handler) HandleListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.repo.ListPayments(r.Context())
	if err != nil {
		h.logger.Error("failed to list payments", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, payments)
}

func (h *Handler) HandleGetPayment(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("orderId")
	if orderID == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	payment, err := h.repo.GetPaymentByOrderID(r.Context(), orderID)
	if err != nil {
		h.logger.Error("failed to get payment", "error", err, "order_id", orderID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if payment == nil {
		h.writeError(w, http.StatusNotFound, "payment not found")
		return
	}

	h.writeJSON(w, http.StatusOK, payment)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
