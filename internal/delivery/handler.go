package delivery

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Handler exposes the delivery read API.
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

func (h *Handler) HandleListDeliveries(w http.ResponseWriter, r *http.Request) {
	deliveries, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list deliveries", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, deliveries)
}

func (h *Handler) HandleGetDelivery(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("orderId")
	if orderID == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	delivery, err := h.repo.GetByOrderID(r.Context(), orderID)
	if err != nil {
		h.logger.Error("failed to get delivery", "error", err, "order_id", orderID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if delivery == nil {
		h.writeError(w, http.StatusNotFound, "delivery not found")
		return
	}

	h.writeJSON(w, http.StatusOK, delivery)
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
