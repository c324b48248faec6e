package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"fulfillment/internal/domain"
	"fulfillment/internal/telemetry"
)

// Store is the slice of the order repository the HTTP layer needs.
type Store interface {
	Create(ctx context.Context, order *domain.Order) error
	Transition(ctx context.Context, id string, status domain.OrderStatus, comment string) (*domain.Order, error)
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context) ([]domain.Order, error)
}

// Publisher emits order snapshots, keyed by order id.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Handler struct {
	store    Store
	producer Publisher
	logger   *slog.Logger
}

func NewHandler(store Store, producer Publisher, logger *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		producer: producer,
		logger:   logger,
	}
}

type createOrderRequest struct {
	UserID          string             `json:"userId"`
	DeliveryAddress string             `json:"deliveryAddress"`
	Items           []domain.OrderItem `json:"items"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.UserID == "" || len(req.Items) == 0 {
		h.writeError(w, http.StatusBadRequest, "userId and items are required")
		return
	}
	for _, item := range req.Items {
		if item.ProductID == "" || item.Quantity <= 0 || item.Price < 0 {
			h.writeError(w, http.StatusBadRequest, "invalid line item")
			return
		}
	}

	now := time.Now().UTC()
	order := &domain.Order{
		UserID:          req.UserID,
		DeliveryAddress: req.DeliveryAddress,
		Items:           req.Items,
		TotalAmount:     domain.OrderTotal(req.Items),
		Status:          domain.OrderStatusRegistered,
		CreatedAt:       now,
		StatusHistory: []domain.StatusHistoryEntry{
			{Status: domain.OrderStatusRegistered, Timestamp: now, Comment: "Order created"},
		},
	}

	if err := h.store.Create(r.Context(), order); err != nil {
		h.logger.Error("failed to create order", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	telemetry.RecordOrderStarted(r.Context())

	if err := h.producer.Publish(r.Context(), order.ID, domain.Snapshot(order)); err != nil {
		h.logger.Error("failed to publish order created event", "error", err, "order_id", order.ID)
	}

	h.logger.Info("order created", "order_id", order.ID, "user_id", order.UserID, "total_amount", order.TotalAmount)
	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type updateStatusRequest struct {
	Status  domain.OrderStatus `json:"status"`
	Comment string             `json:"comment"`
}

// HandleUpdateStatus is the synchronous status-update contract the saga
// steps call after completing their local work.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.store.Transition(r.Context(), id, req.Status, req.Comment)
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound):
			h.writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, ErrInvalidTransition):
			h.logger.Warn("rejected status transition", "order_id", id, "status", req.Status, "error", err)
			h.writeError(w, http.StatusConflict, "invalid status transition")
		default:
			h.logger.Error("failed to update order status", "error", err, "id", id)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.logger.Info("order status updated", "order_id", order.ID, "status", order.Status, "comment", req.Comment)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, list)
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
