package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// Handler fronts the four services with a single entry point. Paths are
// forwarded as-is; each service mounts the same routes the gateway exposes.
type Handler struct {
	ordersProxy    *ServiceProxy
	paymentProxy   *ServiceProxy
	inventoryProxy *ServiceProxy
	deliveryProxy  *ServiceProxy
	logger         *slog.Logger
}

func NewHandler(ordersProxy, paymentProxy, inventoryProxy, deliveryProxy *ServiceProxy, logger *slog.Logger) *Handler {
	return &Handler{
		ordersProxy:    ordersProxy,
		paymentProxy:   paymentProxy,
		inventoryProxy: inventoryProxy,
		deliveryProxy:  deliveryProxy,
		logger:         logger,
	}
}

func (h *Handler) HandleOrders(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.ordersProxy)
}

func (h *Handler) HandlePayment(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.paymentProxy)
}

func (h *Handler) HandleInventory(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.inventoryProxy)
}

func (h *Handler) HandleDeliveries(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.deliveryProxy)
}

func (h *Handler) proxyRequest(w http.ResponseWriter, r *http.Request, proxy *ServiceProxy) {
	path := r.URL.Path

	resp, err := proxy.ForwardRequest(r.Context(), r, path)
	if err != nil {
		h.logger.Error("failed to forward request", "error", err, "path", path)
		h.writeError(w, http.StatusBadGateway, "service unavailable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	w.WriteHeader(resp.StatusCode)

	h.logger.Info("request proxied", "method", r.Method, "path", path, "status", resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Error("failed to copy response body", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}
