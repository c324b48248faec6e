package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestHandler(orders, payment, inventory, delivery *ServiceProxy) *Handler {
	unused := NewServiceProxy("http://unused", http.DefaultClient)
	if orders == nil {
		orders = unused
	}
	if payment == nil {
		payment = unused
	}
	if inventory == nil {
		inventory = unused
	}
	if delivery == nil {
		delivery = unused
	}
	return NewHandler(orders, payment, inventory, delivery, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandler_HandleOrders(t *testing.T) {
	t.Run("proxies GET /orders", func(t *testing.T) {
		ordersServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/orders" {
				t.Errorf("expected /orders, got %s", r.URL.Path)
			}
			if r.Method != http.MethodGet {
				t.Errorf("expected GET, got %s", r.Method)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`[{"id":"1"}]`))
		}))
		defer ordersServer.Close()

		handler := newTestHandler(NewServiceProxy(ordersServer.URL, ordersServer.Client()), nil, nil, nil)

		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		rec := httptest.NewRecorder()

		handler.HandleOrders(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
		if rec.Header().Get("Content-Type") != "application/json" {
			t.Errorf("expected application/json, got %s", rec.Header().Get("Content-Type"))
		}
		if rec.Body.String() != `[{"id":"1"}]` {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("proxies POST /orders with body", func(t *testing.T) {
		ordersServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"userId":"user-001"}` {
				t.Errorf("unexpected body: %s", body)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"new-id"}`))
		}))
		defer ordersServer.Close()

		handler := newTestHandler(NewServiceProxy(ordersServer.URL, ordersServer.Client()), nil, nil, nil)

		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"userId":"user-001"}`))
		rec := httptest.NewRecorder()

		handler.HandleOrders(rec, req)

		if rec.Code != http.StatusCreated {
			t.Errorf("expected status 201, got %d", rec.Code)
		}
	})

	t.Run("returns 502 when orders service unavailable", func(t *testing.T) {
		handler := newTestHandler(NewServiceProxy("http://localhost:99999", &http.Client{}), nil, nil, nil)

		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		rec := httptest.NewRecorder()

		handler.HandleOrders(rec, req)

		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", rec.Code)
		}

		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp["error"] != "service unavailable" {
			t.Errorf("expected 'service unavailable', got %s", resp["error"])
		}
	})
}

func TestHandler_HandlePayment(t *testing.T) {
	t.Run("forwards balance lookups to the payment service", func(t *testing.T) {
		paymentServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/balances/user-001" {
				t.Errorf("expected /balances/user-001, got %s", r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"userId":"user-001","amount":100000}`))
		}))
		defer paymentServer.Close()

		handler := newTestHandler(nil, NewServiceProxy(paymentServer.URL, paymentServer.Client()), nil, nil)

		req := httptest.NewRequest(http.MethodGet, "/balances/user-001", nil)
		rec := httptest.NewRecorder()

		handler.HandlePayment(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})
}

func TestHandler_HandleInventory(t *testing.T) {
	t.Run("forwards stock path unchanged to the inventory service", func(t *testing.T) {
		inventoryServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/stock/ITEM-001" {
				t.Errorf("expected /stock/ITEM-001, got %s", r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"productId":"ITEM-001","quantity":10,"price":1999}`))
		}))
		defer inventoryServer.Close()

		handler := newTestHandler(nil, nil, NewServiceProxy(inventoryServer.URL, inventoryServer.Client()), nil)

		req := httptest.NewRequest(http.MethodGet, "/stock/ITEM-001", nil)
		rec := httptest.NewRecorder()

		handler.HandleInventory(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})

	t.Run("preserves downstream error status", func(t *testing.T) {
		inventoryServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"product not found"}`))
		}))
		defer inventoryServer.Close()

		handler := newTestHandler(nil, nil, NewServiceProxy(inventoryServer.URL, inventoryServer.Client()), nil)

		req := httptest.NewRequest(http.MethodGet, "/stock/unknown", nil)
		rec := httptest.NewRecorder()

		handler.HandleInventory(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("returns 502 when inventory service unavailable", func(t *testing.T) {
		handler := newTestHandler(nil, nil, NewServiceProxy("http://localhost:99999", &http.Client{}), nil)

		req := httptest.NewRequest(http.MethodGet, "/stock/ITEM-001", nil)
		rec := httptest.NewRecorder()

		handler.HandleInventory(rec, req)

		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", rec.Code)
		}
	})
}

func TestHandler_HandleDeliveries(t *testing.T) {
	t.Run("forwards delivery lookups to the delivery service", func(t *testing.T) {
		deliveryServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/deliveries/order-1" {
				t.Errorf("expected /deliveries/order-1, got %s", r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"orderId":"order-1","status":"DELIVERED"}`))
		}))
		defer deliveryServer.Close()

		handler := newTestHandler(nil, nil, nil, NewServiceProxy(deliveryServer.URL, deliveryServer.Client()))

		req := httptest.NewRequest(http.MethodGet, "/deliveries/order-1", nil)
		rec := httptest.NewRecorder()

		handler.HandleDeliveries(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})
}
