package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fulfillment/internal/domain"
)

type fakeStore struct {
	orders      map[string]*domain.Order
	createErr   error
	nextID      int
	transitions []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: make(map[string]*domain.Order)}
}

func (s *fakeStore) Create(ctx context.Context, order *domain.Order) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.nextID++
	order.ID = fmt.Sprintf("order-%d", s.nextID)
	copied := *order
	s.orders[order.ID] = &copied
	return nil
}

func (s *fakeStore) Transition(ctx context.Context, id string, status domain.OrderStatus, comment string) (*domain.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if !domain.CanTransition(order.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, status)
	}
	order.Status = status
	order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Comment:   comment,
	})
	s.transitions = append(s.transitions, id+":"+string(status))
	copied := *order
	return &copied, nil
}

func (s *fakeStore) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	copied := *order
	return &copied, nil
}

func (s *fakeStore) List(ctx context.Context) ([]domain.Order, error) {
	var list []domain.Order
	for _, order := range s.orders {
		list = append(list, *order)
	}
	return list, nil
}

type publishedEvent struct {
	key   string
	event any
}

type fakePublisher struct {
	events []publishedEvent
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, key string, event any) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{key: key, event: event})
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandler_HandleCreate(t *testing.T) {
	t.Run("creates order and publishes snapshot", func(t *testing.T) {
		store := newFakeStore()
		producer := &fakePublisher{}
		handler := NewHandler(store, producer, testLogger())

		body := `{"userId":"user-001","deliveryAddress":"1 Main St","items":[{"productId":"ITEM-001","quantity":2,"price":1999}]}`
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
		rec := httptest.NewRecorder()

		handler.HandleCreate(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var order domain.Order
		if err := json.Unmarshal(rec.Body.Bytes(), &order); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if order.Status != domain.OrderStatusRegistered {
			t.Errorf("expected REGISTERED, got %s", order.Status)
		}
		if order.TotalAmount != 3998 {
			t.Errorf("expected total 3998, got %d", order.TotalAmount)
		}
		if len(order.StatusHistory) != 1 || order.StatusHistory[0].Comment != "Order created" {
			t.Errorf("unexpected status history: %+v", order.StatusHistory)
		}

		if len(producer.events) != 1 {
			t.Fatalf("expected 1 published event, got %d", len(producer.events))
		}
		if producer.events[0].key != order.ID {
			t.Errorf("expected event keyed by order id %s, got %s", order.ID, producer.events[0].key)
		}
		snapshot, ok := producer.events[0].event.(domain.OrderSnapshot)
		if !ok {
			t.Fatalf("expected OrderSnapshot, got %T", producer.events[0].event)
		}
		if snapshot.Status != domain.OrderStatusRegistered {
			t.Errorf("expected snapshot status REGISTERED, got %s", snapshot.Status)
		}
	})

	t.Run("rejects missing user id", func(t *testing.T) {
		handler := NewHandler(newFakeStore(), &fakePublisher{}, testLogger())

		body := `{"items":[{"productId":"ITEM-001","quantity":1,"price":100}]}`
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
		rec := httptest.NewRecorder()

		handler.HandleCreate(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("rejects empty items", func(t *testing.T) {
		handler := NewHandler(newFakeStore(), &fakePublisher{}, testLogger())

		body := `{"userId":"user-001","items":[]}`
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
		rec := httptest.NewRecorder()

		handler.HandleCreate(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		handler := NewHandler(newFakeStore(), &fakePublisher{}, testLogger())

		body := `{"userId":"user-001","items":[{"productId":"ITEM-001","quantity":0,"price":100}]}`
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
		rec := httptest.NewRecorder()

		handler.HandleCreate(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("still returns 201 when publish fails", func(t *testing.T) {
		store := newFakeStore()
		producer := &fakePublisher{err: errors.New("broker down")}
		handler := NewHandler(store, producer, testLogger())

		body := `{"userId":"user-001","items":[{"productId":"ITEM-001","quantity":1,"price":100}]}`
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
		rec := httptest.NewRecorder()

		handler.HandleCreate(rec, req)

		if rec.Code != http.StatusCreated {
			t.Errorf("expected status 201, got %d", rec.Code)
		}
	})
}

func TestHandler_HandleGet(t *testing.T) {
	t.Run("returns the order", func(t *testing.T) {
		store := newFakeStore()
		store.orders["order-1"] = &domain.Order{ID: "order-1", UserID: "user-001", Status: domain.OrderStatusPaid}
		handler := NewHandler(store, &fakePublisher{}, testLogger())

		req := httptest.NewRequest(http.MethodGet, "/orders/order-1", nil)
		req.SetPathValue("id", "order-1")
		rec := httptest.NewRecorder()

		handler.HandleGet(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}

		var order domain.Order
		if err := json.Unmarshal(rec.Body.Bytes(), &order); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if order.Status != domain.OrderStatusPaid {
			t.Errorf("expected PAID, got %s", order.Status)
		}
	})

	t.Run("returns 404 for unknown order", func(t *testing.T) {
		handler := NewHandler(newFakeStore(), &fakePublisher{}, testLogger())

		req := httptest.NewRequest(http.MethodGet, "/orders/missing", nil)
		req.SetPathValue("id", "missing")
		rec := httptest.NewRecorder()

		handler.HandleGet(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})
}

func TestHandler_HandleUpdateStatus(t *testing.T) {
	t.Run("applies a valid transition", func(t *testing.T) {
		store := newFakeStore()
		store.orders["order-1"] = &domain.Order{ID: "order-1", Status: domain.OrderStatusRegistered}
		handler := NewHandler(store, &fakePublisher{}, testLogger())

		body := `{"status":"PAID","comment":"Payment completed"}`
		req := httptest.NewRequest(http.MethodPatch, "/orders/order-1/status", strings.NewReader(body))
		req.SetPathValue("id", "order-1")
		rec := httptest.NewRecorder()

		handler.HandleUpdateStatus(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if store.orders["order-1"].Status != domain.OrderStatusPaid {
			t.Errorf("expected stored status PAID, got %s", store.orders["order-1"].Status)
		}
	})

	t.Run("returns 409 for an invalid transition", func(t *testing.T) {
		store := newFakeStore()
		store.orders["order-1"] = &domain.Order{ID: "order-1", Status: domain.OrderStatusCompleted}
		handler := NewHandler(store, &fakePublisher{}, testLogger())

		body := `{"status":"PAID"}`
		req := httptest.NewRequest(http.MethodPatch, "/orders/order-1/status", strings.NewReader(body))
		req.SetPathValue("id", "order-1")
		rec := httptest.NewRecorder()

		handler.HandleUpdateStatus(rec, req)

		if rec.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d", rec.Code)
		}
	})

	t.Run("returns 404 for an unknown order", func(t *testing.T) {
		handler := NewHandler(newFakeStore(), &fakePublisher{}, testLogger())

		body := `{"status":"PAID"}`
		req := httptest.NewRequest(http.MethodPatch, "/orders/missing/status", strings.NewReader(body))
		req.SetPathValue("id", "missing")
		rec := httptest.NewRecorder()

		handler.HandleUpdateStatus(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})
}
