package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"fulfillment/internal/domain"
)

// Client calls the orders service status-update contract. Steps use it to
// push their resulting status synchronously, in addition to the async event.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// UpdateStatus reports a step outcome for the order. A 409 from the orders
// service means the write lost to a newer transition and maps to
// ErrInvalidTransition, which callers treat as benign.
func (c *Client) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, comment string) error {
	body, err := json.Marshal(map[string]string{
		"status":  string(status),
		"comment": comment,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/orders/%s/status", c.baseURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	case http.StatusConflict:
		return fmt.Errorf("%w: order %s -> %s", ErrInvalidTransition, orderID, status)
	default:
		return fmt.Errorf("orders service returned status %d for order %s", resp.StatusCode, orderID)
	}
}
