// Package orderclient calls the order service over HTTP/JSON.
package orderclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/rest/httpc"

	"github.com/iliyamo/seat-ticketing/internal/model"
)

const (
	createPath = "/api/orders/create"
	cancelPath = "/api/orders/cancel"
)

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	timeout time.Duration
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

// Create submits an order and returns the service reply. A reply with a
// non-zero code is returned as is; only transport failures are errors.
func (c *Client) Create(ctx context.Context, req model.OrderCreateRequest) (model.OrderResult, error) {
	return c.post(ctx, createPath, req)
}

// Cancel cancels an unpaid order.
func (c *Client) Cancel(ctx context.Context, orderNumber int64) (model.OrderResult, error) {
	return c.post(ctx, cancelPath, struct {
		OrderNumber int64 `json:"orderNumber"`
	}{orderNumber})
}

func (c *Client) post(ctx context.Context, path string, body any) (model.OrderResult, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return model.OrderResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return model.OrderResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpc.DoRequest(req)
	if err != nil {
		return model.OrderResult{}, fmt.Errorf("order service %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.OrderResult{}, fmt.Errorf("order service %s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out model.OrderResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.OrderResult{}, fmt.Errorf("order service %s: decode reply: %w", path, err)
	}
	return out, nil
}
