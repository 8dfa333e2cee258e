// Package gateway is the request/response side of the sync core: a
// stateless REST client over the authority's product, table, order-line
// and completed-order resources. Every mutation returns the
// authoritative post-mutation state; the client never retries and never
// caches.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/possync/pkg/config"
	"github.com/example/possync/pkg/models"
)

// Client talks to the authority's REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg *config.APIConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// ProductInput carries the writable fields of a product.
type ProductInput struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Category string  `json:"category"`
}

func (c *Client) Products(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	if err := c.do(ctx, http.MethodGet, "/products", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateProduct(ctx context.Context, in ProductInput) (models.Product, error) {
	var out models.Product
	if err := c.do(ctx, http.MethodPost, "/products", in, &out); err != nil {
		return models.Product{}, err
	}
	return out, nil
}

func (c *Client) UpdateProduct(ctx context.Context, id string, in ProductInput) (models.Product, error) {
	var out models.Product
	if err := c.do(ctx, http.MethodPatch, "/products/"+url.PathEscape(id), in, &out); err != nil {
		return models.Product{}, err
	}
	return out, nil
}

func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/products/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Tables(ctx context.Context) ([]models.Table, error) {
	var out []models.Table
	if err := c.do(ctx, http.MethodGet, "/tables", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateTable(ctx context.Context, name string) (models.Table, error) {
	var out models.Table
	in := map[string]string{"name": name}
	if err := c.do(ctx, http.MethodPost, "/tables", in, &out); err != nil {
		return models.Table{}, err
	}
	return out, nil
}

// TableDetail fetches a table including its order lines and their
// product copies.
func (c *Client) TableDetail(ctx context.Context, id string) (models.Table, error) {
	var out models.Table
	if err := c.do(ctx, http.MethodGet, "/tables/"+url.PathEscape(id), nil, &out); err != nil {
		return models.Table{}, err
	}
	return out, nil
}

func (c *Client) DeleteTable(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/tables/"+url.PathEscape(id), nil, nil)
}

// AddOrderItem adds a product to the table's open order. The authority
// increments an existing line for the same product instead of creating
// a duplicate. Returns the full updated table.
func (c *Client) AddOrderItem(ctx context.Context, tableID, productID string, quantity int) (models.Table, error) {
	var out models.Table
	in := map[string]any{"productId": productID, "quantity": quantity}
	path := "/tables/" + url.PathEscape(tableID) + "/order"
	if err := c.do(ctx, http.MethodPost, path, in, &out); err != nil {
		return models.Table{}, err
	}
	return out, nil
}

// UpdateOrderItem sets a line's quantity. Returns the full updated table.
func (c *Client) UpdateOrderItem(ctx context.Context, tableID, itemID string, quantity int) (models.Table, error) {
	var out models.Table
	in := map[string]any{"quantity": quantity}
	path := "/tables/" + url.PathEscape(tableID) + "/order/items/" + url.PathEscape(itemID)
	if err := c.do(ctx, http.MethodPatch, path, in, &out); err != nil {
		return models.Table{}, err
	}
	return out, nil
}

// RemoveOrderItem deletes a line. Returns the full updated table.
func (c *Client) RemoveOrderItem(ctx context.Context, tableID, itemID string) (models.Table, error) {
	var out models.Table
	path := "/tables/" + url.PathEscape(tableID) + "/order/items/" + url.PathEscape(itemID)
	if err := c.do(ctx, http.MethodDelete, path, nil, &out); err != nil {
		return models.Table{}, err
	}
	return out, nil
}

// CompleteOrder archives the table's open order. The archival record is
// computed server-side; totals are never synthesized locally.
func (c *Client) CompleteOrder(ctx context.Context, tableID string) (models.CompletedOrder, error) {
	var out models.CompletedOrder
	path := "/tables/" + url.PathEscape(tableID) + "/order/complete"
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return models.CompletedOrder{}, err
	}
	return out, nil
}

func (c *Client) CompletedOrders(ctx context.Context) ([]models.CompletedOrder, error) {
	var out []models.CompletedOrder
	if err := c.do(ctx, http.MethodGet, "/completed-orders", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CompletedOrderDetail(ctx context.Context, id string) (models.CompletedOrder, error) {
	var out models.CompletedOrder
	if err := c.do(ctx, http.MethodGet, "/completed-orders/"+url.PathEscape(id), nil, &out); err != nil {
		return models.CompletedOrder{}, err
	}
	return out, nil
}

// CompletedOrdersByDate filters by UTC calendar date (YYYY-MM-DD). An
// empty date returns all records.
func (c *Client) CompletedOrdersByDate(ctx context.Context, date string) ([]models.CompletedOrder, error) {
	path := "/completed-orders/date"
	if date != "" {
		path += "?date=" + url.QueryEscape(date)
	}
	var out []models.CompletedOrder
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RemoteError{Message: err.Error(), cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		remoteErr := &RemoteError{
			StatusCode: resp.StatusCode,
			Message:    remoteMessage(resp.Body),
		}
		c.logger.Warn("Remote call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", remoteErr.Message))
		return remoteErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// remoteMessage extracts a human-readable message from an error body,
// falling back to a generic one.
func remoteMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return genericRemoteMessage
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return genericRemoteMessage
}
