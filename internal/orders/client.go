package orders

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/angelmondragon/packfinderz-storefront/internal/transport"
	"github.com/angelmondragon/packfinderz-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/types"
	"github.com/google/uuid"
)

const (
	ordersPath   = "/orders"
	customerPath = "/orders/customer"
)

type requester interface {
	DoJSON(ctx context.Context, req transport.Request, out any) error
}

// Client reads and places orders. Orders are created and mutated by the
// backend only; the client adopts whatever the backend returns.
type Client struct {
	api requester
}

func NewClient(api requester) (*Client, error) {
	if api == nil {
		return nil, fmt.Errorf("api client is required")
	}
	return &Client{api: api}, nil
}

// NewIdempotencyKey returns a key for one logical placement attempt.
func NewIdempotencyKey() string {
	return uuid.NewString()
}

// Place converts the principal's current cart into an order. The same key
// must be reused when retrying the same attempt.
func (c *Client) Place(ctx context.Context, idempotencyKey string) (*types.Order, error) {
	if strings.TrimSpace(idempotencyKey) == "" {
		idempotencyKey = NewIdempotencyKey()
	}
	headers := http.Header{}
	headers.Set(transport.HeaderIdempotencyKey, idempotencyKey)

	var order types.Order
	if err := c.api.DoJSON(ctx, transport.Request{
		Method:  http.MethodPost,
		Path:    ordersPath,
		Headers: headers,
	}, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// Get fetches a placed order by code.
func (c *Client) Get(ctx context.Context, code string) (*types.Order, error) {
	if strings.TrimSpace(code) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order code is required")
	}
	var order types.Order
	if err := c.api.DoJSON(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   ordersPath + "/" + url.PathEscape(code),
	}, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListMine lists the orders of the signed-in principal. email narrows the
// lookup for backends that key orders by customer email; it may be empty.
func (c *Client) ListMine(ctx context.Context, email string) ([]types.Order, error) {
	var query url.Values
	if e := strings.TrimSpace(email); e != "" {
		query = url.Values{"email": []string{e}}
	}
	var out []types.Order
	if err := c.api.DoJSON(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   customerPath,
		Query:  query,
	}, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []types.Order{}
	}
	return out, nil
}

// RequestStatus asks the backend to move an order to status. The returned
// order carries the status the backend actually settled on.
func (c *Client) RequestStatus(ctx context.Context, code string, status enums.OrderStatus) (*types.Order, error) {
	if strings.TrimSpace(code) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order code is required")
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order status %q", status))
	}
	var order types.Order
	if err := c.api.DoJSON(ctx, transport.Request{
		Method: http.MethodPut,
		Path:   ordersPath + "/" + url.PathEscape(code) + "/status",
		Query:  url.Values{"status": []string{status.String()}},
	}, &order); err != nil {
		return nil, err
	}
	return &order, nil
}
