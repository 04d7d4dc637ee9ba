package cart

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/angelmondragon/packfinderz-storefront/internal/transport"
	"github.com/angelmondragon/packfinderz-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	"github.com/angelmondragon/packfinderz-storefront/pkg/types"
	"github.com/angelmondragon/packfinderz-storefront/pkg/validators"
)

const (
	cartPath          = "/cart"
	addPath           = "/cart/add"
	updatePath        = "/cart/update"
	removePathPrefix  = "/cart/remove/"
	addressPathPrefix = "/cart/update/address/"
	paymentPathPrefix = "/cart/update/payment/"
)

type requester interface {
	Do(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// Synchronizer keeps the local cart view in step with the server cart. Every
// mutation is confirmed by the backend and the local state is replaced with
// the server's response as a whole.
type Synchronizer struct {
	api  requester
	logg *logger.Logger

	mu        sync.RWMutex
	confirmed *types.Cart
	pending   *View
}

func NewSynchronizer(api requester, logg *logger.Logger) (*Synchronizer, error) {
	if api == nil {
		return nil, fmt.Errorf("api client is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Synchronizer{api: api, logg: logg}, nil
}

// Fetch loads the principal's cart. A cart without entries and a freshly
// created empty cart look the same to callers.
func (s *Synchronizer) Fetch(ctx context.Context) (*types.Cart, error) {
	resp, err := s.api.Do(ctx, transport.Request{Method: http.MethodGet, Path: cartPath})
	if err != nil {
		s.discardPending()
		return nil, err
	}
	var c types.Cart
	if err := resp.Decode(&c); err != nil {
		s.discardPending()
		return nil, err
	}
	return s.replace(&c), nil
}

// Add asks the backend to add quantity units of productCode. Existing entries
// are merged server-side; the client never pre-merges. Only a line already in
// the cart is previewed: a new product's price is unknown here, so its
// preview belongs to ApplyOptimistic.
func (s *Synchronizer) Add(ctx context.Context, productCode types.Code, quantity int) (*types.Cart, error) {
	body := types.CartEntryRequest{Cart: s.cartCode(), Product: productCode, Quantity: quantity}
	if err := validators.Struct(body); err != nil {
		return nil, err
	}
	s.previewLine(productCode, func(v View) View {
		return v.withDelta(types.Product{Code: productCode}, quantity, false)
	})
	return s.mutate(ctx, transport.Request{Method: http.MethodPost, Path: addPath, Body: body})
}

// UpdateQuantity sets the quantity of an existing entry. Dropping to zero is
// a Remove, never an update.
func (s *Synchronizer) UpdateQuantity(ctx context.Context, entryCode string, productCode types.Code, quantity int) (*types.Cart, error) {
	if strings.TrimSpace(entryCode) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entry code is required")
	}
	body := types.CartEntryRequest{Cart: s.cartCode(), Product: productCode, Quantity: quantity, Code: entryCode}
	if err := validators.Struct(body); err != nil {
		return nil, err
	}
	s.previewLine(productCode, func(v View) View {
		return v.withDelta(types.Product{Code: productCode}, quantity, true)
	})
	return s.mutate(ctx, transport.Request{Method: http.MethodPut, Path: updatePath, Body: body})
}

// Remove deletes an entry. Removing an entry that is already gone is not an
// error: the cart is re-fetched and returned unchanged.
func (s *Synchronizer) Remove(ctx context.Context, entryCode string) (*types.Cart, error) {
	if strings.TrimSpace(entryCode) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entry code is required")
	}
	s.setPending(func(v View) View { return v.withoutEntry(entryCode) })

	c, err := s.mutate(ctx, transport.Request{
		Method: http.MethodDelete,
		Path:   removePathPrefix + url.PathEscape(entryCode),
	})
	if pkgerrors.CodeOf(err) == pkgerrors.CodeNotFound {
		s.logg.Debug(s.logg.WithCartCode(ctx, s.cartCode()), "entry already removed")
		return s.Fetch(ctx)
	}
	return c, err
}

// UpdateAddress persists the delivery address on the server cart.
func (s *Synchronizer) UpdateAddress(ctx context.Context, addressID types.Code) (*types.Cart, error) {
	if addressID.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address is required")
	}
	return s.mutate(ctx, transport.Request{
		Method: http.MethodPut,
		Path:   addressPathPrefix + url.PathEscape(addressID.String()),
	})
}

// UpdatePaymentMethod persists the payment method label on the server cart.
func (s *Synchronizer) UpdatePaymentMethod(ctx context.Context, method enums.PaymentMethod) (*types.Cart, error) {
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment method %q", method))
	}
	return s.mutate(ctx, transport.Request{
		Method: http.MethodPut,
		Path:   paymentPathPrefix + url.PathEscape(method.String()),
	})
}

// ApplyOptimistic shows quantity more units of product before the backend
// confirms. The preview is dropped when the next response lands.
func (s *Synchronizer) ApplyOptimistic(product types.Product, quantity int) View {
	s.setPending(func(v View) View { return v.withDelta(product, quantity, false) })
	return s.View()
}

// View returns the current snapshot: the pending preview if one is shown,
// otherwise the last server-confirmed cart.
func (s *Synchronizer) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pending != nil {
		return s.pending.clone()
	}
	return viewFromCart(s.confirmed)
}

// Confirmed returns a copy of the last server-confirmed cart, or nil.
func (s *Synchronizer) Confirmed() *types.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.confirmed.Clone()
}

// Clear empties the local view without a backend call. Used once an order
// has consumed the server cart.
func (s *Synchronizer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.confirmed != nil {
		s.confirmed = &types.Cart{ID: s.confirmed.ID, Code: s.confirmed.Code}
	}
	s.pending = nil
}

func (s *Synchronizer) mutate(ctx context.Context, req transport.Request) (*types.Cart, error) {
	resp, err := s.api.Do(ctx, req)
	if err != nil {
		s.discardPending()
		return nil, err
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return s.Fetch(ctx)
	}
	var c types.Cart
	if err := resp.Decode(&c); err != nil {
		s.discardPending()
		return nil, err
	}
	return s.replace(&c), nil
}

// replace adopts c as the confirmed cart and hands the caller a copy, so
// nothing outside the synchronizer can edit the last-known-good state.
func (s *Synchronizer) replace(c *types.Cart) *types.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed = c
	s.pending = nil
	return c.Clone()
}

func (s *Synchronizer) setPending(fn func(View) View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	base := viewFromCart(s.confirmed)
	if s.pending != nil {
		base = *s.pending
	}
	next := fn(base)
	s.pending = &next
}

// previewLine derives a preview for a line already shown in the cart. A
// preview set by ApplyOptimistic is kept as is so the change is not counted
// twice.
func (s *Synchronizer) previewLine(productCode types.Code, fn func(View) View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		return
	}
	base := viewFromCart(s.confirmed)
	for _, it := range base.Items {
		if it.ProductCode == productCode {
			next := fn(base)
			s.pending = &next
			return
		}
	}
}

func (s *Synchronizer) discardPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

func (s *Synchronizer) cartCode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.confirmed == nil {
		return ""
	}
	return s.confirmed.Code
}
