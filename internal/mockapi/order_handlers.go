package mockapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/types"
)

const idempotencyHeader = "Idempotency-Key"

// customerStatusTransitions lists the status changes a customer may request.
var customerStatusTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusReady:     {enums.OrderStatusCanceled},
	enums.OrderStatusPaid:      {enums.OrderStatusCanceled},
	enums.OrderStatusDelivered: {enums.OrderStatusReturnRequested},
}

// handlePlaceOrder converts the cart into an order and empties it. A repeated
// Idempotency-Key returns the order created by the first request.
func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	s.placeCalls.Add(1)
	customerID := customerIDFromContext(r.Context())
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))

	s.mu.Lock()
	defer s.mu.Unlock()

	if key != "" {
		if code, ok := s.placements[customerID+"|"+key]; ok {
			writeSuccess(w, s.orders[code].order)
			return
		}
	}

	cart := s.cartLocked(customerID)
	if len(cart.Entries) == 0 {
		writeError(r.Context(), s.logg, w, r, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty"))
		return
	}
	if cart.Address == nil {
		writeError(r.Context(), s.logg, w, r, pkgerrors.New(pkgerrors.CodeValidation, "delivery address is required"))
		return
	}
	if cart.PaymentMethod == nil {
		writeError(r.Context(), s.logg, w, r, pkgerrors.New(pkgerrors.CodeValidation, "payment method is required"))
		return
	}

	order := types.Order{
		Code:          fmt.Sprintf("ORD-%s", s.nextIDLocked()),
		Status:        enums.OrderStatusReady,
		TotalPrice:    cart.TotalPrice,
		Entries:       make([]types.OrderEntry, 0, len(cart.Entries)),
		PaymentMethod: *cart.PaymentMethod,
		CreationDate:  s.now().UTC().Format(time.RFC3339),
	}
	addr := *cart.Address
	order.Address = &addr
	for _, e := range cart.Entries {
		order.Entries = append(order.Entries, types.OrderEntry{
			Product:    e.Product,
			Quantity:   e.Quantity,
			BasePrice:  e.BasePrice,
			TotalPrice: e.TotalPrice,
		})
	}

	s.orders[order.Code] = &orderRecord{customerID: customerID, order: order}
	s.orderSeq = append(s.orderSeq, order.Code)
	if key != "" {
		s.placements[customerID+"|"+key] = order.Code
	}

	cart.Entries = []types.CartEntry{}
	cart.Address = nil
	cart.PaymentMethod = nil
	recalculate(cart)

	s.logg.Info(s.logg.WithField(r.Context(), "order_code", order.Code), "order placed")
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	s.mu.Lock()
	rec, ok := s.orders[code]
	s.mu.Unlock()
	if !ok || rec.customerID != customerIDFromContext(r.Context()) {
		writeError(r.Context(), s.logg, w, r, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
		return
	}
	writeSuccess(w, rec.order)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	customerID := customerIDFromContext(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()
	if email := strings.TrimSpace(r.URL.Query().Get("email")); email != "" {
		if c := s.customersID[customerID]; c == nil || !strings.EqualFold(c.Email, email) {
			writeError(r.Context(), s.logg, w, r, pkgerrors.New(pkgerrors.CodeForbidden, "cannot list another customer's orders"))
			return
		}
	}
	out := []types.Order{}
	for _, code := range s.orderSeq {
		if rec := s.orders[code]; rec.customerID == customerID {
			out = append(out, rec.order)
		}
	}
	writeSuccess(w, out)
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	next, err := enums.ParseOrderStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))))
	if err != nil {
		writeError(r.Context(), s.logg, w, r, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown order status"))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.orders[code]
	if !ok || rec.customerID != customerIDFromContext(r.Context()) {
		writeError(r.Context(), s.logg, w, r, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
		return
	}
	allowed := false
	for _, candidate := range customerStatusTransitions[rec.order.Status] {
		if candidate == next {
			allowed = true
			break
		}
	}
	if !allowed {
		writeError(r.Context(), s.logg, w, r, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot move order from %s to %s", rec.order.Status, next)))
		return
	}
	rec.order.Status = next
	writeSuccess(w, rec.order)
}
