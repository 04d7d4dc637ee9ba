package mockapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/types"
	"github.com/angelmondragon/packfinderz-storefront/pkg/validators"
)

func (s *Server) handleProducts(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]types.Product, 0, len(s.catalog))
	for _, p := range s.catalog {
		out = append(out, p)
	}
	s.mu.Unlock()
	sortProducts(out)
	writeSuccess(w, out)
}

func (s *Server) handleAddresses(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	c := s.customersID[customerIDFromContext(r.Context())]
	var out []types.Address
	if c != nil {
		out = append(out, c.Addresses...)
	}
	s.mu.Unlock()
	if out == nil {
		out = []types.Address{}
	}
	writeSuccess(w, out)
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cart := s.cartLocked(customerIDFromContext(r.Context()))
	out := *cart.Clone()
	s.mu.Unlock()
	writeSuccess(w, out)
}

// handleAddToCart merges quantity into the entry for the product, creating
// one when the cart has none.
func (s *Server) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	var body types.CartEntryRequest
	if err := validators.DecodeJSONBody(r, &body); err != nil {
		writeError(r.Context(), s.logg, w, r, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.catalog[body.Product]
	if !ok {
		writeError(r.Context(), s.logg, w, r, pkgerrors.New(pkgerrors.CodeNotFound, "product not found"))
		return
	}
	cart := s.cartLocked(customerIDFromContext(r.Context()))
	merged := false
	for i := range cart.Entries {
		if cart.Entries[i].Product.Code == product.Code {
			cart.Entries[i].Quantity += body.Quantity
			merged = true
			break
		}
	}
	if !merged {
		cart.Entries = append(cart.Entries, types.CartEntry{
			Code:      s.nextIDLocked(),
			Product:   product,
			Quantity:  body.Quantity,
			BasePrice: product.Price,
		})
	}
	recalculate(cart)
	writeSuccess(w, *cart.Clone())
}

func (s *Server) handleUpdateCart(w http.ResponseWriter, r *http.Request) {
	var body types.CartEntryRequest
	if err := validators.DecodeJSONBody(r, &body); err != nil {
		writeError(r.Context(), s.logg, w, r, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cart := s.cartLocked(customerIDFromContext(r.Context()))
	for i := range cart.Entries {
		e := &cart.Entries[i]
		if e.Code == body.Code || (body.Code == "" && e.Product.Code == body.Product) {
			e.Quantity = body.Quantity
			recalculate(cart)
			writeSuccess(w, *cart.Clone())
			return
		}
	}
	writeError(r.Context(), s.logg, w, r, pkgerrors.New(pkgerrors.CodeNotFound, "cart entry not found"))
}

func (s *Server) handleRemoveFromCart(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))

	s.mu.Lock()
	defer s.mu.Unlock()
	cart := s.cartLocked(customerIDFromContext(r.Context()))
	for i := range cart.Entries {
		if cart.Entries[i].Code == code {
			cart.Entries = append(cart.Entries[:i], cart.Entries[i+1:]...)
			recalculate(cart)
			writeSuccess(w, *cart.Clone())
			return
		}
	}
	writeError(r.Context(), s.logg, w, r, pkgerrors.New(pkgerrors.CodeNotFound, "cart entry not found"))
}

func (s *Server) handleUpdateCartAddress(w http.ResponseWriter, r *http.Request) {
	id := types.Code(strings.TrimSpace(chi.URLParam(r, "id")))

	s.mu.Lock()
	defer s.mu.Unlock()
	customerID := customerIDFromContext(r.Context())
	c := s.customersID[customerID]
	if c == nil {
		writeError(r.Context(), s.logg, w, r, pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown customer"))
		return
	}
	for _, addr := range c.Addresses {
		if addr.ID == id {
			cart := s.cartLocked(customerID)
			selected := addr
			cart.Address = &selected
			writeSuccess(w, *cart.Clone())
			return
		}
	}
	writeError(r.Context(), s.logg, w, r, pkgerrors.New(pkgerrors.CodeNotFound, "address not found"))
}

func (s *Server) handleUpdateCartPayment(w http.ResponseWriter, r *http.Request) {
	method, err := enums.ParsePaymentMethod(strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "method"))))
	if err != nil {
		writeError(r.Context(), s.logg, w, r, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported payment method"))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cart := s.cartLocked(customerIDFromContext(r.Context()))
	cart.PaymentMethod = &method
	writeSuccess(w, *cart.Clone())
}

// cartLocked returns the customer's cart, creating an empty one on first use.
func (s *Server) cartLocked(customerID string) *types.Cart {
	if cart, ok := s.carts[customerID]; ok {
		return cart
	}
	id := s.nextIDLocked()
	cart := &types.Cart{ID: types.Code(id), Code: "C" + id, Entries: []types.CartEntry{}}
	s.carts[customerID] = cart
	return cart
}

func recalculate(cart *types.Cart) {
	total := types.Money{}
	for i := range cart.Entries {
		e := &cart.Entries[i]
		e.TotalPrice = e.BasePrice.Times(e.Quantity)
		total = total.Plus(e.TotalPrice)
	}
	cart.TotalPrice = total
}
