package types

import "github.com/angelmondragon/packfinderz-storefront/pkg/enums"

// Product is the denormalized catalog snapshot embedded in cart and order
// entries. It is a point-in-time copy and may drift from the live catalog.
type Product struct {
	Code     Code   `json:"code"`
	Name     string `json:"name,omitempty"`
	Brand    string `json:"brand,omitempty"`
	Price    Money  `json:"price"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// CartEntry is one server-confirmed line of a cart.
type CartEntry struct {
	Code       string  `json:"code"`
	Product    Product `json:"product"`
	Quantity   int     `json:"quantity"`
	BasePrice  Money   `json:"basePrice"`
	TotalPrice Money   `json:"totalPrice"`
}

// Consistent reports whether totalPrice == basePrice * quantity.
func (e CartEntry) Consistent() bool {
	return e.TotalPrice.Equal(e.BasePrice.Times(e.Quantity))
}

// Cart is the server representation of the principal's cart.
type Cart struct {
	ID            Code                 `json:"id,omitempty"`
	Code          string               `json:"code"`
	TotalPrice    Money                `json:"totalPrice"`
	Entries       []CartEntry          `json:"entries"`
	PaymentMethod *enums.PaymentMethod `json:"paymentMethod,omitempty"`
	Address       *Address             `json:"address,omitempty"`
}

// DeliveryAddressID returns the persisted delivery address id, if any.
func (c Cart) DeliveryAddressID() Code {
	if c.Address == nil {
		return ""
	}
	return c.Address.ID
}

// Clone returns a deep copy that shares no slices or pointers with c.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	if c.Entries != nil {
		out.Entries = make([]CartEntry, len(c.Entries))
		copy(out.Entries, c.Entries)
	}
	if c.Address != nil {
		addr := *c.Address
		out.Address = &addr
	}
	if c.PaymentMethod != nil {
		method := *c.PaymentMethod
		out.PaymentMethod = &method
	}
	return &out
}

// IsEmpty treats a missing cart and a cart without entries the same way.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Entries) == 0
}

// EntryForProduct returns the entry holding productCode.
func (c *Cart) EntryForProduct(productCode Code) (CartEntry, bool) {
	if c == nil {
		return CartEntry{}, false
	}
	for _, e := range c.Entries {
		if e.Product.Code == productCode {
			return e, true
		}
	}
	return CartEntry{}, false
}

// CartEntryRequest is the body of POST /cart/add and PUT /cart/update.
type CartEntryRequest struct {
	Cart     string `json:"cart,omitempty"`
	Product  Code   `json:"product" validate:"required"`
	Quantity int    `json:"quantity" validate:"min=1"`
	Code     string `json:"code,omitempty"`
}
