package cart

import (
	"github.com/angelmondragon/packfinderz-storefront/pkg/enums"
	"github.com/angelmondragon/packfinderz-storefront/pkg/types"
)

// Item is one rendered cart line.
type Item struct {
	EntryCode   string
	ProductCode types.Code
	Name        string
	Brand       string
	ImageURL    string
	UnitPrice   types.Money
	Quantity    int
	LineTotal   types.Money
}

// View is the rendering-friendly snapshot of the cart. Pending views carry a
// locally derived total that is replaced as soon as the backend answers.
type View struct {
	CartID            types.Code
	CartCode          string
	Items             []Item
	Total             types.Money
	PaymentMethod     *enums.PaymentMethod
	DeliveryAddressID types.Code
	Pending           bool
}

// IsEmpty reports whether the view has no lines.
func (v View) IsEmpty() bool {
	return len(v.Items) == 0
}

// ItemCount sums the quantities of every line.
func (v View) ItemCount() int {
	n := 0
	for _, it := range v.Items {
		n += it.Quantity
	}
	return n
}

func (v View) clone() View {
	out := v
	out.Items = append([]Item(nil), v.Items...)
	if v.PaymentMethod != nil {
		method := *v.PaymentMethod
		out.PaymentMethod = &method
	}
	return out
}

func viewFromCart(c *types.Cart) View {
	if c == nil {
		return View{}
	}
	var method *enums.PaymentMethod
	if c.PaymentMethod != nil {
		m := *c.PaymentMethod
		method = &m
	}
	v := View{
		CartID:            c.ID,
		CartCode:          c.Code,
		Total:             c.TotalPrice,
		PaymentMethod:     method,
		DeliveryAddressID: c.DeliveryAddressID(),
		Items:             make([]Item, 0, len(c.Entries)),
	}
	for _, e := range c.Entries {
		v.Items = append(v.Items, Item{
			EntryCode:   e.Code,
			ProductCode: e.Product.Code,
			Name:        e.Product.Name,
			Brand:       e.Product.Brand,
			ImageURL:    e.Product.ImageURL,
			UnitPrice:   e.BasePrice,
			Quantity:    e.Quantity,
			LineTotal:   e.TotalPrice,
		})
	}
	return v
}

// withDelta derives a display-only view where product's quantity changes by
// delta (or is set to quantity when absolute is true). The total is a local
// sum and is never sent anywhere.
func (v View) withDelta(product types.Product, qty int, absolute bool) View {
	out := v
	out.Items = make([]Item, 0, len(v.Items)+1)
	found := false
	for _, it := range v.Items {
		if it.ProductCode == product.Code {
			found = true
			if absolute {
				it.Quantity = qty
			} else {
				it.Quantity += qty
			}
			if it.Quantity <= 0 {
				continue
			}
			it.LineTotal = it.UnitPrice.Times(it.Quantity)
		}
		out.Items = append(out.Items, it)
	}
	if !found && qty > 0 {
		out.Items = append(out.Items, Item{
			ProductCode: product.Code,
			Name:        product.Name,
			Brand:       product.Brand,
			ImageURL:    product.ImageURL,
			UnitPrice:   product.Price,
			Quantity:    qty,
			LineTotal:   product.Price.Times(qty),
		})
	}
	total := types.Money{}
	for _, it := range out.Items {
		total = total.Plus(it.LineTotal)
	}
	out.Total = total
	out.Pending = true
	return out
}

func (v View) withoutEntry(entryCode string) View {
	out := v
	out.Items = make([]Item, 0, len(v.Items))
	total := types.Money{}
	for _, it := range v.Items {
		if it.EntryCode == entryCode {
			continue
		}
		out.Items = append(out.Items, it)
		total = total.Plus(it.LineTotal)
	}
	out.Total = total
	out.Pending = true
	return out
}
