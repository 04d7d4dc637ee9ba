package types

import "github.com/angelmondragon/packfinderz-storefront/pkg/enums"

// OrderEntry is a line of a placed order.
type OrderEntry struct {
	Product    Product `json:"product"`
	Quantity   int     `json:"quantity"`
	BasePrice  Money   `json:"basePrice"`
	TotalPrice Money   `json:"totalPrice"`
}

// Order is created server-side from a cart; the client only reads it.
type Order struct {
	Code          string              `json:"code"`
	Status        enums.OrderStatus   `json:"status"`
	TotalPrice    Money               `json:"totalPrice"`
	Entries       []OrderEntry        `json:"entries"`
	Address       *Address            `json:"address,omitempty"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod,omitempty"`
	CreationDate  string              `json:"creationDate,omitempty"`
}
