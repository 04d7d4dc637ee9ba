package types

import "strings"

// Address is the delivery address shape returned by the customer service.
type Address struct {
	ID           Code   `json:"id"`
	AddressTitle string `json:"addressTitle,omitempty"`
	Street       string `json:"street,omitempty"`
	City         string `json:"city,omitempty"`
	Country      string `json:"country,omitempty"`
	PostalCode   string `json:"postalCode,omitempty"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
}

// Summary renders a single-line description for review screens.
func (a Address) Summary() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Street, a.PostalCode, a.City, a.Country} {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}
