package mockapi

import (
	"sort"

	"github.com/angelmondragon/packfinderz-storefront/pkg/types"
)

// DefaultCatalog is the product list served when none is configured.
func DefaultCatalog() []types.Product {
	return []types.Product{
		{Code: "101", Name: "Trail Running Shoe", Brand: "Stride", Price: types.MustMoney("89.90"), ImageURL: "/img/101.jpg"},
		{Code: "102", Name: "Merino Crew Sock", Brand: "Woolly", Price: types.MustMoney("12.50"), ImageURL: "/img/102.jpg"},
		{Code: "103", Name: "Packable Rain Shell", Brand: "Drift", Price: types.MustMoney("129.00"), ImageURL: "/img/103.jpg"},
		{Code: "104", Name: "Insulated Bottle 750ml", Brand: "Keep", Price: types.MustMoney("24.99"), ImageURL: "/img/104.jpg"},
		{Code: "105", Name: "Day Pack 22L", Brand: "Stride", Price: types.MustMoney("64.00"), ImageURL: "/img/105.jpg"},
	}
}

func sortProducts(products []types.Product) {
	sort.Slice(products, func(i, j int) bool { return products[i].Code < products[j].Code })
}
