package catalog

import "errors"

var (
	ErrPackageNotFound = errors.New("package not found")
	ErrAddonNotFound   = errors.New("addon not found")
)

// Package is a purchasable promotion tier. Prices are in minor currency units.
type Package struct {
	ID                  string `json:"id"`
	DisplayName         string `json:"display_name"`
	UnitPrice           int64  `json:"unit_price"`
	StreamRangeLabel    string `json:"stream_range_label"`
	PlacementRangeLabel string `json:"placement_range_label"`
}

// Addon is an optional extra sold alongside a campaign. OriginalPrice is only
// meaningful when IsOnSale is true.
type Addon struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Emoji         string `json:"emoji"`
	Price         int64  `json:"price"`
	IsOnSale      bool   `json:"is_on_sale"`
	OriginalPrice int64  `json:"original_price,omitempty"`
}

var packages = []Package{
	{
		ID:                  "breakthrough",
		DisplayName:         "BREAKTHROUGH",
		UnitPrice:           3900,
		StreamRangeLabel:    "10K - 12K Streams",
		PlacementRangeLabel: "25 - 35 Playlist Placements",
	},
	{
		ID:                  "momentum",
		DisplayName:         "MOMENTUM",
		UnitPrice:           7900,
		StreamRangeLabel:    "25K - 30K Streams",
		PlacementRangeLabel: "60 - 80 Playlist Placements",
	},
	{
		ID:                  "dominate",
		DisplayName:         "DOMINATE",
		UnitPrice:           14900,
		StreamRangeLabel:    "45K - 55K Streams",
		PlacementRangeLabel: "100 - 150 Playlist Placements",
	},
	{
		ID:                  "ultra",
		DisplayName:         "ULTRA",
		UnitPrice:           24900,
		StreamRangeLabel:    "75K - 85K Streams",
		PlacementRangeLabel: "200 - 250 Playlist Placements",
	},
	{
		ID:                  "legendary",
		DisplayName:         "LEGENDARY",
		UnitPrice:           47900,
		StreamRangeLabel:    "125K - 150K Streams",
		PlacementRangeLabel: "375 - 400 Playlist Placements",
	},
}

var addons = []Addon{
	{
		ID:            "express-launch",
		Name:          "Express Launch",
		Emoji:         "🚀",
		Price:         1900,
		IsOnSale:      true,
		OriginalPrice: 3900,
	},
	{
		ID:    "instagram-promo",
		Name:  "Instagram Promotion",
		Emoji: "📸",
		Price: 4900,
	},
	{
		ID:            "discover-weekly-push",
		Name:          "Discover Weekly Push",
		Emoji:         "🎧",
		Price:         2900,
		IsOnSale:      true,
		OriginalPrice: 5900,
	},
}

// Packages returns the full package list, cheapest first.
func Packages() []Package {
	out := make([]Package, len(packages))
	copy(out, packages)
	return out
}

// Addons returns the full addon list.
func Addons() []Addon {
	out := make([]Addon, len(addons))
	copy(out, addons)
	return out
}

func PackageByID(id string) (Package, error) {
	for _, p := range packages {
		if p.ID == id {
			return p, nil
		}
	}
	return Package{}, ErrPackageNotFound
}

func AddonByID(id string) (Addon, error) {
	for _, a := range addons {
		if a.ID == id {
			return a, nil
		}
	}
	return Addon{}, ErrAddonNotFound
}
