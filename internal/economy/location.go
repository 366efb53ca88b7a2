package economy

import (
	"fmt"
	"math"
)

// SpecialtyDiscount is the display multiplier for a location's specialty goods.
const SpecialtyDiscount = 0.85

// Location is a place the player can trade in.
type Location struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	PriceFactor     float64  `json:"price_factor"`
	SpecialProducts []string `json:"special_products,omitempty"`
}

// IsSpecial reports whether productID is a specialty of the location.
func (l Location) IsSpecial(productID string) bool {
	for _, s := range l.SpecialProducts {
		if s == productID {
			return true
		}
	}
	return false
}

// Validate checks the location has an ID and a usable price factor.
func (l Location) Validate() error {
	if l.ID == "" {
		return &ConfigError{Kind: "location", ID: l.ID, Field: "id", Reason: "missing"}
	}
	if math.IsNaN(l.PriceFactor) || math.IsInf(l.PriceFactor, 0) || l.PriceFactor <= 0 {
		return &ConfigError{Kind: "location", ID: l.ID, Field: "price_factor", Reason: fmt.Sprintf("invalid %v", l.PriceFactor)}
	}
	return nil
}

// LocationProduct is a product as displayed at a location.
type LocationProduct struct {
	Product           Product `json:"product"`
	Price             int     `json:"price"`           // Display price
	CanonicalPrice    int     `json:"canonical_price"` // Market price before location factor and specialty discount
	Trend             Trend   `json:"trend"`
	ChangePercent     float64 `json:"change_percent"`
	WeekChangePercent float64 `json:"week_change_percent"`
	Special           bool    `json:"special"`
}

// DisplayPrice converts a canonical price into the price charged at l. The
// location factor applies once per listing, never to stored prices.
func (l Location) DisplayPrice(productID string, canonical int) int {
	v := float64(canonical) * l.PriceFactor
	if l.IsSpecial(productID) {
		v *= SpecialtyDiscount
	}
	return int(math.Max(1, math.Round(v)))
}

// GenerateLocationProducts lists products with their display prices at loc.
// Canonical prices come from history; products without history are priced
// fresh for week. Nothing canonical is modified.
func (e *PriceEngine) GenerateLocationProducts(products []Product, loc Location, history map[string]PriceRecord, week int, mods MarketModifiers) ([]LocationProduct, error) {
	out := make([]LocationProduct, 0, len(products))
	for _, p := range products {
		rec, ok := history[p.ID]
		if !ok {
			var err error
			rec, err = e.CalculatePrice(p, week, nil, 1, mods)
			if err != nil {
				return nil, fmt.Errorf("price %s at %s: %w", p.ID, loc.ID, err)
			}
		}
		out = append(out, LocationProduct{
			Product:           p,
			Price:             loc.DisplayPrice(p.ID, rec.Price),
			CanonicalPrice:    rec.Price,
			Trend:             rec.Trend,
			ChangePercent:     rec.ChangePercent,
			WeekChangePercent: rec.WeekChangePercent,
			Special:           loc.IsSpecial(p.ID),
		})
	}
	return out, nil
}
