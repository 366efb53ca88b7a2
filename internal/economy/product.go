// Package economy provides products, market state, and the weekly price model.
package economy

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput is returned when a numeric input would make the price model
// produce NaN or Inf. Callers are expected to reject such values at ingestion.
var ErrInvalidInput = errors.New("invalid price input")

// ConfigError reports a malformed catalog entry. It is fatal at load time.
type ConfigError struct {
	Kind   string // "product", "location", "event"
	ID     string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %s %q: %s", e.Kind, e.ID, e.Reason)
	}
	return fmt.Sprintf("config error: %s %q: %s: %s", e.Kind, e.ID, e.Field, e.Reason)
}

// Product is an immutable catalog entry for a tradable good.
type Product struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	BasePrice  int     `json:"base_price"`
	MinPrice   int     `json:"min_price"`
	MaxPrice   int     `json:"max_price"`
	Volatility float64 `json:"volatility"` // 1–10
	Category   string  `json:"category"`
	Size       int     `json:"size"` // Inventory slots per unit
}

// Validate checks the catalog invariants: MinPrice ≤ BasePrice ≤ MaxPrice,
// positive base price, volatility in [1,10], and a positive unit size.
func (p Product) Validate() error {
	bad := func(field, reason string) error {
		return &ConfigError{Kind: "product", ID: p.ID, Field: field, Reason: reason}
	}
	switch {
	case p.ID == "":
		return bad("id", "missing")
	case p.MinPrice > p.MaxPrice:
		return bad("min_price", fmt.Sprintf("%d exceeds max_price %d", p.MinPrice, p.MaxPrice))
	case p.BasePrice <= 0:
		return bad("base_price", "must be positive")
	case p.MinPrice < 0:
		return bad("min_price", "must not be negative")
	case p.BasePrice < p.MinPrice || p.BasePrice > p.MaxPrice:
		return bad("base_price", fmt.Sprintf("%d outside [%d,%d]", p.BasePrice, p.MinPrice, p.MaxPrice))
	case math.IsNaN(p.Volatility) || p.Volatility < 1 || p.Volatility > 10:
		return bad("volatility", "must be within [1,10]")
	case p.Size <= 0:
		return bad("size", "must be positive")
	}
	return nil
}

// ValidateProducts validates every product and rejects duplicate IDs.
func ValidateProducts(products []Product) error {
	seen := make(map[string]bool, len(products))
	for _, p := range products {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.ID] {
			return &ConfigError{Kind: "product", ID: p.ID, Reason: "duplicate id"}
		}
		seen[p.ID] = true
	}
	return nil
}

// band returns the width of the product's price band.
func (p Product) band() float64 {
	return float64(p.MaxPrice - p.MinPrice)
}

// BandPosition returns where price sits in [MinPrice, MaxPrice] as 0–1.
// ok is false when the band has zero width.
func (p Product) BandPosition(price float64) (pos float64, ok bool) {
	w := p.band()
	if w <= 0 {
		return 0, false
	}
	return (price - float64(p.MinPrice)) / w, true
}
