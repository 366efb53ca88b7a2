package economy

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// MarketModifiers are multiplicative price factors scoped globally, by
// category, and by product. A zero GlobalPriceModifier means "unset" (1.0).
type MarketModifiers struct {
	GlobalPriceModifier float64            `json:"global_price_modifier,omitempty"`
	CategoryModifiers   map[string]float64 `json:"category_modifiers,omitempty"`
	ProductModifiers    map[string]float64 `json:"product_modifiers,omitempty"`
	SpecialProducts     []string           `json:"special_products,omitempty"`
}

// NeutralModifiers returns modifiers that leave every price unchanged.
func NeutralModifiers() MarketModifiers {
	return MarketModifiers{GlobalPriceModifier: 1}
}

// Global returns the global factor with the unset value mapped to 1.
func (m MarketModifiers) Global() float64 {
	if m.GlobalPriceModifier == 0 {
		return 1
	}
	return m.GlobalPriceModifier
}

// Category returns the factor for a category, 1 when absent.
func (m MarketModifiers) Category(category string) float64 {
	if f, ok := m.CategoryModifiers[category]; ok {
		return f
	}
	return 1
}

// Product returns the factor for a product, 1 when absent.
func (m MarketModifiers) Product(id string) float64 {
	if f, ok := m.ProductModifiers[id]; ok {
		return f
	}
	return 1
}

// FactorFor returns global × category × product for p.
func (m MarketModifiers) FactorFor(p Product) float64 {
	return m.Global() * m.Category(p.Category) * m.Product(p.ID)
}

// IsSpecial reports whether id is in the special products set.
func (m MarketModifiers) IsSpecial(id string) bool {
	for _, s := range m.SpecialProducts {
		if s == id {
			return true
		}
	}
	return false
}

// IsNeutral reports whether the modifiers change nothing.
func (m MarketModifiers) IsNeutral() bool {
	if m.Global() != 1 || len(m.SpecialProducts) > 0 {
		return false
	}
	for _, f := range m.CategoryModifiers {
		if f != 1 {
			return false
		}
	}
	for _, f := range m.ProductModifiers {
		if f != 1 {
			return false
		}
	}
	return true
}

// Combine folds other into m multiplicatively and unions special products.
// Neither input is mutated.
func (m MarketModifiers) Combine(other MarketModifiers) MarketModifiers {
	out := MarketModifiers{
		GlobalPriceModifier: m.Global() * other.Global(),
		CategoryModifiers:   mergeFactors(m.CategoryModifiers, other.CategoryModifiers),
		ProductModifiers:    mergeFactors(m.ProductModifiers, other.ProductModifiers),
	}

	specials := make(map[string]bool, len(m.SpecialProducts)+len(other.SpecialProducts))
	for _, s := range m.SpecialProducts {
		specials[s] = true
	}
	for _, s := range other.SpecialProducts {
		specials[s] = true
	}
	for s := range specials {
		out.SpecialProducts = append(out.SpecialProducts, s)
	}
	sort.Strings(out.SpecialProducts)
	return out
}

func mergeFactors(a, b map[string]float64) map[string]float64 {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]float64, len(a)+len(b))
	for k, f := range a {
		out[k] = f
	}
	for k, f := range b {
		if prev, ok := out[k]; ok {
			out[k] = prev * f
		} else {
			out[k] = f
		}
	}
	return out
}

// Validate rejects non-finite or non-positive factors.
func (m MarketModifiers) Validate() error {
	check := func(scope string, f float64) error {
		if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
			return fmt.Errorf("%w: %s modifier %v", ErrInvalidInput, scope, f)
		}
		return nil
	}
	if err := check("global", m.Global()); err != nil {
		return err
	}
	for k, f := range m.CategoryModifiers {
		if err := check("category "+k, f); err != nil {
			return err
		}
	}
	for k, f := range m.ProductModifiers {
		if err := check("product "+k, f); err != nil {
			return err
		}
	}
	return nil
}

// Key serializes the modifiers deterministically for cache keys.
func (m MarketModifiers) Key() string {
	if m.IsNeutral() {
		return "-"
	}
	var b strings.Builder
	b.WriteString("g=")
	b.WriteString(strconv.FormatFloat(m.Global(), 'g', -1, 64))
	writeFactors(&b, "c", m.CategoryModifiers)
	writeFactors(&b, "p", m.ProductModifiers)
	if len(m.SpecialProducts) > 0 {
		specials := append([]string(nil), m.SpecialProducts...)
		sort.Strings(specials)
		b.WriteString(";s=")
		b.WriteString(strings.Join(specials, ","))
	}
	return b.String()
}

func writeFactors(b *strings.Builder, tag string, factors map[string]float64) {
	if len(factors) == 0 {
		return
	}
	keys := make([]string, 0, len(factors))
	for k := range factors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteString(";")
	b.WriteString(tag)
	b.WriteString("=")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(k)
		b.WriteString(":")
		b.WriteString(strconv.FormatFloat(factors[k], 'g', -1, 64))
	}
}

// ActiveMarketEffect carries modifiers emitted by an event until ExpiryWeek.
type ActiveMarketEffect struct {
	ID            string          `json:"id"`
	SourceEventID string          `json:"source_event_id"`
	Description   string          `json:"description,omitempty"`
	Modifiers     MarketModifiers `json:"modifiers"`
	TriggerWeek   int             `json:"trigger_week"`
	ExpiryWeek    int             `json:"expiry_week"`
}

// ActiveAt reports whether the effect applies during week.
func (a ActiveMarketEffect) ActiveAt(week int) bool {
	return week >= a.TriggerWeek && week < a.ExpiryWeek
}

// FoldEffects combines the modifiers of every effect active at week.
func FoldEffects(effects []ActiveMarketEffect, week int) MarketModifiers {
	out := NeutralModifiers()
	for _, e := range effects {
		if e.ActiveAt(week) {
			out = out.Combine(e.Modifiers)
		}
	}
	return out
}
