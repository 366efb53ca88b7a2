package economy

import "math"

// PricePoint is the materialized price of one product as shown to the player.
type PricePoint struct {
	Price int   `json:"price"`
	Trend Trend `json:"trend"`
}

// Market holds the product catalog, locations, and the currently displayed
// price of every product.
type Market struct {
	CurrentLocationID string                `json:"current_location_id"`
	Products          []Product             `json:"products"`
	ProductPrices     map[string]PricePoint `json:"product_prices"`
	Locations         []Location            `json:"locations"`
}

// NewMarket creates a market with every product at its base price.
func NewMarket(products []Product, locations []Location, startLocation string) *Market {
	prices := make(map[string]PricePoint, len(products))
	for _, p := range products {
		prices[p.ID] = PricePoint{Price: p.BasePrice, Trend: TrendStable}
	}
	return &Market{
		CurrentLocationID: startLocation,
		Products:          products,
		ProductPrices:     prices,
		Locations:         locations,
	}
}

// Product looks up a product by ID.
func (m *Market) Product(id string) (Product, bool) {
	for _, p := range m.Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// Location looks up a location by ID.
func (m *Market) Location(id string) (Location, bool) {
	for _, l := range m.Locations {
		if l.ID == id {
			return l, true
		}
	}
	return Location{}, false
}

// CurrentLocation returns the location the player is at.
func (m *Market) CurrentLocation() (Location, bool) {
	return m.Location(m.CurrentLocationID)
}

// Price returns the displayed price of a product.
func (m *Market) Price(id string) (PricePoint, bool) {
	pp, ok := m.ProductPrices[id]
	return pp, ok
}

// SetPrices replaces displayed prices with freshly computed records.
func (m *Market) SetPrices(records map[string]PriceRecord) {
	if m.ProductPrices == nil {
		m.ProductPrices = make(map[string]PricePoint, len(records))
	}
	for id, rec := range records {
		m.ProductPrices[id] = PricePoint{Price: rec.Price, Trend: rec.Trend}
	}
}

// ApplyModifiers multiplies modifiers into the displayed prices: global
// first, then category, then product. Results stay within each product's band.
func (m *Market) ApplyModifiers(mods MarketModifiers) {
	for _, p := range m.Products {
		pp, ok := m.ProductPrices[p.ID]
		if !ok {
			continue
		}
		price := float64(pp.Price)
		price *= mods.Global()
		price *= mods.Category(p.Category)
		price *= mods.Product(p.ID)
		price = clamp(math.Round(price), float64(p.MinPrice), float64(p.MaxPrice))
		pp.Price = int(price)
		pp.Trend = TrendFor(p, pp.Price)
		m.ProductPrices[p.ID] = pp
	}
}

// ProductsInCategory returns the products tagged with category.
func (m *Market) ProductsInCategory(category string) []Product {
	var out []Product
	for _, p := range m.Products {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

// Clone returns a deep copy. Products and locations are immutable and shared.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	c := *m
	c.ProductPrices = make(map[string]PricePoint, len(m.ProductPrices))
	for id, pp := range m.ProductPrices {
		c.ProductPrices[id] = pp
	}
	return &c
}
