// Package game holds the mutable session state the engines read and write:
// the player snapshot and the market the player trades in.
package game

import "github.com/talgya/tradewinds/internal/economy"

// InventoryItem is a stack of one product held by the player.
type InventoryItem struct {
	ProductID     string `json:"product_id"`
	Quantity      int    `json:"quantity"`
	PurchasePrice int    `json:"purchase_price"` // Average unit cost
}

// Player is the player's financial and inventory state.
type Player struct {
	Name            string             `json:"name"`
	Money           int64              `json:"money"`
	Debt            int64              `json:"debt"`
	Deposit         int64              `json:"deposit"`
	Inventory       []InventoryItem    `json:"inventory"`
	Attributes      map[string]float64 `json:"attributes"`
	Capacity        int                `json:"capacity"`
	PurchasedHouses []string           `json:"purchased_houses"`
}

// Quantity returns how many units of productID the player holds.
func (p *Player) Quantity(productID string) int {
	for _, it := range p.Inventory {
		if it.ProductID == productID {
			return it.Quantity
		}
	}
	return 0
}

// InventoryUsed returns the occupied capacity, weighting each unit by the
// product's size. Products missing from the catalog count as size 1.
func (p *Player) InventoryUsed(products []economy.Product) int {
	sizes := make(map[string]int, len(products))
	for _, pr := range products {
		sizes[pr.ID] = pr.Size
	}
	used := 0
	for _, it := range p.Inventory {
		size, ok := sizes[it.ProductID]
		if !ok || size <= 0 {
			size = 1
		}
		used += it.Quantity * size
	}
	return used
}

// AddItem adds quantity units at unitPrice, averaging the purchase price.
func (p *Player) AddItem(productID string, quantity, unitPrice int) {
	if quantity <= 0 {
		return
	}
	for i := range p.Inventory {
		it := &p.Inventory[i]
		if it.ProductID != productID {
			continue
		}
		total := it.Quantity*it.PurchasePrice + quantity*unitPrice
		it.Quantity += quantity
		it.PurchasePrice = total / it.Quantity
		return
	}
	p.Inventory = append(p.Inventory, InventoryItem{ProductID: productID, Quantity: quantity, PurchasePrice: unitPrice})
}

// RemoveItem removes up to quantity units and returns how many were removed.
func (p *Player) RemoveItem(productID string, quantity int) int {
	for i := range p.Inventory {
		it := &p.Inventory[i]
		if it.ProductID != productID {
			continue
		}
		removed := quantity
		if removed > it.Quantity {
			removed = it.Quantity
		}
		it.Quantity -= removed
		if it.Quantity == 0 {
			p.Inventory = append(p.Inventory[:i], p.Inventory[i+1:]...)
		}
		return removed
	}
	return 0
}

// HasHouse reports whether the player owns any property.
func (p *Player) HasHouse() bool {
	return len(p.PurchasedHouses) > 0
}

// NetWorth values money, deposits, and inventory at market prices, less debt.
func (p *Player) NetWorth(m *economy.Market) int64 {
	worth := p.Money + p.Deposit - p.Debt
	if m == nil {
		return worth
	}
	for _, it := range p.Inventory {
		if pp, ok := m.Price(it.ProductID); ok {
			worth += int64(it.Quantity) * int64(pp.Price)
		}
	}
	return worth
}

// Clone returns a deep copy of the player.
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	c := *p
	c.Inventory = append([]InventoryItem(nil), p.Inventory...)
	c.PurchasedHouses = append([]string(nil), p.PurchasedHouses...)
	c.Attributes = make(map[string]float64, len(p.Attributes))
	for k, v := range p.Attributes {
		c.Attributes[k] = v
	}
	return &c
}
