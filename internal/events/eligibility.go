package events

import (
	"math"
	"slices"

	"github.com/talgya/tradewinds/internal/game"
)

// Unseen events get a probability boost, capped so they are never certain.
const (
	unseenProbabilityBoost = 1.5
	unseenProbabilityCap   = 0.95
)

// IsEligible reports whether def may fire in st. Every clause must hold. The
// probability clause is the only one that consumes randomness, and only for
// probabilities strictly between 0 and 1.
func (e *Engine) IsEligible(def *Definition, st *game.State) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isEligible(def, st)
}

func (e *Engine) isEligible(def *Definition, st *game.State) bool {
	if until, ok := e.cooldowns[def.ID]; ok && st.Week <= until {
		return false
	}
	if !def.Repeatable && e.triggered[def.ID] {
		return false
	}

	c := &def.Conditions
	if c.MinWeek > 0 && st.Week < c.MinWeek {
		return false
	}
	if c.MaxWeek > 0 && st.Week > c.MaxWeek {
		return false
	}
	if len(c.Locations) > 0 && !slices.Contains(c.Locations, st.LocationID()) {
		return false
	}
	if !playerMatches(c, st.Player) {
		return false
	}
	for _, id := range c.RequiredEvents {
		if !e.triggered[id] {
			return false
		}
	}
	for _, id := range c.ExcludedEvents {
		if e.triggered[id] {
			return false
		}
	}
	if c.Custom != nil && !c.Custom(st) {
		return false
	}
	return e.rollProbability(def.ID, c.Probability)
}

func playerMatches(c *Conditions, p *game.Player) bool {
	needsPlayer := c.Money != nil || c.Debt != nil || len(c.Inventory) > 0 ||
		len(c.Attributes) > 0 || c.OwnsHouse != nil
	if p == nil {
		return !needsPlayer
	}
	if !c.Money.Contains(float64(p.Money)) || !c.Debt.Contains(float64(p.Debt)) {
		return false
	}
	for id, r := range c.Inventory {
		if !r.Contains(float64(p.Quantity(id))) {
			return false
		}
	}
	for name, r := range c.Attributes {
		if !r.Contains(p.Attributes[name]) {
			return false
		}
	}
	if c.OwnsHouse != nil && *c.OwnsHouse != p.HasHouse() {
		return false
	}
	return true
}

func (e *Engine) rollProbability(id string, p float64) bool {
	if p <= 0 || p >= 1 {
		return true
	}
	if !e.triggered[id] {
		p = math.Max(p, math.Min(p*unseenProbabilityBoost, unseenProbabilityCap))
	}
	return e.rng.Float() < p
}
