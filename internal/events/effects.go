package events

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/game"
)

// DefaultMarketDuration is how many weeks a market effect lasts when the
// catalog does not say.
const DefaultMarketDuration = 2

// Effect failure reasons.
const (
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonInventoryFull     = "inventory_full"
	ReasonProductNotFound   = "product_not_found"
	ReasonInvalidModifiers  = "invalid_modifiers"
)

// Value is an effect magnitude: either a literal or computed from the state
// at application time. Only literals round-trip through JSON.
type Value struct {
	literal float64
	fn      func(*game.State) float64
}

// Literal returns a constant value.
func Literal(v float64) Value { return Value{literal: v} }

// Computed returns a value evaluated against the state when applied.
func Computed(fn func(*game.State) float64) Value { return Value{fn: fn} }

// Eval resolves the value. Non-finite results read as 0.
func (v Value) Eval(st *game.State) float64 {
	x := v.literal
	if v.fn != nil {
		x = v.fn(st)
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

// IsZero reports whether the value is an unset literal.
func (v Value) IsZero() bool { return v.fn == nil && v.literal == 0 }

func (v Value) MarshalJSON() ([]byte, error) {
	if v.fn != nil {
		return []byte(`"computed"`), nil
	}
	return json.Marshal(v.literal)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("effect value must be a number: %w", err)
	}
	*v = Literal(f)
	return nil
}

// ItemEffect grants (Quantity > 0) or removes (Quantity < 0) goods. Removals
// may target a whole Category instead of one product.
type ItemEffect struct {
	ProductID string `json:"product_id,omitempty"`
	Category  string `json:"category,omitempty"`
	Quantity  int    `json:"quantity"`
}

// MarketEffect installs price modifiers for DurationWeeks starting the week
// it fires.
type MarketEffect struct {
	economy.MarketModifiers
	DurationWeeks int    `json:"duration_weeks,omitempty"`
	Description   string `json:"description,omitempty"`
}

// Effects are the consequences of choosing an option. Money and debt values
// with magnitude below 1 are fractions of the current balance.
type Effects struct {
	Money          Value            `json:"money"`
	Debt           Value            `json:"debt"`
	Capacity       Value            `json:"capacity"`
	Items          []ItemEffect     `json:"items,omitempty"`
	Attributes     map[string]Value `json:"attributes,omitempty"`
	Market         *MarketEffect    `json:"market,omitempty"`
	NextEvent      string           `json:"next_event,omitempty"`
	LocationChange string           `json:"location_change,omitempty"`
}

// AppliedEffect records one state change.
type AppliedEffect struct {
	Type   string  `json:"type"`
	Target string  `json:"target,omitempty"`
	Amount float64 `json:"amount"`
}

// FailedEffect records a sub-effect that was skipped.
type FailedEffect struct {
	Type   string `json:"type"`
	Target string `json:"target,omitempty"`
	Reason string `json:"reason"`
}

// EffectResult reports what ApplyEffects did. NextEvent and LocationChange
// are intents for the caller to act on.
type EffectResult struct {
	Applied        []AppliedEffect             `json:"applied"`
	Failed         []FailedEffect              `json:"failed"`
	NextEvent      string                      `json:"next_event,omitempty"`
	LocationChange string                      `json:"location_change,omitempty"`
	MarketEffect   *economy.ActiveMarketEffect `json:"market_effect,omitempty"`
}

func (r *EffectResult) applied(typ, target string, amount float64) {
	r.Applied = append(r.Applied, AppliedEffect{Type: typ, Target: target, Amount: amount})
}

func (r *EffectResult) failed(typ, target, reason string) {
	r.Failed = append(r.Failed, FailedEffect{Type: typ, Target: target, Reason: reason})
}

// ApplyEffects mutates st according to eff. Each sub-effect succeeds or fails
// on its own; application is not idempotent.
func (e *Engine) ApplyEffects(st *game.State, eff Effects) EffectResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyEffects(st, eff, "")
}

func (e *Engine) applyEffects(st *game.State, eff Effects, sourceID string) EffectResult {
	var res EffectResult
	if p := st.Player; p != nil {
		applyMoney(&res, p, eff.Money.Eval(st))
		applyDebt(&res, p, eff.Debt.Eval(st))
		applyItems(&res, st, eff.Items)
		if v := math.Round(eff.Capacity.Eval(st)); v != 0 {
			p.Capacity = max(0, p.Capacity+int(v))
			res.applied("capacity", "", v)
		}
		for name, val := range eff.Attributes {
			if p.Attributes == nil {
				p.Attributes = make(map[string]float64)
			}
			v := val.Eval(st)
			p.Attributes[name] = v
			res.applied("attribute", name, v)
		}
	}

	if eff.Market != nil {
		e.applyMarket(&res, st, *eff.Market, sourceID)
	}

	res.NextEvent = eff.NextEvent
	res.LocationChange = eff.LocationChange
	return res
}

func applyMoney(res *EffectResult, p *game.Player, v float64) {
	if v == 0 {
		return
	}
	if math.Abs(v) < 1 {
		delta := int64(math.Round(float64(p.Money) * v))
		if p.Money+delta < 0 {
			delta = -p.Money
		}
		p.Money += delta
		res.applied("money", "", float64(delta))
		return
	}
	delta := int64(math.Round(v))
	if delta < 0 && p.Money+delta < 0 {
		res.failed("money", "", ReasonInsufficientFunds)
		return
	}
	p.Money += delta
	res.applied("money", "", float64(delta))
}

func applyDebt(res *EffectResult, p *game.Player, v float64) {
	var delta int64
	switch {
	case v == 0:
		return
	case v > 0:
		delta = int64(math.Round(v))
	case v > -1:
		delta = int64(math.Round(float64(p.Debt) * v))
	default:
		delta = int64(math.Round(v))
	}
	if p.Debt+delta < 0 {
		delta = -p.Debt
	}
	p.Debt += delta
	res.applied("debt", "", float64(delta))
}

func applyItems(res *EffectResult, st *game.State, items []ItemEffect) {
	p := st.Player
	for _, it := range items {
		switch {
		case it.Quantity > 0:
			target := it.ProductID
			if st.Market == nil {
				res.failed("items", target, ReasonProductNotFound)
				continue
			}
			prod, ok := st.Market.Product(target)
			if !ok {
				res.failed("items", target, ReasonProductNotFound)
				continue
			}
			if p.InventoryUsed(st.Market.Products)+it.Quantity*prod.Size > p.Capacity {
				res.failed("items", target, ReasonInventoryFull)
				continue
			}
			price := prod.BasePrice
			if pp, ok := st.Market.Price(target); ok {
				price = pp.Price
			}
			p.AddItem(target, it.Quantity, price)
			res.applied("items", target, float64(it.Quantity))

		case it.Quantity < 0 && it.ProductID != "":
			if n := p.RemoveItem(it.ProductID, -it.Quantity); n > 0 {
				res.applied("items", it.ProductID, float64(-n))
			}

		case it.Quantity < 0 && it.Category != "" && st.Market != nil:
			want := -it.Quantity
			for _, prod := range st.Market.ProductsInCategory(it.Category) {
				if want == 0 {
					break
				}
				if n := p.RemoveItem(prod.ID, want); n > 0 {
					want -= n
					res.applied("items", prod.ID, float64(-n))
				}
			}
		}
	}
}

func (e *Engine) applyMarket(res *EffectResult, st *game.State, m MarketEffect, sourceID string) {
	if err := m.MarketModifiers.Validate(); err != nil {
		res.failed("market", sourceID, ReasonInvalidModifiers)
		return
	}
	duration := m.DurationWeeks
	if duration <= 0 {
		duration = DefaultMarketDuration
	}
	active := economy.ActiveMarketEffect{
		ID:            uuid.NewString(),
		SourceEventID: sourceID,
		Description:   m.Description,
		Modifiers:     m.MarketModifiers,
		TriggerWeek:   st.Week,
		ExpiryWeek:    st.Week + duration,
	}
	e.active = append(e.active, active)
	// Prices for the current week are already on display.
	if st.Market != nil {
		st.Market.ApplyModifiers(m.MarketModifiers)
	}
	res.MarketEffect = &active
	res.applied("market", active.ID, float64(duration))
}
