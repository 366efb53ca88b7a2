package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/events"
)

// LocationReport is the result of moving to a location.
type LocationReport struct {
	Location   economy.Location          `json:"location"`
	FirstVisit bool                      `json:"first_visit"`
	Products   []economy.LocationProduct `json:"products"`
	Event      *events.Definition        `json:"event,omitempty"`
}

// Resolution is the result of answering a pending event.
type Resolution struct {
	EventID   string              `json:"event_id"`
	Option    string              `json:"option"`
	Result    string              `json:"result"`
	Effects   events.EffectResult `json:"effects"`
	Next      *events.Definition  `json:"next,omitempty"`
	Relocated string              `json:"relocated,omitempty"`
}

// TradeReceipt records a completed purchase or sale.
type TradeReceipt struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"` // Negative for sales
	UnitPrice int    `json:"unit_price"`
	Total     int64  `json:"total"`
}

// ChangeLocation moves the player to id, refreshes the listing, and gives
// location events a chance to fire.
func (s *Simulation) ChangeLocation(id string) (LocationReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome != OutcomeNone {
		return LocationReport{}, ErrGameOver
	}
	return s.changeLocation(id)
}

func (s *Simulation) changeLocation(id string) (LocationReport, error) {
	loc, ok := s.state.Market.Location(id)
	if !ok {
		return LocationReport{}, fmt.Errorf("%w: %q", ErrUnknownLocation, id)
	}
	s.state.Market.CurrentLocationID = id
	_, seen := s.visited[id]
	if !seen {
		s.visited[id] = s.state.Week
	}
	s.refreshListing()
	s.logf(s.state.Week, "travel", "travelled to %s", loc.Name)

	report := LocationReport{Location: loc, FirstVisit: !seen, Products: append([]economy.LocationProduct(nil), s.listing...)}
	if s.pending == nil {
		if def := s.locationEvent(); def != nil {
			s.fire(def, false)
			report.Event = def
		}
	}
	slog.Debug("location changed", "location", id, "first_visit", !seen, "week", s.state.Week)
	return report, nil
}

func (s *Simulation) locationEvent() *events.Definition {
	var eligible []*events.Definition
	for _, d := range s.events.Catalog().All() {
		if d.Type == events.TypeLocation && s.events.IsEligible(d, s.state) {
			eligible = append(eligible, d)
		}
	}
	return s.events.SelectWeighted(eligible, s.state.Progress())
}

// ResolveEvent answers the pending event with option index, applies its
// effects, and follows any chain or relocation it requests.
func (s *Simulation) ResolveEvent(index int) (Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome != OutcomeNone {
		return Resolution{}, ErrGameOver
	}
	if s.pending == nil {
		return Resolution{}, ErrNoPendingEvent
	}
	id := s.pending.EventID
	def, ok := s.events.Catalog().Get(id)
	if !ok {
		s.pending = nil
		return Resolution{}, fmt.Errorf("%w: event %q left the catalog", ErrNoPendingEvent, id)
	}

	res, err := s.events.ResolveOption(s.state, def, index)
	if errors.Is(err, events.ErrOptionUnavailable) {
		return Resolution{}, fmt.Errorf("%w: %v", ErrInvalidOption, err)
	}
	if err != nil {
		return Resolution{}, err
	}
	s.events.RecordEvent(def.ID, s.state.Week)
	s.pending = nil

	opt := def.Options[index]
	out := Resolution{EventID: def.ID, Option: opt.Text, Result: opt.Result, Effects: res}
	s.logf(s.state.Week, "event", "%s: %s", def.Title, opt.Result)
	for _, f := range res.Failed {
		s.metrics.EffectFailed(f.Reason)
		slog.Debug("effect failed", "event", def.ID, "type", f.Type, "target", f.Target, "reason", f.Reason)
	}
	if res.MarketEffect != nil {
		s.logf(s.state.Week, "market", "%s until week %d", res.MarketEffect.Description, res.MarketEffect.ExpiryWeek)
		s.metrics.SetActiveEffects(len(s.events.ActiveMarketEffects()))
	}

	if res.LocationChange != "" {
		if _, err := s.changeLocation(res.LocationChange); err != nil {
			slog.Warn("event relocation ignored", "event", def.ID, "error", err)
		} else {
			out.Relocated = res.LocationChange
		}
	}
	if res.NextEvent != "" && s.pending == nil {
		if next, ok := s.events.Catalog().Get(res.NextEvent); ok && (next.Repeatable || s.events.Occurrences(next.ID) == 0) {
			s.fire(next, true)
			if s.pending != nil {
				out.Next = next
			}
		}
	}
	s.refreshListing()
	return out, nil
}

// Buy purchases quantity units at the current location's display price.
func (s *Simulation) Buy(productID string, quantity int) (TradeReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lp, err := s.tradeable(productID, quantity)
	if err != nil {
		return TradeReceipt{}, err
	}
	p := s.state.Player
	total := int64(lp.Price) * int64(quantity)
	if total > p.Money {
		return TradeReceipt{}, fmt.Errorf("%w: %d %s costs %d, have %d", ErrTrade, quantity, productID, total, p.Money)
	}
	if p.InventoryUsed(s.state.Market.Products)+quantity*lp.Product.Size > p.Capacity {
		return TradeReceipt{}, fmt.Errorf("%w: not enough capacity for %d %s", ErrTrade, quantity, productID)
	}
	p.Money -= total
	p.AddItem(productID, quantity, lp.Price)
	s.logf(s.state.Week, "trade", "bought %d %s at %d", quantity, lp.Product.Name, lp.Price)
	return TradeReceipt{ProductID: productID, Quantity: quantity, UnitPrice: lp.Price, Total: total}, nil
}

// Sell sells quantity units at the current location's display price.
func (s *Simulation) Sell(productID string, quantity int) (TradeReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lp, err := s.tradeable(productID, quantity)
	if err != nil {
		return TradeReceipt{}, err
	}
	p := s.state.Player
	if held := p.Quantity(productID); held < quantity {
		return TradeReceipt{}, fmt.Errorf("%w: holding %d %s, selling %d", ErrTrade, held, productID, quantity)
	}
	p.RemoveItem(productID, quantity)
	total := int64(lp.Price) * int64(quantity)
	p.Money += total
	s.logf(s.state.Week, "trade", "sold %d %s at %d", quantity, lp.Product.Name, lp.Price)
	return TradeReceipt{ProductID: productID, Quantity: -quantity, UnitPrice: lp.Price, Total: total}, nil
}

func (s *Simulation) tradeable(productID string, quantity int) (economy.LocationProduct, error) {
	if s.outcome != OutcomeNone {
		return economy.LocationProduct{}, ErrGameOver
	}
	if quantity <= 0 {
		return economy.LocationProduct{}, fmt.Errorf("%w: quantity %d", ErrTrade, quantity)
	}
	for _, lp := range s.listing {
		if lp.Product.ID == productID {
			return lp, nil
		}
	}
	return economy.LocationProduct{}, fmt.Errorf("%w: %q", ErrUnknownProduct, productID)
}
