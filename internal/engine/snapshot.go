package engine

import (
	"fmt"
	"log/slog"

	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/entropy"
	"github.com/talgya/tradewinds/internal/events"
	"github.com/talgya/tradewinds/internal/game"
)

// Snapshot is the complete serializable state of a session. The catalog,
// products, and tuning are not included; Restore expects a Simulation built
// with the same ones. RNG is set only for seeded sources; a session drawing
// from random.org or crypto/rand resumes on a fresh stream.
type Snapshot struct {
	GameID       string                         `json:"game_id"`
	Seed         int64                          `json:"seed"`
	Week         int                            `json:"week"`
	MaxWeeks     int                            `json:"max_weeks"`
	Difficulty   game.Difficulty                `json:"difficulty"`
	Player       *game.Player                   `json:"player"`
	LocationID   string                         `json:"location_id"`
	MarketPrices map[string]economy.PricePoint  `json:"market_prices"`
	PriceHistory map[string]economy.PriceRecord `json:"price_history"`
	Visited      map[string]int                 `json:"visited"`
	Pending      *PendingEvent                  `json:"pending,omitempty"`
	Events       events.SaveState               `json:"events"`
	Log          []Event                        `json:"log"`
	LogSeq       int64                          `json:"log_seq"`
	RNG          *entropy.Position              `json:"rng,omitempty"`
	Outcome      Outcome                        `json:"outcome,omitempty"`
}

// Snapshot captures the session.
func (s *Simulation) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state.Clone()
	snap := Snapshot{
		GameID:       s.ID,
		Seed:         s.seed,
		Week:         st.Week,
		MaxWeeks:     st.MaxWeeks,
		Difficulty:   st.Difficulty,
		Player:       st.Player,
		LocationID:   st.Market.CurrentLocationID,
		MarketPrices: st.Market.ProductPrices,
		PriceHistory: make(map[string]economy.PriceRecord, len(s.history)),
		Visited:      make(map[string]int, len(s.visited)),
		Events:       s.events.SaveState(),
		Log:          append([]Event(nil), s.log...),
		LogSeq:       s.logSeq,
		Outcome:      s.outcome,
	}
	if src, ok := s.rng.(entropy.Positioner); ok {
		pos := src.Position()
		snap.RNG = &pos
	}
	for id, rec := range s.history {
		snap.PriceHistory[id] = rec
	}
	for id, w := range s.visited {
		snap.Visited[id] = w
	}
	if s.pending != nil {
		p := *s.pending
		snap.Pending = &p
	}
	return snap
}

// Restore replaces the session with snap.
func (s *Simulation) Restore(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Player == nil {
		return fmt.Errorf("restore: snapshot has no player")
	}
	market := s.state.Market.Clone()
	if _, ok := market.Location(snap.LocationID); !ok {
		return fmt.Errorf("restore: %w: %q", ErrUnknownLocation, snap.LocationID)
	}
	if snap.Pending != nil {
		if _, ok := s.events.Catalog().Get(snap.Pending.EventID); !ok {
			return fmt.Errorf("restore: pending event %q not in catalog", snap.Pending.EventID)
		}
	}
	market.CurrentLocationID = snap.LocationID
	for id, pp := range snap.MarketPrices {
		market.ProductPrices[id] = pp
	}

	if snap.Difficulty != s.state.Difficulty || snap.Seed != s.seed {
		s.seed = snap.Seed
		s.cfg = s.tuning.GameConfig(string(snap.Difficulty))
		s.prices = economy.NewPriceEngine(s.seed, s.cfg.VolatilityMultiplier)
	} else {
		s.prices.Invalidate()
	}
	s.ID = snap.GameID
	s.state = &game.State{
		Week:       snap.Week,
		MaxWeeks:   snap.MaxWeeks,
		Difficulty: snap.Difficulty,
		Player:     snap.Player.Clone(),
		Market:     market,
	}
	s.history = make(map[string]economy.PriceRecord, len(snap.PriceHistory))
	for id, rec := range snap.PriceHistory {
		s.history[id] = rec
	}
	s.visited = make(map[string]int, len(snap.Visited))
	for id, w := range snap.Visited {
		s.visited[id] = w
	}
	s.pending = nil
	if snap.Pending != nil {
		p := *snap.Pending
		s.pending = &p
	}
	s.events.LoadSaveState(snap.Events)
	s.log = append([]Event(nil), snap.Log...)
	s.logSeq = snap.LogSeq
	if n := len(s.log); n > 0 && s.log[n-1].Seq > s.logSeq {
		s.logSeq = s.log[n-1].Seq
	}
	if snap.RNG != nil {
		if src, ok := s.rng.(entropy.Positioner); ok {
			src.Seek(*snap.RNG)
		}
	}
	s.outcome = snap.Outcome
	s.refreshListing()

	slog.Info("simulation restored", "game", s.ID, "week", snap.Week, "outcome", snap.Outcome)
	return nil
}
