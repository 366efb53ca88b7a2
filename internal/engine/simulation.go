// Simulation ties the price model, the event engine, and the player state
// together and advances them one week at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/tradewinds/internal/config"
	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/entropy"
	"github.com/talgya/tradewinds/internal/events"
	"github.com/talgya/tradewinds/internal/game"
	"github.com/talgya/tradewinds/internal/metrics"
)

var (
	ErrGameOver        = errors.New("game over")
	ErrNotRunning      = errors.New("engine not running")
	ErrUnknownLocation = errors.New("unknown location")
	ErrNoPendingEvent  = errors.New("no pending event")
	ErrInvalidOption   = errors.New("invalid option")
	ErrUnknownProduct  = errors.New("unknown product")
	ErrTrade           = errors.New("trade rejected")
)

// Canonical prices are tracked without a location factor. The composite
// multiplies the previous price, so a weekly location factor would compound.
const canonicalLocationFactor = 1.0

// defaultLogLimit bounds the in-memory game log. Older entries live on in
// the database.
const defaultLogLimit = 1000

// Outcome is how a finished game ended.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeVictory   Outcome = "victory"
	OutcomeBankrupt  Outcome = "bankrupt"
	OutcomeCompleted Outcome = "completed"
)

// Event is a notable occurrence in the game log.
type Event struct {
	Seq         int64  `db:"seq" json:"seq"` // Increases by one per entry across the whole game
	Week        int    `db:"week" json:"week"`
	Description string `db:"description" json:"description"`
	Category    string `db:"category" json:"category"` // "game", "event", "market", "travel", "trade"
}

// PendingEvent is an event that fired and waits for the player's choice.
type PendingEvent struct {
	EventID string `json:"event_id"`
	Week    int    `json:"week"`
	Chained bool   `json:"chained"`
}

// WeekReport summarizes one tick.
type WeekReport struct {
	Week            int                            `json:"week"`
	Prices          map[string]economy.PriceRecord `json:"prices"`
	DebtInterest    int64                          `json:"debt_interest"`
	DepositInterest int64                          `json:"deposit_interest"`
	ExpiredEffects  int                            `json:"expired_effects"`
	Event           *events.Definition             `json:"event,omitempty"`
	Outcome         Outcome                        `json:"outcome,omitempty"`
}

// Options configure a new Simulation. Zero values select the defaults.
type Options struct {
	Difficulty    game.Difficulty
	MaxWeeks      int
	Seed          int64
	StartLocation string
	PlayerName    string
	Products      []economy.Product
	Locations     []economy.Location
	Catalog       *events.Catalog
	RNG           entropy.Source
	Tuning        config.Provider
	Metrics       *metrics.Registry
	DenyEvents    []string
	LogLimit      int // In-memory log entries kept; 0 means 1000
}

// Simulation holds the complete game session. All methods are safe for
// concurrent use; mutations are serialized.
type Simulation struct {
	ID string

	mu      sync.RWMutex
	state   *game.State
	seed    int64
	tuning  config.Provider
	cfg     config.GameConfig
	prices  *economy.PriceEngine
	events  *events.Engine
	history map[string]economy.PriceRecord // Canonical price per product
	listing []economy.LocationProduct
	visited map[string]int // Location → week of first visit
	pending *PendingEvent
	rng     entropy.Source
	log     []Event
	logSeq  int64
	logMax  int
	outcome Outcome
	metrics *metrics.Registry
}

// New creates a simulation at week 0 with opening prices.
func New(opts Options) (*Simulation, error) {
	if opts.Difficulty == "" {
		opts.Difficulty = game.DifficultyNormal
	}
	if opts.MaxWeeks <= 0 {
		opts.MaxWeeks = 52
	}
	if opts.Products == nil {
		opts.Products = economy.DefaultProducts()
	}
	if opts.Locations == nil {
		opts.Locations = economy.DefaultLocations()
	}
	if opts.Catalog == nil {
		opts.Catalog = events.DefaultCatalog()
	}
	if opts.RNG == nil {
		opts.RNG = entropy.NewSeeded(opts.Seed)
	}
	if opts.Tuning == nil {
		opts.Tuning = config.Defaults
	}
	if opts.PlayerName == "" {
		opts.PlayerName = "Trader"
	}
	if opts.LogLimit <= 0 {
		opts.LogLimit = defaultLogLimit
	}

	if err := economy.ValidateProducts(opts.Products); err != nil {
		return nil, err
	}
	for _, l := range opts.Locations {
		if err := l.Validate(); err != nil {
			return nil, err
		}
	}
	if opts.StartLocation == "" && len(opts.Locations) > 0 {
		opts.StartLocation = opts.Locations[0].ID
	}
	market := economy.NewMarket(opts.Products, opts.Locations, opts.StartLocation)
	if _, ok := market.Location(opts.StartLocation); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLocation, opts.StartLocation)
	}

	cfg := opts.Tuning.GameConfig(string(opts.Difficulty))
	s := &Simulation{
		ID: uuid.NewString(),
		state: &game.State{
			Week:       0,
			MaxWeeks:   opts.MaxWeeks,
			Difficulty: opts.Difficulty,
			Player: &game.Player{
				Name:       opts.PlayerName,
				Money:      cfg.StartingMoney,
				Debt:       cfg.StartingDebt,
				Capacity:   cfg.Capacity,
				Attributes: map[string]float64{"health": 100},
			},
			Market: market,
		},
		seed:    opts.Seed,
		tuning:  opts.Tuning,
		cfg:     cfg,
		prices:  economy.NewPriceEngine(opts.Seed, cfg.VolatilityMultiplier),
		events:  events.NewEngine(opts.Catalog, opts.RNG, events.Options{Tuning: opts.Tuning, Deny: opts.DenyEvents}),
		visited: map[string]int{opts.StartLocation: 0},
		rng:     opts.RNG,
		logMax:  opts.LogLimit,
		metrics: opts.Metrics,
	}

	opening, err := s.prices.BatchUpdatePrices(context.Background(), opts.Products, 0, nil, canonicalLocationFactor, economy.NeutralModifiers())
	if err != nil {
		return nil, fmt.Errorf("opening prices: %w", err)
	}
	market.SetPrices(opening)
	s.history = opening
	s.refreshListing()
	s.logf(0, "game", "%s arrives at %s with %d cash and %d debt", opts.PlayerName, opts.StartLocation, cfg.StartingMoney, cfg.StartingDebt)

	slog.Info("simulation created",
		"game", s.ID,
		"difficulty", opts.Difficulty,
		"max_weeks", opts.MaxWeeks,
		"products", len(opts.Products),
		"events", opts.Catalog.Len(),
	)
	return s, nil
}

// AdvanceWeek runs one weekly tick. Derived values are computed on a copy of
// the state and committed only when every step succeeded.
func (s *Simulation) AdvanceWeek(ctx context.Context) (WeekReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()

	if s.outcome != OutcomeNone {
		return WeekReport{}, ErrGameOver
	}
	if s.state.Week >= s.state.MaxWeeks {
		s.outcome = OutcomeCompleted
		return WeekReport{}, ErrGameOver
	}

	next := s.state.Clone()
	next.Week++
	debtInterest, depositInterest := accrueInterest(next.Player, s.cfg)

	mods := s.events.ActiveMarketModifiers(next.Week)
	records, err := s.prices.BatchUpdatePrices(ctx, next.Market.Products, next.Week, s.history, canonicalLocationFactor, mods)
	if err != nil {
		return WeekReport{}, fmt.Errorf("advance to week %d: %w", next.Week, err)
	}
	next.Market.SetPrices(records)
	outcome := s.checkOutcome(next)

	// Commit.
	s.state = next
	s.history = records
	report := WeekReport{
		Week:            next.Week,
		Prices:          records,
		DebtInterest:    debtInterest,
		DepositInterest: depositInterest,
		ExpiredEffects:  s.events.ExpireMarketEffects(next.Week),
		Outcome:         outcome,
	}
	if debtInterest > 0 {
		s.logf(next.Week, "game", "debt grew by %d in interest", debtInterest)
	}

	if outcome != OutcomeNone {
		s.finish(outcome)
	} else {
		before := s.pending
		s.generateEvents()
		if s.pending != nil && s.pending != before {
			report.Event, _ = s.events.Catalog().Get(s.pending.EventID)
		}
	}
	s.refreshListing()

	s.metrics.ObserveTick(time.Since(start))
	s.metrics.SetActiveEffects(len(s.events.ActiveMarketEffects()))
	s.metrics.SetPriceCache(s.prices.CacheStats())

	slog.Info("week advanced",
		"game", s.ID,
		"week", next.Week,
		"money", next.Player.Money,
		"debt", next.Player.Debt,
		"net_worth", next.Player.NetWorth(next.Market),
		"expired_effects", report.ExpiredEffects,
		"pending_event", s.pendingID(),
	)
	return report, nil
}

func (s *Simulation) checkOutcome(st *game.State) Outcome {
	worth := st.Player.NetWorth(st.Market)
	switch {
	case s.cfg.VictoryNetWorth > 0 && worth >= s.cfg.VictoryNetWorth:
		return OutcomeVictory
	case s.cfg.BankruptcyDebt > 0 && -worth >= s.cfg.BankruptcyDebt:
		return OutcomeBankrupt
	case st.Week >= st.MaxWeeks:
		return OutcomeCompleted
	}
	return OutcomeNone
}

func (s *Simulation) finish(o Outcome) {
	s.outcome = o
	s.pending = nil
	p := s.state.Player
	s.logf(s.state.Week, "game", "game over: %s with net worth %d", o, p.NetWorth(s.state.Market))
	slog.Info("game over", "game", s.ID, "week", s.state.Week, "outcome", o, "net_worth", p.NetWorth(s.state.Market))
}

// generateEvents rolls for the week's event, with a second attempt every
// third week. Nothing is generated while an event is still pending.
func (s *Simulation) generateEvents() {
	if s.pending != nil {
		return
	}
	attempts := 1
	if s.state.Week%3 == 0 {
		attempts = 2
	}
	for i := 0; i < attempts && s.pending == nil; i++ {
		if def := s.events.GenerateStageAppropriateEvent(s.state); def != nil {
			s.fire(def, false)
		}
	}
}

func (s *Simulation) fire(def *events.Definition, chained bool) {
	s.metrics.EventTriggered(string(def.Type))
	if len(def.AvailableOptions(s.state)) == 0 {
		slog.Warn("event has no available options, skipping", "event", def.ID, "week", s.state.Week, "options", len(def.Options))
		s.events.RecordEvent(def.ID, s.state.Week)
		return
	}
	s.pending = &PendingEvent{EventID: def.ID, Week: s.state.Week, Chained: chained}
	s.logf(s.state.Week, "event", "%s: %s", def.Title, def.Description)
	slog.Debug("event fired", "event", def.ID, "type", def.Type, "week", s.state.Week, "chained", chained)
}

func (s *Simulation) pendingID() string {
	if s.pending == nil {
		return ""
	}
	return s.pending.EventID
}

// refreshListing rebuilds the current location's display prices from the
// market's displayed prices.
func (s *Simulation) refreshListing() {
	loc, ok := s.state.Market.CurrentLocation()
	if !ok {
		return
	}
	display := make(map[string]economy.PriceRecord, len(s.history))
	for id, rec := range s.history {
		if pp, ok := s.state.Market.Price(id); ok {
			rec.Price = pp.Price
			rec.Trend = pp.Trend
		}
		display[id] = rec
	}
	listing, err := s.prices.GenerateLocationProducts(s.state.Market.Products, loc, display, s.state.Week, s.events.ActiveMarketModifiers(s.state.Week))
	if err != nil {
		slog.Warn("location listing failed", "location", loc.ID, "error", err)
		return
	}
	s.listing = listing
}

func (s *Simulation) logf(week int, category, format string, args ...any) {
	s.logSeq++
	s.log = append(s.log, Event{Seq: s.logSeq, Week: week, Description: fmt.Sprintf(format, args...), Category: category})
	if len(s.log) > s.logMax {
		s.log = s.log[len(s.log)-s.logMax:]
	}
}

// State returns a copy of the current game state.
func (s *Simulation) State() *game.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Week returns the current week.
func (s *Simulation) Week() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Week
}

// Outcome returns how the game ended, or OutcomeNone while it runs.
func (s *Simulation) Outcome() Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outcome
}

// GameConfig returns the tuning for the session's difficulty.
func (s *Simulation) GameConfig() config.GameConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Prices returns the canonical price records of the current week.
func (s *Simulation) Prices() map[string]economy.PriceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]economy.PriceRecord, len(s.history))
	for id, rec := range s.history {
		out[id] = rec
	}
	return out
}

// Listing returns the current location's display prices.
func (s *Simulation) Listing() []economy.LocationProduct {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]economy.LocationProduct(nil), s.listing...)
}

// Pending returns the event awaiting resolution.
func (s *Simulation) Pending() (*events.Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pending == nil {
		return nil, false
	}
	return s.events.Catalog().Get(s.pending.EventID)
}

// Log returns the last n log entries, or all when n ≤ 0.
func (s *Simulation) Log(n int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if n > 0 && len(s.log) > n {
		start = len(s.log) - n
	}
	return append([]Event(nil), s.log[start:]...)
}

// OldestLogSeq returns the sequence number of the oldest entry still held in
// memory, or 0 when the log is empty.
func (s *Simulation) OldestLogSeq() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.log) == 0 {
		return 0
	}
	return s.log[0].Seq
}

// InvalidatePrices drops the price engine's memoized results.
func (s *Simulation) InvalidatePrices() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.prices.Invalidate()
}

// ActiveModifiers returns the folded market modifiers for the current week.
func (s *Simulation) ActiveModifiers() economy.MarketModifiers {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events.ActiveMarketModifiers(s.state.Week)
}

// ActiveEffects returns the market effects not yet expired.
func (s *Simulation) ActiveEffects() []economy.ActiveMarketEffect {
	return s.events.ActiveMarketEffects()
}

// EventRuntime returns the event engine's runtime state.
func (s *Simulation) EventRuntime() events.SaveState {
	return s.events.SaveState()
}

// Visited returns each visited location with the week of the first visit.
func (s *Simulation) Visited() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.visited))
	for id, w := range s.visited {
		out[id] = w
	}
	return out
}
