package events

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/talgya/tradewinds/internal/config"
	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/entropy"
	"github.com/talgya/tradewinds/internal/game"
)

// ErrOptionUnavailable is returned when resolving an option that does not
// exist or whose condition rejects the current state.
var ErrOptionUnavailable = errors.New("option unavailable")

// permanentCooldown blocks a non-repeatable event for the rest of the game.
const permanentCooldown = math.MaxInt32

var cooldownWeeks = map[Type]int{
	TypePersonal: 6,
	TypeMarket:   3,
	TypeLocation: 2,
}

const defaultCooldown = 4

// HistoryEntry records one occurrence of an event.
type HistoryEntry struct {
	ID   string `json:"id"`
	Week int    `json:"week"`
}

// SaveState is the serializable runtime state of an Engine.
type SaveState struct {
	TriggeredEvents []string                     `json:"triggeredEvents"`
	ActiveEvents    []economy.ActiveMarketEffect `json:"activeEvents"`
	EventHistory    []HistoryEntry               `json:"eventHistory"`
	Cooldowns       map[string]int               `json:"cooldowns"`
}

// Options configure an Engine.
type Options struct {
	Tuning config.Provider // nil means config.Defaults
	Deny   []string        // Event IDs never selected
}

// Engine decides which events fire and applies their effects. It owns the
// runtime state: triggered set, history, cooldowns, and active market effects.
// Safe for concurrent use.
type Engine struct {
	catalog *Catalog
	rng     entropy.Source
	tuning  config.Provider
	deny    map[string]bool

	mu        sync.Mutex
	triggered map[string]bool
	history   []HistoryEntry
	cooldowns map[string]int // event ID → last week still blocked
	active    []economy.ActiveMarketEffect
}

// NewEngine creates an engine over catalog drawing randomness from rng.
func NewEngine(catalog *Catalog, rng entropy.Source, opts Options) *Engine {
	if opts.Tuning == nil {
		opts.Tuning = config.Defaults
	}
	e := &Engine{
		catalog: catalog,
		rng:     rng,
		tuning:  opts.Tuning,
		deny:    make(map[string]bool, len(opts.Deny)),
	}
	for _, id := range opts.Deny {
		e.deny[id] = true
	}
	e.reset()
	return e
}

// Catalog returns the engine's catalog.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Reset clears all runtime state.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
}

func (e *Engine) reset() {
	e.triggered = make(map[string]bool)
	e.history = nil
	e.cooldowns = make(map[string]int)
	e.active = nil
}

// RecordEvent marks id as having fired at week and starts its cooldown.
func (e *Engine) RecordEvent(id string, week int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recordEvent(id, week)
}

func (e *Engine) recordEvent(id string, week int) {
	e.triggered[id] = true
	e.history = append(e.history, HistoryEntry{ID: id, Week: week})

	def, ok := e.catalog.Get(id)
	if ok && !def.Repeatable {
		e.cooldowns[id] = permanentCooldown
		return
	}
	weeks := defaultCooldown
	if ok {
		if w, found := cooldownWeeks[def.Type]; found {
			weeks = w
		}
	}
	e.cooldowns[id] = week + weeks
}

// Occurrences returns how many times id has fired.
func (e *Engine) Occurrences(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.occurrences(id)
}

func (e *Engine) occurrences(id string) int {
	n := 0
	for _, h := range e.history {
		if h.ID == id {
			n++
		}
	}
	return n
}

// History returns a copy of the event history, oldest first.
func (e *Engine) History() []HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]HistoryEntry(nil), e.history...)
}

// ResolveOption applies option index of def to st. The caller records the
// event; chaining and relocation are returned as intents.
func (e *Engine) ResolveOption(st *game.State, def *Definition, index int) (EffectResult, error) {
	if index < 0 || index >= len(def.Options) {
		return EffectResult{}, fmt.Errorf("%w: %s has no option %d", ErrOptionUnavailable, def.ID, index)
	}
	opt := def.Options[index]
	if !opt.Available(st) {
		return EffectResult{}, fmt.Errorf("%w: %s option %d", ErrOptionUnavailable, def.ID, index)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyEffects(st, opt.Effects, def.ID), nil
}

// ActiveMarketModifiers folds every effect active at week into one set of
// modifiers.
func (e *Engine) ActiveMarketModifiers(week int) economy.MarketModifiers {
	e.mu.Lock()
	defer e.mu.Unlock()
	return economy.FoldEffects(e.active, week)
}

// ActiveMarketEffects returns a copy of the effects not yet expired.
func (e *Engine) ActiveMarketEffects() []economy.ActiveMarketEffect {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]economy.ActiveMarketEffect(nil), e.active...)
}

// ExpireMarketEffects drops effects whose expiry is at or before week and
// returns how many were removed.
func (e *Engine) ExpireMarketEffects(week int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.active[:0]
	for _, a := range e.active {
		if a.ExpiryWeek > week {
			kept = append(kept, a)
		}
	}
	n := len(e.active) - len(kept)
	e.active = kept
	return n
}

// SaveState snapshots the runtime state. Loading the result and saving again
// yields an equal value.
func (e *Engine) SaveState() SaveState {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := SaveState{
		TriggeredEvents: make([]string, 0, len(e.triggered)),
		ActiveEvents:    append([]economy.ActiveMarketEffect{}, e.active...),
		EventHistory:    append([]HistoryEntry{}, e.history...),
		Cooldowns:       make(map[string]int, len(e.cooldowns)),
	}
	for id := range e.triggered {
		s.TriggeredEvents = append(s.TriggeredEvents, id)
	}
	sort.Strings(s.TriggeredEvents)
	for id, w := range e.cooldowns {
		s.Cooldowns[id] = w
	}
	return s
}

// LoadSaveState replaces the runtime state with s.
func (e *Engine) LoadSaveState(s SaveState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
	for _, id := range s.TriggeredEvents {
		e.triggered[id] = true
	}
	e.history = append(e.history, s.EventHistory...)
	for id, w := range s.Cooldowns {
		e.cooldowns[id] = w
	}
	e.active = append(e.active, s.ActiveEvents...)
}
