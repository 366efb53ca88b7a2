// Package events provides the event catalog and the engine that decides which
// event fires each week and applies its consequences.
package events

import (
	"math"

	"github.com/talgya/tradewinds/internal/game"
)

// Type classifies an event. It drives selection weight and cooldown length.
type Type string

const (
	TypeRandom   Type = "RANDOM"
	TypeStory    Type = "STORY"
	TypeLocation Type = "LOCATION"
	TypeMarket   Type = "MARKET"
	TypePersonal Type = "PERSONAL"
	TypeTutorial Type = "TUTORIAL"
)

func (t Type) valid() bool {
	switch t {
	case TypeRandom, TypeStory, TypeLocation, TypeMarket, TypePersonal, TypeTutorial:
		return true
	}
	return false
}

// Polarity says whether an event is good or bad news for the player.
type Polarity string

const (
	PolarityPositive Polarity = "positive"
	PolarityNegative Polarity = "negative"
	PolarityNeutral  Polarity = "neutral"
)

// CategoryProperty tags events about real estate.
const CategoryProperty = "property"

// Range is an inclusive numeric interval; a nil bound is open.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Between returns [lo, hi].
func Between(lo, hi float64) *Range { return &Range{Min: &lo, Max: &hi} }

// AtLeast returns [lo, ∞).
func AtLeast(lo float64) *Range { return &Range{Min: &lo} }

// AtMost returns (-∞, hi].
func AtMost(hi float64) *Range { return &Range{Max: &hi} }

// Contains reports whether v is inside the range. A nil range contains everything.
func (r *Range) Contains(v float64) bool {
	if r == nil {
		return true
	}
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

func (r *Range) valid() bool {
	if r == nil {
		return true
	}
	for _, b := range []*float64{r.Min, r.Max} {
		if b != nil && (math.IsNaN(*b) || math.IsInf(*b, 0)) {
			return false
		}
	}
	return r.Min == nil || r.Max == nil || *r.Min <= *r.Max
}

// Conditions gate when an event may fire. Zero values mean "no constraint";
// a zero Probability means always.
type Conditions struct {
	MinWeek        int               `json:"min_week,omitempty"`
	MaxWeek        int               `json:"max_week,omitempty"`
	Locations      []string          `json:"locations,omitempty"`
	Probability    float64           `json:"probability,omitempty"`
	Money          *Range            `json:"money,omitempty"`
	Debt           *Range            `json:"debt,omitempty"`
	Inventory      map[string]*Range `json:"inventory,omitempty"`  // product ID → quantity
	Attributes     map[string]*Range `json:"attributes,omitempty"` // missing attributes read as 0
	OwnsHouse      *bool             `json:"owns_house,omitempty"`
	RequiredEvents []string          `json:"required_events,omitempty"`
	ExcludedEvents []string          `json:"excluded_events,omitempty"`

	Custom func(*game.State) bool `json:"-"`
}

// Option is one choice the player can make when an event fires.
type Option struct {
	Text    string  `json:"text"`
	Result  string  `json:"result"`
	Effects Effects `json:"effects"`

	Condition func(*game.State) bool `json:"-"` // nil means always available
}

// Available reports whether the option can be chosen in st.
func (o Option) Available(st *game.State) bool {
	return o.Condition == nil || o.Condition(st)
}

// Definition is an immutable catalog entry.
type Definition struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Options     []Option   `json:"options"`
	Conditions  Conditions `json:"conditions"`
	Repeatable  bool       `json:"repeatable"`
	Type        Type       `json:"type"`
	Weight      float64    `json:"weight"`
	Stage       game.Stage `json:"stage,omitempty"`
	Category    string     `json:"category,omitempty"`
	Polarity    Polarity   `json:"polarity,omitempty"`
}

// HasChain reports whether any option names a follow-up event. Options hidden
// by a condition still count.
func (d *Definition) HasChain() bool {
	for _, o := range d.Options {
		if o.Effects.NextEvent != "" {
			return true
		}
	}
	return false
}

// AvailableOptions returns the indexes of options that can be chosen in st.
func (d *Definition) AvailableOptions(st *game.State) []int {
	var out []int
	for i, o := range d.Options {
		if o.Available(st) {
			out = append(out, i)
		}
	}
	return out
}
