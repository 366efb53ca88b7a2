package events

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/game"
)

//go:embed catalog.json
var defaultCatalogJSON []byte

// Catalog is an immutable, ordered set of event definitions. Order matters:
// weighted selection breaks ties toward earlier entries.
type Catalog struct {
	defs []*Definition
	byID map[string]*Definition
}

// NewCatalog validates defs and builds a catalog. Empty Type defaults to
// RANDOM, zero Weight to 1, and empty Polarity to neutral. Catalogs loaded
// from JSON may carry an explicit zero weight.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	defs = append([]Definition(nil), defs...)
	for i := range defs {
		if defs[i].Weight == 0 {
			defs[i].Weight = 1
		}
	}
	return buildCatalog(defs)
}

func buildCatalog(defs []Definition) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]*Definition, len(defs))}
	for i := range defs {
		d := defs[i]
		if d.Type == "" {
			d.Type = TypeRandom
		}
		if d.Polarity == "" {
			d.Polarity = PolarityNeutral
		}
		if err := validateDefinition(&d); err != nil {
			return nil, err
		}
		if len(d.Options) == 0 {
			slog.Warn("event has no options and will be skipped when it fires", "event", d.ID)
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, &economy.ConfigError{Kind: "event", ID: d.ID, Field: "id", Reason: "duplicate"}
		}
		c.defs = append(c.defs, &d)
		c.byID[d.ID] = &d
	}

	// Chains and dependencies must point at events that exist.
	for _, d := range c.defs {
		for _, o := range d.Options {
			if next := o.Effects.NextEvent; next != "" {
				if _, ok := c.byID[next]; !ok {
					return nil, &economy.ConfigError{Kind: "event", ID: d.ID, Field: "next_event", Reason: fmt.Sprintf("unknown event %q", next)}
				}
			}
		}
		for _, req := range d.Conditions.RequiredEvents {
			if _, ok := c.byID[req]; !ok {
				return nil, &economy.ConfigError{Kind: "event", ID: d.ID, Field: "required_events", Reason: fmt.Sprintf("unknown event %q", req)}
			}
		}
	}
	return c, nil
}

func validateDefinition(d *Definition) error {
	bad := func(field, reason string) error {
		return &economy.ConfigError{Kind: "event", ID: d.ID, Field: field, Reason: reason}
	}
	c := d.Conditions
	switch {
	case d.ID == "":
		return bad("id", "missing")
	case d.Title == "":
		return bad("title", "missing")
	case !d.Type.valid():
		return bad("type", fmt.Sprintf("unknown type %q", d.Type))
	case math.IsNaN(d.Weight) || math.IsInf(d.Weight, 0) || d.Weight < 0:
		return bad("weight", "must be a finite non-negative number")
	case d.Polarity != PolarityPositive && d.Polarity != PolarityNegative && d.Polarity != PolarityNeutral:
		return bad("polarity", fmt.Sprintf("unknown polarity %q", d.Polarity))
	case d.Stage != "" && d.Stage != game.StageEarly && d.Stage != game.StageMid && d.Stage != game.StageLate:
		return bad("stage", fmt.Sprintf("unknown stage %q", d.Stage))
	case c.MinWeek < 0 || c.MaxWeek < 0 || (c.MaxWeek > 0 && c.MinWeek > c.MaxWeek):
		return bad("conditions", "invalid week window")
	case math.IsNaN(c.Probability) || c.Probability > 1:
		return bad("probability", "must be within [0,1]")
	case !c.Money.valid() || !c.Debt.valid():
		return bad("conditions", "invalid money or debt range")
	}
	for k, r := range c.Inventory {
		if !r.valid() {
			return bad("inventory", "invalid range for "+k)
		}
	}
	for k, r := range c.Attributes {
		if !r.valid() {
			return bad("attributes", "invalid range for "+k)
		}
	}
	for i, o := range d.Options {
		if m := o.Effects.Market; m != nil {
			if err := m.MarketModifiers.Validate(); err != nil {
				return bad(fmt.Sprintf("options[%d].market", i), err.Error())
			}
			if m.DurationWeeks < 0 {
				return bad(fmt.Sprintf("options[%d].market", i), "negative duration")
			}
		}
	}
	return nil
}

// definitionJSON tells an absent weight apart from an explicit zero.
type definitionJSON struct {
	Definition
	Weight *float64 `json:"weight"`
}

// LoadCatalog decodes a JSON array of definitions. A missing weight defaults
// to 1; "weight": 0 keeps the event out of weighted selection.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var entries []definitionJSON
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode event catalog: %w", err)
	}
	defs := make([]Definition, len(entries))
	for i, e := range entries {
		defs[i] = e.Definition
		defs[i].Weight = 1
		if e.Weight != nil {
			defs[i].Weight = *e.Weight
		}
	}
	return buildCatalog(defs)
}

// DefaultCatalog returns the built-in catalog. It panics if the embedded file
// is malformed, which only a bad build can cause.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(bytes.NewReader(defaultCatalogJSON))
	if err != nil {
		panic(err)
	}
	return c
}

// Get looks up a definition.
func (c *Catalog) Get(id string) (*Definition, bool) {
	d, ok := c.byID[id]
	return d, ok
}

// All returns definitions in catalog order. Callers must not modify them.
func (c *Catalog) All() []*Definition {
	return c.defs
}

// Len returns the number of definitions.
func (c *Catalog) Len() int { return len(c.defs) }
