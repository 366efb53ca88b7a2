package events

import (
	"math"

	"github.com/talgya/tradewinds/internal/game"
)

const (
	triggerScaling   = 1.25
	maxTriggerChance = 0.95

	stagePolarityShift  = 0.1  // Early game leans positive, late game negative
	wealthPolarityShift = 0.1  // Struggling players get better luck, rich ones worse
	richMultiple        = 10   // "Rich" is this many times the starting money
	housePolarityShift  = 0.05 // Owners attract a little more trouble
	propertyPreference  = 0.5  // Chance an owner's event is drawn from property events
	minPositiveChance   = 0.1
	maxPositiveChance   = 0.9
)

// GenerateStageAppropriateEvent rolls whether an event fires this week and,
// if so, picks one that suits the game stage and the player's situation.
// It returns nil when nothing fires or nothing is eligible.
func (e *Engine) GenerateStageAppropriateEvent(st *game.State) *Definition {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg := e.tuning.GameConfig(string(st.Difficulty))
	phase := e.tuning.PhaseMultipliers(st.Week, st.MaxWeeks)
	chance := math.Min(cfg.Events.EventFrequency*phase.EventMultiplier*triggerScaling, maxTriggerChance)
	if e.rng.Float() >= chance {
		return nil
	}

	stage := st.Stage()
	positive := cfg.Events.PositiveEventChance
	switch stage {
	case game.StageEarly:
		positive += stagePolarityShift
	case game.StageLate:
		positive -= stagePolarityShift
	}
	ownsHouse := false
	if p := st.Player; p != nil {
		switch {
		case p.Money+p.Deposit < p.Debt:
			positive += wealthPolarityShift
		case cfg.StartingMoney > 0 && p.Money > richMultiple*cfg.StartingMoney:
			positive -= wealthPolarityShift
		}
		if ownsHouse = p.HasHouse(); ownsHouse {
			positive -= housePolarityShift
		}
	}
	positive = clampChance(positive)

	polarity := PolarityNegative
	if e.rng.Float() < positive {
		polarity = PolarityPositive
	}
	preferProperty := ownsHouse && e.rng.Float() < propertyPreference

	var matching, fallback, property []*Definition
	for _, d := range e.catalog.All() {
		if d.Stage != "" && d.Stage != stage {
			continue
		}
		if d.Type == TypeTutorial && stage != game.StageEarly {
			continue
		}
		if !e.isEligible(d, st) {
			continue
		}
		fallback = append(fallback, d)
		if d.Polarity == polarity || d.Polarity == PolarityNeutral {
			matching = append(matching, d)
			if d.Category == CategoryProperty {
				property = append(property, d)
			}
		}
	}

	candidates := matching
	switch {
	case preferProperty && len(property) > 0:
		candidates = property
	case len(matching) == 0:
		candidates = fallback
	}
	return e.selectWeighted(candidates, st.Progress())
}

func clampChance(p float64) float64 {
	return math.Max(minPositiveChance, math.Min(maxPositiveChance, p))
}
