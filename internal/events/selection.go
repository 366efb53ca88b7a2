package events

import "math"

// Selection weight multipliers.
const (
	storyWeight      = 1.2
	marketWeight     = 1.1
	chainWeight      = 1.3
	unseenWeight     = 2.0
	repeatDecay      = 0.5
	repeatDecayFloor = 0.2
	propertyProgress = 0.4 // Property events gain weight after this progress
)

// SelectWeighted picks one of eligible with probability proportional to its
// effective weight. It returns nil when every weight is zero. Ties resolve to
// the earliest entry.
func (e *Engine) SelectWeighted(eligible []*Definition, progress float64) *Definition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectWeighted(eligible, progress)
}

func (e *Engine) selectWeighted(eligible []*Definition, progress float64) *Definition {
	weights := make([]float64, len(eligible))
	total := 0.0
	for i, d := range eligible {
		weights[i] = e.weightFor(d, progress)
		total += weights[i]
	}
	if total <= 0 {
		return nil
	}

	r := e.rng.Float() * total
	var last *Definition
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		if r < w {
			return eligible[i]
		}
		r -= w
		last = eligible[i]
	}
	return last
}

// EffectiveWeight returns the selection weight def would have now.
func (e *Engine) EffectiveWeight(def *Definition, progress float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.weightFor(def, progress)
}

func (e *Engine) weightFor(d *Definition, progress float64) float64 {
	if e.deny[d.ID] {
		return 0
	}
	w := d.Weight
	switch d.Type {
	case TypeStory:
		w *= storyWeight
	case TypeMarket:
		w *= marketWeight
	}
	if d.Category == CategoryProperty && progress > propertyProgress {
		w *= 1 + progress
	}
	if d.HasChain() {
		w *= chainWeight
	}

	if n := e.occurrences(d.ID); n > 0 {
		if !d.Repeatable {
			return 0
		}
		w *= math.Max(repeatDecayFloor, math.Pow(repeatDecay, float64(n)))
	} else {
		w *= unseenWeight
	}
	if math.IsNaN(w) || w < 0 {
		return 0
	}
	return w
}
