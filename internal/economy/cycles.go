// Cyclical price pressure per product category.
package economy

import "math"

// cycle describes a category's weekly price oscillation.
type cycle struct {
	Amplitude float64 // Peak fractional swing
	Period    float64 // Weeks per full oscillation
	Phase     float64 // Radians
}

// Prices drift down slightly more often than up.
const cyclicalBias = 0.006

// categoryCycles gives each category its own rhythm. Food turns over fast with
// small swings, luxury goods move slowly with large ones.
var categoryCycles = map[string]cycle{
	"food":         {Amplitude: 0.025, Period: 8, Phase: 0},
	"daily":        {Amplitude: 0.020, Period: 10, Phase: math.Pi / 4},
	"electronics":  {Amplitude: 0.045, Period: 16, Phase: math.Pi / 2},
	"luxury":       {Amplitude: 0.060, Period: 26, Phase: math.Pi},
	"collectibles": {Amplitude: 0.070, Period: 20, Phase: 3 * math.Pi / 2},
	"medicine":     {Amplitude: 0.030, Period: 12, Phase: math.Pi / 3},
}

var defaultCycle = cycle{Amplitude: 0.030, Period: 12, Phase: 0}

// cycleFor returns the cycle for a category, falling back to the default.
func cycleFor(category string) cycle {
	if c, ok := categoryCycles[category]; ok {
		return c
	}
	return defaultCycle
}

// CyclicalFactor returns the category's sine-driven multiplier for week.
// offset is a small per-product phase shift so goods in one category do not
// move in lockstep.
func CyclicalFactor(category string, week int, offset float64) float64 {
	c := cycleFor(category)
	angle := 2*math.Pi*float64(week)/c.Period + c.Phase + offset
	return 1 + c.Amplitude*math.Sin(angle) - cyclicalBias
}

// secondaryFactor is a short weekly ripple shared by all categories.
func secondaryFactor(week int, offset float64) float64 {
	return 1 + 0.01*math.Cos(2*math.Pi*float64(week)/7+2*offset)
}
