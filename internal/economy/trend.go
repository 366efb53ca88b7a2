package economy

// Trend is a qualitative label for a product's price direction and strength.
type Trend string

const (
	TrendRisingStrong  Trend = "rising_strong"
	TrendRising        Trend = "rising"
	TrendStable        Trend = "stable"
	TrendStableHigh    Trend = "stable_high"
	TrendStableLow     Trend = "stable_low"
	TrendFalling       Trend = "falling"
	TrendFallingStrong Trend = "falling_strong"
)

// Classification thresholds. Change is measured against the base price,
// position against the [min,max] band.
const (
	strongTrendThreshold = 0.15
	trendThreshold       = 0.05
	highBandPosition     = 0.8
	lowBandPosition      = 0.2
)

// trendContinuation is the per-tick multiplier a trend carries into the next week.
var trendContinuation = map[Trend]float64{
	TrendRisingStrong:  1.030,
	TrendRising:        1.015,
	TrendStable:        1.000,
	TrendStableHigh:    0.995,
	TrendStableLow:     1.005,
	TrendFalling:       0.985,
	TrendFallingStrong: 0.970,
}

// Opposite returns the trend pointing the other way with the same strength.
func (t Trend) Opposite() Trend {
	switch t {
	case TrendRisingStrong:
		return TrendFallingStrong
	case TrendRising:
		return TrendFalling
	case TrendFalling:
		return TrendRising
	case TrendFallingStrong:
		return TrendRisingStrong
	case TrendStableHigh:
		return TrendStableLow
	case TrendStableLow:
		return TrendStableHigh
	default:
		return TrendStable
	}
}

// Continuation returns the multiplier for the trend, 1.0 for unknown labels.
func (t Trend) Continuation() float64 {
	if f, ok := trendContinuation[t]; ok {
		return f
	}
	return 1.0
}

// Valid reports whether t is one of the known labels.
func (t Trend) Valid() bool {
	_, ok := trendContinuation[t]
	return ok
}

// ClassifyTrend labels a price from its fractional change against the base
// price and its position within the band. hasBand is false for a zero-width
// band, which always classifies as stable when the change is small.
func ClassifyTrend(changeFromBase, bandPosition float64, hasBand bool) Trend {
	switch {
	case changeFromBase > strongTrendThreshold:
		return TrendRisingStrong
	case changeFromBase < -strongTrendThreshold:
		return TrendFallingStrong
	case changeFromBase > trendThreshold:
		return TrendRising
	case changeFromBase < -trendThreshold:
		return TrendFalling
	case !hasBand:
		return TrendStable
	case bandPosition > highBandPosition:
		return TrendStableHigh
	case bandPosition < lowBandPosition:
		return TrendStableLow
	default:
		return TrendStable
	}
}

// TrendFor classifies price for product p.
func TrendFor(p Product, price int) Trend {
	change := float64(price-p.BasePrice) / float64(p.BasePrice)
	pos, ok := p.BandPosition(float64(price))
	return ClassifyTrend(change, pos, ok)
}
