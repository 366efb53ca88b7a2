// Weekly price model. A product's new price is its previous price times a
// composite of independent factors, then protected against runaway swings and
// clamped to its band.
package economy

import (
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"

	opensimplex "github.com/ojrac/opensimplex-go"
	"golang.org/x/exp/constraints"
)

// Model constants.
const (
	divergenceChance     = 0.25  // Chance a trend flips toward its opposite
	baseVolatilityScale  = 0.012 // Base factor swing per volatility point
	noiseVolatilityScale = 0.006 // Simplex noise swing per volatility point
	specialDiscountMin   = 0.80
	specialDiscountSpan  = 0.05
	minMovement          = 0.005 // Floor on week-over-week movement
	maxSwingBase         = 0.20
	openingSwing         = 0.05 // First observation stays near base
	meanReversionPull    = 0.02 // Max pull toward the band center per week
)

// Hash salts keep the deterministic draws for one (product, week) independent.
const (
	saltBase uint64 = iota + 1
	saltDiverge
	saltSpecial
	saltDirection
	saltPhase
)

// PriceRecord is the computed price of one product for one week.
type PriceRecord struct {
	Price                int     `json:"price"`
	Trend                Trend   `json:"trend"`
	ChangePercent        float64 `json:"change_percent"`         // vs base price, 1dp; drives Trend
	WeekChangePercent    float64 `json:"week_change_percent"`    // vs previous price, 1dp
	OriginalPricePercent float64 `json:"original_price_percent"` // price as a percentage of base, 1dp
	Week                 int     `json:"week"`
}

type cacheKey struct {
	productID string
	week      int
	hasPrev   bool
	prevPrice int
	prevTrend Trend
	location  float64
	modifiers string
}

// PriceEngine computes weekly prices. Every draw is a pure function of
// (seed, product, week, inputs), so results are memoized per input tuple.
// Safe for concurrent use.
type PriceEngine struct {
	seed                 int64
	volatilityMultiplier float64
	noise                opensimplex.Noise

	mu    sync.RWMutex
	cache map[cacheKey]PriceRecord

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewPriceEngine creates a price engine. volatilityMultiplier scales the swing
// protection band; values ≤ 0 mean 1.
func NewPriceEngine(seed int64, volatilityMultiplier float64) *PriceEngine {
	if volatilityMultiplier <= 0 || math.IsNaN(volatilityMultiplier) {
		volatilityMultiplier = 1
	}
	return &PriceEngine{
		seed:                 seed,
		volatilityMultiplier: volatilityMultiplier,
		noise:                opensimplex.New(seed),
		cache:                make(map[cacheKey]PriceRecord),
	}
}

// Invalidate drops every memoized price. Call after catalog or tuning changes.
func (e *PriceEngine) Invalidate() {
	e.mu.Lock()
	e.cache = make(map[cacheKey]PriceRecord)
	e.mu.Unlock()
}

// CacheStats returns memoization hits, misses, and current size.
func (e *PriceEngine) CacheStats() (hits, misses uint64, size int) {
	e.mu.RLock()
	size = len(e.cache)
	e.mu.RUnlock()
	return e.hits.Load(), e.misses.Load(), size
}

// CalculatePrice returns the price of p for week given the previous record
// (nil on first observation), the caller's location factor, and external
// market modifiers. The result always lies in [p.MinPrice, p.MaxPrice].
func (e *PriceEngine) CalculatePrice(p Product, week int, previous *PriceRecord, locationFactor float64, mods MarketModifiers) (PriceRecord, error) {
	if err := p.Validate(); err != nil {
		return PriceRecord{}, err
	}
	if math.IsNaN(locationFactor) || math.IsInf(locationFactor, 0) || locationFactor <= 0 {
		return PriceRecord{}, fmt.Errorf("%w: location factor %v", ErrInvalidInput, locationFactor)
	}
	if err := mods.Validate(); err != nil {
		return PriceRecord{}, err
	}

	key := cacheKey{
		productID: p.ID,
		week:      week,
		location:  locationFactor,
		modifiers: mods.Key(),
	}
	if previous != nil && previous.Price > 0 {
		key.hasPrev = true
		key.prevPrice = previous.Price
		key.prevTrend = previous.Trend
	}

	e.mu.RLock()
	rec, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		e.hits.Add(1)
		return rec, nil
	}
	e.misses.Add(1)

	rec = e.compute(p, week, key, locationFactor, mods)

	e.mu.Lock()
	e.cache[key] = rec
	e.mu.Unlock()
	return rec, nil
}

func (e *PriceEngine) compute(p Product, week int, key cacheKey, locationFactor float64, mods MarketModifiers) PriceRecord {
	v := p.Volatility
	prevPrice := float64(p.BasePrice)
	prevTrend := TrendStable
	if key.hasPrev {
		prevPrice = float64(key.prevPrice)
		prevTrend = key.prevTrend
	}
	offset := e.unit(p.ID, 0, saltPhase) * 0.5

	base := 1 + (e.unit(p.ID, week, saltBase)-0.5)*baseVolatilityScale*v

	trend := prevTrend.Continuation()
	if e.unit(p.ID, week, saltDiverge) < divergenceChance {
		trend = prevTrend.Opposite().Continuation()
	}

	cyclical := CyclicalFactor(p.Category, week, offset)
	secondary := secondaryFactor(week, offset)

	special := 1.0
	if mods.IsSpecial(p.ID) {
		special = specialDiscountMin + specialDiscountSpan*e.unit(p.ID, week, saltSpecial)
	}

	noise := 1 + e.noiseAt(p.ID, week)*noiseVolatilityScale*v
	market := mods.FactorFor(p)

	composite := base * trend * cyclical * secondary * locationFactor * special * noise * market
	raw := prevPrice * composite

	// Mean reversion in the outer fifth of the band, stronger the deeper in.
	if pos, ok := p.BandPosition(raw); ok {
		if pos > highBandPosition {
			depth := math.Min(1, (pos-highBandPosition)/(1-highBandPosition))
			raw *= 1 - meanReversionPull*depth
		} else if pos < lowBandPosition {
			depth := math.Min(1, (lowBandPosition-pos)/lowBandPosition)
			raw *= 1 + meanReversionPull*depth
		}
	}

	// Swing protection.
	maxSwing := maxSwingBase * (1 + v/10) * e.volatilityMultiplier
	if !key.hasPrev {
		maxSwing = openingSwing
	}
	raw = clamp(raw, prevPrice*(1-maxSwing), prevPrice*(1+maxSwing))

	price := math.Round(raw)

	// Anti-stagnation floor. Skipped on first observation, where there is no
	// prior price to stagnate against.
	if key.hasPrev {
		minMove := math.Max(1, math.Ceil(prevPrice*minMovement))
		if math.Abs(price-prevPrice) < minMove {
			dir := 1.0
			switch {
			case raw < prevPrice:
				dir = -1
			case raw == prevPrice && composite < 1:
				dir = -1
			case raw == prevPrice && composite == 1 && e.unit(p.ID, week, saltDirection) < 0.5:
				dir = -1
			}
			price = prevPrice + dir*minMove
		}
	}

	price = clamp(price, float64(p.MinPrice), float64(p.MaxPrice))
	final := int(price)

	return PriceRecord{
		Price:                final,
		Trend:                TrendFor(p, final),
		ChangePercent:        round1(float64(final-p.BasePrice) / float64(p.BasePrice) * 100),
		WeekChangePercent:    round1((price - prevPrice) / prevPrice * 100),
		OriginalPricePercent: round1(float64(final) / float64(p.BasePrice) * 100),
		Week:                 week,
	}
}

// unit returns a deterministic value in [0,1) for (seed, productID, week, salt).
func (e *PriceEngine) unit(productID string, week int, salt uint64) float64 {
	h := fnv.New64a()
	h.Write([]byte(productID))
	x := h.Sum64()
	x ^= uint64(e.seed) * 0x9E3779B97F4A7C15
	x ^= uint64(int64(week)) * 0xBF58476D1CE4E5B9
	x ^= salt * 0x94D049BB133111EB
	x = splitmix64(x)
	return float64(x>>11) / float64(1<<53)
}

// noiseAt samples bounded simplex noise in [-1,1] along the week axis, with
// each product on its own row of the noise field.
func (e *PriceEngine) noiseAt(productID string, week int) float64 {
	row := e.unit(productID, 0, saltPhase) * 1000
	n := e.noise.Eval2(float64(week)*0.35, row)
	return clamp(n, -1, 1)
}

func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
