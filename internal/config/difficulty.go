package config

// EventConfig tunes how often events fire and how often they are good news.
type EventConfig struct {
	EventFrequency      float64 `json:"event_frequency"`
	PositiveEventChance float64 `json:"positive_event_chance"`
}

// GameConfig is the tuning preset for one difficulty.
type GameConfig struct {
	Events               EventConfig `json:"events"`
	StartingMoney        int64       `json:"starting_money"`
	StartingDebt         int64       `json:"starting_debt"`
	Capacity             int         `json:"capacity"`
	DebtInterestRate     float64     `json:"debt_interest_rate"`    // Weekly
	DepositInterestRate  float64     `json:"deposit_interest_rate"` // Weekly
	VolatilityMultiplier float64     `json:"volatility_multiplier"`
	VictoryNetWorth      int64       `json:"victory_net_worth"` // 0 disables early victory
	BankruptcyDebt       int64       `json:"bankruptcy_debt"`   // Debt beyond assets that ends the game
}

// PhaseMultipliers scale tuning by how far into the game the player is.
type PhaseMultipliers struct {
	EventMultiplier float64 `json:"event_multiplier"`
}

var presets = map[string]GameConfig{
	"easy": {
		Events:               EventConfig{EventFrequency: 0.35, PositiveEventChance: 0.65},
		StartingMoney:        5000,
		StartingDebt:         3000,
		Capacity:             120,
		DebtInterestRate:     0.03,
		DepositInterestRate:  0.01,
		VolatilityMultiplier: 0.8,
		VictoryNetWorth:      1_000_000,
		BankruptcyDebt:       100_000,
	},
	"normal": {
		Events:               EventConfig{EventFrequency: 0.40, PositiveEventChance: 0.50},
		StartingMoney:        2000,
		StartingDebt:         5000,
		Capacity:             100,
		DebtInterestRate:     0.05,
		DepositInterestRate:  0.008,
		VolatilityMultiplier: 1.0,
		VictoryNetWorth:      2_000_000,
		BankruptcyDebt:       50_000,
	},
	"hard": {
		Events:               EventConfig{EventFrequency: 0.50, PositiveEventChance: 0.40},
		StartingMoney:        1000,
		StartingDebt:         8000,
		Capacity:             80,
		DebtInterestRate:     0.07,
		DepositInterestRate:  0.005,
		VolatilityMultiplier: 1.25,
		VictoryNetWorth:      5_000_000,
		BankruptcyDebt:       30_000,
	},
}

// GetGameConfig returns the preset for difficulty, falling back to normal.
func GetGameConfig(difficulty string) GameConfig {
	if c, ok := presets[difficulty]; ok {
		return c
	}
	return presets["normal"]
}

// GetGamePhaseMultipliers returns the phase scaling for week out of maxWeeks.
// Events ramp up through the game.
func GetGamePhaseMultipliers(week, maxWeeks int) PhaseMultipliers {
	if maxWeeks <= 0 {
		return PhaseMultipliers{EventMultiplier: 1}
	}
	f := float64(week) / float64(maxWeeks)
	switch {
	case f < 0.3:
		return PhaseMultipliers{EventMultiplier: 0.8}
	case f < 0.7:
		return PhaseMultipliers{EventMultiplier: 1.0}
	default:
		return PhaseMultipliers{EventMultiplier: 1.2}
	}
}

// Provider supplies game tuning. The package-level functions satisfy it via
// Defaults; tests substitute fixed tables.
type Provider interface {
	GameConfig(difficulty string) GameConfig
	PhaseMultipliers(week, maxWeeks int) PhaseMultipliers
}

type defaults struct{}

func (defaults) GameConfig(difficulty string) GameConfig { return GetGameConfig(difficulty) }
func (defaults) PhaseMultipliers(week, maxWeeks int) PhaseMultipliers {
	return GetGamePhaseMultipliers(week, maxWeeks)
}

// Defaults is the built-in Provider.
var Defaults Provider = defaults{}
