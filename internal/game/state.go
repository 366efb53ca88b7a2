package game

import "github.com/talgya/tradewinds/internal/economy"

// Difficulty selects a GameConfig preset.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyNormal Difficulty = "normal"
	DifficultyHard   Difficulty = "hard"
)

// Stage is the coarse game phase derived from elapsed weeks.
type Stage string

const (
	StageEarly Stage = "early"
	StageMid   Stage = "mid"
	StageLate  Stage = "late"
)

// State is everything an event or tick reads: the clock, the player, and the
// market snapshot.
type State struct {
	Week       int             `json:"week"`
	MaxWeeks   int             `json:"max_weeks"`
	Difficulty Difficulty      `json:"difficulty"`
	Player     *Player         `json:"player"`
	Market     *economy.Market `json:"market"`
}

// Progress returns the elapsed fraction of the game in [0,1].
func (s *State) Progress() float64 {
	if s.MaxWeeks <= 0 {
		return 0
	}
	f := float64(s.Week) / float64(s.MaxWeeks)
	if f > 1 {
		return 1
	}
	if f < 0 {
		return 0
	}
	return f
}

// Stage returns early below 30% progress, mid below 70%, late otherwise.
func (s *State) Stage() Stage {
	return StageAt(s.Week, s.MaxWeeks)
}

// StageAt computes the stage for week out of maxWeeks.
func StageAt(week, maxWeeks int) Stage {
	if maxWeeks <= 0 {
		return StageEarly
	}
	f := float64(week) / float64(maxWeeks)
	switch {
	case f < 0.3:
		return StageEarly
	case f < 0.7:
		return StageMid
	default:
		return StageLate
	}
}

// LocationID returns the player's current location.
func (s *State) LocationID() string {
	if s.Market == nil {
		return ""
	}
	return s.Market.CurrentLocationID
}

// Clone deep-copies the mutable parts of the state.
func (s *State) Clone() *State {
	c := *s
	c.Player = s.Player.Clone()
	c.Market = s.Market.Clone()
	return &c
}
