// Package engine provides the weekly game clock.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Status is the lifecycle state of an Engine.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusRunning    Status = "running"
	StatusPaused     Status = "paused"
	StatusOver       Status = "over"
)

// Engine drives a Simulation forward one week at a time.
type Engine struct {
	Sim *Simulation

	// OnWeek is called after every committed week, outside the engine lock.
	OnWeek func(WeekReport)

	mu     sync.Mutex
	status Status
}

// NewEngine wraps sim. A restored simulation that already ended starts Over.
func NewEngine(sim *Simulation) *Engine {
	e := &Engine{Sim: sim, status: StatusNotStarted}
	if sim.Outcome() != OutcomeNone {
		e.status = StatusOver
	}
	return e
}

// Status returns the lifecycle state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Start moves a new engine to Running.
func (e *Engine) Start() error {
	return e.transition(StatusNotStarted, StatusRunning)
}

// Pause stops weekly ticks until Resume.
func (e *Engine) Pause() error {
	return e.transition(StatusRunning, StatusPaused)
}

// Resume continues a paused engine.
func (e *Engine) Resume() error {
	return e.transition(StatusPaused, StatusRunning)
}

func (e *Engine) transition(from, to Status) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == StatusOver {
		return ErrGameOver
	}
	if e.status != from {
		return fmt.Errorf("cannot go from %s to %s", e.status, to)
	}
	e.status = to
	slog.Info("engine status changed", "game", e.Sim.ID, "status", to)
	return nil
}

// AdvanceWeek runs one tick. The engine must be Running.
func (e *Engine) AdvanceWeek(ctx context.Context) (WeekReport, error) {
	e.mu.Lock()
	switch e.status {
	case StatusOver:
		e.mu.Unlock()
		return WeekReport{}, ErrGameOver
	case StatusRunning:
	default:
		e.mu.Unlock()
		return WeekReport{}, ErrNotRunning
	}

	report, err := e.Sim.AdvanceWeek(ctx)
	if errors.Is(err, ErrGameOver) || report.Outcome != OutcomeNone {
		e.status = StatusOver
	}
	e.mu.Unlock()
	if err != nil {
		return report, err
	}

	if e.OnWeek != nil {
		e.OnWeek(report)
	}
	return report, nil
}

// Run advances up to weeks ticks and returns how many ran. It stops early
// when ctx is cancelled, when the engine is not running (ErrNotRunning), or
// when the game ends. There is no wall-clock pacing.
func (e *Engine) Run(ctx context.Context, weeks int) (int, error) {
	slog.Info("simulation engine started", "game", e.Sim.ID, "week", e.Sim.Week(), "weeks", weeks)
	done := 0
	for done < weeks {
		if err := ctx.Err(); err != nil {
			slog.Info("simulation engine stopped", "week", e.Sim.Week(), "reason", err)
			return done, err
		}
		report, err := e.AdvanceWeek(ctx)
		if err != nil {
			slog.Info("simulation engine stopped", "week", e.Sim.Week(), "reason", err)
			if errors.Is(err, ErrGameOver) {
				return done, nil
			}
			return done, err
		}
		done++
		if report.Outcome != OutcomeNone {
			break
		}
	}
	slog.Info("simulation engine stopped", "week", e.Sim.Week(), "weeks_run", done)
	return done, nil
}
