// Package controller - This file contains the hysteresis controller that turns the
// activity signal into a position and a repetition count.
package controller

import (
	"strings"

	"github.com/pkg/errors"
)

// Position is where the tracked body is relative to its resting pose.
type Position int

const (
	// CloseToInitial means the latest activity is at or below the baseline.
	CloseToInitial Position = iota
	// AwayFromInitial means the latest activity is above the baseline.
	AwayFromInitial
)

// String returns the snake_case name of the position.
func (p Position) String() string {
	switch p {
	case CloseToInitial:
		return "close_to_initial"
	case AwayFromInitial:
		return "away_from_initial"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Position) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Position) UnmarshalText(text []byte) error {
	switch string(text) {
	case "close_to_initial":
		*p = CloseToInitial
	case "away_from_initial":
		*p = AwayFromInitial
	default:
		return errors.Errorf("controller: unknown position %q", text)
	}
	return nil
}

// CountingPolicy selects which position changes count as a repetition.
type CountingPolicy string

const (
	// CountOnReturn counts only the away -> close change: one full cycle is one repetition.
	CountOnReturn CountingPolicy = "return"
	// CountEveryFlip counts every position change.
	CountEveryFlip CountingPolicy = "every_flip"
)

// DefaultCountingPolicy is the policy used when none is configured.
const DefaultCountingPolicy = CountOnReturn

// ParseCountingPolicy converts a configuration string into a CountingPolicy.
func ParseCountingPolicy(s string) (CountingPolicy, error) {
	switch CountingPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultCountingPolicy, nil
	case CountOnReturn, "on_return":
		return CountOnReturn, nil
	case CountEveryFlip, "every-flip", "flip":
		return CountEveryFlip, nil
	default:
		return "", errors.Errorf("controller: unknown counting policy %q", s)
	}
}

// Transition describes the outcome of one Decide call.
type Transition struct {
	From        Position
	To          Position
	Changed     bool
	Counted     bool
	Repetitions int
}

// Controller is a two-state hysteresis machine over the activity signal.
//
// It holds only the current position and the repetition counter. History lives
// in the activity window; the controller is handed the latest value and the
// baseline computed after that value was added.
type Controller struct {
	Policy      CountingPolicy
	Current     Position
	Repetitions int
}

// New creates a controller in the CloseToInitial position with a zero count.
//
// Arguments:
//   - policy: The counting policy, DefaultCountingPolicy when empty.
//
// Returns:
//   - *Controller: The initialized controller.
//
// @example
// c := New(CountOnReturn)
// t := c.Decide(50, 27.5)
func New(policy CountingPolicy) *Controller {
	if policy == "" {
		policy = DefaultCountingPolicy
	}
	return &Controller{Policy: policy, Current: CloseToInitial}
}

// Decide compares value to baseline and updates the position and counter.
//
// A value strictly above the baseline is AwayFromInitial, anything else is
// CloseToInitial. Staying in the same position is a no-op.
//
// Arguments:
//   - value: The latest activity sample value.
//   - baseline: The baseline of the window including that sample.
//
// Returns:
//   - Transition: What changed on this call.
func (c *Controller) Decide(value int, baseline float64) Transition {
	next := CloseToInitial
	if float64(value) > baseline {
		next = AwayFromInitial
	}

	t := Transition{From: c.Current, To: next}
	if next == c.Current {
		t.Repetitions = c.Repetitions
		return t
	}

	c.Current = next
	t.Changed = true

	if c.Policy == CountEveryFlip || next == CloseToInitial {
		c.Repetitions++
		t.Counted = true
	}

	t.Repetitions = c.Repetitions
	return t
}

// Reset returns the controller to CloseToInitial with a zero count.
func (c *Controller) Reset() {
	c.Current = CloseToInitial
	c.Repetitions = 0
}
