// Package statmath holds the pure simulation rules for a pet's condition:
// time-driven decay, action effect tables, and mood derivation. It performs
// no I/O and keeps no state, so every function here is trivially testable.
package statmath

import "time"

// Mood is the qualitative condition derived from a StatBlock.
type Mood string

const (
	MoodJoyful    Mood = "joyful"
	MoodSleepy    Mood = "sleepy"
	MoodPlayful   Mood = "playful"
	MoodConcerned Mood = "concerned"
	MoodCalm      Mood = "calm"
)

// Action is a user-initiated care action.
type Action string

const (
	ActionFeed  Action = "feed"
	ActionPlay  Action = "play"
	ActionBathe Action = "bathe"
	ActionRest  Action = "rest"
)

// IsValid reports whether a is a known action.
func (a Action) IsValid() bool {
	switch a {
	case ActionFeed, ActionPlay, ActionBathe, ActionRest:
		return true
	default:
		return false
	}
}

// StatBlock is the pet's condition vector. Every stat lives in [0, 100].
// Mood is always derived from the other fields, never set independently.
type StatBlock struct {
	Health      float64   `json:"health"`
	Hunger      float64   `json:"hunger"` // 0=starving, 100=full
	Happiness   float64   `json:"happiness"`
	Cleanliness float64   `json:"cleanliness"`
	Energy      float64   `json:"energy"`
	Mood        Mood      `json:"mood"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Per-second decay rates. Health only decays as a secondary effect once
// hunger or cleanliness fall below criticalThreshold, and more slowly
// than the primary stats.
const (
	hungerDecayPerSec      = 100.0 / (12 * 3600) // empty in ~12h
	happinessDecayPerSec   = 100.0 / (16 * 3600)
	cleanlinessDecayPerSec = 100.0 / (24 * 3600)
	energyDecayPerSec      = 100.0 / (18 * 3600)
	healthDecayPerSec      = 100.0 / (48 * 3600)

	criticalThreshold = 20.0
)

// Decay returns the stats after elapsed wall-clock time with no care.
// Decay is a function of elapsed time, not tick count: a single call with
// a long interval produces the same result as many calls covering the
// same interval, so closed sessions are caught up in one step. Mood is
// re-derived; LastUpdated is left to the caller.
func Decay(s StatBlock, elapsed time.Duration) StatBlock {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return s
	}

	s.Hunger = clamp(s.Hunger - secs*hungerDecayPerSec)
	s.Happiness = clamp(s.Happiness - secs*happinessDecayPerSec)
	s.Cleanliness = clamp(s.Cleanliness - secs*cleanlinessDecayPerSec)
	s.Energy = clamp(s.Energy - secs*energyDecayPerSec)

	// Neglect bleeds into health only past the critical threshold.
	if s.Hunger < criticalThreshold || s.Cleanliness < criticalThreshold {
		s.Health = clamp(s.Health - secs*healthDecayPerSec)
	}

	s.Mood = DeriveMood(s)
	return s
}

// ApplyAction returns the stats after a care action. Each action has a
// fixed table of signed deltas; results are clamped and mood re-derived.
func ApplyAction(s StatBlock, action Action) StatBlock {
	switch action {
	case ActionFeed:
		s.Hunger = clamp(s.Hunger + 30)
		s.Energy = clamp(s.Energy + 5)
	case ActionPlay:
		s.Happiness = clamp(s.Happiness + 25)
		s.Energy = clamp(s.Energy - 15)
		s.Hunger = clamp(s.Hunger - 10)
	case ActionBathe:
		s.Cleanliness = 100
		s.Happiness = clamp(s.Happiness + 10)
	case ActionRest:
		s.Energy = clamp(s.Energy + 40)
		s.Health = clamp(s.Health + 5)
	}

	s.Mood = DeriveMood(s)
	return s
}

// DeriveMood maps stats to a mood using priority-ordered rules.
// Exactly one rule fires; the order is fixed and load-bearing.
// Priority: joyful > sleepy > playful > concerned > calm.
func DeriveMood(s StatBlock) Mood {
	if s.Happiness >= 80 && s.Health >= 80 {
		return MoodJoyful
	}
	if s.Energy < 20 {
		return MoodSleepy
	}
	if s.Happiness >= 60 {
		return MoodPlayful
	}
	if s.Health < 40 {
		return MoodConcerned
	}
	return MoodCalm
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
