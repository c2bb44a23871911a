package risk

import (
	"fmt"
	"time"
)

// Weights distribute the four signal contributions. Only relative magnitude
// matters; the sum is the divisor.
type Weights struct {
	Device      int `conf:"device" yaml:"device" json:"device"`
	Network     int `conf:"network" yaml:"network" json:"network"`
	Behavior    int `conf:"behavior" yaml:"behavior" json:"behavior"`
	Sensitivity int `conf:"sensitivity" yaml:"sensitivity" json:"sensitivity"`
}

// Boundaries split the score range into the four clearance tiers.
// A score s maps to FULL when s <= FullMax, STANDARD when s <= StandardMax,
// ELEVATED when s <= ElevatedMax and DENIED above that.
type Boundaries struct {
	FullMax     int `conf:"full_max" yaml:"full_max" json:"full_max"`
	StandardMax int `conf:"standard_max" yaml:"standard_max" json:"standard_max"`
	ElevatedMax int `conf:"elevated_max" yaml:"elevated_max" json:"elevated_max"`
}

// Category describes one restricted-content class probed during payload scans.
// Patterns are searched unanchored; a hit contributes Score to the
// sensitivity signal.
type Category struct {
	Name     string   `conf:"name" yaml:"name" json:"name"`
	Score    int      `conf:"score" yaml:"score" json:"score"`
	Patterns []string `conf:"patterns" yaml:"patterns" json:"patterns"`
}

type Config struct {
	Weights    Weights    `conf:"weights" yaml:"weights" json:"weights"`
	Boundaries Boundaries `conf:"boundaries" yaml:"boundaries" json:"boundaries"`
	Categories []Category `conf:"categories" yaml:"categories" json:"categories"`

	// AttemptWindow is the sliding window for failed-validation tracking.
	AttemptWindow time.Duration `conf:"attempt_window" yaml:"attempt_window" json:"attempt_window"`

	// AttemptLimit is the failure count that saturates the behavior signal.
	AttemptLimit int `conf:"attempt_limit" yaml:"attempt_limit" json:"attempt_limit"`

	// TrackedActors bounds the attempt tracker LRU.
	TrackedActors int `conf:"tracked_actors" yaml:"tracked_actors" json:"tracked_actors"`
}

func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Device:      30,
			Network:     20,
			Behavior:    25,
			Sensitivity: 25,
		},
		Boundaries: Boundaries{
			FullMax:     25,
			StandardMax: 50,
			ElevatedMax: 75,
		},
		Categories: []Category{
			{
				Name:  "credentials",
				Score: 80,
				Patterns: []string{
					`(?i)password`,
					`(?i)secret`,
					`(?i)api[_-]?key`,
					`(?i)private[_-]?key`,
				},
			},
			{
				Name:  "payment",
				Score: 90,
				Patterns: []string{
					`\b(?:\d[ -]?){13,16}\b`,
					`(?i)card[_-]?number`,
				},
			},
			{
				Name:  "government-id",
				Score: 90,
				Patterns: []string{
					`\b\d{3}-\d{2}-\d{4}\b`,
					`(?i)passport[_-]?number`,
				},
			},
			{
				Name:  "health",
				Score: 70,
				Patterns: []string{
					`(?i)diagnosis`,
					`(?i)prescription`,
					`(?i)medical[_-]?record`,
				},
			},
		},
		AttemptWindow: 15 * time.Minute,
		AttemptLimit:  5,
		TrackedActors: 4096,
	}
}

func (c Config) Validate() error {
	w := c.Weights
	if w.Device < 0 || w.Network < 0 || w.Behavior < 0 || w.Sensitivity < 0 {
		return fmt.Errorf("risk: weights must be non-negative, got %+v", w)
	}

	if w.Device+w.Network+w.Behavior+w.Sensitivity <= 0 {
		return fmt.Errorf("risk: weights must not all be zero")
	}

	b := c.Boundaries
	if b.FullMax < 0 || b.FullMax >= b.StandardMax || b.StandardMax >= b.ElevatedMax || b.ElevatedMax >= 100 {
		return fmt.Errorf("risk: boundaries must satisfy 0 <= full < standard < elevated < 100, got %+v", b)
	}

	for _, cat := range c.Categories {
		if cat.Name == "" {
			return fmt.Errorf("risk: category name must not be empty")
		}

		if cat.Score < 0 || cat.Score > 100 {
			return fmt.Errorf("risk: category %q score must be in [0,100], got %d", cat.Name, cat.Score)
		}

		if len(cat.Patterns) == 0 {
			return fmt.Errorf("risk: category %q has no patterns", cat.Name)
		}
	}

	if c.AttemptWindow <= 0 {
		return fmt.Errorf("risk: attempt_window must be positive, got %v", c.AttemptWindow)
	}

	if c.AttemptLimit <= 0 {
		return fmt.Errorf("risk: attempt_limit must be positive, got %d", c.AttemptLimit)
	}

	if c.TrackedActors <= 0 {
		return fmt.Errorf("risk: tracked_actors must be positive, got %d", c.TrackedActors)
	}

	return nil
}
