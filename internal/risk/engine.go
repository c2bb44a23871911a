// Package risk combines per-request signals into a single score and
// clearance tier. Signals the engine cannot compute are assumed worst case:
// a degraded source raises conservatism, never an availability error.
package risk

import (
	"github.com/keeldata/trustvault/internal/access"
	"github.com/keeldata/trustvault/internal/vault"
)

// Signals are the caller-supplied inputs. Nil means the source could not
// provide the signal.
type Signals struct {
	// DeviceTrust in [0,100], higher means more trusted. Inverted into risk.
	DeviceTrust *int

	// NetworkRisk in [0,100], higher means riskier origin.
	NetworkRisk *int
}

// Components are the four normalized risk contributions, each in [0,100].
type Components struct {
	Device      int `json:"device"`
	Network     int `json:"network"`
	Behavior    int `json:"behavior"`
	Sensitivity int `json:"sensitivity"`
}

type Assessment struct {
	Score      int         `json:"score"`
	Tier       access.Tier `json:"tier"`
	Components Components  `json:"components"`
	Categories []string    `json:"categories,omitempty"`
}

type Engine struct {
	cfg      Config
	attempts *AttemptTracker
	scanner  *Scanner
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	attempts, err := NewAttemptTracker(cfg.AttemptWindow, cfg.AttemptLimit, cfg.TrackedActors)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:      cfg,
		attempts: attempts,
		scanner:  NewScanner(cfg.Categories),
	}, nil
}

// Assess computes the combined score for one request. The combination is
// monotonic: raising any component never lowers the score.
func (e *Engine) Assess(actor vault.HashKey, payload []byte, signals Signals) Assessment {
	device := 100
	if signals.DeviceTrust != nil {
		device = 100 - clampSignal(*signals.DeviceTrust)
	}

	network := 100
	if signals.NetworkRisk != nil {
		network = clampSignal(*signals.NetworkRisk)
	}

	behavior := e.attempts.Score(actor)
	sensitivity, categories := e.scanner.Scan(payload)

	components := Components{
		Device:      device,
		Network:     network,
		Behavior:    behavior,
		Sensitivity: sensitivity,
	}

	score := e.combine(components)

	return Assessment{
		Score:      score,
		Tier:       e.TierFor(score),
		Components: components,
		Categories: categories,
	}
}

// RecordFailure notes a failed validation against the actor's sliding window.
func (e *Engine) RecordFailure(actor vault.HashKey) {
	e.attempts.RecordFailure(actor)
}

// ResetFailures clears the actor's failure history.
func (e *Engine) ResetFailures(actor vault.HashKey) {
	e.attempts.Reset(actor)
}

// ScanPayload exposes the sensitivity scan for the category gate.
func (e *Engine) ScanPayload(payload []byte) (int, []string) {
	return e.scanner.Scan(payload)
}

func (e *Engine) combine(c Components) int {
	w := e.cfg.Weights
	total := w.Device + w.Network + w.Behavior + w.Sensitivity

	weighted := w.Device*c.Device + w.Network*c.Network + w.Behavior*c.Behavior + w.Sensitivity*c.Sensitivity

	// Round to nearest; integer truncation would undercount.
	return (weighted + total/2) / total
}

// TierFor maps a score onto the configured tier boundaries.
func (e *Engine) TierFor(score int) access.Tier {
	b := e.cfg.Boundaries

	switch {
	case score <= b.FullMax:
		return access.TierFull
	case score <= b.StandardMax:
		return access.TierStandard
	case score <= b.ElevatedMax:
		return access.TierElevated
	default:
		return access.TierDenied
	}
}

func clampSignal(v int) int {
	if v < 0 {
		return 0
	}

	if v > 100 {
		return 100
	}

	return v
}
