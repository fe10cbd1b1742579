// Package scoring converts a graded answer into points.
package scoring

import (
	"math"

	"live-quiz-service/internal/domain"
)

const (
	DefaultBaseScore        = 1000
	DefaultDecayFactor      = 0.5
	DefaultMinScoreFraction = 0.5
)

// Config holds the latency decay parameters.
type Config struct {
	BaseScore        int     `yaml:"baseScore"`
	DecayFactor      float64 `yaml:"decayFactor"`
	MinScoreFraction float64 `yaml:"minScoreFraction"`
}

// DefaultConfig returns the standard decay: full points at zero latency,
// linear decay to half the base score at the time limit.
func DefaultConfig() Config {
	return Config{
		BaseScore:        DefaultBaseScore,
		DecayFactor:      DefaultDecayFactor,
		MinScoreFraction: DefaultMinScoreFraction,
	}
}

// Engine scores answers. The zero value is not usable; build it with New.
type Engine struct {
	cfg Config
}

// New returns an engine, replacing out-of-range parameters with defaults.
func New(cfg Config) Engine {
	if cfg.BaseScore <= 0 {
		cfg.BaseScore = DefaultBaseScore
	}
	if cfg.DecayFactor < 0 {
		cfg.DecayFactor = DefaultDecayFactor
	}
	if cfg.MinScoreFraction < 0 || cfg.MinScoreFraction > 1 {
		cfg.MinScoreFraction = DefaultMinScoreFraction
	}
	return Engine{cfg: cfg}
}

// Config returns the effective parameters.
func (e Engine) Config() Config {
	return e.cfg
}

// Score returns the points for an answer given after elapsedMs.
// The question's own base score wins over the configured one.
func (e Engine) Score(q domain.Question, isCorrect bool, elapsedMs int64) int {
	if !isCorrect {
		return 0
	}
	base := q.BaseScore
	if base <= 0 {
		base = e.cfg.BaseScore
	}
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	limitMs := float64(q.TimeLimit().Milliseconds())
	fraction := 1 - e.cfg.DecayFactor*float64(elapsedMs)/limitMs
	fraction = math.Min(1, math.Max(e.cfg.MinScoreFraction, fraction))
	return int(math.Round(float64(base) * fraction))
}
