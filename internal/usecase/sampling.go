package usecase

import (
	"math/rand/v2"

	"github.com/V4T54L/rumtrack/internal/domain"
)

// Sampler decides whether a captured event is reported.
type Sampler struct {
	policy domain.SamplingPolicy
	draw   func() float64
}

// NewSampler creates a Sampler over a copy of policy. draw returns a uniform
// value in [0,1); nil uses math/rand.
func NewSampler(policy domain.SamplingPolicy, draw func() float64) *Sampler {
	if draw == nil {
		draw = rand.Float64
	}
	return &Sampler{policy: policy.Clone(), draw: draw}
}

// ShouldReport looks up the rate for the event's type. Types missing from the
// policy are never reported.
func (s *Sampler) ShouldReport(ev domain.Event) bool {
	if ev == nil {
		return false
	}
	return s.decide(s.policy[ev.Type()])
}

// Rate returns the configured rate for t.
func (s *Sampler) Rate(t domain.EventType) float64 {
	return s.policy[t]
}

// Policy returns a copy of the sampling policy.
func (s *Sampler) Policy() domain.SamplingPolicy {
	return s.policy.Clone()
}

func (s *Sampler) decide(rate float64) bool {
	switch {
	case rate <= 0:
		return false
	case rate >= 1:
		return true
	default:
		return s.draw() < rate
	}
}
