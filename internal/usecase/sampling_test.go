package usecase

import (
	"math/rand/v2"
	"testing"

	"github.com/V4T54L/rumtrack/internal/domain"
)

func TestSampler_ShouldReport(t *testing.T) {
	policy := domain.SamplingPolicy{
		domain.EventError: 1,
		domain.EventClick: 0,
		domain.EventXHR:   0.5,
	}

	testCases := []struct {
		name string
		ev   domain.Event
		draw float64
		want bool
	}{
		{"rate one always reports", domain.ErrorEvent{Message: "boom"}, 0.999, true},
		{"rate zero never reports", domain.ClickEvent{}, 0, false},
		{"unknown type never reports", domain.CustomEvent{Kind: "heartbeat"}, 0, false},
		{"draw below rate reports", domain.APIEvent{Kind: domain.EventXHR}, 0.49, true},
		{"draw at rate is filtered", domain.APIEvent{Kind: domain.EventXHR}, 0.5, false},
		{"nil event", nil, 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSampler(policy, func() float64 { return tc.draw })
			if got := s.ShouldReport(tc.ev); got != tc.want {
				t.Errorf("ShouldReport() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSampler_EmpiricalRate(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	s := NewSampler(domain.SamplingPolicy{domain.EventClick: 0.1}, rng.Float64)

	const trials = 10000
	reported := 0
	for i := 0; i < trials; i++ {
		if s.ShouldReport(domain.ClickEvent{}) {
			reported++
		}
	}
	// 0.1 ± 0.02
	if reported < 800 || reported > 1200 {
		t.Errorf("reported %d of %d, expected about 1000", reported, trials)
	}
}

func TestSampler_PolicyIsCopied(t *testing.T) {
	policy := domain.SamplingPolicy{domain.EventError: 1}
	s := NewSampler(policy, nil)
	policy[domain.EventError] = 0

	if s.Rate(domain.EventError) != 1 {
		t.Error("sampler should not observe later changes to the policy")
	}
	p := s.Policy()
	p[domain.EventError] = 0
	if s.Rate(domain.EventError) != 1 {
		t.Error("Policy() should return a copy")
	}
}
