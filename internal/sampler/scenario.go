package sampler

import (
	"fmt"
	"math/rand/v2"

	"github.com/ortho-cohortgen/internal/domain"
)

// ScenarioSampler draws one scenario per call from a normalized weighted
// distribution.
type ScenarioSampler struct {
	dist *Categorical
}

// NewScenarioSampler normalizes weights once. Order of weights is preserved
// and determines the draw mapping.
func NewScenarioSampler(vocab *domain.Vocabulary, weights []domain.ScenarioWeight) (*ScenarioSampler, error) {
	if len(weights) == 0 {
		return nil, domain.NewConfigurationError("scenarios", "no scenarios configured")
	}

	names := make([]string, len(weights))
	ws := make([]float64, len(weights))
	seen := make(map[domain.Scenario]bool, len(weights))
	for i, w := range weights {
		if !vocab.HasScenario(w.Name) {
			return nil, domain.NewDomainViolationError("scenarios", w.Name, "unknown scenario")
		}
		if seen[w.Name] {
			return nil, domain.NewConfigurationError("scenarios", fmt.Sprintf("duplicate scenario %q", w.Name))
		}
		seen[w.Name] = true
		names[i] = string(w.Name)
		ws[i] = w.Weight
	}

	dist, err := NewCategorical("scenarios", names, ws)
	if err != nil {
		return nil, err
	}
	return &ScenarioSampler{dist: dist}, nil
}

// Sample draws one scenario.
func (s *ScenarioSampler) Sample(r *rand.Rand) domain.Scenario {
	return domain.Scenario(s.dist.Draw(r))
}

// Probabilities returns the normalized probability of each scenario.
func (s *ScenarioSampler) Probabilities() map[domain.Scenario]float64 {
	raw := s.dist.Probabilities()
	out := make(map[domain.Scenario]float64, len(raw))
	for k, v := range raw {
		out[domain.Scenario(k)] = v
	}
	return out
}
