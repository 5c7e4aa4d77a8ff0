package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ortho-cohortgen/internal/domain"
	"github.com/ortho-cohortgen/internal/rules"
	"github.com/ortho-cohortgen/internal/sampler"
)

// Plan is a validated generation configuration: a rule set plus the merged
// attribute distributions and scenario weights. It is immutable and shared
// across streams and batches.
type Plan struct {
	ruleSet       *rules.RuleSet
	distributions map[domain.Field]domain.DistributionConfig
	scenarios     []domain.ScenarioWeight
	attributes    *sampler.AttributeSampler
	scenario      *sampler.ScenarioSampler
	fingerprint   string
}

// NewPlan merges overrides onto the rule set's defaults and validates the
// result. Any error is a ConfigurationError or DomainViolationError and is
// raised before a single record is drawn.
func NewPlan(rs *rules.RuleSet, overrides map[string]domain.DistributionConfig, scenarios []domain.ScenarioWeight) (*Plan, error) {
	if rs == nil {
		return nil, domain.NewConfigurationError("rule_set", "no rule set selected")
	}

	dists := make(map[domain.Field]domain.DistributionConfig, len(rs.Profile)+len(overrides))
	for f, cfg := range rs.Profile {
		dists[f] = cfg
	}
	for name, cfg := range overrides {
		dists[domain.Field(name)] = cfg
	}

	if len(scenarios) == 0 {
		scenarios = rs.ScenarioWeights
	}
	weights := make([]domain.ScenarioWeight, len(scenarios))
	copy(weights, scenarios)

	attrs, err := sampler.NewAttributeSampler(rs.Vocabulary, dists)
	if err != nil {
		return nil, fmt.Errorf("attribute distributions for %s: %w", rs.Version, err)
	}
	sc, err := sampler.NewScenarioSampler(rs.Vocabulary, weights)
	if err != nil {
		return nil, fmt.Errorf("scenario distribution for %s: %w", rs.Version, err)
	}

	p := &Plan{
		ruleSet:       rs,
		distributions: dists,
		scenarios:     weights,
		attributes:    attrs,
		scenario:      sc,
	}
	p.fingerprint, err = p.computeFingerprint()
	if err != nil {
		return nil, err
	}
	return p, nil
}

// RuleSet returns the plan's rule set.
func (p *Plan) RuleSet() *rules.RuleSet {
	return p.ruleSet
}

// Schema returns the tabular layout of records produced by this plan.
func (p *Plan) Schema() domain.TableSchema {
	return p.ruleSet.Schema()
}

// Fingerprint identifies the configuration. Identical fingerprint, seed and
// sample count yield identical records.
func (p *Plan) Fingerprint() string {
	return p.fingerprint
}

// ScenarioProbabilities returns the normalized scenario distribution.
func (p *Plan) ScenarioProbabilities() map[domain.Scenario]float64 {
	return p.scenario.Probabilities()
}

// computeFingerprint hashes canonical JSON; encoding/json sorts map keys.
func (p *Plan) computeFingerprint() (string, error) {
	canonical := struct {
		RuleSet       string                                     `json:"rule_set"`
		Distributions map[domain.Field]domain.DistributionConfig `json:"distributions"`
		Scenarios     []domain.ScenarioWeight                    `json:"scenarios"`
	}{
		RuleSet:       p.ruleSet.Version,
		Distributions: p.distributions,
		Scenarios:     p.scenarios,
	}
	raw, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint plan: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
