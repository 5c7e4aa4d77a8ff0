package service

import (
	"github.com/sirupsen/logrus"

	"github.com/ortho-cohortgen/internal/domain"
	"github.com/ortho-cohortgen/internal/metrics"
	"github.com/ortho-cohortgen/internal/rules"
)

// Recommendation is the labeled outcome for one user-supplied case.
type Recommendation struct {
	RuleSet         string              `json:"rule_set"`
	Scenario        domain.Scenario     `json:"scenario"`
	Attributes      domain.AttributeSet `json:"attributes"`
	Implant         domain.Implant      `json:"recommended_implant"`
	Procedure       domain.Procedure    `json:"recommended_procedure"`
	ImplantBranch   string              `json:"implant_branch"`
	ProcedureBranch string              `json:"procedure_branch"`
}

// Recommender labels individual cases without sampling.
type Recommender struct {
	registry *rules.Registry
	logger   *logrus.Logger
	metrics  *metrics.Collector
}

// NewRecommender creates a recommender over registry. m may be nil.
func NewRecommender(registry *rules.Registry, logger *logrus.Logger, m *metrics.Collector) *Recommender {
	return &Recommender{registry: registry, logger: logger, metrics: m}
}

// Recommend validates the case against the rule set's vocabulary and returns
// both labels. Values outside the vocabulary are rejected, never coerced.
// Numeric fields are not bound-checked: a real patient may fall outside the
// sampling range.
func (r *Recommender) Recommend(version string, scenario domain.Scenario, attrs domain.AttributeSet) (*Recommendation, error) {
	rs, err := r.registry.Get(version)
	if err != nil {
		return nil, err
	}
	if !rs.Vocabulary.HasScenario(scenario) {
		return nil, domain.NewDomainViolationError("scenario", scenario, "unknown scenario for rule set "+rs.Version)
	}
	if err := rs.Vocabulary.ValidateCategorical(attrs); err != nil {
		return nil, err
	}
	if attrs.Age < 0 {
		return nil, domain.NewDomainViolationError(domain.FieldAge.String(), attrs.Age, "must not be negative")
	}
	if attrs.BMI <= 0 {
		return nil, domain.NewDomainViolationError(domain.FieldBMI.String(), attrs.BMI, "must be positive")
	}

	labels := rs.Label(scenario, attrs)
	r.metrics.ObserveRecommendation(rs.Version, labels.Implant)

	r.logger.WithFields(logrus.Fields{
		"rule_set":         rs.Version,
		"scenario":         scenario,
		"implant_branch":   labels.ImplantBranch,
		"procedure_branch": labels.ProcedureBranch,
	}).Debug("Served recommendation")

	return &Recommendation{
		RuleSet:         rs.Version,
		Scenario:        scenario,
		Attributes:      attrs,
		Implant:         labels.Implant,
		Procedure:       labels.Procedure,
		ImplantBranch:   labels.ImplantBranch,
		ProcedureBranch: labels.ProcedureBranch,
	}, nil
}
