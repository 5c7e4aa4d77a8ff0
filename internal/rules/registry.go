package rules

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/ortho-cohortgen/internal/domain"
)

// DefaultVersion is used when no rule set is configured.
const DefaultVersion = VersionOptimizedV2

// Registry holds the versioned rule sets. Versions are kept distinct and
// never merged.
type Registry struct {
	logger   *logrus.Logger
	ruleSets map[string]*RuleSet
}

// NewRegistry creates a registry with every built-in rule set. A built-in
// rule set that fails validation is a programming error and panics.
func NewRegistry(logger *logrus.Logger) *Registry {
	r := &Registry{
		logger:   logger,
		ruleSets: make(map[string]*RuleSet),
	}

	r.initializeRuleSets()

	return r
}

func (r *Registry) initializeRuleSets() {
	r.addRuleSet(optimizedV2())
	r.addRuleSet(clinicalV3())

	r.logger.WithField("rule_sets", len(r.ruleSets)).Debug("Initialized rule set registry")
}

func (r *Registry) addRuleSet(rs *RuleSet) {
	if err := rs.Validate(); err != nil {
		panic(fmt.Sprintf("built-in rule set %s is invalid: %v", rs.Version, err))
	}
	r.ruleSets[rs.Version] = rs

	r.logger.WithFields(logrus.Fields{
		"version":         rs.Version,
		"implant_rules":   len(rs.Implants.Branches),
		"procedure_rules": len(rs.Procedures.Branches),
		"scenarios":       len(rs.Vocabulary.Scenarios),
	}).Debug("Registered rule set")
}

// Get returns the rule set for version. An empty version selects the default.
func (r *Registry) Get(version string) (*RuleSet, error) {
	if version == "" {
		version = DefaultVersion
	}
	rs, ok := r.ruleSets[version]
	if !ok {
		return nil, domain.NewConfigurationError("rule_set", fmt.Sprintf("unknown rule set %q (available: %v)", version, r.Versions()))
	}
	return rs, nil
}

// Versions lists the registered versions in sorted order.
func (r *Registry) Versions() []string {
	versions := make([]string, 0, len(r.ruleSets))
	for v := range r.ruleSets {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}
