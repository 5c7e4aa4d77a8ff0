package rules

import (
	"fmt"

	"github.com/ortho-cohortgen/internal/domain"
)

// RuleSet bundles everything one labeling version needs: its vocabulary,
// default sampling profile, scenario weights, tabular columns and the two
// ordered decision tables.
type RuleSet struct {
	Version         string
	Description     string
	Vocabulary      *domain.Vocabulary
	Profile         map[domain.Field]domain.DistributionConfig
	ScenarioWeights []domain.ScenarioWeight
	Columns         []string
	Implants        *Table[domain.Implant]
	Procedures      *Table[domain.Procedure]
}

// Labels is the pair of recommendations for one case, with the names of the
// branches that produced them.
type Labels struct {
	Implant         domain.Implant   `json:"implant"`
	Procedure       domain.Procedure `json:"procedure"`
	ImplantBranch   string           `json:"implant_branch"`
	ProcedureBranch string           `json:"procedure_branch"`
}

// RecommendImplant evaluates the implant table for a scenario and patient.
func (rs *RuleSet) RecommendImplant(s domain.Scenario, a domain.AttributeSet) domain.Implant {
	return rs.Implants.Evaluate(Subject{Scenario: s, Attrs: a}).Result
}

// ResolveProcedure evaluates the procedure table for an implant and patient
// with no scenario context.
func (rs *RuleSet) ResolveProcedure(imp domain.Implant, a domain.AttributeSet) domain.Procedure {
	return rs.Procedures.Evaluate(Subject{Implant: imp, Attrs: a}).Result
}

// Label assigns both recommendations for a case being assembled. The
// procedure subject carries the case scenario.
func (rs *RuleSet) Label(s domain.Scenario, a domain.AttributeSet) Labels {
	im := rs.Implants.Evaluate(Subject{Scenario: s, Attrs: a})
	pm := rs.Procedures.Evaluate(Subject{Scenario: s, Implant: im.Result, Attrs: a})
	return Labels{
		Implant:         im.Result,
		Procedure:       pm.Result,
		ImplantBranch:   im.Branch,
		ProcedureBranch: pm.Branch,
	}
}

// Schema returns the tabular layout of this rule set's records.
func (rs *RuleSet) Schema() domain.TableSchema {
	fields := make([]domain.Field, len(rs.Vocabulary.Fields))
	copy(fields, rs.Vocabulary.Fields)
	columns := make([]string, len(rs.Columns))
	copy(columns, rs.Columns)
	return domain.TableSchema{Fields: fields, Columns: columns}
}

// Validate checks the rule set is internally closed: tables only emit
// vocabulary values, every declared field has a default distribution and
// columns line up with the declared fields.
func (rs *RuleSet) Validate() error {
	if rs.Version == "" {
		return domain.NewConfigurationError("rule_set", "rule set has no version")
	}
	if rs.Vocabulary == nil || rs.Implants == nil || rs.Procedures == nil {
		return domain.NewConfigurationError("rule_set", fmt.Sprintf("rule set %s is incomplete", rs.Version))
	}
	if err := rs.Implants.Validate(rs.Vocabulary.HasImplant); err != nil {
		return domain.NewConfigurationError("rule_set", err.Error())
	}
	if err := rs.Procedures.Validate(rs.Vocabulary.HasProcedure); err != nil {
		return domain.NewConfigurationError("rule_set", err.Error())
	}
	for _, f := range rs.Vocabulary.Fields {
		if _, ok := rs.Profile[f]; !ok {
			return domain.NewConfigurationError(f.String(), fmt.Sprintf("rule set %s has no default distribution", rs.Version))
		}
	}
	if want := len(rs.Vocabulary.Fields) + 3; len(rs.Columns) != want {
		return domain.NewConfigurationError("columns", fmt.Sprintf("rule set %s has %d columns, expected %d", rs.Version, len(rs.Columns), want))
	}
	for _, w := range rs.ScenarioWeights {
		if !rs.Vocabulary.HasScenario(w.Name) {
			return domain.NewDomainViolationError("scenarios", w.Name, "default weight for unknown scenario")
		}
	}
	return nil
}

// Summary is a read-only view of a rule set for inspection endpoints.
type Summary struct {
	Version          string                  `json:"version"`
	Description      string                  `json:"description"`
	Columns          []string                `json:"columns"`
	Scenarios        []domain.ScenarioWeight `json:"scenarios"`
	ImplantRules     []BranchSummary         `json:"implant_rules"`
	DefaultImplant   domain.Implant          `json:"default_implant"`
	ProcedureRules   []BranchSummary         `json:"procedure_rules"`
	DefaultProcedure domain.Procedure        `json:"default_procedure"`
}

// BranchSummary renders one branch for display.
type BranchSummary struct {
	Name   string `json:"name"`
	Family Family `json:"family"`
	When   string `json:"when"`
	Then   string `json:"then"`
}

// Summarize renders the rule set for inspection.
func (rs *RuleSet) Summarize() Summary {
	return Summary{
		Version:          rs.Version,
		Description:      rs.Description,
		Columns:          rs.Columns,
		Scenarios:        rs.ScenarioWeights,
		ImplantRules:     summarizeBranches(rs.Implants.Branches),
		DefaultImplant:   rs.Implants.Default,
		ProcedureRules:   summarizeBranches(rs.Procedures.Branches),
		DefaultProcedure: rs.Procedures.Default,
	}
}

func summarizeBranches[R ~string](branches []Branch[R]) []BranchSummary {
	out := make([]BranchSummary, len(branches))
	for i, b := range branches {
		out[i] = BranchSummary{Name: b.Name, Family: b.Family, When: b.When.String(), Then: string(b.Then)}
	}
	return out
}
