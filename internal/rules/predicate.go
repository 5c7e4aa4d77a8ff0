// Package rules holds the versioned clinical rule sets that label synthetic
// cases: the ordered implant table, the ordered procedure table and the
// vocabulary and default distributions each rule set ships with.
package rules

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ortho-cohortgen/internal/domain"
)

// Subject is what a predicate is evaluated against. Implant tables leave
// Implant empty; procedure tables fill it. Scenario is empty when a procedure
// is resolved outside case assembly.
type Subject struct {
	Scenario domain.Scenario
	Implant  domain.Implant
	Attrs    domain.AttributeSet
}

// Predicate is a pure condition over a Subject.
type Predicate interface {
	Match(s Subject) bool
	String() string
}

type always struct{}

func (always) Match(Subject) bool { return true }
func (always) String() string     { return "always" }

// Always matches every subject.
func Always() Predicate { return always{} }

type scenarioIn []domain.Scenario

func (p scenarioIn) Match(s Subject) bool { return slices.Contains(p, s.Scenario) }
func (p scenarioIn) String() string {
	return fmt.Sprintf("scenario in %s", quoteList(p))
}

// ScenarioIn matches when the case scenario is one of scenarios.
func ScenarioIn(scenarios ...domain.Scenario) Predicate { return scenarioIn(scenarios) }

type implantIn []domain.Implant

func (p implantIn) Match(s Subject) bool { return slices.Contains(p, s.Implant) }
func (p implantIn) String() string {
	return fmt.Sprintf("implant in %s", quoteList(p))
}

// ImplantIn matches when the recommended implant is one of implants.
func ImplantIn(implants ...domain.Implant) Predicate { return implantIn(implants) }

type numericCmp struct {
	field     domain.Field
	threshold float64
	above     bool
}

func (p numericCmp) Match(s Subject) bool {
	v := s.Attrs.Numeric(p.field)
	if p.above {
		return v > p.threshold
	}
	return v < p.threshold
}

func (p numericCmp) String() string {
	op := "<"
	if p.above {
		op = ">"
	}
	return fmt.Sprintf("%s %s %g", p.field, op, p.threshold)
}

// AgeAbove matches age > years.
func AgeAbove(years int) Predicate {
	return numericCmp{field: domain.FieldAge, threshold: float64(years), above: true}
}

// AgeBelow matches age < years.
func AgeBelow(years int) Predicate {
	return numericCmp{field: domain.FieldAge, threshold: float64(years)}
}

// BMIAbove matches bmi > v.
func BMIAbove(v float64) Predicate {
	return numericCmp{field: domain.FieldBMI, threshold: v, above: true}
}

// BMIBelow matches bmi < v.
func BMIBelow(v float64) Predicate {
	return numericCmp{field: domain.FieldBMI, threshold: v}
}

type categoryIn struct {
	field  domain.Field
	values []string
}

func (p categoryIn) Match(s Subject) bool {
	return slices.Contains(p.values, s.Attrs.Categorical(p.field))
}

func (p categoryIn) String() string {
	return fmt.Sprintf("%s in %s", p.field, quoteList(p.values))
}

// ActivityIn matches when activity_level is one of values.
func ActivityIn(values ...string) Predicate {
	return categoryIn{field: domain.FieldActivityLevel, values: values}
}

// ComorbidityIn matches when comorbidity is one of values.
func ComorbidityIn(values ...string) Predicate {
	return categoryIn{field: domain.FieldComorbidity, values: values}
}

// SmokingIn matches when smoking_status is one of values.
func SmokingIn(values ...string) Predicate {
	return categoryIn{field: domain.FieldSmokingStatus, values: values}
}

// AlcoholIn matches when alcohol_use is one of values.
func AlcoholIn(values ...string) Predicate {
	return categoryIn{field: domain.FieldAlcoholUse, values: values}
}

// DeformityIn matches when deformity is one of values.
func DeformityIn(values ...string) Predicate {
	return categoryIn{field: domain.FieldDeformity, values: values}
}

type allOf []Predicate

func (p allOf) Match(s Subject) bool {
	for _, c := range p {
		if !c.Match(s) {
			return false
		}
	}
	return true
}

func (p allOf) String() string { return joinPredicates(p, " AND ") }

// All matches when every predicate matches. All() is always true.
func All(preds ...Predicate) Predicate { return allOf(preds) }

type anyOf []Predicate

func (p anyOf) Match(s Subject) bool {
	for _, c := range p {
		if c.Match(s) {
			return true
		}
	}
	return false
}

func (p anyOf) String() string { return joinPredicates(p, " OR ") }

// Any matches when at least one predicate matches. Any() is always false.
func Any(preds ...Predicate) Predicate { return anyOf(preds) }

type not struct{ inner Predicate }

func (p not) Match(s Subject) bool { return !p.inner.Match(s) }
func (p not) String() string       { return "NOT " + p.inner.String() }

// Not negates p.
func Not(p Predicate) Predicate { return not{inner: p} }

func joinPredicates(preds []Predicate, sep string) string {
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func quoteList[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%q", string(v))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
