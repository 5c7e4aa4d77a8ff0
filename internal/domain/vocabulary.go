package domain

import (
	"fmt"
	"slices"
)

// NumericBounds is the closed interval a numeric field must fall in.
type NumericBounds struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Contains reports whether v lies within the bounds.
func (b NumericBounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Vocabulary declares the fields a rule set uses and the finite domain of
// every categorical field, scenario, implant and procedure.
type Vocabulary struct {
	Fields     []Field                 `json:"fields"`
	Categories map[Field][]string      `json:"categories"`
	Bounds     map[Field]NumericBounds `json:"bounds"`
	Scenarios  []Scenario              `json:"scenarios"`
	Implants   []Implant               `json:"implants"`
	Procedures []Procedure             `json:"procedures"`
}

// Declares reports whether the rule set samples and emits field f.
func (v *Vocabulary) Declares(f Field) bool {
	return slices.Contains(v.Fields, f)
}

// Contains reports whether value belongs to the domain of categorical field f.
func (v *Vocabulary) Contains(f Field, value string) bool {
	return slices.Contains(v.Categories[f], value)
}

// HasScenario reports whether s is in the scenario domain.
func (v *Vocabulary) HasScenario(s Scenario) bool {
	return slices.Contains(v.Scenarios, s)
}

// HasImplant reports whether i is in the implant domain.
func (v *Vocabulary) HasImplant(i Implant) bool {
	return slices.Contains(v.Implants, i)
}

// HasProcedure reports whether p is in the procedure domain.
func (v *Vocabulary) HasProcedure(p Procedure) bool {
	return slices.Contains(v.Procedures, p)
}

// ValidateCategorical checks every categorical field of a against its domain.
// Undeclared fields must be empty.
func (v *Vocabulary) ValidateCategorical(a AttributeSet) error {
	for _, f := range FieldOrder {
		if f.IsNumeric() {
			continue
		}
		value := a.Categorical(f)
		if !v.Declares(f) {
			if value != "" {
				return NewDomainViolationError(f.String(), value, "field is not declared by this rule set")
			}
			continue
		}
		if !v.Contains(f, value) {
			return NewDomainViolationError(f.String(), value, fmt.Sprintf("expected one of %q", v.Categories[f]))
		}
	}
	return nil
}

// ValidateNumeric checks the numeric fields of a against the declared bounds.
func (v *Vocabulary) ValidateNumeric(a AttributeSet) error {
	for _, f := range FieldOrder {
		if !f.IsNumeric() || !v.Declares(f) {
			continue
		}
		b, ok := v.Bounds[f]
		if !ok {
			continue
		}
		if value := a.Numeric(f); !b.Contains(value) {
			return NewDomainViolationError(f.String(), value, fmt.Sprintf("outside bounds [%g, %g]", b.Min, b.Max))
		}
	}
	return nil
}

// ValidateAttributes checks both categorical domains and numeric bounds.
func (v *Vocabulary) ValidateAttributes(a AttributeSet) error {
	if err := v.ValidateCategorical(a); err != nil {
		return err
	}
	return v.ValidateNumeric(a)
}

// ValidateRecord checks schema closure of an assembled record.
func (v *Vocabulary) ValidateRecord(r CaseRecord) error {
	if err := v.ValidateAttributes(r.AttributeSet); err != nil {
		return err
	}
	if !v.HasScenario(r.Scenario) {
		return NewDomainViolationError("scenario", r.Scenario, "unknown scenario")
	}
	if !v.HasImplant(r.RecommendedImplant) {
		return NewDomainViolationError("recommended_implant", r.RecommendedImplant, "unknown implant")
	}
	if !v.HasProcedure(r.RecommendedProcedure) {
		return NewDomainViolationError("recommended_procedure", r.RecommendedProcedure, "unknown procedure")
	}
	return nil
}
