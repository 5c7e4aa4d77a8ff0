package mcp

import (
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/ortho-cohortgen/internal/domain"
)

func ptr(f float64) *float64 { return &f }

func stringEnum(description string, values []string) *jsonschema.Schema {
	enum := make([]any, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return &jsonschema.Schema{Type: "string", Description: description, Enum: enum}
}

func attributesSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "object",
		Description: "Patient attributes. Categorical values must belong to the rule set's vocabulary.",
		Properties: map[string]*jsonschema.Schema{
			"age":            {Type: "integer", Minimum: ptr(0)},
			"gender":         {Type: "string"},
			"bmi":            {Type: "number", ExclusiveMinimum: ptr(0)},
			"activity_level": {Type: "string"},
			"comorbidity":    {Type: "string"},
			"smoking_status": {Type: "string", Description: "optimized-v2 only"},
			"alcohol_use":    {Type: "string", Description: "optimized-v2 only"},
			"deformity":      {Type: "string"},
			"bone_quality":   {Type: "string"},
		},
		Required: []string{"age", "bmi"},
	}
}

func distributionSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"kind":      stringEnum("Distribution kind", []string{"uniform_int", "uniform_real", "categorical", "clipped_normal"}),
			"min":       {Type: "number"},
			"max":       {Type: "number"},
			"mean":      {Type: "number"},
			"stddev":    {Type: "number", ExclusiveMinimum: ptr(0)},
			"precision": {Type: "integer", Description: "Real fields round to one decimal; only 1 is accepted"},
			"values":    {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			"weights":   {Type: "array", Items: &jsonschema.Schema{Type: "number", Minimum: ptr(0)}},
		},
		Required: []string{"kind"},
	}
}

func attributeOverridesSchema() *jsonschema.Schema {
	props := make(map[string]*jsonschema.Schema, len(domain.FieldOrder))
	for _, f := range domain.FieldOrder {
		props[f.String()] = distributionSchema()
	}
	return &jsonschema.Schema{
		Type:        "object",
		Description: "Per-field distribution overrides merged onto the rule set's defaults",
		Properties:  props,
	}
}

func generateCohortSchema(versions []string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"rule_set":    stringEnum("Rule set version", versions),
			"seed":        {Type: "integer", Description: "Generator seed; equal seeds give identical cohorts"},
			"num_samples": {Type: "integer", Minimum: ptr(1), Description: "Number of cases to generate"},
			"batch_size":  {Type: "integer", Minimum: ptr(0), Description: "Split generation into independently seeded batches"},
			"workers":     {Type: "integer", Minimum: ptr(0)},
			"attributes":  attributeOverridesSchema(),
			"scenarios": {
				Type:        "array",
				Description: "Ordered scenario weights replacing the rule set's defaults",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"name":   {Type: "string"},
						"weight": {Type: "number", Minimum: ptr(0)},
					},
					Required: []string{"name", "weight"},
				},
			},
			"persist":      {Type: "boolean", Description: "Store the run for later retrieval"},
			"export":       {Type: "boolean", Description: "Write the dataset and a manifest to the export directory"},
			"format":       stringEnum("Export format", []string{"csv", "json"}),
			"preview_rows": {Type: "integer", Minimum: ptr(0), Maximum: ptr(maxPreviewRows)},
		},
		Required: []string{"num_samples"},
	}
}

func recommendTreatmentSchema(versions []string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"rule_set":   stringEnum("Rule set version", versions),
			"scenario":   {Type: "string", Description: "Clinical scenario, e.g. Osteoarthritis"},
			"attributes": attributesSchema(),
		},
		Required: []string{"scenario", "attributes"},
	}
}

func listRuleSetsSchema(versions []string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"version": stringEnum("Only describe this rule set", versions),
		},
	}
}

func getCohortRunSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"run_id":       {Type: "string", Description: "Run UUID returned by generate_cohort"},
			"preview_rows": {Type: "integer", Minimum: ptr(0), Maximum: ptr(maxPreviewRows)},
		},
		Required: []string{"run_id"},
	}
}
