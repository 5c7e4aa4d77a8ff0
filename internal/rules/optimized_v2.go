package rules

import (
	"github.com/ortho-cohortgen/internal/domain"
)

// VersionOptimizedV2 is the balanced fourteen-scenario rule set.
const VersionOptimizedV2 = "optimized-v2"

var (
	fractureScenarios    = []domain.Scenario{domain.ScenarioDistalFemoralFracture, domain.ScenarioProximalTibialFracture, domain.ScenarioPatellarFracture}
	arthritisScenarios   = []domain.Scenario{domain.ScenarioOsteoarthritis, domain.ScenarioRheumatoidArthritis, domain.ScenarioPostTraumaticArthritis}
	tumorScenarios       = []domain.Scenario{domain.ScenarioPrimaryBoneTumor, domain.ScenarioMetastaticLesion}
	instabilityScenarios = []domain.Scenario{domain.ScenarioMechanicalFailure, domain.ScenarioPatellofemoralDisorder, domain.ScenarioCongenitalDisorder}
	softTissueScenarios  = []domain.Scenario{domain.ScenarioCartilageInjury, domain.ScenarioLigamentousInjury, domain.ScenarioMeniscalDamage}
)

func optimizedV2() *RuleSet {
	vocab := &domain.Vocabulary{
		Fields: []domain.Field{
			domain.FieldAge, domain.FieldGender, domain.FieldBMI, domain.FieldActivityLevel, domain.FieldComorbidity,
			domain.FieldSmokingStatus, domain.FieldAlcoholUse, domain.FieldDeformity, domain.FieldBoneQuality,
		},
		Categories: map[domain.Field][]string{
			domain.FieldGender:        {"Male", "Female"},
			domain.FieldActivityLevel: {"Low", "Moderate", "High"},
			domain.FieldComorbidity:   {"None", "Diabetes", "Rheumatoid Arthritis", "Osteoporosis", "Multiple"},
			domain.FieldSmokingStatus: {"Non-smoker", "Former Smoker", "Current Smoker"},
			domain.FieldAlcoholUse:    {"No", "Occasional", "Regular"},
			domain.FieldDeformity:     {"None", "Valgus", "Varus", "Rotational"},
			domain.FieldBoneQuality:   {"Normal", "Osteoporotic", "Severely Compromised"},
		},
		Bounds: map[domain.Field]domain.NumericBounds{
			domain.FieldAge: {Min: 15, Max: 84},
			domain.FieldBMI: {Min: 18.5, Max: 40.0},
		},
		Scenarios: concat(fractureScenarios, arthritisScenarios, tumorScenarios, instabilityScenarios, softTissueScenarios),
		Implants: []domain.Implant{
			domain.ImplantDistalFemoral, domain.ImplantTibialPlateau, domain.ImplantUnicompartmentalKnee, domain.ImplantTotalKnee,
			domain.ImplantHingedKnee, domain.ImplantPatellofemoralJoint, domain.ImplantOsteochondralAllograft, domain.ImplantCustomTumorProsthesis,
		},
		Procedures: []domain.Procedure{
			domain.ProcedureORIF, domain.ProcedureBoneGrafting, domain.ProcedurePartialKneeArthroplasty, domain.ProcedureGeneralSurgery,
			domain.ProcedureTotalKneeArthroplasty, domain.ProcedureJointResurfacing, domain.ProcedureTwoStageRevisionSpacer,
			domain.ProcedurePatellarResurfacing, domain.ProcedureArthroscopicMeniscal, domain.ProcedureAutologousChondrocyte,
			domain.ProcedureWideTumorExcision,
		},
	}

	profile := map[domain.Field]domain.DistributionConfig{
		domain.FieldAge: {Kind: domain.DistUniformInt, Min: 15, Max: 84},
		domain.FieldBMI: {Kind: domain.DistUniformReal, Min: 18.5, Max: 40.0, Precision: 1},
	}
	for f, values := range vocab.Categories {
		profile[f] = uniformCategorical(values)
	}

	return &RuleSet{
		Version:     VersionOptimizedV2,
		Description: "Balanced synthetic cohort across fracture, arthritis, tumor, instability and soft-tissue presentations",
		Vocabulary:  vocab,
		Profile:     profile,
		ScenarioWeights: []domain.ScenarioWeight{
			{Name: domain.ScenarioDistalFemoralFracture, Weight: 0.08},
			{Name: domain.ScenarioProximalTibialFracture, Weight: 0.08},
			{Name: domain.ScenarioPatellarFracture, Weight: 0.08},
			{Name: domain.ScenarioOsteoarthritis, Weight: 0.15},
			{Name: domain.ScenarioRheumatoidArthritis, Weight: 0.12},
			{Name: domain.ScenarioPostTraumaticArthritis, Weight: 0.12},
			{Name: domain.ScenarioPrimaryBoneTumor, Weight: 0.05},
			{Name: domain.ScenarioMetastaticLesion, Weight: 0.05},
			{Name: domain.ScenarioMechanicalFailure, Weight: 0.07},
			{Name: domain.ScenarioPatellofemoralDisorder, Weight: 0.05},
			{Name: domain.ScenarioCongenitalDisorder, Weight: 0.03},
			{Name: domain.ScenarioCartilageInjury, Weight: 0.07},
			{Name: domain.ScenarioLigamentousInjury, Weight: 0.07},
			{Name: domain.ScenarioMeniscalDamage, Weight: 0.05},
		},
		Columns: []string{
			"Age", "Gender", "BMI", "Activity Level", "Comorbidities", "Smoking Status",
			"Alcohol Use", "Deformity", "Bone Quality", "Scenario", "Recommended Implant", "Recommended Procedure",
		},
		Implants:   optimizedV2Implants(),
		Procedures: optimizedV2Procedures(),
	}
}

func optimizedV2Implants() *Table[domain.Implant] {
	t := &Table[domain.Implant]{Name: VersionOptimizedV2 + "/implants", Default: domain.ImplantTotalKnee}

	t.add("distal-femoral-fracture", FamilyFracture, ScenarioIn(domain.ScenarioDistalFemoralFracture), domain.ImplantDistalFemoral)
	t.add("tibial-or-patellar-fracture", FamilyFracture, ScenarioIn(domain.ScenarioProximalTibialFracture, domain.ScenarioPatellarFracture), domain.ImplantTibialPlateau)

	t.add("arthritis-older-or-systemic", FamilyDegenerative, All(
		ScenarioIn(arthritisScenarios...),
		Any(AgeAbove(60), ComorbidityIn(domain.ComorbidityDiabetes, domain.ComorbidityRheumatoid)),
	), domain.ImplantTotalKnee)
	t.add("arthritis-younger", FamilyDegenerative, ScenarioIn(arthritisScenarios...), domain.ImplantUnicompartmentalKnee)

	t.add("tumor", FamilyTumor, ScenarioIn(tumorScenarios...), domain.ImplantCustomTumorProsthesis)

	t.add("instability-high-risk", FamilyInstability, All(
		ScenarioIn(instabilityScenarios...),
		Any(BMIAbove(30), SmokingIn(domain.SmokingCurrent), AlcoholIn(domain.AlcoholRegular)),
	), domain.ImplantHingedKnee)
	t.add("instability-low-risk", FamilyInstability, ScenarioIn(instabilityScenarios...), domain.ImplantPatellofemoralJoint)

	t.add("soft-tissue-active", FamilySoftTissue, All(
		ScenarioIn(softTissueScenarios...),
		ActivityIn(domain.ActivityHigh),
		Not(SmokingIn(domain.SmokingCurrent)),
		Not(AlcoholIn(domain.AlcoholRegular)),
	), domain.ImplantOsteochondralAllograft)
	t.add("soft-tissue-other", FamilySoftTissue, ScenarioIn(softTissueScenarios...), domain.ImplantUnicompartmentalKnee)

	return t
}

func optimizedV2Procedures() *Table[domain.Procedure] {
	t := &Table[domain.Procedure]{Name: VersionOptimizedV2 + "/procedures", Default: domain.ProcedureWideTumorExcision}
	fracture := ImplantIn(domain.ImplantDistalFemoral, domain.ImplantTibialPlateau)

	t.add("fracture-older", FamilyProcedure, All(fracture, AgeAbove(60)), domain.ProcedureBoneGrafting)
	t.add("fracture-younger", FamilyProcedure, fracture, domain.ProcedureORIF)

	t.add("ukr-active", FamilyProcedure, All(ImplantIn(domain.ImplantUnicompartmentalKnee), ActivityIn(domain.ActivityHigh)), domain.ProcedurePartialKneeArthroplasty)
	t.add("ukr-other", FamilyProcedure, ImplantIn(domain.ImplantUnicompartmentalKnee), domain.ProcedureGeneralSurgery)

	t.add("tkr-older-or-systemic", FamilyProcedure, All(
		ImplantIn(domain.ImplantTotalKnee),
		Any(AgeAbove(70), ComorbidityIn(domain.ComorbidityDiabetes, domain.ComorbidityRheumatoid)),
	), domain.ProcedureTotalKneeArthroplasty)
	t.add("tkr-other", FamilyProcedure, ImplantIn(domain.ImplantTotalKnee), domain.ProcedurePartialKneeArthroplasty)

	t.add("hinged-deformity", FamilyProcedure, All(
		ImplantIn(domain.ImplantHingedKnee),
		DeformityIn(domain.DeformityValgus, domain.DeformityVarus),
	), domain.ProcedureJointResurfacing)
	t.add("hinged-other", FamilyProcedure, ImplantIn(domain.ImplantHingedKnee), domain.ProcedureTwoStageRevisionSpacer)

	t.add("pfjr-active-risk", FamilyProcedure, All(
		ImplantIn(domain.ImplantPatellofemoralJoint),
		ActivityIn(domain.ActivityHigh),
		Any(SmokingIn(domain.SmokingCurrent), AlcoholIn(domain.AlcoholRegular)),
	), domain.ProcedurePatellarResurfacing)
	t.add("pfjr-other", FamilyProcedure, ImplantIn(domain.ImplantPatellofemoralJoint), domain.ProcedureJointResurfacing)

	t.add("oca-load-or-bone", FamilyProcedure, All(
		ImplantIn(domain.ImplantOsteochondralAllograft),
		Any(BMIAbove(30), ComorbidityIn(domain.ComorbidityOsteoporosis)),
	), domain.ProcedureArthroscopicMeniscal)
	t.add("oca-other", FamilyProcedure, ImplantIn(domain.ImplantOsteochondralAllograft), domain.ProcedureAutologousChondrocyte)

	t.add("tumor-prosthesis", FamilyProcedure, ImplantIn(domain.ImplantCustomTumorProsthesis), domain.ProcedureWideTumorExcision)

	return t
}

// uniformCategorical leaves weights empty, which samples values uniformly.
func uniformCategorical(values []string) domain.DistributionConfig {
	vs := make([]string, len(values))
	copy(vs, values)
	return domain.DistributionConfig{Kind: domain.DistCategorical, Values: vs}
}

func concat[T any](lists ...[]T) []T {
	var out []T
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
