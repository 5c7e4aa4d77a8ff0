package rules

import (
	"github.com/ortho-cohortgen/internal/domain"
)

// VersionClinicalV3 is the epidemiology-weighted primary and revision rule set.
const VersionClinicalV3 = "clinical-v3"

const (
	deformityVarusMild     = "Varus <10°"
	deformityVarusModerate = "Varus 10-20°"
)

func clinicalV3() *RuleSet {
	vocab := &domain.Vocabulary{
		Fields: []domain.Field{
			domain.FieldAge, domain.FieldGender, domain.FieldBMI, domain.FieldActivityLevel,
			domain.FieldComorbidity, domain.FieldDeformity, domain.FieldBoneQuality,
		},
		Categories: map[domain.Field][]string{
			domain.FieldGender:        {"Male", "Female"},
			domain.FieldActivityLevel: {"Sedentary", "Household", "Community", "Athletic"},
			domain.FieldComorbidity:   {"None", "Diabetes", "Cardiovascular", "Osteoporosis", "Rheumatoid"},
			domain.FieldDeformity:     {"None", deformityVarusMild, deformityVarusModerate, "Valgus <10°", "Valgus 10-20°"},
			domain.FieldBoneQuality:   {"Normal", "Osteopenic", "Osteoporotic"},
		},
		Bounds: map[domain.Field]domain.NumericBounds{
			domain.FieldAge: {Min: 40, Max: 90},
			domain.FieldBMI: {Min: 18, Max: 45},
		},
		Scenarios: []domain.Scenario{
			domain.ScenarioPrimaryOsteoarthritis, domain.ScenarioPostTraumaticArthritis, domain.ScenarioInflammatoryArthritis,
			domain.ScenarioPeriprostheticFracture, domain.ScenarioAsepticLoosening, domain.ScenarioProstheticJointInfection,
			domain.ScenarioOsteonecrosis, domain.ScenarioTumor,
		},
		Implants: []domain.Implant{
			domain.ImplantUnicompartmentalKnee, domain.ImplantTotalKnee, domain.ImplantDistalFemoral,
			domain.ImplantSpacer, domain.ImplantCustomTumorProsthesis,
		},
		Procedures: []domain.Procedure{
			domain.ProcedureMinimallyInvasiveUKA, domain.ProcedureStandardTKA, domain.ProcedurePostTraumaticTKA,
			domain.ProcedureConstrainedCondylarKnee, domain.ProcedureCCKStemExtension, domain.ProcedureORIFBoneGrafting,
			domain.ProcedureTwoStageRevision, domain.ProcedureWideResection,
		},
	}

	profile := map[domain.Field]domain.DistributionConfig{
		domain.FieldAge:           {Kind: domain.DistClippedNormal, Mean: 68, StdDev: 12, Min: 40, Max: 90},
		domain.FieldGender:        {Kind: domain.DistCategorical, Values: []string{"Male", "Female"}, Weights: []float64{0.45, 0.55}},
		domain.FieldBMI:           {Kind: domain.DistClippedNormal, Mean: 32, StdDev: 6, Min: 18, Max: 45, Precision: 1},
		domain.FieldActivityLevel: uniformCategorical(vocab.Categories[domain.FieldActivityLevel]),
		domain.FieldComorbidity: {
			Kind:    domain.DistCategorical,
			Values:  []string{"None", "Diabetes", "Cardiovascular", "Osteoporosis", "Rheumatoid"},
			Weights: []float64{0.6, 0.15, 0.15, 0.05, 0.05},
		},
		domain.FieldDeformity: {
			Kind:    domain.DistCategorical,
			Values:  []string{"None", deformityVarusMild, deformityVarusModerate, "Valgus <10°", "Valgus 10-20°"},
			Weights: []float64{0.3, 0.4, 0.15, 0.1, 0.05},
		},
		domain.FieldBoneQuality: {
			Kind:    domain.DistCategorical,
			Values:  []string{"Normal", "Osteopenic", "Osteoporotic"},
			Weights: []float64{0.6, 0.3, 0.1},
		},
	}

	return &RuleSet{
		Version:     VersionClinicalV3,
		Description: "Registry-weighted knee arthroplasty cohort covering primary, revision and oncologic presentations",
		Vocabulary:  vocab,
		Profile:     profile,
		ScenarioWeights: []domain.ScenarioWeight{
			{Name: domain.ScenarioPrimaryOsteoarthritis, Weight: 0.55},
			{Name: domain.ScenarioPostTraumaticArthritis, Weight: 0.18},
			{Name: domain.ScenarioInflammatoryArthritis, Weight: 0.12},
			{Name: domain.ScenarioPeriprostheticFracture, Weight: 0.05},
			{Name: domain.ScenarioAsepticLoosening, Weight: 0.04},
			{Name: domain.ScenarioProstheticJointInfection, Weight: 0.03},
			{Name: domain.ScenarioOsteonecrosis, Weight: 0.02},
			{Name: domain.ScenarioTumor, Weight: 0.01},
		},
		Columns: []string{
			"Age", "Gender", "BMI", "ActivityLevel", "Comorbidities", "Deformity", "BoneQuality",
			"Scenario", "RecommendedImplant", "RecommendedProcedure",
		},
		Implants:   clinicalV3Implants(),
		Procedures: clinicalV3Procedures(),
	}
}

func clinicalV3Implants() *Table[domain.Implant] {
	t := &Table[domain.Implant]{Name: VersionClinicalV3 + "/implants", Default: domain.ImplantTotalKnee}

	t.add("primary-oa-medial", FamilyDegenerative, All(
		ScenarioIn(domain.ScenarioPrimaryOsteoarthritis),
		DeformityIn(deformityVarusMild),
		BMIBelow(35),
		ComorbidityIn(domain.ComorbidityNone),
	), domain.ImplantUnicompartmentalKnee)
	t.add("arthritis", FamilyDegenerative, ScenarioIn(
		domain.ScenarioPrimaryOsteoarthritis,
		domain.ScenarioPostTraumaticArthritis,
		domain.ScenarioInflammatoryArthritis,
	), domain.ImplantTotalKnee)
	t.add("periprosthetic-fracture", FamilyFracture, ScenarioIn(domain.ScenarioPeriprostheticFracture), domain.ImplantDistalFemoral)
	t.add("joint-infection", FamilyRevision, ScenarioIn(domain.ScenarioProstheticJointInfection), domain.ImplantSpacer)
	t.add("tumor", FamilyTumor, ScenarioIn(domain.ScenarioTumor), domain.ImplantCustomTumorProsthesis)

	return t
}

func clinicalV3Procedures() *Table[domain.Procedure] {
	t := &Table[domain.Procedure]{Name: VersionClinicalV3 + "/procedures", Default: domain.ProcedureStandardTKA}
	tkr := ImplantIn(domain.ImplantTotalKnee)

	t.add("ukr", FamilyProcedure, ImplantIn(domain.ImplantUnicompartmentalKnee), domain.ProcedureMinimallyInvasiveUKA)
	t.add("tkr-primary-oa", FamilyProcedure, All(tkr, ScenarioIn(domain.ScenarioPrimaryOsteoarthritis)), domain.ProcedureStandardTKA)
	t.add("tkr-post-traumatic-young-varus", FamilyProcedure, All(
		tkr,
		ScenarioIn(domain.ScenarioPostTraumaticArthritis),
		AgeBelow(60),
		DeformityIn(deformityVarusMild, deformityVarusModerate),
	), domain.ProcedurePostTraumaticTKA)
	t.add("tkr-post-traumatic", FamilyProcedure, All(tkr, ScenarioIn(domain.ScenarioPostTraumaticArthritis)), domain.ProcedureConstrainedCondylarKnee)
	t.add("tkr-inflammatory", FamilyProcedure, All(tkr, ScenarioIn(domain.ScenarioInflammatoryArthritis)), domain.ProcedureCCKStemExtension)
	t.add("distal-femoral", FamilyProcedure, ImplantIn(domain.ImplantDistalFemoral), domain.ProcedureORIFBoneGrafting)
	t.add("spacer", FamilyProcedure, ImplantIn(domain.ImplantSpacer), domain.ProcedureTwoStageRevision)
	t.add("tumor-prosthesis", FamilyProcedure, ImplantIn(domain.ImplantCustomTumorProsthesis), domain.ProcedureWideResection)

	return t
}
