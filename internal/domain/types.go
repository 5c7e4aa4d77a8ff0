// Package domain contains the core entities of the synthetic knee-implant cohort
// generator: patient attributes, clinical scenarios, implant and procedure
// labels, and the vocabulary that bounds every categorical and numeric field.
//
// Values are plain strings so that the tabular output matches what the
// downstream classifier trainer expects, but every value that enters a record
// is checked against the active rule set's Vocabulary.
package domain

import (
	"slices"
	"strconv"
)

// Field names an attribute of a simulated patient.
type Field string

const (
	FieldAge           Field = "age"
	FieldGender        Field = "gender"
	FieldBMI           Field = "bmi"
	FieldActivityLevel Field = "activity_level"
	FieldComorbidity   Field = "comorbidity"
	FieldSmokingStatus Field = "smoking_status"
	FieldAlcoholUse    Field = "alcohol_use"
	FieldDeformity     Field = "deformity"
	FieldBoneQuality   Field = "bone_quality"
)

// FieldOrder is the fixed draw order. Samplers consume the random stream in
// this order, skipping fields a rule set does not declare.
var FieldOrder = []Field{
	FieldAge,
	FieldGender,
	FieldBMI,
	FieldActivityLevel,
	FieldComorbidity,
	FieldSmokingStatus,
	FieldAlcoholUse,
	FieldDeformity,
	FieldBoneQuality,
}

// IsValid reports whether f is a known attribute field.
func (f Field) IsValid() bool {
	return slices.Contains(FieldOrder, f)
}

// IsNumeric reports whether the field holds a number rather than a category.
func (f Field) IsNumeric() bool {
	return f == FieldAge || f == FieldBMI
}

// IsInteger reports whether the numeric field is integer valued.
func (f Field) IsInteger() bool {
	return f == FieldAge
}

func (f Field) String() string {
	return string(f)
}

// Scenario is the clinical presentation driving the implant choice.
type Scenario string

// Scenarios known to the optimized-v2 rule set.
const (
	ScenarioDistalFemoralFracture  Scenario = "Distal Femoral Fracture"
	ScenarioProximalTibialFracture Scenario = "Proximal Tibial Fracture"
	ScenarioPatellarFracture       Scenario = "Patellar Fracture"
	ScenarioOsteoarthritis         Scenario = "Osteoarthritis"
	ScenarioRheumatoidArthritis    Scenario = "Rheumatoid Arthritis"
	ScenarioPostTraumaticArthritis Scenario = "Post-Traumatic Arthritis"
	ScenarioPrimaryBoneTumor       Scenario = "Primary Bone Tumor"
	ScenarioMetastaticLesion       Scenario = "Metastatic Lesion"
	ScenarioMechanicalFailure      Scenario = "Mechanical Failure"
	ScenarioPatellofemoralDisorder Scenario = "Patellofemoral Disorder"
	ScenarioCongenitalDisorder     Scenario = "Congenital Disorder"
	ScenarioCartilageInjury        Scenario = "Cartilage Injury"
	ScenarioLigamentousInjury      Scenario = "Ligamentous Injury"
	ScenarioMeniscalDamage         Scenario = "Meniscal Damage"
)

// Scenarios known to the clinical-v3 rule set (Post-Traumatic Arthritis is shared).
const (
	ScenarioPrimaryOsteoarthritis    Scenario = "Primary Osteoarthritis"
	ScenarioInflammatoryArthritis    Scenario = "Inflammatory Arthritis"
	ScenarioPeriprostheticFracture   Scenario = "Periprosthetic Fracture"
	ScenarioAsepticLoosening         Scenario = "Aseptic Loosening"
	ScenarioProstheticJointInfection Scenario = "Prosthetic Joint Infection"
	ScenarioOsteonecrosis            Scenario = "Osteonecrosis"
	ScenarioTumor                    Scenario = "Tumor"
)

func (s Scenario) String() string {
	return string(s)
}

// Implant is the prosthetic device recommendation.
type Implant string

const (
	ImplantUnicompartmentalKnee   Implant = "Unicompartmental Knee Replacement"
	ImplantTotalKnee              Implant = "Total Knee Replacement"
	ImplantDistalFemoral          Implant = "Distal Femoral Replacement"
	ImplantTibialPlateau          Implant = "Tibial Plateau Prosthesis"
	ImplantHingedKnee             Implant = "Hinged Knee Replacement"
	ImplantPatellofemoralJoint    Implant = "Patellofemoral Joint Replacement"
	ImplantOsteochondralAllograft Implant = "Osteochondral Allograft"
	ImplantCustomTumorProsthesis  Implant = "Custom Tumor Prosthesis"
	ImplantSpacer                 Implant = "Spacer"
)

func (i Implant) String() string {
	return string(i)
}

// Procedure is the surgical technique recommendation.
type Procedure string

// Procedures used by optimized-v2.
const (
	ProcedureORIF                    Procedure = "ORIF (Open Reduction Internal Fixation)"
	ProcedureBoneGrafting            Procedure = "Bone Grafting"
	ProcedurePartialKneeArthroplasty Procedure = "Partial Knee Arthroplasty"
	ProcedureGeneralSurgery          Procedure = "General Surgery"
	ProcedureTotalKneeArthroplasty   Procedure = "Total Knee Arthroplasty"
	ProcedureJointResurfacing        Procedure = "Joint Resurfacing"
	ProcedureTwoStageRevisionSpacer  Procedure = "Two-Stage Revision with Spacer"
	ProcedurePatellarResurfacing     Procedure = "Patellar Resurfacing"
	ProcedureArthroscopicMeniscal    Procedure = "Arthroscopic Meniscal Repair"
	ProcedureAutologousChondrocyte   Procedure = "Autologous Chondrocyte Implantation"
	ProcedureWideTumorExcision       Procedure = "Wide Tumor Excision"
)

// Procedures used by clinical-v3.
const (
	ProcedureMinimallyInvasiveUKA    Procedure = "Minimally Invasive UKA"
	ProcedureStandardTKA             Procedure = "Standard TKA with Measured Resection"
	ProcedurePostTraumaticTKA        Procedure = "Post-Traumatic TKA with Augmentation"
	ProcedureConstrainedCondylarKnee Procedure = "Constrained Condylar Knee"
	ProcedureCCKStemExtension        Procedure = "CCK with Stem Extension"
	ProcedureORIFBoneGrafting        Procedure = "ORIF with Bone Grafting"
	ProcedureTwoStageRevision        Procedure = "Two-Stage Revision"
	ProcedureWideResection           Procedure = "Wide Resection with Reconstruction"
)

func (p Procedure) String() string {
	return string(p)
}

// Categorical values referenced by rule predicates.
const (
	ActivityHigh = "High"

	ComorbidityNone         = "None"
	ComorbidityDiabetes     = "Diabetes"
	ComorbidityRheumatoid   = "Rheumatoid Arthritis"
	ComorbidityOsteoporosis = "Osteoporosis"

	SmokingCurrent = "Current Smoker"
	AlcoholRegular = "Regular"

	DeformityValgus = "Valgus"
	DeformityVarus  = "Varus"
)

// AttributeSet is one simulated patient. It is a value type: once sampled it
// is copied, never mutated. Fields a rule set does not declare stay empty.
type AttributeSet struct {
	Age           int     `json:"age"`
	Gender        string  `json:"gender"`
	BMI           float64 `json:"bmi"`
	ActivityLevel string  `json:"activity_level"`
	Comorbidity   string  `json:"comorbidity"`
	SmokingStatus string  `json:"smoking_status,omitempty"`
	AlcoholUse    string  `json:"alcohol_use,omitempty"`
	Deformity     string  `json:"deformity"`
	BoneQuality   string  `json:"bone_quality"`
}

// Categorical returns the value of a categorical field, or "" for numeric or
// unknown fields.
func (a AttributeSet) Categorical(f Field) string {
	switch f {
	case FieldGender:
		return a.Gender
	case FieldActivityLevel:
		return a.ActivityLevel
	case FieldComorbidity:
		return a.Comorbidity
	case FieldSmokingStatus:
		return a.SmokingStatus
	case FieldAlcoholUse:
		return a.AlcoholUse
	case FieldDeformity:
		return a.Deformity
	case FieldBoneQuality:
		return a.BoneQuality
	default:
		return ""
	}
}

// Numeric returns the value of a numeric field as float64.
func (a AttributeSet) Numeric(f Field) float64 {
	switch f {
	case FieldAge:
		return float64(a.Age)
	case FieldBMI:
		return a.BMI
	default:
		return 0
	}
}

// With returns a copy of a with field f set to v. Numeric fields take the
// value parsed by the caller through WithNumeric instead.
func (a AttributeSet) With(f Field, v string) AttributeSet {
	switch f {
	case FieldGender:
		a.Gender = v
	case FieldActivityLevel:
		a.ActivityLevel = v
	case FieldComorbidity:
		a.Comorbidity = v
	case FieldSmokingStatus:
		a.SmokingStatus = v
	case FieldAlcoholUse:
		a.AlcoholUse = v
	case FieldDeformity:
		a.Deformity = v
	case FieldBoneQuality:
		a.BoneQuality = v
	}
	return a
}

// WithNumeric returns a copy of a with numeric field f set to v.
func (a AttributeSet) WithNumeric(f Field, v float64) AttributeSet {
	switch f {
	case FieldAge:
		a.Age = int(v)
	case FieldBMI:
		a.BMI = v
	}
	return a
}

// FormatField renders a field the way it appears in tabular output.
func (a AttributeSet) FormatField(f Field) string {
	switch f {
	case FieldAge:
		return strconv.Itoa(a.Age)
	case FieldBMI:
		return strconv.FormatFloat(a.BMI, 'f', 1, 64)
	default:
		return a.Categorical(f)
	}
}

// CaseRecord is one fully assembled synthetic patient with its labels.
type CaseRecord struct {
	AttributeSet
	Scenario             Scenario  `json:"scenario"`
	RecommendedImplant   Implant   `json:"recommended_implant"`
	RecommendedProcedure Procedure `json:"recommended_procedure"`
}

// Row renders the record as a tabular row: the given attribute fields in
// order, then scenario, implant and procedure.
func (r CaseRecord) Row(fields []Field) []string {
	row := make([]string, 0, len(fields)+3)
	for _, f := range fields {
		row = append(row, r.FormatField(f))
	}
	return append(row,
		string(r.Scenario),
		string(r.RecommendedImplant),
		string(r.RecommendedProcedure),
	)
}

// TableSchema describes the tabular rendering of a rule set's records.
type TableSchema struct {
	Fields  []Field  `json:"fields" yaml:"fields"`
	Columns []string `json:"columns" yaml:"columns"`
}
