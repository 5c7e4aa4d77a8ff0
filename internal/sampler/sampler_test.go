package sampler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ortho-cohortgen/internal/domain"
)

func testVocabulary() *domain.Vocabulary {
	return &domain.Vocabulary{
		Fields: []domain.Field{domain.FieldAge, domain.FieldGender, domain.FieldBMI, domain.FieldActivityLevel},
		Categories: map[domain.Field][]string{
			domain.FieldGender:        {"Male", "Female"},
			domain.FieldActivityLevel: {"Low", "Moderate", "High"},
		},
		Bounds: map[domain.Field]domain.NumericBounds{
			domain.FieldAge: {Min: 15, Max: 90},
			domain.FieldBMI: {Min: 18, Max: 45},
		},
		Scenarios: []domain.Scenario{
			domain.ScenarioOsteoarthritis,
			domain.ScenarioPrimaryBoneTumor,
			domain.ScenarioMeniscalDamage,
		},
	}
}

func testProfile() map[domain.Field]domain.DistributionConfig {
	return map[domain.Field]domain.DistributionConfig{
		domain.FieldAge:           {Kind: domain.DistUniformInt, Min: 15, Max: 84},
		domain.FieldGender:        {Kind: domain.DistCategorical, Values: []string{"Male", "Female"}, Weights: []float64{0.45, 0.55}},
		domain.FieldBMI:           {Kind: domain.DistClippedNormal, Mean: 32, StdDev: 6, Min: 18, Max: 45, Precision: 1},
		domain.FieldActivityLevel: {Kind: domain.DistCategorical, Values: []string{"Low", "Moderate", "High"}},
	}
}

func TestAttributeSampler_Deterministic(t *testing.T) {
	s, err := NewAttributeSampler(testVocabulary(), testProfile())
	require.NoError(t, err)

	r1, r2 := NewSource(42, 0), NewSource(42, 0)
	for i := 0; i < 1000; i++ {
		require.Equal(t, s.Sample(r1), s.Sample(r2))
	}

	other := NewSource(42, 1)
	same := 0
	r1 = NewSource(42, 0)
	for i := 0; i < 100; i++ {
		if s.Sample(r1) == s.Sample(other) {
			same++
		}
	}
	assert.Less(t, same, 100, "distinct streams should diverge")
}

func TestAttributeSampler_RespectsBoundsAndPrecision(t *testing.T) {
	vocab := testVocabulary()
	s, err := NewAttributeSampler(vocab, testProfile())
	require.NoError(t, err)

	r := NewSource(7, 0)
	sawMin, sawMax := false, false
	for i := 0; i < 20000; i++ {
		a := s.Sample(r)
		require.NoError(t, vocab.ValidateAttributes(a))
		require.GreaterOrEqual(t, a.Age, 15)
		require.LessOrEqual(t, a.Age, 84)
		require.InDelta(t, a.BMI, math.Round(a.BMI*10)/10, 1e-9)
		sawMin = sawMin || a.Age == 15
		sawMax = sawMax || a.Age == 84
		assert.Empty(t, a.SmokingStatus)
	}
	assert.True(t, sawMin && sawMax, "uniform_int bounds are inclusive")
}

func TestClippedNormal_IntegerTruncates(t *testing.T) {
	c := clippedNormal{mean: 68, stddev: 12, min: 40, max: 90, integer: true}
	r := NewSource(1, 0)
	for i := 0; i < 10000; i++ {
		v := c.draw(r)
		require.Equal(t, math.Trunc(v), v)
		require.GreaterOrEqual(t, v, 40.0)
		require.LessOrEqual(t, v, 90.0)
	}

	// A huge spread piles mass onto the clip points.
	wide := clippedNormal{mean: 0, stddev: 1000, min: -1, max: 1, precision: 1}
	for i := 0; i < 100; i++ {
		v := wide.draw(r)
		require.True(t, v >= -1 && v <= 1)
	}
}

func TestAttributeSampler_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(p map[domain.Field]domain.DistributionConfig)
		violation bool
	}{
		{"missing declared field", func(p map[domain.Field]domain.DistributionConfig) { delete(p, domain.FieldGender) }, false},
		{"undeclared field configured", func(p map[domain.Field]domain.DistributionConfig) {
			p[domain.FieldSmokingStatus] = domain.DistributionConfig{Kind: domain.DistCategorical, Values: []string{"Non-smoker"}}
		}, false},
		{"unknown field configured", func(p map[domain.Field]domain.DistributionConfig) {
			p["shoe_size"] = domain.DistributionConfig{Kind: domain.DistUniformInt, Min: 1, Max: 2}
		}, false},
		{"non-positive stddev", func(p map[domain.Field]domain.DistributionConfig) {
			p[domain.FieldBMI] = domain.DistributionConfig{Kind: domain.DistClippedNormal, Mean: 30, StdDev: 0, Min: 18, Max: 45}
		}, false},
		{"min above max", func(p map[domain.Field]domain.DistributionConfig) {
			p[domain.FieldAge] = domain.DistributionConfig{Kind: domain.DistUniformInt, Min: 80, Max: 20}
		}, false},
		{"range outside vocabulary bounds", func(p map[domain.Field]domain.DistributionConfig) {
			p[domain.FieldAge] = domain.DistributionConfig{Kind: domain.DistUniformInt, Min: 0, Max: 84}
		}, false},
		{"categorical kind on numeric field", func(p map[domain.Field]domain.DistributionConfig) {
			p[domain.FieldAge] = domain.DistributionConfig{Kind: domain.DistCategorical, Min: 15, Max: 84}
		}, false},
		{"uniform_real on integer field", func(p map[domain.Field]domain.DistributionConfig) {
			p[domain.FieldAge] = domain.DistributionConfig{Kind: domain.DistUniformReal, Min: 15, Max: 84}
		}, false},
		{"uniform_int on real field", func(p map[domain.Field]domain.DistributionConfig) {
			p[domain.FieldBMI] = domain.DistributionConfig{Kind: domain.DistUniformInt, Min: 20, Max: 30}
		}, false},
		{"numeric kind on categorical field", func(p map[domain.Field]domain.DistributionConfig) {
			p[domain.FieldGender] = domain.DistributionConfig{Kind: domain.DistUniformInt, Min: 0, Max: 1}
		}, false},
		{"zero categorical weights", func(p map[domain.Field]domain.DistributionConfig) {
			p[domain.FieldGender] = domain.DistributionConfig{Kind: domain.DistCategorical, Values: []string{"Male", "Female"}, Weights: []float64{0, 0}}
		}, false},
		{"mismatched weights", func(p map[domain.Field]domain.DistributionConfig) {
			p[domain.FieldGender] = domain.DistributionConfig{Kind: domain.DistCategorical, Values: []string{"Male", "Female"}, Weights: []float64{1}}
		}, false},
		{"negative weight", func(p map[domain.Field]domain.DistributionConfig) {
			p[domain.FieldGender] = domain.DistributionConfig{Kind: domain.DistCategorical, Values: []string{"Male", "Female"}, Weights: []float64{1, -1}}
		}, false},
		{"real precision above one decimal", func(p map[domain.Field]domain.DistributionConfig) {
			p[domain.FieldBMI] = domain.DistributionConfig{Kind: domain.DistClippedNormal, Mean: 30.03, StdDev: 1e-4, Min: 18, Max: 45, Precision: 2}
		}, false},
		{"negative precision", func(p map[domain.Field]domain.DistributionConfig) {
			p[domain.FieldBMI] = domain.DistributionConfig{Kind: domain.DistUniformReal, Min: 18.5, Max: 40, Precision: -1}
		}, false},
		{"precision on integer field", func(p map[domain.Field]domain.DistributionConfig) {
			p[domain.FieldAge] = domain.DistributionConfig{Kind: domain.DistUniformInt, Min: 15, Max: 84, Precision: 1}
		}, false},
		{"value outside domain", func(p map[domain.Field]domain.DistributionConfig) {
			p[domain.FieldGender] = domain.DistributionConfig{Kind: domain.DistCategorical, Values: []string{"Male", "Other"}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := testProfile()
			tt.mutate(profile)

			_, err := NewAttributeSampler(testVocabulary(), profile)
			require.Error(t, err)
			if tt.violation {
				assert.ErrorIs(t, err, domain.ErrDomainViolation)
			} else {
				assert.ErrorIs(t, err, domain.ErrConfiguration)
			}
		})
	}
}

func TestScenarioSampler_Fidelity(t *testing.T) {
	weights := []domain.ScenarioWeight{
		{Name: domain.ScenarioOsteoarthritis, Weight: 0.15},
		{Name: domain.ScenarioPrimaryBoneTumor, Weight: 0.05},
		{Name: domain.ScenarioMeniscalDamage, Weight: 0.07},
	}
	s, err := NewScenarioSampler(testVocabulary(), weights)
	require.NoError(t, err)

	probs := s.Probabilities()
	assert.InDelta(t, 0.15/0.27, probs[domain.ScenarioOsteoarthritis], 1e-9)

	const draws = 100000
	counts := make(map[domain.Scenario]int)
	r := NewSource(2024, 0)
	for i := 0; i < draws; i++ {
		counts[s.Sample(r)]++
	}

	for scenario, p := range probs {
		observed := float64(counts[scenario]) / draws
		assert.InDelta(t, p, observed, 0.01, "scenario %s", scenario)
	}
}

func TestCategorical_Fidelity(t *testing.T) {
	c, err := NewCategorical("deformity", []string{"None", "Varus", "Valgus"}, []float64{0.3, 0.55, 0.15})
	require.NoError(t, err)

	const draws = 100000
	counts := make(map[string]int)
	r := NewSource(99, 3)
	for i := 0; i < draws; i++ {
		counts[c.Draw(r)]++
	}

	assert.InDelta(t, 0.30, float64(counts["None"])/draws, 0.01)
	assert.InDelta(t, 0.55, float64(counts["Varus"])/draws, 0.01)
	assert.InDelta(t, 0.15, float64(counts["Valgus"])/draws, 0.01)
}

func TestScenarioSampler_Errors(t *testing.T) {
	vocab := testVocabulary()

	_, err := NewScenarioSampler(vocab, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewScenarioSampler(vocab, []domain.ScenarioWeight{
		{Name: domain.ScenarioOsteoarthritis, Weight: 0},
		{Name: domain.ScenarioMeniscalDamage, Weight: 0},
	})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewScenarioSampler(vocab, []domain.ScenarioWeight{
		{Name: domain.ScenarioOsteoarthritis, Weight: 1},
		{Name: domain.ScenarioMeniscalDamage, Weight: -0.5},
	})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewScenarioSampler(vocab, []domain.ScenarioWeight{
		{Name: domain.ScenarioOsteoarthritis, Weight: 1},
		{Name: domain.ScenarioOsteoarthritis, Weight: 1},
	})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewScenarioSampler(vocab, []domain.ScenarioWeight{{Name: domain.ScenarioTumor, Weight: 1}})
	assert.ErrorIs(t, err, domain.ErrDomainViolation)
}

func TestScenarioSampler_ZeroWeightNeverDrawn(t *testing.T) {
	s, err := NewScenarioSampler(testVocabulary(), []domain.ScenarioWeight{
		{Name: domain.ScenarioOsteoarthritis, Weight: 1},
		{Name: domain.ScenarioPrimaryBoneTumor, Weight: 0},
	})
	require.NoError(t, err)

	r := NewSource(5, 0)
	for i := 0; i < 10000; i++ {
		require.Equal(t, domain.ScenarioOsteoarthritis, s.Sample(r))
	}
}
