package sampler

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/ortho-cohortgen/internal/domain"
)

// realPrecision is the only rounding tabular output can represent for real
// fields; an unset precision means the same.
const realPrecision = 1

// AttributeSampler draws one AttributeSet per call in the fixed field order.
// It holds no random state and is safe for concurrent use with distinct
// generators.
type AttributeSampler struct {
	fields      []domain.Field
	numerics    map[domain.Field]numeric
	categorical map[domain.Field]*Categorical
}

// NewAttributeSampler validates dists against vocab. Every declared field
// must be configured and nothing else may be.
func NewAttributeSampler(vocab *domain.Vocabulary, dists map[domain.Field]domain.DistributionConfig) (*AttributeSampler, error) {
	s := &AttributeSampler{
		numerics:    make(map[domain.Field]numeric),
		categorical: make(map[domain.Field]*Categorical),
	}

	configured := make([]string, 0, len(dists))
	for f := range dists {
		configured = append(configured, string(f))
	}
	sort.Strings(configured)
	for _, name := range configured {
		f := domain.Field(name)
		if !f.IsValid() {
			return nil, domain.NewConfigurationError(name, "unknown attribute")
		}
		if !vocab.Declares(f) {
			return nil, domain.NewConfigurationError(name, "attribute is not declared by this rule set")
		}
	}

	for _, f := range domain.FieldOrder {
		if !vocab.Declares(f) {
			continue
		}
		cfg, ok := dists[f]
		if !ok {
			return nil, domain.NewConfigurationError(f.String(), "no distribution configured")
		}
		if f.IsNumeric() {
			n, err := buildNumeric(f, cfg, vocab.Bounds[f])
			if err != nil {
				return nil, err
			}
			s.numerics[f] = n
		} else {
			c, err := buildCategorical(f, cfg, vocab)
			if err != nil {
				return nil, err
			}
			s.categorical[f] = c
		}
		s.fields = append(s.fields, f)
	}

	return s, nil
}

// Sample draws one patient.
func (s *AttributeSampler) Sample(r *rand.Rand) domain.AttributeSet {
	var a domain.AttributeSet
	for _, f := range s.fields {
		if n, ok := s.numerics[f]; ok {
			a = a.WithNumeric(f, n.draw(r))
			continue
		}
		a = a.With(f, s.categorical[f].Draw(r))
	}
	return a
}

// Fields lists the sampled fields in draw order.
func (s *AttributeSampler) Fields() []domain.Field {
	out := make([]domain.Field, len(s.fields))
	copy(out, s.fields)
	return out
}

func buildNumeric(f domain.Field, cfg domain.DistributionConfig, bounds domain.NumericBounds) (numeric, error) {
	if cfg.Min > cfg.Max {
		return nil, domain.NewConfigurationError(f.String(), fmt.Sprintf("min %g is greater than max %g", cfg.Min, cfg.Max))
	}
	if cfg.Min < bounds.Min || cfg.Max > bounds.Max {
		return nil, domain.NewConfigurationError(f.String(),
			fmt.Sprintf("range [%g, %g] exceeds vocabulary bounds [%g, %g]", cfg.Min, cfg.Max, bounds.Min, bounds.Max))
	}
	precision, err := numericPrecision(f, cfg.Precision)
	if err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case domain.DistUniformInt:
		if !f.IsInteger() {
			return nil, domain.NewConfigurationError(f.String(), "uniform_int requires an integer field")
		}
		if cfg.Min != float64(int(cfg.Min)) || cfg.Max != float64(int(cfg.Max)) {
			return nil, domain.NewConfigurationError(f.String(), "uniform_int bounds must be whole numbers")
		}
		return uniformInt{min: int(cfg.Min), max: int(cfg.Max)}, nil
	case domain.DistUniformReal:
		if f.IsInteger() {
			return nil, domain.NewConfigurationError(f.String(), "uniform_real cannot sample an integer field")
		}
		return uniformReal{min: cfg.Min, max: cfg.Max, precision: precision}, nil
	case domain.DistClippedNormal:
		if cfg.StdDev <= 0 {
			return nil, domain.NewConfigurationError(f.String(), "stddev must be positive")
		}
		return clippedNormal{
			mean:      cfg.Mean,
			stddev:    cfg.StdDev,
			min:       cfg.Min,
			max:       cfg.Max,
			precision: precision,
			integer:   f.IsInteger(),
		}, nil
	default:
		return nil, domain.NewConfigurationError(f.String(), fmt.Sprintf("distribution kind %q is not valid for a numeric field", cfg.Kind))
	}
}

func buildCategorical(f domain.Field, cfg domain.DistributionConfig, vocab *domain.Vocabulary) (*Categorical, error) {
	if cfg.Kind != domain.DistCategorical {
		return nil, domain.NewConfigurationError(f.String(), fmt.Sprintf("distribution kind %q is not valid for a categorical field", cfg.Kind))
	}
	seen := make(map[string]bool, len(cfg.Values))
	for _, v := range cfg.Values {
		if !vocab.Contains(f, v) {
			return nil, domain.NewDomainViolationError(f.String(), v, fmt.Sprintf("expected one of %q", vocab.Categories[f]))
		}
		if seen[v] {
			return nil, domain.NewConfigurationError(f.String(), fmt.Sprintf("duplicate value %q", v))
		}
		seen[v] = true
	}
	return NewCategorical(f.String(), cfg.Values, cfg.Weights)
}

func numericPrecision(f domain.Field, precision int) (int, error) {
	if f.IsInteger() {
		if precision != 0 {
			return 0, domain.NewConfigurationError(f.String(), fmt.Sprintf("precision %d does not apply to an integer field", precision))
		}
		return 0, nil
	}
	if precision == 0 {
		return realPrecision, nil
	}
	if precision != realPrecision {
		return 0, domain.NewConfigurationError(f.String(), fmt.Sprintf("precision must be %d decimal place, got %d", realPrecision, precision))
	}
	return precision, nil
}
