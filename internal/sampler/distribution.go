// Package sampler draws synthetic patient attributes and clinical scenarios
// from configured distributions. Every draw consumes an explicitly passed
// *rand.Rand so that a seed and draw order fully determine the output.
package sampler

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/ortho-cohortgen/internal/domain"
)

// NewSource returns a PCG generator for a master seed and stream index.
// Stream 0 is the sequential stream; parallel batch i uses stream i.
func NewSource(seed int64, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), stream))
}

// numeric draws a single number.
type numeric interface {
	draw(r *rand.Rand) float64
}

type uniformInt struct{ min, max int }

func (u uniformInt) draw(r *rand.Rand) float64 {
	return float64(u.min + r.IntN(u.max-u.min+1))
}

type uniformReal struct {
	min, max  float64
	precision int
}

func (u uniformReal) draw(r *rand.Rand) float64 {
	return round(u.min+r.Float64()*(u.max-u.min), u.precision)
}

type clippedNormal struct {
	mean, stddev float64
	min, max     float64
	precision    int
	integer      bool
}

// draw clips before rounding. Integer fields truncate toward zero after
// clipping.
func (c clippedNormal) draw(r *rand.Rand) float64 {
	v := c.mean + c.stddev*r.NormFloat64()
	v = math.Max(c.min, math.Min(c.max, v))
	if c.integer {
		return math.Trunc(v)
	}
	return round(v, c.precision)
}

// Categorical samples one value by normalized cumulative weights.
type Categorical struct {
	values     []string
	cumulative []float64
}

// NewCategorical validates and normalizes weights. Empty weights mean a
// uniform choice.
func NewCategorical(field string, values []string, weights []float64) (*Categorical, error) {
	if len(values) == 0 {
		return nil, domain.NewConfigurationError(field, "categorical distribution has no values")
	}
	if len(weights) == 0 {
		weights = make([]float64, len(values))
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != len(values) {
		return nil, domain.NewConfigurationError(field, fmt.Sprintf("%d values but %d weights", len(values), len(weights)))
	}

	var total float64
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, domain.NewConfigurationError(field, fmt.Sprintf("invalid weight %v for %q", w, values[i]))
		}
		total += w
	}
	if total <= 0 {
		return nil, domain.NewConfigurationError(field, "weights sum to zero")
	}

	c := &Categorical{
		values:     make([]string, len(values)),
		cumulative: make([]float64, len(weights)),
	}
	copy(c.values, values)
	var acc float64
	for i, w := range weights {
		acc += w / total
		c.cumulative[i] = acc
	}
	return c, nil
}

// Draw returns one value. The last value absorbs floating point residue in
// the cumulative sum.
func (c *Categorical) Draw(r *rand.Rand) string {
	u := r.Float64()
	for i, cum := range c.cumulative {
		if u < cum {
			return c.values[i]
		}
	}
	return c.values[len(c.values)-1]
}

// Probabilities returns the normalized weight of each value in order.
func (c *Categorical) Probabilities() map[string]float64 {
	out := make(map[string]float64, len(c.values))
	prev := 0.0
	for i, v := range c.values {
		out[v] += c.cumulative[i] - prev
		prev = c.cumulative[i]
	}
	return out
}

func round(v float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Round(v*p) / p
}
