// Package metrics exposes Prometheus instrumentation for cohort generation,
// label distribution, recommendations and cache behavior.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ortho-cohortgen/internal/domain"
)

const namespace = "cohortgen"

// Collector holds every metric the generator emits. A nil *Collector is
// valid and records nothing.
type Collector struct {
	casesGenerated     *prometheus.CounterVec
	implantLabels      *prometheus.CounterVec
	procedureLabels    *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	generationErrors   *prometheus.CounterVec
	recommendations    *prometheus.CounterVec
	cacheLookups       *prometheus.CounterVec
	runsStored         *prometheus.CounterVec
}

// NewCollector creates and registers the metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		casesGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cases_generated_total",
			Help:      "Synthetic cases generated, by rule set and scenario.",
		}, []string{"rule_set", "scenario"}),
		implantLabels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "implant_labels_total",
			Help:      "Recommended implants assigned to generated cases.",
		}, []string{"rule_set", "implant"}),
		procedureLabels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "procedure_labels_total",
			Help:      "Recommended procedures assigned to generated cases.",
		}, []string{"rule_set", "procedure"}),
		generationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall time to build a dataset.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"rule_set", "mode"}),
		generationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_errors_total",
			Help:      "Aborted generations by error code.",
		}, []string{"rule_set", "code"}),
		recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_total",
			Help:      "Single-case recommendations served.",
		}, []string{"rule_set", "implant"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Dataset cache lookups by tier and result.",
		}, []string{"tier", "result"}),
		runsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_stored_total",
			Help:      "Generation runs persisted, by store driver.",
		}, []string{"driver"}),
	}

	reg.MustRegister(
		c.casesGenerated,
		c.implantLabels,
		c.procedureLabels,
		c.generationDuration,
		c.generationErrors,
		c.recommendations,
		c.cacheLookups,
		c.runsStored,
	)
	return c
}

// ObserveRecord counts one assembled case.
func (c *Collector) ObserveRecord(ruleSet string, r domain.CaseRecord) {
	if c == nil {
		return
	}
	c.casesGenerated.WithLabelValues(ruleSet, string(r.Scenario)).Inc()
	c.implantLabels.WithLabelValues(ruleSet, string(r.RecommendedImplant)).Inc()
	c.procedureLabels.WithLabelValues(ruleSet, string(r.RecommendedProcedure)).Inc()
}

// ObserveGeneration records the duration of a completed build.
func (c *Collector) ObserveGeneration(ruleSet, mode string, d time.Duration) {
	if c == nil {
		return
	}
	c.generationDuration.WithLabelValues(ruleSet, mode).Observe(d.Seconds())
}

// ObserveGenerationError counts an aborted build.
func (c *Collector) ObserveGenerationError(ruleSet string, err error) {
	if c == nil {
		return
	}
	c.generationErrors.WithLabelValues(ruleSet, domain.CodeOf(err)).Inc()
}

// ObserveRecommendation counts a served recommendation.
func (c *Collector) ObserveRecommendation(ruleSet string, implant domain.Implant) {
	if c == nil {
		return
	}
	c.recommendations.WithLabelValues(ruleSet, string(implant)).Inc()
}

// ObserveCacheLookup counts a cache hit or miss on a tier.
func (c *Collector) ObserveCacheLookup(tier string, hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(tier, result).Inc()
}

// ObserveRunStored counts a persisted run.
func (c *Collector) ObserveRunStored(driver string) {
	if c == nil {
		return
	}
	c.runsStored.WithLabelValues(driver).Inc()
}
