package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ortho-cohortgen/internal/domain"
	"github.com/ortho-cohortgen/internal/metrics"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func sampleRecords() []domain.CaseRecord {
	return []domain.CaseRecord{
		{
			AttributeSet:         domain.AttributeSet{Age: 70, Gender: "Female", BMI: 31.2},
			Scenario:             domain.ScenarioOsteoarthritis,
			RecommendedImplant:   domain.ImplantTotalKnee,
			RecommendedProcedure: domain.ProcedureTotalKneeArthroplasty,
		},
		{
			AttributeSet:         domain.AttributeSet{Age: 30, Gender: "Male", BMI: 22.0},
			Scenario:             domain.ScenarioPrimaryBoneTumor,
			RecommendedImplant:   domain.ImplantCustomTumorProsthesis,
			RecommendedProcedure: domain.ProcedureWideTumorExcision,
		},
	}
}

// unreachableTier points at a closed port so every call fails fast.
func unreachableTier(t *testing.T) *RedisTier {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	tier := newRedisTier(client, testLogger())
	t.Cleanup(func() { _ = tier.Close() })
	return tier
}

func TestDatasetCache_MemoryHit(t *testing.T) {
	m := metrics.NewCollector(prometheus.NewRegistry())
	c, err := NewDatasetCache(domain.CacheConfig{MemoryItems: 4}, nil, m, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Set(ctx, "k", sampleRecords())
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, sampleRecords(), got)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.MemoryHits)
	assert.Equal(t, int64(1), stats.MemoryMisses)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 30*time.Minute, stats.TTL)
}

func TestDatasetCache_ReturnsCopies(t *testing.T) {
	c, err := NewDatasetCache(domain.CacheConfig{}, nil, nil, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	records := sampleRecords()
	c.Set(ctx, "k", records)
	records[0].Age = 1

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, 70, got[0].Age)

	got[1].Scenario = domain.ScenarioTumor
	again, _ := c.Get(ctx, "k")
	assert.Equal(t, domain.ScenarioPrimaryBoneTumor, again[1].Scenario)
}

func TestDatasetCache_Expiry(t *testing.T) {
	c, err := NewDatasetCache(domain.CacheConfig{DefaultTTL: 10 * time.Millisecond}, nil, nil, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	c.Set(ctx, "k", sampleRecords())
	time.Sleep(25 * time.Millisecond)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestDatasetCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, err := NewDatasetCache(domain.CacheConfig{MemoryItems: 2}, nil, nil, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	c.Set(ctx, "a", sampleRecords())
	c.Set(ctx, "b", sampleRecords())
	_, _ = c.Get(ctx, "a")
	c.Set(ctx, "c", sampleRecords())

	_, ok := c.Get(ctx, "b")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestDatasetCache_Invalidate(t *testing.T) {
	c, err := NewDatasetCache(domain.CacheConfig{}, nil, nil, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	c.Set(ctx, "k", sampleRecords())
	require.NoError(t, c.Invalidate(ctx, "k"))
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestDatasetCache_NilIsNoop(t *testing.T) {
	var c *DatasetCache
	ctx := context.Background()

	assert.NotPanics(t, func() {
		c.Set(ctx, "k", sampleRecords())
		_, ok := c.Get(ctx, "k")
		assert.False(t, ok)
		assert.Equal(t, Stats{}, c.Stats())
		assert.NoError(t, c.Close())
	})
}

func TestDatasetCache_UnreachableRedisDegrades(t *testing.T) {
	c, err := NewDatasetCache(domain.CacheConfig{}, unreachableTier(t), nil, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	c.Set(ctx, "k", sampleRecords())
	got, ok := c.Get(ctx, "k")
	require.True(t, ok, "memory tier must still serve")
	assert.Len(t, got, 2)

	_, ok = c.Get(ctx, "missing")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.RedisErrors)
	assert.Equal(t, int64(0), stats.RedisHits)
}

func TestRedisTier_BreakerOpens(t *testing.T) {
	tier := unreachableTier(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := tier.Get(ctx, "k")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, tier.State())

	_, _, err := tier.Get(ctx, "k")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestNewRedisTier_InvalidURL(t *testing.T) {
	_, err := NewRedisTier(domain.CacheConfig{RedisURL: "not-a-url"}, testLogger())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
