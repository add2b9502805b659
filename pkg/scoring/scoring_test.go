package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity(0), 1e-9)
	assert.InDelta(t, 0.5, Similarity(1), 1e-9)
	assert.InDelta(t, 1.0/11.0, Similarity(10), 1e-9)
}

func TestStickiness(t *testing.T) {
	assert.InDelta(t, 1.0, Stickiness(0), 1e-9)
	assert.True(t, Stickiness(10) > Stickiness(0))
}

func TestScore_ZeroAgeEqualsBlendAtFullRecency(t *testing.T) {
	cfg := DefaultConfig()
	got := Score(0, 0, 0, 1.0, cfg)
	want := (1-cfg.TimeWeight)*1.0 + cfg.TimeWeight*1.0
	assert.InDelta(t, want, got, 1e-9)
}

func TestScore_NegativeAgeClampedToZero(t *testing.T) {
	cfg := DefaultConfig()
	a := Score(0, -100, 0, 1.0, cfg)
	b := Score(0, 0, 0, 1.0, cfg)
	assert.InDelta(t, b, a, 1e-9)
}

func TestScore_HigherRecallCountSlowsDecay(t *testing.T) {
	cfg := DefaultConfig()
	ageSeconds := 60.0 * 86400 // 60 days
	low := Score(0, ageSeconds, 0, 1.0, cfg)
	high := Score(0, ageSeconds, 50, 1.0, cfg)
	assert.True(t, high > low)
}

func TestScore_ImportanceScalesLinearly(t *testing.T) {
	cfg := DefaultConfig()
	base := Score(1, 1000, 2, 1.0, cfg)
	scaled := Score(1, 1000, 2, 2.0, cfg)
	assert.InDelta(t, base*2, scaled, 1e-9)
}

func TestScore_MinWeightFloor(t *testing.T) {
	cfg := Config{HalfLifeDays: 1, TimeWeight: 1.0, MinWeight: 0.2}
	got := Score(0, 1000*86400, 0, 1.0, cfg)
	assert.InDelta(t, 0.2, got, 1e-9)
}

func TestScore_ZeroHalfLifeFallsBackToThirty(t *testing.T) {
	cfg := Config{HalfLifeDays: 0, TimeWeight: 1.0, MinWeight: 0}
	got := Score(0, 30*86400, 0, 1.0, cfg)
	assert.InDelta(t, 0.5, got, 1e-6)
}

func TestFallbackScore(t *testing.T) {
	assert.InDelta(t, 1.0/(1.0+math.Sqrt(2)), FallbackScore(math.Sqrt(2)), 1e-9)
}
