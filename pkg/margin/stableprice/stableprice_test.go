package stableprice

import (
	"testing"

	"github.com/uhyunpark/hyperlicked/pkg/margin/fixedpoint"
)

// A held 10x oracle jump must not let the stable price reach it within an
// hour, and should only asymptote toward it over many hours.
func TestStablePriceClampsSingleTickSpike(t *testing.T) {
	m := NewModel(fixedpoint.FromInt64(1), 0)
	oracle := fixedpoint.FromInt64(10)

	now := int64(0)
	for i := 0; i < 60; i++ {
		now += 60
		m.Update(oracle, now)
	}

	stable := m.StablePrice.Float64()
	if stable >= 10 {
		t.Fatalf("stable price reached oracle too fast after 1h: %f", stable)
	}
	if stable <= 1 {
		t.Fatalf("stable price did not move at all: %f", stable)
	}
	if stable > 3 {
		t.Fatalf("stable price moved implausibly fast in 1h: %f", stable)
	}

	for i := 0; i < 6*60; i++ {
		now += 60
		m.Update(oracle, now)
	}
	stable6h := m.StablePrice.Float64()
	if stable6h <= stable {
		t.Fatalf("stable price should keep climbing toward oracle: %f -> %f", stable, stable6h)
	}
	if stable6h >= 10 {
		t.Fatalf("stable price converged too fast after 7h total: %f", stable6h)
	}
}

func TestDtClamping(t *testing.T) {
	m := NewModel(fixedpoint.FromInt64(100), 0)
	// A caller that updates only once, after a huge gap, should be treated
	// like dt=600 (the max), not dt=1e9.
	m.Update(fixedpoint.FromInt64(100), 1_000_000_000)
	if m.LastUpdate != 1_000_000_000 {
		t.Fatalf("LastUpdate not advanced: %d", m.LastUpdate)
	}
	if got := clampDt(1_000_000_000); got != maxDtSeconds {
		t.Fatalf("expected dt clamped to %d, got %d", maxDtSeconds, got)
	}
}

func TestDelayBucketRollover(t *testing.T) {
	m := NewModel(fixedpoint.FromInt64(1), 0)
	now := int64(0)
	for i := 0; i < 3; i++ {
		now += 3600
		m.Update(fixedpoint.FromInt64(2), now)
	}
	if m.CurrentDelayPrice().LessThanOrEqual(fixedpoint.FromInt64(1)) {
		t.Fatalf("delay price should have advanced above 1: %s", m.CurrentDelayPrice())
	}
}
