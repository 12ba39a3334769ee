package oracle

import (
	"testing"

	"github.com/uhyunpark/hyperlicked/pkg/margin/fixedpoint"
	"github.com/uhyunpark/hyperlicked/pkg/margin/marginerr"
)

func TestGateAcceptsFreshConfidentReading(t *testing.T) {
	r := Reading{
		Price:          fixedpoint.FromInt64(100),
		Confidence:     fixedpoint.FromFloat64(0.5),
		LastUpdateSlot: 1000,
	}
	if err := Gate(r, 1010, DefaultParams()); err != nil {
		t.Fatalf("expected fresh reading to pass, got %v", err)
	}
}

func TestGateRejectsStaleReading(t *testing.T) {
	r := Reading{
		Price:          fixedpoint.FromInt64(100),
		Confidence:     fixedpoint.FromFloat64(0.5),
		LastUpdateSlot: 1000,
	}
	if err := Gate(r, 1000+DefaultParams().MaxStalenessSlots+1, DefaultParams()); err != marginerr.ErrOracleStale {
		t.Fatalf("expected ErrOracleStale, got %v", err)
	}
}

func TestGateRejectsWideConfidence(t *testing.T) {
	r := Reading{
		Price:          fixedpoint.FromInt64(100),
		Confidence:     fixedpoint.FromInt64(10),
		LastUpdateSlot: 1000,
	}
	if err := Gate(r, 1000, DefaultParams()); err != marginerr.ErrOracleConfidence {
		t.Fatalf("expected ErrOracleConfidence, got %v", err)
	}
}

func TestGateRejectsZeroPrice(t *testing.T) {
	r := Reading{Price: fixedpoint.Zero, LastUpdateSlot: 1000}
	if err := Gate(r, 1000, DefaultParams()); err != marginerr.ErrOracleStale {
		t.Fatalf("expected ErrOracleStale on zero price, got %v", err)
	}
}

func TestStubReaderRoundTrips(t *testing.T) {
	s := NewStub(42.5, 7)
	r, err := s.Read()
	if err != nil {
		t.Fatalf("stub read: %v", err)
	}
	if r.Price.Float64() != 42.5 {
		t.Fatalf("expected price 42.5, got %f", r.Price.Float64())
	}
	if r.LastUpdateSlot != 7 {
		t.Fatalf("expected slot 7, got %d", r.LastUpdateSlot)
	}
}
