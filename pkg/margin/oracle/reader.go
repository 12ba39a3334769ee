// Package oracle decodes external price-feed accounts into a typed
// reading and enforces a staleness/confidence gate. The core never talks
// to a feed directly — it consumes whatever a Reader returns, which lets
// keeper/liquidator services swap in a real feed adapter without
// touching the engine.
package oracle

import (
	"time"

	"github.com/uhyunpark/hyperlicked/pkg/margin/fixedpoint"
	"github.com/uhyunpark/hyperlicked/pkg/margin/marginerr"
)

// Reading is a decoded oracle observation.
type Reading struct {
	Price            fixedpoint.I80F48
	Confidence       fixedpoint.I80F48 // as a fraction of Price
	LastUpdateSlot   uint64
	LastUpdateUnix   int64
}

// Reader decodes a single oracle account. Production adapters wrap a
// Pyth/Switchboard-style account layout; StubReader below is the one used
// by tests and by a force-close path that bypasses the gate.
type Reader interface {
	Read() (Reading, error)
}

// Params configures the staleness/confidence gate.
type Params struct {
	MaxStalenessSlots  uint64
	ConfidenceFraction fixedpoint.I80F48 // reject if Confidence/Price exceeds this
}

// DefaultParams mirrors typical mainnet settings: a couple hundred slots
// of staleness tolerance (~1-2 minutes at Solana's nominal slot time) and
// a 2% confidence band.
func DefaultParams() Params {
	return Params{
		MaxStalenessSlots:  250,
		ConfidenceFraction: fixedpoint.FromFloat64(0.02),
	}
}

// Gate validates a reading against the staleness/confidence policy. It
// returns ErrOracleStale or ErrOracleConfidence on failure; callers on a
// force-close path are expected to special-case bypassing Gate entirely,
// not to relax its parameters.
func Gate(r Reading, currentSlot uint64, p Params) error {
	if currentSlot > r.LastUpdateSlot && currentSlot-r.LastUpdateSlot > p.MaxStalenessSlots {
		return marginerr.ErrOracleStale
	}
	if r.Price.IsZero() {
		return marginerr.ErrOracleStale
	}
	frac, err := r.Confidence.Div(r.Price.Abs())
	if err != nil {
		return marginerr.ErrOracleConfidence
	}
	if frac.GreaterThan(p.ConfidenceFraction) {
		return marginerr.ErrOracleConfidence
	}
	return nil
}

// StubReader returns a fixed reading, for tests and local devnets.
type StubReader struct {
	Reading Reading
}

func (s StubReader) Read() (Reading, error) { return s.Reading, nil }

// NewStub builds a StubReader with a price observed "now".
func NewStub(price float64, slot uint64) StubReader {
	return StubReader{Reading: Reading{
		Price:          fixedpoint.FromFloat64(price),
		Confidence:     fixedpoint.FromFloat64(price * 0.001),
		LastUpdateSlot: slot,
		LastUpdateUnix: time.Now().Unix(),
	}}
}
