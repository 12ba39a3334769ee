// Package stableprice implements an oracle-smoothing model: an array of
// hourly delay-limited averages plus a per-tick stable price whose growth
// rate collapses quadratically as it diverges from the delay price. It
// exists so a single-tick oracle spike cannot force a liquidation or
// unlock a borrow.
package stableprice

import "github.com/uhyunpark/hyperlicked/pkg/margin/fixedpoint"

const delayBuckets = 24

// dt is clamped into this window so an intermittently-called update behaves
// like a frequently-called one.
const (
	minDtSeconds = 10
	maxDtSeconds = 600
)

// Model holds the smoothing state for one oracle-fed price.
type Model struct {
	DelayPrice        [delayBuckets]fixedpoint.I80F48
	DelayAccumulator  fixedpoint.I80F48 // sum of price*dt within the current window
	DelayAccumTime    int64             // seconds accumulated within the current window
	DelayIntervalSecs int64             // window length, typically 3600 (1h)
	LastDelayUpdate   int64             // unix seconds of the last bucket rollover
	LastIndex         int               // index of the bucket currently being accumulated

	StablePrice fixedpoint.I80F48
	LastUpdate  int64 // unix seconds of the last Update call

	DelayGrowthLimit  fixedpoint.I80F48 // max relative change per bucket rollover
	StableGrowthLimit fixedpoint.I80F48 // max relative change per second at stable==delay
}

// NewModel seeds a model at a starting price, with every delay bucket
// pre-filled so an immediate health check has a sane stable price.
func NewModel(startPrice fixedpoint.I80F48, now int64) *Model {
	m := &Model{
		DelayIntervalSecs: 3600,
		LastDelayUpdate:   now,
		StablePrice:       startPrice,
		LastUpdate:        now,
		DelayGrowthLimit:  fixedpoint.FromFloat64(0.06),
		StableGrowthLimit: fixedpoint.FromFloat64(0.0003),
	}
	for i := range m.DelayPrice {
		m.DelayPrice[i] = startPrice
	}
	return m
}

// Reset re-seeds the model to a single price, as NewModel does.
func (m *Model) Reset(price fixedpoint.I80F48, now int64) {
	*m = *NewModel(price, now)
}

func clampDt(dt int64) int64 {
	if dt < minDtSeconds {
		return minDtSeconds
	}
	if dt > maxDtSeconds {
		return maxDtSeconds
	}
	return dt
}

// Update feeds a fresh oracle observation into the model and advances
// both the delay-price buckets (if enough time has elapsed for a
// rollover) and the stable price (always, by elapsed dt).
func (m *Model) Update(oraclePrice fixedpoint.I80F48, now int64) {
	dt := clampDt(now - m.LastUpdate)
	if dt <= 0 {
		dt = minDtSeconds
	}

	m.accumulateDelay(oraclePrice, dt, now)
	m.advanceStable(dt)

	m.LastUpdate = now
}

func (m *Model) accumulateDelay(oraclePrice fixedpoint.I80F48, dt, now int64) {
	m.DelayAccumulator = m.DelayAccumulator.Add(oraclePrice.Mul(fixedpoint.FromInt64(dt)))
	m.DelayAccumTime += dt

	for m.DelayAccumTime >= m.DelayIntervalSecs || now-m.LastDelayUpdate >= m.DelayIntervalSecs {
		prev := m.DelayPrice[m.LastIndex]
		avgDivisor := fixedpoint.FromInt64(m.DelayAccumTime)
		avg, err := m.DelayAccumulator.Div(avgDivisor)
		if err != nil {
			avg = prev
		}

		lo := prev.Mul(fixedpoint.One().Sub(m.DelayGrowthLimit))
		hi := prev.Mul(fixedpoint.One().Add(m.DelayGrowthLimit))
		avg = fixedpoint.Clamp(avg, lo, hi)

		m.LastIndex = (m.LastIndex + 1) % delayBuckets
		m.DelayPrice[m.LastIndex] = avg

		m.DelayAccumTime -= m.DelayIntervalSecs
		if m.DelayAccumTime < 0 {
			m.DelayAccumTime = 0
		}
		// carry the remaining (unaccounted) time's worth of price into the
		// new window at the same instantaneous price.
		m.DelayAccumulator = oraclePrice.Mul(fixedpoint.FromInt64(m.DelayAccumTime))
		m.LastDelayUpdate = now
	}
}

// CurrentDelayPrice returns the most recently closed delay bucket.
func (m *Model) CurrentDelayPrice() fixedpoint.I80F48 {
	return m.DelayPrice[m.LastIndex]
}

// advanceStable grows StablePrice toward CurrentDelayPrice() at a rate
// bounded by StableGrowthLimit * (min/max)^2 * dt: the quadratic damping
// term collapses the allowed step as the two values diverge.
func (m *Model) advanceStable(dt int64) {
	delay := m.CurrentDelayPrice()
	stable := m.StablePrice
	if stable.IsZero() {
		m.StablePrice = delay
		return
	}

	lower := fixedpoint.Min(stable, delay)
	upper := fixedpoint.Max(stable, delay)
	ratio := fixedpoint.One()
	if !upper.IsZero() {
		r, err := lower.Div(upper)
		if err == nil {
			ratio = r
		}
	}
	damping := ratio.Mul(ratio)

	maxStep := m.StableGrowthLimit.Mul(damping).Mul(fixedpoint.FromInt64(dt)).Mul(stable)
	maxStep = maxStep.Abs()

	diff := delay.Sub(stable)
	if diff.Abs().LessThanOrEqual(maxStep) {
		m.StablePrice = delay
		return
	}
	if diff.IsPositive() {
		m.StablePrice = stable.Add(maxStep)
	} else {
		m.StablePrice = stable.Sub(maxStep)
	}
}
