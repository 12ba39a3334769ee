// Package market implements the perp market: funding accrual, the
// settle-pnl-limit window, and the consume_events bridge between a
// matched fill and the two accounts' positions.
package market

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperlicked/pkg/margin/account"
	"github.com/uhyunpark/hyperlicked/pkg/margin/fixedpoint"
	"github.com/uhyunpark/hyperlicked/pkg/margin/perp/orderbook"
)

// PerpMarket is one instrument's static parameters plus funding/PnL
// accumulator state.
type PerpMarket struct {
	MarketIndex int64
	Name        string
	OracleAddr  common.Address

	BaseLotSize  int64
	QuoteLotSize int64

	MaintBaseAssetWeight fixedpoint.I80F48
	InitBaseAssetWeight  fixedpoint.I80F48
	MaintBaseLiabWeight  fixedpoint.I80F48
	InitBaseLiabWeight   fixedpoint.I80F48

	OverallPnlAssetWeight fixedpoint.I80F48

	// LiquidationFee discounts (long side) or loads (short side) the
	// oracle price a liquidator pays when taking over a base position.
	LiquidationFee fixedpoint.I80F48

	MakerFee fixedpoint.I80F48 // negative => rebate
	TakerFee fixedpoint.I80F48

	MinFunding fixedpoint.I80F48
	MaxFunding fixedpoint.I80F48

	LongFundingAcc  fixedpoint.I80F48
	ShortFundingAcc fixedpoint.I80F48
	LastFundingTs   int64

	OpenInterest int64

	FeesAccrued       fixedpoint.I80F48
	FeesSettled       fixedpoint.I80F48
	SettleTokenIndex  int64

	SettlePnlLimitFactor      fixedpoint.I80F48
	SettlePnlLimitWindowSecs  int64

	ReduceOnly bool
	// ForceClose mirrors bank.Bank.ForceClose: it lets the liquidation
	// sequencer run against this market's positions even when the
	// account holding them is healthy, to wind down a delisted market.
	ForceClose bool

	Book *orderbook.Book
}

// LongFunding / ShortFunding satisfy account.FundingAccumulators.
func (m *PerpMarket) LongFunding() fixedpoint.I80F48  { return m.LongFundingAcc }
func (m *PerpMarket) ShortFunding() fixedpoint.I80F48 { return m.ShortFundingAcc }

// AddOpenInterest satisfies account.OpenInterestTracker.
func (m *PerpMarket) AddOpenInterest(delta int64) { m.OpenInterest += delta }

const secondsPerDay = 86400

// UpdateFunding recomputes the funding accumulators from the book's
// touch versus an index price, clamping the per-tick rate to
// [MinFunding, MaxFunding] so a thin book can't produce runaway funding.
func (m *PerpMarket) UpdateFunding(indexPrice fixedpoint.I80F48, now int64) {
	if m.LastFundingTs == 0 {
		m.LastFundingTs = now
		return
	}
	dt := now - m.LastFundingTs
	if dt <= 0 {
		return
	}

	bookPrice, ok := m.bookPrice()
	if !ok || indexPrice.IsZero() {
		m.LastFundingTs = now
		return
	}

	ratio, err := bookPrice.Div(indexPrice)
	if err != nil {
		m.LastFundingTs = now
		return
	}
	diff := fixedpoint.Clamp(ratio.Sub(fixedpoint.One()), m.MinFunding, m.MaxFunding)

	dtFrac, err := fixedpoint.FromInt64(dt).Div(fixedpoint.FromInt64(secondsPerDay))
	if err != nil {
		m.LastFundingTs = now
		return
	}
	fundingDelta := indexPrice.Mul(diff).Mul(fixedpoint.FromInt64(m.BaseLotSize)).Mul(dtFrac)

	m.LongFundingAcc = m.LongFundingAcc.Add(fundingDelta)
	m.ShortFundingAcc = m.ShortFundingAcc.Add(fundingDelta)
	m.LastFundingTs = now
}

// bookPrice is the book's mid as a funding-rate input: average of the
// best bid and ask when both exist, or whichever single side is present
// when the book is one-sided.
func (m *PerpMarket) bookPrice() (fixedpoint.I80F48, bool) {
	bid, hasBid := m.Book.Bids.BestPrice()
	ask, hasAsk := m.Book.Asks.BestPrice()
	switch {
	case hasBid && hasAsk:
		mid, err := fixedpoint.FromInt64(bid + ask).Div(fixedpoint.FromInt64(2))
		if err != nil {
			return fixedpoint.Zero, false
		}
		return mid, true
	case hasBid:
		return fixedpoint.FromInt64(bid), true
	case hasAsk:
		return fixedpoint.FromInt64(ask), true
	default:
		return fixedpoint.Zero, false
	}
}
