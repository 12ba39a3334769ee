// Package account implements the dynamically-sized margin account: a
// fixed number of token, spot open-orders, and perp position slots, with
// lazy activation/deactivation as a caller's positions come and go.
package account

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperlicked/pkg/margin/bank"
	"github.com/uhyunpark/hyperlicked/pkg/margin/fixedpoint"
	"github.com/uhyunpark/hyperlicked/pkg/margin/marginerr"
)

// inactiveTokenIndex marks an unused TokenPosition slot, mirroring a
// sentinel max-index pattern rather than a nullable field so slots stay
// plain arrays.
const inactiveTokenIndex = -1
const inactiveMarketIndex = -1

// TokenPosition is one token's indexed balance within an account.
type TokenPosition struct {
	IndexedPosition fixedpoint.I80F48
	TokenIndex      int64
	InUseCount      uint8

	// ReduceOnlyLock is set by a token_deposit(reduce_only=2) call: it
	// blocks this position from allow_borrow withdrawals until the
	// position is deactivated again.
	ReduceOnlyLock bool
}

func (p *TokenPosition) IsActive() bool { return p.TokenIndex != inactiveTokenIndex }
func (p *TokenPosition) IsActiveForToken(tokenIndex int64) bool {
	return p.TokenIndex == tokenIndex
}
func (p *TokenPosition) IsInUse() bool { return p.InUseCount > 0 }

// Native returns the position's value in native token units, using the
// bank's deposit_index for a positive balance and borrow_index for a
// negative one.
func (p *TokenPosition) Native(b *bank.Bank) fixedpoint.I80F48 {
	if p.IndexedPosition.IsPositive() {
		return p.IndexedPosition.Mul(b.DepositIndex)
	}
	return p.IndexedPosition.Mul(b.BorrowIndex)
}

func newInactiveTokenPosition() TokenPosition {
	return TokenPosition{TokenIndex: inactiveTokenIndex}
}

// Serum3Position tracks reserved funds in an external spot open-orders
// account, kept so health computations don't need to look up a market's
// base/quote tokens separately.
type Serum3Position struct {
	MarketIndex              int64
	BaseTokenIndex           int64
	QuoteTokenIndex          int64
	PreviousNativeBaseReserved  fixedpoint.I80F48
	PreviousNativeQuoteReserved fixedpoint.I80F48
}

func (p *Serum3Position) IsActive() bool { return p.MarketIndex != inactiveMarketIndex }

func newInactiveSerum3Position() Serum3Position {
	return Serum3Position{MarketIndex: inactiveMarketIndex, BaseTokenIndex: inactiveTokenIndex, QuoteTokenIndex: inactiveTokenIndex}
}

// Side is a perp order side.
type Side uint8

const (
	Bid Side = iota
	Ask
)

// PerpPosition tracks one market's base lots, quote value, and unsettled
// funding.
type PerpPosition struct {
	MarketIndex int64

	BasePositionLots  int64
	QuotePositionNative fixedpoint.I80F48

	LongSettledFunding  fixedpoint.I80F48
	ShortSettledFunding fixedpoint.I80F48

	BidsBaseLots int64
	AsksBaseLots int64

	TakerBaseLots  int64
	TakerQuoteLots int64
}

func (p *PerpPosition) IsActive() bool { return p.MarketIndex != inactiveMarketIndex }
func (p *PerpPosition) IsActiveForMarket(marketIndex int64) bool {
	return p.MarketIndex == marketIndex
}

func newInactivePerpPosition() PerpPosition {
	return PerpPosition{MarketIndex: inactiveMarketIndex}
}

// AddTakerTrade records a just-matched fill before it reaches the event
// queue consumer, so health checks see the pending exposure immediately.
func (p *PerpPosition) AddTakerTrade(side Side, baseLots, quoteLots int64) {
	switch side {
	case Bid:
		p.TakerBaseLots += baseLots
		p.TakerQuoteLots -= quoteLots
	case Ask:
		p.TakerBaseLots -= baseLots
		p.TakerQuoteLots += quoteLots
	}
}

// RemoveTakerTrade clears a taker fill's provisional exposure once the
// event queue consumer has applied it to BasePositionLots/quote.
func (p *PerpPosition) RemoveTakerTrade(baseChange, quoteChange int64) {
	p.TakerBaseLots -= baseChange
	p.TakerQuoteLots -= quoteChange
}

// ChangeBasePosition applies a base lot delta, updating the market's
// open interest. Must be called only after SettleFunding.
func (p *PerpPosition) ChangeBasePosition(market OpenInterestTracker, baseChange int64) {
	start := p.BasePositionLots
	p.BasePositionLots += baseChange
	market.AddOpenInterest(abs64(p.BasePositionLots) - abs64(start))
}

// OpenInterestTracker is the minimal surface ChangeBasePosition needs
// from a perp market, to avoid an import cycle with pkg/margin/perp/market.
type OpenInterestTracker interface {
	AddOpenInterest(delta int64)
}

// FundingAccumulators is the minimal surface SettleFunding needs from a
// perp market.
type FundingAccumulators interface {
	LongFunding() fixedpoint.I80F48
	ShortFunding() fixedpoint.I80F48
}

// SettleFunding moves unrealized funding payments into quote_position,
// using whichever accumulator (long or short) matches the position's
// current side. A flat position accrues nothing but still advances its
// settled-funding watermarks.
func (p *PerpPosition) SettleFunding(market FundingAccumulators) {
	switch {
	case p.BasePositionLots > 0:
		delta := market.LongFunding().Sub(p.LongSettledFunding)
		p.QuotePositionNative = p.QuotePositionNative.Sub(delta.Mul(fixedpoint.FromInt64(p.BasePositionLots)))
	case p.BasePositionLots < 0:
		delta := market.ShortFunding().Sub(p.ShortSettledFunding)
		p.QuotePositionNative = p.QuotePositionNative.Sub(delta.Mul(fixedpoint.FromInt64(p.BasePositionLots)))
	}
	p.LongSettledFunding = market.LongFunding()
	p.ShortSettledFunding = market.ShortFunding()
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// PerpOpenOrder is a resting perp order slot tracked at the account
// level so cancel-all and liquidation force-cancel don't need to scan
// the book.
type PerpOpenOrder struct {
	Side          Side
	MarketIndex   int64
	ClientOrderID uint64
	OrderID       [16]byte
}

func (o *PerpOpenOrder) IsFree() bool { return o.MarketIndex == inactiveMarketIndex }

func newFreePerpOpenOrder() PerpOpenOrder {
	return PerpOpenOrder{MarketIndex: inactiveMarketIndex}
}

// HealthRegion marks which liquidation phase, if any, an account is
// currently in; callers gate further actions on this alongside raw
// health numbers.
type HealthRegion uint8

const (
	RegionNormal HealthRegion = iota
	RegionBeingLiquidated
	RegionBankrupt
)

// Account is the dynamically-sized margin account: owner identity plus
// fixed-capacity token/spot/perp slot arrays.
type Account struct {
	Owner      common.Address
	Group      common.Address
	AccountNum uint32

	Tokens        []TokenPosition
	Serum3        []Serum3Position
	PerpPositions []PerpPosition
	PerpOpenOrders []PerpOpenOrder

	Frozen  bool
	Region  HealthRegion

	// BeingLiquidatedHealth is the maint health recorded when an account
	// entered the being-liquidated region, used to enforce that each
	// liquidation step leaves health higher than where it started.
	BeingLiquidatedHealth fixedpoint.I80F48

	DelegatedTo *common.Address

	// WithdrawDestination is the owner's pre-designated ATA; token_force_withdraw
	// refuses to pay out anywhere else.
	WithdrawDestination common.Address
}

// SetWithdrawDestination registers the only address token_force_withdraw is
// permitted to pay out to.
func (a *Account) SetWithdrawDestination(addr common.Address) {
	a.WithdrawDestination = addr
}

// New builds an account with the requested slot counts, all inactive.
func New(owner, group common.Address, accountNum uint32, tokenSlots, serum3Slots, perpSlots, perpOrderSlots int) *Account {
	a := &Account{
		Owner:      owner,
		Group:      group,
		AccountNum: accountNum,
	}
	a.Tokens = make([]TokenPosition, tokenSlots)
	for i := range a.Tokens {
		a.Tokens[i] = newInactiveTokenPosition()
	}
	a.Serum3 = make([]Serum3Position, serum3Slots)
	for i := range a.Serum3 {
		a.Serum3[i] = newInactiveSerum3Position()
	}
	a.PerpPositions = make([]PerpPosition, perpSlots)
	for i := range a.PerpPositions {
		a.PerpPositions[i] = newInactivePerpPosition()
	}
	a.PerpOpenOrders = make([]PerpOpenOrder, perpOrderSlots)
	for i := range a.PerpOpenOrders {
		a.PerpOpenOrders[i] = newFreePerpOpenOrder()
	}
	return a
}

// TokenPositionByIndex returns the active slot for tokenIndex, or nil.
func (a *Account) TokenPositionByIndex(tokenIndex int64) *TokenPosition {
	for i := range a.Tokens {
		if a.Tokens[i].IsActiveForToken(tokenIndex) {
			return &a.Tokens[i]
		}
	}
	return nil
}

// EnsureTokenPosition returns the active slot for tokenIndex, activating
// a free one if none exists yet. Returns whether a new slot was
// activated, matching callers that need to bump Bank in_use counters.
func (a *Account) EnsureTokenPosition(tokenIndex int64) (*TokenPosition, bool, error) {
	if p := a.TokenPositionByIndex(tokenIndex); p != nil {
		return p, false, nil
	}
	for i := range a.Tokens {
		if !a.Tokens[i].IsActive() {
			a.Tokens[i] = TokenPosition{TokenIndex: tokenIndex}
			return &a.Tokens[i], true, nil
		}
	}
	return nil, false, marginerr.ErrNoFreeTokenPosition
}

// DeactivateTokenPositionIfEmpty frees a token slot once its indexed
// balance returns to exactly zero and nothing still references it.
func (a *Account) DeactivateTokenPositionIfEmpty(tokenIndex int64) {
	p := a.TokenPositionByIndex(tokenIndex)
	if p == nil || !p.IndexedPosition.IsZero() || p.IsInUse() {
		return
	}
	*p = newInactiveTokenPosition()
}

// ActiveTokenPositions returns pointers to every active token slot.
func (a *Account) ActiveTokenPositions() []*TokenPosition {
	var out []*TokenPosition
	for i := range a.Tokens {
		if a.Tokens[i].IsActive() {
			out = append(out, &a.Tokens[i])
		}
	}
	return out
}

// PerpPositionByMarket returns the active slot for marketIndex, or nil.
func (a *Account) PerpPositionByMarket(marketIndex int64) *PerpPosition {
	for i := range a.PerpPositions {
		if a.PerpPositions[i].IsActiveForMarket(marketIndex) {
			return &a.PerpPositions[i]
		}
	}
	return nil
}

// EnsurePerpPosition activates a free perp slot for marketIndex if one
// doesn't already exist.
func (a *Account) EnsurePerpPosition(marketIndex int64) (*PerpPosition, error) {
	if p := a.PerpPositionByMarket(marketIndex); p != nil {
		return p, nil
	}
	for i := range a.PerpPositions {
		if !a.PerpPositions[i].IsActive() {
			a.PerpPositions[i] = PerpPosition{MarketIndex: marketIndex}
			return &a.PerpPositions[i], nil
		}
	}
	return nil, marginerr.ErrNoFreePerpPosition
}

// DeactivatePerpPositionIfEmpty frees a perp slot once the position,
// resting orders, and taker-pending lots have all returned to zero.
func (a *Account) DeactivatePerpPositionIfEmpty(marketIndex int64) {
	p := a.PerpPositionByMarket(marketIndex)
	if p == nil {
		return
	}
	if p.BasePositionLots != 0 || !p.QuotePositionNative.IsZero() {
		return
	}
	if p.BidsBaseLots != 0 || p.AsksBaseLots != 0 || p.TakerBaseLots != 0 || p.TakerQuoteLots != 0 {
		return
	}
	*p = newInactivePerpPosition()
}

// ActivePerpPositions returns pointers to every active perp slot.
func (a *Account) ActivePerpPositions() []*PerpPosition {
	var out []*PerpPosition
	for i := range a.PerpPositions {
		if a.PerpPositions[i].IsActive() {
			out = append(out, &a.PerpPositions[i])
		}
	}
	return out
}

// AddPerpOpenOrder claims a free open-order slot for a resting order.
func (a *Account) AddPerpOpenOrder(side Side, marketIndex int64, clientOrderID uint64, orderID [16]byte) error {
	for i := range a.PerpOpenOrders {
		if a.PerpOpenOrders[i].IsFree() {
			a.PerpOpenOrders[i] = PerpOpenOrder{
				Side:          side,
				MarketIndex:   marketIndex,
				ClientOrderID: clientOrderID,
				OrderID:       orderID,
			}
			return nil
		}
	}
	return marginerr.ErrNoFreePerpOpenOrder
}

// RemovePerpOpenOrder frees the slot matching orderID within marketIndex.
func (a *Account) RemovePerpOpenOrder(marketIndex int64, orderID [16]byte) {
	for i := range a.PerpOpenOrders {
		if !a.PerpOpenOrders[i].IsFree() && a.PerpOpenOrders[i].MarketIndex == marketIndex && a.PerpOpenOrders[i].OrderID == orderID {
			a.PerpOpenOrders[i] = newFreePerpOpenOrder()
			return
		}
	}
}

// OpenOrdersForMarket returns every resting order slot for marketIndex.
func (a *Account) OpenOrdersForMarket(marketIndex int64) []*PerpOpenOrder {
	var out []*PerpOpenOrder
	for i := range a.PerpOpenOrders {
		if !a.PerpOpenOrders[i].IsFree() && a.PerpOpenOrders[i].MarketIndex == marketIndex {
			out = append(out, &a.PerpOpenOrders[i])
		}
	}
	return out
}

// EnterLiquidation transitions the account into the being-liquidated
// region, recording the health snapshot liquidation steps must improve
// on, unless it is already in that region.
func (a *Account) EnterLiquidation(currentMaintHealth fixedpoint.I80F48) {
	if a.Region == RegionBeingLiquidated {
		return
	}
	a.Region = RegionBeingLiquidated
	a.BeingLiquidatedHealth = currentMaintHealth
}

// ExitLiquidation returns the account to the normal region, used once a
// liquidation sequence has restored positive maint health.
func (a *Account) ExitLiquidation() {
	a.Region = RegionNormal
	a.BeingLiquidatedHealth = fixedpoint.Zero
}

// MarkBankrupt transitions the account to the bankrupt region: it has
// exhausted all collateral and is only reachable via the bankruptcy
// resolution path.
func (a *Account) MarkBankrupt() {
	a.Region = RegionBankrupt
}

// IsBeingLiquidated reports whether the account is in the liquidation
// region.
func (a *Account) IsBeingLiquidated() bool { return a.Region == RegionBeingLiquidated }

// IsBankrupt reports whether the account is in the bankrupt region.
func (a *Account) IsBankrupt() bool { return a.Region == RegionBankrupt }
