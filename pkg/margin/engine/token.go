package engine

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperlicked/pkg/margin/fixedpoint"
	"github.com/uhyunpark/hyperlicked/pkg/margin/marginerr"
)

// TokenDepositParams describes a token_deposit call. ReduceOnly follows
// the bank's own tri-state convention: 0 leaves the position free, 2
// locks it against future allow_borrow withdrawals until it empties out
// again (1 is reserved for the bank-level reduce-only mode and has no
// per-position meaning here).
type TokenDepositParams struct {
	Owner      common.Address
	TokenIndex int64
	Amount     fixedpoint.I80F48
	ReduceOnly uint8
	Now        int64
}

// TokenDepositResult reports the position's new indexed balance.
type TokenDepositResult struct {
	NewIndexedPosition fixedpoint.I80F48
	Activated          bool
}

// TokenDeposit credits Amount to the caller's token position and records
// any repayment against the rolling net-borrow window, then runs the
// shared post-condition health check.
func (g *Group) TokenDeposit(p TokenDepositParams) (TokenDepositResult, error) {
	acc, ok := g.lookupAccount(p.Owner)
	if !ok {
		return TokenDepositResult{}, marginerr.ErrNoFreeTokenPosition
	}
	b, ok := g.Banks[p.TokenIndex]
	if !ok {
		return TokenDepositResult{}, marginerr.ErrUnknownToken
	}

	pos, _, err := acc.EnsureTokenPosition(p.TokenIndex)
	if err != nil {
		return TokenDepositResult{}, err
	}

	indexedBefore := pos.IndexedPosition
	newIndexed, activated, err := b.Deposit(pos.IndexedPosition, p.Amount)
	if err != nil {
		return TokenDepositResult{}, err
	}
	b.DepositReducesBorrow(indexedBefore, p.Amount)
	pos.IndexedPosition = newIndexed

	if p.ReduceOnly == 2 {
		pos.ReduceOnlyLock = true
	}

	if err := g.checkPostHealth(acc, p.Now, false); err != nil {
		return TokenDepositResult{}, err
	}
	return TokenDepositResult{NewIndexedPosition: newIndexed, Activated: activated}, nil
}

// TokenWithdrawParams describes a token_withdraw call.
type TokenWithdrawParams struct {
	Owner       common.Address
	TokenIndex  int64
	Amount      fixedpoint.I80F48
	AllowBorrow bool
	Now         int64
}

// TokenWithdrawResult reports the position's new indexed balance.
type TokenWithdrawResult struct {
	NewIndexedPosition fixedpoint.I80F48
}

// TokenWithdraw debits Amount from the caller's token position, borrowing
// the shortfall when AllowBorrow is set, then runs the shared
// post-condition health check.
func (g *Group) TokenWithdraw(p TokenWithdrawParams) (TokenWithdrawResult, error) {
	acc, ok := g.lookupAccount(p.Owner)
	if !ok {
		return TokenWithdrawResult{}, marginerr.ErrNoFreeTokenPosition
	}
	b, ok := g.Banks[p.TokenIndex]
	if !ok {
		return TokenWithdrawResult{}, marginerr.ErrUnknownToken
	}

	pos, _, err := acc.EnsureTokenPosition(p.TokenIndex)
	if err != nil {
		return TokenWithdrawResult{}, err
	}
	if pos.ReduceOnlyLock && p.AllowBorrow {
		return TokenWithdrawResult{}, marginerr.ErrTokenInReduceOnlyMode
	}

	price, err := g.tokenOraclePrice(p.TokenIndex, p.Now)
	if err != nil {
		return TokenWithdrawResult{}, err
	}

	newIndexed, _, err := b.WithdrawWithFee(pos.IndexedPosition, p.Amount, p.AllowBorrow, price, p.Now)
	if err != nil {
		return TokenWithdrawResult{}, err
	}
	pos.IndexedPosition = newIndexed
	acc.DeactivateTokenPositionIfEmpty(p.TokenIndex)

	if err := g.checkPostHealth(acc, p.Now, false); err != nil {
		return TokenWithdrawResult{}, err
	}
	return TokenWithdrawResult{NewIndexedPosition: newIndexed}, nil
}

// TokenForceWithdrawParams describes a token_force_withdraw call: an
// emergency drain of a token the bank operator has flagged with
// force_withdraw, paid out only to the account's pre-designated
// destination and bypassing the oracle staleness/confidence gate.
type TokenForceWithdrawParams struct {
	Owner       common.Address
	TokenIndex  int64
	Amount      fixedpoint.I80F48
	Destination common.Address
	Now         int64
}

// TokenForceWithdrawResult reports the position's new indexed balance.
type TokenForceWithdrawResult struct {
	NewIndexedPosition fixedpoint.I80F48
}

// TokenForceWithdraw pays out existing balance only (never creates a new
// borrow) and does not gate on Init health: it exists to let a delisted
// token's holders recover funds even from an account that is already
// unhealthy. It still refreshes being_liquidated from the post-withdraw
// cache so the account's state stays consistent.
func (g *Group) TokenForceWithdraw(p TokenForceWithdrawParams) (TokenForceWithdrawResult, error) {
	acc, ok := g.lookupAccount(p.Owner)
	if !ok {
		return TokenForceWithdrawResult{}, marginerr.ErrNoFreeTokenPosition
	}
	b, ok := g.Banks[p.TokenIndex]
	if !ok {
		return TokenForceWithdrawResult{}, marginerr.ErrUnknownToken
	}
	if !b.ForceWithdraw {
		return TokenForceWithdrawResult{}, marginerr.ErrForceWithdrawNotPermitted
	}
	if p.Destination != acc.WithdrawDestination {
		return TokenForceWithdrawResult{}, marginerr.ErrInvalidDestination
	}

	pos := acc.TokenPositionByIndex(p.TokenIndex)
	if pos == nil {
		return TokenForceWithdrawResult{}, marginerr.ErrNoFreeTokenPosition
	}

	price, err := g.tokenOraclePriceBypassGate(p.TokenIndex)
	if err != nil {
		return TokenForceWithdrawResult{}, err
	}

	newIndexed, _, err := b.Withdraw(pos.IndexedPosition, p.Amount, false, price, p.Now)
	if err != nil {
		return TokenForceWithdrawResult{}, err
	}
	pos.IndexedPosition = newIndexed
	acc.DeactivateTokenPositionIfEmpty(p.TokenIndex)

	if err := g.checkPostHealth(acc, p.Now, true); err != nil {
		return TokenForceWithdrawResult{}, err
	}
	return TokenForceWithdrawResult{NewIndexedPosition: newIndexed}, nil
}
