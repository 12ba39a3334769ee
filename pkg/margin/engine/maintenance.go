package engine

import (
	"github.com/uhyunpark/hyperlicked/pkg/margin/account"
	"github.com/uhyunpark/hyperlicked/pkg/margin/marginerr"
)

// UpdateFunding recomputes a perp market's funding rate against its book's
// current bid/ask premium relative to the oracle (spec.md §4.8's
// update_funding keeper call). It never touches any account directly;
// funding only affects QuotePositionNative the next time a position's
// SettleFunding runs.
func (g *Group) UpdateFunding(marketIndex int64, now int64) error {
	m, ok := g.Markets[marketIndex]
	if !ok {
		return marginerr.ErrUnknownMarket
	}
	price, err := g.marketOraclePrice(marketIndex, now)
	if err != nil {
		return err
	}
	m.UpdateFunding(price, now)
	return nil
}

// UpdateBankIndex accrues interest on a bank's deposit/borrow index
// (spec.md §4.8's update_index keeper call).
func (g *Group) UpdateBankIndex(tokenIndex int64, now int64) error {
	b, ok := g.Banks[tokenIndex]
	if !ok {
		return marginerr.ErrUnknownToken
	}
	b.UpdateIndex(now)
	return nil
}

// AutoSettlePnl walks every account with an active position in the given
// market, pairs the first profitable account it finds against each
// account sitting at a loss, and self-settles each pair (the profitable
// side acts as its own settler, so no fee leaks out of the system). It
// returns the number of pairs settled. This is the keeper-loop analogue of
// a bot calling perp_settle_pnl across every open position; a production
// deployment would instead have an off-chain settler earn the fee, but
// that settler is exactly the external collaborator spec.md §6 keeps out
// of scope.
func (g *Group) AutoSettlePnl(marketIndex int64, now int64) (int, error) {
	if _, ok := g.Markets[marketIndex]; !ok {
		return 0, marginerr.ErrUnknownMarket
	}

	var profitable, atLoss []*account.Account
	for _, acc := range g.Accounts {
		pos := acc.PerpPositionByMarket(marketIndex)
		if pos == nil {
			continue
		}
		if pos.QuotePositionNative.IsPositive() {
			profitable = append(profitable, acc)
		} else if pos.QuotePositionNative.IsNegative() {
			atLoss = append(atLoss, acc)
		}
	}

	settled := 0
	pi := 0
	for _, loser := range atLoss {
		if pi >= len(profitable) {
			break
		}
		winner := profitable[pi]
		if winner == loser {
			pi++
			if pi >= len(profitable) {
				break
			}
			winner = profitable[pi]
		}

		_, err := g.SettlePnl(SettlePnlParams{
			AccountA:    winner.Owner,
			AccountB:    loser.Owner,
			Settler:     winner.Owner,
			MarketIndex: marketIndex,
			Now:         now,
		})
		if err != nil {
			continue
		}
		settled++

		winnerPos := winner.PerpPositionByMarket(marketIndex)
		if winnerPos == nil || !winnerPos.QuotePositionNative.IsPositive() {
			pi++
		}
	}

	return settled, nil
}
