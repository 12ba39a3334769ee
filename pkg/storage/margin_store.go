package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperlicked/pkg/margin/account"
	"github.com/uhyunpark/hyperlicked/pkg/margin/bank"
	"github.com/uhyunpark/hyperlicked/pkg/margin/perp/market"
)

// Margin key schema, distinct from both the consensus prefixes
// (b:/c:/cm) and the superseded flat-account prefixes (acc:/pos:/ord:/
// trade:) above:
//
//   macc:<address>   → *account.Account
//   mbank:<index>    → *bank.Bank
//   mmkt:<index>     → *market.PerpMarket (book excluded, see SaveMarket)
const (
	prefixMarginAccount = "macc:"
	prefixMarginBank    = "mbank:"
	prefixMarginMarket  = "mmkt:"
)

func marginAccountKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixMarginAccount, addr.Hex()))
}

func marginBankKey(tokenIndex int64) []byte {
	return []byte(fmt.Sprintf("%s%d", prefixMarginBank, tokenIndex))
}

func marginMarketKey(marketIndex int64) []byte {
	return []byte(fmt.Sprintf("%s%d", prefixMarginMarket, marketIndex))
}

// SaveMarginAccount persists a margin account by its owner address.
func (s *PebbleStore) SaveMarginAccount(acc *account.Account) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("failed to marshal margin account: %w", err)
	}
	if err := s.db.Set(marginAccountKey(acc.Owner), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save margin account: %w", err)
	}
	return nil
}

// LoadMarginAccount loads a margin account, returning nil if absent.
func (s *PebbleStore) LoadMarginAccount(owner common.Address) (*account.Account, error) {
	data, closer, err := s.db.Get(marginAccountKey(owner))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get margin account: %w", err)
	}
	defer closer.Close()

	var acc account.Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal margin account: %w", err)
	}
	return &acc, nil
}

// LoadAllMarginAccounts loads every persisted margin account, used to
// rebuild a Group's Accounts map on startup.
func (s *PebbleStore) LoadAllMarginAccounts() ([]*account.Account, error) {
	prefix := []byte(prefixMarginAccount)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate margin accounts: %w", err)
	}
	defer iter.Close()

	var accounts []*account.Account
	for iter.First(); iter.Valid(); iter.Next() {
		var acc account.Account
		if err := json.Unmarshal(iter.Value(), &acc); err != nil {
			continue
		}
		accounts = append(accounts, &acc)
	}
	return accounts, nil
}

// SaveBank persists a bank by token index.
func (s *PebbleStore) SaveBank(b *bank.Bank) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal bank: %w", err)
	}
	if err := s.db.Set(marginBankKey(b.TokenIndex), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save bank: %w", err)
	}
	return nil
}

// LoadBank loads a bank by token index, returning nil if absent.
func (s *PebbleStore) LoadBank(tokenIndex int64) (*bank.Bank, error) {
	data, closer, err := s.db.Get(marginBankKey(tokenIndex))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bank: %w", err)
	}
	defer closer.Close()

	var b bank.Bank
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bank: %w", err)
	}
	return &b, nil
}

// LoadAllBanks loads every persisted bank.
func (s *PebbleStore) LoadAllBanks() ([]*bank.Bank, error) {
	prefix := []byte(prefixMarginBank)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate banks: %w", err)
	}
	defer iter.Close()

	var banks []*bank.Bank
	for iter.First(); iter.Valid(); iter.Next() {
		var b bank.Bank
		if err := json.Unmarshal(iter.Value(), &b); err != nil {
			continue
		}
		banks = append(banks, &b)
	}
	return banks, nil
}

// marketSnapshot is everything about a PerpMarket except its live
// orderbook.Book: the book is runtime matching state rebuilt from
// resting orders, not a value worth round-tripping through a snapshot
// byte-for-byte (its internal slot allocator state does not need to
// survive a restart, only the orders it holds would, and those are
// recovered by replaying the event/order log rather than by deep-copying
// the book's internal representation here).
type marketSnapshot struct {
	*market.PerpMarket
	Book json.RawMessage `json:"Book,omitempty"`
}

// SaveMarket persists a perp market's parameters and funding/settlement
// state by market index. The live Book is not included in the snapshot;
// callers repopulate it from LoadBank-style recovery of resting orders
// separately, the way the book itself is rebuilt from a cleared
// orderbook.Book plus replayed orders rather than deserialized whole.
func (s *PebbleStore) SaveMarket(m *market.PerpMarket) error {
	data, err := json.Marshal(marketSnapshot{PerpMarket: m})
	if err != nil {
		return fmt.Errorf("failed to marshal market: %w", err)
	}
	if err := s.db.Set(marginMarketKey(m.MarketIndex), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save market: %w", err)
	}
	return nil
}

// LoadMarket loads a perp market's parameters and funding/settlement
// state, returning nil if absent. The caller must assign a fresh
// orderbook.Book to the result before using it for matching.
func (s *PebbleStore) LoadMarket(marketIndex int64) (*market.PerpMarket, error) {
	data, closer, err := s.db.Get(marginMarketKey(marketIndex))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get market: %w", err)
	}
	defer closer.Close()

	var m market.PerpMarket
	snap := marketSnapshot{PerpMarket: &m}
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal market: %w", err)
	}
	return &m, nil
}

// LoadAllMarkets loads every persisted market.
func (s *PebbleStore) LoadAllMarkets() ([]*market.PerpMarket, error) {
	prefix := []byte(prefixMarginMarket)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate markets: %w", err)
	}
	defer iter.Close()

	var markets []*market.PerpMarket
	for iter.First(); iter.Valid(); iter.Next() {
		var m market.PerpMarket
		snap := marketSnapshot{PerpMarket: &m}
		if err := json.Unmarshal(iter.Value(), &snap); err != nil {
			continue
		}
		markets = append(markets, &m)
	}
	return markets, nil
}
