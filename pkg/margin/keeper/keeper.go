package keeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/hyperlicked/pkg/margin/engine"
)

// Keeper ticks the group's four maintenance loops on independent
// intervals: update_funding, update_bank_index, perp_consume_events, and
// perp_settle_pnl, each against every market/bank the group holds.
type Keeper struct {
	group  *engine.Group
	cfg    Config
	logger *zap.SugaredLogger

	lastSlot     uint64
	lastSlotSeen time.Time
}

// New builds a Keeper over an already-populated group.
func New(group *engine.Group, cfg Config, logger *zap.SugaredLogger) *Keeper {
	return &Keeper{group: group, cfg: cfg, logger: logger}
}

// Start launches the four maintenance loops plus the stall watchdog as
// background goroutines and returns a cancel function that stops all of
// them.
func (k *Keeper) Start(ctx context.Context) context.CancelFunc {
	keepCtx, cancel := context.WithCancel(ctx)

	k.lastSlot = k.group.CurrentSlot
	k.lastSlotSeen = time.Now()

	go k.loop(keepCtx, "update_funding", k.cfg.UpdateFundingInterval, k.runUpdateFunding)
	go k.loop(keepCtx, "update_banks", k.cfg.UpdateBanksInterval, k.runUpdateBanks)
	go k.loop(keepCtx, "consume_events", k.cfg.ConsumeEventsInterval, k.runConsumeEvents)
	go k.loop(keepCtx, "settle", k.cfg.SettleInterval, k.runSettle)
	go k.watchdog(keepCtx)

	return cancel
}

// loop is the shared ticker/context/select shape every maintenance loop
// uses: tick at the given interval, run the body, stop on cancel.
func (k *Keeper) loop(ctx context.Context, name string, interval time.Duration, body func(now int64)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if k.logger != nil {
		k.logger.Infow("keeper_loop_started", "loop", name, "interval", interval)
	}

	for {
		select {
		case <-ctx.Done():
			if k.logger != nil {
				k.logger.Infow("keeper_loop_stopped", "loop", name)
			}
			return
		case <-ticker.C:
			body(time.Now().Unix())
		}
	}
}

func (k *Keeper) runUpdateFunding(now int64) {
	for marketIndex := range k.group.Markets {
		if err := k.group.UpdateFunding(marketIndex, now); err != nil && k.logger != nil {
			k.logger.Warnw("update_funding_failed", "market_index", marketIndex, "error", err)
		}
	}
}

func (k *Keeper) runUpdateBanks(now int64) {
	for tokenIndex := range k.group.Banks {
		if err := k.group.UpdateBankIndex(tokenIndex, now); err != nil && k.logger != nil {
			k.logger.Warnw("update_bank_index_failed", "token_index", tokenIndex, "error", err)
		}
	}
}

func (k *Keeper) runConsumeEvents(now int64) {
	_ = now
	for marketIndex := range k.group.Markets {
		n, err := k.group.ConsumeEvents(engine.ConsumeEventsParams{MarketIndex: marketIndex, Limit: k.cfg.ConsumeEventsLimit})
		if err != nil && k.logger != nil {
			k.logger.Warnw("consume_events_failed", "market_index", marketIndex, "error", err)
			continue
		}
		if n > 0 && k.logger != nil {
			k.logger.Infow("consume_events", "market_index", marketIndex, "count", n)
		}
	}
}

func (k *Keeper) runSettle(now int64) {
	for marketIndex := range k.group.Markets {
		n, err := k.group.AutoSettlePnl(marketIndex, now)
		if err != nil && k.logger != nil {
			k.logger.Warnw("auto_settle_failed", "market_index", marketIndex, "error", err)
			continue
		}
		if n > 0 && k.logger != nil {
			k.logger.Infow("auto_settle_pnl", "market_index", marketIndex, "pairs_settled", n)
		}
	}
}

// watchdog fatally aborts the process if the group's CurrentSlot stops
// advancing for FatalConnectionTimeout, the way a keeper detects the node
// it's driving has stalled or lost its feed.
func (k *Keeper) watchdog(ctx context.Context) {
	ticker := time.NewTicker(k.cfg.CheckForChangesInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := k.group.CurrentSlot
			now := time.Now()
			if current != k.lastSlot {
				k.lastSlot = current
				k.lastSlotSeen = now
				continue
			}
			if now.Sub(k.lastSlotSeen) >= k.cfg.FatalConnectionTimeout {
				if k.logger != nil {
					k.logger.Fatalw("keeper_stall_detected", "slot", current, "stalled_for", now.Sub(k.lastSlotSeen))
				}
				return
			}
		}
	}
}
