package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"cloudMining/internal/model"
)

// Withdraw pays the caller's pending balance of asset. Nothing pending is a
// successful no-op that returns zero.
func (l *Ledger) Withdraw(ctx context.Context, caller, asset common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.payout(ctx, caller, asset)
}

// WithdrawAll pays every pending balance of the owner and of every investor
// across all mined assets. Each payout is committed as soon as its transfer
// succeeds; on failure the payouts made so far are returned with the error.
func (l *Ledger) WithdrawAll(ctx context.Context, caller common.Address) ([]model.Payout, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireOwner(caller); err != nil {
		return nil, err
	}

	holders := make([]common.Address, 0, l.investors.Len()+1)
	holders = append(holders, l.owner)
	holders = append(holders, l.investors.items...)

	var payouts []model.Payout
	for _, asset := range l.minedAssets.items {
		for _, holder := range holders {
			amount, err := l.payout(ctx, holder, asset)
			if err != nil {
				return payouts, err
			}
			if amount.Sign() == 0 {
				continue
			}
			payouts = append(payouts, model.Payout{Holder: holder, Asset: asset, Amount: amount})
		}
	}

	l.logger.Info("withdraw all complete", zap.Int("payouts", len(payouts)))
	return payouts, nil
}

func (l *Ledger) payout(ctx context.Context, holder, asset common.Address) (*big.Int, error) {
	amount := l.pendingOf(holder, asset)
	if amount.Sign() == 0 {
		return amount, nil
	}

	delete(l.pending[holder], asset)
	addTo(l.everWithdrawn, asset, amount)
	undo := func() {
		l.addPending(holder, asset, amount)
		l.everWithdrawn[asset].Sub(l.everWithdrawn[asset], amount)
	}

	intent := model.TransferIntent{
		Kind:   model.TransferPayout,
		Token:  asset.Hex(),
		From:   l.reservoir.Hex(),
		To:     holder.Hex(),
		Amount: amount.String(),
	}
	if err := l.announce(ctx, intent); err != nil {
		undo()
		return nil, err
	}
	if err := l.bank.Transfer(ctx, asset, holder, amount); err != nil {
		undo()
		return nil, fmt.Errorf("%w: %s to %s: %w", ErrPayoutTransferFailed, asset.Hex(), holder.Hex(), err)
	}

	l.logger.Info("payout sent",
		zap.String("holder", holder.Hex()),
		zap.String("asset", asset.Hex()),
		zap.String("amount", amount.String()),
	)
	return amount, nil
}
