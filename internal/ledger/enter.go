package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"cloudMining/internal/model"
)

// Enter sells amount shares from the reservoir to buyer, paid in asset. The
// payment goes straight from the buyer to the owner. Shares move first and
// move back when the payment fails, so a failed payment leaves the ledger
// untouched. It returns the payment amount.
func (l *Ledger) Enter(ctx context.Context, buyer, asset common.Address, amount *big.Int) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	price := valueOf(l.prices, asset)
	if price.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPriceForAsset, asset.Hex())
	}
	if amount == nil || amount.Cmp(l.minAmount) < 0 {
		return nil, fmt.Errorf("%w: %v < %s", ErrBelowMinimumInvestment, amount, l.minAmount)
	}
	if buyer == (common.Address{}) || buyer == l.reservoir {
		return nil, fmt.Errorf("%w: buyer %s", ErrInvalidRecipient, buyer.Hex())
	}
	available := valueOf(l.balances, l.reservoir)
	if available.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: %s left, %s requested", ErrInsufficientSupply, available, amount)
	}

	cost := Cost(price, amount)
	joined := l.investors.Len()
	if err := l.move(l.reservoir, buyer, amount); err != nil {
		// unreachable: supply was checked under the same lock
		return nil, err
	}
	undo := func() {
		_ = l.move(buyer, l.reservoir, amount)
		if l.investors.Len() > joined {
			l.investors.dropLast(buyer)
		}
	}

	intent := model.TransferIntent{
		Kind:   model.TransferPayment,
		Token:  asset.Hex(),
		From:   buyer.Hex(),
		To:     l.owner.Hex(),
		Amount: cost.String(),
	}
	if err := l.announce(ctx, intent); err != nil {
		undo()
		return nil, err
	}
	if err := l.bank.TransferFrom(ctx, asset, buyer, l.owner, cost); err != nil {
		undo()
		return nil, fmt.Errorf("%w: %w", ErrPaymentTransferFailed, err)
	}

	l.logger.Info("shares purchased",
		zap.String("buyer", buyer.Hex()),
		zap.String("asset", asset.Hex()),
		zap.String("amount", amount.String()),
		zap.String("cost", cost.String()),
	)
	return cost, nil
}
