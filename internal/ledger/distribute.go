package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"cloudMining/internal/model"
)

// Distribute credits the part of the reservoir's asset balance that was never
// counted before. The residual after the fee is split pro-rata over the
// investor roster; the owner receives everything else, which covers the fee,
// the dividend of unsold reservoir shares and rounding remainders.
//
// Paid-out amounts are added back to the observed balance, so funds deposited
// after a withdrawal are still recognized as new.
func (l *Ledger) Distribute(ctx context.Context, asset common.Address) (model.Distribution, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	held, err := l.bank.BalanceOf(ctx, asset, l.reservoir)
	if err != nil {
		return model.Distribution{}, fmt.Errorf("balance of %s: %w", asset.Hex(), err)
	}

	newAmount := new(big.Int).Add(held, valueOf(l.everWithdrawn, asset))
	newAmount.Sub(newAmount, valueOf(l.everDistributed, asset))

	result := model.Distribution{
		Asset:       asset,
		Held:        new(big.Int).Set(held),
		NewAmount:   new(big.Int),
		Fee:         new(big.Int),
		Residual:    new(big.Int),
		OwnerCredit: new(big.Int),
	}

	if newAmount.Sign() <= 0 {
		l.registerMinedAsset(asset)
		l.logger.Debug("nothing to distribute", zap.String("asset", asset.Hex()), zap.String("held", held.String()))
		return result, nil
	}
	if l.totalSupply.Sign() == 0 {
		return model.Distribution{}, fmt.Errorf("distribute %s: %w", asset.Hex(), ErrNoSharesIssued)
	}

	l.registerMinedAsset(asset)
	addTo(l.everDistributed, asset, newAmount)

	residual := new(big.Int).Mul(newAmount, big.NewInt(int64(100-l.feePercent)))
	residual.Quo(residual, big.NewInt(100))

	distributed := new(big.Int)
	for _, investor := range l.investors.items {
		balance := l.balances[investor]
		if balance == nil || balance.Sign() == 0 {
			continue
		}
		share := new(big.Int).Mul(residual, balance)
		share.Quo(share, l.totalSupply)
		if share.Sign() == 0 {
			continue
		}
		l.addPending(investor, asset, share)
		distributed.Add(distributed, share)
		result.Credits = append(result.Credits, model.Credit{Holder: investor, Amount: share})
	}

	ownerCredit := new(big.Int).Sub(newAmount, distributed)
	l.addPending(l.owner, asset, ownerCredit)

	result.NewAmount = newAmount
	result.Residual = residual
	result.Fee = new(big.Int).Sub(newAmount, residual)
	result.OwnerCredit = ownerCredit

	l.logger.Info("distribution complete",
		zap.String("asset", asset.Hex()),
		zap.String("new_amount", newAmount.String()),
		zap.String("fee", result.Fee.String()),
		zap.Int("credited_investors", len(result.Credits)),
		zap.String("owner_credit", ownerCredit.String()),
	)
	return result, nil
}

// MinedAssets returns every asset that went through a distribution pass, in order.
func (l *Ledger) MinedAssets() []common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.minedAssets.Items()
}

func (l *Ledger) MinedAssetAt(i int) (common.Address, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.minedAssets.At(i)
}

// EverDistributed returns the cumulative amount of asset counted into distributions.
func (l *Ledger) EverDistributed(asset common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return valueOf(l.everDistributed, asset)
}

// EverWithdrawn returns the cumulative amount of asset paid out of the reservoir.
func (l *Ledger) EverWithdrawn(asset common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return valueOf(l.everWithdrawn, asset)
}

// Pending returns the amount of asset owed to holder.
func (l *Ledger) Pending(holder, asset common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pendingOf(holder, asset)
}

func (l *Ledger) registerMinedAsset(asset common.Address) {
	if l.minedAssets.Add(asset) {
		l.logger.Info("mined asset registered", zap.String("asset", asset.Hex()))
	}
}

func (l *Ledger) pendingOf(holder, asset common.Address) *big.Int {
	byAsset, ok := l.pending[holder]
	if !ok {
		return new(big.Int)
	}
	return valueOf(byAsset, asset)
}

func (l *Ledger) addPending(holder, asset common.Address, amount *big.Int) {
	byAsset, ok := l.pending[holder]
	if !ok {
		byAsset = make(map[common.Address]*big.Int)
		l.pending[holder] = byAsset
	}
	addTo(byAsset, asset, amount)
}
