package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// SetPrice stores the unit price of a payment asset. Re-setting a known asset
// only overwrites the price.
func (l *Ledger) SetPrice(caller, asset common.Address, price *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireOwner(caller); err != nil {
		return err
	}
	if price == nil || price.Sign() <= 0 {
		return fmt.Errorf("%w: %v for %s", ErrInvalidPrice, price, asset.Hex())
	}

	l.prices[asset] = new(big.Int).Set(price)
	if l.priceAssets.Add(asset) {
		l.logger.Info("payment asset registered", zap.String("asset", asset.Hex()))
	}
	l.logger.Debug("price set", zap.String("asset", asset.Hex()), zap.String("price", price.String()))
	return nil
}

// Price returns the unit price of asset, or zero when the asset is not accepted.
func (l *Ledger) Price(asset common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return valueOf(l.prices, asset)
}

// PriceAssets returns every payment asset that ever had a price, in order.
func (l *Ledger) PriceAssets() []common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.priceAssets.Items()
}

func (l *Ledger) PriceAssetAt(i int) (common.Address, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.priceAssets.At(i)
}

// Cost converts a share amount into the payment asset amount, truncating.
func Cost(price, amount *big.Int) *big.Int {
	cost := new(big.Int).Mul(price, amount)
	return cost.Quo(cost, scale)
}
