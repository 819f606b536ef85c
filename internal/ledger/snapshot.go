package ledger

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"cloudMining/internal/model"
)

// Snapshot captures the full ledger state. Rosters keep their order; balance
// and pending entries are sorted by address for stable output, and zero
// entries are omitted.
func (l *Ledger) Snapshot() model.LedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() model.LedgerSnapshot {
	snap := model.LedgerSnapshot{
		Owner:       l.owner.Hex(),
		Reservoir:   l.reservoir.Hex(),
		MinAmount:   l.minAmount.String(),
		FeePercent:  l.feePercent,
		TotalSupply: l.totalSupply.String(),
		Balances:    []model.BalanceEntry{},
		Investors:   make([]string, 0, l.investors.Len()),
		Prices:      make([]model.PriceEntry, 0, l.priceAssets.Len()),
		MinedAssets: make([]model.MinedAssetInfo, 0, l.minedAssets.Len()),
		Pending:     []model.PendingEntry{},
	}

	for _, holder := range sortedKeys(l.balances) {
		if l.balances[holder].Sign() == 0 {
			continue
		}
		snap.Balances = append(snap.Balances, model.BalanceEntry{Address: holder.Hex(), Amount: l.balances[holder].String()})
	}
	for _, investor := range l.investors.items {
		snap.Investors = append(snap.Investors, investor.Hex())
	}
	for _, asset := range l.priceAssets.items {
		snap.Prices = append(snap.Prices, model.PriceEntry{Asset: asset.Hex(), Price: l.prices[asset].String()})
	}
	for _, asset := range l.minedAssets.items {
		snap.MinedAssets = append(snap.MinedAssets, model.MinedAssetInfo{
			Asset:           asset.Hex(),
			EverDistributed: valueOf(l.everDistributed, asset).String(),
			EverWithdrawn:   valueOf(l.everWithdrawn, asset).String(),
		})
	}
	for _, holder := range sortedPendingHolders(l.pending) {
		byAsset := l.pending[holder]
		for _, asset := range sortedKeys(byAsset) {
			if byAsset[asset].Sign() == 0 {
				continue
			}
			snap.Pending = append(snap.Pending, model.PendingEntry{
				Holder: holder.Hex(),
				Asset:  asset.Hex(),
				Amount: byAsset[asset].String(),
			})
		}
	}
	return snap
}

// Restore rebuilds a ledger from a snapshot after checking its invariants.
func Restore(snap model.LedgerSnapshot, bank Bank, logger *zap.Logger) (*Ledger, error) {
	owner, err := parseAddress(snap.Owner, "owner")
	if err != nil {
		return nil, err
	}
	reservoir, err := parseAddress(snap.Reservoir, "reservoir")
	if err != nil {
		return nil, err
	}
	minAmount, err := parseAmount(snap.MinAmount, "min amount")
	if err != nil {
		return nil, err
	}

	l, err := New(Config{Owner: owner, Reservoir: reservoir, MinAmount: minAmount, FeePercent: snap.FeePercent}, bank, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}

	totalSupply, err := parseAmount(snap.TotalSupply, "total supply")
	if err != nil {
		return nil, err
	}
	l.totalSupply = totalSupply

	sum := new(big.Int)
	for _, entry := range snap.Balances {
		holder, err := parseAddress(entry.Address, "balance holder")
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount(entry.Amount, "balance")
		if err != nil {
			return nil, err
		}
		if _, dup := l.balances[holder]; dup {
			return nil, fmt.Errorf("%w: duplicate balance for %s", ErrInvalidSnapshot, holder.Hex())
		}
		l.balances[holder] = amount
		sum.Add(sum, amount)
	}
	if sum.Cmp(totalSupply) != 0 {
		return nil, fmt.Errorf("%w: balances sum to %s, total supply is %s", ErrInvalidSnapshot, sum, totalSupply)
	}

	for _, raw := range snap.Investors {
		investor, err := parseAddress(raw, "investor")
		if err != nil {
			return nil, err
		}
		if investor == reservoir || !l.investors.Add(investor) {
			return nil, fmt.Errorf("%w: bad investor entry %s", ErrInvalidSnapshot, raw)
		}
	}
	for holder, amount := range l.balances {
		if holder != reservoir && amount.Sign() > 0 && !l.investors.Contains(holder) {
			return nil, fmt.Errorf("%w: holder %s missing from investors", ErrInvalidSnapshot, holder.Hex())
		}
	}

	for _, entry := range snap.Prices {
		asset, err := parseAddress(entry.Asset, "price asset")
		if err != nil {
			return nil, err
		}
		price, err := parseAmount(entry.Price, "price")
		if err != nil {
			return nil, err
		}
		if price.Sign() == 0 || !l.priceAssets.Add(asset) {
			return nil, fmt.Errorf("%w: bad price entry %s", ErrInvalidSnapshot, entry.Asset)
		}
		l.prices[asset] = price
	}

	for _, entry := range snap.MinedAssets {
		asset, err := parseAddress(entry.Asset, "mined asset")
		if err != nil {
			return nil, err
		}
		if !l.minedAssets.Add(asset) {
			return nil, fmt.Errorf("%w: duplicate mined asset %s", ErrInvalidSnapshot, entry.Asset)
		}
		distributed, err := parseAmount(entry.EverDistributed, "ever distributed")
		if err != nil {
			return nil, err
		}
		withdrawn, err := parseAmount(entry.EverWithdrawn, "ever withdrawn")
		if err != nil {
			return nil, err
		}
		l.everDistributed[asset] = distributed
		l.everWithdrawn[asset] = withdrawn
	}

	for _, entry := range snap.Pending {
		holder, err := parseAddress(entry.Holder, "pending holder")
		if err != nil {
			return nil, err
		}
		asset, err := parseAddress(entry.Asset, "pending asset")
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount(entry.Amount, "pending amount")
		if err != nil {
			return nil, err
		}
		if !l.minedAssets.Contains(asset) {
			return nil, fmt.Errorf("%w: pending balance in unknown asset %s", ErrInvalidSnapshot, entry.Asset)
		}
		if _, dup := l.pending[holder][asset]; dup {
			return nil, fmt.Errorf("%w: duplicate pending %s for %s", ErrInvalidSnapshot, entry.Asset, holder.Hex())
		}
		l.addPending(holder, asset, amount)
	}

	return l, nil
}

func parseAddress(raw, field string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: invalid %s address %q", ErrInvalidSnapshot, field, raw)
	}
	return common.HexToAddress(raw), nil
}

func parseAmount(raw, field string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: invalid %s %q", ErrInvalidSnapshot, field, raw)
	}
	return amount, nil
}

func sortedKeys(m map[common.Address]*big.Int) []common.Address {
	keys := make([]common.Address, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Cmp(keys[j]) < 0 })
	return keys
}

func sortedPendingHolders(m map[common.Address]map[common.Address]*big.Int) []common.Address {
	keys := make([]common.Address, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Cmp(keys[j]) < 0 })
	return keys
}
