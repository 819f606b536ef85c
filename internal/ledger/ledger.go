// Package ledger implements the share ledger and profit distribution engine of
// a cloud mining pool: a multi-asset price table, ERC20-like share balances,
// pro-rata distribution of mined assets with an operator fee, and a pending
// balance book drained by withdrawals.
//
// A Ledger is a serial state machine. Every call holds the ledger mutex for its
// full duration, including the synchronous Bank call it may perform. State
// changes that need an outgoing transfer are applied first and reverted when
// the transfer fails.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"cloudMining/internal/model"
)

// Decimals is the fixed-point precision of shares and prices.
const Decimals = 18

var scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// Config holds the construction parameters of a ledger.
type Config struct {
	Owner      common.Address
	Reservoir  common.Address
	MinAmount  *big.Int
	FeePercent uint8
}

// Ledger holds the complete pool state.
type Ledger struct {
	mu     sync.Mutex
	bank   Bank
	logger *zap.Logger

	owner      common.Address
	reservoir  common.Address
	minAmount  *big.Int
	feePercent uint8

	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	investors   *roster

	prices      map[common.Address]*big.Int
	priceAssets *roster

	everDistributed map[common.Address]*big.Int
	everWithdrawn   map[common.Address]*big.Int
	minedAssets     *roster

	pending map[common.Address]map[common.Address]*big.Int

	beforeTransfer TransferHook
}

// TransferHook receives the ledger state as it will be once an outgoing
// transfer succeeds, before the transfer is sent. An error cancels the
// transfer and the operation.
type TransferHook func(ctx context.Context, snap model.LedgerSnapshot, intent model.TransferIntent) error

// SetTransferHook installs h, replacing any previous hook. Nil removes it.
func (l *Ledger) SetTransferHook(h TransferHook) {
	l.mu.Lock()
	l.beforeTransfer = h
	l.mu.Unlock()
}

func (l *Ledger) announce(ctx context.Context, intent model.TransferIntent) error {
	if l.beforeTransfer == nil {
		return nil
	}
	if err := l.beforeTransfer(ctx, l.snapshotLocked(), intent); err != nil {
		return fmt.Errorf("record %s: %w", intent.Kind, err)
	}
	return nil
}

// New builds an empty ledger. The reservoir is the holding address that keeps
// unsold shares and receives mined assets.
func New(cfg Config, bank Bank, logger *zap.Logger) (*Ledger, error) {
	if bank == nil {
		return nil, fmt.Errorf("bank is nil")
	}
	if cfg.Owner == (common.Address{}) {
		return nil, fmt.Errorf("owner address is required")
	}
	if cfg.Reservoir == (common.Address{}) {
		return nil, fmt.Errorf("reservoir address is required")
	}
	if cfg.Owner == cfg.Reservoir {
		return nil, fmt.Errorf("owner and reservoir must differ")
	}
	if err := validateParams(cfg.MinAmount, cfg.FeePercent); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Ledger{
		bank:            bank,
		logger:          logger,
		owner:           cfg.Owner,
		reservoir:       cfg.Reservoir,
		minAmount:       new(big.Int).Set(cfg.MinAmount),
		feePercent:      cfg.FeePercent,
		totalSupply:     new(big.Int),
		balances:        make(map[common.Address]*big.Int),
		investors:       newRoster(),
		prices:          make(map[common.Address]*big.Int),
		priceAssets:     newRoster(),
		everDistributed: make(map[common.Address]*big.Int),
		everWithdrawn:   make(map[common.Address]*big.Int),
		minedAssets:     newRoster(),
		pending:         make(map[common.Address]map[common.Address]*big.Int),
	}, nil
}

func validateParams(minAmount *big.Int, feePercent uint8) error {
	if minAmount == nil || minAmount.Sign() <= 0 {
		return ErrInvalidMinAmount
	}
	if feePercent > model.MaxFeePercent {
		return fmt.Errorf("%w: %d%% exceeds %d%%", ErrFeeTooHigh, feePercent, model.MaxFeePercent)
	}
	return nil
}

func (l *Ledger) requireOwner(caller common.Address) error {
	if caller != l.owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, caller.Hex())
	}
	return nil
}

// SetParams updates the minimum investment and the fee percentage.
func (l *Ledger) SetParams(caller common.Address, minAmount *big.Int, feePercent uint8) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireOwner(caller); err != nil {
		return err
	}
	if err := validateParams(minAmount, feePercent); err != nil {
		return err
	}
	l.minAmount = new(big.Int).Set(minAmount)
	l.feePercent = feePercent

	l.logger.Debug("params updated", zap.String("min_amount", minAmount.String()), zap.Uint8("fee_percent", feePercent))
	return nil
}

// Params returns the current entry and fee settings.
func (l *Ledger) Params() model.Params {
	l.mu.Lock()
	defer l.mu.Unlock()
	return model.Params{MinAmount: new(big.Int).Set(l.minAmount), FeePercent: l.feePercent}
}

// Summary returns (minAmount, feePercent, owner, investorCount).
func (l *Ledger) Summary() model.Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return model.Summary{
		MinAmount:     new(big.Int).Set(l.minAmount),
		FeePercent:    l.feePercent,
		Owner:         l.owner,
		InvestorCount: l.investors.Len(),
	}
}

func (l *Ledger) Owner() common.Address {
	return l.owner
}

func (l *Ledger) Reservoir() common.Address {
	return l.reservoir
}

func valueOf(m map[common.Address]*big.Int, key common.Address) *big.Int {
	if v, ok := m[key]; ok && v != nil {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func addTo(m map[common.Address]*big.Int, key common.Address, delta *big.Int) {
	current, ok := m[key]
	if !ok || current == nil {
		m[key] = new(big.Int).Set(delta)
		return
	}
	current.Add(current, delta)
}
