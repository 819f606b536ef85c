package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Mint creates new shares for to. It is meant to grow the reservoir.
func (l *Ledger) Mint(caller, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireOwner(caller); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return fmt.Errorf("%w: mint to zero address", ErrInvalidRecipient)
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	l.totalSupply.Add(l.totalSupply, amount)
	l.credit(to, amount)

	l.logger.Info("shares minted",
		zap.String("to", to.Hex()),
		zap.String("amount", amount.String()),
		zap.String("total_supply", l.totalSupply.String()),
	)
	return nil
}

// Transfer moves shares between two addresses. Pending balances stay with the
// addresses they were credited to.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if to == (common.Address{}) {
		return fmt.Errorf("%w: transfer to zero address", ErrInvalidRecipient)
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := l.move(from, to, amount); err != nil {
		return err
	}

	l.logger.Debug("shares transferred",
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
		zap.String("amount", amount.String()),
	)
	return nil
}

// BalanceOf returns the share balance of holder.
func (l *Ledger) BalanceOf(holder common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return valueOf(l.balances, holder)
}

func (l *Ledger) TotalSupply() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.totalSupply)
}

// Investors returns every address that ever held shares, excluding the reservoir.
func (l *Ledger) Investors() []common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.investors.Items()
}

func (l *Ledger) InvestorAt(i int) (common.Address, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.investors.At(i)
}

func (l *Ledger) move(from, to common.Address, amount *big.Int) error {
	balance := valueOf(l.balances, from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from.Hex(), balance, amount)
	}
	l.balances[from] = balance.Sub(balance, amount)
	l.credit(to, amount)
	return nil
}

func (l *Ledger) credit(to common.Address, amount *big.Int) {
	addTo(l.balances, to, amount)
	if amount.Sign() > 0 && to != l.reservoir {
		if l.investors.Add(to) {
			l.logger.Info("investor joined", zap.String("investor", to.Hex()), zap.Int("investors", l.investors.Len()))
		}
	}
}
