// Package bank provides an in-process ERC20 book that satisfies ledger.Bank.
package bank

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrNegativeAmount        = errors.New("negative amount")
)

// Memory keeps balances and allowances for any number of tokens. The holder
// address is the spender of TransferFrom and the sender of Transfer.
type Memory struct {
	holder common.Address

	mu         sync.Mutex
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]map[common.Address]*big.Int
}

func NewMemory(holder common.Address) *Memory {
	return &Memory{
		holder:     holder,
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*big.Int),
	}
}

// Holder returns the address the book acts for.
func (m *Memory) Holder() common.Address {
	return m.holder
}

// Mint creates amount of token for to.
func (m *Memory) Mint(token, to common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.add(token, to, amount)
}

// Approve sets the allowance owner grants spender.
func (m *Memory) Approve(token, owner, spender common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byOwner, ok := m.allowances[token]
	if !ok {
		byOwner = make(map[common.Address]map[common.Address]*big.Int)
		m.allowances[token] = byOwner
	}
	bySpender, ok := byOwner[owner]
	if !ok {
		bySpender = make(map[common.Address]*big.Int)
		byOwner[owner] = bySpender
	}
	bySpender[spender] = new(big.Int).Set(amount)
}

// Send moves token between two arbitrary accounts, as their owner would.
func (m *Memory) Send(token, from, to common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move(token, from, to, amount)
}

func (m *Memory) Allowance(token, owner, spender common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowance(token, owner, spender)
}

func (m *Memory) BalanceOf(_ context.Context, token, holder common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance(token, holder), nil
}

// TransferFrom spends the allowance from granted to the book holder.
func (m *Memory) TransferFrom(_ context.Context, token, from, to common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if amount.Sign() == 0 {
		return nil
	}
	allowance := m.allowance(token, from, m.holder)
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s allows %s, needs %s", ErrInsufficientAllowance, from.Hex(), allowance, amount)
	}
	if err := m.move(token, from, to, amount); err != nil {
		return err
	}
	m.allowances[token][from][m.holder] = allowance.Sub(allowance, amount)
	return nil
}

// Transfer sends token from the book holder.
func (m *Memory) Transfer(_ context.Context, token, to common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move(token, m.holder, to, amount)
}

func (m *Memory) move(token, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance := m.balance(token, from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientFunds, from.Hex(), balance, amount)
	}
	m.balances[token][from] = balance.Sub(balance, amount)
	m.add(token, to, amount)
	return nil
}

func (m *Memory) add(token, to common.Address, amount *big.Int) {
	byHolder, ok := m.balances[token]
	if !ok {
		byHolder = make(map[common.Address]*big.Int)
		m.balances[token] = byHolder
	}
	current, ok := byHolder[to]
	if !ok {
		byHolder[to] = new(big.Int).Set(amount)
		return
	}
	current.Add(current, amount)
}

func (m *Memory) balance(token, holder common.Address) *big.Int {
	if v, ok := m.balances[token][holder]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (m *Memory) allowance(token, owner, spender common.Address) *big.Int {
	if v, ok := m.allowances[token][owner][spender]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}
