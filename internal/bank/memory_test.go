package bank

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestMemoryTransferFrom(t *testing.T) {
	holder := common.HexToAddress("0x01")
	buyer := common.HexToAddress("0x02")
	owner := common.HexToAddress("0x03")
	token := common.HexToAddress("0xaa")

	m := NewMemory(holder)
	m.Mint(token, buyer, big.NewInt(100))

	err := m.TransferFrom(context.Background(), token, buyer, owner, big.NewInt(10))
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected allowance error, got %v", err)
	}

	m.Approve(token, buyer, holder, big.NewInt(150))
	err = m.TransferFrom(context.Background(), token, buyer, owner, big.NewInt(120))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected funds error, got %v", err)
	}

	if err := m.TransferFrom(context.Background(), token, buyer, owner, big.NewInt(60)); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	if got := m.Allowance(token, buyer, holder); got.Int64() != 90 {
		t.Fatalf("allowance = %s, want 90", got)
	}
	got, _ := m.BalanceOf(context.Background(), token, owner)
	if got.Int64() != 60 {
		t.Fatalf("owner balance = %s, want 60", got)
	}
}

func TestMemoryTransferSendsFromHolder(t *testing.T) {
	holder := common.HexToAddress("0x01")
	to := common.HexToAddress("0x02")
	token := common.HexToAddress("0xaa")

	m := NewMemory(holder)
	if err := m.Transfer(context.Background(), token, to, big.NewInt(1)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected funds error, got %v", err)
	}
	if err := m.Transfer(context.Background(), token, to, big.NewInt(0)); err != nil {
		t.Fatalf("zero transfer: %v", err)
	}
	if err := m.Send(token, holder, to, big.NewInt(-1)); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected negative amount error, got %v", err)
	}

	m.Mint(token, holder, big.NewInt(5))
	if err := m.Transfer(context.Background(), token, to, big.NewInt(5)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	left, _ := m.BalanceOf(context.Background(), token, holder)
	if left.Sign() != 0 {
		t.Fatalf("holder balance = %s, want 0", left)
	}
}
