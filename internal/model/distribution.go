package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Credit is an amount added to a holder's pending balance.
type Credit struct {
	Holder common.Address
	Amount *big.Int
}

// Distribution describes the outcome of one distribution pass for a mined asset.
// NewAmount == sum(Credits) + OwnerCredit always holds.
type Distribution struct {
	Asset       common.Address
	Held        *big.Int
	NewAmount   *big.Int
	Fee         *big.Int
	Residual    *big.Int
	Credits     []Credit
	OwnerCredit *big.Int
}

// Empty reports whether the pass found nothing new to distribute.
func (d Distribution) Empty() bool {
	return d.NewAmount == nil || d.NewAmount.Sign() == 0
}

// Payout is a pending balance paid out from the holding address.
type Payout struct {
	Holder common.Address
	Asset  common.Address
	Amount *big.Int
}
