package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Account is the ledger view of one address.
type Account struct {
	Holder  common.Address
	Shares  *big.Int
	Pending []AssetAmount
}

// AssetAmount is an amount of one asset.
type AssetAmount struct {
	Asset  common.Address
	Amount *big.Int
}
