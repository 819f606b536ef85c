package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MaxFeePercent is the highest operator fee accepted by the ledger.
const MaxFeePercent = 50

// Params holds the operator-tunable entry and fee settings.
type Params struct {
	MinAmount  *big.Int
	FeePercent uint8
}

// Summary is the read-only projection returned by the ledger summary call.
type Summary struct {
	MinAmount     *big.Int
	FeePercent    uint8
	Owner         common.Address
	InvestorCount int
}
