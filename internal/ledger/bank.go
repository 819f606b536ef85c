package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Bank moves fungible assets on behalf of the ledger. Transfers out always
// originate from the ledger's holding (reservoir) address, and TransferFrom
// spends an allowance granted to that address.
type Bank interface {
	BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error)
	TransferFrom(ctx context.Context, token, from, to common.Address, amount *big.Int) error
	Transfer(ctx context.Context, token, to common.Address, amount *big.Int) error
}
