package erc20

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// Backend is the chain access needed to read balances and submit transfers.
// *chain.Client satisfies it.
type Backend interface {
	Caller
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Bank moves ERC20 tokens from a holding address whose key it owns. Every
// transfer waits for its receipt, so a returned nil error means the tokens moved.
type Bank struct {
	backend Backend
	key     *ecdsa.PrivateKey
	holder  common.Address
	logger  *zap.Logger

	mu sync.Mutex
}

// NewBank builds a bank from a hex-encoded secp256k1 private key.
func NewBank(backend Backend, hexKey string, logger *zap.Logger) (*Bank, error) {
	if backend == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse holding key: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bank{
		backend: backend,
		key:     key,
		holder:  crypto.PubkeyToAddress(key.PublicKey),
		logger:  logger,
	}, nil
}

// Holder returns the holding address derived from the key.
func (b *Bank) Holder() common.Address {
	return b.holder
}

func (b *Bank) BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	parsed, err := TokenABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := call(ctx, b.backend, token, parsed, "balanceOf", holder)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

func (b *Bank) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	parsed, err := TokenABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := call(ctx, b.backend, token, parsed, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// TransferFrom spends the allowance from granted to the holding address.
func (b *Bank) TransferFrom(ctx context.Context, token, from, to common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	parsed, err := TokenABI()
	if err != nil {
		return fmt.Errorf("parse erc20 abi: %w", err)
	}
	data, err := parsed.Pack("transferFrom", from, to, amount)
	if err != nil {
		return fmt.Errorf("pack transferFrom: %w", err)
	}
	return b.send(ctx, token, data)
}

// Transfer sends tokens from the holding address.
func (b *Bank) Transfer(ctx context.Context, token, to common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	parsed, err := TokenABI()
	if err != nil {
		return fmt.Errorf("parse erc20 abi: %w", err)
	}
	data, err := parsed.Pack("transfer", to, amount)
	if err != nil {
		return fmt.Errorf("pack transfer: %w", err)
	}
	return b.send(ctx, token, data)
}

// send signs and submits a legacy transaction, then waits for a successful
// receipt. Sends are serialized so pending nonces never collide.
func (b *Bank) send(ctx context.Context, token common.Address, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	chainID, err := b.backend.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}
	nonce, err := b.backend.PendingNonceAt(ctx, b.holder)
	if err != nil {
		return fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := b.backend.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("gas price: %w", err)
	}
	gas, err := b.backend.EstimateGas(ctx, ethereum.CallMsg{From: b.holder, To: &token, Data: data})
	if err != nil {
		return fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &token,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), b.key)
	if err != nil {
		return fmt.Errorf("sign tx: %w", err)
	}
	if err := b.backend.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("send tx: %w", err)
	}

	receipt, err := b.backend.WaitMined(ctx, signed)
	if err != nil {
		return err
	}
	b.logger.Debug("token transfer mined",
		zap.String("token", token.Hex()),
		zap.String("tx", signed.Hash().Hex()),
		zap.Uint64("gas_used", receipt.GasUsed),
	)
	return nil
}
