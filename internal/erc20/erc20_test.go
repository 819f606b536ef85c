package erc20

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeBackend struct {
	chainID      *big.Int
	balance      *big.Int
	legacySymbol bool
	callErr      error
	calls        int
	sendErr      error
	sent         []*types.Transaction
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	if f.callErr != nil {
		return nil, f.callErr
	}
	parsed, err := TokenABI()
	if err != nil {
		return nil, err
	}
	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "decimals":
		return method.Outputs.Pack(uint8(6))
	case "symbol":
		if f.legacySymbol {
			var raw [32]byte
			copy(raw[:], "MKR")
			legacy, _ := tokenABIBytes32Instance()
			return legacy.Methods["symbol"].Outputs.Pack(raw)
		}
		return method.Outputs.Pack("USDT")
	case "name":
		return method.Outputs.Pack("Tether USD")
	case "balanceOf", "allowance":
		return method.Outputs.Pack(f.balance)
	}
	return nil, fmt.Errorf("unexpected call %s", method.Name)
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return f.chainID, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 60_000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) WaitMined(context.Context, *types.Transaction) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, GasUsed: 51_000}, nil
}

func newTestBank(t *testing.T, backend *fakeBackend) *Bank {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	b, err := NewBank(backend, hexutil.Encode(crypto.FromECDSA(key)), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), b.Holder())
	return b
}

func TestFetchTokenMeta(t *testing.T) {
	token := common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	backend := &fakeBackend{}

	meta, err := FetchTokenMeta(context.Background(), backend, token, nil)
	require.NoError(t, err)
	require.Equal(t, uint8(6), meta.Decimals)
	require.Equal(t, "USDT", meta.Symbol)
	require.Equal(t, "Tether USD", meta.Name)
	require.Equal(t, token.Hex(), meta.Address)

	backend.legacySymbol = true
	meta, err = FetchTokenMeta(context.Background(), backend, token, nil)
	require.NoError(t, err)
	require.Equal(t, "MKR", meta.Symbol)
	require.Equal(t, "MKR", meta.Label())
}

func TestTokenMetaCacheLookup(t *testing.T) {
	token := common.HexToAddress("0x01")
	cache := NewTokenMetaCache()
	backend := &fakeBackend{}

	meta, err := cache.Lookup(context.Background(), backend, token, nil)
	require.NoError(t, err)
	require.Equal(t, "USDT", meta.Symbol)

	backend.legacySymbol = true
	meta, err = cache.Lookup(context.Background(), backend, token, nil)
	require.NoError(t, err)
	require.Equal(t, "USDT", meta.Symbol)
}

func TestTokenMetaCacheSkipsFailedLookup(t *testing.T) {
	token := common.HexToAddress("0x01")
	cache := NewTokenMetaCache()
	backend := &fakeBackend{callErr: errors.New("rpc unavailable")}

	meta, err := cache.Lookup(context.Background(), backend, token, nil)
	require.Error(t, err)
	require.ErrorIs(t, err, backend.callErr)
	require.Equal(t, token.Hex(), meta.Label())
	_, cached := cache.Get(token)
	require.False(t, cached)

	backend.callErr = nil
	meta, err = cache.Lookup(context.Background(), backend, token, nil)
	require.NoError(t, err)
	require.Equal(t, uint8(6), meta.Decimals)
	_, cached = cache.Get(token)
	require.True(t, cached)

	calls := backend.calls
	_, err = cache.Lookup(context.Background(), backend, token, nil)
	require.NoError(t, err)
	require.Equal(t, calls, backend.calls)
}

func TestBankBalanceOf(t *testing.T) {
	backend := &fakeBackend{chainID: big.NewInt(1), balance: big.NewInt(42)}
	b := newTestBank(t, backend)

	balance, err := b.BalanceOf(context.Background(), common.HexToAddress("0x01"), b.Holder())
	require.NoError(t, err)
	require.Equal(t, "42", balance.String())
}

func TestBankTransferSignsFromHolder(t *testing.T) {
	backend := &fakeBackend{chainID: big.NewInt(31337)}
	b := newTestBank(t, backend)
	token := common.HexToAddress("0xaa")
	from := common.HexToAddress("0x02")
	to := common.HexToAddress("0x03")

	require.NoError(t, b.Transfer(context.Background(), token, to, big.NewInt(7)))
	require.NoError(t, b.TransferFrom(context.Background(), token, from, to, big.NewInt(9)))
	require.NoError(t, b.Transfer(context.Background(), token, to, big.NewInt(0)))
	require.Len(t, backend.sent, 2)

	parsed, err := TokenABI()
	require.NoError(t, err)
	signer := types.LatestSignerForChainID(backend.chainID)

	for i, tx := range backend.sent {
		sender, err := types.Sender(signer, tx)
		require.NoError(t, err)
		require.Equal(t, b.Holder(), sender)
		require.Equal(t, token, *tx.To())
		require.Equal(t, uint64(i), tx.Nonce())
	}

	method, err := parsed.MethodById(backend.sent[1].Data()[:4])
	require.NoError(t, err)
	require.Equal(t, "transferFrom", method.Name)
	args, err := method.Inputs.Unpack(backend.sent[1].Data()[4:])
	require.NoError(t, err)
	require.Equal(t, from, args[0])
	require.Equal(t, to, args[1])
	require.Equal(t, "9", args[2].(*big.Int).String())
}

func TestBankSendFailure(t *testing.T) {
	errRejected := errors.New("rejected")
	backend := &fakeBackend{chainID: big.NewInt(1), sendErr: errRejected}
	b := newTestBank(t, backend)

	err := b.Transfer(context.Background(), common.HexToAddress("0xaa"), common.HexToAddress("0x03"), big.NewInt(1))
	require.ErrorIs(t, err, errRejected)
}

func TestNewBankRejectsBadKey(t *testing.T) {
	_, err := NewBank(&fakeBackend{}, "0xnothex", nil)
	require.Error(t, err)
	_, err = NewBank(nil, "", nil)
	require.Error(t, err)
}
