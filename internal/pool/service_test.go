package pool

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"cloudMining/internal/bank"
	"cloudMining/internal/ledger"
	"cloudMining/internal/model"
	"cloudMining/internal/observability"
	"cloudMining/internal/storage"
)

var (
	owner     = common.HexToAddress("0x1000000000000000000000000000000000000001")
	reservoir = common.HexToAddress("0x1000000000000000000000000000000000000002")
	investor  = common.HexToAddress("0x2000000000000000000000000000000000000001")
	usdt      = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	eth       = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
)

var one = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), one)
}

type harness struct {
	bank    *bank.Memory
	store   storage.StateStore
	journal string
	metrics *observability.Metrics
	opts    Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		bank:    bank.NewMemory(reservoir),
		store:   storage.NewFileStateStore(filepath.Join(dir, "ledger.json")),
		journal: filepath.Join(dir, "journal.jsonl"),
		metrics: observability.NewMetrics("test"),
	}
	h.opts = Options{
		Name:    "main",
		Store:   h.store,
		Journal: storage.NewJsonlJournal(h.journal),
		Metrics: h.metrics,
		Logger:  zaptest.NewLogger(t),
		Now:     func() time.Time { return time.Unix(1700000000, 0) },
	}
	return h
}

func (h *harness) deploy(t *testing.T, supply *big.Int) *Service {
	t.Helper()
	s, err := Deploy(context.Background(), ledger.Config{
		Owner:      owner,
		Reservoir:  reservoir,
		MinAmount:  one,
		FeePercent: 20,
	}, supply, h.bank, h.opts)
	require.NoError(t, err)
	return s
}

func TestDeployAndOpen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := Open(ctx, h.bank, h.opts)
	require.ErrorIs(t, err, ErrNotDeployed)

	s := h.deploy(t, tokens(50))
	require.Equal(t, tokens(50).String(), s.Ledger().BalanceOf(reservoir).String())

	_, err = Deploy(ctx, ledger.Config{Owner: owner, Reservoir: reservoir, MinAmount: one}, nil, h.bank, h.opts)
	require.ErrorIs(t, err, ErrAlreadyDeployed)

	reopened, err := Open(ctx, h.bank, h.opts)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(s.Ledger().Snapshot(), reopened.Ledger().Snapshot()))
	require.Equal(t, 50.0, testutil.ToFloat64(h.metrics.Unsold))
}

func TestServicePersistsOperations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.deploy(t, tokens(50))

	require.NoError(t, s.SetPrice(ctx, owner, usdt, tokens(15)))
	require.NoError(t, s.SetParams(ctx, owner, one, 20))

	h.bank.Mint(usdt, investor, tokens(100))
	h.bank.Approve(usdt, investor, reservoir, tokens(30))
	cost, err := s.Enter(ctx, investor, usdt, tokens(2))
	require.NoError(t, err)
	require.Equal(t, tokens(30).String(), cost.String())

	h.bank.Mint(eth, reservoir, tokens(1))
	result, err := s.Distribute(ctx, eth)
	require.NoError(t, err)
	require.Len(t, result.Credits, 1)

	account := s.Account(investor)
	require.Equal(t, tokens(2).String(), account.Shares.String())
	require.Len(t, account.Pending, 1)
	require.Equal(t, "32000000000000000", account.Pending[0].Amount.String())

	payouts, err := s.WithdrawAll(ctx, owner)
	require.NoError(t, err)
	require.Len(t, payouts, 2)

	reopened, err := Open(ctx, h.bank, h.opts)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(s.Ledger().Snapshot(), reopened.Ledger().Snapshot()))
	require.Equal(t, tokens(1).String(), reopened.Ledger().EverWithdrawn(eth).String())

	entries, err := storage.ReadJournal(h.journal)
	require.NoError(t, err)
	ops := make([]string, 0, len(entries))
	for _, e := range entries {
		require.Equal(t, "main", e.Ledger)
		ops = append(ops, e.Op)
	}
	require.Equal(t, []string{
		model.OpDeploy, model.OpSetPrice, model.OpSetParams, model.OpEnter,
		model.OpDistribute, model.OpWithdrawAll, model.OpWithdrawAll,
	}, ops)
	require.Equal(t, cost.String(), entries[3].Details["cost"])

	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Operations.WithLabelValues(model.OpEnter)))
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.DistributedAmount.WithLabelValues(eth.Hex())))
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Investors))
}

func TestServiceRejectedOperationsAreNotJournaled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.deploy(t, tokens(50))

	require.ErrorIs(t, s.SetParams(ctx, investor, one, 10), ledger.ErrNotOwner)
	_, err := s.Enter(ctx, investor, usdt, tokens(1))
	require.ErrorIs(t, err, ledger.ErrNoPriceForAsset)

	entries, err := storage.ReadJournal(h.journal)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.OperationErrors.WithLabelValues(model.OpEnter)))
}

func TestEmptyDistributionJournaledOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.deploy(t, tokens(50))

	_, err := s.Distribute(ctx, eth)
	require.NoError(t, err)
	_, err = s.Distribute(ctx, eth)
	require.NoError(t, err)

	entries, err := storage.ReadJournal(h.journal)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, []common.Address{eth}, s.Ledger().MinedAssets())
}

// flakyStore lets skip saves through, then fails the next failures saves.
type flakyStore struct {
	storage.StateStore
	skip     int
	failures int
}

func (f *flakyStore) Save(ctx context.Context, snap model.LedgerSnapshot) error {
	if f.skip > 0 {
		f.skip--
		return f.StateStore.Save(ctx, snap)
	}
	if f.failures > 0 {
		f.failures--
		return errors.New("disk full")
	}
	return f.StateStore.Save(ctx, snap)
}

func TestFailedSaveIsRetriedByNextPass(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.deploy(t, tokens(50))

	flaky := &flakyStore{StateStore: h.store, failures: 1}
	s.store = flaky

	h.bank.Mint(eth, reservoir, tokens(1))
	_, err := s.Distribute(ctx, eth)
	require.Error(t, err)

	result, err := s.Distribute(ctx, eth)
	require.NoError(t, err)
	require.True(t, result.Empty())

	snap, ok, err := h.store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, snap.MinedAssets, 1)
	require.Equal(t, tokens(1).String(), snap.MinedAssets[0].EverDistributed)
}

// ownerOwed deploys a ledger without investors and distributes amount of eth,
// which leaves all of it pending for the owner.
func ownerOwed(t *testing.T, h *harness, amount *big.Int) *Service {
	t.Helper()
	s := h.deploy(t, tokens(50))
	h.bank.Mint(eth, reservoir, amount)
	_, err := s.Distribute(context.Background(), eth)
	require.NoError(t, err)
	require.Equal(t, amount.String(), s.Ledger().Pending(owner, eth).String())
	return s
}

func TestWithdrawSurvivesFailedSave(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := ownerOwed(t, h, tokens(1))

	s.store = &flakyStore{StateStore: h.store, skip: 1, failures: 1}
	paid, err := s.Withdraw(ctx, owner, eth)
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, tokens(1).String(), paid.String())

	reopened, err := Open(ctx, h.bank, h.opts)
	require.NoError(t, err)
	require.Equal(t, "0", reopened.Ledger().Pending(owner, eth).String())
	require.Equal(t, tokens(1).String(), reopened.Ledger().EverWithdrawn(eth).String())
	require.Equal(t, []model.TransferIntent{{
		Kind:   model.TransferPayout,
		Token:  eth.Hex(),
		From:   reservoir.Hex(),
		To:     owner.Hex(),
		Amount: tokens(1).String(),
	}}, reopened.InFlight())

	paid, err = reopened.Withdraw(ctx, owner, eth)
	require.NoError(t, err)
	require.Equal(t, "0", paid.String())

	h.bank.Mint(eth, reservoir, tokens(1))
	_, err = reopened.Distribute(ctx, eth)
	require.NoError(t, err)
	paid, err = reopened.Withdraw(ctx, owner, eth)
	require.NoError(t, err)
	require.Equal(t, tokens(1).String(), paid.String())

	received, err := h.bank.BalanceOf(ctx, eth, owner)
	require.NoError(t, err)
	require.Equal(t, tokens(2).String(), received.String())

	snap, _, err := h.store.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, snap.InFlight)
}

func TestEnterSurvivesFailedSave(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.deploy(t, tokens(50))
	require.NoError(t, s.SetPrice(ctx, owner, usdt, tokens(15)))
	h.bank.Mint(usdt, investor, tokens(30))
	h.bank.Approve(usdt, investor, reservoir, tokens(30))

	s.store = &flakyStore{StateStore: h.store, skip: 1, failures: 1}
	_, err := s.Enter(ctx, investor, usdt, tokens(2))
	require.ErrorContains(t, err, "disk full")

	reopened, err := Open(ctx, h.bank, h.opts)
	require.NoError(t, err)
	require.Equal(t, tokens(2).String(), reopened.Ledger().BalanceOf(investor).String())
	require.Len(t, reopened.InFlight(), 1)
	require.Equal(t, model.TransferPayment, reopened.InFlight()[0].Kind)

	paidToOwner, err := h.bank.BalanceOf(ctx, usdt, owner)
	require.NoError(t, err)
	require.Equal(t, tokens(30).String(), paidToOwner.String())
}

func TestUnsavedTransferIsNotSent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := ownerOwed(t, h, tokens(1))

	s.store = &flakyStore{StateStore: h.store, failures: 1}
	_, err := s.Withdraw(ctx, owner, eth)
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, tokens(1).String(), s.Ledger().Pending(owner, eth).String())

	received, err := h.bank.BalanceOf(ctx, eth, owner)
	require.NoError(t, err)
	require.Equal(t, "0", received.String())

	entries, err := storage.ReadJournal(h.journal)
	require.NoError(t, err)
	require.Equal(t, model.OpDistribute, entries[len(entries)-1].Op)
}

func TestFailedTransferRestoresStore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := ownerOwed(t, h, tokens(1))

	// the reservoir no longer holds what it owes
	require.NoError(t, h.bank.Send(eth, reservoir, investor, tokens(1)))
	_, err := s.Withdraw(ctx, owner, eth)
	require.ErrorIs(t, err, ledger.ErrPayoutTransferFailed)

	snap, _, err := h.store.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, snap.InFlight)

	reopened, err := Open(ctx, h.bank, h.opts)
	require.NoError(t, err)
	require.Empty(t, reopened.InFlight())
	require.Equal(t, tokens(1).String(), reopened.Ledger().Pending(owner, eth).String())
	require.Equal(t, "0", reopened.Ledger().EverWithdrawn(eth).String())
}

type fakeDB struct {
	saved map[string]model.LedgerSnapshot
}

func (f *fakeDB) LoadSnapshot(_ context.Context, name string) (model.LedgerSnapshot, bool, error) {
	snap, ok := f.saved[name]
	return snap, ok, nil
}

func (f *fakeDB) SaveSnapshot(_ context.Context, name string, snap model.LedgerSnapshot) error {
	f.saved[name] = snap
	return nil
}

func TestDBStateStoreKeysByName(t *testing.T) {
	db := &fakeDB{saved: make(map[string]model.LedgerSnapshot)}
	h := newHarness(t)
	h.opts.Store = &DBStateStore{DB: db, Name: "pool-a"}
	h.opts.Name = "pool-a"
	h.deploy(t, tokens(5))

	require.Contains(t, db.saved, "pool-a")
	require.Equal(t, tokens(5).String(), db.saved["pool-a"].TotalSupply)

	var empty *DBStateStore
	_, ok, err := empty.Load(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}
