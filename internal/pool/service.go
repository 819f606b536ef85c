// Package pool runs a ledger as a persistent service: every successful
// operation is saved to the state store, journaled and counted.
package pool

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"cloudMining/internal/ledger"
	"cloudMining/internal/model"
	"cloudMining/internal/observability"
	"cloudMining/internal/storage"
	"cloudMining/internal/units"
)

var (
	ErrAlreadyDeployed = errors.New("ledger already deployed")
	ErrNotDeployed     = errors.New("ledger not deployed")
)

// Options wires the service dependencies. Only Store is required.
type Options struct {
	Name    string
	Store   storage.StateStore
	Journal storage.Journal
	Metrics *observability.Metrics
	Logger  *zap.Logger
	// Decimals resolves the token precision used for metric values. Nil means 18.
	Decimals func(ctx context.Context, asset common.Address) uint8
	Now      func() time.Time
}

// Service wraps a ledger with persistence.
type Service struct {
	name     string
	bank     ledger.Bank
	store    storage.StateStore
	journal  storage.Journal
	metrics  *observability.Metrics
	logger   *zap.Logger
	decimals func(ctx context.Context, asset common.Address) uint8
	now      func() time.Time

	mu     sync.RWMutex
	ledger *ledger.Ledger
	// dirty is set while the live ledger and the store disagree.
	dirty    bool
	inFlight []model.TransferIntent
}

func newService(bank ledger.Bank, opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("state store is nil")
	}
	if bank == nil {
		return nil, fmt.Errorf("bank is nil")
	}
	s := &Service{
		name:     opts.Name,
		bank:     bank,
		store:    opts.Store,
		journal:  opts.Journal,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		decimals: opts.Decimals,
		now:      opts.Now,
	}
	if s.name == "" {
		s.name = "main"
	}
	if s.journal == nil {
		s.journal = storage.NopJournal{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.decimals == nil {
		s.decimals = func(context.Context, common.Address) uint8 { return ledger.Decimals }
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.logger = s.logger.With(zap.String("ledger", s.name))
	return s, nil
}

// Deploy creates a new ledger, mints the initial supply to the reservoir and
// saves it. It fails when the store already holds a ledger.
func Deploy(ctx context.Context, cfg ledger.Config, initialSupply *big.Int, bank ledger.Bank, opts Options) (*Service, error) {
	s, err := newService(bank, opts)
	if err != nil {
		return nil, err
	}
	if _, ok, err := s.store.Load(ctx); err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	} else if ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyDeployed, s.name)
	}

	l, err := ledger.New(cfg, bank, s.logger.Named("ledger"))
	if err != nil {
		return nil, err
	}
	if initialSupply != nil && initialSupply.Sign() > 0 {
		if err := l.Mint(cfg.Owner, cfg.Reservoir, initialSupply); err != nil {
			return nil, err
		}
	}
	l.SetTransferHook(s.recordTransfer)
	s.ledger = l

	err = s.commit(ctx, model.JournalEntry{
		Op:      model.OpDeploy,
		Caller:  cfg.Owner.Hex(),
		Account: cfg.Reservoir.Hex(),
		Amount:  amountString(initialSupply),
		Details: map[string]string{
			"min_amount":  cfg.MinAmount.String(),
			"fee_percent": fmt.Sprintf("%d", cfg.FeePercent),
		},
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("ledger deployed",
		zap.String("owner", cfg.Owner.Hex()),
		zap.String("reservoir", cfg.Reservoir.Hex()),
		zap.String("initial_supply", amountString(initialSupply)),
	)
	return s, nil
}

// Open restores a previously deployed ledger from the store.
func Open(ctx context.Context, bank ledger.Bank, opts Options) (*Service, error) {
	s, err := newService(bank, opts)
	if err != nil {
		return nil, err
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces the in-memory ledger with the stored snapshot. Callers that
// share the store with other processes reload after taking the lock.
func (s *Service) Reload(ctx context.Context) error {
	snap, ok, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotDeployed, s.name)
	}
	l, err := ledger.Restore(snap, s.bank, s.logger.Named("ledger"))
	if err != nil {
		return fmt.Errorf("restore %s: %w", s.name, err)
	}
	l.SetTransferHook(s.recordTransfer)

	for _, t := range snap.InFlight {
		s.logger.Warn("transfer recorded without confirmation, verify it on chain",
			zap.String("kind", t.Kind),
			zap.String("token", t.Token),
			zap.String("from", t.From),
			zap.String("to", t.To),
			zap.String("amount", t.Amount),
		)
	}

	s.mu.Lock()
	s.ledger = l
	s.inFlight = snap.InFlight
	s.dirty = len(snap.InFlight) > 0
	s.mu.Unlock()
	s.updateGauges()
	return nil
}

// InFlight returns the transfers the stored state recorded as about to be sent
// when it was last loaded. They are treated as sent. The next save clears them.
func (s *Service) InFlight() []model.TransferIntent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TransferIntent, len(s.inFlight))
	copy(out, s.inFlight)
	return out
}

// Ledger returns the live ledger for read-only queries.
func (s *Service) Ledger() *ledger.Ledger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger
}

func (s *Service) Name() string {
	return s.name
}

func (s *Service) Mint(ctx context.Context, caller, to common.Address, amount *big.Int) error {
	err := s.Ledger().Mint(caller, to, amount)
	s.metrics.RecordOperation(model.OpMint, err)
	if err != nil {
		return err
	}
	return s.commit(ctx, model.JournalEntry{Op: model.OpMint, Caller: caller.Hex(), Account: to.Hex(), Amount: amount.String()})
}

func (s *Service) SetPrice(ctx context.Context, caller, asset common.Address, price *big.Int) error {
	err := s.Ledger().SetPrice(caller, asset, price)
	s.metrics.RecordOperation(model.OpSetPrice, err)
	if err != nil {
		return err
	}
	return s.commit(ctx, model.JournalEntry{Op: model.OpSetPrice, Caller: caller.Hex(), Asset: asset.Hex(), Amount: price.String()})
}

func (s *Service) SetParams(ctx context.Context, caller common.Address, minAmount *big.Int, feePercent uint8) error {
	err := s.Ledger().SetParams(caller, minAmount, feePercent)
	s.metrics.RecordOperation(model.OpSetParams, err)
	if err != nil {
		return err
	}
	return s.commit(ctx, model.JournalEntry{
		Op:     model.OpSetParams,
		Caller: caller.Hex(),
		Details: map[string]string{
			"min_amount":  minAmount.String(),
			"fee_percent": fmt.Sprintf("%d", feePercent),
		},
	})
}

// Enter buys shares for buyer and returns the amount paid.
func (s *Service) Enter(ctx context.Context, buyer, asset common.Address, amount *big.Int) (*big.Int, error) {
	cost, err := s.Ledger().Enter(ctx, buyer, asset, amount)
	s.metrics.RecordOperation(model.OpEnter, err)
	if err != nil {
		return nil, s.settle(ctx, err)
	}
	err = s.commit(ctx, model.JournalEntry{
		Op:      model.OpEnter,
		Caller:  buyer.Hex(),
		Account: buyer.Hex(),
		Asset:   asset.Hex(),
		Amount:  amount.String(),
		Details: map[string]string{"cost": cost.String()},
	})
	return cost, err
}

func (s *Service) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	err := s.Ledger().Transfer(from, to, amount)
	s.metrics.RecordOperation(model.OpTransfer, err)
	if err != nil {
		return err
	}
	return s.commit(ctx, model.JournalEntry{Op: model.OpTransfer, Caller: from.Hex(), Account: to.Hex(), Amount: amount.String()})
}

// Distribute runs one distribution pass. Passes with nothing new are saved
// only when they register a new mined asset.
func (s *Service) Distribute(ctx context.Context, asset common.Address) (model.Distribution, error) {
	l := s.Ledger()
	known := containsAddress(l.MinedAssets(), asset)

	result, err := l.Distribute(ctx, asset)
	s.metrics.RecordOperation(model.OpDistribute, err)
	if err != nil {
		s.metrics.RecordDistribution(asset.Hex(), "error", 0, float64(s.now().Unix()))
		return model.Distribution{}, err
	}

	if result.Empty() {
		s.metrics.RecordDistribution(asset.Hex(), "empty", 0, float64(s.now().Unix()))
		if known && !s.isDirty() {
			return result, nil
		}
		return result, s.commit(ctx, model.JournalEntry{Op: model.OpDistribute, Asset: asset.Hex(), Amount: "0"})
	}

	s.metrics.RecordDistribution(asset.Hex(), "credited", units.Float(result.NewAmount, s.decimals(ctx, asset)), float64(s.now().Unix()))
	return result, s.commit(ctx, model.JournalEntry{
		Op:     model.OpDistribute,
		Asset:  asset.Hex(),
		Amount: result.NewAmount.String(),
		Details: map[string]string{
			"fee":          result.Fee.String(),
			"residual":     result.Residual.String(),
			"owner_credit": result.OwnerCredit.String(),
			"credited":     fmt.Sprintf("%d", len(result.Credits)),
		},
	})
}

// DistributeAll runs a pass for every asset and stops at the first error.
func (s *Service) DistributeAll(ctx context.Context, assets []common.Address) ([]model.Distribution, error) {
	results := make([]model.Distribution, 0, len(assets))
	for _, asset := range assets {
		result, err := s.Distribute(ctx, asset)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// Withdraw pays caller's pending balance of asset.
func (s *Service) Withdraw(ctx context.Context, caller, asset common.Address) (*big.Int, error) {
	amount, err := s.Ledger().Withdraw(ctx, caller, asset)
	s.metrics.RecordOperation(model.OpWithdraw, err)
	if err != nil {
		return nil, s.settle(ctx, err)
	}
	if amount.Sign() == 0 {
		return amount, nil
	}
	s.metrics.RecordWithdrawal(asset.Hex(), units.Float(amount, s.decimals(ctx, asset)))
	return amount, s.commit(ctx, model.JournalEntry{Op: model.OpWithdraw, Caller: caller.Hex(), Account: caller.Hex(), Asset: asset.Hex(), Amount: amount.String()})
}

// WithdrawAll pays every pending balance. Payouts already sent are saved even
// when a later one fails.
func (s *Service) WithdrawAll(ctx context.Context, caller common.Address) ([]model.Payout, error) {
	payouts, err := s.Ledger().WithdrawAll(ctx, caller)
	s.metrics.RecordOperation(model.OpWithdrawAll, err)
	if len(payouts) == 0 {
		if err != nil {
			return payouts, s.settle(ctx, err)
		}
		return payouts, nil
	}

	entries := make([]model.JournalEntry, 0, len(payouts))
	for _, p := range payouts {
		s.metrics.RecordWithdrawal(p.Asset.Hex(), units.Float(p.Amount, s.decimals(ctx, p.Asset)))
		entries = append(entries, model.JournalEntry{
			Op:      model.OpWithdrawAll,
			Caller:  caller.Hex(),
			Account: p.Holder.Hex(),
			Asset:   p.Asset.Hex(),
			Amount:  p.Amount.String(),
		})
	}
	if commitErr := s.commit(ctx, entries...); commitErr != nil {
		return payouts, errors.Join(err, commitErr)
	}
	return payouts, err
}

// recordTransfer saves the state an outgoing transfer leads to, marked in
// flight, before the transfer is sent. A crash or failed save after the
// transfer then cannot bring back the balance it paid.
func (s *Service) recordTransfer(ctx context.Context, snap model.LedgerSnapshot, intent model.TransferIntent) error {
	snap.InFlight = []model.TransferIntent{intent}
	if err := s.store.Save(ctx, snap); err != nil {
		s.logger.Error("transfer intent save failed", zap.String("kind", intent.Kind), zap.Error(err))
		return fmt.Errorf("save state: %w", err)
	}
	s.setDirty(true)
	return nil
}

// settle rewrites the store after an operation failed while the store was
// ahead of the live ledger, such as a transfer that was recorded but failed.
func (s *Service) settle(ctx context.Context, opErr error) error {
	if !s.isDirty() {
		return opErr
	}
	if err := s.save(ctx); err != nil {
		return errors.Join(opErr, err)
	}
	return opErr
}

func (s *Service) save(ctx context.Context) error {
	if err := s.store.Save(ctx, s.Ledger().Snapshot()); err != nil {
		s.setDirty(true)
		s.logger.Error("state save failed", zap.Error(err))
		return fmt.Errorf("save state: %w", err)
	}
	s.setDirty(false)
	return nil
}

// commit saves the current snapshot and appends the journal entries.
func (s *Service) commit(ctx context.Context, entries ...model.JournalEntry) error {
	if err := s.save(ctx); err != nil {
		return err
	}

	recordedAt := s.now().UTC().Format(time.RFC3339Nano)
	for i := range entries {
		entries[i].Ledger = s.name
		entries[i].RecordedAt = recordedAt
	}
	if err := s.journal.Append(entries...); err != nil {
		s.logger.Error("journal append failed", zap.Error(err))
		return fmt.Errorf("append journal: %w", err)
	}

	s.updateGauges()
	return nil
}

func (s *Service) updateGauges() {
	if s.metrics == nil {
		return
	}
	l := s.Ledger()
	s.metrics.UpdateLedger(
		len(l.Investors()),
		units.Float(l.TotalSupply(), ledger.Decimals),
		units.Float(l.BalanceOf(l.Reservoir()), ledger.Decimals),
	)
}

func (s *Service) isDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

func (s *Service) setDirty(dirty bool) {
	s.mu.Lock()
	s.dirty = dirty
	s.mu.Unlock()
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func containsAddress(items []common.Address, target common.Address) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}

// Account returns the share balance of holder and its pending balance in
// every mined asset, zero entries included.
func (s *Service) Account(holder common.Address) model.Account {
	l := s.Ledger()
	account := model.Account{Holder: holder, Shares: l.BalanceOf(holder)}
	for _, asset := range l.MinedAssets() {
		account.Pending = append(account.Pending, model.AssetAmount{Asset: asset, Amount: l.Pending(holder, asset)})
	}
	return account
}
