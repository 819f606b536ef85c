package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cloudMining/internal/chain"
	"cloudMining/internal/config"
	"cloudMining/internal/erc20"
	"cloudMining/internal/ledger"
	"cloudMining/internal/lock"
	"cloudMining/internal/observability"
	"cloudMining/internal/pool"
	"cloudMining/internal/storage"
	"cloudMining/internal/storage/postgres"
	"cloudMining/internal/units"
)

// app carries the resources shared by every command.
type app struct {
	ctx     context.Context
	cfg     config.Config
	logger  *zap.Logger
	chain   *chain.Client
	bank    *erc20.Bank
	tokens  *erc20.TokenMetaCache
	store   storage.StateStore
	journal storage.Journal
	metrics *observability.Metrics
	locker  lock.Locker
	closers []func()
}

func setup(cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{
		ctx:     ctx,
		cfg:     cfg,
		logger:  logger,
		tokens:  erc20.NewTokenMetaCache(),
		journal: storage.NewJsonlJournal(cfg.Journal),
		metrics: observability.NewMetrics(""),
		locker:  lock.Noop{},
		closers: []func(){stop, func() { _ = logger.Sync() }},
	}

	if err := a.connect(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) connect() error {
	if a.cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if a.cfg.HoldingKey == "" {
		return fmt.Errorf("holding key is required")
	}

	chainClient, err := chain.NewClient(a.ctx, a.cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	a.chain = chainClient
	a.closers = append(a.closers, chainClient.Close)

	a.bank, err = erc20.NewBank(chainClient, a.cfg.HoldingKey, a.logger.Named("bank"))
	if err != nil {
		return err
	}

	if a.cfg.PGDSN != "" {
		pg, err := postgres.NewStore(a.ctx, a.cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.EnsureSchema(a.ctx); err != nil {
			return err
		}
		a.store = &pool.DBStateStore{DB: pg, Name: a.cfg.LedgerName}
	} else {
		a.store = storage.NewFileStateStore(a.cfg.StateFile)
	}

	if a.cfg.RedisAddr != "" {
		rl, err := lock.NewRedis(a.ctx, a.cfg.RedisAddr, a.cfg.LockTTL, a.cfg.LockWait, a.logger.Named("lock"))
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rl.Close() })
		a.locker = rl
	}
	return nil
}

// close releases resources in reverse order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) options() pool.Options {
	return pool.Options{
		Name:     a.cfg.LedgerName,
		Store:    a.store,
		Journal:  a.journal,
		Metrics:  a.metrics,
		Logger:   a.logger.Named("pool"),
		Decimals: a.decimals,
	}
}

// locked runs fn on the stored ledger while holding the ledger lock.
func (a *app) locked(fn func(s *pool.Service) error) error {
	lease, err := a.locker.Acquire(a.ctx, a.cfg.LedgerName)
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(a.ctx)); err != nil {
			a.logger.Warn("lock release failed", zap.Error(err))
		}
	}()

	s, err := pool.Open(a.ctx, a.bank, a.options())
	if err != nil {
		return err
	}
	return fn(s)
}

// decimals feeds metric values only, so an unknown token counts as 18 decimals.
func (a *app) decimals(ctx context.Context, asset common.Address) uint8 {
	meta, err := a.tokens.Lookup(ctx, a.chain, asset, a.logger)
	if err != nil {
		return ledger.Decimals
	}
	return meta.Decimals
}

func (a *app) label(asset common.Address) string {
	meta, _ := a.tokens.Lookup(a.ctx, a.chain, asset, a.logger)
	return meta.Label()
}

func (a *app) owner() (common.Address, error) {
	if a.cfg.Owner == "" {
		return common.Address{}, fmt.Errorf("owner address is required")
	}
	return config.ParseAddress(a.cfg.Owner)
}

func (a *app) caller() (common.Address, error) {
	if a.cfg.Caller == "" {
		return common.Address{}, fmt.Errorf("caller address is required")
	}
	return config.ParseAddress(a.cfg.Caller)
}

func (a *app) assets() ([]common.Address, error) {
	assets, err := config.ParseAddresses(a.cfg.Assets)
	if err != nil {
		return nil, err
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("at least one asset is required")
	}
	return assets, nil
}

// tokenAmount parses a human amount of asset using its on-chain decimals.
func (a *app) tokenAmount(asset common.Address, input string) (*big.Int, error) {
	meta, err := a.tokens.Lookup(a.ctx, a.chain, asset, a.logger)
	if err != nil {
		return nil, err
	}
	return units.ParseAmount(input, meta.Decimals)
}

// formatToken prints base units when the token precision is unknown.
func (a *app) formatToken(asset common.Address, amount *big.Int) string {
	meta, err := a.tokens.Lookup(a.ctx, a.chain, asset, a.logger)
	if err != nil {
		return fmt.Sprintf("%s base units of %s", amount, asset.Hex())
	}
	return fmt.Sprintf("%s %s", units.FormatAmount(amount, meta.Decimals), meta.Label())
}

func shareAmount(input string) (*big.Int, error) {
	return units.ParseAmount(input, ledger.Decimals)
}

func formatShares(amount *big.Int) string {
	return units.FormatAmount(amount, ledger.Decimals)
}

func flagAddress(cmd *cobra.Command, name string) (common.Address, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return common.Address{}, fmt.Errorf("--%s is required", name)
	}
	address, err := config.ParseAddress(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("--%s: %w", name, err)
	}
	return address, nil
}
