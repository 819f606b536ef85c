package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"cloudMining/internal/ledger"
	"cloudMining/internal/lock"
	"cloudMining/internal/model"
)

// WatchConfig holds runtime settings for the distribution watcher.
type WatchConfig struct {
	Assets       []common.Address
	Interval     time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// Watcher periodically distributes newly mined assets.
type Watcher struct {
	cfg     WatchConfig
	service *Service
	locker  lock.Locker
	logger  *zap.Logger
}

func NewWatcher(cfg WatchConfig, service *Service, locker lock.Locker, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = lock.Noop{}
	}
	return &Watcher{cfg: cfg, service: service, locker: locker, logger: logger}
}

// Run executes a pass immediately and then on every tick until ctx is done.
// Failed passes are logged and retried on the next tick.
func (w *Watcher) Run(ctx context.Context) error {
	if w.service == nil {
		return fmt.Errorf("service is nil")
	}
	if len(w.cfg.Assets) == 0 {
		return fmt.Errorf("at least one asset is required")
	}
	if w.cfg.Interval <= 0 {
		return fmt.Errorf("interval must be greater than zero")
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("distribution pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce takes the ledger lock, reloads the stored state and distributes
// every configured asset. An asset that cannot be distributed because no
// shares exist is skipped.
func (w *Watcher) RunOnce(ctx context.Context) (results []model.Distribution, err error) {
	lease, err := w.locker.Acquire(ctx, w.service.Name())
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := lease.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			w.logger.Warn("lock release failed", zap.Error(releaseErr))
		}
	}()

	if err := w.service.Reload(ctx); err != nil {
		return nil, err
	}

	for _, asset := range w.cfg.Assets {
		var result model.Distribution
		err := withRetry(ctx, w.cfg.MaxRetries, w.cfg.RetryBackoff, func(ctx context.Context) error {
			var err error
			result, err = w.service.Distribute(ctx, asset)
			if err != nil && retryable(err) {
				w.logger.Warn("distribute failed", zap.String("asset", asset.Hex()), zap.Error(err))
			}
			return err
		})
		if errors.Is(err, ledger.ErrNoSharesIssued) {
			w.logger.Warn("skip asset, no shares issued", zap.String("asset", asset.Hex()))
			continue
		}
		if err != nil {
			return results, fmt.Errorf("distribute %s: %w", asset.Hex(), err)
		}
		results = append(results, result)
	}

	w.logger.Info("distribution pass complete", zap.Int("assets", len(results)))
	return results, nil
}
