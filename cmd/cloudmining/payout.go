package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cloudMining/internal/pool"
)

func distributeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "distribute",
		Short: "Credit newly mined assets to investors and the owner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			assets, err := a.assets()
			if err != nil {
				return err
			}

			return a.locked(func(s *pool.Service) error {
				results, err := s.DistributeAll(a.ctx, assets)
				out := cmd.OutOrStdout()
				for _, r := range results {
					if r.Empty() {
						fmt.Fprintf(out, "%s: nothing new\n", a.label(r.Asset))
						continue
					}
					fmt.Fprintf(out, "%s: distributed %s, fee %s, %d investors credited, owner credited %s\n",
						a.label(r.Asset), a.formatToken(r.Asset, r.NewAmount), a.formatToken(r.Asset, r.Fee),
						len(r.Credits), a.formatToken(r.Asset, r.OwnerCredit))
				}
				return err
			})
		},
	}
	cmd.Flags().StringSlice("assets", nil, "mined asset addresses (comma-separated)")
	return cmd
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Distribute mined assets periodically and serve metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			assets, err := a.assets()
			if err != nil {
				return err
			}
			s, err := pool.Open(a.ctx, a.bank, a.options())
			if err != nil {
				return err
			}

			if a.cfg.MetricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", a.metrics.Handler())
				server := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("metrics server failed", zap.Error(err))
					}
				}()
				defer server.Close()
				a.logger.Info("metrics server started", zap.String("addr", a.cfg.MetricsAddr))
			}

			watcher := pool.NewWatcher(pool.WatchConfig{
				Assets:       assets,
				Interval:     a.cfg.Interval,
				MaxRetries:   a.cfg.MaxRetries,
				RetryBackoff: a.cfg.RetryBackoff,
			}, s, a.locker, a.logger.Named("watcher"))

			a.logger.Info("watch start",
				zap.String("ledger", a.cfg.LedgerName),
				zap.Int("assets", len(assets)),
				zap.Duration("interval", a.cfg.Interval),
			)
			return watcher.Run(a.ctx)
		},
	}
	cmd.Flags().StringSlice("assets", nil, "mined asset addresses (comma-separated)")
	cmd.Flags().Duration("interval", time.Hour, "time between distribution passes")
	cmd.Flags().String("metrics-addr", "", "listen address for /metrics (empty disables)")
	return cmd
}

func withdrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Pay out the pending balance of one holder in one asset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			holder, err := flagAddress(cmd, "holder")
			if err != nil {
				return err
			}
			asset, err := flagAddress(cmd, "asset")
			if err != nil {
				return err
			}

			return a.locked(func(s *pool.Service) error {
				amount, err := s.Withdraw(a.ctx, holder, asset)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "paid %s to %s\n", a.formatToken(asset, amount), holder.Hex())
				return nil
			})
		},
	}
	cmd.Flags().String("holder", "", "holder address")
	cmd.Flags().String("asset", "", "mined asset address")
	return cmd
}

func withdrawAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw-all",
		Short: "Pay out every pending balance of the owner and all investors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			caller, err := a.caller()
			if err != nil {
				return err
			}

			return a.locked(func(s *pool.Service) error {
				payouts, err := s.WithdrawAll(a.ctx, caller)
				out := cmd.OutOrStdout()
				for _, p := range payouts {
					fmt.Fprintf(out, "paid %s to %s\n", a.formatToken(p.Asset, p.Amount), p.Holder.Hex())
				}
				if err == nil && len(payouts) == 0 {
					fmt.Fprintln(out, "nothing pending")
				}
				return err
			})
		},
	}
}
