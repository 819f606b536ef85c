package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cloudMining/internal/config"
	"cloudMining/internal/ledger"
	"cloudMining/internal/pool"
	"cloudMining/internal/units"
)

func deployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Create a new ledger and mint the initial share supply to the reservoir",
		RunE:  runDeploy,
	}
	cmd.Flags().String("mint", "50", "initial shares minted to the reservoir")
	cmd.Flags().String("min", "1", "minimum shares per purchase")
	cmd.Flags().String("fee", "20", "owner fee percentage (0-50)")
	cmd.Flags().Bool("dryrun", false, "print the parameters without deploying")
	return cmd
}

func runDeploy(cmd *cobra.Command, _ []string) error {
	mintRaw, _ := cmd.Flags().GetString("mint")
	minRaw, _ := cmd.Flags().GetString("min")
	feeRaw, _ := cmd.Flags().GetString("fee")
	dryRun, _ := cmd.Flags().GetBool("dryrun")

	initialSupply, err := shareAmount(mintRaw)
	if err != nil {
		return fmt.Errorf("--mint: %w", err)
	}
	minAmount, err := shareAmount(minRaw)
	if err != nil {
		return fmt.Errorf("--min: %w", err)
	}
	fee, err := units.ParsePercent(feeRaw)
	if err != nil {
		return fmt.Errorf("--fee: %w", err)
	}

	out := cmd.OutOrStdout()
	if dryRun {
		cfgFile, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "ledger:     %s\n", cfg.LedgerName)
		fmt.Fprintf(out, "owner:      %s\n", cfg.Owner)
		fmt.Fprintf(out, "mint:       %s shares\n", formatShares(initialSupply))
		fmt.Fprintf(out, "min amount: %s shares\n", formatShares(minAmount))
		fmt.Fprintf(out, "fee:        %d%%\n", fee)
		return nil
	}

	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	owner, err := a.owner()
	if err != nil {
		return err
	}
	cfg := ledger.Config{
		Owner:      owner,
		Reservoir:  a.bank.Holder(),
		MinAmount:  minAmount,
		FeePercent: fee,
	}

	lease, err := a.locker.Acquire(a.ctx, a.cfg.LedgerName)
	if err != nil {
		return err
	}
	defer lease.Release(a.ctx)

	s, err := pool.Deploy(a.ctx, cfg, initialSupply, a.bank, a.options())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "deployed ledger %s: reservoir %s holds %s shares\n",
		s.Name(), cfg.Reservoir.Hex(), formatShares(s.Ledger().BalanceOf(cfg.Reservoir)))
	return nil
}

func mintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint new shares",
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
			amountRaw, _ := cmd.Flags().GetString("amount")
			amount, err := shareAmount(amountRaw)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}

			return a.locked(func(s *pool.Service) error {
				to := s.Ledger().Reservoir()
				if raw, _ := cmd.Flags().GetString("to"); raw != "" {
					if to, err = config.ParseAddress(raw); err != nil {
						return fmt.Errorf("--to: %w", err)
					}
				}
				if err := s.Mint(a.ctx, caller, to, amount); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "minted %s shares to %s, total supply %s\n",
					formatShares(amount), to.Hex(), formatShares(s.Ledger().TotalSupply()))
				return nil
			})
		},
	}
	cmd.Flags().String("to", "", "recipient (defaults to the reservoir)")
	cmd.Flags().String("amount", "", "shares to mint")
	return cmd
}

func setPriceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setprice",
		Short: "Set the price of one share in a payment asset",
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
			asset, err := flagAddress(cmd, "asset")
			if err != nil {
				return err
			}
			priceRaw, _ := cmd.Flags().GetString("price")
			price, err := a.tokenAmount(asset, priceRaw)
			if err != nil {
				return fmt.Errorf("--price: %w", err)
			}

			return a.locked(func(s *pool.Service) error {
				if err := s.SetPrice(a.ctx, caller, asset, price); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "price set: 1 share = %s\n", a.formatToken(asset, price))
				return nil
			})
		},
	}
	cmd.Flags().String("asset", "", "payment asset address")
	cmd.Flags().String("price", "", "price of one share in asset units")
	return cmd
}

func setParamsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setparams",
		Short: "Set the minimum purchase and the owner fee",
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
			minRaw, _ := cmd.Flags().GetString("min")
			minAmount, err := shareAmount(minRaw)
			if err != nil {
				return fmt.Errorf("--min: %w", err)
			}
			feeRaw, _ := cmd.Flags().GetString("fee")
			fee, err := units.ParsePercent(feeRaw)
			if err != nil {
				return fmt.Errorf("--fee: %w", err)
			}

			return a.locked(func(s *pool.Service) error {
				if err := s.SetParams(a.ctx, caller, minAmount, fee); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "params set: min %s shares, fee %d%%\n", formatShares(minAmount), fee)
				return nil
			})
		},
	}
	cmd.Flags().String("min", "", "minimum shares per purchase")
	cmd.Flags().String("fee", "", "owner fee percentage (0-50)")
	return cmd
}

func summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print the ledger parameters and rosters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			s, err := pool.Open(a.ctx, a.bank, a.options())
			if err != nil {
				return err
			}
			l := s.Ledger()
			summary := l.Summary()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "owner:        %s\n", summary.Owner.Hex())
			fmt.Fprintf(out, "reservoir:    %s\n", l.Reservoir().Hex())
			fmt.Fprintf(out, "min amount:   %s shares\n", formatShares(summary.MinAmount))
			fmt.Fprintf(out, "fee:          %d%%\n", summary.FeePercent)
			fmt.Fprintf(out, "investors:    %d\n", summary.InvestorCount)
			fmt.Fprintf(out, "total supply: %s shares\n", formatShares(l.TotalSupply()))
			fmt.Fprintf(out, "unsold:       %s shares\n", formatShares(l.BalanceOf(l.Reservoir())))
			for _, asset := range l.PriceAssets() {
				fmt.Fprintf(out, "price:        1 share = %s\n", a.formatToken(asset, l.Price(asset)))
			}
			for _, asset := range l.MinedAssets() {
				fmt.Fprintf(out, "mined:        %s distributed, %s withdrawn\n",
					a.formatToken(asset, l.EverDistributed(asset)), a.formatToken(asset, l.EverWithdrawn(asset)))
			}
			for _, t := range s.InFlight() {
				fmt.Fprintf(out, "unconfirmed:  %s of %s %s from %s to %s\n", t.Kind, t.Amount, t.Token, t.From, t.To)
			}
			return nil
		},
	}
}
