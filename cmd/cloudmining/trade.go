package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cloudMining/internal/pool"
)

func enterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enter",
		Short: "Buy shares from the reservoir; the buyer must have approved the holding address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			buyer, err := flagAddress(cmd, "buyer")
			if err != nil {
				return err
			}
			asset, err := flagAddress(cmd, "asset")
			if err != nil {
				return err
			}
			amountRaw, _ := cmd.Flags().GetString("amount")
			amount, err := shareAmount(amountRaw)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}

			return a.locked(func(s *pool.Service) error {
				cost, err := s.Enter(a.ctx, buyer, asset, amount)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s bought %s shares for %s\n",
					buyer.Hex(), formatShares(amount), a.formatToken(asset, cost))
				return nil
			})
		},
	}
	cmd.Flags().String("buyer", "", "buyer address")
	cmd.Flags().String("asset", "", "payment asset address")
	cmd.Flags().String("amount", "", "shares to buy")
	return cmd
}

func transferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Move shares between two addresses",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			from, err := flagAddress(cmd, "from")
			if err != nil {
				return err
			}
			to, err := flagAddress(cmd, "to")
			if err != nil {
				return err
			}
			amountRaw, _ := cmd.Flags().GetString("amount")
			amount, err := shareAmount(amountRaw)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}

			return a.locked(func(s *pool.Service) error {
				if err := s.Transfer(a.ctx, from, to, amount); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "transferred %s shares from %s to %s\n", formatShares(amount), from.Hex(), to.Hex())
				return nil
			})
		},
	}
	cmd.Flags().String("from", "", "sender address")
	cmd.Flags().String("to", "", "recipient address")
	cmd.Flags().String("amount", "", "shares to transfer")
	return cmd
}

func balanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show shares, pending payouts and on-chain token balances of an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			account, err := flagAddress(cmd, "account")
			if err != nil {
				return err
			}
			s, err := pool.Open(a.ctx, a.bank, a.options())
			if err != nil {
				return err
			}
			view := s.Account(account)
			l := s.Ledger()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "account: %s\n", account.Hex())
			fmt.Fprintf(out, "shares:  %s\n", formatShares(view.Shares))
			for _, p := range view.Pending {
				fmt.Fprintf(out, "pending: %s\n", a.formatToken(p.Asset, p.Amount))
			}

			seen := make(map[string]struct{})
			for _, asset := range append(l.PriceAssets(), l.MinedAssets()...) {
				if _, ok := seen[asset.Hex()]; ok {
					continue
				}
				seen[asset.Hex()] = struct{}{}
				held, err := a.bank.BalanceOf(a.ctx, asset, account)
				if err != nil {
					return fmt.Errorf("balance of %s: %w", asset.Hex(), err)
				}
				fmt.Fprintf(out, "wallet:  %s\n", a.formatToken(asset, held))
			}
			return nil
		},
	}
	cmd.Flags().String("account", "", "account address")
	return cmd
}
