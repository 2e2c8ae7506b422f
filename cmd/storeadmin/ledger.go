package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) balanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Manage user balances",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add [telegram-id] [amount]",
		Short: "Credit a user's balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tg, err := parseID(args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			bal, err := a.repo.CreditBalance(cmd.Context(), tg, amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d balance: %d\n", tg, bal)
			return nil
		},
	})
	return cmd
}

func (a *app) revenueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revenue",
		Short: "Summarize paid orders and topups",
		RunE: func(cmd *cobra.Command, args []string) error {
			rev, err := a.repo.Revenue(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Paid orders: %d (total %d)\n", rev.PaidOrders, rev.OrdersTotal)
			fmt.Fprintf(out, "Paid topups: %d (total %d)\n", rev.PaidTopups, rev.TopupsTotal)
			return nil
		},
	}
}
