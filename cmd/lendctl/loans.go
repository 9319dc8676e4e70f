package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLoanCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loan",
		Short: "Inspect and service accepted loans",
	}

	var amount string
	pay := &cobra.Command{
		Use:   "pay <claim-id>",
		Short: "Repay part or all of a loan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runSigned(cmd, a, fmt.Sprintf("/v1/loans/%d/pay", id), map[string]string{"amount": amount})
		},
	}
	pay.Flags().StringVar(&amount, "amount", "", "amount in token base units")
	_ = pay.MarkFlagRequired("amount")

	cmd.AddCommand(pay,
		claimCommand(a, "get", "Show a loan", "/v1/loans/%d", false),
		claimCommand(a, "due", "Show principal and interest currently due", "/v1/loans/%d/due", false),
		claimCommand(a, "impair", "Mark an overdue loan impaired", "/v1/loans/%d/impair", true),
		claimCommand(a, "mark-paid", "Mark a loan paid off-chain", "/v1/loans/%d/mark-paid", true),
		claimCommand(a, "claim", "Show the claim backing a loan", "/v1/claims/%d", false),
	)
	return cmd
}

func claimCommand(a *app, use, short, pathFmt string, signed bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <claim-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			path := fmt.Sprintf(pathFmt, id)
			if signed {
				return runSigned(cmd, a, path, struct{}{})
			}
			return runView(a, path)(cmd, args)
		},
	}
}

func newFeesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fees",
		Short: "Show fee settings and tracked protocol fees",
		Args:  cobra.NoArgs,
		RunE:  runView(a, "/v1/fees"),
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "core <account>",
		Short: "Show the core fee an account pays on acceptance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runView(a, "/v1/accounts/"+args[0]+"/core-fee")(cmd, args)
		},
	}, &cobra.Command{
		Use:   "token <token>",
		Short: "Show one token's tracked fees and list status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runView(a, "/v1/fees/tokens/"+args[0])(cmd, args)
		},
	})
	return cmd
}
