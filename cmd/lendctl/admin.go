package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func newAdminCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Lending and claims administration",
	}
	cmd.AddCommand(
		adminAddressCmd(a, "set-admin", "Hand the lending admin role to another account", "/v1/admin/lending/admin"),
		adminAddressCmd(a, "set-claims-admin", "Hand the claims admin role to another account", "/v1/admin/claims/admin"),
		feeRateCmd(a, "protocol-fee", "Set the protocol fee taken from accepted loans", "/v1/admin/lending/protocol-fee"),
		feeRateCmd(a, "processing-fee", "Set the processing fee taken from accepted loans", "/v1/admin/lending/processing-fee"),
		feeTokenCmd(a, "whitelist", "/v1/admin/lending/fee-tokens/whitelist"),
		feeTokenCmd(a, "blacklist", "/v1/admin/lending/fee-tokens/blacklist"),
		callbackCmd(a),
		coreFeeCmd(a),
		exemptionCmd(a),
		&cobra.Command{
			Use:   "withdraw-fees",
			Short: "Withdraw every tracked protocol fee to the admin",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runSigned(cmd, a, "/v1/admin/lending/withdraw-fees", struct{}{})
			},
		},
		&cobra.Command{
			Use:   "withdraw-core-fees",
			Short: "Withdraw collected core fees to the claims admin",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runSigned(cmd, a, "/v1/admin/claims/withdraw-core-fees", struct{}{})
			},
		},
	)
	return cmd
}

func adminAddressCmd(a *app, use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <address>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSigned(cmd, a, path, map[string]string{"admin": args[0]})
		},
	}
}

func feeRateCmd(a *app, use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <bps>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bps, err := strconv.ParseUint(args[0], 10, 16)
			if err != nil {
				return fmt.Errorf("invalid basis points %q", args[0])
			}
			return runSigned(cmd, a, path, map[string]uint64{"bps": bps})
		},
	}
}

func feeTokenCmd(a *app, list, path string) *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   list + " <token>",
		Short: fmt.Sprintf("Add a token to or remove it from the fee token %s", list),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSigned(cmd, a, path, map[string]any{"token": args[0], "listed": !remove})
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "remove the token instead of adding it")
	return cmd
}

func callbackCmd(a *app) *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "callback <contract> <selector>",
		Short: "Whitelist an acceptance callback",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSigned(cmd, a, "/v1/admin/lending/callbacks", map[string]any{
				"contract":    args[0],
				"selector":    args[1],
				"whitelisted": !remove,
			})
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "revoke the callback instead of whitelisting it")
	return cmd
}

func coreFeeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "core-fee <amount>",
		Short: "Set the native core fee charged on acceptance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSigned(cmd, a, "/v1/admin/claims/core-fee", map[string]string{"fee": args[0]})
		},
	}
}

func exemptionCmd(a *app) *cobra.Command {
	var revoke bool
	cmd := &cobra.Command{
		Use:   "exempt <account>",
		Short: "Exempt an account from the core and protocol fees",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSigned(cmd, a, "/v1/admin/claims/exemptions", map[string]any{"account": args[0], "exempt": !revoke})
		},
	}
	cmd.Flags().BoolVar(&revoke, "revoke", false, "remove the exemption")
	return cmd
}

func newIndexCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Query the event index",
	}

	var eventType string
	var offerID, claimID, after uint64
	var limit int
	events := &cobra.Command{
		Use:   "events",
		Short: "List indexed events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if eventType != "" {
				q.Set("type", eventType)
			}
			if cmd.Flags().Changed("offer") {
				q.Set("offerId", strconv.FormatUint(offerID, 10))
			}
			if cmd.Flags().Changed("claim") {
				q.Set("claimId", strconv.FormatUint(claimID, 10))
			}
			if after > 0 {
				q.Set("after", strconv.FormatUint(after, 10))
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			path := "/v1/index/events"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			return runView(a, path)(cmd, args)
		},
	}
	events.Flags().StringVar(&eventType, "type", "", "event type, for example lending.offer.created")
	events.Flags().Uint64Var(&offerID, "offer", 0, "only events for this offer")
	events.Flags().Uint64Var(&claimID, "claim", 0, "only events for this claim")
	events.Flags().Uint64Var(&after, "after", 0, "only events after this sequence")
	events.Flags().IntVar(&limit, "limit", 0, "maximum events returned")

	var exportType string
	export := &cobra.Command{
		Use:   "export",
		Short: "Export indexed events to a Parquet file on the node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body := map[string]any{}
			if exportType != "" {
				body["type"] = exportType
			}
			return runSigned(cmd, a, "/v1/admin/export", body)
		},
	}
	export.Flags().StringVar(&exportType, "type", "", "only export events of this type")

	cmd.AddCommand(events, export,
		&cobra.Command{
			Use:   "loans <account>",
			Short: "List indexed loans where account is creditor or debtor",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runView(a, "/v1/index/accounts/"+args[0]+"/loans")(cmd, args)
			},
		},
		&cobra.Command{
			Use:   "loan <claim-id>",
			Short: "Show an indexed loan",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return runView(a, fmt.Sprintf("/v1/index/loans/%d", id))(cmd, args)
			},
		},
	)
	return cmd
}
