package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

type offerParams struct {
	TermLength             int64  `json:"termLength"`
	InterestRateBps        uint16 `json:"interestRateBps"`
	NumberOfPeriodsPerYear uint16 `json:"numberOfPeriodsPerYear"`
	LoanAmount             string `json:"loanAmount"`
	Creditor               string `json:"creditor"`
	Debtor                 string `json:"debtor"`
	Description            string `json:"description"`
	Token                  string `json:"token"`
	ImpairmentGracePeriod  int64  `json:"impairmentGracePeriod"`
	ExpiresAt              int64  `json:"expiresAt"`
	CallbackContract       string `json:"callbackContract,omitempty"`
	CallbackSelector       string `json:"callbackSelector,omitempty"`
}

type offerMetadata struct {
	TokenURI      string `json:"tokenURI"`
	AttachmentURI string `json:"attachmentURI"`
}

type offerRequest struct {
	Params   offerParams    `json:"params"`
	Metadata *offerMetadata `json:"metadata,omitempty"`
}

func newOfferCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offer",
		Short: "Create, inspect, accept and reject loan offers",
	}
	cmd.AddCommand(
		newOfferCreateCmd(a),
		newOfferAcceptCmd(a),
		newAcceptBatchCmd(a),
		&cobra.Command{
			Use:   "reject <offer-id>",
			Short: "Withdraw an offer you made",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return runSigned(cmd, a, fmt.Sprintf("/v1/offers/%d/reject", id), struct{}{})
			},
		},
		&cobra.Command{
			Use:   "get <offer-id>",
			Short: "Show an offer and its metadata",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return runView(a, fmt.Sprintf("/v1/offers/%d", id))(cmd, args)
			},
		},
		&cobra.Command{
			Use:   "count",
			Short: "Show how many offer ids have been issued",
			Args:  cobra.NoArgs,
			RunE:  runView(a, "/v1/offers/count"),
		},
	)
	return cmd
}

func newOfferCreateCmd(a *app) *cobra.Command {
	var p offerParams
	var meta offerMetadata
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Offer a loan to a counterparty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := offerRequest{Params: p}
			if meta.TokenURI != "" || meta.AttachmentURI != "" {
				req.Metadata = &meta
			}
			return runSigned(cmd, a, "/v1/offers", req)
		},
	}
	f := cmd.Flags()
	f.Int64Var(&p.TermLength, "term", 0, "loan term in seconds")
	f.Uint16Var(&p.InterestRateBps, "rate-bps", 0, "annual interest rate in basis points")
	f.Uint16Var(&p.NumberOfPeriodsPerYear, "periods", 0, "compounding periods per year, 0 for simple interest")
	f.StringVar(&p.LoanAmount, "amount", "", "principal in token base units")
	f.StringVar(&p.Creditor, "creditor", "", "creditor address")
	f.StringVar(&p.Debtor, "debtor", "", "debtor address")
	f.StringVar(&p.Description, "description", "", "free-form loan description")
	f.StringVar(&p.Token, "token", "", "token address lent")
	f.Int64Var(&p.ImpairmentGracePeriod, "grace", 0, "seconds after the due date before the loan may be impaired")
	f.Int64Var(&p.ExpiresAt, "expires-at", 0, "unix time the offer lapses, 0 for never")
	f.StringVar(&p.CallbackContract, "callback-contract", "", "contract notified on acceptance")
	f.StringVar(&p.CallbackSelector, "callback-selector", "", "4 byte selector invoked on acceptance")
	f.StringVar(&meta.TokenURI, "token-uri", "", "claim token URI")
	f.StringVar(&meta.AttachmentURI, "attachment-uri", "", "claim attachment URI")
	for _, name := range []string{"term", "amount", "creditor", "debtor", "token"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newOfferAcceptCmd(a *app) *cobra.Command {
	var value, receiver string
	cmd := &cobra.Command{
		Use:   "accept <offer-id>",
		Short: "Accept an offer made to you",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			body := map[string]any{"value": value}
			if receiver != "" {
				body["receiver"] = receiver
			}
			return runSigned(cmd, a, fmt.Sprintf("/v1/offers/%d/accept", id), body)
		},
	}
	cmd.Flags().StringVar(&value, "value", "0", "native value attached, must equal the required core fee")
	cmd.Flags().StringVar(&receiver, "receiver", "", "address receiving the loan funds when the debtor accepts")
	return cmd
}

func newAcceptBatchCmd(a *app) *cobra.Command {
	var value string
	cmd := &cobra.Command{
		Use:   "accept-batch <offer-id>...",
		Short: "Accept several offers in one transaction",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]uint64, 0, len(args))
			for _, arg := range args {
				id, err := parseID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return runSigned(cmd, a, "/v1/offers/accept-batch", map[string]any{"offerIds": ids, "value": value})
		},
	}
	cmd.Flags().StringVar(&value, "value", "0", "native value attached, the sum of every core fee")
	return cmd
}

func newBatchCmd(a *app) *cobra.Command {
	var file, value string
	var revert bool
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Submit a batch of lending calls read from a JSON file",
		Long:  "batch reads a JSON array of calls, each with a method and its arguments, and submits them as one batch.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var calls []json.RawMessage
			if err := json.Unmarshal(raw, &calls); err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			return runSigned(cmd, a, "/v1/batch", map[string]any{
				"calls":        calls,
				"revertOnFail": revert,
				"value":        value,
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON file holding the calls")
	cmd.Flags().StringVar(&value, "value", "0", "native value attached, the sum of the per-call values")
	cmd.Flags().BoolVar(&revert, "revert-on-fail", true, "abort the whole batch on the first failing call")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
