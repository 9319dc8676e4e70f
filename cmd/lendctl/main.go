package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"frendlend/cmd/internal/passphrase"
)

const passphraseEnv = "LENDCTL_PASSPHRASE"

// app carries the global flags shared by every subcommand.
type app struct {
	server   string
	keystore string
	account  string
	keyFile  string
	bearer   string
	timeout  time.Duration

	pass *passphrase.Source
}

func main() {
	if err := newRootCmd(&app{pass: passphrase.NewSource(passphraseEnv)}).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "lendctl",
		Short:         "Operate a lendingd node",
		Long:          "lendctl manages keys and genesis files and sends signed lending requests to a lendingd node.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.server, "server", envOr("LENDCTL_SERVER", "http://127.0.0.1:8650"), "lendingd base URL")
	flags.StringVar(&a.keystore, "keystore", envOr("LENDCTL_KEYSTORE", "keystore"), "keystore directory")
	flags.StringVar(&a.account, "account", os.Getenv("LENDCTL_ACCOUNT"), "signing account address in the keystore")
	flags.StringVar(&a.keyFile, "key-file", "", "keystore file of the signing key, overrides --account")
	flags.StringVar(&a.bearer, "bearer", os.Getenv("LENDCTL_BEARER"), "JWT presented to admin routes")
	flags.DurationVar(&a.timeout, "timeout", 15*time.Second, "request timeout")

	root.AddCommand(
		newKeysCmd(a),
		newGenesisCmd(a),
		newOfferCmd(a),
		newBatchCmd(a),
		newLoanCmd(a),
		newFeesCmd(a),
		newAdminCmd(a),
		newIndexCmd(a),
	)
	return root
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
