package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"frendlend/config"
	"frendlend/crypto"
)

func newKeysCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage signing keys in the keystore",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "new",
		Short: "Generate a key and store it encrypted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.GeneratePrivateKey()
			if err != nil {
				return err
			}
			return storeKey(cmd, a, key)
		},
	}, &cobra.Command{
		Use:   "import <hex-private-key>",
		Short: "Encrypt an existing private key into the keystore",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.PrivateKeyFromHex(args[0])
			if err != nil {
				return err
			}
			return storeKey(cmd, a, key)
		},
	}, &cobra.Command{
		Use:   "list",
		Short: "List the accounts held in the keystore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			matches, err := filepath.Glob(filepath.Join(a.keystore, "*.json"))
			if err != nil {
				return err
			}
			for _, m := range matches {
				name := filepath.Base(m)
				fmt.Fprintf(cmd.OutOrStdout(), "0x%s\n", name[:len(name)-len(".json")])
			}
			return nil
		},
	})
	return cmd
}

func storeKey(cmd *cobra.Command, a *app, key *crypto.PrivateKey) error {
	pass, err := a.pass.Get()
	if err != nil {
		return err
	}
	addr := key.Address()
	path := filepath.Join(a.keystore, crypto.KeyFileName(addr))
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("keystore already holds %s", addr.Hex())
	}
	if err := crypto.SaveToKeystore(path, key, pass); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", addr.Hex(), path)
	return nil
}

func newGenesisCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genesis",
		Short: "Create and check genesis files",
	}

	var admin, out string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a genesis file naming the lending and claims admin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if admin == "" {
				admin = a.account
			}
			if _, err := crypto.ParseAddress(admin); err != nil {
				return fmt.Errorf("--admin: %w", err)
			}
			if _, err := os.Stat(out); err == nil && !force {
				return fmt.Errorf("%s exists; pass --force to overwrite", out)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := config.Persist(out, config.Default(admin)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	initCmd.Flags().StringVar(&admin, "admin", "", "admin address, defaults to --account")
	initCmd.Flags().StringVar(&out, "out", "genesis.toml", "output path")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd.AddCommand(initCmd, &cobra.Command{
		Use:   "validate <path>",
		Short: "Load and validate a genesis file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if _, err := g.Parse(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	})
	return cmd
}
