package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xueqianLu/contestpay/internal/ledger"
	"golang.org/x/sync/errgroup"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the wallet's native and stake token balances",
	RunE:  runBalance,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func runBalance(cmd *cobra.Command, args []string) error {
	address := current.adapter.Address()
	mint := current.cfg.Tokens.StakeMint

	var native, token uint64
	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		var err error
		native, err = current.ledger.NativeBalance(ctx, address)
		return err
	})
	if mint != "" {
		g.Go(func() error {
			var err error
			token, err = current.ledger.TokenBalance(ctx, address, mint)
			if errors.Is(err, ledger.ErrAccountNotFound) {
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("Wallet: %s\n", color.CyanString(address))
	fmt.Printf("Native: %s\n", ledger.FormatAmount(native, ledger.NativeDecimals))
	if mint != "" {
		fmt.Printf("Stake token: %s\n", ledger.FormatAmount(token, current.cfg.Tokens.StakeDecimals))
	}
	return nil
}
