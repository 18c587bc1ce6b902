package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xueqianLu/contestpay/internal/ledger"
	"github.com/xueqianLu/contestpay/internal/payment"
)

var (
	stakeContest string
	stakeYes     bool
)

var stakeCmd = &cobra.Command{
	Use:   "stake <amount>",
	Short: "Stake tokens into the staking vault",
	Long: `Moves amount of the stake token from the wallet to the staking vault.
The amount is given in whole tokens, e.g. 1.5.

Examples:
  contestpay stake 25 --contest 42`,
	Args: cobra.ExactArgs(1),
	RunE: runStake,
}

func init() {
	rootCmd.AddCommand(stakeCmd)
	stakeCmd.Flags().StringVar(&stakeContest, "contest", "", "contest id recorded in the memo")
	stakeCmd.Flags().BoolVarP(&stakeYes, "yes", "y", false, "skip the confirmation prompt")
}

func runStake(cmd *cobra.Command, args []string) error {
	tokens := current.cfg.Tokens
	if tokens.StakeMint == "" || tokens.StakeVault == "" {
		return fmt.Errorf("tokens.stake_mint and tokens.stake_vault must be configured")
	}
	amount, err := ledger.ParseAmount(args[0], tokens.StakeDecimals)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", args[0], err)
	}

	if !stakeYes {
		if err := confirm(fmt.Sprintf("Stake %s tokens", ledger.FormatAmount(amount, tokens.StakeDecimals))); err != nil {
			return err
		}
	}

	fmt.Println("Submitting stake...")
	out := <-current.orchestrator.StakeAsync(cmd.Context(), payment.StakeRequest{
		Amount:    amount,
		ContestID: stakeContest,
	})
	return report(out, tokens.StakeDecimals)
}
