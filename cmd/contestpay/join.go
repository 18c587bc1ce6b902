package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/xueqianLu/contestpay/internal/backend"
	"github.com/xueqianLu/contestpay/internal/ledger"
	"github.com/xueqianLu/contestpay/internal/payment"
)

var joinYes bool

var joinCmd = &cobra.Command{
	Use:   "join [contest-id]",
	Short: "Pay the entry fee of a contest",
	Long: `Pays the entry fee of a contest from the wallet to the contest escrow.

Without a contest id the open contests are offered for selection.

Examples:
  # Pick a contest interactively
  contestpay join

  # Join a known contest without confirmation
  contestpay join 42 --yes`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJoin,
}

func init() {
	rootCmd.AddCommand(joinCmd)
	joinCmd.Flags().BoolVarP(&joinYes, "yes", "y", false, "skip the confirmation prompt")
}

func runJoin(cmd *cobra.Command, args []string) error {
	if err := current.requireBackend(); err != nil {
		return err
	}
	ctx := cmd.Context()

	var contest backend.Contest
	if len(args) == 1 {
		c, err := current.backend.Contest(ctx, args[0])
		if err != nil {
			return err
		}
		contest = *c
		current.contests.Replace([]backend.Contest{contest})
	} else {
		contests, err := current.backend.Contests(ctx)
		if err != nil {
			return err
		}
		current.contests.Replace(contests)
		contest, err = selectContest(contests)
		if err != nil {
			return err
		}
	}
	current.contests.Select(contest.ID)

	if !joinYes {
		if err := confirm(fmt.Sprintf("Pay %s to join %q", ledger.FormatAmount(contest.EntryFee, ledger.NativeDecimals), contest.Title)); err != nil {
			return err
		}
	}

	fmt.Println("Submitting entry payment...")
	out := <-current.orchestrator.JoinAsync(ctx, payment.JoinRequest{
		ContestID: contest.ID,
		Escrow:    contest.Escrow,
		EntryFee:  contest.EntryFee,
	})
	return report(out, ledger.NativeDecimals)
}

func selectContest(contests []backend.Contest) (backend.Contest, error) {
	if len(contests) == 0 {
		return backend.Contest{}, fmt.Errorf("no contests available")
	}
	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "▸ {{ .Title | cyan }} ({{ .Status }})",
		Inactive: "  {{ .Title }} ({{ .Status }})",
		Selected: "✓ {{ .Title | green }}",
	}
	prompt := promptui.Select{
		Label:     "Select contest:",
		Items:     contests,
		Templates: templates,
		Size:      min(len(contests), 10),
	}
	index, _, err := prompt.Run()
	if err != nil {
		return backend.Contest{}, handleUserCancellation(err)
	}
	return contests[index], nil
}

func confirm(label string) error {
	prompt := promptui.Prompt{Label: label, IsConfirm: true}
	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return fmt.Errorf("cancelled")
		}
		return handleUserCancellation(err)
	}
	return nil
}

func handleUserCancellation(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		fmt.Fprintln(os.Stderr, "\n✗ Cancelled by user")
		return fmt.Errorf("user cancelled: %w", err)
	}
	return err
}

// report prints the outcome banner and converts failures to an error.
func report(out *payment.Outcome, decimals uint8) error {
	switch {
	case out.State == payment.Confirmed:
		color.Green("✓ Confirmed: %s", out.Signature)
	case out.Success:
		color.Green("✓ Already processed")
	case out.State == payment.AlreadyParticipating:
		color.Yellow("You have already joined this contest")
		return nil
	case out.State == payment.InsufficientBalance:
		color.Red("✗ Insufficient balance: need %s, have %s (short %s)",
			ledger.FormatAmount(out.Required, decimals),
			ledger.FormatAmount(out.Actual, decimals),
			ledger.FormatAmount(out.Shortfall, decimals))
	default:
		color.Red("✗ %s: %v", out.State, out.Err)
	}
	if !out.Success {
		return fmt.Errorf("payment failed in state %s", out.State)
	}
	return nil
}
