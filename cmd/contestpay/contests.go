package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xueqianLu/contestpay/internal/backend"
	"github.com/xueqianLu/contestpay/internal/ledger"
	"golang.org/x/sync/errgroup"
)

const participationWorkers = 4

var contestsCmd = &cobra.Command{
	Use:   "contests",
	Short: "List contests and whether the wallet has joined them",
	RunE:  runContests,
}

func init() {
	rootCmd.AddCommand(contestsCmd)
}

func runContests(cmd *cobra.Command, args []string) error {
	if err := current.requireBackend(); err != nil {
		return err
	}
	ctx := cmd.Context()

	ticket := current.contests.Ticket()
	contests, err := current.backend.Contests(ctx)
	if err != nil {
		return err
	}
	if !current.contests.ApplyContests(ticket, contests) {
		return fmt.Errorf("contest list changed while loading, try again")
	}

	joined := make([]bool, len(contests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(participationWorkers)
	for i, c := range contests {
		i, c := i, c
		g.Go(func() error {
			ok, err := current.backend.HasJoined(gctx, c.ID)
			if err != nil {
				return fmt.Errorf("participation for %s: %w", c.ID, err)
			}
			joined[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	printContests(contests, joined)
	return nil
}

func printContests(contests []backend.Contest, joined []bool) {
	if len(contests) == 0 {
		fmt.Println("No contests")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tENTRY FEE\tSTATUS\tJOINED")
	for i, c := range contests {
		mark := color.YellowString("no")
		if joined[i] {
			mark = color.GreenString("yes")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Title, ledger.FormatAmount(c.EntryFee, ledger.NativeDecimals), c.Status, mark)
	}
	tw.Flush()
}
