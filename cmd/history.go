package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/deploymenttheory/go-recipe-runner/pkg/tooling"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent installs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := tooling.History(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No installs recorded")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RECIPE\tVERSION\tSTATUS\tSTEPS\tSTARTED\tDURATION")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					e.Name, e.Version, e.Status, e.StepsRun,
					humanize.Time(e.StartedAt), e.Duration().Round(time.Millisecond))
			}
			return tw.Flush()
		},
	}

	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of installs to show")

	return historyCmd
}
