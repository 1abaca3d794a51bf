package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newRankCmd(load appLoader) *cobra.Command {
	var asOfS string
	cmd := &cobra.Command{
		Use:   "rank <postId>",
		Short: "Print a post's rank in the day's hot feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := parseAsOf(asOfS)
			if err != nil {
				return err
			}
			app, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			if err := app.Ranks.RefreshIfNeeded(cmd.Context(), asOf); err != nil {
				return err
			}
			day, _ := app.Ranks.LastRefresh()
			if rank, ok := app.Ranks.Rank(args[0]); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is #%d of %d on %s\n", args[0], rank, app.Ranks.Len(), day.Format("2006-01-02"))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is not ranked on %s\n", args[0], day.Format("2006-01-02"))
			return nil
		},
	}
	cmd.Flags().StringVar(&asOfS, "as-of", "", "RFC 3339 time whose day is ranked (default now)")
	return cmd
}
