package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"fitspo-feed/feed"

	"github.com/spf13/cobra"
)

const maxHotPageSize = 100

func newHotCmd(load appLoader) *cobra.Command {
	var (
		size  int
		page  string
		asOfS string
	)
	cmd := &cobra.Command{
		Use:   "hot",
		Short: "Print a page of the hot feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			if size < 1 || size > maxHotPageSize {
				return fmt.Errorf("%w: --size must be between 1 and %d", feed.ErrInvalidArgument, maxHotPageSize)
			}
			asOf, err := parseAsOf(asOfS)
			if err != nil {
				return err
			}
			cursor, err := feed.ParseCursor(page)
			if err != nil {
				return err
			}

			app, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			result, err := app.Hot.FetchHotPage(cmd.Context(), cursor, size, asOf)
			if err != nil {
				return err
			}
			return printHotPage(cmd.OutOrStdout(), result, app.Hot.Scorer())
		},
	}
	cmd.Flags().IntVar(&size, "size", 20, "number of posts per page")
	cmd.Flags().StringVar(&page, "page", "", "cursor printed by a previous call")
	cmd.Flags().StringVar(&asOfS, "as-of", "", "RFC 3339 time whose day is ranked (default now)")
	return cmd
}

func printHotPage(w io.Writer, page feed.FeedPage, scorer feed.Scorer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tPOST\tAUTHOR\tSCORE\tCREATED")
	for i, post := range page.Posts {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", i+1, post.ID, post.AuthorID, scorer(post), post.CreatedAt.Format(time.RFC3339))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if page.Approximate {
		fmt.Fprintln(w, "(approximate: ordered by recency)")
	}
	if next := page.Cursor.Encode(); next != "" {
		fmt.Fprintf(w, "next page: %s\n", next)
	}
	return nil
}

func parseAsOf(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--as-of: %w", err)
	}
	return t, nil
}
