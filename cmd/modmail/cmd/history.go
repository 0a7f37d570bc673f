package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/solatis/modmail/internal/core/db"
	"github.com/solatis/modmail/internal/types"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List rule actions recorded in the journal",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().String("subreddit", "", "only this subreddit")
	historyCmd.Flags().String("state", "", "only this mailbox state")
	historyCmd.Flags().String("conversation", "", "only this conversation ID")
	historyCmd.Flags().Duration("since", 0, "only entries newer than this (e.g. 24h)")
	historyCmd.Flags().Int("limit", 50, "maximum number of entries")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	filter := db.Filter{}
	filter.Subreddit, _ = flags.GetString("subreddit")
	filter.ConversationID, _ = flags.GetString("conversation")
	filter.Limit, _ = flags.GetInt("limit")

	if name, _ := flags.GetString("state"); name != "" {
		state, err := types.ParseMailboxState(name)
		if err != nil {
			return err
		}
		filter.State = state
	}
	if since, _ := flags.GetDuration("since"); since > 0 {
		filter.Since = time.Now().Add(-since)
	}

	database, journal, err := openJournal(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	return printHistory(ctx, cmd.OutOrStdout(), journal, filter)
}

func printHistory(ctx context.Context, w io.Writer, journal *db.Journal, filter db.Filter) error {
	entries, err := journal.List(ctx, filter)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EXECUTED\tSUBREDDIT\tSTATE\tCONVERSATION\tRULE\tACTIONS\tREVISION")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			e.ExecutedAt.Format(time.RFC3339),
			e.Subreddit,
			e.State,
			e.ConversationID,
			e.RuleIndex+1,
			strings.Join(e.Actions, ", "),
			e.ConfigRevision,
		)
	}
	return tw.Flush()
}
