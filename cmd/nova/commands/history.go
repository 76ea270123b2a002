package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/haivivi/nova/pkg/cli"
	"github.com/haivivi/nova/pkg/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Saved chat sessions",
	Long: `List, show and delete saved chat sessions.

Examples:
  nova history list
  nova history show ID -o json -q '.messages[].content'
  nova history delete ID`,
}

// sessionSummary is one row of history list.
type sessionSummary struct {
	ID       string `json:"id" yaml:"id"`
	Title    string `json:"title" yaml:"title"`
	Messages int    `json:"messages" yaml:"messages"`
	Created  string `json:"created" yaml:"created"`
}

// withHistory opens the history of the resolved context for fn.
func withHistory(cmd *cobra.Command, fn func(ctx context.Context, store *history.Store) error) error {
	cfg, cctx, err := loadContext()
	if err != nil {
		return err
	}
	store, db, err := openHistory(cfg, cctx)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, store)
}

var historyListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(cmd, func(ctx context.Context, store *history.Store) error {
			sessions, err := store.List(ctx)
			if err != nil {
				return err
			}
			rows := make([]sessionSummary, 0, len(sessions))
			for _, s := range sessions {
				rows = append(rows, sessionSummary{
					ID:       s.ID,
					Title:    s.Title,
					Messages: len(s.Messages),
					Created:  cli.FormatTimestamp(s.CreatedAt),
				})
			}
			return printResult(cmd, rows)
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session with its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(cmd, func(ctx context.Context, store *history.Store) error {
			sess, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return printResult(cmd, sess)
		})
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a session",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(cmd, func(ctx context.Context, store *history.Store) error {
			if err := store.Delete(ctx, args[0]); err != nil {
				return err
			}
			cli.PrintSuccess(cmd.OutOrStdout(), "Session %s deleted", args[0])
			return nil
		})
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd)
	rootCmd.AddCommand(historyCmd)
}
