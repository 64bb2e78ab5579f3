package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <subject-id>",
	Short: "Print a subject's conversation",
	Long: `Print the message log of a subject, oldest first.

Examples:
  carechat history 42
  carechat history 42 --limit 10`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "show only the newest n messages (0 = all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	msgs, err := gqlClient.ListMessages(ctx, args[0])
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	if len(msgs) == 0 {
		fmt.Println("No messages yet.")
		return nil
	}

	for _, m := range visibleMessages(msgs, historyLimit) {
		fmt.Println(formatMessage(m))
	}
	return nil
}
