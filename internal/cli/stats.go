package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/raphaelgruber/carechat/internal/client"
	"github.com/raphaelgruber/carechat/internal/metrics"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server runtime statistics",
	Long: `Show in-memory runtime statistics of the server.

Statistics reset when the server restarts.

Examples:
  carechat stats`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := gqlClient.GetServerStats(ctx)
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}

	fmt.Printf("Server: %s\n", gqlClient.Endpoint())
	fmt.Printf("Uptime: %s\n\n", (time.Duration(stats.UptimeSeconds) * time.Second).String())

	printOperation("GraphQL requests", stats.GraphQL)
	printOperation("Database queries", stats.DBQuery)
	printOperation("LLM generations", stats.LLMGenerate)
	printOperation("Responder jobs", stats.ResponderJob)
	return nil
}

func printOperation(label string, op *client.OperationStats) {
	if op == nil || op.Count == 0 {
		fmt.Printf("%-18s -\n", label+":")
		return
	}

	fmt.Printf("%-18s %d calls, %d failed, avg %.1fms (min %dms, max %dms)\n",
		label+":", op.Count, op.Failures, op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
	if op.TotalInputTokens != nil && op.TotalOutputTokens != nil {
		fmt.Printf("%-18s %d in, %d out\n", "  tokens:", *op.TotalInputTokens, *op.TotalOutputTokens)
	}
}

// writeSessionStats prints the chat controller's timings for this process.
func writeSessionStats(w io.Writer, s metrics.Snapshot) {
	fmt.Fprintln(w, "Session:")
	for _, row := range []struct {
		label string
		op    *metrics.OperationSnapshot
	}{
		{"initialize", s.ChatInitialize},
		{"sync", s.ChatSync},
		{"send", s.ChatSend},
	} {
		if row.op == nil {
			fmt.Fprintf(w, "  %-12s -\n", row.label+":")
			continue
		}
		fmt.Fprintf(w, "  %-12s %d calls, %d failed, avg %.1fms (max %dms)\n",
			row.label+":", row.op.Count, row.op.Failures, row.op.AvgTimeMs, row.op.MaxTimeMs)
	}
}

func opCount(op *metrics.OperationSnapshot) int64 {
	if op == nil {
		return 0
	}
	return op.Count
}
