package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/carechat/internal/chat"
	"github.com/spf13/cobra"
)

var sendWait time.Duration

var sendCmd = &cobra.Command{
	Use:   "send <subject-id> <message...>",
	Short: "Send one message and print the reply",
	Long: `Send a single caregiver message about a subject.

The conversation is opened first, so a greeting is seeded if the log is
empty. With --wait, the command waits for the assistant's reply.

Examples:
  carechat send 42 "Does she take sugar in her tea?"
  carechat send 42 "Any allergies?" --wait 1m
  carechat send 42 "Noted, thanks" --wait 0`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().DurationVar(&sendWait, "wait", 30*time.Second, "how long to wait for the reply (0 = don't wait)")
}

func runSend(cmd *cobra.Command, args []string) error {
	subjectID := args[0]
	text := strings.Join(args[1:], " ")

	printer := newLinePrinter(cmd.OutOrStdout())
	ctrl := newController(printer.print)
	defer ctrl.Teardown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snap, err := ctrl.Initialize(ctx, subjectID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return fmt.Errorf("subject not found: %s", subjectID)
		}
		return fmt.Errorf("%s: %w", loadFailedNotice, err)
	}
	// Only what happens from here on is printed.
	printer.skip(snap.Messages)
	printer.start(snap)

	if err := ctrl.Send(ctx, text); err != nil {
		return fmt.Errorf("%s: %w", sendFailedNotice, err)
	}

	awaitReply(context.Background(), ctrl, sendWait)
	printer.print(ctrl.Snapshot())
	reportSession(cmd.ErrOrStderr())
	return nil
}
