package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/raphaelgruber/carechat/internal/chat"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	chatPlain bool
	chatWait  time.Duration
)

var chatCmd = &cobra.Command{
	Use:   "chat <subject-id>",
	Short: "Open a conversation about a subject",
	Long: `Open an interactive conversation about a subject.

The log is refreshed in the background, so assistant replies appear as the
server produces them. When stdin is not a terminal, each input line is sent
as one message and new messages are printed as they arrive.

Examples:
  carechat chat 42
  carechat chat 42 --server http://care.example:8585/query
  echo "What does she like for breakfast?" | carechat chat 42`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "line mode even on a terminal")
	chatCmd.Flags().DurationVar(&chatWait, "wait", 30*time.Second, "line mode: how long to wait for a reply after the last line")
}

func runChat(cmd *cobra.Command, args []string) error {
	subjectID := args[0]

	var err error
	if chatPlain || !term.IsTerminal(int(os.Stdin.Fd())) {
		err = runLineChat(cmd.Context(), newController, subjectID, os.Stdin, os.Stdout, chatWait)
	} else {
		fwd := &programForwarder{}
		err = runChatUI(newController(fwd.forward), subjectID, fwd)
	}

	reportSession(os.Stderr)
	return err
}

// reportSession logs the session's request timings and, with --verbose,
// prints them to w.
func reportSession(w io.Writer) {
	snap := sessionMetrics.Snapshot()
	logger.Info("chat session finished",
		"initialize", opCount(snap.ChatInitialize),
		"sync", opCount(snap.ChatSync),
		"send", opCount(snap.ChatSend),
	)
	if verbose {
		writeSessionStats(w, snap)
	}
}

// newController builds a controller against the configured server.
func newController(onUpdate func(chat.Snapshot)) *chat.Controller {
	return chat.NewController(gqlClient, gqlClient,
		chat.WithPollInterval(cfg.PollInterval),
		chat.WithLogger(logger),
		chat.WithMetrics(sessionMetrics),
		chat.WithOnUpdate(onUpdate),
	)
}

// linePrinter writes each message once, in log order. Nothing is printed
// until start is called.
type linePrinter struct {
	mu      sync.Mutex
	out     io.Writer
	live    bool
	printed map[string]bool
}

func newLinePrinter(out io.Writer) *linePrinter {
	return &linePrinter{out: out, printed: make(map[string]bool)}
}

// skip marks msgs as already shown.
func (p *linePrinter) skip(msgs []chat.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		p.printed[m.ID] = true
	}
}

// start enables printing and prints s.
func (p *linePrinter) start(s chat.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.live = true
	p.printLocked(s)
}

func (p *linePrinter) print(s chat.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.live {
		p.printLocked(s)
	}
}

func (p *linePrinter) printLocked(s chat.Snapshot) {
	for _, m := range s.Messages {
		if p.printed[m.ID] {
			continue
		}
		p.printed[m.ID] = true
		fmt.Fprintln(p.out, formatMessage(m))
	}
}

// runLineChat sends one message per input line until in is exhausted, then
// waits up to wait for the assistant to answer the last message.
func runLineChat(ctx context.Context, build func(func(chat.Snapshot)) *chat.Controller, subjectID string, in io.Reader, out io.Writer, wait time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	printer := newLinePrinter(out)
	ctrl := build(printer.print)
	defer ctrl.Teardown()

	snap, err := ctrl.Initialize(ctx, subjectID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return fmt.Errorf("subject not found: %s", subjectID)
		}
		return fmt.Errorf("%s: %w", loadFailedNotice, err)
	}
	if snap.Subject != nil {
		fmt.Fprintf(out, "Chatting about %s\n", snap.Subject.Name)
	}
	printer.start(snap)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := ctrl.Send(ctx, scanner.Text()); err != nil {
			if errors.Is(err, chat.ErrValidation) {
				continue
			}
			fmt.Fprintln(out, sendFailedNotice)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	awaitReply(ctx, ctrl, wait)
	printer.print(ctrl.Snapshot())
	return nil
}

// awaitReply blocks until the newest message is from the assistant, wait
// elapses or ctx is done.
func awaitReply(ctx context.Context, ctrl *chat.Controller, wait time.Duration) {
	if wait <= 0 {
		return
	}
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		msgs := ctrl.Snapshot().Messages
		if len(msgs) == 0 || msgs[len(msgs)-1].Role == chat.RoleAssistant {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-tick.C:
		}
	}
}
