// Package cli provides the command-line interface for carechat.
package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/raphaelgruber/carechat/internal/client"
	"github.com/raphaelgruber/carechat/internal/config"
	"github.com/raphaelgruber/carechat/internal/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	// Global config, logger and GraphQL client
	cfg       config.Config
	logger    *slog.Logger
	logClose  func() error
	gqlClient *client.Client

	// sessionMetrics times the chat controller's calls in this process.
	sessionMetrics *metrics.Collector
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "carechat",
	Short: "Caregiver chat client",
	Long: `carechat talks to a carechat server on behalf of a caregiver.

Open a conversation about a subject, send questions, and receive the
assistant's replies as they arrive.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		if serverURL != "" {
			cfg.ServerURL = serverURL
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}

		logger, logClose = newLogger(cfg, verbose && cmd.Name() != chatCmd.Name())
		gqlClient = client.New(cfg.ServerURL, cfg.ClientTimeout)
		sessionMetrics = metrics.NewCollector()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logClose != nil {
			_ = logClose()
		}
	},
}

// newLogger writes JSON to the configured log file and, when toStderr is set,
// text to stderr. The chat TUI owns the terminal, so it never logs to stderr.
func newLogger(cfg config.Config, toStderr bool) (*slog.Logger, func() error) {
	var stderr io.Writer = io.Discard
	if toStderr {
		stderr = os.Stderr
	}

	file, err := config.OpenLogFile(cfg.LogFile)
	if err != nil {
		return config.SetupLoggerWithWriters(stderr, io.Discard, cfg.LogLevel), func() error { return nil }
	}
	return config.SetupLoggerWithWriters(stderr, file, cfg.LogLevel), file.Close
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "GraphQL endpoint (default $CARECHAT_SERVER_URL)")

	// Add subcommands
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(subjectsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(statsCmd)
}
