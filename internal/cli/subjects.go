package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/carechat/internal/client"
	"github.com/spf13/cobra"
)

var (
	subjectName    string
	subjectSummary string
)

var subjectsCmd = &cobra.Command{
	Use:   "subjects",
	Short: "List subjects",
	Long: `List all subjects known to the server.

Examples:
  carechat subjects
  carechat subjects add 42 --name "Jane Doe" --summary "Loves gardening"`,
	Args: cobra.NoArgs,
	RunE: runSubjectsList,
}

var subjectsAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Create or replace a subject",
	Long: `Create a subject, replacing any existing subject with the same id.

Examples:
  carechat subjects add 42 --name "Jane Doe"
  carechat subjects add 42 --name "Jane Doe" --summary "Prefers tea over coffee"`,
	Args: cobra.ExactArgs(1),
	RunE: runSubjectsAdd,
}

func init() {
	subjectsAddCmd.Flags().StringVar(&subjectName, "name", "", "display name (required)")
	subjectsAddCmd.Flags().StringVar(&subjectSummary, "summary", "", "profile summary")
	_ = subjectsAddCmd.MarkFlagRequired("name")

	subjectsCmd.AddCommand(subjectsAddCmd)
}

func runSubjectsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	subjects, err := gqlClient.ListSubjects(ctx)
	if err != nil {
		return fmt.Errorf("list subjects: %w", err)
	}

	if len(subjects) == 0 {
		fmt.Println("No subjects found.")
		return nil
	}

	fmt.Printf("Found %d subjects:\n\n", len(subjects))
	for _, s := range subjects {
		fmt.Printf("  %s  %s\n", s.ID, s.Name)
		if s.Summary != "" {
			fmt.Printf("      %s\n", truncate(s.Summary, 80))
		}
	}
	return nil
}

func runSubjectsAdd(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	input := client.CreateSubjectInput{
		ID:   strings.TrimSpace(args[0]),
		Name: strings.TrimSpace(subjectName),
	}
	if summary := strings.TrimSpace(subjectSummary); summary != "" {
		input.Summary = &summary
	}

	s, err := gqlClient.CreateSubject(ctx, input)
	if err != nil {
		return fmt.Errorf("create subject: %w", err)
	}

	fmt.Printf("Saved subject %s (%s)\n", s.ID, s.Name)
	return nil
}
