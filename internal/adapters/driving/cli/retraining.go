package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sopctx/internal/core/domain"
)

var (
	retrainingDays int
	retrainingJSON bool

	recallDays int
	recallK    int
	recallJSON bool
)

var retrainingCmd = &cobra.Command{
	Use:   "retraining",
	Short: "Suggest retraining from recorded deviations",
	Long: `Asks the language model for retraining programs grounded in the
deviations recorded in the last --days days that call for retraining or
read as training related, and in the procedures that cover them.`,
	Args:        cobra.NoArgs,
	Annotations: pipeline(),
	RunE:        runRetraining,
}

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Find recorded deviations similar to a description",
	Long: `Embeds the query and the recorded deviations from the last --days days
and lists the closest by similarity.

  sopctx recall "glove change skipped in grade A"`,
	Args:        cobra.ExactArgs(1),
	Annotations: pipeline(),
	RunE:        runRecall,
}

func init() {
	retrainingCmd.Flags().IntVar(&retrainingDays, "days", 30, "window length in days")
	retrainingCmd.Flags().BoolVar(&retrainingJSON, "json", false, "output the plan as JSON")
	rootCmd.AddCommand(retrainingCmd)

	recallCmd.Flags().IntVar(&recallDays, "days", 90, "window length in days")
	recallCmd.Flags().IntVarP(&recallK, "k", "k", 3, "maximum deviations to return")
	recallCmd.Flags().BoolVar(&recallJSON, "json", false, "output the matches as JSON")
	rootCmd.AddCommand(recallCmd)
}

func runRetraining(cmd *cobra.Command, _ []string) error {
	if retrainingService == nil {
		return errors.New("retraining service not configured")
	}
	if retrainingDays <= 0 {
		return errors.New("--days must be positive")
	}

	plan, err := retrainingService.Suggest(cmd.Context(), time.Duration(retrainingDays)*24*time.Hour)
	if err != nil {
		return fmt.Errorf("failed to suggest retraining: %w", err)
	}

	if retrainingJSON {
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal plan: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("Retraining plan %s\n", plan.ID)
	cmd.Printf("Deviations since %s: %d\n", plan.Since.Format("2006-01-02"), len(plan.DeviationIDs))
	if len(plan.AffectedRoles) > 0 {
		cmd.Printf("Affected roles: %s\n", strings.Join(plan.AffectedRoles, ", "))
	}
	cmd.Println()
	cmd.Println(plan.Suggestions)
	cmd.Println()
	outputCitations(cmd, plan.Citations)
	return nil
}

func runRecall(cmd *cobra.Command, args []string) error {
	if retrainingService == nil {
		return errors.New("retraining service not configured")
	}
	if recallDays <= 0 {
		return errors.New("--days must be positive")
	}
	if recallK <= 0 || recallK > domain.MaxRetrievalK {
		return fmt.Errorf("-k must be between 1 and %d", domain.MaxRetrievalK)
	}

	matches, err := retrainingService.Recall(cmd.Context(), args[0], time.Duration(recallDays)*24*time.Hour, recallK)
	if err != nil {
		return fmt.Errorf("recall failed: %w", err)
	}

	if recallJSON {
		if matches == nil {
			matches = []domain.ScoredDeviation{}
		}
		data, err := json.MarshalIndent(matches, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal matches: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(matches) == 0 {
		cmd.Println("No similar deviations recorded.")
		return nil
	}
	for i, m := range matches {
		rec := m.Record
		cmd.Printf("%d. %.2f  [%s/%s] %s  %s\n", i+1, m.Score, rec.Severity, rec.Category,
			rec.OccurredAt.Format("2006-01-02"), rec.ID)
		cmd.Printf("   %s\n", rec.Description)
	}
	return nil
}
