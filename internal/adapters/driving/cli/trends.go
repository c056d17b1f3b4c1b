package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sopctx/internal/core/domain"
)

var (
	trendsDays int
	trendsJSON bool
)

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Summarise recorded deviations",
	Long: `Aggregates the deviation analyses recorded in the last --days days:
counts by severity and category, recurring root causes, retraining needs
and a compliance score that starts at 100 and drops per deviation.`,
	Args:        cobra.NoArgs,
	Annotations: pipeline(),
	RunE:        runTrends,
}

func init() {
	trendsCmd.Flags().IntVar(&trendsDays, "days", 30, "window length in days")
	trendsCmd.Flags().BoolVar(&trendsJSON, "json", false, "output the report as JSON")
	rootCmd.AddCommand(trendsCmd)
}

func runTrends(cmd *cobra.Command, _ []string) error {
	if trendService == nil {
		return errors.New("trend service not configured")
	}
	if trendsDays <= 0 {
		return errors.New("--days must be positive")
	}

	report, err := trendService.Trends(cmd.Context(), time.Duration(trendsDays)*24*time.Hour)
	if err != nil {
		return fmt.Errorf("failed to compute trends: %w", err)
	}

	if trendsJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	outputTrends(cmd, report)
	return nil
}

func outputTrends(cmd *cobra.Command, report *domain.TrendReport) {
	cmd.Printf("Deviation trends %s to %s\n",
		report.Since.Format("2006-01-02"), report.Until.Format("2006-01-02"))
	cmd.Println()
	cmd.Printf("Total deviations: %d\n", report.Total)
	cmd.Printf("Compliance score: %.0f\n", report.ComplianceScore)
	cmd.Printf("Needs retraining: %d\n", report.NeedsRetraining)

	if report.Total == 0 {
		return
	}
	cmd.Println()

	cmd.Println("[Severity]")
	for _, sev := range []domain.Severity{domain.SeverityCritical, domain.SeverityMajor, domain.SeverityMinor, domain.SeverityUnknown} {
		if n := report.BySeverity[sev]; n > 0 {
			cmd.Printf("  %-9s %d\n", sev, n)
		}
	}
	cmd.Println()

	cmd.Println("[Top categories]")
	for _, c := range report.TopCategories {
		cmd.Printf("  %-24s %d\n", c.Category, c.Count)
	}

	if len(report.RootCauses) > 0 {
		cmd.Println()
		cmd.Println("[Root causes]")
		causes := make([]string, 0, len(report.RootCauses))
		for c := range report.RootCauses {
			causes = append(causes, c)
		}
		sort.Strings(causes)
		for _, c := range causes {
			cmd.Printf("  %-24s %d\n", c, report.RootCauses[c])
		}
	}
}
