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
	alertsDays  int
	alertsLimit int
	alertsJSON  bool
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List recent critical and major deviations",
	Long: `Lists the critical and major deviations recorded in the last --days
days, critical first and newest first within a severity, with the
immediate actions recorded for each.`,
	Args:        cobra.NoArgs,
	Annotations: pipeline(),
	RunE:        runAlerts,
}

func init() {
	alertsCmd.Flags().IntVar(&alertsDays, "days", 7, "window length in days")
	alertsCmd.Flags().IntVar(&alertsLimit, "limit", 5, "maximum alerts to show")
	alertsCmd.Flags().BoolVar(&alertsJSON, "json", false, "output the alerts as JSON")
	rootCmd.AddCommand(alertsCmd)
}

func runAlerts(cmd *cobra.Command, _ []string) error {
	if trendService == nil {
		return errors.New("trend service not configured")
	}
	if alertsDays <= 0 {
		return errors.New("--days must be positive")
	}

	alerts, err := trendService.Alerts(cmd.Context(), time.Duration(alertsDays)*24*time.Hour, alertsLimit)
	if err != nil {
		return fmt.Errorf("failed to list alerts: %w", err)
	}

	if alertsJSON {
		if alerts == nil {
			alerts = []domain.DeviationAlert{}
		}
		data, err := json.MarshalIndent(alerts, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal alerts: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(alerts) == 0 {
		cmd.Printf("No critical or major deviations in the last %d days.\n", alertsDays)
		return nil
	}
	for _, a := range alerts {
		cmd.Printf("[%s] %s  %s  %s\n",
			strings.ToUpper(string(a.Severity)), a.OccurredAt.Format("2006-01-02 15:04"), a.Category, a.DeviationID)
		cmd.Printf("  %s\n", a.Summary)
		for _, action := range a.ImmediateActions {
			cmd.Printf("  - %s\n", action)
		}
		cmd.Println()
	}
	return nil
}
