package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/sopctx/internal/core/domain"
)

var (
	analyzeJSON     bool
	analyzeSeverity string
	analyzeCategory string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [incident]",
	Short: "Analyse an incident for deviations from procedure",
	Long: `Retrieves the procedures relevant to an incident description and asks
the language model for a structured deviation analysis: severity,
category, risk, immediate actions, root causes and training needs.
The analysis is recorded for trend reporting.

With --severity or --category the deviation is recorded as entered,
with the standard actions and training needs for its severity, and no
language model is needed.

The incident is read from the argument, or from stdin when piped:

  sopctx analyze "Operator skipped the second glove change before filling"
  sopctx analyze --severity critical --category sterility "Filter integrity test skipped"
  cat incident.txt | sopctx analyze`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: pipeline(),
	RunE:        runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "output the record as JSON")
	analyzeCmd.Flags().StringVar(&analyzeSeverity, "severity", "", "record with this severity (critical, major, minor) instead of asking the model")
	analyzeCmd.Flags().StringVar(&analyzeCategory, "category", "", "record with this category instead of asking the model")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if analysisService == nil {
		return errors.New("analysis service not configured")
	}

	incident, err := incidentText(cmd, args)
	if err != nil {
		return err
	}

	var record *domain.DeviationRecord
	if cmd.Flags().Changed("severity") || cmd.Flags().Changed("category") {
		record, err = analysisService.Record(cmd.Context(), domain.DeviationEntry{
			Incident: incident,
			Severity: domain.Severity(analyzeSeverity),
			Category: analyzeCategory,
		})
	} else {
		record, err = analysisService.Analyze(cmd.Context(), incident)
	}
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if analyzeJSON {
		data, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal analysis: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	outputAnalysis(cmd, record)
	return nil
}

// incidentText takes the incident from the argument or from piped stdin.
func incidentText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", errors.New("describe the incident as an argument or pipe it on stdin")
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("reading incident: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", errors.New("incident description is empty")
	}
	return text, nil
}

func outputAnalysis(cmd *cobra.Command, record *domain.DeviationRecord) {
	a := record.Analysis

	cmd.Println("Deviation Analysis")
	cmd.Println("==================")
	cmd.Printf("Record:     %s\n", record.ID)
	cmd.Printf("Deviation:  %s\n", yesNo(a.IsDeviation))
	cmd.Printf("Severity:   %s\n", record.Severity)
	cmd.Printf("Category:   %s\n", record.Category)
	if a.DeviationType != "" {
		cmd.Printf("Type:       %s\n", a.DeviationType)
	}
	if a.StageOfOccurrence != "" {
		cmd.Printf("Stage:      %s\n", a.StageOfOccurrence)
	}
	cmd.Printf("Confidence: %.2f\n", a.ConfidenceScore)
	cmd.Println()

	cmd.Println("[Risk]")
	cmd.Printf("  Product quality: %s\n", orDash(a.RiskAssessment.ProductQualityImpact))
	cmd.Printf("  Patient safety:  %s\n", orDash(a.RiskAssessment.PatientSafetyImpact))
	cmd.Printf("  Regulatory:      %s\n", orDash(a.RiskAssessment.RegulatoryImpact))
	cmd.Printf("  Business:        %s\n", orDash(a.RiskAssessment.BusinessImpact))
	cmd.Println()

	printList(cmd, "Immediate actions", a.ImmediateActions)
	printList(cmd, "Investigation", a.InvestigationRequirements)
	printList(cmd, "Root causes", a.RootCauseCategories)
	printList(cmd, "Regulatory references", a.RegulatoryReferences)

	if a.TrainingImplications.NeedsRetraining {
		cmd.Printf("[Training] retraining needed (%s): %s\n\n",
			orDash(a.TrainingImplications.TrainingUrgency),
			strings.Join(a.TrainingImplications.AffectedRoles, ", "))
	}

	outputCitations(cmd, record.Citations)
}

func printList(cmd *cobra.Command, title string, items []string) {
	if len(items) == 0 {
		return
	}
	cmd.Printf("[%s]\n", title)
	for _, item := range items {
		cmd.Printf("  - %s\n", item)
	}
	cmd.Println()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
