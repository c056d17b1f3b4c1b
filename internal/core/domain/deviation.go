package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Severity grades the impact of a deviation.
type Severity string

// Deviation severities.
const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"

	// SeverityUnknown marks an analysis whose severity could not be read.
	SeverityUnknown Severity = "unknown"
)

// IsValid returns true if the severity is recognised.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityMajor, SeverityMinor:
		return true
	default:
		return false
	}
}

// NeedsAttention reports whether deviations of this severity are raised as alerts.
func (s Severity) NeedsAttention() bool {
	return s == SeverityCritical || s == SeverityMajor
}

// RiskAssessment grades the impact of a deviation on each concern.
type RiskAssessment struct {
	ProductQualityImpact string `json:"product_quality_impact"`
	PatientSafetyImpact  string `json:"patient_safety_impact"`
	RegulatoryImpact     string `json:"regulatory_impact"`
	BusinessImpact       string `json:"business_impact"`
}

// TrainingImplications describes retraining needs arising from a deviation.
type TrainingImplications struct {
	NeedsRetraining bool     `json:"needs_retraining"`
	AffectedRoles   []string `json:"affected_roles"`
	TrainingUrgency string   `json:"training_urgency"`
}

// DeviationAnalysis is the structured assessment the model returns for an incident.
type DeviationAnalysis struct {
	IsDeviation               bool                 `json:"is_deviation"`
	DeviationType             string               `json:"deviation_type"`
	SeverityLevel             Severity             `json:"severity_level"`
	DeviationCategory         string               `json:"deviation_category"`
	StageOfOccurrence         string               `json:"stage_of_occurrence"`
	RiskAssessment            RiskAssessment       `json:"risk_assessment"`
	ImmediateActions          []string             `json:"immediate_actions"`
	InvestigationRequirements []string             `json:"investigation_requirements"`
	RootCauseCategories       []string             `json:"root_cause_categories"`
	TrainingImplications      TrainingImplications `json:"training_implications"`
	RegulatoryReferences      []string             `json:"regulatory_references"`
	ConfidenceScore           float64              `json:"confidence_score"`
}

// DeviationRecord is a persisted deviation analysis.
type DeviationRecord struct {
	ID          string
	Description string
	Severity    Severity
	Category    string
	OccurredAt  time.Time
	Analysis    DeviationAnalysis

	// Citations lists the procedure passages the analysis was grounded in.
	Citations []Citation
}

// CategoryCount pairs a category with its number of occurrences.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// TrendReport aggregates deviation records over a time window.
type TrendReport struct {
	Since         time.Time        `json:"since"`
	Until         time.Time        `json:"until"`
	Total         int              `json:"total"`
	BySeverity    map[Severity]int `json:"by_severity"`
	ByCategory    map[string]int   `json:"by_category"`
	TopCategories []CategoryCount  `json:"top_categories"`
	RootCauses    map[string]int   `json:"root_causes"`

	// NeedsRetraining counts records whose analysis asked for retraining.
	NeedsRetraining int `json:"needs_retraining"`

	// ComplianceScore is 100 minus a penalty per deviation, clamped to [0, 100].
	ComplianceScore float64 `json:"compliance_score"`
}

// Penalties subtracted from the compliance score per deviation.
const (
	criticalPenalty = 10
	majorPenalty    = 5
	minorPenalty    = 2
)

// ComplianceScore weighs deviations by severity. Deviations of unknown
// severity count as minor.
func ComplianceScore(bySeverity map[Severity]int) float64 {
	penalty := 0
	for sev, n := range bySeverity {
		switch sev {
		case SeverityCritical:
			penalty += n * criticalPenalty
		case SeverityMajor:
			penalty += n * majorPenalty
		default:
			penalty += n * minorPenalty
		}
	}
	score := 100 - penalty
	if score < 0 {
		score = 0
	}
	return float64(score)
}

// RankCategories returns the categories ordered by descending count, then name,
// limited to n entries. A non-positive n returns all of them.
func RankCategories(counts map[string]int, n int) []CategoryCount {
	ranked := make([]CategoryCount, 0, len(counts))
	for category, count := range counts {
		ranked = append(ranked, CategoryCount{Category: category, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Category < ranked[j].Category
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Defaults for a deviation entered without a severity or category.
const (
	DefaultEntrySeverity = SeverityMajor
	DefaultEntryCategory = "process"
)

// DeviationEntry is a deviation reported by a person who already knows its
// severity and category, so no model is consulted.
type DeviationEntry struct {
	Incident string
	Severity Severity
	Category string
}

// Normalize trims the entry and fills the default severity and category.
// An unrecognised severity is an ErrInvalidInput.
func (e DeviationEntry) Normalize() (DeviationEntry, error) {
	e.Incident = strings.TrimSpace(e.Incident)
	e.Severity = Severity(strings.ToLower(strings.TrimSpace(string(e.Severity))))
	e.Category = strings.ToLower(strings.TrimSpace(e.Category))
	if e.Severity == "" {
		e.Severity = DefaultEntrySeverity
	}
	if e.Category == "" {
		e.Category = DefaultEntryCategory
	}
	if e.Incident == "" {
		return e, fmt.Errorf("empty incident: %w", ErrInvalidInput)
	}
	if !e.Severity.IsValid() {
		return e, fmt.Errorf("severity %q: %w", e.Severity, ErrInvalidInput)
	}
	return e, nil
}

// StructuredAnalysis builds the standard analysis for a manually entered
// deviation. Risk and training urgency follow from the severity.
func StructuredAnalysis(e DeviationEntry) DeviationAnalysis {
	serious := e.Severity.NeedsAttention()

	risk := RiskAssessment{
		ProductQualityImpact: "medium",
		PatientSafetyImpact:  "low",
		RegulatoryImpact:     "medium",
		BusinessImpact:       "medium",
	}
	if serious {
		risk.ProductQualityImpact = "high"
		risk.RegulatoryImpact = "high"
	}
	if e.Severity == SeverityCritical {
		risk.PatientSafetyImpact = "medium"
	}

	urgency := "within_week"
	if e.Severity == SeverityCritical {
		urgency = "immediate"
	}

	return DeviationAnalysis{
		IsDeviation:       true,
		DeviationType:     "unplanned",
		SeverityLevel:     e.Severity,
		DeviationCategory: e.Category,
		StageOfOccurrence: "manufacturing",
		RiskAssessment:    risk,
		ImmediateActions: []string{
			"Investigate root cause",
			"Document incident",
			"Notify relevant departments",
			"Quarantine affected materials if applicable",
		},
		InvestigationRequirements: []string{
			"Root cause analysis using 5 Whys methodology",
			"Review relevant documentation",
			"Interview involved personnel",
		},
		TrainingImplications: TrainingImplications{
			NeedsRetraining: true,
			AffectedRoles:   []string{"operators", "supervisors", "quality_personnel"},
			TrainingUrgency: urgency,
		},
	}
}

// DeviationAlert flags a recorded deviation that needs immediate attention.
type DeviationAlert struct {
	DeviationID      string    `json:"deviation_id"`
	Severity         Severity  `json:"severity"`
	Category         string    `json:"category"`
	Summary          string    `json:"summary"`
	ImmediateActions []string  `json:"immediate_actions"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// ScoredDeviation is a recorded deviation recalled for a query.
type ScoredDeviation struct {
	Record DeviationRecord `json:"record"`
	Score  float64         `json:"score"`
}

// RetrainingPlan holds model-written retraining suggestions and what they
// were grounded on.
type RetrainingPlan struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	Since       time.Time `json:"since"`

	// DeviationIDs lists the recorded deviations given to the model.
	DeviationIDs  []string   `json:"deviation_ids"`
	AffectedRoles []string   `json:"affected_roles"`
	Suggestions   string     `json:"suggestions"`
	Citations     []Citation `json:"citations"`
}
