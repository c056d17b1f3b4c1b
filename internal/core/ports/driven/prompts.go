package driven

// PromptStore provides access to generation prompt templates.
// Implementations may load prompts from files or embed them in the binary.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// Missing user files fall back to built-in defaults.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	Reload()
}

// Well-known prompt names. Templates are Go fmt strings.
const (
	// PromptAnswer answers a question from procedure excerpts.
	// Placeholders: %s (numbered context), %s (question).
	PromptAnswer = "answer"

	// PromptDeviationAnalysis requests a JSON deviation analysis.
	// Placeholders: %s (numbered context), %s (incident description).
	PromptDeviationAnalysis = "deviation_analysis"

	// PromptRetraining requests retraining program suggestions.
	// Placeholders: %s (numbered context), %s (recorded deviations).
	PromptRetraining = "retraining"
)
