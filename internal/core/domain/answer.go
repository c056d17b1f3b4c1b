package domain

// InsufficientInformation is the answer given when no procedure covers a question.
const InsufficientInformation = "This information is not available in the current procedures."

// GenerationTask selects the prompt used by the generation service.
type GenerationTask string

// Generation tasks.
const (
	// TaskAnswer answers a question grounded in the procedures.
	TaskAnswer GenerationTask = "answer"

	// TaskDeviationAnalysis produces a JSON deviation analysis of an incident.
	TaskDeviationAnalysis GenerationTask = "deviation_analysis"

	// TaskRetraining suggests retraining programs from recorded deviations.
	TaskRetraining GenerationTask = "retraining"
)

// GenerationRequest is the input to the generation service.
type GenerationRequest struct {
	Task    GenerationTask
	Query   string
	Context AssembledContext
}

// Answer is a generated response to a question.
type Answer struct {
	Query string
	Text  string

	// Sufficient is false when no relevant procedure was found.
	Sufficient bool

	Citations []Citation

	// Failure carries the degraded-retrieval cause, if any.
	Failure *RetrievalFailure
}
