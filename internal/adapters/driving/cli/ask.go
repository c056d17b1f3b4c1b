package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sopctx/internal/core/domain"
)

var (
	askK         int
	askDocuments []string
	askJSON      bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the procedures",
	Long: `Retrieves the passages relevant to the question and asks the language
model to answer using only them. When no procedure covers the question
the model is not called and the answer says the information is not
available.

Requires an LLM: set llm.model (and llm.api_key for hosted endpoints).`,
	Args:        cobra.ExactArgs(1),
	Annotations: pipeline(),
	RunE:        runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askK, "k", "k", 0, "maximum number of passages (default from settings)")
	askCmd.Flags().StringSliceVarP(&askDocuments, "document", "d", nil, "restrict to these document IDs")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if answerService == nil {
		return errors.New("answer service not configured")
	}

	answer, err := answerService.Ask(cmd.Context(), args[0], domain.RetrievalOptions{
		K:           askK,
		DocumentIDs: askDocuments,
	})
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if askJSON {
		return outputAnswerJSON(cmd, answer)
	}

	if answer.Failure != nil {
		cmd.PrintErrf("Retrieval degraded: %v\n", answer.Failure)
	}
	cmd.Println(answer.Text)
	if answer.Sufficient {
		cmd.Println()
		outputCitations(cmd, answer.Citations)
	}
	return nil
}

func outputAnswerJSON(cmd *cobra.Command, answer *domain.Answer) error {
	out := struct {
		Query      string        `json:"query"`
		Answer     string        `json:"answer"`
		Sufficient bool          `json:"sufficient"`
		Citations  []passageJSON `json:"citations"`
		Failure    string        `json:"failure,omitempty"`
	}{
		Query:      answer.Query,
		Answer:     answer.Text,
		Sufficient: answer.Sufficient,
		Citations:  citationsJSON(answer.Citations),
	}
	if answer.Failure != nil {
		out.Failure = answer.Failure.Error()
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
