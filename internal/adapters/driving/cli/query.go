package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sopctx/internal/core/domain"
)

var (
	queryK         int
	queryMinScore  float64
	queryPerDocCap int
	queryDocuments []string
	queryContext   bool
	queryJSON      bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Retrieve passages relevant to a question",
	Long: `Embeds the question and returns the most similar chunks, best first.
Passages scoring below the minimum score are dropped and at most
per-document-cap passages are taken from any one document.

With --context the passages are assembled into the bounded, cited context
that ask and analyze hand to the language model.`,
	Args:        cobra.ExactArgs(1),
	Annotations: pipeline(),
	RunE:        runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryK, "k", "k", 0, "maximum number of passages (default from settings)")
	queryCmd.Flags().Float64Var(&queryMinScore, "min-score", 0, "drop passages scoring below this (default from settings)")
	queryCmd.Flags().IntVar(&queryPerDocCap, "per-document-cap", 0, "maximum passages per document, 0 disables (default from settings)")
	queryCmd.Flags().StringSliceVarP(&queryDocuments, "document", "d", nil, "restrict to these document IDs")
	queryCmd.Flags().BoolVar(&queryContext, "context", false, "print the assembled context")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

// retrievalOptions builds options from the query flags, leaving unset
// flags to the configured defaults.
func retrievalOptions(cmd *cobra.Command) domain.RetrievalOptions {
	opts := domain.RetrievalOptions{
		K:           queryK,
		DocumentIDs: queryDocuments,
	}
	if cmd.Flags().Changed("min-score") {
		v := queryMinScore
		opts.MinScore = &v
	}
	if cmd.Flags().Changed("per-document-cap") {
		v := queryPerDocCap
		opts.PerDocumentCap = &v
	}
	return opts
}

func runQuery(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	opts := retrievalOptions(cmd)

	var (
		retrieval domain.Retrieval
		assembled *domain.AssembledContext
	)
	if queryContext {
		r, c := retrievalService.Context(cmd.Context(), args[0], opts)
		retrieval, assembled = r, &c
	} else {
		retrieval = retrievalService.Retrieve(cmd.Context(), args[0], opts)
	}

	if queryJSON {
		if err := outputQueryJSON(cmd, retrieval, assembled); err != nil {
			return err
		}
	} else {
		outputQueryTable(cmd, retrieval, assembled)
	}

	if retrieval.Failure != nil {
		return fmt.Errorf("retrieval failed: %w", retrieval.Failure)
	}
	return nil
}

type passageJSON struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkID    string  `json:"chunk_id"`
	Sequence   int     `json:"sequence"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
	Text       string  `json:"text,omitempty"`
	Truncated  bool    `json:"truncated,omitempty"`
}

func outputQueryJSON(cmd *cobra.Command, retrieval domain.Retrieval, assembled *domain.AssembledContext) error {
	out := struct {
		Query     string        `json:"query"`
		Results   []passageJSON `json:"results"`
		Context   string        `json:"context,omitempty"`
		Citations []passageJSON `json:"citations,omitempty"`
		Failure   string        `json:"failure,omitempty"`
	}{
		Query:   retrieval.Query,
		Results: make([]passageJSON, 0, len(retrieval.Results)),
	}

	for _, r := range retrieval.Results {
		out.Results = append(out.Results, passageJSON{
			DocumentID: r.Chunk.DocumentID,
			Filename:   r.Source,
			ChunkID:    r.Chunk.ID,
			Sequence:   r.Chunk.Sequence,
			Start:      r.Chunk.Span.Start,
			End:        r.Chunk.Span.End,
			Score:      r.Score,
			Text:       r.Chunk.Content,
		})
	}
	if assembled != nil {
		out.Context = assembled.Text
		out.Citations = citationsJSON(assembled.Citations)
	}
	if retrieval.Failure != nil {
		out.Failure = retrieval.Failure.Error()
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func citationsJSON(citations []domain.Citation) []passageJSON {
	out := make([]passageJSON, 0, len(citations))
	for _, c := range citations {
		out = append(out, passageJSON{
			DocumentID: c.DocumentID,
			Filename:   c.Filename,
			ChunkID:    c.ChunkID,
			Sequence:   c.Sequence,
			Start:      c.Span.Start,
			End:        c.Span.End,
			Score:      c.Score,
			Truncated:  c.Truncated,
		})
	}
	return out
}

func outputQueryTable(cmd *cobra.Command, retrieval domain.Retrieval, assembled *domain.AssembledContext) {
	if retrieval.Failure != nil {
		cmd.PrintErrf("Retrieval degraded: %v\n", retrieval.Failure)
	}

	if assembled != nil {
		if assembled.IsEmpty() {
			cmd.Println("No relevant passages found.")
			return
		}
		cmd.Println(assembled.Text)
		cmd.Println()
		outputCitations(cmd, assembled.Citations)
		return
	}

	if retrieval.IsEmpty() {
		cmd.Println("No relevant passages found.")
		return
	}

	cmd.Printf("Results for %q:\n\n", retrieval.Query)
	for i, r := range retrieval.Results {
		cmd.Printf("%d. %s (chunk %d) score %.3f\n", i+1, r.Source, r.Chunk.Sequence, r.Score)
		cmd.Printf("   %s\n\n", snippet(r.Chunk.Content, 200))
	}
}

func outputCitations(cmd *cobra.Command, citations []domain.Citation) {
	if len(citations) == 0 {
		return
	}
	cmd.Println("Sources:")
	for _, c := range citations {
		suffix := ""
		if c.Truncated {
			suffix = " (truncated)"
		}
		cmd.Printf("  [%d] %s chunk %d, chars %d-%d, score %.3f%s\n",
			c.Number, c.Filename, c.Sequence, c.Span.Start, c.Span.End, c.Score, suffix)
	}
}

// snippet collapses whitespace and cuts text to at most n runes.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
