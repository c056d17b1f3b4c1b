package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var documentCmd = &cobra.Command{
	Use:         "document",
	Aliases:     []string{"documents", "doc"},
	Short:       "Inspect ingested documents",
	Long:        `List ingested documents, show their metadata and chunk spans, or print their text.`,
	Annotations: pipeline(),
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
}

var documentDetailsCmd = &cobra.Command{
	Use:   "details [doc-id]",
	Short: "Show document metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentDetails,
}

var documentContentCmd = &cobra.Command{
	Use:   "content [doc-id]",
	Short: "Print document text",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentContent,
}

var documentChunksCmd = &cobra.Command{
	Use:   "chunks [doc-id]",
	Short: "Show how a document was chunked",
	Long: `Print each chunk of a document with its character span, the same
span citations point at. With --text the chunk text is printed too.`,
	Args: cobra.ExactArgs(1),
	RunE: runDocumentChunks,
}

var chunksShowText bool

func init() {
	documentChunksCmd.Flags().BoolVar(&chunksShowText, "text", false, "print chunk text")

	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentDetailsCmd)
	documentCmd.AddCommand(documentContentCmd)
	documentCmd.AddCommand(documentChunksCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	docs, err := documentService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(docs) == 0 {
		cmd.Println("No documents ingested. Run 'sopctx ingest <path>' to add some.")
		return nil
	}

	cmd.Println("Documents:")
	cmd.Println()
	for i := range docs {
		cmd.Printf("  %s\n", docs[i].ID)
		cmd.Printf("    Filename: %s\n", docs[i].Filename)
		cmd.Printf("    Uploaded: %s\n", docs[i].UploadedAt.Format("2006-01-02 15:04:05"))
		cmd.Println()
	}

	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runDocumentDetails(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	details, err := documentService.GetDetails(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document details: %w", err)
	}

	cmd.Printf("ID:         %s\n", details.ID)
	cmd.Printf("Filename:   %s\n", details.Filename)
	cmd.Printf("Chunks:     %d\n", details.ChunkCount)
	cmd.Printf("Characters: %d\n", details.Characters)
	cmd.Printf("Uploaded:   %s\n", details.UploadedAt.Format("2006-01-02 15:04:05"))

	if len(details.Metadata) > 0 {
		keys := make([]string, 0, len(details.Metadata))
		for k := range details.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		cmd.Println("Metadata:")
		for _, k := range keys {
			cmd.Printf("  %s: %s\n", k, details.Metadata[k])
		}
	}
	return nil
}

func runDocumentContent(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	doc, err := documentService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	cmd.Println(doc.Content)
	return nil
}

func runDocumentChunks(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	chunks, err := documentService.Chunks(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get chunks: %w", err)
	}
	if len(chunks) == 0 {
		cmd.Println("Document has no chunks. Run 'sopctx reindex' to rebuild them.")
		return nil
	}

	for _, c := range chunks {
		cmd.Printf("#%-4d [%d, %d)  %d chars\n", c.Sequence, c.Span.Start, c.Span.End, c.Span.End-c.Span.Start)
		if chunksShowText {
			cmd.Printf("      %s\n", strings.ReplaceAll(c.Content, "\n", "\n      "))
		}
	}
	cmd.Printf("Total: %d chunks\n", len(chunks))
	return nil
}
