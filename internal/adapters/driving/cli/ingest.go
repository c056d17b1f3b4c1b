package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sopctx/internal/connectors/filesystem"
	"github.com/custodia-labs/sopctx/internal/core/ports/driving"
	"github.com/custodia-labs/sopctx/internal/core/services"
	"github.com/custodia-labs/sopctx/internal/logger"
)

var (
	ingestWatch bool
	ingestJSON  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [paths...]",
	Short: "Ingest procedure files",
	Long: `Extracts text from the given files, or every supported file under the
given directories, then chunks, embeds and indexes it. Re-ingesting a file
with the same name replaces the earlier version.

Supported formats: plain text, Markdown, HTML, DOCX and PDF.

With --watch, sopctx keeps running and re-ingests files as they change,
removing documents whose files are deleted.`,
	Args:        cobra.MinimumNArgs(1),
	Annotations: pipeline(),
	RunE:        runIngest,
}

var deleteCmd = &cobra.Command{
	Use:         "delete [doc-id]",
	Short:       "Remove a document from the index",
	Args:        cobra.ExactArgs(1),
	Annotations: pipeline(),
	RunE:        runDelete,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the vector index",
	Long: `Discards the stored vectors, then re-chunks and re-embeds every stored
document. Run this after changing the embedding model, dimensions or
chunker settings.`,
	Args:        cobra.NoArgs,
	Annotations: rebuild(),
	RunE:        runReindex,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "keep watching the paths for changes")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(reindexCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}
	if extractor == nil {
		return errors.New("extractor not configured")
	}

	ctx := cmd.Context()
	conn := filesystem.New(args, filesystem.WithFilter(extractor.Supports))
	defer conn.Close()

	files, err := conn.Files(ctx)
	if err != nil {
		return fmt.Errorf("finding files: %w", err)
	}

	results := ingestFiles(ctx, files)
	if ingestJSON {
		if err := outputIngestJSON(cmd, results); err != nil {
			return err
		}
	} else {
		outputIngestTable(cmd, results, "No supported files found.")
	}

	if ingestWatch {
		return watchAndIngest(cmd, conn)
	}

	for _, r := range results {
		if r.Err != nil {
			return errors.New("some files failed to ingest")
		}
	}
	return nil
}

// ingestFiles extracts each file and ingests the batch. Files that cannot
// be read or extracted get a failed result in their position.
func ingestFiles(ctx context.Context, files []string) []driving.IngestResult {
	results := make([]driving.IngestResult, len(files))
	var reqs []driving.IngestRequest
	var positions []int

	for i, path := range files {
		req, err := buildRequest(ctx, path)
		if err != nil {
			results[i] = driving.IngestResult{Filename: filepath.Base(path), Err: err}
			continue
		}
		reqs = append(reqs, req)
		positions = append(positions, i)
	}

	for i, r := range ingestService.IngestBatch(ctx, reqs) {
		results[positions[i]] = r
	}
	return results
}

func buildRequest(ctx context.Context, path string) (driving.IngestRequest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return driving.IngestRequest{}, fmt.Errorf("reading %s: %w", path, err)
	}

	extraction, err := extractor.Extract(ctx, path, content)
	if err != nil {
		return driving.IngestRequest{}, err
	}

	metadata := make(map[string]any, len(extraction.Metadata)+2)
	for k, v := range extraction.Metadata {
		metadata[k] = v
	}
	if abs, err := filepath.Abs(path); err == nil {
		metadata["path"] = abs
	}
	if extraction.Title != "" {
		metadata["title"] = extraction.Title
	}

	return driving.IngestRequest{
		Filename: filepath.Base(path),
		Content:  extraction.Text,
		Metadata: metadata,
	}, nil
}

func watchAndIngest(cmd *cobra.Command, conn *filesystem.Connector) error {
	ctx := cmd.Context()
	changes, err := conn.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watching: %w", err)
	}

	cmd.Println("Watching for changes. Press Ctrl+C to stop.")
	for change := range changes {
		switch change.Type {
		case filesystem.ChangeDeleted:
			id := services.DocumentID(change.Path)
			if err := ingestService.Delete(ctx, id); err != nil {
				logger.Warn("removing %s: %v", change.Path, err)
				continue
			}
			cmd.Printf("Removed %s\n", filepath.Base(change.Path))
		default:
			outputIngestTable(cmd, ingestFiles(ctx, []string{change.Path}), "")
		}
	}
	return nil
}

func outputIngestJSON(cmd *cobra.Command, results []driving.IngestResult) error {
	type row struct {
		DocumentID string `json:"document_id,omitempty"`
		Filename   string `json:"filename"`
		Chunks     int    `json:"chunks"`
		Replaced   bool   `json:"replaced"`
		Error      string `json:"error,omitempty"`
	}

	rows := make([]row, len(results))
	for i, r := range results {
		rows[i] = row{DocumentID: r.DocumentID, Filename: r.Filename, Chunks: r.Chunks, Replaced: r.Replaced}
		if r.Err != nil {
			rows[i].Error = r.Err.Error()
		}
	}

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputIngestTable(cmd *cobra.Command, results []driving.IngestResult, empty string) {
	if len(results) == 0 {
		cmd.Println(empty)
		return
	}

	ok := 0
	for _, r := range results {
		if r.Err != nil {
			cmd.Printf("  FAIL %s: %v\n", r.Filename, r.Err)
			continue
		}
		ok++
		action := "added"
		if r.Replaced {
			action = "replaced"
		}
		cmd.Printf("  OK   %s (%d chunks, %s) %s\n", r.Filename, r.Chunks, action, r.DocumentID)
	}
	cmd.Printf("\nIngested %d of %d file(s)\n", ok, len(results))
}

func runDelete(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	if err := ingestService.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	cmd.Printf("Deleted document %s\n", args[0])
	return nil
}

func runReindex(cmd *cobra.Command, _ []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	results, err := ingestService.Reindex(cmd.Context())
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}

	outputIngestTable(cmd, results, "No documents to reindex.")
	for _, r := range results {
		if r.Err != nil {
			return errors.New("some documents failed to reindex")
		}
	}
	return nil
}
