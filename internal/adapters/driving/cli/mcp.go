package cli

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sopctx/internal/adapters/driving/mcp"
)

var (
	mcpPort int
	mcpHost string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Model Context Protocol server",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve procedures to MCP clients",
	Long: `Serves retrieval, grounded answers, incident analysis and the document
corpus to MCP clients. Speaks JSON-RPC over stdio unless --port is given, in
which case it serves the streamable HTTP transport.

Tools:      retrieve, ask, ingest_text, delete_document, analyze_incident
Resources:  sopctx://documents, sopctx://documents/{id},
            sopctx://trends, sopctx://trends/{days}

Client configuration:
  {
    "mcpServers": {
      "sopctx": {"command": "/path/to/sopctx", "args": ["mcp", "serve"]}
    }
  }`,
	Example: `  sopctx mcp serve
  sopctx mcp serve --port 8080`,
	Args:        cobra.NoArgs,
	Annotations: pipeline(),
	RunE:        runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntVarP(&mcpPort, "port", "p", 0, "HTTP port (0 = use stdio)")
	mcpServeCmd.Flags().StringVar(&mcpHost, "host", "localhost", "HTTP listen host")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func mcpPorts() *mcp.Ports {
	return &mcp.Ports{
		Retrieval:  retrievalService,
		Answer:     answerService,
		Ingest:     ingestService,
		Documents:  documentService,
		Analysis:   analysisService,
		Trends:     trendService,
		Retraining: retrainingService,
	}
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	server, err := mcp.NewServer(mcpPorts())
	if err != nil {
		return err
	}

	if mcpPort <= 0 {
		return server.Run(cmd.Context())
	}

	addr := net.JoinHostPort(mcpHost, strconv.Itoa(mcpPort))
	cmd.PrintErrf("MCP server listening on http://%s\n", addr)
	if err := server.RunHTTP(cmd.Context(), addr); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
