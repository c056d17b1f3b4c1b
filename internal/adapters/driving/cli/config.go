package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/sopctx/internal/core/domain"
)

var configPing bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage settings",
	Long: `View and change pipeline settings: chunking, embedding, the vector
index, retrieval defaults, context assembly and the language model.

Settings live in <home>/config.toml (or the file given with --config).
API keys may instead come from SOPCTX_EMBEDDING_API_KEY / OPENAI_API_KEY
and SOPCTX_LLM_API_KEY / GROQ_API_KEY, including through a .env file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Change one setting",
	Long: `Change one setting. The value is rejected, and the old value kept, if it
would make the settings invalid. Durations use Go syntax such as 30s.

Run 'sopctx config keys' for the list of keys.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List setting keys",
	Args:  cobra.NoArgs,
	RunE:  runConfigKeys,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var configEmbeddingCmd = &cobra.Command{
	Use:   "embedding",
	Short: "Choose the embedding provider interactively",
	Long: `Choose the embedding provider, model and API key. Changing the model
changes the vector dimensions; run 'sopctx reindex' afterwards.`,
	Args: cobra.NoArgs,
	RunE: runConfigEmbedding,
}

func init() {
	configValidateCmd.Flags().BoolVar(&configPing, "ping", false, "also check the embedding and LLM endpoints are reachable")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configKeysCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configEmbeddingCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Chunker]")
	cmd.Printf("  Chunk size: %d\n", settings.Chunker.ChunkSize)
	cmd.Printf("  Overlap: %.2f (%d chars)\n", settings.Chunker.OverlapFraction, settings.Chunker.Overlap())
	cmd.Println()

	cmd.Println("[Embedding]")
	cmd.Printf("  Provider: %s\n", settings.Embedding.Provider.Description())
	if settings.Embedding.Model != "" {
		cmd.Printf("  Model: %s\n", settings.Embedding.Model)
	}
	if settings.Embedding.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", settings.Embedding.BaseURL)
	}
	if settings.Embedding.Provider.RequiresAPIKey() {
		cmd.Printf("  API Key: %s\n", displayKey(settings.Embedding.APIKey))
	}
	cmd.Printf("  Dimensions: %d\n", settings.Embedding.Dimensions)
	cmd.Printf("  Batch size: %d, attempts: %d, backoff: %s\n",
		settings.Embedding.BatchSize, settings.Embedding.MaxAttempts, settings.Embedding.Backoff)
	cmd.Println()

	cmd.Println("[Index]")
	cmd.Printf("  Backend: %s\n", settings.Index.Backend.Description())
	if settings.Index.Backend.RequiresDSN() {
		cmd.Printf("  DSN: %s\n", displayKey(settings.Index.DSN))
	}
	cmd.Printf("  Metric: %s\n", settings.Index.Metric)
	cmd.Println()

	cmd.Println("[Retrieval]")
	cmd.Printf("  K: %d, min score: %.2f, per-document cap: %d\n",
		settings.Retrieval.K, settings.Retrieval.MinScore, settings.Retrieval.PerDocumentCap)
	cmd.Printf("  Context: %d chars, dedup threshold %.2f\n",
		settings.Context.MaxChars, settings.Context.DedupThreshold)
	cmd.Println()

	cmd.Println("[LLM]")
	if settings.LLM.IsConfigured() {
		cmd.Printf("  Model: %s\n", settings.LLM.Model)
		if settings.LLM.BaseURL != "" {
			cmd.Printf("  Base URL: %s\n", settings.LLM.BaseURL)
		}
		cmd.Printf("  API Key: %s\n", displayKey(settings.LLM.APIKey))
	} else {
		cmd.Println("  Status: not configured (ask and analyze unavailable)")
	}
	cmd.Println()

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'sopctx config set <key> <value>' to fix configuration issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	value, ok := settingValues(settings)[args[0]]
	if !ok {
		return fmt.Errorf("unknown key %q", args[0])
	}
	cmd.Println(value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	if err := settingsService.Set(args[0], args[1]); err != nil {
		return fmt.Errorf("failed to set %s: %w", args[0], err)
	}
	cmd.Printf("Set %s\n", args[0])
	return nil
}

func runConfigKeys(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	for _, k := range settingsService.Keys() {
		cmd.Println(k)
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	if err := settingsService.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	if configPing {
		if connectivity == nil {
			return errors.New("connectivity check not configured")
		}
		settings, err := settingsService.Get()
		if err != nil {
			return fmt.Errorf("failed to get settings: %w", err)
		}
		if err := connectivity(cmd.Context(), settings); err != nil {
			return err
		}
		cmd.Println("Services reachable.")
	}

	cmd.Println("Configuration is valid.")
	return nil
}

func runConfigEmbedding(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	reader := bufio.NewReader(cmd.InOrStdin())

	cmd.Println("Select Embedding Provider")
	cmd.Println("-------------------------")
	providers := domain.AllEmbeddingProviders()
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	provider := providers[parseChoice(readLine(reader), len(providers), 1)-1]

	model := ""
	if def, ok := domain.DefaultEmbeddingModels()[provider]; ok {
		cmd.Printf("Model [%s]: ", def)
		model = readLine(reader)
	}

	apiKey := ""
	if provider.RequiresAPIKey() {
		cmd.Print("API key (leave empty to use the environment): ")
		apiKey = readPassword(cmd.InOrStdin(), reader)
		cmd.Println()
	}

	if err := settingsService.SetEmbeddingProvider(provider, model, apiKey); err != nil {
		return fmt.Errorf("failed to set embedding provider: %w", err)
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	cmd.Printf("Embedding provider set to %s (%d dimensions).\n",
		provider.Description(), settings.Embedding.Dimensions)
	cmd.Println("Run 'sopctx reindex' if documents were ingested with another model.")
	return nil
}

// settingValues renders every setting as text, keyed like the config file.
func settingValues(s *domain.Settings) map[string]string {
	ftoa := func(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }
	return map[string]string{
		"chunker.chunk_size":            strconv.Itoa(s.Chunker.ChunkSize),
		"chunker.overlap_fraction":      ftoa(s.Chunker.OverlapFraction),
		"embedding.provider":            s.Embedding.Provider.String(),
		"embedding.model":               s.Embedding.Model,
		"embedding.base_url":            s.Embedding.BaseURL,
		"embedding.api_key":             secret(s.Embedding.APIKey),
		"embedding.dimensions":          strconv.Itoa(s.Embedding.Dimensions),
		"embedding.batch_size":          strconv.Itoa(s.Embedding.BatchSize),
		"embedding.max_attempts":        strconv.Itoa(s.Embedding.MaxAttempts),
		"embedding.backoff":             s.Embedding.Backoff.String(),
		"embedding.timeout":             s.Embedding.Timeout.String(),
		"embedding.requests_per_second": ftoa(s.Embedding.RequestsPerSecond),
		"index.backend":                 s.Index.Backend.String(),
		"index.dsn":                     secret(s.Index.DSN),
		"index.metric":                  s.Index.Metric.String(),
		"index.timeout":                 s.Index.Timeout.String(),
		"retrieval.k":                   strconv.Itoa(s.Retrieval.K),
		"retrieval.min_score":           ftoa(s.Retrieval.MinScore),
		"retrieval.per_document_cap":    strconv.Itoa(s.Retrieval.PerDocumentCap),
		"retrieval.overfetch_factor":    strconv.Itoa(s.Retrieval.OverfetchFactor),
		"context.max_chars":             strconv.Itoa(s.Context.MaxChars),
		"context.dedup_threshold":       ftoa(s.Context.DedupThreshold),
		"llm.model":                     s.LLM.Model,
		"llm.base_url":                  s.LLM.BaseURL,
		"llm.api_key":                   secret(s.LLM.APIKey),
		"llm.temperature":               ftoa(s.LLM.Temperature),
		"llm.max_tokens":                strconv.Itoa(s.LLM.MaxTokens),
		"llm.timeout":                   s.LLM.Timeout.String(),
	}
}

// secret masks a credential, leaving an unset one empty.
func secret(key string) string {
	if key == "" {
		return ""
	}
	return maskAPIKey(key)
}

func displayKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	return maskAPIKey(key)
}

func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

// readPassword reads without echo from a terminal, otherwise a plain line.
func readPassword(in io.Reader, reader *bufio.Reader) string {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	return readLine(reader)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
