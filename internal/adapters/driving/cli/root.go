// Package cli implements the sopctx command line. Commands drive the core
// services through the driving ports; main supplies a Bootstrap that builds
// them from the config file.
package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
	"github.com/custodia-labs/sopctx/internal/core/ports/driving"
	"github.com/custodia-labs/sopctx/internal/logger"
)

// version is set at build time through SetVersion.
var version = "dev"

// pipelineAnnotation marks commands that need the ingest and retrieval
// pipeline, not just settings.
const pipelineAnnotation = "sopctx/pipeline"

// rebuildAnnotation marks commands that recreate the vector index.
const rebuildAnnotation = "sopctx/rebuild"

// Extractor turns file contents into plain text.
type Extractor interface {
	Supports(filename string) bool
	Extract(ctx context.Context, filename string, content []byte) (*driven.Extraction, error)
}

// ConnectivityCheck reports whether the services named in settings can be reached.
type ConnectivityCheck func(ctx context.Context, settings *domain.Settings) error

// Services holds what the commands drive. Nil fields make the commands
// that need them report that the service is not configured.
type Services struct {
	Settings   driving.SettingsService
	Ingest     driving.IngestService
	Documents  driving.DocumentService
	Retrieval  driving.RetrievalService
	Answer     driving.AnswerService
	Analysis   driving.AnalysisService
	Trends     driving.TrendService
	Retraining driving.RetrainingService
	Extractor  Extractor
	Check      ConnectivityCheck
}

// BootstrapOptions tells a Bootstrap what to build.
type BootstrapOptions struct {
	// Home is the directory holding the config, prompts and database.
	Home string

	// ConfigPath is the config file. Empty means <Home>/config.toml.
	ConfigPath string

	// Pipeline requests the ingest and retrieval services as well as settings.
	Pipeline bool

	// Rebuild discards stored vectors before opening the index, so the
	// embedding model or dimensions may change. Implies Pipeline.
	Rebuild bool
}

// Bootstrap builds the services. The returned cleanup releases them.
type Bootstrap func(ctx context.Context, opts BootstrapOptions) (*Services, func() error, error)

var (
	settingsService   driving.SettingsService
	ingestService     driving.IngestService
	documentService   driving.DocumentService
	retrievalService  driving.RetrievalService
	answerService     driving.AnswerService
	analysisService   driving.AnalysisService
	trendService      driving.TrendService
	retrainingService driving.RetrainingService
	extractor         Extractor
	connectivity      ConnectivityCheck
)

var (
	bootstrap Bootstrap
	cleanup   func() error
)

var (
	flagHome    string
	flagConfig  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "sopctx",
	Short: "Retrieval-augmented context for standard operating procedures",
	Long: `sopctx ingests standard operating procedures, retrieves the passages
relevant to a question, and assembles them into a bounded context with
citations. With a language model configured it also answers questions and
analyses incidents for deviations from procedure.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagHome, "home", "", "data directory (default ~/.sopctx)")
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file, .toml or .yaml (default <home>/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// SetBootstrap registers the function that builds the services.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// SetServices installs services directly.
func SetServices(s *Services) {
	if s == nil {
		s = &Services{}
	}
	settingsService = s.Settings
	ingestService = s.Ingest
	documentService = s.Documents
	retrievalService = s.Retrieval
	answerService = s.Answer
	analysisService = s.Analysis
	trendService = s.Trends
	retrainingService = s.Retraining
	extractor = s.Extractor
	connectivity = s.Check
}

// Execute runs the root command and releases the services afterwards.
func Execute(ctx context.Context) error {
	defer release()
	rootCmd.SetOut(os.Stdout)
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(flagVerbose)

	// A missing .env is fine.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("reading .env: %v", err)
	}

	if bootstrap == nil {
		return nil
	}

	home, err := resolveHome(flagHome)
	if err != nil {
		return err
	}

	services, done, err := bootstrap(cmd.Context(), BootstrapOptions{
		Home:       home,
		ConfigPath: flagConfig,
		Pipeline:   needsPipeline(cmd),
		Rebuild:    cmd.Annotations[rebuildAnnotation] == "true",
	})
	if err != nil {
		return err
	}
	SetServices(services)
	cleanup = done
	return nil
}

func release() {
	if cleanup == nil {
		return
	}
	if err := cleanup(); err != nil {
		logger.Error("closing services: %v", err)
	}
	cleanup = nil
}

func needsPipeline(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[pipelineAnnotation] == "true" {
			return true
		}
	}
	return false
}

func pipeline() map[string]string {
	return map[string]string{pipelineAnnotation: "true"}
}

func rebuild() map[string]string {
	return map[string]string{pipelineAnnotation: "true", rebuildAnnotation: "true"}
}

func resolveHome(home string) (string, error) {
	if home != "" {
		return home, nil
	}
	if env := os.Getenv("SOPCTX_HOME"); env != "" {
		return env, nil
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".sopctx"), nil
}
