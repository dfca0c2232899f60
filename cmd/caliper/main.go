// Command caliper evaluates LLM reasoning strategies against question
// benchmarks and reports per-question and aggregate accuracy.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/caliperhq/caliper-engine/pkg/apperrors"
	"github.com/caliperhq/caliper-engine/pkg/config"
	"github.com/caliperhq/caliper-engine/pkg/logging"
	"github.com/caliperhq/caliper-engine/pkg/models"
)

// Exit codes. evaluate run additionally uses 4 for authentication failures
// and 130 for SIGINT, matching shell conventions.
const (
	exitOK            = 0
	exitError         = 1
	exitConfiguration = 2
	exitNotFound      = 3
	exitAuth          = 4
	exitInterrupted   = 130
)

// errInterrupted marks a run stopped by the operator rather than a failure.
var errInterrupted = errors.New("interrupted")

var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "caliper",
	Short: "Evaluate LLM reasoning strategies against benchmarks",
	Long: `caliper runs question benchmarks through reasoning strategies
(direct answer, chain-of-thought) on remote LLM providers, persists every
question's outcome, and reports aggregate accuracy.

Results are durable per question: an interrupted evaluation resumes where
it stopped.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A .env file is a developer convenience, not a requirement.
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
		}

		logger, err = logging.NewLogger(cfg.LogLevel, cfg.DebugMode)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func main() {
	rootCmd.AddCommand(evaluateCmd, benchmarkCmd, healthCmd)

	if err := rootCmd.Execute(); err != nil {
		code := exitCodeFor(err)
		if errors.Is(err, errInterrupted) {
			fmt.Fprintln(os.Stderr, "Interrupted. Resume with: caliper evaluate run <id>")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", failureLine(err))
		}
		os.Exit(code)
	}
}

func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errInterrupted):
		return exitInterrupted
	case errors.Is(err, apperrors.ErrNotFound):
		return exitNotFound
	case errors.Is(err, apperrors.ErrInvalidInput), errors.Is(err, apperrors.ErrConflict),
		errors.Is(err, apperrors.ErrBenchmarkInUse), errors.Is(err, apperrors.ErrAlreadyRunning):
		return exitConfiguration
	}
	if reason := models.FailureReasonFromError(err); reason != nil {
		switch reason.Category {
		case models.FailureAuthenticationError:
			return exitAuth
		case models.FailureConfigurationError:
			return exitConfiguration
		}
	}
	return exitError
}

// failureLine renders a one-line cause, plus one actionable hint when the
// failure category has one.
func failureLine(err error) string {
	reason := models.FailureReasonFromError(err)
	if reason == nil {
		return err.Error()
	}
	if hint := hintFor(reason.Category); hint != "" {
		return fmt.Sprintf("%s (%s)", reason.Description, hint)
	}
	return reason.Description
}

func hintFor(category models.FailureCategory) string {
	switch category {
	case models.FailureAuthenticationError:
		return "check the provider API key (OPENROUTER_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY)"
	case models.FailureCreditLimitExceeded:
		return "add credits to the provider account"
	case models.FailureRateLimitExceeded:
		return "wait and resume; already-processed questions are kept"
	case models.FailureConfigurationError:
		return "run 'caliper health' to check configuration"
	default:
		return ""
	}
}
