package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/caliperhq/caliper-engine/pkg/apperrors"
	"github.com/caliperhq/caliper-engine/pkg/models"
	"github.com/caliperhq/caliper-engine/pkg/repositories"
	"github.com/caliperhq/caliper-engine/pkg/services"
)

var (
	createStrategy    string
	createModel       string
	createBenchmark   string
	createProvider    string
	createParser      string
	createTemperature float64
	createMaxTokens   int
	createTopP        float64

	listStatus    string
	listBenchmark string

	resultsOutput string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Create, run, and inspect evaluations",
}

var evaluateCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new evaluation in PENDING state",
	RunE:  runEvaluateCreate,
}

var evaluateRunCmd = &cobra.Command{
	Use:   "run <evaluation-id>",
	Short: "Execute or resume an evaluation, streaming progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvaluateRun,
}

var evaluateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List evaluations",
	RunE:  runEvaluateList,
}

var evaluateResultsCmd = &cobra.Command{
	Use:   "results <evaluation-id>",
	Short: "Show the computed results of an evaluation",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvaluateResults,
}

var evaluateDeleteCmd = &cobra.Command{
	Use:   "delete <evaluation-id>",
	Short: "Delete an evaluation and its question results",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvaluateDelete,
}

func init() {
	evaluateCreateCmd.Flags().StringVar(&createStrategy, "strategy", "", "reasoning strategy id (none, chain_of_thought)")
	evaluateCreateCmd.Flags().StringVar(&createModel, "model", "", "model identifier, e.g. gpt-4 or claude-3-sonnet")
	evaluateCreateCmd.Flags().StringVar(&createBenchmark, "benchmark", "", "benchmark name")
	evaluateCreateCmd.Flags().StringVar(&createProvider, "provider", "", "provider (openai, anthropic, openrouter, litellm); auto-detected when omitted")
	evaluateCreateCmd.Flags().StringVar(&createParser, "parser", "", "parsing strategy (auto, native, post_process, constrained)")
	evaluateCreateCmd.Flags().Float64Var(&createTemperature, "temperature", -1, "sampling temperature")
	evaluateCreateCmd.Flags().IntVar(&createMaxTokens, "max-tokens", 0, "completion token cap")
	evaluateCreateCmd.Flags().Float64Var(&createTopP, "top-p", -1, "nucleus sampling cutoff")
	_ = evaluateCreateCmd.MarkFlagRequired("strategy")
	_ = evaluateCreateCmd.MarkFlagRequired("model")
	_ = evaluateCreateCmd.MarkFlagRequired("benchmark")

	evaluateListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (PENDING, RUNNING, COMPLETED, FAILED, INTERRUPTED)")
	evaluateListCmd.Flags().StringVar(&listBenchmark, "benchmark", "", "filter by benchmark name")

	evaluateResultsCmd.Flags().StringVar(&resultsOutput, "output", "table", "output format: table, json, yaml")

	evaluateCmd.AddCommand(evaluateCreateCmd, evaluateRunCmd, evaluateListCmd, evaluateResultsCmd, evaluateDeleteCmd)
}

func runEvaluateCreate(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	params := map[string]any{}
	if createTemperature >= 0 {
		params["temperature"] = createTemperature
	}
	if createMaxTokens > 0 {
		params["max_tokens"] = createMaxTokens
	}
	if createTopP >= 0 {
		params["top_p"] = createTopP
	}

	agentConfig := models.AgentConfig{
		StrategyID:      createStrategy,
		ModelName:       createModel,
		Provider:        createProvider,
		ParsingStrategy: createParser,
	}
	if len(params) > 0 {
		agentConfig.ModelParameters = params
	}

	evaluation, err := app.evaluations.CreateEvaluation(cmd.Context(), agentConfig, createBenchmark)
	if err != nil {
		return err
	}

	fmt.Println(evaluation.ID)
	return nil
}

func runEvaluateRun(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("%w: %q is not a valid evaluation id", apperrors.ErrInvalidInput, args[0])
	}

	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	// First SIGINT asks the orchestrator to stop after the in-flight
	// question; a second one force-exits.
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		<-sigs
		fmt.Fprintln(os.Stderr, "\nInterrupting after the current question... (press Ctrl-C again to force quit)")
		app.evaluations.Interrupt(id)
		<-sigs
		os.Exit(exitInterrupted)
	}()

	results, err := app.evaluations.ExecuteEvaluation(cmd.Context(), id, func(event services.ProgressEvent) {
		percent := float64(event.Processed) / float64(event.Total) * 100
		fmt.Printf("Progress: %d/%d (%.0f%%) %s\n", event.Processed, event.Total, percent, event.Message)
	})
	if err != nil {
		return err
	}

	evaluation, err := app.evaluations.GetEvaluation(cmd.Context(), id)
	if err != nil {
		return err
	}
	if evaluation.Status == models.EvaluationStatusInterrupted {
		return errInterrupted
	}

	printSummary(results)
	return nil
}

func runEvaluateList(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	filter := repositories.EvaluationFilter{}
	if listStatus != "" {
		status := models.EvaluationStatus(listStatus)
		if !models.IsValidEvaluationStatus(status) {
			return fmt.Errorf("%w: unknown status %q", apperrors.ErrInvalidInput, listStatus)
		}
		filter.Status = status
	}
	if listBenchmark != "" {
		benchmark, err := app.benchmarks.Get(cmd.Context(), listBenchmark)
		if err != nil {
			return err
		}
		filter.BenchmarkID = benchmark.ID
	}

	evaluations, err := app.evaluations.List(cmd.Context(), filter)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSTRATEGY\tMODEL\tCREATED")
	for _, e := range evaluations {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Status, e.AgentConfig.StrategyID, e.AgentConfig.ModelName,
			e.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runEvaluateResults(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("%w: %q is not a valid evaluation id", apperrors.ErrInvalidInput, args[0])
	}

	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	results, err := app.evaluations.GetResults(cmd.Context(), id)
	if err != nil {
		return err
	}

	switch resultsOutput {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(results)
	case "yaml":
		return yaml.NewEncoder(os.Stdout).Encode(results)
	case "table":
		printSummary(results)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "QUESTION\tEXPECTED\tACTUAL\tCORRECT\tTIME\tERROR")
		for _, r := range results.Results {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%dms\t%s\n",
				r.QuestionID, r.ExpectedAnswer, r.ActualAnswer, r.IsCorrect,
				r.ExecutionTimeMs, r.ErrorMessage)
		}
		return w.Flush()
	default:
		return fmt.Errorf("%w: unknown output format %q", apperrors.ErrInvalidInput, resultsOutput)
	}
}

func runEvaluateDelete(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("%w: %q is not a valid evaluation id", apperrors.ErrInvalidInput, args[0])
	}

	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.evaluations.Delete(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Printf("Deleted evaluation %s\n", id)
	return nil
}

func printSummary(results *models.EvaluationResults) {
	fmt.Printf("Questions: %d  Correct: %d  Accuracy: %.1f%%  Errors: %d  Avg time: %.0fms\n",
		results.TotalQuestions, results.CorrectAnswers, results.Accuracy*100,
		results.ErrorCount, results.AverageExecutionTimeMs)
}
