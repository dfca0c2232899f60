package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/caliperhq/caliper-engine/pkg/apperrors"
)

var (
	benchmarkName        string
	benchmarkFile        string
	benchmarkDescription string
	benchmarkShowOutput  string
)

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Manage question benchmarks",
}

var benchmarkCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a benchmark from a question file",
	Long: `Loads a benchmark from a JSON file of the form:

  {
    "format_version": "1.0",
    "questions": [
      {"id": "1", "text": "What is 2+2?", "expected_answer": "4"}
    ]
  }

The benchmark is immutable once created.`,
	RunE: runBenchmarkCreate,
}

var benchmarkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List benchmarks",
	RunE:  runBenchmarkList,
}

var benchmarkShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a benchmark and its questions",
	Args:  cobra.ExactArgs(1),
	RunE:  runBenchmarkShow,
}

var benchmarkDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a benchmark (fails while evaluations reference it)",
	Args:  cobra.ExactArgs(1),
	RunE:  runBenchmarkDelete,
}

func init() {
	benchmarkCreateCmd.Flags().StringVar(&benchmarkName, "name", "", "unique benchmark name")
	benchmarkCreateCmd.Flags().StringVar(&benchmarkFile, "file", "", "path to the question file")
	benchmarkCreateCmd.Flags().StringVar(&benchmarkDescription, "description", "", "benchmark description")
	_ = benchmarkCreateCmd.MarkFlagRequired("name")
	_ = benchmarkCreateCmd.MarkFlagRequired("file")

	benchmarkShowCmd.Flags().StringVar(&benchmarkShowOutput, "output", "table", "output format: table, json, yaml")

	benchmarkCmd.AddCommand(benchmarkCreateCmd, benchmarkListCmd, benchmarkShowCmd, benchmarkDeleteCmd)
}

func runBenchmarkCreate(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	benchmark, err := app.benchmarks.CreateFromFile(cmd.Context(), benchmarkName, benchmarkDescription, benchmarkFile)
	if err != nil {
		return err
	}

	fmt.Printf("Created benchmark %q with %d questions\n", benchmark.Name, benchmark.QuestionCount())
	return nil
}

func runBenchmarkList(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	benchmarks, err := app.benchmarks.List(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tQUESTIONS\tDESCRIPTION\tCREATED")
	for _, b := range benchmarks {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
			b.Name, b.QuestionCount(), b.Description, b.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runBenchmarkShow(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	benchmark, err := app.benchmarks.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	switch benchmarkShowOutput {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(benchmark)
	case "yaml":
		return yaml.NewEncoder(os.Stdout).Encode(benchmark)
	case "table":
		fmt.Printf("Name: %s\nDescription: %s\nFormat: %s\nQuestions: %d\n\n",
			benchmark.Name, benchmark.Description, benchmark.FormatVersion, benchmark.QuestionCount())
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tQUESTION\tEXPECTED")
		for _, q := range benchmark.Questions {
			fmt.Fprintf(w, "%s\t%s\t%s\n", q.ID, q.Text, q.ExpectedAnswer)
		}
		return w.Flush()
	default:
		return fmt.Errorf("%w: unknown output format %q", apperrors.ErrInvalidInput, benchmarkShowOutput)
	}
}

func runBenchmarkDelete(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.benchmarks.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted benchmark %q\n", args[0])
	return nil
}
