package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caliperhq/caliper-engine/pkg/database"
	"github.com/caliperhq/caliper-engine/pkg/llm"
	"github.com/caliperhq/caliper-engine/pkg/logging"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check database connectivity and provider credentials",
	Long: `Pings the database and probes every configured LLM provider with a
minimal authenticated request. Unconfigured providers are skipped.
Exits non-zero if the database or any configured provider fails.`,
	RunE: runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	failures := 0

	db, err := database.NewConnection(ctx, &database.Config{URL: cfg.DatabaseURL}, logger)
	if err != nil {
		failures++
		fmt.Printf("database    FAIL  %v\n", err)
	} else {
		db.Close()
		fmt.Printf("database    OK    %s\n", logging.SanitizeConnectionString(cfg.DatabaseURL))
	}

	factoryCfg, err := cfg.FactoryConfig()
	if err != nil {
		return err
	}

	for _, check := range llm.NewConnectionTester(factoryCfg, logger).TestProviders(ctx) {
		switch {
		case !check.Configured:
			fmt.Printf("%-11s SKIP  not configured\n", check.Provider)
		case check.Success:
			fmt.Printf("%-11s OK    %s\n", check.Provider, check.Message)
		default:
			failures++
			fmt.Printf("%-11s FAIL  %s\n", check.Provider, check.Message)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d health check(s) failed", failures)
	}
	return nil
}
