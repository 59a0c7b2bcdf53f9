package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/glsafe/glsafe/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without contacting the GitLab instance.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return cmd.Help()
	}

	// Check if file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Error().Str("file", configFile).Msg("config file not found")
		return fmt.Errorf("config file not found: %s", configFile)
	}

	// Load configuration
	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to parse config")
		return err
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  Server: %s\n", cfg.GitLab.Server)
	fmt.Printf("  Token: (configured)\n")
	fmt.Printf("  Destination: %s\n", cfg.Backup.Dest)
	fmt.Println()
	fmt.Println("Scope:")
	if len(cfg.Scope.GroupIDs) > 0 {
		fmt.Printf("  Groups: %v\n", cfg.Scope.GroupIDs)
	}
	if len(cfg.Scope.ProjectIDs) > 0 {
		fmt.Printf("  Projects: %v\n", cfg.Scope.ProjectIDs)
	}
	fmt.Printf("  All accessible groups: %v\n", cfg.Scope.AllAccessible)
	fmt.Printf("  Personal projects: %v\n", cfg.Scope.IncludePersonal)
	fmt.Println()
	fmt.Println("Parts:")
	fmt.Printf("  Repositories: %v\n", cfg.Backup.Parts.Repo)
	fmt.Printf("  Issues: %v\n", cfg.Backup.Parts.Issues)
	fmt.Printf("  Wikis: %v\n", cfg.Backup.Parts.Wiki)
	fmt.Printf("  Snippets: %v\n", cfg.Backup.Parts.Snippets)
	fmt.Println()
	fmt.Println("Execution:")
	fmt.Printf("  Workers: %d\n", cfg.Concurrency.Workers)
	fmt.Printf("  Retry attempts: %d\n", cfg.Retry.MaxAttempts)
	fmt.Printf("  Backoff: %s up to %s\n", cfg.Retry.BaseDelay, cfg.Retry.MaxDelay)
	fmt.Printf("  Requests per second: %.1f\n", cfg.Limits.RequestsPerSecond)
	if cfg.Limits.RunDeadline > 0 {
		fmt.Printf("  Run deadline: %s\n", cfg.Limits.RunDeadline)
	}

	return nil
}
