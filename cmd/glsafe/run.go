package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/glsafe/glsafe/internal/config"
	"github.com/glsafe/glsafe/internal/services/runner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the backup run",
	Long: `Execute a complete backup run:
1. Verify credentials against the GitLab instance
2. Verify the destination root is writable
3. Walk groups, subgroups and projects in scope
4. Back up each project (repository, issues, wiki, snippets) concurrently
5. Write the run report (results.json)`,
	RunE: runBackup,
}

func runBackup(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return cmd.Help()
	}

	// Load configuration
	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return err
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return err
	}

	log.Info().
		Str("config", configFile).
		Str("server", cfg.GitLab.Server).
		Str("dest", cfg.Backup.Dest).
		Int("workers", cfg.Concurrency.Workers).
		Msg("configuration loaded")

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
		cancel()
	}()

	// Run backup
	runnerSvc := runner.New(log.Logger, *cfg)
	summary, err := runnerSvc.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("backup failed")
		return err
	}

	if !summary.OK() {
		log.Warn().
			Int("partial", summary.Partial).
			Int("failed", summary.Failed).
			Msg("backup completed with task failures, see results.json")
		return fmt.Errorf("%d of %d tasks did not complete fully", summary.Partial+summary.Failed, summary.Total)
	}

	log.Info().Msg("backup completed successfully")
	return nil
}
