// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/glsafe/glsafe/internal/models"
)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.BackupConfig, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.BackupConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

func (p *Parser) parse() (*models.BackupConfig, error) {
	cfg := &models.BackupConfig{}

	// Parse gitlab connection (required).
	cfg.GitLab = models.GitLabConfig{
		Server: p.expandEnv(p.v.GetString("gitlab.server")),
		Token:  p.expandEnv(p.v.GetString("gitlab.token")),
	}

	if cfg.GitLab.Server == "" {
		return nil, fmt.Errorf("gitlab.server is required")
	}
	if cfg.GitLab.Token == "" {
		return nil, fmt.Errorf("gitlab.token is required")
	}

	// Parse scope.
	cfg.Scope = models.ScopeConfig{
		GroupIDs:        p.v.GetIntSlice("scope.group_ids"),
		ProjectIDs:      p.v.GetIntSlice("scope.project_ids"),
		AllAccessible:   p.v.GetBool("scope.all_accessible"),
		IncludePersonal: p.v.GetBool("scope.include_personal"),
	}

	if len(cfg.Scope.GroupIDs) == 0 && len(cfg.Scope.ProjectIDs) == 0 &&
		!cfg.Scope.AllAccessible && !cfg.Scope.IncludePersonal {
		return nil, fmt.Errorf("scope is empty: set group_ids, project_ids, all_accessible or include_personal")
	}

	// Parse backup settings (required destination).
	cfg.Backup = models.BackupSettings{
		Dest: p.expandEnv(p.v.GetString("backup.dest")),
		Parts: models.Parts{
			Repo:     getBoolDefault(p.v, "backup.repo", true),
			Issues:   getBoolDefault(p.v, "backup.issues", true),
			Wiki:     getBoolDefault(p.v, "backup.wiki", true),
			Snippets: getBoolDefault(p.v, "backup.snippets", true),
		},
	}

	if cfg.Backup.Dest == "" {
		return nil, fmt.Errorf("backup.dest is required")
	}

	// Parse concurrency with defaults.
	cfg.Concurrency = models.ConcurrencyConfig{
		Workers: p.v.GetInt("concurrency.workers"),
	}
	if cfg.Concurrency.Workers == 0 {
		cfg.Concurrency.Workers = 4
	}
	if cfg.Concurrency.Workers < 1 {
		return nil, fmt.Errorf("concurrency.workers must be positive")
	}

	// Parse retry policy with defaults.
	cfg.Retry = models.RetryConfig{
		MaxAttempts: p.v.GetInt("retry.max_attempts"),
		BaseDelay:   p.v.GetDuration("retry.base_delay"),
		MaxDelay:    p.v.GetDuration("retry.max_delay"),
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 5
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 500 * time.Millisecond
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 30 * time.Second
	}
	if cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		return nil, fmt.Errorf("retry.max_delay must not be smaller than retry.base_delay")
	}

	// Parse limits with defaults.
	cfg.Limits = models.LimitsConfig{
		RequestsPerSecond: p.v.GetFloat64("limits.requests_per_second"),
		RunDeadline:       p.v.GetDuration("limits.run_deadline"),
	}
	if cfg.Limits.RequestsPerSecond == 0 {
		cfg.Limits.RequestsPerSecond = 2
	}

	return cfg, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

func getBoolDefault(v *viper.Viper, key string, def bool) bool {
	if !v.IsSet(key) {
		return def
	}
	return v.GetBool(key)
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.BackupConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.GitLab.Server == "" {
		return fmt.Errorf("gitlab.server is required")
	}

	if cfg.GitLab.Token == "" {
		return fmt.Errorf("gitlab.token is required")
	}

	if cfg.Backup.Dest == "" {
		return fmt.Errorf("backup.dest is required")
	}

	if !strings.HasPrefix(cfg.GitLab.Server, "http://") && !strings.HasPrefix(cfg.GitLab.Server, "https://") {
		return fmt.Errorf("gitlab.server must be an http(s) URL")
	}

	return nil
}
