package models

import "time"

// BackupConfig holds the complete configuration for a backup run.
type BackupConfig struct {
	GitLab      GitLabConfig
	Scope       ScopeConfig
	Backup      BackupSettings
	Concurrency ConcurrencyConfig
	Retry       RetryConfig
	Limits      LimitsConfig
}

// GitLabConfig holds connection settings for the source instance.
type GitLabConfig struct {
	Server string
	Token  string
}

// ScopeConfig selects which part of the instance is backed up. With no
// explicit group or project ids, AllAccessible walks every top-level group
// the token can see.
type ScopeConfig struct {
	GroupIDs        []int
	ProjectIDs      []int
	AllAccessible   bool
	IncludePersonal bool
}

// BackupSettings holds the destination and per-resource enable flags.
type BackupSettings struct {
	Dest  string
	Parts Parts
}

// ConcurrencyConfig bounds parallel task execution.
type ConcurrencyConfig struct {
	Workers int
}

// RetryConfig parameterizes the fetcher's backoff schedule.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// LimitsConfig holds run-wide throttling and deadline settings.
type LimitsConfig struct {
	RequestsPerSecond float64
	RunDeadline       time.Duration // zero means no deadline
}
