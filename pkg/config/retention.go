package config

import "time"

// RetentionConfig controls data retention and cleanup behavior.
type RetentionConfig struct {
	// Enabled turns the periodic cleanup loop on.
	Enabled bool

	// RequestRetentionDays is how many days to keep terminal requests
	// before soft-deleting them (setting deleted_at).
	RequestRetentionDays int

	// PurgeAfterDays is how long soft-deleted requests linger before their
	// rows and stored images are removed for good.
	PurgeAfterDays int

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration

	// PurgeBatchSize bounds how many requests one cleanup pass purges.
	PurgeBatchSize int
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		Enabled:              true,
		RequestRetentionDays: 90,
		PurgeAfterDays:       30,
		CleanupInterval:      12 * time.Hour,
		PurgeBatchSize:       100,
	}
}

// LoadRetentionConfigFromEnv returns defaults overridden by RETENTION_* variables.
func LoadRetentionConfigFromEnv() *RetentionConfig {
	cfg := DefaultRetentionConfig()
	cfg.Enabled = getEnvBool("RETENTION_ENABLED", cfg.Enabled)
	cfg.RequestRetentionDays = getEnvInt("RETENTION_REQUEST_DAYS", cfg.RequestRetentionDays)
	cfg.PurgeAfterDays = getEnvInt("RETENTION_PURGE_AFTER_DAYS", cfg.PurgeAfterDays)
	cfg.CleanupInterval = getEnvDuration("RETENTION_CLEANUP_INTERVAL", cfg.CleanupInterval)
	cfg.PurgeBatchSize = getEnvInt("RETENTION_PURGE_BATCH_SIZE", cfg.PurgeBatchSize)
	return cfg
}
