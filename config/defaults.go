package config

import "github.com/spf13/viper"

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "rosterops.db")

	// Runner defaults
	v.SetDefault("runner.wizard_failure_rate", 0.08)
	v.SetDefault("runner.csv_failure_rate", 0.12)
	v.SetDefault("runner.unit_latency_min_ms", 80)
	v.SetDefault("runner.unit_latency_max_ms", 200)
	v.SetDefault("runner.step_latency_min_ms", 30)
	v.SetDefault("runner.step_latency_max_ms", 90)
	v.SetDefault("runner.validation_settle_ms", 600)
	v.SetDefault("runner.retry_success_rate", 0.8)

	// Scheduler defaults
	v.SetDefault("scheduler.max_pending_timers", 256)
}
