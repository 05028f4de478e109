// Package config provides RosterOps configuration loading via Viper.
package config

import "time"

// Config represents the core RosterOps configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Runner    RunnerConfig    `mapstructure:"runner"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// RunnerConfig configures the bulk-change job runners.
//
// The failure rates drive the simulated downstream-system fault injection.
// The wizard/CSV asymmetry is a tuning default, not domain modeling; both
// are plain knobs and may be set to 0 to disable injection entirely.
type RunnerConfig struct {
	WizardFailureRate float64 `mapstructure:"wizard_failure_rate"` // probability a wizard unit fails one step (default: 0.08)
	CSVFailureRate    float64 `mapstructure:"csv_failure_rate"`    // probability a CSV row fails one step (default: 0.12)

	UnitLatencyMinMs int `mapstructure:"unit_latency_min_ms"` // simulated per-unit latency floor (default: 80)
	UnitLatencyMaxMs int `mapstructure:"unit_latency_max_ms"` // simulated per-unit latency ceiling (default: 200)
	StepLatencyMinMs int `mapstructure:"step_latency_min_ms"` // simulated per-step latency floor (default: 30)
	StepLatencyMaxMs int `mapstructure:"step_latency_max_ms"` // simulated per-step latency ceiling (default: 90)

	ValidationSettleMs int `mapstructure:"validation_settle_ms"` // delay before Validating flips to Running (default: 600)

	RetrySuccessRate float64 `mapstructure:"retry_success_rate"` // app-sync retry success bias (default: 0.8)
}

// ValidationSettle returns the validation settling delay as a duration.
func (r RunnerConfig) ValidationSettle() time.Duration {
	return time.Duration(r.ValidationSettleMs) * time.Millisecond
}

// SchedulerConfig configures scheduled (delayed-start) jobs
type SchedulerConfig struct {
	// MaxPendingTimers caps how many Ready jobs may hold armed timers at
	// once; further scheduled submissions are rejected until one fires.
	MaxPendingTimers int `mapstructure:"max_pending_timers"`
}
