package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)

	assert.Equal(t, "rosterops.db", cfg.Database.Path)
	assert.InDelta(t, 0.08, cfg.Runner.WizardFailureRate, 1e-9)
	assert.InDelta(t, 0.12, cfg.Runner.CSVFailureRate, 1e-9)
	assert.Equal(t, 600, cfg.Runner.ValidationSettleMs)
	assert.InDelta(t, 0.8, cfg.Runner.RetrySuccessRate, 1e-9)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rosterops.toml")
	content := `
[database]
path = "/tmp/hr.db"

[runner]
wizard_failure_rate = 0.0
csv_failure_rate = 0.5
validation_settle_ms = 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/hr.db", cfg.Database.Path)
	assert.Zero(t, cfg.Runner.WizardFailureRate)
	assert.InDelta(t, 0.5, cfg.Runner.CSVFailureRate, 1e-9)
	assert.Equal(t, 5, cfg.Runner.ValidationSettleMs)
	// untouched keys keep defaults
	assert.Equal(t, 80, cfg.Runner.UnitLatencyMinMs)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}
