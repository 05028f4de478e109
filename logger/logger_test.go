package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoggerIsSafe(t *testing.T) {
	// The package-level logger must be usable before Initialize().
	require.NotNil(t, Logger)
	Logger.Infow("no-op logger should not panic", "key", "value")
}

func TestInitialize(t *testing.T) {
	err := Initialize(false)
	require.NoError(t, err)
	assert.False(t, JSONOutput)
	require.NotNil(t, Logger)

	err = Initialize(true)
	require.NoError(t, err)
	assert.True(t, JSONOutput)
}

func TestNamed(t *testing.T) {
	require.NoError(t, Initialize(false))
	child := Named("bulk")
	require.NotNil(t, child)
	child.Debugw("named child logger works")
}
