package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("info", false)
	require.NoError(t, err)
	require.NotNil(t, logger)
	_ = logger.Sync()
}

func TestNewLoggerDebugOverride(t *testing.T) {
	logger, err := NewLogger("error", true)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1), "debug mode should enable DebugLevel")
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	_, err := NewLogger("loud", false)
	assert.Error(t, err)
}
