package internal

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "production", "warn")

	logger.Info("hidden")
	logger.Warn("quota exceeded", "plan", "free")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec), "expected a single JSON record, got %q", buf.String())
	assert.Equal(t, "quota exceeded", rec["msg"])
	assert.Equal(t, "free", rec["plan"])
	assert.Equal(t, "magicsocial", rec["service"])
}

func TestNewLogger_DevelopmentWritesText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "development", "DEBUG")

	logger.Debug("verbose")

	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "msg=verbose")
}

func TestNewLogger_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "production", "chatty")

	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	logger.Info("shown")
	assert.Contains(t, buf.String(), "shown")
}
