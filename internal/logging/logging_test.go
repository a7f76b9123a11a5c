// internal/logging/logging_test.go - Unit tests for logger construction
package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/valpere/airphoto_tiler/internal/config"
)

func TestBuildJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Build(config.LoggingConfig{Level: "info", Format: "json"}, &buf)

	logger.Debug().Msg("hidden")
	stageLogger := Stage(logger, "cut")
	stageLogger.Info().Int("zoom", 12).Msg("zoom level done")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "zoom level done", entry["msg"])
	require.Equal(t, "airphoto-tiler", entry["service"])
	require.Equal(t, "cut", entry["stage"])
	require.Equal(t, float64(12), entry["zoom"])
	require.Contains(t, entry, "timestamp")
}

func TestBuildVerboseEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := Build(config.LoggingConfig{Level: "error", Format: "json", Verbose: true}, &buf)

	logger.Debug().Msg("visible")
	require.Contains(t, buf.String(), "visible")
}

func TestBuildText(t *testing.T) {
	var buf bytes.Buffer
	logger := Build(config.LoggingConfig{Level: "warn", Format: "text"}, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "shown")
	require.False(t, strings.HasPrefix(out, "{"))
}
