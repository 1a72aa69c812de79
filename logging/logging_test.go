package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Options{Level: "info", Format: "json", Output: &buf})
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug().Msg("hidden")
	logger.Info().Str("component", "hub").Msg("visible")

	line := buf.String()
	require.Equal(t, "visible", gjson.Get(line, "message").String())
	require.Equal(t, "hub", gjson.Get(line, "component").String())
	require.NotContains(t, line, "hidden")
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.log")
	logger, closer, err := New(Options{Level: "debug", Format: "json", File: path, Output: &bytes.Buffer{}})
	require.NoError(t, err)

	logger.Warn().Msg("to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "to file")
}

func TestNewRejectsLevel(t *testing.T) {
	_, _, err := New(Options{Level: "loud"})
	require.Error(t, err)
}
