package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelParsing(t *testing.T) {
	require.Equal(t, LevelDebug, ParseLevel("debug"))
	require.Equal(t, LevelWarn, ParseLevel("warn"))
	require.Equal(t, LevelInfo, ParseLevel("bogus"))
	require.Equal(t, "error", LevelError.String())
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, LevelWarn, FormatText)

	log.Debug("dropped")
	log.Info("dropped too")
	log.Warn("kept")

	out := buf.String()
	require.NotContains(t, out, "dropped")
	require.Contains(t, out, "kept")
}

func TestLoggerTextFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, LevelDebug, FormatText)

	log.Info("state switch", "from", "follower", "to", "candidate")

	line := strings.TrimSpace(buf.String())
	require.Contains(t, line, "state switch")
	require.Contains(t, line, "from=follower")
	require.Contains(t, line, "to=candidate")
}

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, LevelDebug, FormatJSON)

	log.Info("commit", "index", 3)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "commit", entry["msg"])
	require.Equal(t, "info", entry["level"])
	require.Equal(t, float64(3), entry["index"])
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, LevelDebug, FormatText).WithFields("node", 1)

	log.Info("tick")

	require.Contains(t, buf.String(), "node=1")
}

func TestNopLogger(t *testing.T) {
	log := NewNop()
	log.Info("nothing happens")
	log.WithFields("k", "v").Error("still nothing")
}
