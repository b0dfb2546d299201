package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterEmitsJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(&buf)
	log.Info().Str("engine", "pending").Int("imported", 3).Msg("batch done")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "batch done", entry["message"])
	require.Equal(t, "pending", entry["engine"])
	require.Equal(t, float64(3), entry["imported"])
	require.NotEmpty(t, entry["time"])
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	require.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	require.Equal(t, zerolog.WarnLevel, parseLevel("WARN"))
	require.Equal(t, zerolog.ErrorLevel, parseLevel(" error "))
	require.Equal(t, zerolog.InfoLevel, parseLevel("anything"))
}
