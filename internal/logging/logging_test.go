package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"Info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(&buf, Options{Level: "warn", JSON: true})

	log.Info().Msg("dropped")
	log.Warn().Str("trial", "abc").Int("frames", 2400).Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "abc", entry["trial"])
	assert.EqualValues(t, 2400, entry["frames"])
	assert.Contains(t, entry, "time")
}

func TestNewConsoleWithFile(t *testing.T) {
	t.Parallel()

	var out, file bytes.Buffer
	log := New(&out, Options{Level: "debug", NoColor: true, File: &file})

	log.Debug().Str("path", "trial.tsv").Msg("reading capture")

	for name, buf := range map[string]*bytes.Buffer{"console": &out, "file": &file} {
		s := buf.String()
		assert.Contains(t, s, "reading capture", name)
		assert.Contains(t, s, "path=trial.tsv", name)
		assert.NotContains(t, s, "\x1b[", "%s has colour codes", name)
	}
}

func TestNop(t *testing.T) {
	t.Parallel()

	log := Nop()
	assert.Equal(t, zerolog.Disabled, log.GetLevel())
}
