package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielmundi/PronoSupinoADM/internal/api"
	"github.com/danielmundi/PronoSupinoADM/internal/db"
	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l5rom"
	"github.com/danielmundi/PronoSupinoADM/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCapture(t *testing.T, dir, name string, angles []float64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(testutil.TSV(testutil.TrialFromAngles(angles, 120))), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestRun_Text(t *testing.T) {
	t.Parallel()
	input := writeCapture(t, t.TempDir(), "subject.tsv", testutil.SineAngles(60, 4, 20, 120))

	stdout, _, err := runCLI(t, input)
	require.NoError(t, err)
	assert.Contains(t, stdout, "subject.tsv: 2400 frames at 120 Hz")
	assert.Contains(t, stdout, "pronation peaks:  [")
	assert.Contains(t, stdout, "total 120.0°")
}

func TestRun_JSON(t *testing.T) {
	t.Parallel()
	input := writeCapture(t, t.TempDir(), "subject.tsv", testutil.SineAngles(60, 4, 20, 120))

	stdout, _, err := runCLI(t, "-json", "-workers", "4", input)
	require.NoError(t, err)

	var got resultJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, "subject.tsv", got.File)
	assert.Equal(t, 2400, got.Frames)
	require.NotNil(t, got.Total)
	assert.InDelta(t, 120, *got.Total, 0.1)
	assert.Len(t, got.PronationPeaks, 5)
	assert.Len(t, got.SupinationPeaks, 5)
	assert.Empty(t, got.Error)
}

func TestRun_NoPeaks(t *testing.T) {
	t.Parallel()
	input := writeCapture(t, t.TempDir(), "flat.tsv", make([]float64, 300))

	stdout, _, err := runCLI(t, "-json", input)
	require.ErrorIs(t, err, l5rom.ErrEmptyPeakSet)

	var got resultJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Nil(t, got.Total)
	assert.Contains(t, got.Error, "no pronation peaks found")
	assert.Empty(t, got.PronationPeaks)
}

func TestRun_Outputs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	input := writeCapture(t, dir, "subject.tsv", testutil.SineAngles(60, 4, 20, 120))
	pngPath := filepath.Join(dir, "out.png")
	htmlPath := filepath.Join(dir, "out.html")
	dbPath := filepath.Join(dir, "trials.db")

	_, stderr, err := runCLI(t, "-png", pngPath, "-html", htmlPath, "-db", dbPath, input)
	require.NoError(t, err)
	assert.Contains(t, stderr, "trial recorded")

	png, err := os.ReadFile(pngPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	page, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(page), "echarts")

	database, err := db.NewDB(dbPath)
	require.NoError(t, err)
	defer database.Close()
	trials, err := database.Trials(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, trials, 1)
	assert.Equal(t, "subject.tsv", trials[0].Name)
	assert.True(t, filepath.IsAbs(trials[0].SourcePath))
}

func TestRun_Upload(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	input := writeCapture(t, dir, "subject.tsv", testutil.SineAngles(60, 4, 20, 120))

	database, err := db.NewDB(filepath.Join(dir, "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	srv := httptest.NewServer(api.NewServer(database, nil, api.WithUploadDir(filepath.Join(dir, "uploads"))).ServeMux())
	t.Cleanup(srv.Close)

	_, stderr, err := runCLI(t, "-upload", srv.URL, input)
	require.NoError(t, err)
	assert.Contains(t, stderr, "trial uploaded")

	trials, err := database.Trials(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, trials, 1)
	assert.Equal(t, "subject.tsv", trials[0].Name)
	require.NotNil(t, trials[0].ROM)
	assert.InDelta(t, 120, trials[0].ROM.Total, 0.1)
}

func TestRun_UploadRejected(t *testing.T) {
	t.Parallel()
	input := writeCapture(t, t.TempDir(), "subject.tsv", testutil.SineAngles(60, 4, 20, 120))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"disk full"}`, http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, _, err := runCLI(t, "-upload", srv.URL, input)
	var se *api.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Equal(t, "disk full", se.Message)
}

func TestRun_ConfigFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	input := writeCapture(t, dir, "subject.tsv", testutil.SineAngles(60, 4, 20, 120))
	cfgPath := filepath.Join(dir, "tuning.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"pronation_threshold_fraction": 1.5}`), 0o644))

	_, _, err := runCLI(t, "-config", cfgPath, input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestRun_Version(t *testing.T) {
	t.Parallel()

	stdout, _, err := runCLI(t, "-version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "prosup dev"))
}

func TestRun_UsageErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{"no input", nil},
		{"two inputs", []string{"a.tsv", "b.tsv"}},
		{"unknown flag", []string{"-nope", "a.tsv"}},
		{"negative workers", []string{"-workers", "-1", "a.tsv"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := runCLI(t, tt.args...)
			assert.ErrorIs(t, err, errUsage)
		})
	}
}

func TestRun_MissingFile(t *testing.T) {
	t.Parallel()

	_, _, err := runCLI(t, filepath.Join(t.TempDir(), "missing.tsv"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, errUsage)
}
