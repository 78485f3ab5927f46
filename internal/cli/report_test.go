package cli_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/gradebook/internal/cli"
	"github.com/rshade/gradebook/internal/config"
	"github.com/rshade/gradebook/internal/student"
)

const testRoster = `version: 1.2.0
students:
  - id: s-001
    first_name: Ada
    last_name: Lovelace
    grades:
      - {course: Analysis, score: 97, credits: 4}
      - {course: Logic, score: 91, credits: 3}
  - id: s-002
    first_name: Alan
    last_name: Turing
    grades:
      - {course: Computability, score: 99, credits: 5}
  - id: s-003
    first_name: Grace
    last_name: Hopper
`

// setupCLITest isolates config and environment and returns a working directory.
func setupCLITest(t *testing.T) string {
	t.Helper()
	config.ResetGlobalConfigForTest()
	config.SetResolvedProjectDir("")
	t.Setenv(config.EnvHome, t.TempDir())
	for _, k := range []string{
		config.EnvProjectDir, config.EnvFormat, config.EnvOutputDir, config.EnvWorkers, config.EnvLogFormat,
	} {
		t.Setenv(k, "")
	}
	t.Setenv(config.EnvLogLevel, "error")
	t.Cleanup(func() {
		config.ResetGlobalConfigForTest()
		config.SetResolvedProjectDir("")
	})
	return t.TempDir()
}

func writeRoster(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testRoster), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := cli.NewRootCmd("test")
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestReport_SingleFormat(t *testing.T) {
	dir := setupCLITest(t)
	roster := writeRoster(t, dir)
	out := filepath.Join(dir, "out")

	output, err := execute(t, "report", "--roster", roster, "--format", "json", "--output", out, "--workers", "2")
	require.NoError(t, err)

	assert.Contains(t, output, "All 3 report jobs finished")
	assert.Contains(t, output, "REPORT SUMMARY")

	data, err := os.ReadFile(filepath.Join(out, "s-002.json"))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, string(data), "Turing")
	assert.FileExists(t, filepath.Join(out, "s-001.json"))
	assert.FileExists(t, filepath.Join(out, "s-003.json"))
}

func TestReport_AllFormatsSubset(t *testing.T) {
	dir := setupCLITest(t)
	roster := writeRoster(t, dir)
	out := filepath.Join(dir, "out")

	_, err := execute(t, "report", "--roster", roster, "--output", out, "--format", "all", "--ids", "s-003,s-001")
	require.NoError(t, err)

	for _, f := range []string{"csv", "json", "yaml", "binary", "text"} {
		entries, readErr := os.ReadDir(filepath.Join(out, f))
		require.NoError(t, readErr)
		assert.Len(t, entries, 2, f)
	}
	assert.NoFileExists(t, filepath.Join(out, "csv", "s-002.csv"))
}

func TestReport_MetricsFile(t *testing.T) {
	dir := setupCLITest(t)
	roster := writeRoster(t, dir)
	metricsPath := filepath.Join(dir, "gradebook.prom")

	output, err := execute(t, "report", "--roster", roster, "--format", "csv",
		"--output", filepath.Join(dir, "out"), "--metrics-file", metricsPath)
	require.NoError(t, err)
	assert.Contains(t, output, "Metrics written to")

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `gradebook_report_jobs_total{outcome="completed"} 3`)
	assert.Contains(t, string(data), "gradebook_report_items_submitted_total 3")
}

func TestReport_AuditTrail(t *testing.T) {
	dir := setupCLITest(t)
	roster := writeRoster(t, dir)
	auditPath := filepath.Join(dir, "logs", "audit.log")

	cfg := config.Defaults()
	cfg.Logging.Audit = config.AuditConfig{Enabled: true, File: auditPath}
	cfg.SetConfigPath(filepath.Join(os.Getenv(config.EnvHome), "config.yaml"))
	require.NoError(t, cfg.Save())

	_, err := execute(t, "report", "--roster", roster, "--format", "text", "--output", filepath.Join(dir, "out"))
	require.NoError(t, err)

	f, err := os.Open(auditPath)
	require.NoError(t, err)
	defer f.Close()

	ops := map[string]int{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		op, _ := line["operation"].(string)
		ops[op]++
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, 3, ops["report.export"])
	assert.Equal(t, 1, ops["report.run"])
}

func TestReport_SetupErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    func(roster string) []string
		wantErr error
		wantMsg string
	}{
		{
			name:    "MissingRosterFlag",
			args:    func(string) []string { return []string{"report"} },
			wantMsg: `required flag(s) "roster" not set`,
		},
		{
			name:    "RosterNotFound",
			args:    func(string) []string { return []string{"report", "--roster", "/does/not/exist.yaml"} },
			wantErr: os.ErrNotExist,
		},
		{
			name:    "UnknownFormat",
			args:    func(r string) []string { return []string{"report", "--roster", r, "--format", "pdf"} },
			wantMsg: "unknown report format",
		},
		{
			name:    "ZeroWorkers",
			args:    func(r string) []string { return []string{"report", "--roster", r, "--workers", "0"} },
			wantErr: config.ErrInvalidWorkers,
		},
		{
			name:    "UnknownID",
			args:    func(r string) []string { return []string{"report", "--roster", r, "--ids", "s-404"} },
			wantErr: student.ErrUnknownID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupCLITest(t)
			roster := writeRoster(t, dir)
			t.Setenv(config.EnvOutputDir, filepath.Join(dir, "out"))

			_, err := execute(t, tt.args(roster)...)
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
			assert.Equal(t, 1, cli.ExitCode(err, 1))
			assert.NoDirExists(t, filepath.Join(dir, "out"))
		})
	}
}

func TestReport_FailOnError(t *testing.T) {
	dir := setupCLITest(t)
	roster := writeRoster(t, dir)
	out := filepath.Join(dir, "out")

	// A directory squatting on the target file name makes that one export fail.
	require.NoError(t, os.MkdirAll(filepath.Join(out, "s-002.csv"), 0o750))

	output, err := execute(t, "report", "--roster", roster, "--format", "csv", "--output", out)
	require.NoError(t, err, "failed items alone are not a command error")
	assert.Contains(t, output, "All 3 report jobs finished, 1 failed")
	assert.Contains(t, output, "s-002")

	_, err = execute(t, "report", "--roster", roster, "--format", "csv", "--output", out, "--fail-on-error")
	require.Error(t, err)
	assert.Equal(t, 2, cli.ExitCode(err, 1))
	assert.Contains(t, err.Error(), "1 of 3 reports failed")
}
