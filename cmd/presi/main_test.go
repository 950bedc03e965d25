package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/presi/internal/config"
	"github.com/orrn/presi/internal/db"
	"github.com/orrn/presi/internal/pipeline"
)

func TestMain(m *testing.M) {
	if pipeline.IsSupervisor() {
		os.Exit(pipeline.RunSupervisor())
	}
	os.Exit(m.Run())
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Printers.SpoolDir = t.TempDir()
	cfg.Logging.Level = "error"
	cfg.Journal.Path = filepath.Join(t.TempDir(), "journal.db")
	return cfg
}

func TestRunScriptPrintsPassthrough(t *testing.T) {
	cfg := testConfig(t)
	doc := filepath.Join(t.TempDir(), "memo.txt")
	require.NoError(t, os.WriteFile(doc, []byte("hello printer\n"), 0o644))

	script := strings.Join([]string{
		"type txt",
		"printer Alice txt",
		"enable Alice",
		"print " + doc,
		"jobs",
		"printers",
		"quit",
	}, "\n")

	var out bytes.Buffer
	err := run(context.Background(), cfg, input{
		script: strings.NewReader(script),
		stdin:  strings.NewReader("type never\n"),
	}, &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "JOB[ 0] finished   "+doc)
	assert.Contains(t, out.String(), "PRINTER  0 Alice      type=txt  idle")

	printed, err := os.ReadFile(filepath.Join(cfg.Printers.SpoolDir, "Alice.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello printer\n", string(printed))

	conn, err := db.Open(db.Config{Path: cfg.Journal.Path})
	require.NoError(t, err)
	journal := db.NewJournal(conn, nil)
	defer journal.Close()

	finished, err := journal.Events(context.Background(), db.EventFilter{Kind: "job_finished"})
	require.NoError(t, err)
	require.Len(t, finished, 1)
	assert.Equal(t, 0, *finished[0].JobID)

	typed, err := journal.Events(context.Background(), db.EventFilter{Kind: "type_defined"})
	require.NoError(t, err)
	assert.Len(t, typed, 1, "stdin is not read after quit")
}

func TestRunContinuesWithStdin(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.Path = ""

	var out bytes.Buffer
	err := run(context.Background(), cfg, input{
		script: strings.NewReader("type txt\n"),
		stdin:  strings.NewReader("printer Alice txt\nprinters\nbogus\n"),
	}, &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "PRINTER  0 Alice      type=txt  disabled")
	assert.Contains(t, out.String(), "error: unknown command: bogus")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "presi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestTokenCommand(t *testing.T) {
	path := writeConfig(t, "api:\n  jwt_secret: test-secret\n")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--config", path, "--subject", "ops"})
	require.NoError(t, cmd.Execute())

	token := strings.TrimSpace(out.String())
	assert.Len(t, strings.Split(token, "."), 3)
}

func TestTokenCommandNeedsSecret(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"token", "--config", writeConfig(t, "logging:\n  level: warn\n")})
	assert.Error(t, cmd.Execute())
}

func TestEventsCommand(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, run(context.Background(), cfg, input{
		script: strings.NewReader("type txt\nprinter Alice txt\nquit\n"),
		stdin:  strings.NewReader(""),
	}, &bytes.Buffer{}))

	path := writeConfig(t, "journal:\n  path: "+cfg.Journal.Path+"\nlogging:\n  level: error\n")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"events", "--config", path, "--kind", "printer_defined"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "printer_defined")
	assert.Contains(t, out.String(), "printer=Alice")
	assert.NotContains(t, out.String(), "type_defined")
}

func TestInvalidConfigRejected(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", writeConfig(t, "spool:\n  max_jobs: 0\n")})
	assert.Error(t, cmd.Execute())
}
