package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/uploadlog/internal/config"
	"github.com/coffersTech/uploadlog/internal/feed"
	"github.com/coffersTech/uploadlog/internal/model"
	"github.com/coffersTech/uploadlog/internal/server"
	"github.com/coffersTech/uploadlog/internal/store"
)

type testEnv struct {
	cfg *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	dataFile := filepath.Join(dir, "uploads.json")

	st, err := store.NewFileStore(dataFile)
	require.NoError(t, err)
	ts := httptest.NewServer(server.NewRecordServer(st, "").Handler())
	t.Cleanup(ts.Close)

	return &testEnv{
		cfg: &config.Config{
			Backend:           store.BackendFile,
			DataFile:          dataFile,
			SnapshotDir:       filepath.Join(dir, "snapshots"),
			SnapshotRetention: time.Hour,
			ServerURL:         ts.URL,
			PollInterval:      time.Second,
			ClientTimeout:     5 * time.Second,
		},
	}
}

func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd("test", e.cfg)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_AddListGetRm(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "", "add", "Camera", "--meta", `{"lens":"35mm"}`)
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	assert.NotEmpty(t, id)

	out, err = env.run(t, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "Camera")

	out, err = env.run(t, "", "get", id)
	require.NoError(t, err)
	var rec model.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "Camera", rec.Name)
	assert.JSONEq(t, `{"lens":"35mm"}`, string(rec.Meta))

	// Declined confirmation keeps the record.
	out, err = env.run(t, "n\n", "rm", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted.")

	out, err = env.run(t, "y\n", "rm", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted "+id)

	_, err = env.run(t, "", "get", id)
	assert.Error(t, err)

	out, err = env.run(t, "", "list")
	require.NoError(t, err)
	assert.Equal(t, feed.Placeholder+"\n", out)
}

func TestCLI_AddValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "", "add", "Camera", "--meta", "{broken")
	assert.ErrorContains(t, err, "--meta")

	_, err = env.run(t, "", "add", "")
	assert.ErrorContains(t, err, "missing name")

	_, err = env.run(t, "", "get", "abc")
	assert.ErrorContains(t, err, "invalid record id")
}

func TestCLI_ListJSON(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"Camera", "Scanner"} {
		_, err := env.run(t, "", "add", name)
		require.NoError(t, err)
	}

	out, err := env.run(t, "", "list", "--json")
	require.NoError(t, err)

	var records []model.Record
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "Scanner", records[0].Name)
}

func TestCLI_GetDownload(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "", "add", "Printer")
	require.NoError(t, err)
	id := strings.TrimSpace(out)

	dir := t.TempDir()
	out, err = env.run(t, "", "get", id, "--download", "--dir", dir)
	require.NoError(t, err)

	path := strings.TrimSpace(out)
	assert.Equal(t, filepath.Join(dir, "upload-"+id+".json"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Printer"`)
}

func TestCLI_Clear(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"Camera", "Scanner", "Printer"} {
		_, err := env.run(t, "", "add", name)
		require.NoError(t, err)
	}

	out, err := env.run(t, "", "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 3 records")

	out, err = env.run(t, "", "list", "--all")
	require.NoError(t, err)
	assert.Equal(t, feed.Placeholder+"\n", out)
}

func TestCLI_SnapshotNowAndInspect(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "", "add", "Camera")
	require.NoError(t, err)

	out, err := env.run(t, "", "snapshot", "now")
	require.NoError(t, err)
	path := strings.TrimSpace(out)
	assert.FileExists(t, path)

	out, err = env.run(t, "", "snapshot", "list")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	out, err = env.run(t, "", "snapshot", "inspect", path, "--json")
	require.NoError(t, err)
	var records []model.Record
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "Camera", records[0].Name)
}

func TestCLI_Stats(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"Scanner", "Camera", "Camera"} {
		_, err := env.run(t, "", "add", name)
		require.NoError(t, err)
	}

	out, err := env.run(t, "", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "records: 3 (recent 3)")
	assert.Less(t, strings.Index(out, "Camera"), strings.Index(out, "Scanner"))
}

func TestCLI_WatchRejectsZeroInterval(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "", "watch", "--interval", "0")
	assert.ErrorContains(t, err, "UPLOADLOG_POLL_INTERVAL must be positive")
}

func TestApplyWatchCommand(t *testing.T) {
	env := newTestEnv(t)
	r := feed.NewReconciler(newClient(env.cfg))
	ctx := context.Background()

	require.NoError(t, applyWatchCommand(ctx, r, "+ Camera"))
	entries := r.Entries()
	require.Len(t, entries, 1)
	require.False(t, entries[0].Provisional)

	require.NoError(t, applyWatchCommand(ctx, r, "all"))
	assert.True(t, r.IncludeAll())

	require.NoError(t, applyWatchCommand(ctx, r, "- "+entries[0].Record.IDString()))
	assert.Empty(t, r.Entries())

	require.NoError(t, applyWatchCommand(ctx, r, "  "))
	assert.Error(t, applyWatchCommand(ctx, r, "help"))
	assert.Error(t, applyWatchCommand(ctx, r, "- nope"))
}
