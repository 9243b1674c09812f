package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emailtracker/internal/auth"
	"emailtracker/internal/model"
	"emailtracker/internal/replay"
)

// execute runs trackerctl against a throwaway sqlite file.
func execute(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	base := []string{"--config-dir", "../../config", "--env", "local", "--store", "sqlite", "--sqlite-path", dbPath}
	cmd.SetArgs(append(base, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestReplayThenQuery(t *testing.T) {
	db := filepath.Join(t.TempDir(), "tracker.db")

	out, err := execute(t, db, "replay", "../replay/testdata/oauth_github.yaml")
	require.NoError(t, err, out)
	assert.Contains(t, out, "github-oauth: 6 steps, 1 prompt(s)")
	assert.Contains(t, out, "saved   github.com")

	out, err = execute(t, db, "--format", "json", "search", "github")
	require.NoError(t, err, out)
	var records []model.EmailRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "alice@gmail.com", records[0].Email)

	out, err = execute(t, db, "search", "--email", "ALICE@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, "github.com\n", out)

	out, err = execute(t, db, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Records:        1")
	assert.Contains(t, out, "Google")
}

func TestReplay_SharedSessionJSON(t *testing.T) {
	db := filepath.Join(t.TempDir(), "tracker.db")
	out, err := execute(t, db, "--format", "json", "replay",
		"../replay/testdata/form_login.yaml", "../replay/testdata/form_expired.yaml")
	require.NoError(t, err, out)

	var results []replay.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Len(t, results[0].Prompts, 1)
	assert.Empty(t, results[1].Prompts)
}

func TestReplay_MissingScenario(t *testing.T) {
	_, err := execute(t, filepath.Join(t.TempDir(), "tracker.db"), "replay", "nope.yaml")
	assert.Error(t, err)
}

func TestExportImport(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.db")
	_, err := execute(t, src, "replay", "--auto-save", "../replay/testdata/form_login.yaml")
	require.NoError(t, err)

	file := filepath.Join(dir, "export.json")
	_, err = execute(t, src, "export", "-o", file)
	require.NoError(t, err)
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version": "1.0.0"`)

	dst := filepath.Join(dir, "dst.db")
	out, err := execute(t, dst, "import", file)
	require.NoError(t, err)
	assert.Equal(t, "Imported 1 records.\n", out)

	out, err = execute(t, dst, "search")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "DOMAIN"), out)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"records": 3}`), 0o600))
	_, err = execute(t, dst, "import", bad)
	assert.ErrorIs(t, err, model.ErrInvalidFormat)
}

func TestHashKey(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config-dir", "/nonexistent", "hash-key", "s3cret"})
	require.NoError(t, cmd.Execute())

	hash := strings.TrimSpace(out.String())
	assert.True(t, auth.CheckKey("s3cret", hash))
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, filepath.Join(t.TempDir(), "x.db"), "--format", "yaml", "stats")
	assert.Error(t, err)
}
