package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samijaber1/aegis-sla/internal/storage"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schemaPath = "../../schemas/sla_config_v1.json"

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

// execute runs the root command with args and returns stdout and stderr
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// writeSQLiteConfig points the CLI at a fresh sqlite database
func writeSQLiteConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "database:\n  driver: sqlite\n  path: " + filepath.Join(dir, "cli.db") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "aegis-sla", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"migrate", "validate", "diff", "evaluate", "record", "history"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "--format", "xml", "diff", "testdata/old.yaml", "testdata/new.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestDiffText(t *testing.T) {
	out, _, err := execute(t, "diff", "testdata/old.yaml", "testdata/new.yaml")
	require.NoError(t, err)

	newGoldie(t).Assert(t, "diff_text", []byte(out))
}

func TestDiffJSON(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "diff", "testdata/old.yaml", "testdata/new.yaml")
	require.NoError(t, err)

	var d map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Len(t, d, 3)
	assert.Equal(t, 30.0, d["threshold_minutes"]["from"])
	assert.Equal(t, "sre", d["owner"]["to"])
	assert.NotContains(t, d, "escalation")
}

func TestDiffNoChanges(t *testing.T) {
	out, _, err := execute(t, "diff", "testdata/old.yaml", "testdata/old.yaml")
	require.NoError(t, err)
	assert.Equal(t, "No changes\n", out)
}

func TestValidate(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		out, _, err := execute(t, "validate", "--schema", schemaPath, "testdata/new.yaml")
		require.NoError(t, err)
		assert.Contains(t, out, "All 1 snapshot file(s) are valid")
	})

	t.Run("directory with an invalid file", func(t *testing.T) {
		_, stderr, err := execute(t, "validate", "--schema", schemaPath, "--concurrency", "2", "testdata")
		require.Error(t, err)
		assert.Contains(t, stderr, "invalid.yaml: threshold_minutes")
	})

	t.Run("json output", func(t *testing.T) {
		out, _, err := execute(t, "--format", "json", "validate", "--schema", schemaPath, "testdata/invalid.yaml", "testdata/missing.yaml")
		require.Error(t, err)

		var result ValidationResult
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.False(t, result.Valid)
		assert.Len(t, result.Errors, 2)
	})

	t.Run("bad concurrency", func(t *testing.T) {
		_, _, err := execute(t, "validate", "--schema", schemaPath, "--concurrency", "0", "testdata/new.yaml")
		assert.Error(t, err)
	})
}

func TestEvaluate(t *testing.T) {
	args := []string{
		"evaluate",
		"--incident", "INC-1042",
		"--severity", "P1",
		"--threshold", "30",
		"--opened-at", "2024-03-01T10:00:00Z",
		"--resolved-at", "2024-03-01T10:45:30Z",
		"--now", "2024-03-01T11:00:00Z",
	}

	t.Run("text", func(t *testing.T) {
		out, _, err := execute(t, args...)
		require.NoError(t, err)
		newGoldie(t).Assert(t, "evaluate_text", []byte(out))
	})

	t.Run("json", func(t *testing.T) {
		out, _, err := execute(t, append([]string{"--format", "json"}, args...)...)
		require.NoError(t, err)
		newGoldie(t).Assert(t, "evaluate_json", []byte(out))
	})

	t.Run("missing required flag", func(t *testing.T) {
		_, _, err := execute(t, "evaluate", "--incident", "INC-1")
		assert.Error(t, err)
	})

	t.Run("bad timestamp", func(t *testing.T) {
		_, _, err := execute(t, "evaluate", "--incident", "INC-1", "--severity", "P1", "--threshold", "30", "--opened-at", "noon")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--opened-at")
	})
}

func TestEvaluatePersist(t *testing.T) {
	configPath := writeSQLiteConfig(t)

	out, _, err := execute(t,
		"--config", configPath, "--format", "json",
		"evaluate", "--persist",
		"--incident", "INC-3", "--severity", "P3", "--threshold", "60",
		"--opened-at", "2024-03-01T10:00:00Z", "--resolved-at", "2024-03-01T10:10:00Z",
	)
	require.NoError(t, err)

	var calc struct {
		MTTRMinutes float64           `json:"mttr_minutes"`
		Trace       *storage.SlaTrace `json:"trace"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &calc))
	assert.Equal(t, 10.0, calc.MTTRMinutes)
	require.NotNil(t, calc.Trace)
	assert.NotEmpty(t, calc.Trace.ID)
}

func TestRecordAndHistory(t *testing.T) {
	configPath := writeSQLiteConfig(t)

	_, _, err := execute(t, "--config", configPath, "migrate")
	require.NoError(t, err)

	out, _, err := execute(t, "--config", configPath, "record", "cfg-p1", "testdata/old.yaml", "--changed-by", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded cfg-p1 version 1 by alice")

	out, _, err = execute(t, "--config", configPath, "record", "cfg-p1", "testdata/new.yaml", "--changed-by", "bob", "--reason", "raise P1 threshold")
	require.NoError(t, err)
	assert.Contains(t, out, "version 2")
	assert.Contains(t, out, "[business_hours_only owner threshold_minutes]")

	out, _, err = execute(t, "--config", configPath, "history", "cfg-p1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "bob")
	assert.Contains(t, lines[2], "alice")

	out, _, err = execute(t, "--config", configPath, "--format", "json", "history", "cfg-p1", "--version", "2")
	require.NoError(t, err)
	var versions []storage.ConfigVersion
	require.NoError(t, json.Unmarshal([]byte(out), &versions))
	require.Len(t, versions, 1)
	require.NotNil(t, versions[0].ChangeReason)
	assert.Equal(t, "raise P1 threshold", *versions[0].ChangeReason)

	out, _, err = execute(t, "--config", configPath, "history", "alice", "--user")
	require.NoError(t, err)
	assert.Contains(t, out, "cfg-p1")

	_, _, err = execute(t, "--config", configPath, "history", "cfg-missing", "--latest")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	out, _, err = execute(t, "--config", configPath, "history", "cfg-missing")
	require.NoError(t, err)
	assert.Equal(t, "No history for cfg-missing\n", out)
}
