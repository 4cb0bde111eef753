package runlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		lines = append(lines, rec)
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestNew_CreatesLayoutIdempotently(t *testing.T) {
	root := filepath.Join(t.TempDir(), "profiles")

	l, err := New(root, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", l.RunID())
	assert.Equal(t, filepath.Join(root, "runs", "run-1"), l.Dir())

	for _, p := range []string{
		l.Dir(),
		filepath.Join(l.Dir(), "ok"),
		filepath.Join(l.Dir(), "err"),
	} {
		info, statErr := os.Stat(p)
		require.NoError(t, statErr)
		assert.True(t, info.IsDir())
	}
	_, err = os.Stat(l.ProgressPath())
	assert.NoError(t, err)

	// Reconstructing the same run id is safe and keeps existing content.
	require.NoError(t, l.Log(Entry{ISIN: "A", Status: StatusOK}))
	again, err := New(root, "run-1")
	require.NoError(t, err)
	assert.Len(t, readLines(t, again.ProgressPath()), 1)
}

func TestNew_DefaultRunIDIsPathSafeUTC(t *testing.T) {
	l, err := New(t.TempDir(), "")
	require.NoError(t, err)
	// e.g. 2025-10-30T07-59-12
	assert.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}$`), l.RunID())
}

func TestLog_ProgressSchema(t *testing.T) {
	l, err := New(t.TempDir(), "run-1")
	require.NoError(t, err)

	require.NoError(t, l.Log(Entry{ISIN: "IE00B4L5Y983", Status: StatusOK, Bucket: "2025-10-30"}))
	require.NoError(t, l.Log(Entry{ISIN: "LU0274208692", Status: StatusSkip, Bucket: "2025-10-30", Reason: "exists"}))
	require.NoError(t, l.Log(Entry{ISIN: "DE0005933931", Status: StatusErr, Error: "boom"}))

	lines := readLines(t, l.ProgressPath())
	require.Len(t, lines, 3)

	assert.Equal(t, "IE00B4L5Y983", lines[0]["isin"])
	assert.Equal(t, "ok", lines[0]["status"])
	assert.Equal(t, "2025-10-30", lines[0]["bucket"])
	assert.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`), lines[0]["time"])
	assert.NotContains(t, lines[0], "reason")
	assert.NotContains(t, lines[0], "error")

	assert.Equal(t, "exists", lines[1]["reason"])
	assert.Equal(t, "boom", lines[2]["error"])
	assert.NotContains(t, lines[2], "bucket")
}

func TestLog_ExtraNeverOverridesStandardFields(t *testing.T) {
	l, err := New(t.TempDir(), "run-1")
	require.NoError(t, err)

	require.NoError(t, l.Log(Entry{
		ISIN:   "A",
		Status: StatusOK,
		Bucket: "2025-10-30",
		Extra: map[string]any{
			"status":   "hijacked",
			"time":     "hijacked",
			"attempts": 2.0,
		},
	}))

	lines := readLines(t, l.ProgressPath())
	require.Len(t, lines, 1)
	assert.Equal(t, "ok", lines[0]["status"])
	assert.NotEqual(t, "hijacked", lines[0]["time"])
	assert.Equal(t, 2.0, lines[0]["attempts"])
}

func TestMarkOK(t *testing.T) {
	l, err := New(t.TempDir(), "run-1")
	require.NoError(t, err)
	require.NoError(t, l.MarkOK("IE00B4L5Y983"))

	info, err := os.Stat(filepath.Join(l.Dir(), "ok", "IE00B4L5Y983.ok"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())

	// Re-marking is safe.
	require.NoError(t, l.MarkOK("IE00B4L5Y983"))
}

func TestMarkErr_OverwritesPriorPayload(t *testing.T) {
	l, err := New(t.TempDir(), "run-1")
	require.NoError(t, err)

	require.NoError(t, l.MarkErr("A", map[string]any{"isin": "A", "error": "first"}))
	require.NoError(t, l.MarkErr("A", map[string]any{"isin": "A", "error": "second"}))

	data, err := os.ReadFile(filepath.Join(l.Dir(), "err", "A.json"))
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, "second", payload["error"])
}
