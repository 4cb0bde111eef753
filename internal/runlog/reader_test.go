package runlog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/refsnap/internal/artifact"
)

func TestListRuns(t *testing.T) {
	root := t.TempDir()

	ids, err := ListRuns(root)
	require.NoError(t, err)
	assert.Nil(t, ids, "no runs directory yet")

	for _, id := range []string{"2025-10-02T09-00-00", "2025-10-01T09-00-00"} {
		_, err := New(root, id)
		require.NoError(t, err)
	}

	ids, err = ListRuns(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-10-01T09-00-00", "2025-10-02T09-00-00"}, ids)
}

func TestReadProgressRoundTrip(t *testing.T) {
	root := t.TempDir()
	l, err := New(root, "run-1")
	require.NoError(t, err)

	require.NoError(t, l.Log(Entry{ISIN: "A", Status: StatusOK, Bucket: "2025-10-01"}))
	require.NoError(t, l.Log(Entry{ISIN: "B", Status: StatusSkip, Reason: "exists"}))
	require.NoError(t, l.Log(Entry{ISIN: "C", Status: StatusErr, Error: "boom", Extra: map[string]any{"attempt": 2.0}}))

	lines, err := ReadProgress(root, "run-1")
	require.NoError(t, err)
	require.Len(t, lines, 3)

	assert.Equal(t, "A", lines[0].ISIN)
	assert.Equal(t, StatusOK, lines[0].Status)
	assert.Equal(t, "2025-10-01", lines[0].Bucket)
	assert.NotEmpty(t, lines[0].Time)
	assert.Nil(t, lines[0].Extra)

	assert.Equal(t, "exists", lines[1].Reason)

	assert.Equal(t, "boom", lines[2].Error)
	assert.Equal(t, map[string]any{"attempt": 2.0}, lines[2].Extra)
}

func TestReadProgressMissingRun(t *testing.T) {
	_, err := ReadProgress(t.TempDir(), "nope")
	assert.True(t, errors.Is(err, artifact.ErrNotFound))
}

func TestReadProgressMalformedLine(t *testing.T) {
	root := t.TempDir()
	l, err := New(root, "run-1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(l.Dir(), "progress.jsonl"), []byte("{not json}\n"), 0o644))

	_, err = ReadProgress(root, "run-1")
	assert.True(t, errors.Is(err, artifact.ErrParse))
}

func TestSummarize(t *testing.T) {
	root := t.TempDir()
	l, err := New(root, "run-1")
	require.NoError(t, err)

	require.NoError(t, l.Log(Entry{ISIN: "A", Status: StatusOK}))
	require.NoError(t, l.Log(Entry{ISIN: "B", Status: StatusOK}))
	require.NoError(t, l.Log(Entry{ISIN: "C", Status: StatusSkip}))
	require.NoError(t, l.Log(Entry{ISIN: "D", Status: StatusErr}))

	s, err := Summarize(root, "run-1")
	require.NoError(t, err)
	assert.Equal(t, Summary{RunID: "run-1", Started: s.Started, OK: 2, Skip: 1, Err: 1}, s)
	assert.NotEmpty(t, s.Started)
	assert.Equal(t, 4, s.Total())
}

func TestSummarizeEmptyRun(t *testing.T) {
	root := t.TempDir()
	_, err := New(root, "run-1")
	require.NoError(t, err)

	s, err := Summarize(root, "run-1")
	require.NoError(t, err)
	assert.Zero(t, s.Total())
	assert.Empty(t, s.Started)
}
