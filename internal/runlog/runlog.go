// Package runlog keeps the per-run progress ledger for batch jobs.
//
// Layout under an artifact root:
//
//	<root>/runs/<run_id>/
//	  progress.jsonl     one JSON object per processed entity, append-only
//	  ok/<ISIN>.ok       empty marker per succeeded entity
//	  err/<ISIN>.json    structured error payload per failed entity
//
// The ledger is independent of the bucket concept: it records processing
// order and outcomes, not snapshot content.
package runlog

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/refsnap/internal/artifact"
)

// Status is the terminal outcome of one entity within a run.
type Status string

const (
	StatusOK   Status = "ok"
	StatusSkip Status = "skip"
	StatusErr  Status = "err"
)

// runIDLayout is filesystem-path-safe (no colons). Second resolution: two
// runs started within the same second in one process collide; callers that
// need uniqueness supply their own run id.
const runIDLayout = "2006-01-02T15-04-05"

// Entry is one progress line. Extra fields are merged into the JSON object
// but never override the standard fields.
type Entry struct {
	ISIN   string
	Status Status
	Bucket string
	Reason string
	Error  string
	Extra  map[string]any
}

// RunLog appends progress records and ok/err markers for one run. Each
// entity owns distinct files, so no intra-run write conflicts occur.
type RunLog struct {
	runID    string
	runDir   string
	okDir    string
	errDir   string
	progress string
}

// New constructs the run log for (root, runID), eagerly and idempotently
// creating the run directory, the ok/ and err/ subdirectories, and an empty
// progress ledger. An empty runID defaults to the current UTC timestamp.
func New(root, runID string) (*RunLog, error) {
	if runID == "" {
		runID = time.Now().UTC().Format(runIDLayout)
	}
	runDir := filepath.Join(root, "runs", runID)

	l := &RunLog{
		runID:    runID,
		runDir:   runDir,
		okDir:    filepath.Join(runDir, "ok"),
		errDir:   filepath.Join(runDir, "err"),
		progress: filepath.Join(runDir, "progress.jsonl"),
	}
	for _, dir := range []string{l.runDir, l.okDir, l.errDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "runlog: create %s", dir)
		}
	}

	// Touch the ledger so it exists before the first append (tail -f friendly).
	f, err := os.OpenFile(l.progress, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, eris.Wrapf(err, "runlog: create ledger %s", l.progress)
	}
	if err := f.Close(); err != nil {
		return nil, eris.Wrapf(err, "runlog: close ledger %s", l.progress)
	}
	return l, nil
}

// RunID returns the identifier of this run.
func (l *RunLog) RunID() string { return l.runID }

// Dir returns the run directory.
func (l *RunLog) Dir() string { return l.runDir }

// ProgressPath returns the path of the progress ledger.
func (l *RunLog) ProgressPath() string { return l.progress }

// Log appends one line to the progress ledger with a UTC second-resolution
// timestamp. Optional fields are omitted when empty.
func (l *RunLog) Log(e Entry) error {
	rec := map[string]any{
		"time":   time.Now().UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z"),
		"isin":   e.ISIN,
		"status": string(e.Status),
	}
	if e.Bucket != "" {
		rec["bucket"] = e.Bucket
	}
	if e.Reason != "" {
		rec["reason"] = e.Reason
	}
	if e.Error != "" {
		rec["error"] = e.Error
	}
	for k, v := range e.Extra {
		if _, taken := rec[k]; !taken {
			rec[k] = v
		}
	}

	line, err := artifact.MarshalLine(rec)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(l.progress, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return eris.Wrapf(err, "runlog: open ledger %s", l.progress)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return eris.Wrapf(err, "runlog: append to %s", l.progress)
	}
	return nil
}

// MarkOK creates the empty success marker for isin. Re-marking overwrites
// the existing (empty) marker.
func (l *RunLog) MarkOK(isin string) error {
	path := filepath.Join(l.okDir, isin+".ok")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return eris.Wrapf(err, "runlog: mark ok %s", isin)
	}
	return nil
}

// MarkErr writes the structured error payload for isin, overwriting any
// prior payload for that identifier within this run.
func (l *RunLog) MarkErr(isin string, payload any) error {
	_, err := artifact.WriteJSON(filepath.Join(l.errDir, isin+".json"), payload)
	return err
}
