package runlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/refsnap/internal/artifact"
)

// ProgressLine is one parsed ledger record, standard fields lifted out
// and everything else kept in Extra.
type ProgressLine struct {
	Time   string
	ISIN   string
	Status Status
	Bucket string
	Reason string
	Error  string
	Extra  map[string]any
}

// Summary aggregates the outcomes of one run.
type Summary struct {
	RunID   string
	Started string
	OK      int
	Skip    int
	Err     int
}

// Total returns the number of processed entities.
func (s Summary) Total() int { return s.OK + s.Skip + s.Err }

// ListRuns returns the run identifiers under root, oldest first. Run ids
// are timestamps by default, so lexicographic order is chronological.
func ListRuns(root string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(root, "runs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "runlog: list runs under %s", root)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ReadProgress parses the progress ledger of (root, runID). Missing runs
// fail with ErrNotFound; malformed lines fail with ErrParse.
func ReadProgress(root, runID string) ([]ProgressLine, error) {
	path := filepath.Join(root, "runs", runID, "progress.jsonl")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Wrapf(artifact.ErrNotFound, "runlog: %s", path)
		}
		return nil, eris.Wrapf(err, "runlog: open %s", path)
	}
	defer f.Close()

	var lines []ProgressLine
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, eris.Wrapf(artifact.ErrParse, "runlog: %s: %v", path, err)
		}
		lines = append(lines, lineFromRecord(rec))
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "runlog: read %s", path)
	}
	return lines, nil
}

// Summarize reads a run's ledger and counts outcomes.
func Summarize(root, runID string) (Summary, error) {
	lines, err := ReadProgress(root, runID)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{RunID: runID}
	if len(lines) > 0 {
		s.Started = lines[0].Time
	}
	for _, ln := range lines {
		switch ln.Status {
		case StatusOK:
			s.OK++
		case StatusSkip:
			s.Skip++
		case StatusErr:
			s.Err++
		}
	}
	return s, nil
}

func lineFromRecord(rec map[string]any) ProgressLine {
	ln := ProgressLine{
		Time:   popString(rec, "time"),
		ISIN:   popString(rec, "isin"),
		Status: Status(popString(rec, "status")),
		Bucket: popString(rec, "bucket"),
		Reason: popString(rec, "reason"),
		Error:  popString(rec, "error"),
	}
	if len(rec) > 0 {
		ln.Extra = rec
	}
	return ln
}

func popString(rec map[string]any, key string) string {
	v, ok := rec[key].(string)
	if ok {
		delete(rec, key)
	}
	return v
}
