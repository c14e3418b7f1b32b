package feed

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

const removedReportSuffix = "-removed-entries.csv"

var errNoKeyColumn = errors.New("missing " + FieldDiscussionID + " column")

// DiffResult is the outcome of comparing two snapshots.
type DiffResult struct {
	CurrentPath  string
	PreviousPath string
	// Compared is false when either snapshot's keys could not be read.
	Compared bool
	// Removed holds ids of the previous snapshot missing from the current
	// one, in previous-snapshot order.
	Removed []string
	// ReportPath is set only when a removal report was written.
	ReportPath string
	LookupErr  error
	ReportErr  error
}

// ReportPath returns the removal report path for a snapshot artifact.
func ReportPath(currentPath string) string {
	dir := filepath.Dir(currentPath)
	base := filepath.Base(currentPath)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+removedReportSuffix)
}

// ExtractKeys returns the distinct discussionIds of an artifact in file
// order. Read failures and a missing key column are logged and yield an
// empty result.
func ExtractKeys(path string) []string {
	keys, err := readKeys(path)
	if err != nil {
		log.Printf("warn: extract keys from %s: %v", path, err)
		return nil
	}
	if len(keys) == 0 {
		log.Printf("warn: no data rows in %s", path)
	}
	return keys
}

func readKeys(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rows := Decode(string(b))
	if len(rows) == 0 {
		return nil, nil
	}
	idx := NewHeaderIndex(rows[0])
	if !idx.Has(FieldDiscussionID) {
		return nil, errNoKeyColumn
	}
	seen := make(map[string]struct{}, len(rows))
	keys := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		id, _ := idx.Lookup(row, FieldDiscussionID)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, id)
	}
	return keys, nil
}

// RemovedKeys returns the ids of previous absent from current, keeping the
// order of previous.
func RemovedKeys(previous, current []string) []string {
	cur := make(map[string]struct{}, len(current))
	for _, k := range current {
		cur[k] = struct{}{}
	}
	var removed []string
	for _, k := range previous {
		if _, ok := cur[k]; !ok {
			removed = append(removed, k)
		}
	}
	return removed
}

// Diff compares the current snapshot with the previous one and writes a
// removal report next to the current snapshot when ids disappeared.
// Failures never abort: they are recorded in the result and logged.
func Diff(currentPath, previousPath string) *DiffResult {
	res := &DiffResult{CurrentPath: currentPath, PreviousPath: previousPath}

	prevKeys, err := readKeys(previousPath)
	if err != nil {
		res.LookupErr = fmt.Errorf("%w: %s: %v", ErrDiffLookup, previousPath, err)
		log.Printf("warn: %v", res.LookupErr)
		return res
	}
	curKeys, err := readKeys(currentPath)
	if err != nil {
		res.LookupErr = fmt.Errorf("%w: %s: %v", ErrDiffLookup, currentPath, err)
		log.Printf("warn: %v", res.LookupErr)
		return res
	}
	res.Compared = true
	res.Removed = RemovedKeys(prevKeys, curKeys)

	if len(res.Removed) == 0 {
		log.Printf("diff %s vs %s: no removed entries", filepath.Base(currentPath), filepath.Base(previousPath))
		return res
	}

	log.Printf("diff %s vs %s: %d removed entries", filepath.Base(currentPath), filepath.Base(previousPath), len(res.Removed))
	for _, id := range res.Removed {
		log.Printf("removed %s=%s", FieldDiscussionID, id)
	}

	reportPath := ReportPath(currentPath)
	if err := WriteRemovalReport(reportPath, res.Removed); err != nil {
		res.ReportErr = fmt.Errorf("%w: %s: %v", ErrReportWrite, reportPath, err)
		log.Printf("warn: %v", res.ReportErr)
		return res
	}
	res.ReportPath = reportPath
	return res
}

// WriteRemovalReport writes a single-column discussionId artifact.
func WriteRemovalReport(path string, ids []string) error {
	rows := make([][]string, 0, len(ids)+1)
	rows = append(rows, []string{FieldDiscussionID})
	for _, id := range ids {
		rows = append(rows, []string{id})
	}
	return os.WriteFile(path, []byte(Encode(rows)), 0o644)
}
