package feed

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

var snapshotNameRe = regexp.MustCompile(`^prod_feed_\d{8}_\d{6}\.csv$`)

const snapshotTimeLayout = "20060102_150405"

// IsSnapshotName reports whether a base file name is a generational snapshot
// (prod_feed_YYYYMMDD_HHMMSS.csv).
func IsSnapshotName(name string) bool {
	return snapshotNameRe.MatchString(name)
}

// SnapshotName returns the generational snapshot file name for t.
func SnapshotName(t time.Time) string {
	return "prod_feed_" + t.Format(snapshotTimeLayout) + ".csv"
}

// SnapshotLister lists candidate snapshot file names in a directory.
type SnapshotLister interface {
	ListSnapshots(dir string) ([]string, error)
}

// DirLister lists snapshots from the filesystem.
type DirLister struct{}

func (DirLister) ListSnapshots(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !IsSnapshotName(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// PreviousSnapshot picks the most recent snapshot name in candidates that
// sorts before current. Zero-padded timestamps make name order chronological.
// A current name that is not itself a snapshot has no previous snapshot.
func PreviousSnapshot(current string, candidates []string) (string, bool) {
	if !IsSnapshotName(current) {
		return "", false
	}
	best := ""
	for _, c := range candidates {
		if !IsSnapshotName(c) || c >= current {
			continue
		}
		if c > best {
			best = c
		}
	}
	return best, best != ""
}

// FindPrevious returns the path of the snapshot immediately preceding
// currentPath in its directory. ok is false when there is none.
func FindPrevious(currentPath string, lister SnapshotLister) (prev string, ok bool, err error) {
	dir := filepath.Dir(currentPath)
	names, err := lister.ListSnapshots(dir)
	if err != nil {
		return "", false, err
	}
	name, ok := PreviousSnapshot(filepath.Base(currentPath), names)
	if !ok {
		return "", false, nil
	}
	return filepath.Join(dir, name), true, nil
}
