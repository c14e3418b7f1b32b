package feed

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

type staticLister []string

func (s staticLister) ListSnapshots(string) ([]string, error) { return s, nil }

func TestIsSnapshotName(t *testing.T) {
	cases := map[string]bool{
		"prod_feed_20250101_000000.csv":                 true,
		"prod_feed_20251231_235959.csv":                 true,
		"prod_feed_2025011_000000.csv":                  false,
		"prod_feed_20250101_000000.csv.bak":             false,
		"prod_feed_20250101_000000-removed-entries.csv": false,
		"raw_prod_feed_20250101_000000.csv":             false,
		"feed_transformed.csv":                          false,
	}
	for name, want := range cases {
		if got := IsSnapshotName(name); got != want {
			t.Errorf("IsSnapshotName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestSnapshotName(t *testing.T) {
	tm := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	if got := SnapshotName(tm); got != "prod_feed_20250304_050607.csv" {
		t.Fatalf("SnapshotName = %q", got)
	}
}

func TestFindPrevious(t *testing.T) {
	dir := filepath.Join("data", "feeds")
	current := filepath.Join(dir, "prod_feed_20250102_000000.csv")

	prev, ok, err := FindPrevious(current, staticLister{"prod_feed_20250101_000000.csv", "prod_feed_20250102_000000.csv"})
	if err != nil || !ok {
		t.Fatalf("expected a previous snapshot, got ok=%v err=%v", ok, err)
	}
	if prev != filepath.Join(dir, "prod_feed_20250101_000000.csv") {
		t.Fatalf("prev = %q", prev)
	}

	if _, ok, _ := FindPrevious(current, staticLister{"prod_feed_20250102_000000.csv"}); ok {
		t.Fatalf("expected none when only the current snapshot exists")
	}

	other := filepath.Join(dir, "zzz.csv")
	if prev, ok, _ := FindPrevious(other, staticLister{"prod_feed_20250101_000000.csv"}); ok {
		t.Fatalf("non-snapshot %q should not be compared, got %q", other, prev)
	}
}

func TestPreviousSnapshotPicksMostRecentEarlier(t *testing.T) {
	candidates := []string{
		"prod_feed_20250101_000000.csv",
		"prod_feed_20250103_120000.csv",
		"prod_feed_20250103_115959.csv",
		"prod_feed_20250105_000000.csv", // later than current
		"notes.csv",
	}
	got, ok := PreviousSnapshot("prod_feed_20250104_000000.csv", candidates)
	if !ok || got != "prod_feed_20250103_120000.csv" {
		t.Fatalf("PreviousSnapshot = %q,%v", got, ok)
	}
	if _, ok := PreviousSnapshot("prod_feed_20250101_000000.csv", candidates); ok {
		t.Fatalf("expected none before the oldest snapshot")
	}
}

func TestDirListerFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"prod_feed_20250102_000000.csv",
		"prod_feed_20250101_000000.csv",
		"prod_feed_20250102_000000-removed-entries.csv",
		"other.csv",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "prod_feed_20250103_000000.csv"), 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := DirLister{}.ListSnapshots(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"prod_feed_20250101_000000.csv", "prod_feed_20250102_000000.csv"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ListSnapshots = %q, want %q", got, want)
	}
}
