package feed

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

type mockNotifier struct {
	mu    sync.Mutex
	calls []mockNotifyCall
	fail  bool
}

type mockNotifyCall struct {
	structuredData string
	message        string
}

func (m *mockNotifier) Notify(structuredData string, message string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, mockNotifyCall{structuredData: structuredData, message: message})
	if m.fail {
		return errors.New("mock notify failure")
	}
	return nil
}

func (m *mockNotifier) Calls() []mockNotifyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockNotifyCall, len(m.calls))
	copy(out, m.calls)
	return out
}

type fakeFetcher struct {
	results map[string]string
	err     error
}

func (f *fakeFetcher) FetchResult(_ context.Context, queryID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.results[queryID], nil
}

func newTestRunner(t *testing.T, cfg RunnerConfig) *Runner {
	t.Helper()
	r, err := NewRunner(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRunner_LedgerRefusesSecondRunOfSameRawContent(t *testing.T) {
	tmp := t.TempDir()
	in := filepath.Join(tmp, "raw.csv")
	writeFile(t, in, rawHeader+"\n1,a,E1,update,d,0.5\n")

	r := newTestRunner(t, RunnerConfig{LedgerPath: filepath.Join(tmp, "ledger.db")})
	res, err := r.RunFile(in, filepath.Join(tmp, "out.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if res.RunID == "" || res.InputSHA256 == "" {
		t.Fatalf("expected run id and digest, got %+v", res)
	}

	_, err = r.RunFile(in, filepath.Join(tmp, "out2.csv"))
	if !errors.Is(err, ErrAlreadyMaterialized) {
		t.Fatalf("expected ErrAlreadyMaterialized, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(tmp, "out2.csv")); statErr == nil {
		t.Fatalf("second run must not write an artifact")
	}

	runs, err := r.Ledger().RecentRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].RowCount != 1 || runs[0].EntityTypeChangeCount != 1 {
		t.Fatalf("unexpected ledger runs %+v", runs)
	}
}

func TestRunner_ForceRerunsSeenContent(t *testing.T) {
	tmp := t.TempDir()
	in := filepath.Join(tmp, "raw.csv")
	writeFile(t, in, rawHeader+"\n1,a,E1,post,d,0.5\n")

	r := newTestRunner(t, RunnerConfig{LedgerPath: filepath.Join(tmp, "ledger.db"), Force: true})
	for i := 0; i < 2; i++ {
		if _, err := r.RunFile(in, filepath.Join(tmp, "out.csv")); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	runs, _ := r.Ledger().RecentRuns(0)
	if len(runs) != 2 {
		t.Fatalf("expected 2 recorded runs, got %d", len(runs))
	}
}

func TestRunner_FailedRunIsRecordedAndDoesNotBlockRetry(t *testing.T) {
	tmp := t.TempDir()
	in := filepath.Join(tmp, "raw.csv")
	writeFile(t, in, "   \n")

	r := newTestRunner(t, RunnerConfig{LedgerPath: filepath.Join(tmp, "ledger.db")})
	sender := &mockNotifier{}
	r.notifier = sender

	if _, err := r.RunFile(in, ""); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	runs, _ := r.Ledger().RecentRuns(0)
	if len(runs) != 1 || runs[0].LastError == "" {
		t.Fatalf("expected one failed run, got %+v", runs)
	}
	if calls := sender.Calls(); len(calls) != 1 || !strings.Contains(calls[0].structuredData, `status="error"`) {
		t.Fatalf("expected one error notification, got %+v", calls)
	}
	already, err := r.Ledger().AlreadyMaterialized(runs[0].InputSHA256)
	if err != nil || already {
		t.Fatalf("failed run must not count as materialized (already=%v err=%v)", already, err)
	}
}

func TestRunner_MissingInput(t *testing.T) {
	r := newTestRunner(t, RunnerConfig{})
	if _, err := r.RunFile(filepath.Join(t.TempDir(), "nope.csv"), ""); !errors.Is(err, ErrInputNotFound) {
		t.Fatalf("expected ErrInputNotFound, got %v", err)
	}
}

func TestRunner_ArchivesRawInput(t *testing.T) {
	tmp := t.TempDir()
	in := filepath.Join(tmp, "inbox", "raw.csv")
	writeFile(t, in, rawHeader+"\n1,a,E1,post,d,0.5\n")
	archive := filepath.Join(tmp, "archive")

	r := newTestRunner(t, RunnerConfig{LedgerPath: filepath.Join(tmp, "ledger.db"), ArchiveDir: archive})
	res, err := r.RunFile(in, filepath.Join(tmp, "out.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if res.ArchivedPath != filepath.Join(archive, "raw.csv") {
		t.Fatalf("archived path = %q", res.ArchivedPath)
	}
	if _, err := os.Stat(in); err == nil {
		t.Fatalf("raw input should have been moved")
	}
	runs, _ := r.Ledger().RecentRuns(1)
	if len(runs) != 1 || runs[0].ArchivedPath != res.ArchivedPath {
		t.Fatalf("ledger missing archive path: %+v", runs)
	}
}

func TestRunner_FetchAndRunDetectsRemovalsAcrossSnapshots(t *testing.T) {
	tmp := t.TempDir()
	out := filepath.Join(tmp, "snapshots")
	fetcher := &fakeFetcher{results: map[string]string{
		"q1": rawHeader + "\n1,a,E1,update,d,0.1\n2,a,E2,post,d,0.2\n3,a,E3,post,d,0.3\n",
		"q2": rawHeader + "\n1,a,E1,update,d,0.1\n3,a,E3,post,d,0.3\n",
	}}
	sender := &mockNotifier{}

	r := newTestRunner(t, RunnerConfig{
		LedgerPath: filepath.Join(tmp, "ledger.db"),
		OutputDir:  out,
		JobLabel:   "feeds",
	})
	r.notifier = sender
	r.WithFetcher(fetcher)
	clock := time.Date(2025, 1, 1, 9, 0, 0, 0, time.Local)
	r.now = func() time.Time { return clock }

	first, err := r.FetchAndRun(context.Background(), "q1")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(first.Summary.OutputPath) != "prod_feed_20250101_090000.csv" {
		t.Fatalf("unexpected first snapshot %q", first.Summary.OutputPath)
	}
	if first.Summary.Diff != nil {
		t.Fatalf("first snapshot has nothing to compare with")
	}

	clock = clock.Add(24 * time.Hour)
	second, err := r.FetchAndRun(context.Background(), "q2")
	if err != nil {
		t.Fatal(err)
	}
	d := second.Summary.Diff
	if d == nil || !reflect.DeepEqual(d.Removed, []string{"2"}) {
		t.Fatalf("expected removal of 2, got %+v", d)
	}
	if filepath.Base(d.PreviousPath) != "prod_feed_20250101_090000.csv" {
		t.Fatalf("unexpected previous snapshot %q", d.PreviousPath)
	}

	entries, err := r.Ledger().RemovedEntries(second.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].DiscussionID != "2" || entries[0].Snapshot != "prod_feed_20250102_090000.csv" {
		t.Fatalf("unexpected removed entries %+v", entries)
	}

	calls := sender.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(calls))
	}
	last := calls[1]
	if !strings.Contains(last.structuredData, `job="feeds"`) || !strings.Contains(last.structuredData, `removed="1"`) {
		t.Fatalf("unexpected structured data %q", last.structuredData)
	}
	var payload struct {
		Removed []string `json:"removed"`
	}
	if err := json.Unmarshal([]byte(last.message), &payload); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(payload.Removed, []string{"2"}) {
		t.Fatalf("payload removed = %q", payload.Removed)
	}
}

func TestRunner_NextSnapshotPathSkipsTakenNames(t *testing.T) {
	tmp := t.TempDir()
	r := newTestRunner(t, RunnerConfig{OutputDir: tmp})
	clock := time.Date(2025, 1, 1, 9, 0, 0, 0, time.Local)
	r.now = func() time.Time { return clock }
	writeFile(t, filepath.Join(tmp, "prod_feed_20250101_090000.csv"), "discussionId")

	if got := filepath.Base(r.nextSnapshotPath()); got != "prod_feed_20250101_090001.csv" {
		t.Fatalf("nextSnapshotPath = %q", got)
	}
}

func TestRunner_FetchErrorsPropagate(t *testing.T) {
	r := newTestRunner(t, RunnerConfig{OutputDir: t.TempDir()})
	if _, err := r.FetchAndRun(context.Background(), "q"); err == nil {
		t.Fatalf("expected error without a fetcher")
	}
	r.WithFetcher(&fakeFetcher{err: ErrQueryFailed})
	if _, err := r.FetchAndRun(context.Background(), "q"); !errors.Is(err, ErrQueryFailed) {
		t.Fatalf("expected ErrQueryFailed, got %v", err)
	}
}

func TestRunner_FetchAndRunUnchangedFeedStillSnapshots(t *testing.T) {
	tmp := t.TempDir()
	out := filepath.Join(tmp, "snapshots")
	body := rawHeader + "\n1,a,E1,update,d,0.1\n2,a,E2,post,d,0.2\n"
	r := newTestRunner(t, RunnerConfig{
		LedgerPath: filepath.Join(tmp, "ledger.db"),
		OutputDir:  out,
	})
	r.WithFetcher(&fakeFetcher{results: map[string]string{"q": body}})
	clock := time.Date(2025, 1, 1, 9, 0, 0, 0, time.Local)
	r.now = func() time.Time { return clock }

	first, err := r.FetchAndRun(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(24 * time.Hour)
	second, err := r.FetchAndRun(context.Background(), "q")
	if err != nil {
		t.Fatalf("second fetch of unchanged content: %v", err)
	}
	if second.InputSHA256 != first.InputSHA256 {
		t.Fatalf("expected identical digests")
	}
	if filepath.Base(second.Summary.OutputPath) != "prod_feed_20250102_090000.csv" {
		t.Fatalf("unexpected second snapshot %q", second.Summary.OutputPath)
	}
	d := second.Summary.Diff
	if d == nil || !d.Compared || len(d.Removed) != 0 {
		t.Fatalf("expected a comparison with no removals, got %+v", d)
	}

	runs, err := r.Ledger().RecentRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 recorded runs, got %d", len(runs))
	}

	// a manual rerun of the same raw file is still refused
	if _, err := r.RunFile(filepath.Join(out, "raw_prod_feed_20250102_090000.csv"), filepath.Join(tmp, "again.csv")); !errors.Is(err, ErrAlreadyMaterialized) {
		t.Fatalf("expected ErrAlreadyMaterialized, got %v", err)
	}
}

func TestRunner_FetchAndRunRemovesRawOnFailure(t *testing.T) {
	out := t.TempDir()
	r := newTestRunner(t, RunnerConfig{OutputDir: out})
	r.WithFetcher(&fakeFetcher{results: map[string]string{"q": "   \n"}})
	r.now = func() time.Time { return time.Date(2025, 1, 1, 9, 0, 0, 0, time.Local) }

	if _, err := r.FetchAndRun(context.Background(), "q"); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files left behind, got %d (first %q)", len(entries), entries[0].Name())
	}
}

func TestRunner_NotifyFailureIsNotFatal(t *testing.T) {
	tmp := t.TempDir()
	in := filepath.Join(tmp, "raw.csv")
	writeFile(t, in, rawHeader+"\n1,a,E1,post,d,0.5\n")
	r := newTestRunner(t, RunnerConfig{})
	r.notifier = &mockNotifier{fail: true}
	if _, err := r.RunFile(in, filepath.Join(tmp, "out.csv")); err != nil {
		t.Fatalf("notification failure must not fail the run: %v", err)
	}
}
