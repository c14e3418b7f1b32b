package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type RunnerConfig struct {
	// LedgerPath is the SQLite run ledger. Empty runs without a ledger and
	// without the once-per-raw-input guard.
	LedgerPath  string
	Fields      FieldMap
	ScaleFactor float64
	// OutputDir receives generational snapshots for fetch and watch runs.
	OutputDir string
	// ArchiveDir receives raw inputs after a successful run.
	ArchiveDir string
	// Force re-runs raw content the ledger has already seen.
	Force bool
	Debug bool

	SyslogAddr    string
	ServiceLabel  string
	JobLabel      string
	NotifyTimeout time.Duration
}

type Runner struct {
	cfg          RunnerConfig
	ledger       *Ledger
	notifier     Notifier
	fetcher      ResultFetcher
	materializer *Materializer
	now          func() time.Time
}

// RunResult describes one pipeline invocation.
type RunResult struct {
	RunID        string
	InputSHA256  string
	Summary      *Summary
	ArchivedPath string
}

func (r *Runner) debugf(format string, args ...any) {
	if r == nil || !r.cfg.Debug {
		return
	}
	log.Printf(format, args...)
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.ScaleFactor == 0 {
		cfg.ScaleFactor = DefaultScaleFactor
	}
	if cfg.ServiceLabel == "" {
		cfg.ServiceLabel = "feed-drift"
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 3 * time.Second
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		cfg.OutputDir = "."
	}

	r := &Runner{
		cfg:          cfg,
		materializer: NewMaterializer(cfg.Fields, cfg.ScaleFactor),
		now:          time.Now,
	}
	if strings.TrimSpace(cfg.SyslogAddr) != "" {
		r.notifier = NewSyslogNotifier(cfg.SyslogAddr, cfg.ServiceLabel)
	}
	if strings.TrimSpace(cfg.LedgerPath) != "" {
		if dir := filepath.Dir(cfg.LedgerPath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		l, err := OpenLedger(cfg.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		r.ledger = l
	}
	return r, nil
}

// WithFetcher sets the remote query client used by FetchAndRun.
func (r *Runner) WithFetcher(f ResultFetcher) *Runner {
	r.fetcher = f
	return r
}

func (r *Runner) Ledger() *Ledger {
	return r.ledger
}

func (r *Runner) Close() error {
	if r == nil {
		return nil
	}
	return r.ledger.Close()
}

// RunFile materializes inputPath to outputPath (empty selects the default
// "_transformed" name), records the run and archives the raw input. Raw
// content the ledger has already materialized is refused unless Force is set.
func (r *Runner) RunFile(inputPath string, outputPath string) (*RunResult, error) {
	return r.runFile(inputPath, outputPath, !r.cfg.Force)
}

func (r *Runner) runFile(inputPath string, outputPath string, guard bool) (*RunResult, error) {
	start := time.Now()
	sha, err := DigestFile(inputPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, inputPath)
		}
		return nil, err
	}
	if r.ledger != nil && guard {
		already, err := r.ledger.AlreadyMaterialized(sha)
		if err != nil {
			return nil, fmt.Errorf("ledger lookup: %w", err)
		}
		if already {
			return nil, fmt.Errorf("%w: %s (sha256 %s)", ErrAlreadyMaterialized, inputPath, ShortDigest(sha, 12))
		}
	}

	res := &RunResult{RunID: uuid.NewString(), InputSHA256: sha}
	r.debugf("run start id=%s input=%q sha=%s output=%q", res.RunID, inputPath, ShortDigest(sha, 12), outputPath)

	sum, err := r.materializer.Materialize(inputPath, outputPath)
	if err != nil {
		r.recordFailure(res, inputPath, err)
		return nil, err
	}
	res.Summary = sum

	run, removed := r.ledgerRows(res, r.now().UTC())
	if r.ledger != nil {
		if err := r.ledger.Record(run, removed); err != nil {
			return res, fmt.Errorf("record run: %w", err)
		}
	}

	r.notify("run", res, nil)

	if strings.TrimSpace(r.cfg.ArchiveDir) != "" {
		dst, err := ArchiveFile(inputPath, r.cfg.ArchiveDir, r.now())
		if err != nil {
			log.Printf("warn: archive %s: %v", inputPath, err)
		} else {
			res.ArchivedPath = dst
			if r.ledger != nil {
				_ = r.ledger.MarkArchived(res.RunID, dst)
			}
		}
	}

	r.debugf("run done id=%s rows=%d workspace=%d elapsed=%s", res.RunID, sum.RowCount, sum.EntityTypeChangeCount, time.Since(start))
	return res, nil
}

// FetchAndRun downloads the result of queryID, stores it as a raw file in
// OutputDir and materializes it into the next generational snapshot. Every
// download is a new raw fetch, so identical content from an unchanged feed
// still yields a new snapshot. The raw file is removed if the run fails.
func (r *Runner) FetchAndRun(ctx context.Context, queryID string) (*RunResult, error) {
	if r.fetcher == nil {
		return nil, errors.New("no query client configured")
	}
	text, err := r.fetcher.FetchResult(ctx, queryID)
	if err != nil {
		return nil, err
	}
	snapshot := r.nextSnapshotPath()
	rawPath := filepath.Join(filepath.Dir(snapshot), "raw_"+filepath.Base(snapshot))
	if err := os.MkdirAll(filepath.Dir(rawPath), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(rawPath, []byte(text), 0o644); err != nil {
		return nil, fmt.Errorf("write raw result: %w", err)
	}
	r.debugf("fetched query=%s bytes=%d raw=%q", queryID, len(text), rawPath)
	res, err := r.runFile(rawPath, snapshot, false)
	if err != nil {
		_ = os.Remove(rawPath)
		return res, err
	}
	return res, nil
}

// nextSnapshotPath names a snapshot after the current time, moving forward
// one second at a time past names already taken.
func (r *Runner) nextSnapshotPath() string {
	t := r.now()
	for {
		p := filepath.Join(r.cfg.OutputDir, SnapshotName(t))
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			return p
		}
		t = t.Add(time.Second)
	}
}

func (r *Runner) ledgerRows(res *RunResult, now time.Time) (*Run, []RemovedEntry) {
	sum := res.Summary
	run := &Run{
		RunID:                 res.RunID,
		InputPath:             sum.InputPath,
		InputSHA256:           res.InputSHA256,
		OutputPath:            sum.OutputPath,
		RowCount:              sum.RowCount,
		EntityTypeChangeCount: sum.EntityTypeChangeCount,
		Warnings:              strings.Join(sum.Warnings, "\n"),
		MaterializedAt:        now,
	}
	if IsSnapshotName(filepath.Base(sum.OutputPath)) {
		run.Snapshot = filepath.Base(sum.OutputPath)
	}
	d := sum.Diff
	if d == nil {
		return run, nil
	}
	run.PreviousSnapshot = filepath.Base(d.PreviousPath)
	run.RemovedCount = len(d.Removed)
	run.ReportPath = d.ReportPath
	removed := make([]RemovedEntry, 0, len(d.Removed))
	for _, id := range d.Removed {
		removed = append(removed, RemovedEntry{
			RunID:            res.RunID,
			Snapshot:         run.Snapshot,
			PreviousSnapshot: run.PreviousSnapshot,
			DiscussionID:     id,
			DetectedAt:       now,
		})
	}
	return run, removed
}

func (r *Runner) recordFailure(res *RunResult, inputPath string, runErr error) {
	r.notify("failed", res, runErr)
	if r.ledger == nil {
		return
	}
	err := r.ledger.Record(&Run{
		RunID:          res.RunID,
		InputPath:      inputPath,
		InputSHA256:    res.InputSHA256,
		MaterializedAt: r.now().UTC(),
		LastError:      runErr.Error(),
	}, nil)
	if err != nil {
		r.debugf("record failed run id=%s err=%v", res.RunID, err)
	}
}

// notify is best-effort: delivery errors are only logged.
func (r *Runner) notify(event string, res *RunResult, runErr error) {
	if r.notifier == nil {
		return
	}
	kv := map[string]string{
		"job":       r.cfg.JobLabel,
		"service":   r.cfg.ServiceLabel,
		"event":     event,
		"input_sha": ShortDigest(res.InputSHA256, 12),
		"status":    "ok",
	}
	payload := map[string]any{"run_id": res.RunID}
	if runErr != nil {
		kv["status"] = "error"
		payload["error"] = runErr.Error()
	}
	if sum := res.Summary; sum != nil {
		kv["rows"] = strconv.Itoa(sum.RowCount)
		kv["workspace"] = strconv.Itoa(sum.EntityTypeChangeCount)
		payload["input"] = sum.InputPath
		payload["output"] = sum.OutputPath
		payload["warnings"] = sum.Warnings
		if IsSnapshotName(filepath.Base(sum.OutputPath)) {
			kv["snapshot"] = filepath.Base(sum.OutputPath)
		}
		if d := sum.Diff; d != nil {
			kv["previous"] = filepath.Base(d.PreviousPath)
			kv["removed"] = strconv.Itoa(len(d.Removed))
			payload["removed"] = d.Removed
		}
	}
	msg, _ := json.Marshal(payload)
	if err := r.notifier.Notify(buildStructuredData(defaultSDID, kv), string(msg), r.cfg.NotifyTimeout); err != nil {
		log.Printf("warn: notify %s: %v", event, err)
	}
}
