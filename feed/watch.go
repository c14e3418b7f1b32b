package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultSettle = 750 * time.Millisecond

// WatchOptions configures the inbox watched by Runner.Watch.
type WatchOptions struct {
	Dir string
	// Pattern is matched against base names. Empty means "*.csv".
	Pattern string
	// Settle is how long a file must stay quiet before it is processed.
	Settle time.Duration
}

// Watch processes raw files already present in the inbox, then every file
// created or rewritten there until ctx is done. Each quiet file becomes the
// next generational snapshot in OutputDir. Files are processed one at a time.
func (r *Runner) Watch(ctx context.Context, opts WatchOptions) error {
	if strings.TrimSpace(opts.Dir) == "" {
		return errors.New("watch dir is empty")
	}
	if opts.Pattern == "" {
		opts.Pattern = "*.csv"
	}
	if opts.Settle <= 0 {
		opts.Settle = defaultSettle
	}
	if _, err := filepath.Match(opts.Pattern, ""); err != nil {
		return fmt.Errorf("watch pattern: %w", err)
	}
	if sameDir(opts.Dir, r.cfg.OutputDir) {
		return errors.New("watch dir must differ from output dir")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(opts.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", opts.Dir, err)
	}

	existing, err := os.ReadDir(opts.Dir)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if !e.IsDir() && isInboxFile(e.Name(), opts.Pattern) {
			r.processInbox(filepath.Join(opts.Dir, e.Name()))
		}
	}

	pending := map[string]time.Time{}
	tick := time.NewTicker(opts.Settle / 3)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !isInboxFile(filepath.Base(ev.Name), opts.Pattern) {
				continue
			}
			r.debugf("watch event op=%s path=%q", ev.Op, ev.Name)
			pending[ev.Name] = time.Now()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("warn: watch: %v", err)
		case now := <-tick.C:
			for _, p := range settled(pending, now, opts.Settle) {
				delete(pending, p)
				r.processInbox(p)
			}
		}
	}
}

// settled returns pending paths quiet for at least settle, oldest name first.
func settled(pending map[string]time.Time, now time.Time, settle time.Duration) []string {
	var out []string
	for p, last := range pending {
		if now.Sub(last) >= settle {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Runner) processInbox(path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return
	}
	res, err := r.RunFile(path, r.nextSnapshotPath())
	if err != nil {
		if errors.Is(err, ErrAlreadyMaterialized) {
			r.debugf("watch skip %q: %v", path, err)
			return
		}
		log.Printf("error: %s: %v", path, err)
		return
	}
	sum := res.Summary
	log.Printf("materialized %s -> %s rows=%d workspace=%d", path, sum.OutputPath, sum.RowCount, sum.EntityTypeChangeCount)
}

func isInboxFile(name string, pattern string) bool {
	if strings.HasPrefix(name, ".") || IsSnapshotName(name) || strings.HasSuffix(name, removedReportSuffix) {
		return false
	}
	ok, _ := filepath.Match(pattern, name)
	return ok
}

func sameDir(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return aa == bb
}
