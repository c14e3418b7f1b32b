package feed

import (
	"errors"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// Ledger is the SQLite record of materialization runs and removed entries.
type Ledger struct {
	db *gorm.DB
}

// OpenLedger opens (and migrates) the ledger database at path.
func OpenLedger(path string) (*Ledger, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Run{}, &RemovedEntry{}); err != nil {
		return nil, err
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	err = sqlDB.Close()
	l.db = nil
	return err
}

// AlreadyMaterialized reports whether raw content with this digest has a
// successful run on record.
func (l *Ledger) AlreadyMaterialized(sha string) (bool, error) {
	var run Run
	err := l.db.Where("input_sha256 = ? AND last_error = ?", sha, "").First(&run).Error
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

// Record stores a run together with its removed entries in one transaction.
func (l *Ledger) Record(run *Run, removed []RemovedEntry) error {
	return l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		if len(removed) == 0 {
			return nil
		}
		return tx.Create(&removed).Error
	})
}

// MarkArchived stores where the raw input of a run was moved to.
func (l *Ledger) MarkArchived(runID string, archivedPath string) error {
	return l.db.Model(&Run{}).
		Where("run_id = ?", runID).
		Updates(map[string]any{"archived_path": archivedPath}).Error
}

// RecentRuns returns up to limit runs, newest first.
func (l *Ledger) RecentRuns(limit int) ([]Run, error) {
	var runs []Run
	q := l.db.Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// RemovedEntries returns the removed ids recorded for a run.
func (l *Ledger) RemovedEntries(runID string) ([]RemovedEntry, error) {
	var out []RemovedEntry
	if err := l.db.Where("run_id = ?", runID).Order("id asc").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
