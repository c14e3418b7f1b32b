package feed

import "time"

// Run records one materialization of a raw feed file.
type Run struct {
	ID                    uint   `gorm:"primaryKey"`
	RunID                 string `gorm:"uniqueIndex;size:36"`
	InputPath             string `gorm:"index;size:1024"`
	InputSHA256           string `gorm:"column:input_sha256;index;size:64"`
	OutputPath            string `gorm:"size:1024"`
	Snapshot              string `gorm:"index;size:64"` // base name when the output is a generational snapshot
	RowCount              int
	EntityTypeChangeCount int
	PreviousSnapshot      string `gorm:"size:64"`
	RemovedCount          int
	ReportPath            string    `gorm:"size:1024"`
	Warnings              string    `gorm:"type:text"`
	MaterializedAt        time.Time `gorm:"index"`
	ArchivedPath          string    `gorm:"size:1024"`
	LastError             string    `gorm:"type:text"`
}

// RemovedEntry is one discussionId that disappeared between two snapshots.
type RemovedEntry struct {
	ID               uint      `gorm:"primaryKey"`
	RunID            string    `gorm:"index;size:36"`
	Snapshot         string    `gorm:"index;size:64"`
	PreviousSnapshot string    `gorm:"size:64"`
	DiscussionID     string    `gorm:"index;size:255"`
	DetectedAt       time.Time `gorm:"index"`
}
