package feed

import "errors"

var (
	// ErrInputNotFound is returned when the raw input path does not exist.
	ErrInputNotFound = errors.New("input not found")
	// ErrEmptyInput is returned when the raw input is blank after trimming.
	ErrEmptyInput = errors.New("input is empty")
	// ErrDiffLookup marks a previous snapshot that could not be read or has no key column.
	ErrDiffLookup = errors.New("snapshot key lookup failed")
	// ErrReportWrite marks a removal report that could not be persisted.
	ErrReportWrite = errors.New("removal report write failed")
	// ErrAlreadyMaterialized is returned when the same raw bytes were already run through the pipeline.
	ErrAlreadyMaterialized = errors.New("raw input already materialized")
	// ErrQueryFailed is returned when the remote query job ends in a failed state.
	ErrQueryFailed = errors.New("query job failed")
)
