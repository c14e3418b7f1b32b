package feed

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Summary describes one materialization.
type Summary struct {
	InputPath  string
	OutputPath string
	RowCount   int
	// EntityTypeChangeCount counts output rows whose entityType is
	// "workspace", including rows that already were.
	EntityTypeChangeCount int
	Warnings              []string
	// Diff is nil unless the output is a generational snapshot.
	Diff *DiffResult
}

// Materializer turns a raw feed file into a normalized artifact.
type Materializer struct {
	Transformer *Transformer
	// Lister finds sibling snapshots. Nil uses DirLister.
	Lister SnapshotLister
	// SkipDiff disables the snapshot comparison post-step.
	SkipDiff bool
}

// NewMaterializer returns a Materializer for the given schema and scale factor.
func NewMaterializer(fields FieldMap, scale float64) *Materializer {
	return &Materializer{Transformer: NewTransformer(fields, scale)}
}

// DefaultOutputPath appends "_transformed" to the stem of inputPath.
func DefaultOutputPath(inputPath string) string {
	dir := filepath.Dir(inputPath)
	base := filepath.Base(inputPath)
	ext := filepath.Ext(base)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+"_transformed"+ext)
}

// Materialize reads inputPath, normalizes every data row in order and writes
// the artifact to outputPath, replacing any existing file. An empty
// outputPath selects DefaultOutputPath. When the output name is a
// generational snapshot the previous snapshot in the same directory is
// diffed against it; diff problems are reported in the summary, never
// returned.
func (m *Materializer) Materialize(inputPath string, outputPath string) (*Summary, error) {
	content, err := os.ReadFile(inputPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, inputPath)
		}
		return nil, fmt.Errorf("read %s: %w", inputPath, err)
	}
	rows := Decode(string(content))
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyInput, inputPath)
	}
	if strings.TrimSpace(outputPath) == "" {
		outputPath = DefaultOutputPath(inputPath)
	}

	t := m.Transformer
	if t == nil {
		t = NewTransformer(nil, DefaultScaleFactor)
	}
	sum := &Summary{InputPath: inputPath, OutputPath: outputPath}

	idx := NewHeaderIndex(rows[0])
	for _, name := range t.Fields.RawNames() {
		if !idx.Has(name) {
			w := fmt.Sprintf("missing expected column %q", name)
			log.Printf("warn: %s in %s", w, inputPath)
			sum.Warnings = append(sum.Warnings, w)
		}
	}

	out := make([][]string, 0, len(rows))
	out = append(out, t.Fields.NormalizedNames())
	for _, row := range rows[1:] {
		rec := t.Transform(NewRawRecord(t.Fields, idx, row))
		if rec.Get(FieldEntityType) == entityTypeWorkspace {
			sum.EntityTypeChangeCount++
		}
		out = append(out, rec.Values)
	}
	sum.RowCount = len(out) - 1

	if err := writeArtifact(outputPath, out); err != nil {
		return nil, err
	}

	if !m.SkipDiff && IsSnapshotName(filepath.Base(outputPath)) {
		sum.Diff = m.diffWithPrevious(outputPath, sum)
	}
	return sum, nil
}

func (m *Materializer) diffWithPrevious(outputPath string, sum *Summary) *DiffResult {
	lister := m.Lister
	if lister == nil {
		lister = DirLister{}
	}
	prev, ok, err := FindPrevious(outputPath, lister)
	if err != nil {
		w := fmt.Sprintf("snapshot lookup: %v", err)
		log.Printf("warn: %s", w)
		sum.Warnings = append(sum.Warnings, w)
		return nil
	}
	if !ok {
		log.Printf("no previous snapshot for %s", filepath.Base(outputPath))
		return nil
	}
	res := Diff(outputPath, prev)
	if res.LookupErr != nil {
		sum.Warnings = append(sum.Warnings, res.LookupErr.Error())
	}
	if res.ReportErr != nil {
		sum.Warnings = append(sum.Warnings, res.ReportErr.Error())
	}
	return res
}

func writeArtifact(path string, rows [][]string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(Encode(rows)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
