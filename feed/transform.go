package feed

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// DefaultScaleFactor is applied to raw scores when no other factor is configured.
const DefaultScaleFactor = 100

// Transformer renames and rescales raw records. It holds no state between
// calls and is safe to reuse.
type Transformer struct {
	Fields      FieldMap
	ScaleFactor float64
}

// NewTransformer returns a Transformer over fields. A nil or empty fields
// selects DefaultFieldMap.
func NewTransformer(fields FieldMap, scale float64) *Transformer {
	if len(fields) == 0 {
		fields = DefaultFieldMap()
	}
	return &Transformer{Fields: fields, ScaleFactor: scale}
}

// Transform maps rec to its normalized form. It never fails: an unparseable
// score becomes "NaN".
func (t *Transformer) Transform(rec RawRecord) NormalizedRecord {
	values := make([]string, len(t.Fields))
	for i, p := range t.Fields {
		v := rec.Get(p.Raw)
		switch p.Normalized {
		case FieldEntityType:
			if v == entityTypeUpdate {
				v = entityTypeWorkspace
			}
		case FieldScore:
			v = formatScore(parseScore(v) * t.ScaleFactor)
		}
		values[i] = v
	}
	return NormalizedRecord{Fields: t.Fields, Values: values}
}

func parseScore(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return math.NaN()
	}
	// out of range input keeps ParseFloat's ±Inf or ±0
	return f
}

// formatScore renders f in its shortest round-trip decimal form, switching to
// exponent notation only for very large or very small magnitudes.
func formatScore(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	if abs := math.Abs(f); abs >= 1e21 || abs < 1e-6 {
		return trimExponent(strconv.FormatFloat(f, 'e', -1, 64))
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// trimExponent drops leading zeros from the exponent: 1e-07 becomes 1e-7.
func trimExponent(s string) string {
	i := strings.IndexByte(s, 'e')
	if i < 0 || i+2 >= len(s) {
		return s
	}
	digits := strings.TrimLeft(s[i+2:], "0")
	if digits == "" {
		digits = "0"
	}
	return s[:i+2] + digits
}
