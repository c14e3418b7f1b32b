package feed

import "strings"

// Decode splits text into rows of trimmed fields. Each physical line is one
// row; blank lines are skipped. A comma separates fields only outside a
// quoted span, and a doubled quote inside a quoted span yields one literal
// quote. Decode never fails: malformed lines still produce some fields.
func Decode(text string) [][]string {
	text = strings.TrimRight(text, " \t\r\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, decodeLine(line))
	}
	return rows
}

func decodeLine(line string) []string {
	var fields []string
	var cur strings.Builder
	quoted := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"' && quoted && i+1 < len(line) && line[i+1] == '"':
			cur.WriteByte('"')
			i++
		case c == '"':
			quoted = !quoted
		case c == ',' && !quoted:
			fields = append(fields, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(fields, strings.TrimSpace(cur.String()))
}

// Encode renders rows as comma-separated lines joined by "\n" with no
// trailing newline.
func Encode(rows [][]string) string {
	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		for j, field := range row {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteString(encodeField(field))
		}
	}
	return b.String()
}

func encodeField(v string) string {
	if !strings.ContainsAny(v, ",\"\n") {
		return v
	}
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

// HeaderIndex maps a lower-cased column name to its position in a header row.
type HeaderIndex map[string]int

// NewHeaderIndex builds a HeaderIndex once per file. The first occurrence of
// a duplicated name wins.
func NewHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := cleanHeader(h)
		if _, ok := idx[key]; ok {
			continue
		}
		idx[key] = i
	}
	return idx
}

// Lookup returns the cell for name in row. ok is false when the column is
// absent from the header or the row is too short to hold it.
func (h HeaderIndex) Lookup(row []string, name string) (string, bool) {
	pos, ok := h[cleanHeader(name)]
	if !ok || pos >= len(row) {
		return "", false
	}
	return row[pos], true
}

// Has reports whether name is a column of the header.
func (h HeaderIndex) Has(name string) bool {
	_, ok := h[cleanHeader(name)]
	return ok
}

func cleanHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.ToLower(strings.TrimSpace(h))
}
