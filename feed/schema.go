package feed

// FieldPair maps one raw column name to its normalized name.
type FieldPair struct {
	Raw        string `yaml:"raw"`
	Normalized string `yaml:"normalized"`
}

// FieldMap is the ordered raw→normalized column table. Its order is the
// column order of every artifact written with it.
type FieldMap []FieldPair

// Normalized names that carry transformation rules or act as the snapshot key.
const (
	FieldDiscussionID = "discussionId"
	FieldEntityType   = "entityType"
	FieldScore        = "score"
)

const (
	entityTypeUpdate    = "update"
	entityTypeWorkspace = "workspace"
	defaultScore        = "0"
)

// DefaultFieldMap returns the six-column discussion feed schema.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		{Raw: "discussionid", Normalized: FieldDiscussionID},
		{Raw: "discussiontype", Normalized: "discussionType"},
		{Raw: "entityid", Normalized: "entityId"},
		{Raw: "entitytype", Normalized: FieldEntityType},
		{Raw: "discussioncreatedat", Normalized: "discussionCreatedAt"},
		{Raw: "score", Normalized: FieldScore},
	}
}

// RawNames returns the raw column names in table order.
func (m FieldMap) RawNames() []string {
	out := make([]string, len(m))
	for i, p := range m {
		out[i] = p.Raw
	}
	return out
}

// NormalizedNames returns the artifact header in table order.
func (m FieldMap) NormalizedNames() []string {
	out := make([]string, len(m))
	for i, p := range m {
		out[i] = p.Normalized
	}
	return out
}

// RawRecord holds one decoded data row, values ordered like the FieldMap
// raw names.
type RawRecord struct {
	Fields FieldMap
	Values []string
}

// Get returns the value of the raw column name, or "" when unknown.
func (r RawRecord) Get(raw string) string {
	for i, p := range r.Fields {
		if p.Raw == raw && i < len(r.Values) {
			return r.Values[i]
		}
	}
	return ""
}

// NormalizedRecord holds one transformed row, values ordered like the
// FieldMap normalized names.
type NormalizedRecord struct {
	Fields FieldMap
	Values []string
}

// Get returns the value of the normalized column name, or "" when unknown.
func (r NormalizedRecord) Get(name string) string {
	for i, p := range r.Fields {
		if p.Normalized == name && i < len(r.Values) {
			return r.Values[i]
		}
	}
	return ""
}

// NewRawRecord resolves every FieldMap column in row by name through idx.
// Missing cells become "", except score which becomes "0" when missing or
// blank.
func NewRawRecord(fields FieldMap, idx HeaderIndex, row []string) RawRecord {
	values := make([]string, len(fields))
	for i, p := range fields {
		v, _ := idx.Lookup(row, p.Raw)
		if p.Normalized == FieldScore && v == "" {
			v = defaultScore
		}
		values[i] = v
	}
	return RawRecord{Fields: fields, Values: values}
}
