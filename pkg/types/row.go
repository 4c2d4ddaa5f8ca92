// Package types provides core data types for voxpack.
package types

// Row represents a single audio sample as an ordered set of named cells.
// All cell values are strings; the core never interprets columns beyond the
// required ones, so unknown columns pass through conversions untouched.
type Row struct {
	columns []string
	cells   map[string]string
}

// NewRow creates a row with the given column order. Cells for columns not
// present in the map are considered absent, not empty.
func NewRow(columns []string, cells map[string]string) Row {
	r := Row{
		columns: make([]string, 0, len(columns)),
		cells:   make(map[string]string, len(cells)),
	}
	for _, c := range columns {
		r.columns = append(r.columns, c)
		if v, ok := cells[c]; ok {
			r.cells[c] = v
		}
	}
	return r
}

// Get returns the value of a column and whether the row has it.
func (r Row) Get(column string) (string, bool) {
	v, ok := r.cells[column]
	return v, ok
}

// Value returns the value of a column, or the empty string when absent.
func (r Row) Value(column string) string {
	return r.cells[column]
}

// Set assigns a column value, appending the column to the order if new.
func (r *Row) Set(column, value string) {
	if r.cells == nil {
		r.cells = make(map[string]string)
	}
	if _, ok := r.cells[column]; !ok && !r.hasColumn(column) {
		r.columns = append(r.columns, column)
	}
	r.cells[column] = value
}

// Columns returns the column order. The returned slice must not be modified.
func (r Row) Columns() []string {
	return r.columns
}

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	cp := Row{
		columns: make([]string, len(r.columns)),
		cells:   make(map[string]string, len(r.cells)),
	}
	copy(cp.columns, r.columns)
	for k, v := range r.cells {
		cp.cells[k] = v
	}
	return cp
}

func (r Row) hasColumn(column string) bool {
	for _, c := range r.columns {
		if c == column {
			return true
		}
	}
	return false
}

// Columns names the required metadata columns. The defaults match the flat
// layout produced by the ingestion pipeline; deployments with different
// headers override them in configuration.
type Columns struct {
	// ID is the unique row identifier column.
	ID string `json:"id" yaml:"id"`

	// AudioPath is the relative audio path column.
	AudioPath string `json:"audio_path" yaml:"audio_path"`

	// Source is the audio-source label column.
	Source string `json:"source" yaml:"source"`

	// Speaker is the speaker label column.
	Speaker string `json:"speaker" yaml:"speaker"`
}

// DefaultColumns returns the standard column names.
func DefaultColumns() Columns {
	return Columns{
		ID:        "id",
		AudioPath: "audio_path",
		Source:    "audio_source",
		Speaker:   "speaker",
	}
}
