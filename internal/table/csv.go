// Package table converts metadata between the flat tabular schema (one CSV
// for the whole dataset) and the partitioned schema (one parquet table per
// batch), preserving every row-level column and detecting schema violations
// and duplicate row identifiers.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/voxpack/voxpack/internal/errors"
	"github.com/voxpack/voxpack/pkg/types"
)

// Table is an ordered set of rows sharing one column order.
type Table struct {
	Columns []string
	Rows    []types.Row
}

// ReadFlatCSV loads a flat metadata table. The header row defines the column
// order; every data row must have the header's width. The required id and
// audio path columns must be present in the header or the read fails with
// SCHEMA_VIOLATION.
func ReadFlatCSV(path string, cols types.Columns) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("opening flat metadata %s", path), err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, errors.NewSchemaError(errors.CodeSchemaViolation,
			fmt.Sprintf("flat metadata %s has no header row", path))
	}
	if err := requireColumns(header, cols.ID, cols.AudioPath); err != nil {
		return nil, err
	}

	t := &Table{Columns: header}
	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.NewSchemaError(errors.CodeSchemaViolation,
				fmt.Sprintf("flat metadata %s line %d: %v", path, line, err))
		}
		if len(record) != len(header) {
			return nil, errors.NewSchemaError(errors.CodeSchemaViolation,
				fmt.Sprintf("flat metadata %s line %d has %d fields, header has %d",
					path, line, len(record), len(header)))
		}
		cells := make(map[string]string, len(header))
		for i, c := range header {
			cells[c] = record[i]
		}
		t.Rows = append(t.Rows, types.NewRow(header, cells))
	}
	return t, nil
}

// WriteFlatCSV writes a flat metadata table. Cells absent from a row are
// written empty.
func WriteFlatCSV(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("creating flat metadata %s", path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.Columns); err != nil {
		return errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("writing flat metadata %s", path), err)
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, c := range t.Columns {
			record[i] = row.Value(c)
		}
		if err := w.Write(record); err != nil {
			return errors.NewIOError(errors.CodeIOFailure,
				fmt.Sprintf("writing flat metadata %s", path), err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("flushing flat metadata %s", path), err)
	}
	return f.Close()
}

func requireColumns(header []string, required ...string) error {
	present := make(map[string]bool, len(header))
	for _, c := range header {
		present[c] = true
	}
	for _, c := range required {
		if !present[c] {
			return errors.NewSchemaError(errors.CodeSchemaViolation,
				fmt.Sprintf("required column %q is missing", c))
		}
	}
	return nil
}
