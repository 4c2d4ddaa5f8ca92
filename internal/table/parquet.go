package table

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/voxpack/voxpack/internal/errors"
	"github.com/voxpack/voxpack/pkg/types"
)

// columnOrderKey is the parquet key-value metadata entry recording the
// original column order. Parquet sorts group fields by name; without this the
// flat reconstruction could not restore the source header order.
const columnOrderKey = "voxpack.columns"

// WriteBatchTable writes one batch metadata table as parquet. Every column is
// stored as an optional UTF8 string so values round-trip byte-exact. The file
// is written in full; callers stage it and rename into place.
func WriteBatchTable(path string, t *Table) error {
	if len(t.Columns) == 0 {
		return errors.NewSchemaError(errors.CodeSchemaViolation, "batch table has no columns")
	}

	schema := stringSchema(t.Columns)
	order, err := json.Marshal(t.Columns)
	if err != nil {
		return errors.NewInternalError("encoding column order", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("creating batch table %s", path), err)
	}
	defer f.Close()

	w := parquet.NewWriter(f, schema, parquet.KeyValueMetadata(columnOrderKey, string(order)))

	// Leaf order is the schema's, not the caller's.
	leaves := leafColumns(schema)
	rowBuf := make([]parquet.Row, 0, 128)
	flush := func() error {
		if len(rowBuf) == 0 {
			return nil
		}
		if _, err := w.WriteRows(rowBuf); err != nil {
			return errors.NewIOError(errors.CodeIOFailure,
				fmt.Sprintf("writing batch table %s", path), err)
		}
		rowBuf = rowBuf[:0]
		return nil
	}

	for _, row := range t.Rows {
		pr := make(parquet.Row, 0, len(leaves))
		for ci, name := range leaves {
			if v, ok := row.Get(name); ok {
				pr = append(pr, parquet.ValueOf(v).Level(0, 1, ci))
			} else {
				pr = append(pr, parquet.ValueOf(nil).Level(0, 0, ci))
			}
		}
		rowBuf = append(rowBuf, pr)
		if len(rowBuf) == cap(rowBuf) {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("finalizing batch table %s", path), err)
	}
	return f.Close()
}

// ReadBatchTable loads one batch metadata table. The required id and audio
// path columns must be present or the read fails with SCHEMA_VIOLATION.
func ReadBatchTable(path string, cols types.Columns) (*Table, error) {
	pf, f, err := openParquet(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	columns := restoreColumnOrder(pf)
	if err := requireColumns(columns, cols.ID, cols.AudioPath); err != nil {
		return nil, errors.NewSchemaError(errors.CodeSchemaViolation,
			fmt.Sprintf("batch table %s: %v", path, err))
	}

	leaves := leafColumns(pf.Schema())
	t := &Table{Columns: columns}

	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		buf := make([]parquet.Row, 64)
		for {
			n, err := rows.ReadRows(buf)
			for i := 0; i < n; i++ {
				cells := make(map[string]string, len(leaves))
				for _, v := range buf[i] {
					if v.IsNull() {
						continue
					}
					ci := v.Column()
					if ci < 0 || ci >= len(leaves) {
						continue
					}
					cells[leaves[ci]] = v.String()
				}
				t.Rows = append(t.Rows, types.NewRow(columns, cells))
			}
			if err == io.EOF || n == 0 {
				break
			}
			if err != nil {
				rows.Close()
				return nil, errors.NewIOError(errors.CodeIOFailure,
					fmt.Sprintf("reading batch table %s", path), err)
			}
		}
		if cerr := rows.Close(); cerr != nil {
			return nil, errors.NewIOError(errors.CodeIOFailure,
				fmt.Sprintf("reading batch table %s", path), cerr)
		}
	}
	return t, nil
}

// RowCount reads a batch table's row count from the parquet footer without
// loading any rows.
func RowCount(path string) (int, error) {
	pf, f, err := openParquet(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return int(pf.NumRows()), nil
}

// RowIDs reads only the id column of a batch table.
func RowIDs(path string, cols types.Columns) ([]string, error) {
	t, err := ReadBatchTable(path, cols)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		ids = append(ids, row.Value(cols.ID))
	}
	return ids, nil
}

func openParquet(path string) (*parquet.File, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("opening batch table %s", path), err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("reading batch table %s", path), err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		f.Close()
		return nil, nil, errors.NewSchemaError(errors.CodeSchemaViolation,
			fmt.Sprintf("batch table %s is not a readable parquet file: %v", path, err))
	}
	return pf, f, nil
}

func stringSchema(columns []string) *parquet.Schema {
	fields := make(parquet.Group, len(columns))
	for _, c := range columns {
		fields[c] = parquet.Optional(parquet.String())
	}
	return parquet.NewSchema("batch", fields)
}

// leafColumns returns leaf column names in column-index order.
func leafColumns(schema *parquet.Schema) []string {
	paths := schema.Columns()
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = p[len(p)-1]
	}
	return names
}

// restoreColumnOrder recovers the original column order from file metadata,
// falling back to the schema's field order for tables written by other tools.
func restoreColumnOrder(pf *parquet.File) []string {
	if raw, ok := pf.Lookup(columnOrderKey); ok {
		var columns []string
		if err := json.Unmarshal([]byte(raw), &columns); err == nil && len(columns) > 0 {
			return columns
		}
	}
	return leafColumns(pf.Schema())
}
