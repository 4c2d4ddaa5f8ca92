package table

import (
	"fmt"

	"github.com/voxpack/voxpack/internal/errors"
	"github.com/voxpack/voxpack/pkg/types"
)

// BatchTable is one per-batch metadata table tagged with its partition key.
type BatchTable struct {
	Key   types.PartitionKey
	Table *Table
}

// MergeBatches concatenates per-batch tables into one flat table. Callers
// pass batches in ascending (source, speaker, batch id) order; row order
// within each batch is preserved. The merged column order is the union of the
// batch columns in first-seen order. A row identifier appearing in more than
// one batch (or twice in one) fails with DUPLICATE_ROW_ID rather than
// silently overwriting.
func MergeBatches(parts []BatchTable, cols types.Columns) (*Table, error) {
	merged := &Table{}
	seenColumns := make(map[string]bool)
	seenIDs := make(map[string]types.PartitionKey)

	for _, part := range parts {
		for _, c := range part.Table.Columns {
			if !seenColumns[c] {
				seenColumns[c] = true
				merged.Columns = append(merged.Columns, c)
			}
		}
		for _, row := range part.Table.Rows {
			id := row.Value(cols.ID)
			if id == "" {
				return nil, errors.NewSchemaError(errors.CodeSchemaViolation,
					fmt.Sprintf("batch %s has a row with an empty %q column", part.Key, cols.ID)).
					WithRow("", part.Key.String())
			}
			if prev, dup := seenIDs[id]; dup {
				return nil, errors.NewSchemaError(errors.CodeDuplicateRowID,
					fmt.Sprintf("row id %q appears in both %s and %s", id, prev, part.Key)).
					WithRow(id, part.Key.String())
			}
			seenIDs[id] = part.Key
			merged.Rows = append(merged.Rows, row.Clone())
		}
	}
	return merged, nil
}
