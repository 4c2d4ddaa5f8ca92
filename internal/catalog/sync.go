package catalog

import (
	"context"
	"os"

	"github.com/voxpack/voxpack/internal/table"
	"github.com/voxpack/voxpack/pkg/types"
)

// SyncBatch reconciles one batch's index record with its on-disk table.
// Fresh records are left alone; stale or missing records are rebuilt by
// reading the table, and records for deleted tables are dropped.
func (c *Catalog) SyncBatch(ctx context.Context, key types.PartitionKey, tablePath string, cols types.Columns) error {
	st, err := os.Stat(tablePath)
	if err != nil {
		if os.IsNotExist(err) {
			return c.DeleteBatch(ctx, key)
		}
		return err
	}

	fresh, err := c.Fresh(ctx, key, st.Size(), st.ModTime().UnixNano())
	if err != nil {
		return err
	}
	if fresh {
		return nil
	}

	ids, err := table.RowIDs(tablePath, cols)
	if err != nil {
		return err
	}
	return c.ReplaceBatch(ctx, key, ids, st.Size(), st.ModTime().UnixNano())
}
