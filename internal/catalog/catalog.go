// Package catalog maintains the dataset state index: a sqlite cache of batch
// records and row identifiers kept under the dataset's private state
// directory. The per-batch parquet tables remain the source of truth; the
// index only accelerates duplicate-id checks and status listings, and any
// batch whose table changed on disk (size or mtime mismatch) is re-ingested
// from the table before use. Deleting the index is always safe.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/voxpack/voxpack/internal/errors"
	"github.com/voxpack/voxpack/pkg/types"
)

// BatchRecord is one indexed batch.
type BatchRecord struct {
	Key        types.PartitionKey
	RowCount   int
	TableSize  int64
	TableMtime int64
}

// Catalog is the sqlite-backed state index.
type Catalog struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the state index at path.
func Open(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.NewStateError(errors.CodeIndexOpenFailed,
			fmt.Sprintf("creating state directory for %s", path), err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.NewStateError(errors.CodeIndexOpenFailed,
			fmt.Sprintf("opening state index %s", path), err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	schema := []string{
		`CREATE TABLE IF NOT EXISTS batches (
			source      TEXT NOT NULL,
			speaker     TEXT NOT NULL,
			batch       TEXT NOT NULL,
			row_count   INTEGER NOT NULL,
			table_size  INTEGER NOT NULL,
			table_mtime INTEGER NOT NULL,
			PRIMARY KEY (source, speaker, batch)
		) WITHOUT ROWID`,
		`CREATE TABLE IF NOT EXISTS row_ids (
			row_id  TEXT NOT NULL PRIMARY KEY,
			source  TEXT NOT NULL,
			speaker TEXT NOT NULL,
			batch   TEXT NOT NULL
		) WITHOUT ROWID`,
		`CREATE INDEX IF NOT EXISTS idx_row_ids_group ON row_ids(source, speaker)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, errors.NewStateError(errors.CodeIndexCorrupt,
				fmt.Sprintf("initializing state index %s", path), err)
		}
	}

	return &Catalog{db: db, path: path}, nil
}

// Close closes the index database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Fresh reports whether the indexed record for a batch still matches the
// on-disk table's size and mtime.
func (c *Catalog) Fresh(ctx context.Context, key types.PartitionKey, size, mtime int64) (bool, error) {
	var gotSize, gotMtime int64
	err := c.db.QueryRowContext(ctx,
		`SELECT table_size, table_mtime FROM batches WHERE source = ? AND speaker = ? AND batch = ?`,
		key.Source, key.Speaker, key.Batch).Scan(&gotSize, &gotMtime)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewStateError(errors.CodeIndexCorrupt,
			fmt.Sprintf("reading batch record %s", key), err)
	}
	return gotSize == size && gotMtime == mtime, nil
}

// ReplaceBatch atomically replaces a batch's record and row ids.
func (c *Catalog) ReplaceBatch(ctx context.Context, key types.PartitionKey, ids []string, size, mtime int64) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStateError(errors.CodeIndexCorrupt, "starting index transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM row_ids WHERE source = ? AND speaker = ? AND batch = ?`,
		key.Source, key.Speaker, key.Batch); err != nil {
		return errors.NewStateError(errors.CodeIndexCorrupt,
			fmt.Sprintf("clearing row ids of %s", key), err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO batches (source, speaker, batch, row_count, table_size, table_mtime)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		key.Source, key.Speaker, key.Batch, len(ids), size, mtime); err != nil {
		return errors.NewStateError(errors.CodeIndexCorrupt,
			fmt.Sprintf("recording batch %s", key), err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO row_ids (row_id, source, speaker, batch) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return errors.NewStateError(errors.CodeIndexCorrupt, "preparing row id insert", err)
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id, key.Source, key.Speaker, key.Batch); err != nil {
			return errors.NewStateError(errors.CodeIndexCorrupt,
				fmt.Sprintf("recording row id %q of %s", id, key), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewStateError(errors.CodeIndexCorrupt, "committing index transaction", err)
	}
	return nil
}

// DeleteBatch removes a batch's record and row ids.
func (c *Catalog) DeleteBatch(ctx context.Context, key types.PartitionKey) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStateError(errors.CodeIndexCorrupt, "starting index transaction", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM row_ids WHERE source = ? AND speaker = ? AND batch = ?`,
		key.Source, key.Speaker, key.Batch); err != nil {
		return errors.NewStateError(errors.CodeIndexCorrupt,
			fmt.Sprintf("clearing row ids of %s", key), err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM batches WHERE source = ? AND speaker = ? AND batch = ?`,
		key.Source, key.Speaker, key.Batch); err != nil {
		return errors.NewStateError(errors.CodeIndexCorrupt,
			fmt.Sprintf("deleting batch record %s", key), err)
	}
	return tx.Commit()
}

// KnownIDs returns the row ids indexed for one (source, speaker) pair as a
// map from row id to owning batch.
func (c *Catalog) KnownIDs(ctx context.Context, group types.GroupKey) (map[string]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT row_id, batch FROM row_ids WHERE source = ? AND speaker = ?`,
		group.Source, group.Speaker)
	if err != nil {
		return nil, errors.NewStateError(errors.CodeIndexCorrupt,
			fmt.Sprintf("reading row ids of %s", group), err)
	}
	defer rows.Close()

	known := make(map[string]string)
	for rows.Next() {
		var id, batch string
		if err := rows.Scan(&id, &batch); err != nil {
			return nil, errors.NewStateError(errors.CodeIndexCorrupt,
				fmt.Sprintf("reading row ids of %s", group), err)
		}
		known[id] = batch
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStateError(errors.CodeIndexCorrupt,
			fmt.Sprintf("reading row ids of %s", group), err)
	}
	return known, nil
}

// Batches returns all indexed batch records ordered by source, speaker,
// batch.
func (c *Catalog) Batches(ctx context.Context) ([]BatchRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT source, speaker, batch, row_count, table_size, table_mtime
		 FROM batches ORDER BY source, speaker, batch`)
	if err != nil {
		return nil, errors.NewStateError(errors.CodeIndexCorrupt, "listing batch records", err)
	}
	defer rows.Close()

	var records []BatchRecord
	for rows.Next() {
		var r BatchRecord
		if err := rows.Scan(&r.Key.Source, &r.Key.Speaker, &r.Key.Batch,
			&r.RowCount, &r.TableSize, &r.TableMtime); err != nil {
			return nil, errors.NewStateError(errors.CodeIndexCorrupt, "listing batch records", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStateError(errors.CodeIndexCorrupt, "listing batch records", err)
	}
	return records, nil
}

// BatchesForGroup returns the indexed batch records of one (source, speaker)
// pair ordered by batch.
func (c *Catalog) BatchesForGroup(ctx context.Context, group types.GroupKey) ([]BatchRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT source, speaker, batch, row_count, table_size, table_mtime
		 FROM batches WHERE source = ? AND speaker = ? ORDER BY batch`,
		group.Source, group.Speaker)
	if err != nil {
		return nil, errors.NewStateError(errors.CodeIndexCorrupt,
			fmt.Sprintf("listing batch records of %s", group), err)
	}
	defer rows.Close()

	var records []BatchRecord
	for rows.Next() {
		var r BatchRecord
		if err := rows.Scan(&r.Key.Source, &r.Key.Speaker, &r.Key.Batch,
			&r.RowCount, &r.TableSize, &r.TableMtime); err != nil {
			return nil, errors.NewStateError(errors.CodeIndexCorrupt,
				fmt.Sprintf("listing batch records of %s", group), err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStateError(errors.CodeIndexCorrupt,
			fmt.Sprintf("listing batch records of %s", group), err)
	}
	return records, nil
}

// Clear wipes the whole index, forcing a rebuild from the tables.
func (c *Catalog) Clear(ctx context.Context) error {
	for _, stmt := range []string{`DELETE FROM row_ids`, `DELETE FROM batches`} {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return errors.NewStateError(errors.CodeIndexCorrupt, "clearing state index", err)
		}
	}
	return nil
}
