// Package unpack reconstructs a flat dataset from the partitioned layout.
// It enumerates the partitions matching the caller's filters, merges their
// metadata tables into one flat table with corrected relative paths, and
// copies the selected payloads into a single flat audio directory. Unpack is
// read-only against the partitioned dataset and the sole writer of the flat
// reconstruction target.
package unpack

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/voxpack/voxpack/internal/errors"
	"github.com/voxpack/voxpack/internal/layout"
	"github.com/voxpack/voxpack/internal/plan"
	"github.com/voxpack/voxpack/internal/storage"
	"github.com/voxpack/voxpack/internal/table"
	"github.com/voxpack/voxpack/pkg/types"
)

// Options configure one unpack operation.
type Options struct {
	// DatasetDir is the partitioned dataset root.
	DatasetDir string

	// OutputDir is the flat reconstruction target.
	OutputDir string

	// Filter restricts which partitions are reconstructed. Empty fields
	// match all values.
	Filter plan.Filter

	// Mode selects payload relocation (copy or hardlink).
	Mode storage.Mode

	// Strict aborts on the first per-row payload failure.
	Strict bool

	// DryRun plans and reports without writing anything.
	DryRun bool

	// Concurrency bounds parallel payload placement.
	Concurrency int

	// Columns names the required metadata columns.
	Columns types.Columns

	Logger *slog.Logger
}

// SkippedRow records one row left out because its payload could not be
// relocated.
type SkippedRow struct {
	RowID  string
	Key    types.PartitionKey
	Reason string
}

// Summary reports what an unpack operation did (or would do, for a dry run).
type Summary struct {
	Partitions  int
	RowsWritten int
	Skipped     []SkippedRow
	DryRun      bool
}

// RowsSkipped is the number of rows left out for payload failures.
func (s *Summary) RowsSkipped() int {
	return len(s.Skipped)
}

// selected pairs one merged row with its origin and final payload name.
type selected struct {
	row     types.Row
	id      string
	key     types.PartitionKey
	src     string
	outName string
}

// Run executes one unpack operation.
func Run(ctx context.Context, opts Options) (*Summary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Mode == "" {
		opts.Mode = storage.ModeCopy
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	paths := layout.Paths{Root: opts.DatasetDir}
	keys, err := plan.ListPartitions(paths, opts.Filter)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, errors.NewValidationError(errors.CodeNoMatchingRows,
			fmt.Sprintf("no partitions in %s match the filters", opts.DatasetDir))
	}

	var parts []table.BatchTable
	for _, key := range keys {
		tablePath := paths.TablePath(key)
		if _, err := os.Stat(tablePath); err != nil {
			if os.IsNotExist(err) {
				// Audio directory without a table: nothing to reconstruct.
				logger.Warn("partition has no metadata table, skipping", "partition", key.String())
				continue
			}
			return nil, errors.NewIOError(errors.CodeIOFailure,
				fmt.Sprintf("reading batch table %s", tablePath), err)
		}
		t, err := table.ReadBatchTable(tablePath, opts.Columns)
		if err != nil {
			return nil, err
		}
		parts = append(parts, table.BatchTable{Key: key, Table: t})
	}
	if len(parts) == 0 {
		return nil, errors.NewValidationError(errors.CodeNoMatchingRows,
			fmt.Sprintf("no batch tables in %s match the filters", opts.DatasetDir))
	}

	merged, err := table.MergeBatches(parts, opts.Columns)
	if err != nil {
		return nil, err
	}

	rows, err := resolvePayloads(opts.DatasetDir, parts, opts.Columns)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Partitions: len(parts), DryRun: opts.DryRun}
	logger.Info("unpack planned",
		"partitions", len(parts), "rows", len(rows), "output", opts.OutputDir)

	if opts.DryRun {
		for _, s := range rows {
			logger.Info("would unpack payload",
				"row", s.id, "from", s.src,
				"to", filepath.Join(opts.OutputDir, layout.FlatAudioDirName, s.outName))
		}
		summary.RowsWritten = len(rows)
		return summary, nil
	}

	if err := os.MkdirAll(filepath.Dir(filepath.Clean(opts.OutputDir)), 0755); err != nil {
		return nil, errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("creating output parent for %s", opts.OutputDir), err)
	}
	stage, err := storage.NewStaging(filepath.Dir(filepath.Clean(opts.OutputDir)))
	if err != nil {
		return nil, err
	}
	defer stage.Remove()

	if err := os.MkdirAll(stage.Path(layout.FlatAudioDirName), 0755); err != nil {
		return nil, errors.NewIOError(errors.CodeIOFailure,
			"creating staged audio directory", err)
	}

	copier := storage.Copier{Mode: opts.Mode}
	var (
		mu     sync.Mutex
		failed = make(map[string]bool)
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.Concurrency)
	for _, s := range rows {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			dst := stage.Path(layout.FlatAudioDirName, s.outName)
			if err := copier.Place(s.src, dst); err != nil {
				if opts.Strict {
					return errors.NewIOError(errors.CodeIOFailure,
						fmt.Sprintf("relocating payload for row %q", s.id), err).
						WithRow(s.id, s.key.String())
				}
				mu.Lock()
				failed[s.id] = true
				summary.Skipped = append(summary.Skipped,
					SkippedRow{RowID: s.id, Key: s.key, Reason: err.Error()})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := &table.Table{Columns: merged.Columns}
	for _, s := range rows {
		if failed[s.id] {
			continue
		}
		row := s.row.Clone()
		row.Set(opts.Columns.AudioPath, layout.FlatRelPath(s.outName))
		out.Rows = append(out.Rows, row)
		summary.RowsWritten++
	}
	if err := table.WriteFlatCSV(stage.Path(layout.FlatMetadataName), out); err != nil {
		return nil, err
	}

	if err := installFlat(stage, opts.OutputDir); err != nil {
		return nil, err
	}
	logger.Info("unpack complete",
		"rows", summary.RowsWritten, "skipped", summary.RowsSkipped())
	return summary, nil
}

// resolvePayloads maps every merged row to its payload source and its final
// flat file name, disambiguating names shared across batches by prefixing
// the partition key. If even the prefixed name collides there is no
// deterministic scheme left and the operation fails with FILENAME_COLLISION.
func resolvePayloads(datasetDir string, parts []table.BatchTable, cols types.Columns) ([]selected, error) {
	var rows []selected
	nameCount := make(map[string]int)

	for _, part := range parts {
		for _, row := range part.Table.Rows {
			relPath := row.Value(cols.AudioPath)
			name := filepath.Base(relPath)
			if name == "" || name == "." {
				return nil, errors.NewSchemaError(errors.CodeSchemaViolation,
					fmt.Sprintf("row %q in batch %s has an unusable audio path %q",
						row.Value(cols.ID), part.Key, relPath)).
					WithRow(row.Value(cols.ID), part.Key.String())
			}
			nameCount[name]++
			rows = append(rows, selected{
				row:     row,
				id:      row.Value(cols.ID),
				key:     part.Key,
				src:     filepath.Join(datasetDir, filepath.FromSlash(relPath)),
				outName: name,
			})
		}
	}

	final := make(map[string]string)
	for i := range rows {
		s := &rows[i]
		if nameCount[s.outName] > 1 {
			s.outName = fmt.Sprintf("%s_%s_%s_%s", s.key.Source, s.key.Speaker, s.key.Batch, s.outName)
		}
		if owner, taken := final[s.outName]; taken {
			return nil, errors.NewIOError(errors.CodeFilenameCollision,
				fmt.Sprintf("flat name %q of row %q is already taken by row %q", s.outName, s.id, owner), nil).
				WithRow(s.id, s.key.String())
		}
		final[s.outName] = s.id
	}
	return rows, nil
}

// installFlat moves the staged flat layout into the output directory. A
// fresh output directory is installed with one rename; an existing empty
// directory receives the audio directory and metadata table individually.
func installFlat(stage *storage.Staging, outputDir string) error {
	if _, err := os.Stat(outputDir); os.IsNotExist(err) {
		if err := stage.InstallDir(".", outputDir); err != nil {
			return err
		}
		return nil
	}

	for _, name := range []string{layout.FlatAudioDirName, layout.FlatMetadataName} {
		dst := filepath.Join(outputDir, name)
		if _, err := os.Stat(dst); err == nil {
			return errors.NewIOError(errors.CodeIOFailure,
				fmt.Sprintf("output %s already exists", dst), nil)
		}
	}
	if err := stage.InstallDir(layout.FlatAudioDirName, filepath.Join(outputDir, layout.FlatAudioDirName)); err != nil {
		return err
	}
	return stage.Install(layout.FlatMetadataName, filepath.Join(outputDir, layout.FlatMetadataName))
}
