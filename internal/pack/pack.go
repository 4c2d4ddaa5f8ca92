// Package pack converts a flat audio dataset into the partitioned layout:
// rows are grouped by (source, speaker), placed into size-bounded batches by
// the planner, payloads are relocated, and one metadata table is written per
// batch. The pack engine is the sole writer of the partitioned dataset and
// holds an advisory exclusive lock on it for the whole operation.
package pack

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/voxpack/voxpack/internal/catalog"
	"github.com/voxpack/voxpack/internal/errors"
	"github.com/voxpack/voxpack/internal/layout"
	"github.com/voxpack/voxpack/internal/plan"
	"github.com/voxpack/voxpack/internal/storage"
	"github.com/voxpack/voxpack/internal/table"
	"github.com/voxpack/voxpack/pkg/types"
)

// Options configure one pack operation.
type Options struct {
	// SourceDir is the flat dataset (metadata.csv + wavs/).
	SourceDir string

	// OutputDir is the partitioned dataset root.
	OutputDir string

	// MaxRows is the batch ceiling; zero uses the default.
	MaxRows int

	// ExplicitBatch routes every row to this batch verbatim instead of
	// auto-incrementing.
	ExplicitBatch string

	// Mode selects payload relocation (copy or hardlink).
	Mode storage.Mode

	// Verify re-reads placed payloads and compares checksums.
	Verify bool

	// Strict aborts on the first per-row payload failure.
	Strict bool

	// DryRun plans and reports without writing anything.
	DryRun bool

	// Concurrency bounds parallel payload placement.
	Concurrency int

	// Columns names the required metadata columns.
	Columns types.Columns

	// DefaultSource and DefaultSpeaker supply labels when the flat
	// metadata lacks the partition columns.
	DefaultSource  string
	DefaultSpeaker string

	Logger *slog.Logger
}

// SkippedRow records one row left out because its payload could not be
// relocated.
type SkippedRow struct {
	RowID  string
	Key    types.PartitionKey
	Reason string
}

// Summary reports what a pack operation did (or, for a dry run, would do).
type Summary struct {
	BatchesWritten     int
	RowsWritten        int
	RowsAlreadyPresent int
	Skipped            []SkippedRow
	DryRun             bool
}

// RowsSkipped is the number of rows left out for payload failures.
func (s *Summary) RowsSkipped() int {
	return len(s.Skipped)
}

// stagedBatch tracks one batch table staged for commit.
type stagedBatch struct {
	key       types.PartitionKey
	tableRel  string
	finalPath string
	ids       []string
	hasTable  bool
}

// stagedPayload tracks one audio file staged for commit.
type stagedPayload struct {
	rel   string
	final string
}

// Run executes one pack operation.
func Run(ctx context.Context, opts Options) (*Summary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = plan.DefaultMaxRows
	}
	if opts.Mode == "" {
		opts.Mode = storage.ModeCopy
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if err := validateExplicitBatch(opts.ExplicitBatch); err != nil {
		return nil, err
	}

	wavsDir := filepath.Join(opts.SourceDir, layout.FlatAudioDirName)
	if st, err := os.Stat(wavsDir); err != nil || !st.IsDir() {
		return nil, errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("flat audio directory %s not found", wavsDir), err)
	}

	flat, err := table.ReadFlatCSV(filepath.Join(opts.SourceDir, layout.FlatMetadataName), opts.Columns)
	if err != nil {
		return nil, err
	}
	groups, err := splitGroups(flat, opts)
	if err != nil {
		return nil, err
	}

	paths := layout.Paths{Root: opts.OutputDir}
	summary := &Summary{DryRun: opts.DryRun}

	var (
		cat   *catalog.Catalog
		lock  *flock.Flock
		stage *storage.Staging
	)
	if !opts.DryRun {
		if err := os.MkdirAll(paths.StateDir(), 0755); err != nil {
			return nil, errors.NewIOError(errors.CodeIOFailure,
				fmt.Sprintf("creating dataset state directory %s", paths.StateDir()), err)
		}
		lock = flock.New(paths.LockPath())
		locked, err := lock.TryLock()
		if err != nil {
			return nil, errors.NewIOError(errors.CodeIOFailure,
				fmt.Sprintf("acquiring dataset lock %s", paths.LockPath()), err)
		}
		if !locked {
			return nil, errors.NewIOError(errors.CodeDatasetLocked,
				fmt.Sprintf("dataset %s is locked by another pack operation", opts.OutputDir), nil)
		}
		defer lock.Unlock()

		cat, err = catalog.Open(paths.IndexPath())
		if err != nil {
			return nil, err
		}
		defer cat.Close()

		stage, err = storage.NewStaging(paths.StateDir())
		if err != nil {
			return nil, err
		}
		defer stage.Remove()
	}

	copier := storage.Copier{Mode: opts.Mode, Verify: opts.Verify}
	var batches []stagedBatch
	var payloads []stagedPayload

	for _, g := range groups {
		snap, err := plan.TakeSnapshot(paths, g.key, table.RowCount)
		if err != nil {
			return nil, err
		}
		known, err := knownIDs(ctx, cat, paths, snap, g.key, opts.Columns)
		if err != nil {
			return nil, err
		}

		fresh := g.rows[:0:0]
		for _, row := range g.rows {
			if _, ok := known[row.Value(opts.Columns.ID)]; ok {
				summary.RowsAlreadyPresent++
				continue
			}
			fresh = append(fresh, row)
		}
		if len(fresh) == 0 {
			logger.Debug("group already packed", "group", g.key.String())
			continue
		}

		placements, err := plan.Group(snap, len(fresh), opts.MaxRows, opts.ExplicitBatch)
		if err != nil {
			return nil, err
		}
		logger.Info("planned group",
			"group", g.key.String(), "rows", len(fresh), "batches", len(placements))

		cursor := 0
		for _, p := range placements {
			batchRows := fresh[cursor : cursor+p.Rows]
			cursor += p.Rows
			staged, stagedFiles, err := stageBatch(ctx, opts, paths, stage, copier,
				g.key.WithBatch(p.Batch), batchRows, summary, logger)
			if err != nil {
				return nil, err
			}
			if staged != nil {
				batches = append(batches, *staged)
				payloads = append(payloads, stagedFiles...)
			}
		}
	}

	if opts.DryRun {
		logger.Info("dry run complete",
			"batches", summary.BatchesWritten, "rows", summary.RowsWritten,
			"already_present", summary.RowsAlreadyPresent, "skipped", summary.RowsSkipped())
		return summary, nil
	}

	if err := commit(ctx, paths, stage, cat, batches, payloads, opts.Columns); err != nil {
		return nil, err
	}
	logger.Info("pack complete",
		"batches", summary.BatchesWritten, "rows", summary.RowsWritten,
		"already_present", summary.RowsAlreadyPresent, "skipped", summary.RowsSkipped())
	return summary, nil
}

// knownIDs resolves the row ids already present for one (source, speaker)
// pair. With a catalog the index is reconciled against the on-disk tables
// first; without one (dry runs) the tables are read directly.
func knownIDs(ctx context.Context, cat *catalog.Catalog, paths layout.Paths,
	snap plan.Snapshot, group types.GroupKey, cols types.Columns) (map[string]string, error) {

	if cat == nil {
		known := make(map[string]string)
		for _, b := range snap.Batches {
			tablePath := paths.TablePath(group.WithBatch(b.ID))
			if _, err := os.Stat(tablePath); os.IsNotExist(err) {
				continue
			}
			ids, err := table.RowIDs(tablePath, cols)
			if err != nil {
				return nil, err
			}
			for _, id := range ids {
				known[id] = b.ID
			}
		}
		return known, nil
	}

	onDisk := make(map[string]bool, len(snap.Batches))
	for _, b := range snap.Batches {
		key := group.WithBatch(b.ID)
		onDisk[b.ID] = true
		if err := cat.SyncBatch(ctx, key, paths.TablePath(key), cols); err != nil {
			return nil, err
		}
	}
	// Drop index records for batches deleted out from under us.
	indexed, err := cat.BatchesForGroup(ctx, group)
	if err != nil {
		return nil, err
	}
	for _, rec := range indexed {
		if !onDisk[rec.Key.Batch] {
			if err := cat.DeleteBatch(ctx, rec.Key); err != nil {
				return nil, err
			}
		}
	}
	return cat.KnownIDs(ctx, group)
}

// stageBatch relocates one placement's payloads into staging and stages the
// batch's rewritten metadata table. Per-row payload failures are collected
// into the summary (or abort in strict mode); failed rows stay out of the
// table so a later pack can retry them.
func stageBatch(ctx context.Context, opts Options, paths layout.Paths,
	stage *storage.Staging, copier storage.Copier, key types.PartitionKey,
	batchRows []types.Row, summary *Summary, logger *slog.Logger) (*stagedBatch, []stagedPayload, error) {

	finalTable := paths.TablePath(key)
	var existing *table.Table
	if _, err := os.Stat(finalTable); err == nil {
		existing, err = table.ReadBatchTable(finalTable, opts.Columns)
		if err != nil {
			return nil, nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, nil, errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("reading batch table %s", finalTable), err)
	}

	// Payload file names already claimed in this batch.
	claimed := make(map[string]string)
	if existing != nil {
		for _, row := range existing.Rows {
			claimed[filepath.Base(row.Value(opts.Columns.AudioPath))] = row.Value(opts.Columns.ID)
		}
	}

	type job struct {
		row     types.Row
		id      string
		wavName string
		src     string
	}
	var jobs []job
	for _, row := range batchRows {
		id := row.Value(opts.Columns.ID)
		wavName := filepath.Base(row.Value(opts.Columns.AudioPath))
		if wavName == "" || wavName == "." || wavName == string(filepath.Separator) {
			if opts.Strict {
				return nil, nil, errors.NewSchemaError(errors.CodeSchemaViolation,
					fmt.Sprintf("row %q has an unusable audio path %q", id, row.Value(opts.Columns.AudioPath))).
					WithRow(id, key.String())
			}
			summary.Skipped = append(summary.Skipped,
				SkippedRow{RowID: id, Key: key, Reason: "unusable audio path"})
			continue
		}
		if owner, taken := claimed[wavName]; taken {
			return nil, nil, errors.NewIOError(errors.CodeFilenameCollision,
				fmt.Sprintf("payload name %q of row %q is already used by row %q in batch %s",
					wavName, id, owner, key), nil).WithRow(id, key.String())
		}
		claimed[wavName] = id

		src := filepath.Join(opts.SourceDir, layout.FlatAudioDirName, wavName)
		if _, err := os.Stat(src); err != nil {
			if opts.Strict {
				return nil, nil, errors.NewIOError(errors.CodeIOFailure,
					fmt.Sprintf("payload %s for row %q not found", src, id), err).
					WithRow(id, key.String())
			}
			logger.Warn("payload missing, skipping row", "row", id, "partition", key.String(), "path", src)
			summary.Skipped = append(summary.Skipped,
				SkippedRow{RowID: id, Key: key, Reason: "payload missing"})
			continue
		}
		jobs = append(jobs, job{row: row, id: id, wavName: wavName, src: src})
	}

	if len(jobs) == 0 {
		return nil, nil, nil
	}

	if opts.DryRun {
		for _, j := range jobs {
			logger.Info("would pack payload",
				"row", j.id, "from", j.src, "to", filepath.Join(paths.AudioDir(key), j.wavName))
		}
		summary.BatchesWritten++
		summary.RowsWritten += len(jobs)
		return nil, nil, nil
	}

	// Payload copies are independent once placement is decided; fan out.
	var (
		mu     sync.Mutex
		failed = make(map[string]bool)
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.Concurrency)
	for _, j := range jobs {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			dst := stage.Path(layout.AudioDirName, key.Source, key.Speaker, key.Batch, j.wavName)
			if err := copier.Place(j.src, dst); err != nil {
				if opts.Strict {
					return errors.NewIOError(errors.CodeIOFailure,
						fmt.Sprintf("relocating payload for row %q", j.id), err).
						WithRow(j.id, key.String())
				}
				mu.Lock()
				failed[j.id] = true
				summary.Skipped = append(summary.Skipped,
					SkippedRow{RowID: j.id, Key: key, Reason: err.Error()})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	out := &table.Table{Columns: unionColumns(existing, batchRows, opts.Columns)}
	var ids []string
	if existing != nil {
		for _, row := range existing.Rows {
			out.Rows = append(out.Rows, row)
			ids = append(ids, row.Value(opts.Columns.ID))
		}
	}

	var files []stagedPayload
	for _, j := range jobs {
		if failed[j.id] {
			continue
		}
		row := j.row.Clone()
		row.Set(opts.Columns.Source, key.Source)
		row.Set(opts.Columns.Speaker, key.Speaker)
		row.Set(opts.Columns.AudioPath, layout.AudioRelPath(key, j.wavName))
		out.Rows = append(out.Rows, row)
		ids = append(ids, j.id)
		files = append(files, stagedPayload{
			rel:   filepath.Join(layout.AudioDirName, key.Source, key.Speaker, key.Batch, j.wavName),
			final: filepath.Join(paths.AudioDir(key), j.wavName),
		})
		summary.RowsWritten++
	}
	if len(files) == 0 {
		return nil, nil, nil
	}

	tableRel := filepath.Join(layout.MetadataDirName, key.Source, key.Speaker, key.Batch+layout.TableExt)
	if err := os.MkdirAll(filepath.Dir(stage.Path(tableRel)), 0755); err != nil {
		return nil, nil, errors.NewIOError(errors.CodeIOFailure,
			"creating staged metadata directory", err)
	}
	if err := table.WriteBatchTable(stage.Path(tableRel), out); err != nil {
		return nil, nil, err
	}
	summary.BatchesWritten++

	return &stagedBatch{
		key:       key,
		tableRel:  tableRel,
		finalPath: finalTable,
		ids:       ids,
		hasTable:  true,
	}, files, nil
}

// unionColumns merges the existing batch columns, the incoming flat columns,
// and the resolved partition columns, preserving first-seen order.
func unionColumns(existing *table.Table, rows []types.Row, cols types.Columns) []string {
	var union []string
	seen := make(map[string]bool)
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			union = append(union, c)
		}
	}
	if existing != nil {
		for _, c := range existing.Columns {
			add(c)
		}
	}
	for _, row := range rows {
		for _, c := range row.Columns() {
			add(c)
		}
	}
	add(cols.Source)
	add(cols.Speaker)
	return union
}

// commit installs staged payloads first and staged tables last, so an
// interruption can orphan audio files but never publish a table referencing
// payloads that are not in place. Each install is an atomic rename.
func commit(ctx context.Context, paths layout.Paths, stage *storage.Staging,
	cat *catalog.Catalog, batches []stagedBatch, payloads []stagedPayload,
	cols types.Columns) error {

	for _, p := range payloads {
		if err := stage.Install(p.rel, p.final); err != nil {
			return err
		}
	}
	for _, b := range batches {
		// The audio directory exists even when every payload was skipped,
		// keeping partition enumeration consistent with the tables.
		if err := os.MkdirAll(paths.AudioDir(b.key), 0755); err != nil {
			return errors.NewIOError(errors.CodeIOFailure,
				fmt.Sprintf("creating partition directory for %s", b.key), err)
		}
		if err := stage.Install(b.tableRel, b.finalPath); err != nil {
			return err
		}
		st, err := os.Stat(b.finalPath)
		if err != nil {
			return errors.NewIOError(errors.CodeIOFailure,
				fmt.Sprintf("reading installed table %s", b.finalPath), err)
		}
		if err := cat.ReplaceBatch(ctx, b.key, b.ids, st.Size(), st.ModTime().UnixNano()); err != nil {
			return err
		}
	}
	return nil
}
