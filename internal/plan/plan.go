// Package plan decides batch placement: which existing batch of a
// (source, speaker) pair receives incoming rows, and when a new batch opens.
// Decisions are pure functions over an explicit snapshot of the existing
// on-disk batches, taken once per group, so identical state and input always
// produce identical assignments.
package plan

import (
	"fmt"
	"os"
	"sort"

	"github.com/voxpack/voxpack/internal/errors"
	"github.com/voxpack/voxpack/internal/layout"
	"github.com/voxpack/voxpack/pkg/types"
)

// DefaultMaxRows is the batch row-count ceiling used when no override is
// given.
const DefaultMaxRows = 10000

// RowCounter reports the row count of one batch metadata table. Batches with
// an audio directory but no table count as empty.
type RowCounter func(tablePath string) (int, error)

// BatchState is one existing batch in a snapshot.
type BatchState struct {
	ID   string
	Rows int
}

// Snapshot captures the existing batches of one (source, speaker) pair,
// sorted by batch id. Only the group's own sub-tree is scanned, so snapshot
// cost is independent of total dataset size.
type Snapshot struct {
	Group   types.GroupKey
	Batches []BatchState
}

// TakeSnapshot scans the group's batch directories under the dataset root
// and resolves each batch's current row count from its metadata table.
func TakeSnapshot(paths layout.Paths, group types.GroupKey, count RowCounter) (Snapshot, error) {
	snap := Snapshot{Group: group}

	entries, err := os.ReadDir(paths.SpeakerDir(group))
	if err != nil {
		if os.IsNotExist(err) {
			return snap, nil
		}
		return snap, errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("scanning batches of %s", group), err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id := e.Name()
		tablePath := paths.TablePath(group.WithBatch(id))
		rows := 0
		if _, statErr := os.Stat(tablePath); statErr == nil {
			rows, err = count(tablePath)
			if err != nil {
				return snap, err
			}
		} else if !os.IsNotExist(statErr) {
			return snap, errors.NewIOError(errors.CodeIOFailure,
				fmt.Sprintf("reading batch table for %s/%s", group, id), statErr)
		}
		snap.Batches = append(snap.Batches, BatchState{ID: id, Rows: rows})
	}

	// Directory listing order is not defined; sort before any comparison.
	sort.Slice(snap.Batches, func(i, j int) bool {
		return layout.CompareBatchIDs(snap.Batches[i].ID, snap.Batches[j].ID) < 0
	})
	return snap, nil
}

// Batch returns the state of one batch in the snapshot.
func (s Snapshot) Batch(id string) (BatchState, bool) {
	for _, b := range s.Batches {
		if b.ID == id {
			return b, true
		}
	}
	return BatchState{}, false
}

// highestNumeric returns the highest auto-incremented batch in the snapshot.
func (s Snapshot) highestNumeric() (BatchState, int, bool) {
	best := -1
	var state BatchState
	for _, b := range s.Batches {
		if n, ok := layout.ParseBatchID(b.ID); ok && n > best {
			best = n
			state = b
		}
	}
	return state, best, best >= 0
}

// Placement assigns a contiguous run of incoming rows to one batch.
type Placement struct {
	// Batch is the assigned batch id.
	Batch string

	// Rows is how many incoming rows land in this batch.
	Rows int

	// Existing is the batch's prior row count (0 for a new batch).
	Existing int
}

// IsNew reports whether the placement opened a batch that held no rows.
func (p Placement) IsNew() bool {
	return p.Existing == 0
}

// Group plans placements for incoming rows of one (source, speaker) pair.
//
// With an explicit batch label the rows go to that batch verbatim; if the
// batch already holds rows they are appended only while the ceiling allows,
// otherwise the plan fails with BATCH_CAPACITY_EXCEEDED. Explicit mode never
// splits across batches.
//
// In auto mode the highest numeric batch is topped up to the ceiling and the
// remainder is split across consecutive new batches, each sealed at exactly
// maxRows except the final one.
func Group(snap Snapshot, incoming, maxRows int, explicit string) ([]Placement, error) {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	if incoming <= 0 {
		return nil, nil
	}

	if explicit != "" {
		existing := 0
		if b, ok := snap.Batch(explicit); ok {
			existing = b.Rows
		}
		if existing+incoming > maxRows {
			return nil, errors.NewPlanError(errors.CodeBatchCapacityExceeded,
				fmt.Sprintf("batch %q of %s holds %d rows; %d incoming rows exceed the ceiling of %d",
					explicit, snap.Group, existing, incoming, maxRows)).
				WithRow("", snap.Group.WithBatch(explicit).String())
		}
		return []Placement{{Batch: explicit, Rows: incoming, Existing: existing}}, nil
	}

	var placements []Placement
	next := 1
	remaining := incoming

	if state, n, ok := snap.highestNumeric(); ok {
		next = n + 1
		if room := maxRows - state.Rows; room > 0 {
			take := min(room, remaining)
			placements = append(placements, Placement{Batch: state.ID, Rows: take, Existing: state.Rows})
			remaining -= take
		}
	}

	for remaining > 0 {
		take := min(maxRows, remaining)
		placements = append(placements, Placement{Batch: layout.FormatBatchID(next), Rows: take})
		remaining -= take
		next++
	}
	return placements, nil
}
