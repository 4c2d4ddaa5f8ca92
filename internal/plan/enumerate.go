package plan

import (
	"fmt"
	"os"
	"sort"

	"github.com/voxpack/voxpack/internal/errors"
	"github.com/voxpack/voxpack/internal/layout"
	"github.com/voxpack/voxpack/pkg/types"
)

// Filter restricts partition enumeration. Empty fields match all values.
// Values are compared against sanitized labels, case-insensitively, so a
// filter may be given in the raw form the labels had before packing.
type Filter struct {
	Source  string
	Speaker string
	Batch   string
}

func (f Filter) normalized() (Filter, error) {
	out := f
	var err error
	if f.Source != "" {
		if out.Source, err = layout.SanitizeLabel(f.Source); err != nil {
			return out, err
		}
	}
	if f.Speaker != "" {
		if out.Speaker, err = layout.SanitizeLabel(f.Speaker); err != nil {
			return out, err
		}
	}
	return out, nil
}

// Matches reports whether a partition key passes the filter.
func (f Filter) Matches(key types.PartitionKey) bool {
	if f.Source != "" && key.Source != f.Source {
		return false
	}
	if f.Speaker != "" && key.Speaker != f.Speaker {
		return false
	}
	if f.Batch != "" && key.Batch != f.Batch {
		return false
	}
	return true
}

// ListPartitions walks the dataset's audio tree and returns the partition
// keys matching the filter, in ascending (source, speaker, batch id) order.
func ListPartitions(paths layout.Paths, filter Filter) ([]types.PartitionKey, error) {
	filter, err := filter.normalized()
	if err != nil {
		return nil, err
	}

	var keys []types.PartitionKey
	sources, err := readSubdirs(paths.AudioRoot())
	if err != nil {
		return nil, err
	}
	for _, source := range sources {
		speakers, err := readSubdirs(paths.SpeakerDir(types.GroupKey{Source: source}))
		if err != nil {
			return nil, err
		}
		for _, speaker := range speakers {
			group := types.GroupKey{Source: source, Speaker: speaker}
			batches, err := readSubdirs(paths.SpeakerDir(group))
			if err != nil {
				return nil, err
			}
			for _, batch := range batches {
				key := group.WithBatch(batch)
				if filter.Matches(key) {
					keys = append(keys, key)
				}
			}
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Speaker != b.Speaker {
			return a.Speaker < b.Speaker
		}
		return layout.CompareBatchIDs(a.Batch, b.Batch) < 0
	})
	return keys, nil
}

func readSubdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("listing %s", dir), err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
