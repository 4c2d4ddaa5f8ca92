// Package layout defines the partitioned dataset's path scheme: how a
// (source, speaker, batch) triple maps to the audio directory and the batch
// metadata table, and how batch identifiers are formatted and compared.
// The mapping is a pure function of the triple.
package layout

import (
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/voxpack/voxpack/internal/errors"
	"github.com/voxpack/voxpack/pkg/types"
)

const (
	// AudioDirName is the audio area under the dataset root.
	AudioDirName = "audio"

	// MetadataDirName is the metadata area under the dataset root.
	MetadataDirName = "metadata"

	// StateDirName holds voxpack-private state (lock file, state index,
	// staging areas). The version-control collaborator ignores it.
	StateDirName = ".voxpack"

	// TableExt is the per-batch metadata table extension.
	TableExt = ".parquet"

	// FlatMetadataName is the flat layout's metadata table file name.
	FlatMetadataName = "metadata.csv"

	// FlatAudioDirName is the flat layout's audio directory name.
	FlatAudioDirName = "wavs"

	batchPrefix = "batch_"
	batchDigits = 4
)

// SanitizeLabel turns a raw source or speaker value into a filesystem-safe
// path segment: trimmed, lowercased, spaces become underscores and path
// separators become dashes. Labels that are empty after trimming, or that
// still resolve to path traversal, are rejected with INVALID_LABEL.
func SanitizeLabel(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errors.NewValidationError(errors.CodeInvalidLabel, "label is empty")
	}
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "\\", "-")
	if s == "." || s == ".." {
		return "", errors.NewValidationError(errors.CodeInvalidLabel,
			fmt.Sprintf("label %q resolves to a path traversal segment", raw))
	}
	for _, r := range s {
		if r == 0 {
			return "", errors.NewValidationError(errors.CodeInvalidLabel,
				fmt.Sprintf("label %q contains a NUL byte", raw))
		}
	}
	return s, nil
}

// FormatBatchID renders a numeric batch id, zero-padded to four digits.
// Numbers past 9999 widen naturally and keep parsing and sorting correctly.
func FormatBatchID(n int) string {
	return fmt.Sprintf("%s%0*d", batchPrefix, batchDigits, n)
}

// ParseBatchID extracts the sequence number from an auto-incremented batch
// id. Explicit labels (anything not matching batch_<digits>) report ok=false
// and never participate in auto-increment.
func ParseBatchID(id string) (n int, ok bool) {
	rest, found := strings.CutPrefix(id, batchPrefix)
	if !found || rest == "" {
		return 0, false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

// CompareBatchIDs orders batch ids deterministically: numeric ids ascend by
// sequence number and sort before explicit labels, which ascend
// lexicographically.
func CompareBatchIDs(a, b string) int {
	an, aok := ParseBatchID(a)
	bn, bok := ParseBatchID(b)
	switch {
	case aok && bok:
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	case aok:
		return -1
	case bok:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// Paths derives physical locations under one dataset root. All methods are
// pure functions of the root and the partition key.
type Paths struct {
	Root string
}

// AudioDir returns the audio directory for one partition.
func (p Paths) AudioDir(key types.PartitionKey) string {
	return filepath.Join(p.Root, AudioDirName, key.Source, key.Speaker, key.Batch)
}

// SpeakerDir returns the directory holding all batch directories of one
// (source, speaker) pair.
func (p Paths) SpeakerDir(group types.GroupKey) string {
	return filepath.Join(p.Root, AudioDirName, group.Source, group.Speaker)
}

// TablePath returns the metadata table file for one partition. The metadata
// tree mirrors the audio tree; joining the key into a flat file name would be
// ambiguous because sanitized labels may contain underscores.
func (p Paths) TablePath(key types.PartitionKey) string {
	return filepath.Join(p.Root, MetadataDirName, key.Source, key.Speaker, key.Batch+TableExt)
}

// MetadataDir returns the dataset's metadata area.
func (p Paths) MetadataDir() string {
	return filepath.Join(p.Root, MetadataDirName)
}

// AudioRoot returns the dataset's audio area.
func (p Paths) AudioRoot() string {
	return filepath.Join(p.Root, AudioDirName)
}

// StateDir returns the voxpack-private state directory.
func (p Paths) StateDir() string {
	return filepath.Join(p.Root, StateDirName)
}

// LockPath returns the advisory lock file guarding pack operations.
func (p Paths) LockPath() string {
	return filepath.Join(p.StateDir(), "lock")
}

// IndexPath returns the state index database file.
func (p Paths) IndexPath() string {
	return filepath.Join(p.StateDir(), "state.db")
}

// AudioRelPath returns the dataset-relative audio path recorded in batch
// metadata tables. Always slash-separated, independent of the host OS.
func AudioRelPath(key types.PartitionKey, filename string) string {
	return path.Join(AudioDirName, key.Source, key.Speaker, key.Batch, filename)
}

// FlatRelPath returns the flat-relative audio path recorded in the flat
// metadata table.
func FlatRelPath(filename string) string {
	return path.Join(FlatAudioDirName, filename)
}
