package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/voxpack/voxpack/internal/errors"
)

// stagingPrefix marks staging directories so interrupted runs are
// discoverable and later runs can report them.
const stagingPrefix = "stage-"

// Staging is a scratch directory for building output before committing it.
// Everything is written under the staging directory first and renamed into
// its final location only when the whole operation has succeeded, so an
// interrupted run never leaves a partial file where a final one belongs.
type Staging struct {
	dir string
}

// NewStaging creates a uniquely named staging directory under parent. The
// parent should share a filesystem with the final destination so the commit
// renames stay atomic.
func NewStaging(parent string) (*Staging, error) {
	dir := filepath.Join(parent, stagingPrefix+uuid.NewString())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("creating staging directory %s", dir), err)
	}
	return &Staging{dir: dir}, nil
}

// Dir returns the staging directory path.
func (s *Staging) Dir() string {
	return s.dir
}

// Path resolves a staged location.
func (s *Staging) Path(rel ...string) string {
	return filepath.Join(append([]string{s.dir}, rel...)...)
}

// Install renames one staged file into its final location, creating parent
// directories as needed. Each install is atomic for its file.
func (s *Staging) Install(rel, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("creating directory for %s", dst), err)
	}
	if err := os.Rename(s.Path(rel), dst); err != nil {
		return errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("installing %s", dst), err)
	}
	return nil
}

// InstallDir renames a whole staged directory into its final location. The
// destination must not exist.
func (s *Staging) InstallDir(rel, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("creating directory for %s", dst), err)
	}
	if err := os.Rename(s.Path(rel), dst); err != nil {
		return errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("installing %s", dst), err)
	}
	return nil
}

// Remove deletes the staging directory and anything left in it.
func (s *Staging) Remove() error {
	return os.RemoveAll(s.dir)
}

// ListStale returns leftover staging directories under parent, typically
// debris from interrupted runs.
func ListStale(parent string) ([]string, error) {
	entries, err := os.ReadDir(parent)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("listing %s", parent), err)
	}
	var stale []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), stagingPrefix) {
			stale = append(stale, filepath.Join(parent, e.Name()))
		}
	}
	return stale, nil
}
