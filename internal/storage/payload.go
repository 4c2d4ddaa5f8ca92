// Package storage relocates audio payloads between dataset layouts. Payload
// bytes are never re-encoded: files are copied or hard-linked exactly, with
// an optional checksum verification pass over the placed copy.
package storage

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spaolacci/murmur3"

	"github.com/voxpack/voxpack/internal/errors"
)

// Mode selects how payloads are relocated.
type Mode string

const (
	// ModeCopy duplicates payload bytes.
	ModeCopy Mode = "copy"

	// ModeHardlink links payloads when source and destination share a
	// filesystem, falling back to a copy per file when linking fails.
	ModeHardlink Mode = "hardlink"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCopy, ModeHardlink:
		return Mode(s), nil
	case "":
		return ModeCopy, nil
	default:
		return "", errors.NewValidationError(errors.CodeInvalidLabel,
			fmt.Sprintf("unknown payload mode %q (want copy or hardlink)", s))
	}
}

// Copier places payload files according to its mode.
type Copier struct {
	Mode   Mode
	Verify bool
}

// Place relocates one payload from src to dst, creating parent directories
// as needed. With Verify set the placed file is re-read and its checksum
// compared against the source.
func (c Copier) Place(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("creating directory for %s", dst), err)
	}

	linked := false
	if c.Mode == ModeHardlink {
		if err := os.Link(src, dst); err == nil {
			linked = true
		} else if os.IsExist(err) {
			return errors.NewIOError(errors.CodeIOFailure,
				fmt.Sprintf("destination %s already exists", dst), err)
		}
		// Cross-device or unsupported links fall through to a copy.
	}
	if !linked {
		if err := copyFile(src, dst); err != nil {
			return err
		}
	}

	if c.Verify && !linked {
		want, err := Checksum(src)
		if err != nil {
			return err
		}
		got, err := Checksum(dst)
		if err != nil {
			return err
		}
		if want != got {
			return errors.NewIOError(errors.CodeIOFailure,
				fmt.Sprintf("checksum mismatch after copying %s (want %s, got %s)", src, want, got), nil)
		}
	}
	return nil
}

// Checksum returns the murmur3-128 digest of a file as a hex string.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("opening %s for checksum", path), err)
	}
	defer f.Close()

	h := murmur3.New128()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("checksumming %s", path), err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("opening payload %s", src), err)
	}
	defer in.Close()

	st, err := in.Stat()
	if err != nil {
		return errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("reading payload %s", src), err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, st.Mode().Perm())
	if err != nil {
		return errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("creating payload %s", dst), err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("copying payload %s", src), err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return errors.NewIOError(errors.CodeIOFailure,
			fmt.Sprintf("finalizing payload %s", dst), err)
	}
	return nil
}
