package table

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/voxpack/voxpack/internal/errors"
	"github.com/voxpack/voxpack/pkg/types"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metadata.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadFlatCSV(t *testing.T) {
	path := writeCSV(t, "id,audio_path,speaker,transcript\n"+
		"utt_1,wavs/a.wav,somrat,\"hello, world\"\n"+
		"utt_2,wavs/b.wav,anik,\n")

	tbl, err := ReadFlatCSV(path, types.DefaultColumns())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tbl.Columns) != 4 || tbl.Columns[3] != "transcript" {
		t.Errorf("columns = %v", tbl.Columns)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("rows = %d", len(tbl.Rows))
	}
	if got := tbl.Rows[0].Value("transcript"); got != "hello, world" {
		t.Errorf("quoted field = %q", got)
	}
	if got := tbl.Rows[1].Value("transcript"); got != "" {
		t.Errorf("empty field = %q", got)
	}
}

func TestReadFlatCSVMissingRequiredColumn(t *testing.T) {
	path := writeCSV(t, "file,speaker\na.wav,somrat\n")
	_, err := ReadFlatCSV(path, types.DefaultColumns())
	if errors.GetCode(err) != errors.CodeSchemaViolation {
		t.Errorf("expected SCHEMA_VIOLATION, got %v", err)
	}
}

func TestReadFlatCSVRaggedRow(t *testing.T) {
	path := writeCSV(t, "id,audio_path\nutt_1,wavs/a.wav,extra\n")
	_, err := ReadFlatCSV(path, types.DefaultColumns())
	if errors.GetCode(err) != errors.CodeSchemaViolation {
		t.Errorf("expected SCHEMA_VIOLATION, got %v", err)
	}
}

func TestReadFlatCSVMissingFile(t *testing.T) {
	_, err := ReadFlatCSV(filepath.Join(t.TempDir(), "nope.csv"), types.DefaultColumns())
	if errors.GetCode(err) != errors.CodeIOFailure {
		t.Errorf("expected IO_FAILURE, got %v", err)
	}
}

func TestWriteFlatCSVRoundTrip(t *testing.T) {
	cols := []string{"id", "audio_path", "note"}
	want := &Table{
		Columns: cols,
		Rows: []types.Row{
			types.NewRow(cols, map[string]string{"id": "a", "audio_path": "wavs/a.wav", "note": "x,y"}),
			// note missing entirely; must be written as an empty cell
			types.NewRow(cols, map[string]string{"id": "b", "audio_path": "wavs/b.wav"}),
		},
	}

	path := filepath.Join(t.TempDir(), "metadata.csv")
	if err := WriteFlatCSV(path, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadFlatCSV(path, types.DefaultColumns())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got.Rows) != 2 {
		t.Fatalf("rows = %d", len(got.Rows))
	}
	if v := got.Rows[0].Value("note"); v != "x,y" {
		t.Errorf("note = %q", v)
	}
	if v := got.Rows[1].Value("note"); v != "" {
		t.Errorf("missing cell = %q", v)
	}
}
