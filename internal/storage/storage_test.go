package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func writePayload(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"copy", ModeCopy, false},
		{"hardlink", ModeHardlink, false},
		{"", ModeCopy, false},
		{"symlink", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseMode(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseMode(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestCopierPlaceCopy(t *testing.T) {
	dir := t.TempDir()
	content := []byte("RIFF....WAVEfmt ")
	src := writePayload(t, dir, "a.wav", content)
	dst := filepath.Join(dir, "out", "deep", "a.wav")

	c := Copier{Mode: ModeCopy, Verify: true}
	if err := c.Place(src, dst); err != nil {
		t.Fatalf("place: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Errorf("payload bytes differ")
	}
	// Source is untouched.
	if _, err := os.Stat(src); err != nil {
		t.Errorf("source missing: %v", err)
	}
}

func TestCopierPlaceHardlink(t *testing.T) {
	dir := t.TempDir()
	src := writePayload(t, dir, "a.wav", []byte("payload"))
	dst := filepath.Join(dir, "out", "a.wav")

	c := Copier{Mode: ModeHardlink}
	if err := c.Place(src, dst); err != nil {
		t.Fatalf("place: %v", err)
	}

	si, err := os.Stat(src)
	if err != nil {
		t.Fatal(err)
	}
	di, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !os.SameFile(si, di) {
		t.Error("expected dst to be a hard link of src")
	}
}

func TestCopierPlaceMissingSource(t *testing.T) {
	dir := t.TempDir()
	c := Copier{Mode: ModeCopy}
	err := c.Place(filepath.Join(dir, "nope.wav"), filepath.Join(dir, "out.wav"))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestChecksumStable(t *testing.T) {
	dir := t.TempDir()
	a := writePayload(t, dir, "a.wav", []byte("same bytes"))
	b := writePayload(t, dir, "b.wav", []byte("same bytes"))
	c := writePayload(t, dir, "c.wav", []byte("other bytes"))

	ha, err := Checksum(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := Checksum(b)
	if err != nil {
		t.Fatal(err)
	}
	hc, err := Checksum(c)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Errorf("identical payloads hashed differently: %s vs %s", ha, hb)
	}
	if ha == hc {
		t.Errorf("distinct payloads collided: %s", ha)
	}
}

func TestStagingInstall(t *testing.T) {
	parent := t.TempDir()
	stage, err := NewStaging(parent)
	if err != nil {
		t.Fatal(err)
	}
	defer stage.Remove()

	if err := os.MkdirAll(filepath.Dir(stage.Path("meta", "t.parquet")), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stage.Path("meta", "t.parquet"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(parent, "final", "t.parquet")
	if err := stage.Install(filepath.Join("meta", "t.parquet"), dst); err != nil {
		t.Fatalf("install: %v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("installed file missing: %v", err)
	}
	if _, err := os.Stat(stage.Path("meta", "t.parquet")); !os.IsNotExist(err) {
		t.Errorf("staged file still present after install")
	}
}

func TestStagingInstallDir(t *testing.T) {
	parent := t.TempDir()
	stage, err := NewStaging(parent)
	if err != nil {
		t.Fatal(err)
	}
	defer stage.Remove()

	if err := os.MkdirAll(stage.Path("wavs"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stage.Path("wavs", "a.wav"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(parent, "out", "wavs")
	if err := stage.InstallDir("wavs", dst); err != nil {
		t.Fatalf("install dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "a.wav")); err != nil {
		t.Errorf("installed payload missing: %v", err)
	}
}

func TestListStale(t *testing.T) {
	parent := t.TempDir()
	stage, err := NewStaging(parent)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(parent, "not-staging"), 0755); err != nil {
		t.Fatal(err)
	}

	stale, err := ListStale(parent)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 1 || stale[0] != stage.Dir() {
		t.Errorf("stale = %v, want [%s]", stale, stage.Dir())
	}

	if err := stage.Remove(); err != nil {
		t.Fatal(err)
	}
	stale, err = ListStale(parent)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 0 {
		t.Errorf("stale after remove = %v", stale)
	}
}
