package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteReadRoundTrip(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	payload := []byte("snapshot bytes")
	if err := local.Write("hondana_1.bkp.gz", payload); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := local.Read("hondana_1.bkp.gz")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Read = %q, want %q", got, payload)
	}

	// The on-disk file must actually be compressed, not the raw payload.
	raw, err := os.ReadFile(filepath.Join(local.Dir, "hondana_1.bkp.gz"))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(raw, payload) {
		t.Error("file was written uncompressed")
	}

	if !local.Validate("hondana_1.bkp.gz") {
		t.Error("Validate is false for a healthy file")
	}
	if local.Validate("hondana_missing.bkp.gz") {
		t.Error("Validate is true for a missing file")
	}
}

func TestReadUncompressedFallback(t *testing.T) {
	dir := t.TempDir()
	local, err := NewLocal(dir)
	if err != nil {
		t.Fatal(err)
	}

	// Files from builds that predate compression are plain bytes.
	payload := []byte("old uncompressed backup")
	if err := os.WriteFile(filepath.Join(dir, "hondana_0.bkp"), payload, 0644); err != nil {
		t.Fatal(err)
	}

	got, err := local.Read("hondana_0.bkp")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Read = %q, want raw fallback %q", got, payload)
	}
}

func TestListFiltersAndRemove(t *testing.T) {
	dir := t.TempDir()
	local, err := NewLocal(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := local.Write("hondana_1.bkp.gz", []byte("a")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := local.Write("hondana_2.bkp.gz", []byte("b")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	files, err := local.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("List = %+v, want the 2 snapshot files only", files)
	}

	if err := local.Remove("hondana_1.bkp.gz"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	files, err = local.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Name != "hondana_2.bkp.gz" {
		t.Errorf("List after remove = %+v", files)
	}
}
