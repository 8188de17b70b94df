package modcache

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSetVersionPersistsAcrossLoad(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SetVersion("pkg", "1.0.0"); err != nil {
		t.Fatal(err)
	}
	c.Close()

	c2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()
	if err := c2.Load(); err != nil {
		t.Fatal(err)
	}
	if !c2.HasVersion("pkg", "1.0.0") {
		t.Fatalf("expected version to survive reopen")
	}
}

func TestGetFolderClearsWhenNotMustExist(t *testing.T) {
	c := newTestCache(t)
	folder, err := c.GetFolder("pkg", true, true)
	if err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(folder, "marker.txt")
	if err := os.WriteFile(marker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	folder2, err := c.GetFolder("pkg", false, true)
	if err != nil {
		t.Fatal(err)
	}
	if folder2 != folder {
		t.Fatalf("expected same folder path, got %s vs %s", folder2, folder)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatalf("expected folder to have been wiped, marker still present")
	}
}

func TestTransferMovesAndRecordsVersion(t *testing.T) {
	c := newTestCache(t)
	tmp, err := c.GetTemp()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmp, "package.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := c.Transfer(tmp, "pkg", "2.3.4"); err != nil {
		t.Fatal(err)
	}
	if !c.HasVersion("pkg", "2.3.4") {
		t.Fatalf("expected version recorded after transfer")
	}
	folder, err := c.GetFolder("pkg", true, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(folder, "package.json")); err != nil {
		t.Fatalf("expected package.json to have been moved into cache: %v", err)
	}
}

func TestWithLockRunsFunction(t *testing.T) {
	c := newTestCache(t)
	ran := false
	err := c.WithLock(func() error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatalf("expected fn to run")
	}
}
