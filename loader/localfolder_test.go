package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AntelopeJS/antelopejs-sub002/fsx"
	"github.com/AntelopeJS/antelopejs-sub002/modsource"
)

func TestLocalFolderLoaderProducesOneManifestPerSubdir(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"alpha", "beta"} {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		pkg := `{"name":"` + name + `","version":"1.0.0"}`
		if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(pkg), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// a stray file alongside the module directories must be skipped.
	if err := os.WriteFile(filepath.Join(root, "README.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLocalFolder(fsx.OS{})
	ms, err := l.Load(nil, modsource.Source{Type: modsource.TypeLocalFolder, Path: root, ID: "group"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 2 {
		t.Fatalf("expected 2 manifests, got %d", len(ms))
	}
	if ms[0].Name != "alpha" || ms[1].Name != "beta" {
		t.Fatalf("unexpected manifest order/content: %+v", ms)
	}
	if ms[0].Source.ID != "group-alpha" {
		t.Fatalf("expected derived child id, got %q", ms[0].Source.ID)
	}
}
