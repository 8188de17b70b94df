package manifest

import (
	"testing"

	"github.com/AntelopeJS/antelopejs-sub002/fsx"
	"github.com/AntelopeJS/antelopejs-sub002/modsource"
)

func TestLoadDefaultsAndOverlay(t *testing.T) {
	fs := fsx.NewMemory()
	fs.WriteFile("/mod/package.json", []byte(`{
		"name": "demo",
		"version": "1.0.0",
		"antelopeJs": {"exports": ["logger@1"]}
	}`), 0644)
	fs.WriteFile("/mod/antelope.module.json", []byte(`{
		"antelopeJs": {"exports": ["logger@1", "logger@2"], "baseUrl": "src"}
	}`), 0644)
	fs.WriteFile("/mod/src/interfaces/logger/1/index.js", []byte("x"), 0644)
	fs.WriteFile("/mod/src/interfaces/logger/2/index.js", []byte("x"), 0644)

	m, err := Load(fs, "/mod", modsource.Source{Type: modsource.TypeLocal, Path: "/mod"})
	if err != nil {
		t.Fatal(err)
	}
	if m.BaseURL != "/mod/src" {
		t.Fatalf("overlay should have replaced antelopeJs wholesale, got baseUrl=%s", m.BaseURL)
	}
	if len(m.DeclaredExports) != 2 {
		t.Fatalf("expected overlay's exports list, got %v", m.DeclaredExports)
	}

	if err := LoadExports(fs, m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Exports["logger@1"]; !ok {
		t.Fatalf("expected logger@1 export, got %v", m.Exports)
	}
	if _, ok := m.Exports["logger@2"]; !ok {
		t.Fatalf("expected logger@2 export, got %v", m.Exports)
	}
}

func TestLoadExportsScansVersionDirsWhenUnversioned(t *testing.T) {
	fs := fsx.NewMemory()
	fs.WriteFile("/mod/package.json", []byte(`{"name": "demo", "antelopeJs": {"exports": ["http"]}}`), 0644)
	fs.WriteFile("/mod/interfaces/http/1/index.js", []byte("x"), 0644)
	fs.WriteFile("/mod/interfaces/http/2/index.js", []byte("x"), 0644)

	m, err := Load(fs, "/mod", modsource.Source{})
	if err != nil {
		t.Fatal(err)
	}
	if err := LoadExports(fs, m); err != nil {
		t.Fatal(err)
	}
	if len(m.Exports) != 2 {
		t.Fatalf("expected 2 versions enumerated, got %v", m.Exports)
	}
	for _, v := range []string{"http@1", "http@2"} {
		if !contains(m.Imports, v) {
			t.Fatalf("expected self-export %s to be appended to imports, got %v", v, m.Imports)
		}
	}
}

func TestLoadMissingPackageJSON(t *testing.T) {
	fs := fsx.NewMemory()
	fs.MkdirAll("/empty", 0755)
	if _, err := Load(fs, "/empty", modsource.Source{}); err == nil {
		t.Fatal("expected ManifestMissing error")
	}
}

func TestReloadResetsImportsWhenNoneDeclared(t *testing.T) {
	fs := fsx.NewMemory()
	fs.WriteFile("/mod/package.json", []byte(`{"name": "demo", "antelopeJs": {"imports": ["foo@1"]}}`), 0644)

	m, err := Load(fs, "/mod", modsource.Source{})
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Imports) != 1 {
		t.Fatalf("expected initial import, got %v", m.Imports)
	}

	fs.WriteFile("/mod/package.json", []byte(`{"name": "demo"}`), 0644)
	if err := Reload(fs, m); err != nil {
		t.Fatal(err)
	}
	if len(m.Imports) != 0 {
		t.Fatalf("expected imports reset to empty after reload dropped them, got %v", m.Imports)
	}
}
