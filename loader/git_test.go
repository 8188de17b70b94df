package loader

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/AntelopeJS/antelopejs-sub002/fsx"
	"github.com/AntelopeJS/antelopejs-sub002/modcache"
	"github.com/AntelopeJS/antelopejs-sub002/modsource"
)

// newLocalGitRemote creates a throwaway repository on disk with one commit
// on main, usable as a "remote" URL (a plain file path) so these tests
// never touch the network.
func newLocalGitRemote(t *testing.T, pkgJSON string) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-b", "main")
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(pkgJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", "package.json")
	run("commit", "-m", "initial")
	return dir
}

func TestGitLoaderClonesAndRecordsVersion(t *testing.T) {
	remote := newLocalGitRemote(t, `{"name":"cloned","version":"1.0.0"}`)

	cache, err := modcache.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	l := NewGit(fsx.OS{})
	ms, err := l.Load(cache, modsource.Source{Type: modsource.TypeGit, Remote: remote})
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 1 || ms[0].Name != "cloned" {
		t.Fatalf("got %+v", ms)
	}
}

func TestGitLoaderPullsUpdateOnSecondLoad(t *testing.T) {
	remote := newLocalGitRemote(t, `{"name":"cloned","version":"1.0.0"}`)

	cache, err := modcache.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	l := NewGit(fsx.OS{})
	if _, err := l.Load(cache, modsource.Source{Type: modsource.TypeGit, Remote: remote}); err != nil {
		t.Fatal(err)
	}

	// advance the remote with a second commit.
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = remote
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	if err := os.WriteFile(filepath.Join(remote, "package.json"), []byte(`{"name":"cloned","version":"1.1.0"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	run("commit", "-am", "bump version")

	ms, err := l.Load(cache, modsource.Source{Type: modsource.TypeGit, Remote: remote})
	if err != nil {
		t.Fatal(err)
	}
	if ms[0].Version != "1.1.0" {
		t.Fatalf("expected pulled update, got version %q", ms[0].Version)
	}
}
