// Package fsx provides the uniform filesystem interface consulted by every
// other package in this module, plus an in-memory implementation so code
// written against FS can be exercised in tests without a real disk.
package fsx

import (
	"io"
	"os"
	"time"
)

// Info is the subset of os.FileInfo every caller actually needs.
type Info struct {
	Name    string
	IsDir   bool
	Size    int64
	Mode    os.FileMode
	ModTime time.Time
}

// FS is the uniform read/write/exist/list/stat surface the rest of the
// runtime is written against.
type FS interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm os.FileMode) error
	Exists(path string) (bool, error)
	IsDir(path string) (bool, error)
	ListDir(path string) ([]Info, error)
	Stat(path string) (Info, error)
	MkdirAll(path string, perm os.FileMode) error
	RemoveAll(path string) error
	Rename(oldPath, newPath string) error
}

// OS is the real-disk implementation, a thin pass-through to the os
// package.
type OS struct{}

var _ FS = OS{}

func (OS) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

func (OS) WriteFile(path string, data []byte, perm os.FileMode) error {
	return os.WriteFile(path, data, perm)
}

func (OS) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (OS) IsDir(path string) (bool, error) {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fi.IsDir(), nil
}

func (OS) ListDir(path string) ([]Info, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		fi, err := e.Info()
		if err != nil {
			return nil, err
		}
		out = append(out, toInfo(fi))
	}
	return out, nil
}

func (OS) Stat(path string) (Info, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}
	return toInfo(fi), nil
}

func (OS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

func (OS) RemoveAll(path string) error { return os.RemoveAll(path) }

func (OS) Rename(oldPath, newPath string) error { return os.Rename(oldPath, newPath) }

func toInfo(fi os.FileInfo) Info {
	return Info{Name: fi.Name(), IsDir: fi.IsDir(), Size: fi.Size(), Mode: fi.Mode(), ModTime: fi.ModTime()}
}

// IsRegular reports whether name exists and is a regular file.
func IsRegular(fs FS, name string) (bool, error) {
	ok, err := fs.Exists(name)
	if err != nil || !ok {
		return false, err
	}
	isDir, err := fs.IsDir(name)
	if err != nil {
		return false, err
	}
	return !isDir, nil
}

var _ io.Writer = (*discard)(nil)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Discard is an io.Writer that ignores everything written to it, used by
// callers that want to share logging plumbing but silence it in tests.
var Discard io.Writer = discard{}
