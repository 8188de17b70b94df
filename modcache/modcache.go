// Package modcache implements the content-addressed module cache: one
// subfolder per module name on disk, an index of name -> resolved version
// persisted in a small bolt database, and a named file lock giving
// exclusive cross-process access to a given cache root, following the
// teacher's source_manager.go / source_cache_bolt.go pattern.
package modcache

import (
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
	shutil "github.com/termie/go-shutil"
	"github.com/theckman/go-flock"

	"github.com/AntelopeJS/antelopejs-sub002/rterrors"
)

// DefaultLockTimeout bounds how long a caller will wait to acquire the
// cross-process cache lock before giving up.
const DefaultLockTimeout = 30 * time.Second

var lockRetryDelay = 100 * time.Millisecond

var bucketName = []byte("versions")

// Cache owns one directory on disk: one subfolder per module name, plus an
// index.db bolt file recording the resolved version of each.
type Cache struct {
	root        string
	lockTimeout time.Duration

	mu    sync.Mutex
	index map[string]string

	db   *bolt.DB
	lock *flock.Flock
}

// Open creates root (and root/index.db) if needed and returns a Cache bound
// to it. It does not itself take the cross-process lock, and neither do
// Load, SetVersion or Transfer; call WithLock around any mutation.
func Open(root string) (*Cache, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating cache root %s", root)
	}
	db, err := bolt.Open(filepath.Join(root, "index.db"), 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening cache index at %s", root)
	}
	return &Cache{
		root:        root,
		lockTimeout: DefaultLockTimeout,
		index:       map[string]string{},
		db:          db,
		lock:        flock.NewFlock(filepath.Join(root, ".cache.lock")),
	}, nil
}

// Close releases the underlying bolt handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Root returns the cache's root directory.
func (c *Cache) Root() string { return c.root }

// WithLock acquires the named cross-process lock for the cache root,
// retrying at lockRetryDelay cadence until it succeeds or c.lockTimeout
// elapses, then runs fn and always releases the lock afterward.
func (c *Cache) WithLock(fn func() error) error {
	deadline := time.Now().Add(c.lockTimeout)
	for {
		locked, err := c.lock.TryLock()
		if err != nil {
			return errors.Wrapf(err, "acquiring cache lock %s", c.lock.Path())
		}
		if locked {
			break
		}
		if time.Now().After(deadline) {
			return &rterrors.CacheLocked{LockPath: c.lock.Path(), Timeout: c.lockTimeout.String()}
		}
		time.Sleep(lockRetryDelay)
	}
	defer c.lock.Unlock()
	return fn()
}

// Load reads the on-disk index into memory.
func (c *Cache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			c.index[string(k)] = string(v)
			return nil
		})
	})
}

// HasVersion reports whether name is recorded at exactly version v.
func (c *Cache) HasVersion(name, v string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index[name] == v
}

// GetVersion returns the recorded version for name, or "" if unknown.
func (c *Cache) GetVersion(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.index[name]
	return v, ok
}

// SetVersion records name -> v in memory and flushes it to the on-disk
// index immediately.
func (c *Cache) SetVersion(name, v string) error {
	c.mu.Lock()
	c.index[name] = v
	c.mu.Unlock()

	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return b.Put([]byte(name), []byte(v))
	})
}

// folderFor returns root/name, the subfolder owning every cached version of
// a given module name.
func (c *Cache) folderFor(name string) string {
	return filepath.Join(c.root, safeName(name))
}

func safeName(name string) string {
	r := nameSanitizer
	return r.Replace(name)
}

// GetFolder returns the absolute folder for name. If create is true, it is
// created if missing. If mustExist is false and the folder already exists,
// it is wiped first (used by the git loader to force a fresh clone).
func (c *Cache) GetFolder(name string, mustExist, create bool) (string, error) {
	folder := c.folderFor(name)
	exists, err := dirExists(folder)
	if err != nil {
		return "", err
	}
	if !mustExist && exists {
		if err := os.RemoveAll(folder); err != nil {
			return "", errors.Wrapf(err, "clearing cache folder %s", folder)
		}
		exists = false
	}
	if create && !exists {
		if err := os.MkdirAll(folder, 0o755); err != nil {
			return "", errors.Wrapf(err, "creating cache folder %s", folder)
		}
	}
	return folder, nil
}

// GetTemp returns a process-unique scratch directory under the cache root,
// used by loaders to assemble a module before it is transferred in.
func (c *Cache) GetTemp() (string, error) {
	tmpRoot := filepath.Join(c.root, "tmp")
	if err := os.MkdirAll(tmpRoot, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating cache scratch root %s", tmpRoot)
	}
	return os.MkdirTemp(tmpRoot, "stage-")
}

// Transfer atomically moves sourceTmp into the cache as name's folder at
// version, and records the version. It prefers an in-place rename (atomic
// on a single filesystem) and falls back to a recursive copy+remove when
// sourceTmp and the cache root live on different filesystems.
func (c *Cache) Transfer(sourceTmp, name, version string) error {
	dest, err := c.GetFolder(name, false, false)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	if err := renameWithCopyFallback(sourceTmp, dest); err != nil {
		return errors.Wrapf(err, "transferring %s into cache", name)
	}
	return c.SetVersion(name, version)
}

func renameWithCopyFallback(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}
	linkErr, ok := err.(*os.LinkError)
	if !ok || linkErr.Err != syscall.EXDEV {
		return err
	}
	opts := shutil.CopyTreeOptions{Symlinks: true, CopyFunction: shutil.Copy}
	if err := shutil.CopyTree(src, dest, &opts); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

func dirExists(path string) (bool, error) {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fi.IsDir(), nil
}

var nameSanitizer = newNameSanitizer()
