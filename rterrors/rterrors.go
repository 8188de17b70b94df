// Package rterrors defines the error taxonomy used across the runtime: a
// small set of typed errors that callers can distinguish with errors.As,
// some of which carry an underlying cause exposed through Unwrap, plus
// Wrap/Wrapf helpers over github.com/pkg/errors so that a stack-annotated
// chain survives across package boundaries.
package rterrors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ConfigInvalid covers a missing antelope.json, an unknown module source
// type, or a malformed interface-import string.
type ConfigInvalid struct {
	Path   string
	Reason string
	Cause  error
}

func (e *ConfigInvalid) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("invalid configuration at %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s", e.Reason)
}

func (e *ConfigInvalid) Unwrap() error { return e.Cause }

// NewConfigInvalid wraps cause (which may be nil) into a ConfigInvalid.
func NewConfigInvalid(path, reason string, cause error) error {
	return &ConfigInvalid{Path: path, Reason: reason, Cause: cause}
}

// CacheLocked indicates lock acquisition on the module cache timed out.
type CacheLocked struct {
	LockPath string
	Timeout  string
	Cause    error
}

func (e *CacheLocked) Error() string {
	return fmt.Sprintf("could not acquire cache lock %s within %s", e.LockPath, e.Timeout)
}

func (e *CacheLocked) Unwrap() error { return e.Cause }

// AcquisitionFailed indicates a loader subprocess exited nonzero, or disk
// I/O during acquisition failed.
type AcquisitionFailed struct {
	Source  string
	Command string
	Output  string
	Cause   error
}

func (e *AcquisitionFailed) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("failed to acquire %s: command %q failed: %s", e.Source, e.Command, e.Output)
	}
	return fmt.Sprintf("failed to acquire %s: %s", e.Source, e.Output)
}

func (e *AcquisitionFailed) Unwrap() error { return e.Cause }

// ManifestMissing indicates package.json was absent at a source.
type ManifestMissing struct {
	Folder string
}

func (e *ManifestMissing) Error() string {
	return fmt.Sprintf("no package.json found in %s", e.Folder)
}

// GraphUnresolved aggregates every (moduleID, missingInterface) pair found
// at the end of a load into a single, multi-line error.
type GraphUnresolved struct {
	Missing []UnresolvedImport
}

// UnresolvedImport names one module that declared an import with no
// single resolved provider among the loaded modules.
type UnresolvedImport struct {
	ModuleID  string
	Interface string
}

func (e *GraphUnresolved) Error() string {
	lines := make([]string, 0, len(e.Missing)+1)
	lines = append(lines, "unresolved imports in module graph:")
	for _, m := range e.Missing {
		lines = append(lines, fmt.Sprintf("  %s: missing %s", m.ModuleID, m.Interface))
	}
	return strings.Join(lines, "\n")
}

// NewGraphUnresolved returns nil if missing is empty, else a *GraphUnresolved.
func NewGraphUnresolved(missing []UnresolvedImport) error {
	if len(missing) == 0 {
		return nil
	}
	return &GraphUnresolved{Missing: missing}
}

// ImportNotPermitted indicates a module referenced an interface it never
// declared as an import.
type ImportNotPermitted struct {
	ModuleID  string
	Interface string
}

func (e *ImportNotPermitted) Error() string {
	return fmt.Sprintf("module %s tried to use un-imported interface %s", e.ModuleID, e.Interface)
}

// LifecycleCallbackError wraps an error returned by a module's own
// construct/start/stop/destroy callback.
type LifecycleCallbackError struct {
	ModuleID  string
	Stage     string
	Cause     error
}

func (e *LifecycleCallbackError) Error() string {
	return fmt.Sprintf("module %s: %s callback failed: %s", e.ModuleID, e.Stage, e.Cause)
}

func (e *LifecycleCallbackError) Unwrap() error { return e.Cause }

// BuildStale is a diagnostic (non-fatal): the build artifact's recorded
// config hash no longer matches the project's current configuration.
type BuildStale struct {
	ProjectFolder string
}

func (e *BuildStale) Error() string {
	return fmt.Sprintf("build artifact in %s is stale relative to the current configuration", e.ProjectFolder)
}

// BuildMissing is fatal: launchFromBuild found no build artifact to replay.
type BuildMissing struct {
	Path string
}

func (e *BuildMissing) Error() string {
	return fmt.Sprintf("no build artifact found at %s; run build first", e.Path)
}

// Wrap is a thin re-export of pkg/errors.Wrap, kept here so every package in
// this module imports errors handling from one place.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf is the formatted counterpart of Wrap.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}
