// Package fsx contains the filesystem helpers used when writing conversion
// outputs and report artifacts. All writes go through a temporary sibling
// file which is renamed in to place so a partially written output is never
// mistaken for a finished one on a later run.
package fsx

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// PathTypeConflictError is returned when a path exists but is not the
// type of filesystem entry the caller requires.
type PathTypeConflictError struct {
	Path string
	Want string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return fmt.Sprintf("path %q exists but is a %s (expected %s)", e.Path, e.Got, e.Want)
}

func IsPathTypeConflict(err error) bool {
	var e *PathTypeConflictError
	return errors.As(err, &e)
}

// Exists reports whether a regular file exists at the path provided.
func Exists(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if fi.IsDir() {
		return false, &PathTypeConflictError{Path: path, Want: "file", Got: "directory"}
	}

	return true, nil
}

// DirExists reports whether a directory exists at the path provided.
func DirExists(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if !fi.IsDir() {
		return false, &PathTypeConflictError{Path: path, Want: "directory", Got: "file"}
	}

	return true, nil
}

// EnsureDir creates the directory (and parents) if it does not already exist.
func EnsureDir(path string) error {
	if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
		return &PathTypeConflictError{Path: path, Want: "directory", Got: "file"}
	}

	return os.MkdirAll(path, 0o755)
}

// TempSibling reserves a hidden temporary file next to dst, keeping the
// extension of dst so external tools which infer format from the
// filename behave. The caller owns the returned path and must
// either Promote or remove it.
func TempSibling(dst string) (string, error) {
	dir, name := filepath.Split(dst)
	ext := filepath.Ext(name)
	f, err := os.CreateTemp(dir, "."+strings.TrimSuffix(name, ext)+".tmp-*"+ext)
	if err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}

	return f.Name(), nil
}

// Promote renames tmp over dst. tmp is removed if the rename fails.
func Promote(tmp string, dst string) error {
	if fi, err := os.Lstat(dst); err == nil && fi.IsDir() {
		_ = os.Remove(tmp)
		return &PathTypeConflictError{Path: dst, Want: "file", Got: "directory"}
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	return nil
}

// WriteFileAtomic streams content produced by write in to a temporary sibling
// of dst, syncs it, and renames it over dst. Any existing file is replaced.
func WriteFileAtomic(dst string, write func(io.Writer) error) error {
	if err := EnsureDir(filepath.Dir(dst)); err != nil {
		return err
	}

	tmp, err := TempSibling(dst)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	return Promote(tmp, dst)
}

// WriteFileAtomicBytes is WriteFileAtomic for an in-memory payload.
func WriteFileAtomicBytes(dst string, data []byte) error {
	return WriteFileAtomic(dst, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
