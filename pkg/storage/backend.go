// Package storage is the file-access layer the retention engine acts on.
//
// A Backend resolves file IDs to their container, path and extension, lists
// the managed containers and performs the physical move and delete
// operations. Backends enforce their own permission checks and report
// failures with the typed sentinels ErrNotFound, ErrPermission and
// ErrInvalidTarget wrapped in an *OpError.
//
// Three backends are provided:
//
//   - MemoryBackend: in-memory files with failure injection, intended for tests
//   - LocalBackend: a directory tree where each top-level directory is a
//     managed container
//   - S3Backend: an S3 bucket where each top-level key prefix is a managed
//     container
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrNotFound indicates the file does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrPermission indicates the caller may not perform the operation.
	ErrPermission = errors.New("permission denied")

	// ErrInvalidTarget indicates the target path cannot receive the file.
	ErrInvalidTarget = errors.New("invalid target path")
)

// FileInfo describes a stored file.
type FileInfo struct {
	FileID      string `json:"file_id"`
	ContainerID string `json:"container_id"`
	Path        string `json:"path"`
	Extension   string `json:"extension"`
	Size        int64  `json:"size"`
}

// Backend is the storage collaborator consumed by the retention engine.
type Backend interface {
	// ResolveFile returns the container, path and extension of a file.
	ResolveFile(ctx context.Context, fileID string) (*FileInfo, error)

	// MoveFile relocates the file into targetDir, creating intermediate
	// directories as needed, and returns the file's new path.
	MoveFile(ctx context.Context, fileID, targetDir string) (string, error)

	// DeleteFile permanently removes the file.
	DeleteFile(ctx context.Context, fileID string) error

	// ListContainers returns the IDs of every managed container, sorted.
	ListContainers(ctx context.Context) ([]string, error)
}

// OpError records a failed storage operation.
type OpError struct {
	Op     string // "resolve", "move", "delete", "list"
	FileID string
	Cause  error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.FileID == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.FileID, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *OpError) Unwrap() error {
	return e.Cause
}

func opError(op, fileID string, cause error) error {
	return &OpError{Op: op, FileID: fileID, Cause: cause}
}

// Extension returns the lower-case extension of p without its leading dot.
func Extension(p string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
}

// CleanPath normalises a logical path to a rooted, slash separated form.
// It reports false when the path is empty or climbs above the root.
func CleanPath(p string) (string, bool) {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return "", false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", false
		}
	}
	clean := path.Clean("/" + p)
	if clean == "/" {
		return "", false
	}
	return clean, true
}

// containerOf returns the first segment of a rooted logical path.
func containerOf(p string) string {
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return ""
}
