package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"mercator-hq/saturn/pkg/identity"
)

// LocalConfig contains configuration for the local filesystem backend.
type LocalConfig struct {
	// Root is the directory whose first-level subdirectories are the
	// managed containers.
	Root string

	// RequireIdentity rejects mutations whose context carries no bound
	// execution identity.
	RequireIdentity bool

	// DirMode is the permission used for created target directories.
	DirMode os.FileMode
}

// LocalBackend implements Backend over a directory tree. File IDs are
// slash-separated paths relative to the root, so "C42/contracts/x.pdf" lives
// in container "C42" at logical path "/C42/contracts/x.pdf".
type LocalBackend struct {
	root   string
	config LocalConfig
	logger *slog.Logger
}

// NewLocalBackend creates a backend rooted at config.Root, creating the
// directory if needed.
func NewLocalBackend(config LocalConfig) (*LocalBackend, error) {
	if config.Root == "" {
		return nil, fmt.Errorf("local storage root is required")
	}
	if config.DirMode == 0 {
		config.DirMode = 0o755
	}
	root, err := filepath.Abs(config.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(root, config.DirMode); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalBackend{
		root:   root,
		config: config,
		logger: slog.Default().With("component", "storage.local"),
	}, nil
}

// ResolveFile stats the file and derives its container and extension.
func (b *LocalBackend) ResolveFile(ctx context.Context, fileID string) (*FileInfo, error) {
	logical, ok := CleanPath(fileID)
	if !ok {
		return nil, opError("resolve", fileID, ErrNotFound)
	}
	st, err := os.Stat(b.osPath(logical))
	if err != nil {
		return nil, opError("resolve", fileID, mapOSError(err))
	}
	if st.IsDir() {
		return nil, opError("resolve", fileID, ErrNotFound)
	}
	return &FileInfo{
		FileID:      strings.TrimPrefix(logical, "/"),
		ContainerID: containerOf(logical),
		Path:        logical,
		Extension:   Extension(logical),
		Size:        st.Size(),
	}, nil
}

// MoveFile renames the file into targetDir, creating the directory chain.
func (b *LocalBackend) MoveFile(ctx context.Context, fileID, targetDir string) (string, error) {
	if err := b.authorize(ctx, "move", fileID); err != nil {
		return "", err
	}
	src, ok := CleanPath(fileID)
	if !ok {
		return "", opError("move", fileID, ErrNotFound)
	}
	dir, ok := CleanPath(targetDir)
	if !ok {
		return "", opError("move", fileID, ErrInvalidTarget)
	}
	if _, err := os.Stat(b.osPath(src)); err != nil {
		return "", opError("move", fileID, mapOSError(err))
	}

	if err := os.MkdirAll(b.osPath(dir), b.config.DirMode); err != nil {
		return "", opError("move", fileID, fmt.Errorf("%w: %v", ErrInvalidTarget, err))
	}
	dst := path.Join(dir, path.Base(src))
	if _, err := os.Stat(b.osPath(dst)); err == nil {
		return "", opError("move", fileID, fmt.Errorf("%w: %s already exists", ErrInvalidTarget, dst))
	}
	if err := os.Rename(b.osPath(src), b.osPath(dst)); err != nil {
		return "", opError("move", fileID, mapOSError(err))
	}

	b.logger.Debug("file moved", "file_id", fileID, "target", dst)
	return dst, nil
}

// DeleteFile removes the file.
func (b *LocalBackend) DeleteFile(ctx context.Context, fileID string) error {
	if err := b.authorize(ctx, "delete", fileID); err != nil {
		return err
	}
	logical, ok := CleanPath(fileID)
	if !ok {
		return opError("delete", fileID, ErrNotFound)
	}
	if err := os.Remove(b.osPath(logical)); err != nil {
		return opError("delete", fileID, mapOSError(err))
	}
	b.logger.Debug("file deleted", "file_id", fileID)
	return nil
}

// ListContainers returns the first-level directories under the root.
func (b *LocalBackend) ListContainers(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, opError("list", "", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func (b *LocalBackend) authorize(ctx context.Context, op, fileID string) error {
	if !b.config.RequireIdentity {
		return nil
	}
	if _, ok := identity.FromContext(ctx); !ok {
		return opError(op, fileID, fmt.Errorf("%w: no execution identity bound", ErrPermission))
	}
	return nil
}

func (b *LocalBackend) osPath(logical string) string {
	return filepath.Join(b.root, filepath.FromSlash(strings.TrimPrefix(logical, "/")))
}

func mapOSError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %v", ErrPermission, err)
	}
	return err
}
