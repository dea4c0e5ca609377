package storage

import (
	"context"
	"path"
	"sort"
	"sync"
)

// MemoryBackend implements Backend over an in-memory file table.
// This implementation is intended for testing only and should not be used in production.
type MemoryBackend struct {
	mu         sync.RWMutex
	files      map[string]*FileInfo
	containers map[string]struct{}
	failures   map[string]error
	moves      []string
	deletes    []string
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		files:      make(map[string]*FileInfo),
		containers: make(map[string]struct{}),
		failures:   make(map[string]error),
	}
}

// AddContainer registers a managed container without files.
func (m *MemoryBackend) AddContainer(containerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.containers[containerID] = struct{}{}
}

// AddFile registers a file at a rooted path. The container is the first
// path segment.
func (m *MemoryBackend) AddFile(fileID, filePath string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	clean, _ := CleanPath(filePath)
	info := &FileInfo{
		FileID:      fileID,
		ContainerID: containerOf(clean),
		Path:        clean,
		Extension:   Extension(clean),
	}
	m.files[fileID] = info
	if info.ContainerID != "" {
		m.containers[info.ContainerID] = struct{}{}
	}
}

// FailOn makes every mutation of fileID fail with err. A nil err clears it.
func (m *MemoryBackend) FailOn(fileID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, fileID)
		return
	}
	m.failures[fileID] = err
}

// Exists reports whether the file is still present.
func (m *MemoryBackend) Exists(fileID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[fileID]
	return ok
}

// Moves returns the IDs of successfully moved files in call order.
func (m *MemoryBackend) Moves() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.moves...)
}

// Deletes returns the IDs of successfully deleted files in call order.
func (m *MemoryBackend) Deletes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.deletes...)
}

// ResolveFile returns the file's location.
func (m *MemoryBackend) ResolveFile(ctx context.Context, fileID string) (*FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.files[fileID]
	if !ok {
		return nil, opError("resolve", fileID, ErrNotFound)
	}
	c := *info
	return &c, nil
}

// MoveFile relocates the file under targetDir.
func (m *MemoryBackend) MoveFile(ctx context.Context, fileID, targetDir string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failures[fileID]; err != nil {
		return "", opError("move", fileID, err)
	}
	info, ok := m.files[fileID]
	if !ok {
		return "", opError("move", fileID, ErrNotFound)
	}
	dir, ok := CleanPath(targetDir)
	if !ok {
		return "", opError("move", fileID, ErrInvalidTarget)
	}

	info.Path = path.Join(dir, path.Base(info.Path))
	info.ContainerID = containerOf(info.Path)
	if info.ContainerID != "" {
		m.containers[info.ContainerID] = struct{}{}
	}
	m.moves = append(m.moves, fileID)
	return info.Path, nil
}

// DeleteFile removes the file.
func (m *MemoryBackend) DeleteFile(ctx context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failures[fileID]; err != nil {
		return opError("delete", fileID, err)
	}
	if _, ok := m.files[fileID]; !ok {
		return opError("delete", fileID, ErrNotFound)
	}
	delete(m.files, fileID)
	m.deletes = append(m.deletes, fileID)
	return nil
}

// ListContainers returns the registered containers.
func (m *MemoryBackend) ListContainers(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.containers))
	for id := range m.containers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
