package provision

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Provisioner applies a policies file and optionally follows its changes.
type Provisioner struct {
	path     string
	syncer   *Syncer
	debounce time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	last *Result
}

// New creates a provisioner for the file at path.
func New(path string, syncer *Syncer, debounce time.Duration) *Provisioner {
	return &Provisioner{
		path:     path,
		syncer:   syncer,
		debounce: debounce,
		logger:   slog.Default().With("component", "retention.provision"),
	}
}

// Apply loads the file and syncs it into the store. Applies are
// serialized so a reload never interleaves with another.
func (p *Provisioner) Apply(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := LoadFile(p.path)
	if err != nil {
		return nil, err
	}
	res, err := p.syncer.Sync(ctx, f)
	if err != nil {
		return res, err
	}
	p.last = res
	return res, nil
}

// LastResult returns the outcome of the most recent successful Apply.
func (p *Provisioner) LastResult() *Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Watch re-applies the file after every change until ctx is cancelled.
// A failing reload is logged and the previous state stays in place.
func (p *Provisioner) Watch(ctx context.Context) error {
	fw, err := NewFileWatcher(p.path, p.debounce)
	if err != nil {
		return err
	}
	defer func() {
		if err := fw.Stop(); err != nil {
			p.logger.Warn("failed to stop policies watcher", "error", err)
		}
	}()

	return fw.Watch(ctx, func() error {
		_, err := p.Apply(ctx)
		return err
	})
}
