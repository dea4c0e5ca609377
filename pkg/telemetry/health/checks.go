package health

import (
	"context"
	"errors"
)

// Pinger is implemented by the retention store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ContainerLister is implemented by storage backends.
type ContainerLister interface {
	ListContainers(ctx context.Context) ([]string, error)
}

// StoreCheck reports whether the database answers.
func StoreCheck(p Pinger) CheckFunc {
	return p.Ping
}

// StorageCheck reports whether the storage backend can be listed.
func StorageCheck(l ContainerLister) CheckFunc {
	return func(ctx context.Context) error {
		_, err := l.ListContainers(ctx)
		return err
	}
}

// SchedulerCheck fails while the cron scheduler is expected to run but is
// stopped.
func SchedulerCheck(isRunning func() bool) CheckFunc {
	return func(ctx context.Context) error {
		if !isRunning() {
			return errors.New("scheduler is not running")
		}
		return nil
	}
}
