// Package store persists retention policies, container assignments, file
// retention records, the processing log and scheduled notifications.
//
// Two implementations are provided:
//
//   - MemoryStore: a mutex-guarded in-memory store, intended for tests
//   - SQLStore: an sqlx-backed store for SQLite (mattn or modernc drivers)
//     and PostgreSQL, with schema managed by embedded golang-migrate
//     migrations
//
// Both implementations honour the same contract. In particular ClaimRecord
// is an atomic compare-and-swap from active to processing, which is what
// keeps overlapping batch runs from acting on the same record twice.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mercator-hq/saturn/pkg/retention"
)

var errClosed = errors.New("store is closed")

// claimExpired is the last error of a record whose claim was released by
// ReclaimStale.
const claimExpired = "claim expired"

// Store is the persistence contract of the retention engine.
type Store interface {
	// CreatePolicy inserts a policy and returns its new ID.
	CreatePolicy(ctx context.Context, pol *retention.Policy) (int64, error)

	// UpdatePolicy overwrites every field of an existing policy.
	// Returns a NotFoundError when the policy does not exist.
	UpdatePolicy(ctx context.Context, pol *retention.Policy) error

	// GetPolicy returns a policy by ID or a NotFoundError.
	GetPolicy(ctx context.Context, id int64) (*retention.Policy, error)

	// GetPolicyByName returns a policy by its name or a NotFoundError.
	GetPolicyByName(ctx context.Context, name string) (*retention.Policy, error)

	// ListPolicies returns all policies ordered by priority descending, id ascending.
	ListPolicies(ctx context.Context) ([]*retention.Policy, error)

	// DeletePolicy removes a policy and its container assignments.
	DeletePolicy(ctx context.Context, id int64) error

	// SetPolicyActive flips the is_active flag.
	SetPolicyActive(ctx context.Context, id int64, active bool, at time.Time) error

	// ReplaceAssignments makes containerIDs the complete assignment set of
	// the policy. Rows already present are left untouched.
	ReplaceAssignments(ctx context.Context, policyID int64, containerIDs []string) error

	// ContainersForPolicy returns the containers assigned to a policy, sorted.
	ContainersForPolicy(ctx context.Context, policyID int64) ([]string, error)

	// AssignedContainers returns every container with at least one assignment, sorted.
	AssignedContainers(ctx context.Context) ([]string, error)

	// PoliciesForContainer returns the policies assigned to a container,
	// ordered by priority descending, id ascending.
	PoliciesForContainer(ctx context.Context, containerID string) ([]*retention.Policy, error)

	// CountOpenRecordsForPolicy counts active and processing records of a policy.
	CountOpenRecordsForPolicy(ctx context.Context, policyID int64) (int64, error)

	// GetOpenRecord returns the active or processing record of a file, or
	// nil when the file has none.
	GetOpenRecord(ctx context.Context, fileID string) (*retention.Record, error)

	// GetRecord returns a record by ID or a NotFoundError.
	GetRecord(ctx context.Context, id int64) (*retention.Record, error)

	// SaveRecord inserts the record when its ID is zero and updates it
	// otherwise. On insert the new ID is written back to rec.ID. Only an
	// active record can be updated; a record claimed, processed or
	// cancelled since it was read yields a ConflictError.
	SaveRecord(ctx context.Context, rec *retention.Record) error

	// CancelRecord moves an active record to cancelled. It reports false
	// when the record was not active.
	CancelRecord(ctx context.Context, id int64, at time.Time) (bool, error)

	// ListOpenRecords returns open records matching the filter.
	ListOpenRecords(ctx context.Context, filter RecordFilter) ([]*retention.Record, error)

	// DueRecords returns active records whose expire date is on or before
	// today and whose policy has auto-processing enabled, oldest first.
	DueRecords(ctx context.Context, today time.Time, limit int) ([]*retention.Record, error)

	// ClaimRecord atomically moves a record from active to processing. It
	// reports true only when exactly one row changed.
	ClaimRecord(ctx context.Context, id int64, at time.Time) (bool, error)

	// MarkProcessed moves a claimed record to processed.
	MarkProcessed(ctx context.Context, id int64, at time.Time) error

	// ReleaseClaim returns a claimed record to active, incrementing its
	// attempt counter and recording the failure message.
	ReleaseClaim(ctx context.Context, id int64, lastError string, at time.Time) error

	// ReclaimStale releases processing claims taken before olderThan and
	// returns how many were released. Like ReleaseClaim it counts an
	// attempt and stamps the record with at.
	ReclaimStale(ctx context.Context, olderThan, at time.Time) (int64, error)

	// AppendLog appends an entry to the processing log and assigns its ID.
	AppendLog(ctx context.Context, entry *retention.LogEntry) error

	// QueryLogs returns log entries newest first.
	QueryLogs(ctx context.Context, q *retention.LogQuery) ([]*retention.LogEntry, error)

	// ReplaceNotifications cancels the pending notifications of a record and
	// stores the given schedule in their place.
	ReplaceNotifications(ctx context.Context, recordID int64, notes []*retention.Notification) error

	// CancelNotifications cancels every pending notification of a record.
	CancelNotifications(ctx context.Context, recordID int64) error

	// ListNotifications returns the notifications of a record ordered by date.
	ListNotifications(ctx context.Context, recordID int64) ([]*retention.Notification, error)

	// Stats aggregates counts for dashboards.
	Stats(ctx context.Context, today time.Time) (*retention.Stats, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}

// RecordFilter narrows ListOpenRecords. Zero values mean "any".
type RecordFilter struct {
	CreatedBy   string
	ContainerID string
	PolicyID    int64

	// ExpiresFrom and ExpiresTo bound the expire date inclusively.
	ExpiresFrom time.Time
	ExpiresTo   time.Time
}

// StorageError represents a failure of the persistence backend.
type StorageError struct {
	Backend   string // "memory", "sqlite3", "sqlite", "postgres"
	Operation string // Operation that failed
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

func staleUpdate(id int64, status retention.RecordStatus) *retention.ConflictError {
	return retention.NewConflictError("record", id,
		fmt.Sprintf("record is %s and can no longer be updated", status))
}
