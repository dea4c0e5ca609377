package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mercator-hq/saturn/pkg/retention"
)

//go:embed migrations
var migrationsFS embed.FS

// Supported database drivers.
const (
	DriverSQLite3  = "sqlite3"  // github.com/mattn/go-sqlite3 (cgo)
	DriverSQLite   = "sqlite"   // modernc.org/sqlite (pure Go)
	DriverPostgres = "postgres" // github.com/lib/pq
)

func init() {
	// sqlx does not know the modernc driver name; it uses ? placeholders.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// SQLConfig contains configuration for the SQL store.
type SQLConfig struct {
	// Driver is one of "sqlite3", "sqlite" or "postgres".
	Driver string

	// DSN is a file path for the SQLite drivers and a postgres:// URL for
	// PostgreSQL.
	DSN string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLConfig returns the default SQL store configuration.
func DefaultSQLConfig() *SQLConfig {
	return &SQLConfig{
		Driver:       DriverSQLite3,
		DSN:          "data/saturn.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLStore implements Store on top of sqlx.
type SQLStore struct {
	db     *sqlx.DB
	config *SQLConfig
	logger *slog.Logger
}

// NewSQLStore opens the database, applies pending migrations and returns a
// ready store.
func NewSQLStore(config *SQLConfig) (*SQLStore, error) {
	if config == nil {
		config = DefaultSQLConfig()
	}

	logger := slog.Default().With("component", "retention.store", "driver", config.Driver)

	dsn, migrateURL, err := connectionStrings(config)
	if err != nil {
		return nil, err
	}

	if err := runMigrations(config.Driver, migrateURL, logger); err != nil {
		return nil, err
	}

	db, err := sqlx.Open(config.Driver, dsn)
	if err != nil {
		return nil, NewStorageError(config.Driver, "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStorageError(config.Driver, "ping", err)
	}

	logger.Info("SQL store initialized",
		"dsn", redactDSN(config.DSN),
		"max_open_conns", config.MaxOpenConns,
	)

	return &SQLStore{db: db, config: config, logger: logger}, nil
}

// connectionStrings returns the driver DSN and the golang-migrate URL.
func connectionStrings(cfg *SQLConfig) (string, string, error) {
	busyMs := cfg.BusyTimeout.Milliseconds()
	switch cfg.Driver {
	case DriverSQLite3:
		dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on", cfg.DSN, busyMs)
		return dsn, "sqlite3://" + cfg.DSN, nil
	case DriverSQLite:
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", cfg.DSN, busyMs)
		return dsn, "sqlite://" + cfg.DSN, nil
	case DriverPostgres:
		return cfg.DSN, cfg.DSN, nil
	}
	return "", "", NewStorageError(cfg.Driver, "open", fmt.Errorf("unsupported driver %q", cfg.Driver))
}

// runMigrations applies the embedded migrations for the driver's dialect.
func runMigrations(driver, url string, logger *slog.Logger) error {
	dir := "migrations/sqlite"
	if driver == DriverPostgres {
		dir = "migrations/postgres"
	}

	source, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return NewStorageError(driver, "migrate_source", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, url)
	if err != nil {
		return NewStorageError(driver, "migrate_init", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return NewStorageError(driver, "migrate_up", err)
	}

	version, dirty, _ := m.Version()
	logger.Debug("migrations applied",
		"version", version,
		"dirty", dirty,
	)
	return nil
}

func redactDSN(dsn string) string {
	if i := strings.Index(dsn, "@"); i > 0 {
		if j := strings.Index(dsn, "://"); j >= 0 && j < i {
			return dsn[:j+3] + "***" + dsn[i:]
		}
	}
	return dsn
}

func (s *SQLStore) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewStorageError(s.config.Driver, op, err)
}

// withTx runs fn inside a transaction, committing on success.
func (s *SQLStore) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return s.wrap(op+"_begin", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return s.wrap(op+"_commit", err)
	}
	return nil
}

const policyColumns = `id, name, description, is_active, default_action, default_target_path,
	notify_before_days, auto_process, allowed_retention_periods, require_justification,
	priority, path_filter, file_type_filter, created_at, updated_at`

// CreatePolicy inserts a policy.
func (s *SQLStore) CreatePolicy(ctx context.Context, pol *retention.Policy) (int64, error) {
	row, err := toPolicyRow(pol)
	if err != nil {
		return 0, s.wrap("create_policy", err)
	}

	stmt, err := s.db.PrepareNamedContext(ctx, `INSERT INTO retention_policies (
		name, description, is_active, default_action, default_target_path,
		notify_before_days, auto_process, allowed_retention_periods, require_justification,
		priority, path_filter, file_type_filter, created_at, updated_at
	) VALUES (
		:name, :description, :is_active, :default_action, :default_target_path,
		:notify_before_days, :auto_process, :allowed_retention_periods, :require_justification,
		:priority, :path_filter, :file_type_filter, :created_at, :updated_at
	) RETURNING id`)
	if err != nil {
		return 0, s.wrap("create_policy", err)
	}
	defer stmt.Close()

	var id int64
	if err := stmt.QueryRowxContext(ctx, row).Scan(&id); err != nil {
		return 0, s.wrap("create_policy", err)
	}
	return id, nil
}

// UpdatePolicy overwrites an existing policy.
func (s *SQLStore) UpdatePolicy(ctx context.Context, pol *retention.Policy) error {
	row, err := toPolicyRow(pol)
	if err != nil {
		return s.wrap("update_policy", err)
	}

	res, err := s.db.NamedExecContext(ctx, `UPDATE retention_policies SET
		name = :name, description = :description, is_active = :is_active,
		default_action = :default_action, default_target_path = :default_target_path,
		notify_before_days = :notify_before_days, auto_process = :auto_process,
		allowed_retention_periods = :allowed_retention_periods,
		require_justification = :require_justification, priority = :priority,
		path_filter = :path_filter, file_type_filter = :file_type_filter,
		updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return s.wrap("update_policy", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return retention.NewNotFoundError("policy", pol.ID)
	}
	return nil
}

// GetPolicy returns a policy by ID.
func (s *SQLStore) GetPolicy(ctx context.Context, id int64) (*retention.Policy, error) {
	var row policyRow
	err := s.db.GetContext(ctx, &row,
		s.db.Rebind(`SELECT `+policyColumns+` FROM retention_policies WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, retention.NewNotFoundError("policy", id)
	}
	if err != nil {
		return nil, s.wrap("get_policy", err)
	}
	return row.toPolicy()
}

// GetPolicyByName returns a policy by name.
func (s *SQLStore) GetPolicyByName(ctx context.Context, name string) (*retention.Policy, error) {
	var row policyRow
	err := s.db.GetContext(ctx, &row,
		s.db.Rebind(`SELECT `+policyColumns+` FROM retention_policies WHERE name = ?`), name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, retention.NewNotFoundError("policy", name)
	}
	if err != nil {
		return nil, s.wrap("get_policy_by_name", err)
	}
	return row.toPolicy()
}

// ListPolicies returns all policies.
func (s *SQLStore) ListPolicies(ctx context.Context) ([]*retention.Policy, error) {
	var rows []policyRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+policyColumns+` FROM retention_policies ORDER BY priority DESC, id ASC`)
	if err != nil {
		return nil, s.wrap("list_policies", err)
	}
	return policiesFromRows(rows)
}

// DeletePolicy removes a policy and its assignments.
func (s *SQLStore) DeletePolicy(ctx context.Context, id int64) error {
	return s.withTx(ctx, "delete_policy", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			tx.Rebind(`DELETE FROM retention_policy_containers WHERE policy_id = ?`), id); err != nil {
			return s.wrap("delete_assignments", err)
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM retention_policies WHERE id = ?`), id)
		if err != nil {
			return s.wrap("delete_policy", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return retention.NewNotFoundError("policy", id)
		}
		return nil
	})
}

// SetPolicyActive flips the is_active flag.
func (s *SQLStore) SetPolicyActive(ctx context.Context, id int64, active bool, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE retention_policies SET is_active = ?, updated_at = ? WHERE id = ?`),
		active, at.UnixMilli(), id)
	if err != nil {
		return s.wrap("set_policy_active", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return retention.NewNotFoundError("policy", id)
	}
	return nil
}

// ReplaceAssignments replaces the assignment set of a policy.
func (s *SQLStore) ReplaceAssignments(ctx context.Context, policyID int64, containerIDs []string) error {
	want := make(map[string]struct{}, len(containerIDs))
	for _, c := range containerIDs {
		want[c] = struct{}{}
	}

	return s.withTx(ctx, "replace_assignments", func(tx *sqlx.Tx) error {
		var exists int
		err := tx.GetContext(ctx, &exists,
			tx.Rebind(`SELECT COUNT(*) FROM retention_policies WHERE id = ?`), policyID)
		if err != nil {
			return s.wrap("replace_assignments", err)
		}
		if exists == 0 {
			return retention.NewNotFoundError("policy", policyID)
		}

		var current []string
		err = tx.SelectContext(ctx, &current,
			tx.Rebind(`SELECT container_id FROM retention_policy_containers WHERE policy_id = ?`), policyID)
		if err != nil {
			return s.wrap("replace_assignments", err)
		}

		have := make(map[string]struct{}, len(current))
		var stale []string
		for _, c := range current {
			have[c] = struct{}{}
			if _, keep := want[c]; !keep {
				stale = append(stale, c)
			}
		}

		if len(stale) > 0 {
			q, args, err := sqlx.In(`DELETE FROM retention_policy_containers
				WHERE policy_id = ? AND container_id IN (?)`, policyID, stale)
			if err != nil {
				return s.wrap("replace_assignments", err)
			}
			if _, err := tx.ExecContext(ctx, tx.Rebind(q), args...); err != nil {
				return s.wrap("replace_assignments", err)
			}
		}

		insert := tx.Rebind(`INSERT INTO retention_policy_containers (policy_id, container_id) VALUES (?, ?)`)
		for c := range want {
			if _, ok := have[c]; ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, insert, policyID, c); err != nil {
				return s.wrap("replace_assignments", err)
			}
		}
		return nil
	})
}

// ContainersForPolicy returns the containers assigned to a policy.
func (s *SQLStore) ContainersForPolicy(ctx context.Context, policyID int64) ([]string, error) {
	if _, err := s.GetPolicy(ctx, policyID); err != nil {
		return nil, err
	}
	out := []string{}
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`SELECT container_id
		FROM retention_policy_containers WHERE policy_id = ? ORDER BY container_id`), policyID)
	if err != nil {
		return nil, s.wrap("containers_for_policy", err)
	}
	return out, nil
}

// AssignedContainers returns every container with an assignment.
func (s *SQLStore) AssignedContainers(ctx context.Context) ([]string, error) {
	out := []string{}
	err := s.db.SelectContext(ctx, &out, `SELECT DISTINCT container_id
		FROM retention_policy_containers ORDER BY container_id`)
	if err != nil {
		return nil, s.wrap("assigned_containers", err)
	}
	return out, nil
}

// PoliciesForContainer returns the policies assigned to a container.
func (s *SQLStore) PoliciesForContainer(ctx context.Context, containerID string) ([]*retention.Policy, error) {
	var rows []policyRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT
		p.id, p.name, p.description, p.is_active, p.default_action, p.default_target_path,
		p.notify_before_days, p.auto_process, p.allowed_retention_periods, p.require_justification,
		p.priority, p.path_filter, p.file_type_filter, p.created_at, p.updated_at
		FROM retention_policies p
		JOIN retention_policy_containers pc ON pc.policy_id = p.id
		WHERE pc.container_id = ?
		ORDER BY p.priority DESC, p.id ASC`), containerID)
	if err != nil {
		return nil, s.wrap("policies_for_container", err)
	}
	return policiesFromRows(rows)
}

// CountOpenRecordsForPolicy counts open records of a policy.
func (s *SQLStore) CountOpenRecordsForPolicy(ctx context.Context, policyID int64) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM retention_records
		WHERE policy_id = ? AND status IN ('active', 'processing')`), policyID)
	if err != nil {
		return 0, s.wrap("count_open_records", err)
	}
	return n, nil
}

const recordColumns = `id, file_id, container_id, file_path, policy_id, retention_period,
	retention_unit, start_date, expire_date, action_override, target_path_override,
	justification, notify_before_days_override, status, attempts, last_error, claimed_at,
	created_by, created_at, updated_at, processed_at`

// GetOpenRecord returns the open record of a file, or nil.
func (s *SQLStore) GetOpenRecord(ctx context.Context, fileID string) (*retention.Record, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+recordColumns+`
		FROM retention_records WHERE file_id = ? AND status IN ('active', 'processing')`), fileID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.wrap("get_open_record", err)
	}
	return row.toRecord()
}

// GetRecord returns a record by ID.
func (s *SQLStore) GetRecord(ctx context.Context, id int64) (*retention.Record, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row,
		s.db.Rebind(`SELECT `+recordColumns+` FROM retention_records WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, retention.NewNotFoundError("record", id)
	}
	if err != nil {
		return nil, s.wrap("get_record", err)
	}
	return row.toRecord()
}

// SaveRecord inserts or updates a record.
func (s *SQLStore) SaveRecord(ctx context.Context, rec *retention.Record) error {
	row := toRecordRow(rec)

	if rec.ID == 0 {
		stmt, err := s.db.PrepareNamedContext(ctx, `INSERT INTO retention_records (
			file_id, container_id, file_path, policy_id, retention_period, retention_unit,
			start_date, expire_date, action_override, target_path_override, justification,
			notify_before_days_override, status, attempts, last_error, claimed_at,
			created_by, created_at, updated_at, processed_at
		) VALUES (
			:file_id, :container_id, :file_path, :policy_id, :retention_period, :retention_unit,
			:start_date, :expire_date, :action_override, :target_path_override, :justification,
			:notify_before_days_override, :status, :attempts, :last_error, :claimed_at,
			:created_by, :created_at, :updated_at, :processed_at
		) RETURNING id`)
		if err != nil {
			return s.wrap("insert_record", err)
		}
		defer stmt.Close()

		if err := stmt.QueryRowxContext(ctx, row).Scan(&rec.ID); err != nil {
			return s.wrap("insert_record", err)
		}
		return nil
	}

	res, err := s.db.NamedExecContext(ctx, `UPDATE retention_records SET
		container_id = :container_id, file_path = :file_path, policy_id = :policy_id,
		retention_period = :retention_period, retention_unit = :retention_unit,
		start_date = :start_date, expire_date = :expire_date,
		action_override = :action_override, target_path_override = :target_path_override,
		justification = :justification, notify_before_days_override = :notify_before_days_override,
		status = :status, attempts = :attempts, last_error = :last_error, claimed_at = :claimed_at,
		updated_at = :updated_at, processed_at = :processed_at
		WHERE id = :id AND status = 'active'`, row)
	if err != nil {
		return s.wrap("update_record", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		cur, err := s.GetRecord(ctx, rec.ID)
		if err != nil {
			return err
		}
		return staleUpdate(rec.ID, cur.Status)
	}
	return nil
}

// CancelRecord moves an active record to cancelled.
func (s *SQLStore) CancelRecord(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE retention_records
		SET status = 'cancelled', updated_at = ? WHERE id = ? AND status = 'active'`),
		at.UnixMilli(), id)
	if err != nil {
		return false, s.wrap("cancel_record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.wrap("cancel_record", err)
	}
	return n == 1, nil
}

// ListOpenRecords returns open records matching the filter.
func (s *SQLStore) ListOpenRecords(ctx context.Context, filter RecordFilter) ([]*retention.Record, error) {
	where := []string{"status IN ('active', 'processing')"}
	var args []any
	if filter.CreatedBy != "" {
		where = append(where, "created_by = ?")
		args = append(args, filter.CreatedBy)
	}
	if filter.ContainerID != "" {
		where = append(where, "container_id = ?")
		args = append(args, filter.ContainerID)
	}
	if filter.PolicyID != 0 {
		where = append(where, "policy_id = ?")
		args = append(args, filter.PolicyID)
	}
	if !filter.ExpiresFrom.IsZero() {
		where = append(where, "expire_date >= ?")
		args = append(args, retention.FormatDate(filter.ExpiresFrom))
	}
	if !filter.ExpiresTo.IsZero() {
		where = append(where, "expire_date <= ?")
		args = append(args, retention.FormatDate(filter.ExpiresTo))
	}

	q := `SELECT ` + recordColumns + ` FROM retention_records WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY expire_date ASC, id ASC`

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, s.wrap("list_open_records", err)
	}
	return recordsFromRows(rows)
}

// DueRecords returns active, expired records of auto-processing policies.
func (s *SQLStore) DueRecords(ctx context.Context, today time.Time, limit int) ([]*retention.Record, error) {
	q := `SELECT r.id, r.file_id, r.container_id, r.file_path, r.policy_id, r.retention_period,
		r.retention_unit, r.start_date, r.expire_date, r.action_override, r.target_path_override,
		r.justification, r.notify_before_days_override, r.status, r.attempts, r.last_error,
		r.claimed_at, r.created_by, r.created_at, r.updated_at, r.processed_at
		FROM retention_records r
		JOIN retention_policies p ON p.id = r.policy_id
		WHERE r.status = 'active' AND r.expire_date <= ? AND p.auto_process = ?
		ORDER BY r.expire_date ASC, r.id ASC`
	args := []any{retention.FormatDate(retention.Today(today)), true}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, s.wrap("due_records", err)
	}
	return recordsFromRows(rows)
}

// ClaimRecord atomically moves a record from active to processing.
func (s *SQLStore) ClaimRecord(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE retention_records
		SET status = 'processing', claimed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'active'`), at.UnixMilli(), at.UnixMilli(), id)
	if err != nil {
		return false, s.wrap("claim_record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.wrap("claim_record", err)
	}
	return n == 1, nil
}

// MarkProcessed moves a claimed record to processed.
func (s *SQLStore) MarkProcessed(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE retention_records
		SET status = 'processed', processed_at = ?, claimed_at = NULL, attempts = attempts + 1,
		last_error = '', updated_at = ?
		WHERE id = ? AND status = 'processing'`), at.UnixMilli(), at.UnixMilli(), id)
	if err != nil {
		return s.wrap("mark_processed", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return retention.NewNotFoundError("processing record", id)
	}
	return nil
}

// ReleaseClaim returns a claimed record to active.
func (s *SQLStore) ReleaseClaim(ctx context.Context, id int64, lastError string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE retention_records
		SET status = 'active', claimed_at = NULL, attempts = attempts + 1, last_error = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'`), lastError, at.UnixMilli(), id)
	if err != nil {
		return s.wrap("release_claim", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return retention.NewNotFoundError("processing record", id)
	}
	return nil
}

// ReclaimStale releases claims taken before olderThan.
func (s *SQLStore) ReclaimStale(ctx context.Context, olderThan, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE retention_records
		SET status = 'active', claimed_at = NULL, attempts = attempts + 1, last_error = ?, updated_at = ?
		WHERE status = 'processing' AND claimed_at < ?`), claimExpired, at.UnixMilli(), olderThan.UnixMilli())
	if err != nil {
		return 0, s.wrap("reclaim_stale", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, s.wrap("reclaim_stale", err)
	}
	return n, nil
}

// AppendLog appends an entry to the processing log.
func (s *SQLStore) AppendLog(ctx context.Context, entry *retention.LogEntry) error {
	stmt, err := s.db.PrepareNamedContext(ctx, `INSERT INTO retention_processing_log (
		run_id, record_id, file_id, policy_id, action, status, message,
		file_path, target_path, created_at
	) VALUES (
		:run_id, :record_id, :file_id, :policy_id, :action, :status, :message,
		:file_path, :target_path, :created_at
	) RETURNING id`)
	if err != nil {
		return s.wrap("append_log", err)
	}
	defer stmt.Close()

	if err := stmt.QueryRowxContext(ctx, toLogRow(entry)).Scan(&entry.ID); err != nil {
		return s.wrap("append_log", err)
	}
	return nil
}

// QueryLogs returns matching log entries newest first.
func (s *SQLStore) QueryLogs(ctx context.Context, q *retention.LogQuery) ([]*retention.LogEntry, error) {
	if q == nil {
		q = &retention.LogQuery{}
	}

	var where []string
	var args []any
	if q.FileID != "" {
		where = append(where, "file_id = ?")
		args = append(args, q.FileID)
	}
	if q.PolicyID != 0 {
		where = append(where, "policy_id = ?")
		args = append(args, q.PolicyID)
	}
	if q.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, q.RunID)
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	if !q.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, q.Since.UnixMilli())
	}
	if !q.Until.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, q.Until.UnixMilli())
	}

	query := `SELECT id, run_id, record_id, file_id, policy_id, action, status, message,
		file_path, target_path, created_at FROM retention_processing_log`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	limit := q.Limit
	if limit <= 0 && q.Offset > 0 {
		limit = math.MaxInt32
	}
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, q.Offset)
	}

	var rows []logRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, s.wrap("query_logs", err)
	}

	out := make([]*retention.LogEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toEntry())
	}
	return out, nil
}

// ReplaceNotifications swaps the pending schedule of a record.
func (s *SQLStore) ReplaceNotifications(ctx context.Context, recordID int64, notes []*retention.Notification) error {
	return s.withTx(ctx, "replace_notifications", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE retention_notifications
			SET status = 'cancelled' WHERE retention_id = ? AND status = 'pending'`), recordID); err != nil {
			return s.wrap("replace_notifications", err)
		}

		stmt, err := tx.PrepareNamedContext(ctx, `INSERT INTO retention_notifications (
			file_id, retention_id, user_id, notification_type, scheduled_date, sent_at, status, message
		) VALUES (
			:file_id, :retention_id, :user_id, :notification_type, :scheduled_date, :sent_at, :status, :message
		) RETURNING id`)
		if err != nil {
			return s.wrap("replace_notifications", err)
		}
		defer stmt.Close()

		for _, n := range notes {
			n.RetentionID = recordID
			if err := stmt.QueryRowxContext(ctx, toNotificationRow(n)).Scan(&n.ID); err != nil {
				return s.wrap("replace_notifications", err)
			}
		}
		return nil
	})
}

// CancelNotifications cancels pending notifications of a record.
func (s *SQLStore) CancelNotifications(ctx context.Context, recordID int64) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE retention_notifications
		SET status = 'cancelled' WHERE retention_id = ? AND status = 'pending'`), recordID)
	return s.wrap("cancel_notifications", err)
}

// ListNotifications returns the notifications of a record.
func (s *SQLStore) ListNotifications(ctx context.Context, recordID int64) ([]*retention.Notification, error) {
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT id, file_id, retention_id, user_id,
		notification_type, scheduled_date, sent_at, status, message
		FROM retention_notifications WHERE retention_id = ?
		ORDER BY scheduled_date ASC, id ASC`), recordID)
	if err != nil {
		return nil, s.wrap("list_notifications", err)
	}

	out := make([]*retention.Notification, 0, len(rows))
	for _, r := range rows {
		n, err := r.toNotification()
		if err != nil {
			return nil, s.wrap("list_notifications", err)
		}
		out = append(out, n)
	}
	return out, nil
}

type statusCount struct {
	Status string `db:"status"`
	Count  int64  `db:"n"`
}

// Stats aggregates counts.
func (s *SQLStore) Stats(ctx context.Context, today time.Time) (*retention.Stats, error) {
	st := &retention.Stats{
		RecordsByStatus: make(map[string]int64),
		LogsByStatus:    make(map[string]int64),
	}

	err := s.db.GetContext(ctx, &st.TotalPolicies, `SELECT COUNT(*) FROM retention_policies`)
	if err != nil {
		return nil, s.wrap("stats", err)
	}
	err = s.db.GetContext(ctx, &st.ActivePolicies,
		s.db.Rebind(`SELECT COUNT(*) FROM retention_policies WHERE is_active = ?`), true)
	if err != nil {
		return nil, s.wrap("stats", err)
	}

	var counts []statusCount
	err = s.db.SelectContext(ctx, &counts,
		`SELECT status, COUNT(*) AS n FROM retention_records GROUP BY status`)
	if err != nil {
		return nil, s.wrap("stats", err)
	}
	for _, c := range counts {
		st.RecordsByStatus[c.Status] = c.Count
	}

	err = s.db.GetContext(ctx, &st.DueRecords, s.db.Rebind(`SELECT COUNT(*) FROM retention_records
		WHERE status = 'active' AND expire_date <= ?`), retention.FormatDate(retention.Today(today)))
	if err != nil {
		return nil, s.wrap("stats", err)
	}

	counts = nil
	err = s.db.SelectContext(ctx, &counts,
		`SELECT status, COUNT(*) AS n FROM retention_processing_log GROUP BY status`)
	if err != nil {
		return nil, s.wrap("stats", err)
	}
	for _, c := range counts {
		st.LogsByStatus[c.Status] = c.Count
	}

	err = s.db.GetContext(ctx, &st.PendingReminders,
		`SELECT COUNT(*) FROM retention_notifications WHERE status = 'pending'`)
	if err != nil {
		return nil, s.wrap("stats", err)
	}

	var lastRun sql.NullInt64
	err = s.db.GetContext(ctx, &lastRun, `SELECT MAX(created_at) FROM retention_processing_log`)
	if err != nil {
		return nil, s.wrap("stats", err)
	}
	if lastRun.Valid {
		t := time.UnixMilli(lastRun.Int64).UTC()
		st.LastRun = &t
	}

	return st, nil
}

// Ping verifies the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.wrap("ping", s.db.PingContext(ctx))
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.wrap("close", s.db.Close())
}
