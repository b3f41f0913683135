package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/lpsinger/hydrate/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory ledger.
const MemoryPath = ":memory:"

// ErrRunNotFound is returned when a run ID is not in the ledger.
var ErrRunNotFound = errors.New("run not found")

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db          *sql.DB
	path        string
	busyTimeout time.Duration
}

var (
	_ Store              = (*SQLiteStore)(nil)
	_ engine.RunRecorder = (*SQLiteStore)(nil)
)

// Config holds SQLite store configuration
type Config struct {
	// Path is the database file, or MemoryPath.
	Path string

	// BusyTimeout bounds how long a write waits for another process's lock.
	BusyTimeout time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	return &SQLiteStore{
		path:        cfg.Path,
		busyTimeout: cfg.BusyTimeout,
	}, nil
}

// Open creates, initializes, and migrates a store in one call.
func Open(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Init opens the database connection and enables WAL mode. The parent
// directory of a file database is created if missing.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if s.path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		s.path, s.busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// RecordRun stores a run report with its per-function and per-step rows.
// Recording the same run ID again replaces the earlier rows.
func (s *SQLiteStore) RecordRun(ctx context.Context, report *engine.RunReport) error {
	blob, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode run report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, report.ID); err != nil {
		return fmt.Errorf("failed to replace run: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, root, status, started_at, completed_at, duration_ns,
			total, succeeded, failed, cancelled, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.ID,
		report.Root,
		string(report.Status),
		report.StartedAt.UnixNano(),
		report.CompletedAt.UnixNano(),
		int64(report.Duration),
		report.Summary.Total,
		report.Summary.Succeeded,
		report.Summary.Failed,
		report.Summary.Cancelled,
		string(blob),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	for _, fr := range report.Functions {
		id := fr.Function.ID.String()
		msg := ""
		if err := fr.Err(); err != nil {
			msg = err.Error()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO function_results (run_id, function, runtime, status, error)
			VALUES (?, ?, ?, ?, ?)
		`, report.ID, id, string(fr.Function.Runtime), string(functionStatus(fr)), msg)
		if err != nil {
			return fmt.Errorf("failed to record function %s: %w", id, err)
		}

		for _, step := range engine.Steps {
			res, ok := fr.Steps[step]
			if !ok || res == nil {
				continue
			}
			var kind, code string
			if res.Error != nil {
				kind, code = string(res.Error.Kind), res.Error.Code
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO step_results (run_id, function, step, status, reason,
					error_kind, error_code, rolled_back, duration_ns)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, report.ID, id, string(step), string(res.Status), res.Reason,
				kind, code, res.RolledBack, int64(res.Duration))
			if err != nil {
				return fmt.Errorf("failed to record step %s of %s: %w", step, id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun retrieves the full report of a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*engine.RunReport, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT report FROM runs WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var report engine.RunReport
	if err := json.Unmarshal([]byte(blob), &report); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return &report, nil
}

// ListRuns lists runs newest first with pagination. An empty root lists
// runs of every project.
func (s *SQLiteStore) ListRuns(ctx context.Context, root string, limit, offset int) ([]*Run, error) {
	query := `
		SELECT id, root, status, started_at, completed_at, duration_ns,
			total, succeeded, failed, cancelled
		FROM runs
		WHERE (? = '' OR root = ?)
		ORDER BY started_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, root, root, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run := &Run{}
		var status string
		var started, completed, duration int64
		err := rows.Scan(
			&run.ID,
			&run.Root,
			&status,
			&started,
			&completed,
			&duration,
			&run.Summary.Total,
			&run.Summary.Succeeded,
			&run.Summary.Failed,
			&run.Summary.Cancelled,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Status = engine.RunStatus(status)
		run.StartedAt = time.Unix(0, started).UTC()
		run.CompletedAt = time.Unix(0, completed).UTC()
		run.Duration = time.Duration(duration)
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// ListFunctionResults lists the per-function outcomes of a run.
func (s *SQLiteStore) ListFunctionResults(ctx context.Context, runID string) ([]*FunctionResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, function, runtime, status, error
		FROM function_results
		WHERE run_id = ?
		ORDER BY function ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list function results: %w", err)
	}
	defer rows.Close()

	results := []*FunctionResult{}
	for rows.Next() {
		fr := &FunctionResult{}
		var runtime, status string
		if err := rows.Scan(&fr.RunID, &fr.Function, &runtime, &status, &fr.Error); err != nil {
			return nil, fmt.Errorf("failed to scan function result: %w", err)
		}
		fr.Runtime = engine.Runtime(runtime)
		fr.Status = FunctionStatus(status)
		results = append(results, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating function results: %w", err)
	}
	return results, nil
}

// LastFailed returns the functions of root whose most recent recorded
// outcome was failed or cancelled, sorted by identity.
func (s *SQLiteStore) LastFailed(ctx context.Context, root string) ([]engine.FunctionID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT function FROM (
			SELECT f.function, f.status,
				ROW_NUMBER() OVER (
					PARTITION BY f.function
					ORDER BY r.started_at DESC, r.rowid DESC
				) AS rn
			FROM function_results f
			JOIN runs r ON r.id = f.run_id
			WHERE r.root = ?
		)
		WHERE rn = 1 AND status IN (?, ?)
		ORDER BY function ASC
	`, root, string(FunctionStatusFailed), string(FunctionStatusCancelled))
	if err != nil {
		return nil, fmt.Errorf("failed to query failed functions: %w", err)
	}
	defer rows.Close()

	var ids []engine.FunctionID
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan function: %w", err)
		}
		id, err := engine.ParseFunctionID(name)
		if err != nil {
			return nil, fmt.Errorf("corrupt function identity %q: %w", name, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating failed functions: %w", err)
	}
	return ids, nil
}

// PruneRuns deletes all but the newest keep runs of root, with their
// results and events. It returns the number of runs deleted.
func (s *SQLiteStore) PruneRuns(ctx context.Context, root string, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must not be negative, got %d", keep)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM runs
		WHERE root = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT -1 OFFSET ?
	`, root, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to select runs to prune: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan run: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating runs: %w", err)
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE run_id = ?`, id); err != nil {
			return 0, fmt.Errorf("failed to delete events of %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
			return 0, fmt.Errorf("failed to delete run %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	return int64(len(ids)), nil
}

// AppendEvent appends a timeline event. Events may arrive before their
// run is recorded.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *engine.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, run_id, type, function, step, status, level, message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		event.RunID,
		string(event.Type),
		event.Function,
		string(event.Step),
		string(event.Status),
		event.Level,
		event.Message,
		event.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// GetEvents returns a run's events in the order they were appended.
func (s *SQLiteStore) GetEvents(ctx context.Context, runID string) ([]*StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, run_id, type, function, step, status, level, message, timestamp
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := []*StoredEvent{}
	for rows.Next() {
		e := &StoredEvent{}
		var typ, step, status string
		var ts int64
		err := rows.Scan(&e.Seq, &e.ID, &e.RunID, &typ, &e.Function, &step, &status, &e.Level, &e.Message, &ts)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = engine.EventType(typ)
		e.Step = engine.Step(step)
		e.Status = engine.StepStatus(status)
		e.Timestamp = time.Unix(0, ts).UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}
