package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"showrunner/internal/config"
	"showrunner/internal/services"
)

// Store manages session persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the session database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "sessions.db"))
}

// OpenPath opens the session database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the on-disk location of the session database.
func (s *Store) Path() string {
	return s.path
}

// Create persists a new session and one row per selected stage in a single
// transaction. A concurrent create against the same workspace loses to the
// partial unique index and returns a conflict.
func (s *Store) Create(ctx context.Context, sess *Session) error {
	if sess == nil {
		return errors.New("session is nil")
	}
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	if sess.Status == "" {
		sess.Status = StatusInitialized
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO sessions (id, workspace_root, source_input, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID,
		sess.WorkspaceRoot,
		sess.SourceInput,
		sess.Status,
		sess.CreatedAt.Format(time.RFC3339Nano),
		sess.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return services.Wrap(services.ErrConflict, "", "create session",
				fmt.Sprintf("workspace %s already has an active session", sess.WorkspaceRoot), nil)
		}
		return fmt.Errorf("insert session: %w", err)
	}

	for _, st := range sess.Stages {
		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO session_stages (session_id, stage_index, stage_name, status, started_at, ended_at, output_ref, error_message)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID,
			st.Index,
			st.Name,
			st.Status,
			nullableTime(st.StartedAt),
			nullableTime(st.EndedAt),
			nullableString(st.OutputRef),
			nullableString(st.Error),
		)
		if err != nil {
			return fmt.Errorf("insert stage %d: %w", st.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create: %w", err)
	}
	return nil
}

// Get fetches a session and its stage states by identifier.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "", "get session", fmt.Sprintf("unknown session %s", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if err := s.loadStages(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ActiveForWorkspace returns the active session owning a workspace, or nil.
func (s *Store) ActiveForWorkspace(ctx context.Context, workspaceRoot string) (*Session, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE workspace_root = ? AND status IN (?, ?) LIMIT 1`,
		workspaceRoot,
		StatusInitialized,
		StatusRunning,
	)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active for workspace: %w", err)
	}
	if err := s.loadStages(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ListActive returns all non-terminal sessions ordered by creation time.
func (s *Store) ListActive(ctx context.Context) ([]*Session, error) {
	return s.list(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE status IN (?, ?) ORDER BY created_at`,
		StatusInitialized, StatusRunning)
}

// List returns sessions filtered by status set (or all sessions when no
// status is provided), active first, newest first within each group.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Session, error) {
	base := `SELECT ` + sessionColumns + ` FROM sessions`
	order := ` ORDER BY CASE WHEN status IN ('initialized', 'running') THEN 0 ELSE 1 END, created_at DESC`
	if len(statuses) == 0 {
		return s.list(ctx, base+order)
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	return s.list(ctx, base+` WHERE status IN (`+placeholders+`)`+order, args...)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		if err := s.loadStages(ctx, sess); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

// UpdateStageState is the sole per-stage mutation entry point. The stage row
// and the session's updated_at move in one transaction so a snapshot never
// shows a stage ahead of its session.
func (s *Store) UpdateStageState(ctx context.Context, id string, state StageState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin stage update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(
		ctx,
		`UPDATE session_stages
         SET status = ?, started_at = ?, ended_at = ?, output_ref = ?, error_message = ?
         WHERE session_id = ? AND stage_index = ?`,
		state.Status,
		nullableTime(state.StartedAt),
		nullableTime(state.EndedAt),
		nullableString(state.OutputRef),
		nullableString(state.Error),
		id,
		state.Index,
	)
	if err != nil {
		return fmt.Errorf("update stage state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "", "update stage state",
			fmt.Sprintf("session %s has no stage %d", id, state.Index), nil)
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit stage update: %w", err)
	}
	return nil
}

// UpdateStatus transitions a session's lifecycle status.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "", "update session status", fmt.Sprintf("unknown session %s", id), nil)
	}
	return nil
}

// Heartbeat refreshes updated_at while a long-running stage is in flight so
// observers can distinguish a live stage from a wedged process.
func (s *Store) Heartbeat(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

// RecoverInterrupted transitions every active session to interrupted and
// returns the affected identifiers. Called once at process startup: a stage
// that was running at crash time may have partially written output, so the
// session is never resumed automatically.
func (s *Store) RecoverInterrupted(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id FROM sessions WHERE status IN (?, ?)`,
		StatusInitialized,
		StatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("find active sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, id := range ids {
		if _, err := s.db.ExecContext(
			ctx,
			`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
			StatusInterrupted,
			now,
			id,
		); err != nil {
			return nil, fmt.Errorf("mark session %s interrupted: %w", id, err)
		}
	}
	return ids, nil
}

// Stats returns a count of sessions grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM sessions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// CheckHealth returns diagnostic information about the session database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("session database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat session database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("session database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("session database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping session database: %w", err)
	}
	health.DatabaseReadable = true

	var tableName string
	row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'sessions'")
	if err := row.Scan(&tableName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			health.TableExists = false
		} else {
			health.Error = err.Error()
			return health, fmt.Errorf("query table info: %w", err)
		}
	} else {
		health.TableExists = true
	}

	if health.TableExists {
		row = s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM sessions")
		if err := row.Scan(&health.TotalSessions); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count sessions: %w", err)
		}
	}

	row = s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

func (s *Store) loadStages(ctx context.Context, sess *Session) error {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT stage_index, stage_name, status, started_at, ended_at, output_ref, error_message
         FROM session_stages WHERE session_id = ? ORDER BY stage_index`,
		sess.ID,
	)
	if err != nil {
		return fmt.Errorf("load stages: %w", err)
	}
	defer rows.Close()

	sess.Stages = sess.Stages[:0]
	for rows.Next() {
		var (
			state      StageState
			statusStr  string
			startedRaw sql.NullString
			endedRaw   sql.NullString
			outputRef  sql.NullString
			errMessage sql.NullString
		)
		if err := rows.Scan(&state.Index, &state.Name, &statusStr, &startedRaw, &endedRaw, &outputRef, &errMessage); err != nil {
			return err
		}
		state.Status = StageStatus(statusStr)
		state.OutputRef = outputRef.String
		state.Error = errMessage.String
		if startedRaw.Valid {
			if started, err := parseTimeString(startedRaw.String); err == nil {
				state.StartedAt = &started
			}
		}
		if endedRaw.Valid {
			if ended, err := parseTimeString(endedRaw.String); err == nil {
				state.EndedAt = &ended
			}
		}
		sess.Stages = append(sess.Stages, state)
	}
	return rows.Err()
}

const sessionColumns = "id, workspace_root, source_input, status, created_at, updated_at"

func scanSession(scanner interface{ Scan(dest ...any) error }) (*Session, error) {
	var (
		sess       Session
		statusStr  string
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(
		&sess.ID,
		&sess.WorkspaceRoot,
		&sess.SourceInput,
		&statusStr,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	sess.Status = Status(statusStr)
	if created, err := parseTimeString(createdRaw.String); err == nil {
		sess.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		sess.UpdatedAt = updated
	}
	return &sess, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed: sessions")
}
